package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/pkg/lock"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/memory"
	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	ctx      context.Context
	factory  *memory.RepositoryFactory
	locker   *lock.LocalLocker
	bus      *recordingPublisher
	userId   uuid.UUID
	clock    *tickingClock
	topology IClusterTopologyService
}

// tickingClock advances one second per reading so event order is stable.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		factory: memory.NewRepositoryFactory(nil),
		locker:  lock.NewLocalLocker(),
		bus:     &recordingPublisher{},
		userId:  uuid.New(),
		clock:   &tickingClock{now: time.Now().UTC().Add(-time.Hour)},
	}
	f.topology = NewClusterTopologyService(f.factory, f.locker, f.bus, logger.NewNopLogger(),
		TopologyConfig{LockTTL: time.Second, LockWait: 20 * time.Millisecond},
		WithTopologyClock(f.clock.Now))
	return f
}

func (f *fixture) collection(t *testing.T, name string, clusterId *uuid.UUID) *entity.Collection {
	t.Helper()
	col := &entity.Collection{
		UserId:    f.userId,
		Name:      name,
		VectorRef: name,
		ClusterId: clusterId,
	}
	require.NoError(t, f.factory.NewUnitOfWork(f.ctx).CollectionRepository().Create(f.ctx, col))
	return col
}

// cluster creates a cluster holding one new collection per member name.
func (f *fixture) cluster(t *testing.T, name string, memberNames ...string) (*entity.Cluster, []*entity.Collection) {
	t.Helper()
	cluster := &entity.Cluster{UserId: f.userId, Name: name, Type: "logical"}
	require.NoError(t, f.factory.NewUnitOfWork(f.ctx).ClusterRepository().Create(f.ctx, cluster))

	members := make([]*entity.Collection, 0, len(memberNames))
	for _, m := range memberNames {
		members = append(members, f.collection(t, m, &cluster.Id))
	}
	return cluster, members
}

func (f *fixture) document(t *testing.T, collectionId uuid.UUID, filename string) {
	t.Helper()
	require.NoError(t, f.factory.NewUnitOfWork(f.ctx).DocumentRepository().Create(f.ctx, &entity.Document{
		UserId:       f.userId,
		CollectionId: collectionId,
		Filename:     filename,
	}))
}

func (f *fixture) members(t *testing.T, clusterId uuid.UUID) []*entity.Collection {
	t.Helper()
	out, err := f.factory.NewUnitOfWork(f.ctx).CollectionRepository().FindAll(f.ctx, specification.ByClusterID{ClusterID: clusterId})
	require.NoError(t, err)
	return out
}

func (f *fixture) findCluster(t *testing.T, clusterId uuid.UUID) *entity.Cluster {
	t.Helper()
	c, err := f.factory.NewUnitOfWork(f.ctx).ClusterRepository().FindOne(f.ctx, specification.ByID{ID: clusterId})
	require.NoError(t, err)
	return c
}

func (f *fixture) clusters(t *testing.T) []*entity.Cluster {
	t.Helper()
	out, err := f.factory.NewUnitOfWork(f.ctx).ClusterRepository().FindAll(f.ctx, specification.UserOwnedBy{UserID: f.userId})
	require.NoError(t, err)
	return out
}

func (f *fixture) events(t *testing.T) []*entity.ClusterEvent {
	t.Helper()
	out, err := f.factory.NewUnitOfWork(f.ctx).ClusterEventRepository().FindAll(f.ctx, specification.UserOwnedBy{UserID: f.userId})
	require.NoError(t, err)
	return out
}

var errConnectionReset = errors.New("connection reset by peer")

// faultyFactory wraps the memory store and fails chosen repository calls.
type faultyFactory struct {
	inner      unitofwork.RepositoryFactory
	failAssign bool
	failEvents bool
}

func (f *faultyFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &faultyUnitOfWork{UnitOfWork: f.inner.NewUnitOfWork(ctx), factory: f}
}

type faultyUnitOfWork struct {
	unitofwork.UnitOfWork
	factory *faultyFactory
}

func (u *faultyUnitOfWork) CollectionRepository() contract.CollectionRepository {
	repo := u.UnitOfWork.CollectionRepository()
	if u.factory.failAssign {
		return &failingCollectionRepository{CollectionRepository: repo}
	}
	return repo
}

func (u *faultyUnitOfWork) ClusterEventRepository() contract.ClusterEventRepository {
	repo := u.UnitOfWork.ClusterEventRepository()
	if u.factory.failEvents {
		return &failingEventRepository{ClusterEventRepository: repo}
	}
	return repo
}

type failingCollectionRepository struct {
	contract.CollectionRepository
}

func (r *failingCollectionRepository) AssignCluster(ctx context.Context, ids []uuid.UUID, clusterId *uuid.UUID) (int64, error) {
	return 0, errConnectionReset
}

type failingEventRepository struct {
	contract.ClusterEventRepository
}

func (r *failingEventRepository) Create(ctx context.Context, event *entity.ClusterEvent) error {
	return errConnectionReset
}

// withFaults rebuilds the topology service on a faulty view of the store.
func (f *fixture) withFaults(faults faultyFactory) *faultyFactory {
	faults.inner = f.factory
	f.topology = NewClusterTopologyService(&faults, f.locker, f.bus, logger.NewNopLogger(),
		TopologyConfig{LockTTL: time.Second, LockWait: 20 * time.Millisecond},
		WithTopologyClock(f.clock.Now))
	return &faults
}

var (
	financeNames = []string{"Finance Budget Plan", "Finance Budget Review", "Finance Budget Forecast"}
	legalNames   = []string{"Legal Contract Drafts", "Legal Contract Templates", "Legal Contract Archive"}
)

func concat(lists ...[]string) []string {
	out := make([]string, 0)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
