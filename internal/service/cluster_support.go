package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/metrics"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/events"
	"cluster-intelligence-be/pkg/similarity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NameSimilarity scores two collection names in [0,1].
type NameSimilarity func(a, b string) float64

// DefaultNameSimilarity is token Jaccard over the names.
var DefaultNameSimilarity NameSimilarity = similarity.TokenJaccard

const maxNameAttempts = 1000

// clusterAudit writes ClusterEvent rows and forwards them to the event bus.
// Events are written on their own unit of work, after the mutation has
// committed or rolled back, so a failed audit write never undoes the
// mutation. Failures are logged and counted, never returned.
type clusterAudit struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  events.Publisher
	logger     logger.ILogger
}

func (a *clusterAudit) record(ctx context.Context, ev *entity.ClusterEvent) {
	ctx = context.WithoutCancel(ctx)
	uow := a.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ClusterEventRepository().Create(ctx, ev); err != nil {
		metrics.Get().EventWriteFailures.Inc()
		a.logger.Error(logger.ModuleTopology, "Failed to write cluster event", map[string]interface{}{
			"event_type": ev.EventType,
			"user_id":    ev.UserId.String(),
			"success":    ev.Success,
			"error":      err.Error(),
		})
	}
}

func (a *clusterAudit) recordFailure(ctx context.Context, ev *entity.ClusterEvent) {
	ev.Success = false
	a.record(ctx, ev)
	a.publish(ctx, ev)
}

func (a *clusterAudit) publish(ctx context.Context, ev *entity.ClusterEvent) {
	if a.publisher == nil {
		return
	}
	data := map[string]interface{}{
		"event_id":                ev.Id.String(),
		"user_id":                 ev.UserId.String(),
		"target_cluster_ids":      uuidStrings(ev.TargetClusterIds),
		"affected_collection_ids": uuidStrings(ev.AffectedCollectionIds),
		"trigger_reason":          ev.TriggerReason,
		"success":                 ev.Success,
	}
	if ev.SourceClusterId != nil {
		data["source_cluster_id"] = ev.SourceClusterId.String()
	}
	if err := a.publisher.Publish(ctx, events.NewClusterEvent(ev.EventType, data, ev.CreatedAt)); err != nil {
		metrics.Get().EventPublishFailures.Inc()
		a.logger.Warn(logger.ModuleEvents, "Failed to publish cluster event", map[string]interface{}{
			"event_type": ev.EventType,
			"error":      err.Error(),
		})
	}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func parseUUIDs(values []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		if id, err := uuid.Parse(v); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func sameCluster(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// dedupeIDs keeps the first occurrence of every id.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func collectionIDs(collections []*entity.Collection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(collections))
	for _, c := range collections {
		ids = append(ids, c.Id)
	}
	return ids
}

func collectionNames(collections []*entity.Collection) []string {
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	return names
}

func sortCollectionsByName(collections []*entity.Collection) {
	sort.SliceStable(collections, func(i, j int) bool {
		if collections[i].Name != collections[j].Name {
			return collections[i].Name < collections[j].Name
		}
		return collections[i].Id.String() < collections[j].Id.String()
	})
}

func sortClustersByName(clusters []*entity.Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Name != clusters[j].Name {
			return clusters[i].Name < clusters[j].Name
		}
		return clusters[i].Id.String() < clusters[j].Id.String()
	})
}

// findOwnedCluster returns ErrNotFound for clusters that do not exist or
// belong to someone else.
func findOwnedCluster(ctx context.Context, uow unitofwork.UnitOfWork, userId, clusterId uuid.UUID) (*entity.Cluster, error) {
	cluster, err := uow.ClusterRepository().FindOne(ctx,
		specification.ByID{ID: clusterId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, apperror.Persistence("find cluster", err)
	}
	if cluster == nil {
		return nil, apperror.NotFound("cluster %s", clusterId)
	}
	return cluster, nil
}

func findOwnedCollection(ctx context.Context, uow unitofwork.UnitOfWork, userId, collectionId uuid.UUID) (*entity.Collection, error) {
	collection, err := uow.CollectionRepository().FindOne(ctx,
		specification.ByID{ID: collectionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, apperror.Persistence("find collection", err)
	}
	if collection == nil {
		return nil, apperror.NotFound("collection %s", collectionId)
	}
	return collection, nil
}

// loadMembers returns the member collections of each cluster, sorted by name.
// Every requested cluster has an entry, possibly empty.
func loadMembers(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, clusterIds []uuid.UUID) (map[uuid.UUID][]*entity.Collection, error) {
	members := make(map[uuid.UUID][]*entity.Collection, len(clusterIds))
	for _, id := range clusterIds {
		members[id] = make([]*entity.Collection, 0)
	}
	if len(clusterIds) == 0 {
		return members, nil
	}

	collections, err := uow.CollectionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByClusterIDs{ClusterIDs: clusterIds},
	)
	if err != nil {
		return nil, apperror.Persistence("load cluster members", err)
	}
	for _, c := range collections {
		if c.ClusterId == nil {
			continue
		}
		if _, ok := members[*c.ClusterId]; ok {
			members[*c.ClusterId] = append(members[*c.ClusterId], c)
		}
	}
	for id := range members {
		sortCollectionsByName(members[id])
	}
	return members, nil
}

// loadUserGraph returns every cluster of the user, sorted by name, with its
// members.
func loadUserGraph(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID) ([]*entity.Cluster, map[uuid.UUID][]*entity.Collection, error) {
	clusters, err := uow.ClusterRepository().FindAll(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, nil, apperror.Persistence("load clusters", err)
	}
	sortClustersByName(clusters)

	ids := make([]uuid.UUID, 0, len(clusters))
	for _, c := range clusters {
		ids = append(ids, c.Id)
	}
	members, err := loadMembers(ctx, uow, userId, ids)
	if err != nil {
		return nil, nil, err
	}
	return clusters, members, nil
}

// uniqueClusterName returns base, or base with " (n)" appended, such that no
// other cluster of the user carries it.
func uniqueClusterName(ctx context.Context, repo contract.ClusterRepository, userId uuid.UUID, base string) (string, error) {
	base = strings.TrimSpace(base)
	name := base
	for n := 2; n < maxNameAttempts; n++ {
		existing, err := repo.FindOne(ctx,
			specification.UserOwnedBy{UserID: userId},
			specification.ByName{Name: name},
		)
		if err != nil {
			return "", apperror.Persistence("check cluster name", err)
		}
		if existing == nil {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)", base, n)
	}
	return "", apperror.Conflict("no free cluster name for %q", base)
}

// createClusterRow inserts cluster, translating duplicate keys to ErrConflict.
func createClusterRow(ctx context.Context, repo contract.ClusterRepository, cluster *entity.Cluster) error {
	if err := repo.Create(ctx, cluster); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("cluster name %q already exists", cluster.Name)
		}
		return apperror.Persistence("create cluster", err)
	}
	return nil
}

// removeCluster clears every member reference and deletes the row.
func removeCluster(ctx context.Context, uow unitofwork.UnitOfWork, clusterId uuid.UUID) error {
	if _, err := uow.CollectionRepository().ClearCluster(ctx, clusterId); err != nil {
		return apperror.Persistence("clear cluster members", err)
	}
	if err := uow.ClusterRepository().Delete(ctx, clusterId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("cluster %s", clusterId)
		}
		return apperror.Persistence("delete cluster", err)
	}
	return nil
}

func assignCollections(ctx context.Context, uow unitofwork.UnitOfWork, collectionIds []uuid.UUID, clusterId *uuid.UUID) error {
	if len(collectionIds) == 0 {
		return nil
	}
	if _, err := uow.CollectionRepository().AssignCluster(ctx, collectionIds, clusterId); err != nil {
		return apperror.Persistence("assign collections", err)
	}
	return nil
}

// meanSimilarity averages sim(name, other.Name) over others, skipping the
// collection itself. ok is false when nothing was compared.
func meanSimilarity(sim NameSimilarity, self *entity.Collection, others []*entity.Collection) (float64, bool) {
	total := 0.0
	n := 0
	for _, o := range others {
		if o.Id == self.Id {
			continue
		}
		total += sim(self.Name, o.Name)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// crossPairs scores every pair of collections drawn from two different
// groups.
func crossPairs(sim NameSimilarity, groups [][]*entity.Collection) []*dto.CollectionPair {
	pairs := make([]*dto.CollectionPair, 0)
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			for _, a := range groups[i] {
				for _, b := range groups[j] {
					pairs = append(pairs, &dto.CollectionPair{
						FirstId:    a.Id,
						FirstName:  a.Name,
						SecondId:   b.Id,
						SecondName: b.Name,
						Similarity: sim(a.Name, b.Name),
					})
				}
			}
		}
	}
	return pairs
}

// groupSimilarity is the mean similarity over all cross-group pairs, 0 when
// either group is empty.
func groupSimilarity(sim NameSimilarity, a, b []*entity.Collection) float64 {
	pairs := crossPairs(sim, [][]*entity.Collection{a, b})
	if len(pairs) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pairs {
		total += p.Similarity
	}
	return total / float64(len(pairs))
}

func toClusterResponse(c *entity.Cluster, members []*entity.Collection) *dto.ClusterResponse {
	ids := collectionIDs(members)
	return &dto.ClusterResponse{
		Id:             c.Id,
		Name:           c.Name,
		Description:    c.Description,
		Type:           c.Type,
		Settings:       c.Settings,
		Health:         c.Health,
		LastAnalyzedAt: c.LastAnalyzedAt,
		AutoManaged:    c.AutoManaged,
		CollectionIds:  ids,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toClusterEventResponse(e *entity.ClusterEvent) *dto.ClusterEventResponse {
	return &dto.ClusterEventResponse{
		Id:                    e.Id,
		EventType:             e.EventType,
		SourceClusterId:       e.SourceClusterId,
		TargetClusterIds:      e.TargetClusterIds,
		AffectedCollectionIds: e.AffectedCollectionIds,
		TriggerReason:         e.TriggerReason,
		Success:               e.Success,
		ErrorDetail:           e.ErrorDetail,
		Metadata:              e.Metadata,
		CreatedAt:             e.CreatedAt,
	}
}

func toSuggestionResponse(s *entity.ClusterSuggestion) *dto.ClusterSuggestionResponse {
	return &dto.ClusterSuggestionResponse{
		Id:               s.Id,
		Type:             s.Type,
		CollectionId:     s.CollectionId,
		SourceClusterId:  s.SourceClusterId,
		TargetClusterIds: s.TargetClusterIds,
		Confidence:       s.Confidence,
		Reasoning:        s.Reasoning,
		Status:           s.Status,
		ExpiresAt:        s.ExpiresAt,
		CreatedAt:        s.CreatedAt,
	}
}

func timeNow() time.Time {
	return time.Now().UTC()
}
