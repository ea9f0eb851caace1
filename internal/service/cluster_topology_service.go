package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/metrics"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/lock"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/events"
	"cluster-intelligence-be/pkg/similarity"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	reasonInsufficientMembers = "insufficient members"
	reasonTooSimilar          = "too similar to split"
	reasonIncompatibleMerge   = "incompatible merge"
)

// ClusterDraft describes a cluster to be created together with its initial
// members.
type ClusterDraft struct {
	Name          string
	Description   string
	Type          string
	Settings      map[string]interface{}
	AutoManaged   bool
	CollectionIds []uuid.UUID
	EventType     string // create or auto_generate
	UniqueName    bool   // suffix " (n)" instead of failing on a taken name
	Reason        string
	Metadata      map[string]interface{}
}

type IClusterTopologyService interface {
	CreateCluster(ctx context.Context, userId uuid.UUID, draft ClusterDraft) (*entity.Cluster, error)
	DeleteCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) error
	Move(ctx context.Context, userId uuid.UUID, collectionId uuid.UUID, targetClusterId *uuid.UUID, reason string) (*dto.MoveCollectionResponse, error)
	Split(ctx context.Context, userId uuid.UUID, req *dto.SplitClusterRequest) (*dto.SplitClusterResponse, error)
	Merge(ctx context.Context, userId uuid.UUID, req *dto.MergeClustersRequest) (*dto.MergeClustersResponse, error)
	AnalyzeRebalance(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceAnalysis, error)
	Rebalance(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceResponse, error)
}

type TopologyConfig struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{LockTTL: 30 * time.Second, LockWait: 5 * time.Second}
}

type TopologyOption func(*clusterTopologyService)

// WithNameSimilarity replaces the collection similarity used by split, merge
// and rebalance.
func WithNameSimilarity(sim NameSimilarity) TopologyOption {
	return func(s *clusterTopologyService) {
		if sim != nil {
			s.similarity = sim
		}
	}
}

func WithTopologyClock(now func() time.Time) TopologyOption {
	return func(s *clusterTopologyService) {
		if now != nil {
			s.now = now
		}
	}
}

type clusterTopologyService struct {
	uowFactory unitofwork.RepositoryFactory
	locker     lock.Locker
	audit      *clusterAudit
	logger     logger.ILogger
	similarity NameSimilarity
	config     TopologyConfig
	now        func() time.Time
	tracer     trace.Tracer
}

func NewClusterTopologyService(
	uowFactory unitofwork.RepositoryFactory,
	locker lock.Locker,
	publisher events.Publisher,
	log logger.ILogger,
	config TopologyConfig,
	opts ...TopologyOption,
) IClusterTopologyService {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultTopologyConfig().LockTTL
	}
	if config.LockWait < 0 {
		config.LockWait = 0
	}
	s := &clusterTopologyService{
		uowFactory: uowFactory,
		locker:     locker,
		audit:      &clusterAudit{uowFactory: uowFactory, publisher: publisher, logger: log},
		logger:     log,
		similarity: DefaultNameSimilarity,
		config:     config,
		now:        timeNow,
		tracer:     otel.Tracer("cluster-intelligence/topology"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// refusal is a negative, explainable outcome. The transaction is rolled back
// and a failure event recorded, but the caller gets a result instead of an
// error.
type refusal struct {
	reason string
}

func (r *refusal) Error() string {
	return r.reason
}

// mutateFunc performs one transition inside the open transaction and fills
// the success event.
type mutateFunc func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error

// mutate runs fn under the user lock in a single transaction and records
// exactly one ClusterEvent for it.
func (s *clusterTopologyService) mutate(ctx context.Context, userId uuid.UUID, eventType, reason string, fn mutateFunc) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "topology."+eventType, trace.WithAttributes(
		attribute.String("user_id", userId.String()),
	))
	defer span.End()

	lease, err := s.locker.Acquire(ctx, lock.UserKey(userId), s.config.LockTTL, s.config.LockWait)
	if err != nil {
		if errors.Is(err, apperror.ErrLocked) {
			metrics.Get().LockContentionTotal.Inc()
		}
		metrics.Get().ObserveTopology(eventType, "locked", started)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn(logger.ModuleLock, "Failed to release topology lock", map[string]interface{}{
				"user_id": userId.String(),
				"error":   err.Error(),
			})
		}
	}()

	ev := &entity.ClusterEvent{
		Id:            uuid.New(),
		UserId:        userId,
		EventType:     eventType,
		TriggerReason: reason,
		Metadata:      map[string]interface{}{},
		CreatedAt:     s.now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		err = apperror.Persistence("begin "+eventType, err)
		s.fail(ctx, span, ev, err, started)
		return err
	}
	defer uow.Rollback()

	if err := fn(ctx, uow, ev); err != nil {
		_ = uow.Rollback()
		var r *refusal
		if errors.As(err, &r) {
			ev.ErrorDetail = r.reason
			s.audit.recordFailure(ctx, ev)
			metrics.Get().ObserveTopology(eventType, "refused", started)
			span.SetAttributes(attribute.String("refusal", r.reason))
			s.logger.Info(logger.ModuleTopology, "Topology operation refused", map[string]interface{}{
				"operation": eventType,
				"user_id":   userId.String(),
				"reason":    r.reason,
			})
			return nil
		}
		s.fail(ctx, span, ev, err, started)
		return err
	}

	if err := uow.Commit(); err != nil {
		err = apperror.Persistence("commit "+eventType, err)
		s.fail(ctx, span, ev, err, started)
		return err
	}

	ev.Success = true
	s.audit.record(ctx, ev)
	s.audit.publish(ctx, ev)
	metrics.Get().ObserveTopology(eventType, "success", started)
	s.logger.Info(logger.ModuleTopology, "Topology operation committed", map[string]interface{}{
		"operation":   eventType,
		"user_id":     userId.String(),
		"targets":     len(ev.TargetClusterIds),
		"collections": len(ev.AffectedCollectionIds),
	})
	return nil
}

func (s *clusterTopologyService) fail(ctx context.Context, span trace.Span, ev *entity.ClusterEvent, err error, started time.Time) {
	ev.ErrorDetail = err.Error()
	s.audit.recordFailure(ctx, ev)
	metrics.Get().ObserveTopology(ev.EventType, "failed", started)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error(logger.ModuleTopology, "Topology operation failed", map[string]interface{}{
		"operation": ev.EventType,
		"user_id":   ev.UserId.String(),
		"error":     err.Error(),
	})
}

func (s *clusterTopologyService) CreateCluster(ctx context.Context, userId uuid.UUID, draft ClusterDraft) (*entity.Cluster, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return nil, apperror.InvalidArgument("cluster name is required")
	}
	clusterType := draft.Type
	if clusterType == "" {
		clusterType = constant.ClusterTypeLogical
	}
	if !isClusterType(clusterType) {
		return nil, apperror.InvalidArgument("unknown cluster type %q", clusterType)
	}
	eventType := draft.EventType
	if eventType == "" {
		eventType = constant.ClusterEventCreate
	}

	var created *entity.Cluster
	err := s.mutate(ctx, userId, eventType, draft.Reason, func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		finalName := name
		if draft.UniqueName {
			unique, err := uniqueClusterName(ctx, uow.ClusterRepository(), userId, name)
			if err != nil {
				return err
			}
			finalName = unique
		} else {
			existing, err := uow.ClusterRepository().FindOne(ctx,
				specification.UserOwnedBy{UserID: userId},
				specification.ByName{Name: name},
			)
			if err != nil {
				return apperror.Persistence("check cluster name", err)
			}
			if existing != nil {
				return apperror.Conflict("cluster name %q already exists", name)
			}
		}

		ids := dedupeIDs(draft.CollectionIds)
		if len(ids) > 0 {
			owned, err := uow.CollectionRepository().Count(ctx,
				specification.ByIDs{IDs: ids},
				specification.UserOwnedBy{UserID: userId},
			)
			if err != nil {
				return apperror.Persistence("check collections", err)
			}
			if int(owned) != len(ids) {
				return apperror.NotFound("one or more collections")
			}
		}

		cluster := &entity.Cluster{
			Id:          uuid.New(),
			UserId:      userId,
			Name:        finalName,
			Description: draft.Description,
			Type:        clusterType,
			Settings:    draft.Settings,
			AutoManaged: draft.AutoManaged,
			CreatedAt:   s.now(),
		}
		if err := createClusterRow(ctx, uow.ClusterRepository(), cluster); err != nil {
			return err
		}
		if err := assignCollections(ctx, uow, ids, &cluster.Id); err != nil {
			return err
		}

		ev.TargetClusterIds = []uuid.UUID{cluster.Id}
		ev.AffectedCollectionIds = ids
		ev.Metadata["name"] = cluster.Name
		for k, v := range draft.Metadata {
			ev.Metadata[k] = v
		}
		created = cluster
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *clusterTopologyService) DeleteCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) error {
	return s.mutate(ctx, userId, constant.ClusterEventDelete, "user request", func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		ev.SourceClusterId = uuidPtr(clusterId)
		cluster, err := findOwnedCluster(ctx, uow, userId, clusterId)
		if err != nil {
			return err
		}
		members, err := loadMembers(ctx, uow, userId, []uuid.UUID{clusterId})
		if err != nil {
			return err
		}
		if err := removeCluster(ctx, uow, clusterId); err != nil {
			return err
		}
		ev.AffectedCollectionIds = collectionIDs(members[clusterId])
		ev.Metadata["name"] = cluster.Name
		return nil
	})
}

func (s *clusterTopologyService) Move(ctx context.Context, userId uuid.UUID, collectionId uuid.UUID, targetClusterId *uuid.UUID, reason string) (*dto.MoveCollectionResponse, error) {
	if reason == "" {
		reason = "user request"
	}
	var res *dto.MoveCollectionResponse
	err := s.mutate(ctx, userId, constant.ClusterEventMove, reason, func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		moved, err := s.moveInTx(ctx, uow, userId, collectionId, targetClusterId)
		if err != nil {
			return err
		}
		ev.SourceClusterId = moved.FromClusterId
		if moved.ToClusterId != nil {
			ev.TargetClusterIds = []uuid.UUID{*moved.ToClusterId}
		}
		ev.AffectedCollectionIds = []uuid.UUID{collectionId}
		res = moved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *clusterTopologyService) moveInTx(ctx context.Context, uow unitofwork.UnitOfWork, userId, collectionId uuid.UUID, targetClusterId *uuid.UUID) (*dto.MoveCollectionResponse, error) {
	collection, err := findOwnedCollection(ctx, uow, userId, collectionId)
	if err != nil {
		return nil, err
	}
	if targetClusterId != nil {
		if _, err := findOwnedCluster(ctx, uow, userId, *targetClusterId); err != nil {
			return nil, err
		}
	}
	res := &dto.MoveCollectionResponse{
		CollectionId:  collectionId,
		FromClusterId: collection.ClusterId,
		ToClusterId:   targetClusterId,
	}
	if sameCluster(collection.ClusterId, targetClusterId) {
		return res, nil
	}
	if err := assignCollections(ctx, uow, []uuid.UUID{collectionId}, targetClusterId); err != nil {
		return nil, err
	}
	return res, nil
}

// Split

func (s *clusterTopologyService) Split(ctx context.Context, userId uuid.UUID, req *dto.SplitClusterRequest) (*dto.SplitClusterResponse, error) {
	maxGroups := req.MaxClustersAfterSplit
	if maxGroups <= 0 {
		maxGroups = constant.DefaultMaxClustersAfterSplit
	}
	minPer := req.MinCollectionsPerCluster
	if minPer <= 0 {
		minPer = constant.DefaultMinCollectionsPerCluster
	}

	var res *dto.SplitClusterResponse
	err := s.mutate(ctx, userId, constant.ClusterEventSplit, "user request", func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		ev.SourceClusterId = uuidPtr(req.ClusterId)
		cluster, err := findOwnedCluster(ctx, uow, userId, req.ClusterId)
		if err != nil {
			return err
		}
		res, err = s.splitInTx(ctx, uow, cluster, maxGroups, minPer, req.PreserveOriginal)
		if err != nil {
			return err
		}
		if !res.Success {
			return &refusal{reason: res.Reason}
		}
		fillSplitEvent(ev, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func fillSplitEvent(ev *entity.ClusterEvent, res *dto.SplitClusterResponse) {
	for _, g := range res.NewClusters {
		ev.TargetClusterIds = append(ev.TargetClusterIds, g.ClusterId)
		ev.AffectedCollectionIds = append(ev.AffectedCollectionIds, g.CollectionIds...)
	}
	ev.Metadata["original_retained"] = res.OriginalRetained
	ev.Metadata["retained_collections"] = len(res.RetainedIds)
}

type splitGroup struct {
	seed    *entity.Collection
	members []*entity.Collection
}

// groupForSplit walks members in name order. Each ungrouped collection seeds a
// group that absorbs every ungrouped collection more similar to it than the
// seed threshold; once maxGroups exist the rest join the group with the most
// similar seed.
func groupForSplit(sim NameSimilarity, members []*entity.Collection, maxGroups int) []*splitGroup {
	groups := make([]*splitGroup, 0, maxGroups)
	grouped := make(map[uuid.UUID]bool, len(members))

	for _, seed := range members {
		if len(groups) >= maxGroups {
			break
		}
		if grouped[seed.Id] {
			continue
		}
		g := &splitGroup{seed: seed, members: []*entity.Collection{seed}}
		grouped[seed.Id] = true
		for _, c := range members {
			if grouped[c.Id] {
				continue
			}
			if sim(seed.Name, c.Name) > constant.SplitSeedSimilarityThreshold {
				g.members = append(g.members, c)
				grouped[c.Id] = true
			}
		}
		groups = append(groups, g)
	}

	for _, c := range members {
		if grouped[c.Id] {
			continue
		}
		best := 0
		bestScore := -1.0
		for i, g := range groups {
			if score := sim(g.seed.Name, c.Name); score > bestScore {
				best, bestScore = i, score
			}
		}
		groups[best].members = append(groups[best].members, c)
		grouped[c.Id] = true
	}
	return groups
}

func (s *clusterTopologyService) splitInTx(ctx context.Context, uow unitofwork.UnitOfWork, cluster *entity.Cluster, maxGroups, minPer int, preserveOriginal bool) (*dto.SplitClusterResponse, error) {
	res := &dto.SplitClusterResponse{
		OriginalClusterId: cluster.Id,
		OriginalRetained:  true,
		RetainedIds:       make([]uuid.UUID, 0),
		NewClusters:       make([]*dto.SplitGroup, 0),
	}

	membersByCluster, err := loadMembers(ctx, uow, cluster.UserId, []uuid.UUID{cluster.Id})
	if err != nil {
		return nil, err
	}
	members := membersByCluster[cluster.Id]
	res.RetainedIds = collectionIDs(members)
	if len(members) < 2*minPer {
		res.Reason = reasonInsufficientMembers
		return res, nil
	}

	groups := groupForSplit(s.similarity, members, maxGroups)
	materialized := make([]*splitGroup, 0, len(groups))
	retained := make([]*entity.Collection, 0)
	for _, g := range groups {
		if len(g.members) >= minPer {
			materialized = append(materialized, g)
		} else {
			retained = append(retained, g.members...)
		}
	}
	if len(materialized) < 2 {
		res.Reason = reasonTooSimilar
		return res, nil
	}

	for i, g := range materialized {
		base := splitGroupName(cluster.Name, collectionNames(g.members), i+1)
		name, err := uniqueClusterName(ctx, uow.ClusterRepository(), cluster.UserId, base)
		if err != nil {
			return nil, err
		}
		child := &entity.Cluster{
			Id:          uuid.New(),
			UserId:      cluster.UserId,
			Name:        name,
			Description: fmt.Sprintf("Split from %s", cluster.Name),
			Type:        constant.ClusterTypeContentBased,
			Settings:    cluster.Settings,
			AutoManaged: cluster.AutoManaged,
			CreatedAt:   s.now(),
		}
		if err := createClusterRow(ctx, uow.ClusterRepository(), child); err != nil {
			return nil, err
		}
		ids := collectionIDs(g.members)
		if err := assignCollections(ctx, uow, ids, &child.Id); err != nil {
			return nil, err
		}
		res.NewClusters = append(res.NewClusters, &dto.SplitGroup{ClusterId: child.Id, Name: child.Name, CollectionIds: ids})
	}

	res.RetainedIds = collectionIDs(retained)
	if !preserveOriginal && len(retained) == 0 {
		if err := removeCluster(ctx, uow, cluster.Id); err != nil {
			return nil, err
		}
		res.OriginalRetained = false
	}
	res.Success = true
	return res, nil
}

func splitGroupName(original string, memberNames []string, ordinal int) string {
	if common := similarity.CommonTokens(memberNames); len(common) > 0 {
		return fmt.Sprintf("%s – %s", original, similarity.TitleCase(common))
	}
	return fmt.Sprintf("%s Part %d", original, ordinal)
}

// Merge

func (s *clusterTopologyService) Merge(ctx context.Context, userId uuid.UUID, req *dto.MergeClustersRequest) (*dto.MergeClustersResponse, error) {
	ids := dedupeIDs(req.ClusterIds)
	if len(ids) < 2 {
		return nil, fmt.Errorf("merge needs at least two distinct clusters: %w", apperror.ErrInsufficientData)
	}

	var res *dto.MergeClustersResponse
	err := s.mutate(ctx, userId, constant.ClusterEventMerge, "user request", func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		var err error
		res, err = s.mergeInTx(ctx, uow, userId, ids, req.Name, req.Description, req.Force)
		if err != nil {
			return err
		}
		if !res.Success {
			ev.Metadata["source_cluster_ids"] = uuidStrings(ids)
			return &refusal{reason: res.Reason}
		}
		fillMergeEvent(ev, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func fillMergeEvent(ev *entity.ClusterEvent, res *dto.MergeClustersResponse) {
	if res.MergedClusterId != nil {
		ev.TargetClusterIds = append(ev.TargetClusterIds, *res.MergedClusterId)
	}
	ev.AffectedCollectionIds = append(ev.AffectedCollectionIds, res.CollectionIds...)
	ev.Metadata["source_cluster_ids"] = uuidStrings(res.SourceClusterIds)
	ev.Metadata["name"] = res.Name
}

// mergeCompatibility gates a merge on the name similarity of every
// cross-cluster member pair. No pairs means nothing contradicts the merge.
func mergeCompatibility(sim NameSimilarity, clusters []*entity.Cluster, groups [][]*entity.Collection) *dto.MergeCompatibility {
	pairs := crossPairs(sim, groups)
	c := &dto.MergeCompatibility{Compatible: true, PairCount: len(pairs)}
	if len(pairs) == 0 {
		return c
	}

	total := 0.0
	weakest := pairs[0]
	for _, p := range pairs {
		total += p.Similarity
		if p.Similarity < weakest.Similarity {
			weakest = p
		}
	}
	c.AverageSimilarity = round4(total / float64(len(pairs)))
	c.MinimumSimilarity = round4(weakest.Similarity)
	c.WeakestPair = weakest
	c.Compatible = c.AverageSimilarity >= constant.MergeMinAverageSimilarity &&
		c.MinimumSimilarity >= constant.MergeMinPairSimilarity

	if !c.Compatible {
		if c.MinimumSimilarity < constant.MergeMinPairSimilarity {
			c.Suggestions = append(c.Suggestions, fmt.Sprintf("Consider moving %s elsewhere", weakest.SecondName))
		}
		if len(clusters) > 2 {
			c.Suggestions = append(c.Suggestions, "Merge only the most similar clusters")
		}
		if c.AverageSimilarity < constant.MergeMinAverageSimilarity {
			c.Suggestions = append(c.Suggestions, "Keep these clusters separate or rename collections to reflect shared topics")
		}
	}
	return c
}

func (s *clusterTopologyService) mergeInTx(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, ids []uuid.UUID, name, description string, force bool) (*dto.MergeClustersResponse, error) {
	clusters, err := uow.ClusterRepository().FindAll(ctx,
		specification.ByIDs{IDs: ids},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, apperror.Persistence("load merge sources", err)
	}
	if len(clusters) != len(ids) {
		return nil, apperror.NotFound("one or more clusters")
	}
	byID := make(map[uuid.UUID]*entity.Cluster, len(clusters))
	for _, c := range clusters {
		byID[c.Id] = c
	}
	ordered := make([]*entity.Cluster, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}

	members, err := loadMembers(ctx, uow, userId, ids)
	if err != nil {
		return nil, err
	}
	groups := make([][]*entity.Collection, 0, len(ordered))
	all := make([]*entity.Collection, 0)
	names := make([]string, 0, len(ordered))
	autoManaged := true
	for _, c := range ordered {
		groups = append(groups, members[c.Id])
		all = append(all, members[c.Id]...)
		names = append(names, c.Name)
		autoManaged = autoManaged && c.AutoManaged
	}

	res := &dto.MergeClustersResponse{
		SourceClusterIds: ids,
		CollectionIds:    collectionIDs(all),
		Compatibility:    mergeCompatibility(s.similarity, ordered, groups),
	}
	if !force && !res.Compatibility.Compatible {
		res.Reason = reasonIncompatibleMerge
		return res, nil
	}

	for _, id := range ids {
		if err := removeCluster(ctx, uow, id); err != nil {
			return nil, err
		}
	}

	base := strings.TrimSpace(name)
	if base == "" {
		base = mergedClusterName(names)
	}
	finalName, err := uniqueClusterName(ctx, uow.ClusterRepository(), userId, base)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = "Merged from " + strings.Join(names, ", ")
	}
	merged := &entity.Cluster{
		Id:          uuid.New(),
		UserId:      userId,
		Name:        finalName,
		Description: description,
		Type:        constant.ClusterTypeMerged,
		AutoManaged: autoManaged,
		CreatedAt:   s.now(),
	}
	if err := createClusterRow(ctx, uow.ClusterRepository(), merged); err != nil {
		return nil, err
	}
	if err := assignCollections(ctx, uow, res.CollectionIds, &merged.Id); err != nil {
		return nil, err
	}

	res.Success = true
	res.MergedClusterId = &merged.Id
	res.Name = merged.Name
	return res, nil
}

func mergedClusterName(names []string) string {
	if common := similarity.CommonTokens(names); len(common) > 0 {
		return similarity.TitleCase(common)
	}
	return strings.Join(names, " + ")
}

// Rebalance

func rebalanceDefaults(req *dto.RebalanceRequest) (maxSize, minSize int, threshold float64) {
	maxSize, minSize, threshold = req.MaxClusterSize, req.MinClusterSize, req.SimilarityThreshold
	if maxSize <= 0 {
		maxSize = constant.DefaultRebalanceMaxClusterSize
	}
	if minSize <= 0 {
		minSize = constant.DefaultRebalanceMinClusterSize
	}
	if threshold <= 0 {
		threshold = constant.DefaultRebalanceSimilarity
	}
	return maxSize, minSize, threshold
}

func (s *clusterTopologyService) AnalyzeRebalance(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceAnalysis, error) {
	maxSize, minSize, threshold := rebalanceDefaults(req)
	uow := s.uowFactory.NewUnitOfWork(ctx)
	clusters, members, err := loadUserGraph(ctx, uow, userId)
	if err != nil {
		return nil, err
	}
	return analyzeRebalance(s.similarity, clusters, members, maxSize, minSize, threshold), nil
}

// analyzeRebalance finds oversized and undersized clusters and collections
// that fit another cluster better than their own.
func analyzeRebalance(sim NameSimilarity, clusters []*entity.Cluster, members map[uuid.UUID][]*entity.Collection, maxSize, minSize int, threshold float64) *dto.RebalanceAnalysis {
	a := &dto.RebalanceAnalysis{
		Oversized:  make([]*dto.ClusterSizeItem, 0),
		Undersized: make([]*dto.ClusterSizeItem, 0),
		Moves:      make([]*dto.MoveSuggestion, 0),
	}

	for _, c := range clusters {
		size := len(members[c.Id])
		item := &dto.ClusterSizeItem{ClusterId: c.Id, Name: c.Name, Size: size}
		switch {
		case size > maxSize:
			a.Oversized = append(a.Oversized, item)
		case size > 0 && size < minSize:
			a.Undersized = append(a.Undersized, item)
		}
	}

	for _, own := range clusters {
		for _, col := range members[own.Id] {
			current, _ := meanSimilarity(sim, col, members[own.Id])
			var best *entity.Cluster
			bestScore := 0.0
			for _, other := range clusters {
				if other.Id == own.Id {
					continue
				}
				score, ok := meanSimilarity(sim, col, members[other.Id])
				if ok && score > bestScore {
					best, bestScore = other, score
				}
			}
			if best != nil && bestScore > current && bestScore > threshold {
				a.Moves = append(a.Moves, &dto.MoveSuggestion{
					CollectionId:    col.Id,
					CollectionName:  col.Name,
					FromClusterId:   own.Id,
					FromClusterName: own.Name,
					ToClusterId:     best.Id,
					ToClusterName:   best.Name,
					CurrentScore:    round4(current),
					TargetScore:     round4(bestScore),
				})
			}
		}
	}

	a.NeedsChange = len(a.Oversized) > 0 || len(a.Undersized) > 0 || len(a.Moves) > 0
	return a
}

// undersizedGroups joins undersized clusters transitively over pairs whose
// cluster-level similarity reaches threshold. Singletons are omitted.
func undersizedGroups(sim NameSimilarity, undersized []*dto.ClusterSizeItem, members map[uuid.UUID][]*entity.Collection, threshold float64) [][]uuid.UUID {
	parent := make([]int, len(undersized))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < len(undersized); i++ {
		for j := i + 1; j < len(undersized); j++ {
			score := groupSimilarity(sim, members[undersized[i].ClusterId], members[undersized[j].ClusterId])
			if score >= threshold {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	byRoot := make(map[int][]uuid.UUID)
	roots := make([]int, 0)
	for i, item := range undersized {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], item.ClusterId)
	}
	out := make([][]uuid.UUID, 0)
	for _, r := range roots {
		if len(byRoot[r]) >= 2 {
			out = append(out, byRoot[r])
		}
	}
	return out
}

func (s *clusterTopologyService) Rebalance(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceResponse, error) {
	if req.DryRun {
		analysis, err := s.AnalyzeRebalance(ctx, userId, req)
		if err != nil {
			return nil, err
		}
		return &dto.RebalanceResponse{
			DryRun:              true,
			Analysis:            analysis,
			AffectedClusterIds:  make([]uuid.UUID, 0),
			AffectedCollections: make([]uuid.UUID, 0),
		}, nil
	}

	maxSize, minSize, threshold := rebalanceDefaults(req)
	var res *dto.RebalanceResponse
	err := s.mutate(ctx, userId, constant.ClusterEventRebalance, "rebalance", func(ctx context.Context, uow unitofwork.UnitOfWork, ev *entity.ClusterEvent) error {
		clusters, members, err := loadUserGraph(ctx, uow, userId)
		if err != nil {
			return err
		}
		analysis := analyzeRebalance(s.similarity, clusters, members, maxSize, minSize, threshold)
		res = &dto.RebalanceResponse{Analysis: analysis}

		clusterSet := newIDSet()
		collectionSet := newIDSet()
		byID := make(map[uuid.UUID]*entity.Cluster, len(clusters))
		for _, c := range clusters {
			byID[c.Id] = c
		}

		for _, item := range analysis.Oversized {
			groupsWanted := int(math.Ceil(float64(item.Size) / float64(maxSize)))
			if groupsWanted < 2 {
				groupsWanted = 2
			}
			split, err := s.splitInTx(ctx, uow, byID[item.ClusterId], groupsWanted, max(1, minSize), false)
			if err != nil {
				return err
			}
			res.Splits = append(res.Splits, split)
			if split.Success {
				clusterSet.add(item.ClusterId)
				for _, g := range split.NewClusters {
					clusterSet.add(g.ClusterId)
					collectionSet.add(g.CollectionIds...)
				}
			}
		}

		for _, group := range undersizedGroups(s.similarity, analysis.Undersized, members, threshold) {
			merged, err := s.mergeInTx(ctx, uow, userId, group, "", "", true)
			if err != nil {
				return err
			}
			res.Merges = append(res.Merges, merged)
			clusterSet.add(group...)
			if merged.MergedClusterId != nil {
				clusterSet.add(*merged.MergedClusterId)
			}
			collectionSet.add(merged.CollectionIds...)
		}

		for _, mv := range analysis.Moves {
			applied, err := s.applyMoveIfValid(ctx, uow, userId, mv)
			if err != nil {
				return err
			}
			if applied {
				res.MovesApplied = append(res.MovesApplied, mv)
				clusterSet.add(mv.FromClusterId, mv.ToClusterId)
				collectionSet.add(mv.CollectionId)
			}
		}

		res.AffectedClusterIds = clusterSet.ids
		res.AffectedCollections = collectionSet.ids
		ev.TargetClusterIds = clusterSet.ids
		ev.AffectedCollectionIds = collectionSet.ids
		ev.Metadata["splits"] = len(res.Splits)
		ev.Metadata["merges"] = len(res.Merges)
		ev.Metadata["moves"] = len(res.MovesApplied)
		ev.Metadata["max_cluster_size"] = maxSize
		ev.Metadata["min_cluster_size"] = minSize
		ev.Metadata["similarity_threshold"] = threshold
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyMoveIfValid moves a collection only when both clusters survived the
// earlier steps and the collection still sits in the source.
func (s *clusterTopologyService) applyMoveIfValid(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, mv *dto.MoveSuggestion) (bool, error) {
	for _, id := range []uuid.UUID{mv.FromClusterId, mv.ToClusterId} {
		c, err := uow.ClusterRepository().FindOne(ctx, specification.ByID{ID: id}, specification.UserOwnedBy{UserID: userId})
		if err != nil {
			return false, apperror.Persistence("check move cluster", err)
		}
		if c == nil {
			return false, nil
		}
	}
	collection, err := uow.CollectionRepository().FindOne(ctx, specification.ByID{ID: mv.CollectionId}, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return false, apperror.Persistence("check move collection", err)
	}
	if collection == nil || collection.ClusterId == nil || *collection.ClusterId != mv.FromClusterId {
		return false, nil
	}
	if err := assignCollections(ctx, uow, []uuid.UUID{mv.CollectionId}, &mv.ToClusterId); err != nil {
		return false, err
	}
	return true, nil
}

type idSet struct {
	seen map[uuid.UUID]bool
	ids  []uuid.UUID
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[uuid.UUID]bool), ids: make([]uuid.UUID, 0)}
}

func (s *idSet) add(ids ...uuid.UUID) {
	for _, id := range ids {
		if !s.seen[id] {
			s.seen[id] = true
			s.ids = append(s.ids, id)
		}
	}
}

func isClusterType(t string) bool {
	for _, known := range constant.ClusterTypes {
		if known == t {
			return true
		}
	}
	return false
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
