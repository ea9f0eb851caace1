package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/metrics"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/clusterhealth"
	"cluster-intelligence-be/pkg/clustering"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IClusterService interface {
	CreateCluster(ctx context.Context, userId uuid.UUID, req *dto.CreateClusterRequest) (*dto.ClusterResponse, error)
	GetUserClusters(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterResponse, error)
	GetCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*dto.ClusterResponse, error)
	UpdateCluster(ctx context.Context, userId uuid.UUID, req *dto.UpdateClusterRequest) (*dto.ClusterResponse, error)
	DeleteCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) error
	AddCollectionToCluster(ctx context.Context, userId uuid.UUID, req *dto.ClusterMembershipRequest) (*dto.MoveCollectionResponse, error)
	RemoveCollectionFromCluster(ctx context.Context, userId uuid.UUID, req *dto.ClusterMembershipRequest) (*dto.MoveCollectionResponse, error)
	GetClusterStats(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*dto.ClusterStatsResponse, error)
	AutoGenerateClusterForCollection(ctx context.Context, userId uuid.UUID, collectionId uuid.UUID) (*dto.AutoGenerateClusterResponse, error)
	AnalyzeClusterHealth(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*clusterhealth.Report, error)
	GetGlobalHealth(ctx context.Context, userId uuid.UUID) (*clusterhealth.GlobalReport, error)
	RefreshHealth(ctx context.Context, userId uuid.UUID, clusterIds []uuid.UUID) (int, error)
	SplitCluster(ctx context.Context, userId uuid.UUID, req *dto.SplitClusterRequest) (*dto.SplitClusterResponse, error)
	MergeClusters(ctx context.Context, userId uuid.UUID, req *dto.MergeClustersRequest) (*dto.MergeClustersResponse, error)
	RebalanceClusters(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceResponse, error)
	GetContentBasedClusters(ctx context.Context, userId uuid.UUID, req *dto.ContentClustersRequest) (*clustering.Result, error)
	GetClusterOverlaps(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterOverlap, error)
	GetBridgeDocuments(ctx context.Context, userId uuid.UUID, threshold float64, limit int) (*dto.BridgeDocumentsResponse, error)
	ListClusterEvents(ctx context.Context, userId uuid.UUID, req *dto.ListClusterEventsRequest) ([]*dto.ClusterEventResponse, error)
}

type ClusterServiceConfig struct {
	DefaultMaxClusters    int
	DefaultMinClusterSize int
}

type clusterService struct {
	uowFactory   unitofwork.RepositoryFactory
	topology     IClusterTopologyService
	crossCluster ICrossClusterService
	clusterer    *clustering.Clusterer
	logger       logger.ILogger
	config       ClusterServiceConfig
	now          func() time.Time
}

func NewClusterService(
	uowFactory unitofwork.RepositoryFactory,
	topology IClusterTopologyService,
	crossCluster ICrossClusterService,
	clusterer *clustering.Clusterer,
	log logger.ILogger,
	config ClusterServiceConfig,
) IClusterService {
	if config.DefaultMaxClusters <= 0 {
		config.DefaultMaxClusters = clustering.DefaultMaxClusters
	}
	if config.DefaultMinClusterSize <= 0 {
		config.DefaultMinClusterSize = clustering.DefaultMinClusterSize
	}
	return &clusterService{
		uowFactory:   uowFactory,
		topology:     topology,
		crossCluster: crossCluster,
		clusterer:    clusterer,
		logger:       log,
		config:       config,
		now:          timeNow,
	}
}

func (c *clusterService) CreateCluster(ctx context.Context, userId uuid.UUID, req *dto.CreateClusterRequest) (*dto.ClusterResponse, error) {
	cluster, err := c.topology.CreateCluster(ctx, userId, ClusterDraft{
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Settings:      req.Settings,
		AutoManaged:   req.AutoManaged,
		CollectionIds: req.CollectionIds,
		EventType:     constant.ClusterEventCreate,
		Reason:        "user request",
	})
	if err != nil {
		return nil, err
	}
	return c.GetCluster(ctx, userId, cluster.Id)
}

func (c *clusterService) GetUserClusters(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	clusters, members, err := loadUserGraph(ctx, uow, userId)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.ClusterResponse, 0, len(clusters))
	for _, cluster := range clusters {
		result = append(result, toClusterResponse(cluster, members[cluster.Id]))
	}
	return result, nil
}

func (c *clusterService) GetCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*dto.ClusterResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	cluster, err := findOwnedCluster(ctx, uow, userId, clusterId)
	if err != nil {
		return nil, err
	}
	members, err := loadMembers(ctx, uow, userId, []uuid.UUID{clusterId})
	if err != nil {
		return nil, err
	}
	counts, err := uow.DocumentRepository().CountByCollection(ctx, collectionIDs(members[clusterId]))
	if err != nil {
		return nil, apperror.Persistence("count documents", err)
	}

	res := toClusterResponse(cluster, members[clusterId])
	res.Collections = make([]*dto.ClusterCollectionItem, 0, len(members[clusterId]))
	for _, col := range members[clusterId] {
		res.Collections = append(res.Collections, &dto.ClusterCollectionItem{
			Id:            col.Id,
			Name:          col.Name,
			DocumentCount: counts[col.Id],
			UpdatedAt:     col.UpdatedAt,
		})
	}
	return res, nil
}

// UpdateCluster changes descriptive fields only. Membership goes through the
// topology service.
func (c *clusterService) UpdateCluster(ctx context.Context, userId uuid.UUID, req *dto.UpdateClusterRequest) (*dto.ClusterResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	cluster, err := findOwnedCluster(ctx, uow, userId, req.Id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.InvalidArgument("cluster name is required")
		}
		if name != cluster.Name {
			existing, err := uow.ClusterRepository().FindOne(ctx,
				specification.UserOwnedBy{UserID: userId},
				specification.ByName{Name: name},
			)
			if err != nil {
				return nil, apperror.Persistence("check cluster name", err)
			}
			if existing != nil {
				return nil, apperror.Conflict("cluster name %q already exists", name)
			}
			cluster.Name = name
		}
	}
	if req.Description != nil {
		cluster.Description = *req.Description
	}
	if req.Settings != nil {
		cluster.Settings = req.Settings
	}
	if req.AutoManaged != nil {
		cluster.AutoManaged = *req.AutoManaged
	}

	now := c.now()
	cluster.UpdatedAt = &now
	if err := uow.ClusterRepository().Update(ctx, cluster); err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, apperror.Conflict("cluster name %q already exists", cluster.Name)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperror.NotFound("cluster %s", cluster.Id)
		}
		return nil, apperror.Persistence("update cluster", err)
	}
	return c.GetCluster(ctx, userId, cluster.Id)
}

func (c *clusterService) DeleteCluster(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) error {
	return c.topology.DeleteCluster(ctx, userId, clusterId)
}

func (c *clusterService) AddCollectionToCluster(ctx context.Context, userId uuid.UUID, req *dto.ClusterMembershipRequest) (*dto.MoveCollectionResponse, error) {
	return c.topology.Move(ctx, userId, req.CollectionId, &req.ClusterId, "add collection")
}

func (c *clusterService) RemoveCollectionFromCluster(ctx context.Context, userId uuid.UUID, req *dto.ClusterMembershipRequest) (*dto.MoveCollectionResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	collection, err := findOwnedCollection(ctx, uow, userId, req.CollectionId)
	if err != nil {
		return nil, err
	}
	if collection.ClusterId == nil || *collection.ClusterId != req.ClusterId {
		return nil, apperror.NotFound("collection %s in cluster %s", req.CollectionId, req.ClusterId)
	}
	return c.topology.Move(ctx, userId, req.CollectionId, nil, "remove collection")
}

func (c *clusterService) GetClusterStats(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*dto.ClusterStatsResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	cluster, err := findOwnedCluster(ctx, uow, userId, clusterId)
	if err != nil {
		return nil, err
	}
	input, err := c.healthInput(ctx, uow, userId, cluster)
	if err != nil {
		return nil, err
	}

	res := &dto.ClusterStatsResponse{
		ClusterId:       cluster.Id,
		Name:            cluster.Name,
		CollectionCount: len(input.Members),
		Health:          cluster.Health,
	}
	for _, m := range input.Members {
		res.DocumentCount += m.DocumentCount
		if res.LastActivity == nil || m.LastActivity.After(*res.LastActivity) {
			last := m.LastActivity
			res.LastActivity = &last
		}
	}
	return res, nil
}

func (c *clusterService) AutoGenerateClusterForCollection(ctx context.Context, userId uuid.UUID, collectionId uuid.UUID) (*dto.AutoGenerateClusterResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	collection, err := findOwnedCollection(ctx, uow, userId, collectionId)
	if err != nil {
		return nil, err
	}
	if collection.ClusterId != nil {
		return nil, apperror.Conflict("collection %s already belongs to a cluster", collectionId)
	}

	res := &dto.AutoGenerateClusterResponse{NameSource: "fallback"}
	name := strings.TrimSpace(collection.Name) + " Cluster"
	metadata := map[string]interface{}{"collection_name": collection.Name}

	if c.clusterer != nil && collection.VectorRef != "" {
		result, err := c.clusterer.ClusterCollection(ctx, collection.VectorRef, c.config.DefaultMaxClusters, c.config.DefaultMinClusterSize)
		switch {
		case err != nil:
			c.logger.Warn(logger.ModuleCluster, "Content clustering failed, using fallback name", map[string]interface{}{
				"collection_id": collectionId.String(),
				"error":         err.Error(),
			})
		case result.Success && !strings.HasPrefix(result.Clusters[0].Name, "Content Group"):
			name = result.Clusters[0].Name
			res.NameSource = "content"
			res.Diagnostics = &result.Diagnostics
			metadata["content_clusters"] = len(result.Clusters)
		default:
			res.Diagnostics = &result.Diagnostics
		}
	}

	cluster, err := c.topology.CreateCluster(ctx, userId, ClusterDraft{
		Name:          name,
		Description:   "Generated from the content of " + collection.Name,
		Type:          constant.ClusterTypeContentBased,
		AutoManaged:   true,
		CollectionIds: []uuid.UUID{collectionId},
		EventType:     constant.ClusterEventAutoGenerate,
		UniqueName:    true,
		Reason:        "auto generate for collection",
		Metadata:      metadata,
	})
	if err != nil {
		return nil, err
	}

	res.Cluster, err = c.GetCluster(ctx, userId, cluster.Id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// healthInput gathers member document counts and activity for one cluster.
func (c *clusterService) healthInput(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, cluster *entity.Cluster) (clusterhealth.ClusterInput, error) {
	inputs, err := c.healthInputs(ctx, uow, userId, []*entity.Cluster{cluster})
	if err != nil {
		return clusterhealth.ClusterInput{}, err
	}
	return inputs[0], nil
}

func (c *clusterService) healthInputs(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, clusters []*entity.Cluster) ([]clusterhealth.ClusterInput, error) {
	ids := make([]uuid.UUID, 0, len(clusters))
	for _, cl := range clusters {
		ids = append(ids, cl.Id)
	}
	members, err := loadMembers(ctx, uow, userId, ids)
	if err != nil {
		return nil, err
	}

	all := make([]uuid.UUID, 0)
	for _, id := range ids {
		all = append(all, collectionIDs(members[id])...)
	}
	counts := map[uuid.UUID]int64{}
	if len(all) > 0 {
		counts, err = uow.DocumentRepository().CountByCollection(ctx, all)
		if err != nil {
			return nil, apperror.Persistence("count documents", err)
		}
	}

	inputs := make([]clusterhealth.ClusterInput, 0, len(clusters))
	for _, cl := range clusters {
		in := clusterhealth.ClusterInput{ClusterID: cl.Id.String(), Name: cl.Name}
		for _, col := range members[cl.Id] {
			in.Members = append(in.Members, clusterhealth.Member{
				CollectionID:  col.Id.String(),
				DocumentCount: counts[col.Id],
				LastActivity:  col.LastActivity(),
			})
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func snapshotFromReport(r clusterhealth.Report) *entity.HealthSnapshot {
	return &entity.HealthSnapshot{
		Score:           r.HealthScore,
		Status:          r.Status,
		SizeHealth:      r.SizeHealth,
		ContentHealth:   r.ContentHealth,
		ActivityHealth:  r.ActivityHealth,
		MemberCount:     r.MemberCount,
		Issues:          r.Issues,
		Recommendations: r.Recommendations,
		AnalyzedAt:      r.AnalyzedAt,
	}
}

// persistSnapshot writes the snapshot columns only. A cluster merged or
// deleted since it was read is NotFound and is not recreated.
func (c *clusterService) persistSnapshot(ctx context.Context, uow unitofwork.UnitOfWork, cluster *entity.Cluster, report clusterhealth.Report) error {
	snapshot := snapshotFromReport(report)
	analyzedAt := report.AnalyzedAt
	if err := uow.ClusterRepository().UpdateHealth(ctx, cluster.Id, snapshot, analyzedAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("cluster %s", cluster.Id)
		}
		return apperror.Persistence("persist health snapshot", err)
	}
	cluster.Health = snapshot
	cluster.LastAnalyzedAt = &analyzedAt
	return nil
}

func (c *clusterService) AnalyzeClusterHealth(ctx context.Context, userId uuid.UUID, clusterId uuid.UUID) (*clusterhealth.Report, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	cluster, err := findOwnedCluster(ctx, uow, userId, clusterId)
	if err != nil {
		return nil, err
	}
	input, err := c.healthInput(ctx, uow, userId, cluster)
	if err != nil {
		return nil, err
	}

	report := clusterhealth.AnalyzeCluster(input, c.now())
	if err := c.persistSnapshot(ctx, uow, cluster, report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *clusterService) GetGlobalHealth(ctx context.Context, userId uuid.UUID) (*clusterhealth.GlobalReport, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	clusters, err := uow.ClusterRepository().FindAll(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, apperror.Persistence("load clusters", err)
	}
	sortClustersByName(clusters)
	inputs, err := c.healthInputs(ctx, uow, userId, clusters)
	if err != nil {
		return nil, err
	}

	report := clusterhealth.AnalyzeAll(inputs, c.now())
	for _, status := range []string{clusterhealth.StatusHealthy, clusterhealth.StatusFair, clusterhealth.StatusPoor, clusterhealth.StatusCritical} {
		metrics.Get().HealthStatusClusters.WithLabelValues(status).Set(float64(report.StatusCounts[status]))
	}
	return &report, nil
}

// RefreshHealth recomputes and stores the snapshot of every listed cluster
// that still exists. It returns how many were refreshed.
func (c *clusterService) RefreshHealth(ctx context.Context, userId uuid.UUID, clusterIds []uuid.UUID) (int, error) {
	ids := dedupeIDs(clusterIds)
	if len(ids) == 0 {
		return 0, nil
	}
	uow := c.uowFactory.NewUnitOfWork(ctx)
	clusters, err := uow.ClusterRepository().FindAll(ctx,
		specification.ByIDs{IDs: ids},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return 0, apperror.Persistence("load clusters", err)
	}
	inputs, err := c.healthInputs(ctx, uow, userId, clusters)
	if err != nil {
		return 0, err
	}

	now := c.now()
	refreshed := 0
	for i, cl := range clusters {
		err := c.persistSnapshot(ctx, uow, cl, clusterhealth.AnalyzeCluster(inputs[i], now))
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			c.logger.Debug(logger.ModuleCluster, "Cluster gone before health refresh", map[string]interface{}{
				"cluster_id": cl.Id.String(),
			})
		case err != nil:
			return refreshed, err
		default:
			refreshed++
		}
	}
	return refreshed, nil
}

func (c *clusterService) SplitCluster(ctx context.Context, userId uuid.UUID, req *dto.SplitClusterRequest) (*dto.SplitClusterResponse, error) {
	return c.topology.Split(ctx, userId, req)
}

func (c *clusterService) MergeClusters(ctx context.Context, userId uuid.UUID, req *dto.MergeClustersRequest) (*dto.MergeClustersResponse, error) {
	return c.topology.Merge(ctx, userId, req)
}

func (c *clusterService) RebalanceClusters(ctx context.Context, userId uuid.UUID, req *dto.RebalanceRequest) (*dto.RebalanceResponse, error) {
	return c.topology.Rebalance(ctx, userId, req)
}

func (c *clusterService) GetContentBasedClusters(ctx context.Context, userId uuid.UUID, req *dto.ContentClustersRequest) (*clustering.Result, error) {
	if c.clusterer == nil {
		return nil, apperror.External("content clusters", clustering.ErrInvalidArgument)
	}
	uow := c.uowFactory.NewUnitOfWork(ctx)
	collection, err := findOwnedCollection(ctx, uow, userId, req.CollectionId)
	if err != nil {
		return nil, err
	}

	maxClusters := req.MaxClusters
	if maxClusters <= 0 {
		maxClusters = c.config.DefaultMaxClusters
	}
	minSize := req.MinClusterSize
	if minSize <= 0 {
		minSize = c.config.DefaultMinClusterSize
	}

	started := time.Now()
	result, err := c.clusterer.ClusterCollection(ctx, collection.VectorRef, maxClusters, minSize)
	metrics.Get().ClusteringDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.Get().ClusteringRunsTotal.WithLabelValues("failed").Inc()
		return nil, apperror.External("content clusters", err)
	}

	outcome := "success"
	if !result.Success {
		outcome = "insufficient_data"
	}
	metrics.Get().ClusteringRunsTotal.WithLabelValues(outcome).Inc()
	metrics.Get().ClusteringDroppedPoints.Add(float64(result.Diagnostics.DimensionMismatched + result.Diagnostics.DroppedMembers))
	return result, nil
}

func (c *clusterService) GetClusterOverlaps(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterOverlap, error) {
	return c.crossCluster.ComputeOverlaps(ctx, userId)
}

func (c *clusterService) GetBridgeDocuments(ctx context.Context, userId uuid.UUID, threshold float64, limit int) (*dto.BridgeDocumentsResponse, error) {
	return c.crossCluster.FindBridgeDocuments(ctx, userId, threshold, limit)
}

func (c *clusterService) ListClusterEvents(ctx context.Context, userId uuid.UUID, req *dto.ListClusterEventsRequest) ([]*dto.ClusterEventResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	specs := []specification.Specification{specification.UserOwnedBy{UserID: userId}}
	if req.EventType != "" {
		specs = append(specs, specification.ByEventType{EventType: req.EventType})
	}
	specs = append(specs,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)

	uow := c.uowFactory.NewUnitOfWork(ctx)
	evs, err := uow.ClusterEventRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, apperror.Persistence("list cluster events", err)
	}
	out := make([]*dto.ClusterEventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, toClusterEventResponse(e))
	}
	return out, nil
}
