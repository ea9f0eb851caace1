package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/clustering"
	"cluster-intelligence-be/pkg/similarity"
	"cluster-intelligence-be/pkg/vectorstore"

	"github.com/google/uuid"
)

// ICrossClusterService produces advisory analysis across a user's clusters.
// It never mutates the graph.
type ICrossClusterService interface {
	ComputeOverlaps(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterOverlap, error)
	FindBridgeDocuments(ctx context.Context, userId uuid.UUID, threshold float64, limit int) (*dto.BridgeDocumentsResponse, error)
}

type CrossClusterConfig struct {
	Dimension int
	PageSize  int
	MaxPoints int // per collection
	Timeout   time.Duration
	// BridgeThreshold applies when a request leaves the threshold unset.
	BridgeThreshold float64
}

type crossClusterService struct {
	uowFactory unitofwork.RepositoryFactory
	store      vectorstore.VectorStore
	logger     logger.ILogger
	similarity NameSimilarity
	config     CrossClusterConfig
}

type CrossClusterOption func(*crossClusterService)

// WithOverlapSimilarity replaces the collection similarity used for
// overlaps.
func WithOverlapSimilarity(sim NameSimilarity) CrossClusterOption {
	return func(s *crossClusterService) {
		if sim != nil {
			s.similarity = sim
		}
	}
}

func NewCrossClusterService(
	uowFactory unitofwork.RepositoryFactory,
	store vectorstore.VectorStore,
	log logger.ILogger,
	config CrossClusterConfig,
	opts ...CrossClusterOption,
) ICrossClusterService {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxPoints <= 0 {
		config.MaxPoints = 10000
	}
	if config.BridgeThreshold <= 0 || config.BridgeThreshold > 1 {
		config.BridgeThreshold = constant.DefaultBridgeThreshold
	}
	s := &crossClusterService{
		uowFactory: uowFactory,
		store:      store,
		logger:     log,
		similarity: DefaultNameSimilarity,
		config:     config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *crossClusterService) ComputeOverlaps(ctx context.Context, userId uuid.UUID) ([]*dto.ClusterOverlap, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	clusters, members, err := loadUserGraph(ctx, uow, userId)
	if err != nil {
		return nil, err
	}
	return computeOverlaps(s.similarity, clusters, members), nil
}

func computeOverlaps(sim NameSimilarity, clusters []*entity.Cluster, members map[uuid.UUID][]*entity.Collection) []*dto.ClusterOverlap {
	out := make([]*dto.ClusterOverlap, 0)
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]
			overlap := round4(groupSimilarity(sim, members[a.Id], members[b.Id]))
			if overlap <= 0 {
				continue
			}
			out = append(out, &dto.ClusterOverlap{
				FirstClusterId:  a.Id,
				FirstName:       a.Name,
				SecondClusterId: b.Id,
				SecondName:      b.Name,
				Overlap:         overlap,
				MergeCandidate:  overlap >= constant.OverlapMergeCandidate,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Overlap > out[j].Overlap
	})
	return out
}

type clusterPoints struct {
	cluster *entity.Cluster
	points  []*vectorstore.Point
	origin  map[*vectorstore.Point]uuid.UUID // point -> collection
}

func (s *crossClusterService) FindBridgeDocuments(ctx context.Context, userId uuid.UUID, threshold float64, limit int) (*dto.BridgeDocumentsResponse, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = s.config.BridgeThreshold
	}
	if limit <= 0 || limit > constant.MaxBridgeDocuments {
		limit = constant.MaxBridgeDocuments
	}
	res := &dto.BridgeDocumentsResponse{
		Threshold: threshold,
		Documents: make([]*dto.BridgeDocument, 0),
		Warnings:  make([]string, 0),
	}
	if s.store == nil {
		return nil, apperror.External("bridge documents", fmt.Errorf("no vector store configured"))
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	clusters, members, err := loadUserGraph(ctx, uow, userId)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	loaded := make([]*clusterPoints, 0, len(clusters))
	all := make([]*vectorstore.Point, 0)
	for _, c := range clusters {
		cp := &clusterPoints{cluster: c, origin: make(map[*vectorstore.Point]uuid.UUID)}
		for _, col := range members[c.Id] {
			if col.VectorRef == "" {
				continue
			}
			points, truncated, err := vectorstore.ScrollAll(ctx, s.store, col.VectorRef, s.config.PageSize, s.config.MaxPoints)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("cluster %s: collection %s unavailable: %v", c.Name, col.Name, err))
				s.logger.Warn(logger.ModuleCrossCluster, "Failed to scroll collection vectors", map[string]interface{}{
					"cluster_id":    c.Id.String(),
					"collection_id": col.Id.String(),
					"error":         err.Error(),
				})
				continue
			}
			if truncated {
				res.Warnings = append(res.Warnings, fmt.Sprintf("cluster %s: collection %s truncated to %d vectors", c.Name, col.Name, s.config.MaxPoints))
				s.logger.Warn(logger.ModuleCrossCluster, "Collection vectors truncated", map[string]interface{}{
					"cluster_id":    c.Id.String(),
					"collection_id": col.Id.String(),
					"max_points":    s.config.MaxPoints,
				})
			}
			for _, p := range points {
				cp.origin[p] = col.Id
			}
			cp.points = append(cp.points, points...)
		}
		loaded = append(loaded, cp)
		all = append(all, cp.points...)
	}

	_, dim, _ := clustering.FilterDimension(all, s.config.Dimension)

	type centroid struct {
		cluster *entity.Cluster
		vector  []float32
	}
	centroids := make([]centroid, 0, len(loaded))
	for _, cp := range loaded {
		valid, _, mismatched := clustering.FilterDimension(cp.points, dim)
		if mismatched > 0 && len(cp.points) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cluster %s: %d vectors skipped for dimension mismatch", cp.cluster.Name, mismatched))
		}
		cp.points = valid
		if len(valid) == 0 {
			continue
		}
		vectors := make([][]float32, len(valid))
		for i, p := range valid {
			vectors[i] = p.Vector
		}
		centroids = append(centroids, centroid{cluster: cp.cluster, vector: similarity.Mean(vectors)})
	}
	if len(centroids) < 2 {
		return res, nil
	}

	for _, cp := range loaded {
		for _, p := range cp.points {
			contributing := make([]*dto.BridgeCluster, 0)
			scores := make([]float64, 0)
			for _, c := range centroids {
				score := similarity.Cosine(p.Vector, c.vector)
				if score >= threshold {
					contributing = append(contributing, &dto.BridgeCluster{
						ClusterId:  c.cluster.Id,
						Name:       c.cluster.Name,
						Similarity: round4(score),
					})
					scores = append(scores, score)
				}
			}
			if len(contributing) < 2 {
				continue
			}
			sort.SliceStable(contributing, func(i, j int) bool {
				return contributing[i].Similarity > contributing[j].Similarity
			})
			res.Documents = append(res.Documents, &dto.BridgeDocument{
				PointId:      p.ID,
				DocumentId:   vectorstore.ExtractDocumentID(p),
				CollectionId: cp.origin[p],
				Filename:     vectorstore.ExtractFilename(p.Payload),
				Excerpt:      vectorstore.Excerpt(vectorstore.ExtractContent(p.Payload), 200),
				BridgeScore:  round4(similarity.HarmonicMean(scores)),
				Clusters:     contributing,
			})
		}
	}

	sort.SliceStable(res.Documents, func(i, j int) bool {
		return res.Documents[i].BridgeScore > res.Documents[j].BridgeScore
	})
	if len(res.Documents) > limit {
		res.Documents = res.Documents[:limit]
	}
	return res, nil
}
