// Package clustering groups the document vectors of a single collection into
// named content clusters with k-means++.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/similarity"
	"cluster-intelligence-be/pkg/vectorstore"
)

const (
	ReasonInsufficientData = "insufficient data"

	DefaultMaxIterations        = 50
	DefaultConvergenceThreshold = 1e-3
	DefaultMaxClusters          = 5
	DefaultMinClusterSize       = 3

	sampleExcerpts   = 3
	excerptRunes     = 200
	defaultMaxPoints = 20000
)

var ErrInvalidArgument = errors.New("invalid clustering argument")

// ContentCluster is an ephemeral grouping of one collection's vectors.
type ContentCluster struct {
	Index          int       `json:"index"`
	Name           string    `json:"name"`
	PointIDs       []string  `json:"point_ids"`
	DocumentIDs    []string  `json:"document_ids"`
	Centroid       []float32 `json:"-"`
	Cohesion       float64   `json:"cohesion"`
	MeanDistance   float64   `json:"mean_distance"`
	Size           int       `json:"size"`
	SampleExcerpts []string  `json:"sample_excerpts"`

	texts []string
}

type Diagnostics struct {
	TotalPoints         int  `json:"total_points"`
	ValidPoints         int  `json:"valid_points"`
	DimensionMismatched int  `json:"dimension_mismatched"`
	Dimension           int  `json:"dimension"`
	K                   int  `json:"k"`
	Iterations          int  `json:"iterations"`
	Converged           bool `json:"converged"`
	DroppedClusters     int  `json:"dropped_clusters"`
	DroppedMembers      int  `json:"dropped_members"`
	// Truncated is set when the collection held more than MaxPoints vectors
	// and only the first MaxPoints were clustered.
	Truncated bool `json:"truncated"`
}

// Result is returned for every run. Success is false with a Reason when the
// collection could not be clustered; that is not an error.
type Result struct {
	Success     bool             `json:"success"`
	Reason      string           `json:"reason,omitempty"`
	Clusters    []ContentCluster `json:"clusters"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

type Config struct {
	MaxIterations        int
	ConvergenceThreshold float64
	// Dimension is the expected vector length; 0 infers the most common one.
	Dimension int
	PageSize  int
	MaxPoints int
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		PageSize:             vectorstore.MaxPageSize,
		MaxPoints:            defaultMaxPoints,
		Timeout:              30 * time.Second,
	}
}

type Option func(*Clusterer)

// WithRand fixes the random source, which makes runs reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(c *Clusterer) {
		c.rng = rng
	}
}

func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

func WithNamer(n *Namer) Option {
	return func(c *Clusterer) {
		c.namer = n
	}
}

type Clusterer struct {
	store  vectorstore.VectorStore
	config Config
	namer  *Namer
	logger logger.ILogger
	rng    *rand.Rand
}

func NewClusterer(store vectorstore.VectorStore, config Config, log logger.ILogger, opts ...Option) *Clusterer {
	defaults := DefaultConfig()
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaults.MaxIterations
	}
	if config.ConvergenceThreshold <= 0 {
		config.ConvergenceThreshold = defaults.ConvergenceThreshold
	}
	config.PageSize = vectorstore.ClampPageSize(config.PageSize)
	if config.MaxPoints <= 0 {
		config.MaxPoints = defaults.MaxPoints
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	c := &Clusterer{
		store:  store,
		config: config,
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.namer == nil {
		c.namer = NewNamer(nil, 0, log)
	}
	return c
}

// ClusterCollection scrolls every point of a vector-store collection and
// clusters them.
func (c *Clusterer) ClusterCollection(ctx context.Context, vectorRef string, maxClusters, minClusterSize int) (*Result, error) {
	if c.store == nil {
		return nil, fmt.Errorf("%w: no vector store configured", ErrInvalidArgument)
	}

	scrollCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	points, truncated, err := vectorstore.ScrollAll(scrollCtx, c.store, vectorRef, c.config.PageSize, c.config.MaxPoints)
	if err != nil {
		c.logger.Error(logger.ModuleClusterer, "Failed to load collection vectors", map[string]interface{}{
			"vector_ref": vectorRef,
			"error":      err.Error(),
		})
		return nil, err
	}
	if truncated {
		c.logger.Warn(logger.ModuleClusterer, "Collection vectors truncated", map[string]interface{}{
			"vector_ref": vectorRef,
			"max_points": c.config.MaxPoints,
		})
	}
	result, err := c.Cluster(ctx, points, maxClusters, minClusterSize)
	if err != nil {
		return nil, err
	}
	result.Diagnostics.Truncated = truncated
	return result, nil
}

// Cluster runs k-means over points. The only errors are invalid arguments and
// context cancellation.
func (c *Clusterer) Cluster(ctx context.Context, points []*vectorstore.Point, maxClusters, minClusterSize int) (*Result, error) {
	if maxClusters <= 0 {
		maxClusters = DefaultMaxClusters
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}

	valid, diag := c.filterDimension(points)
	result := &Result{Clusters: []ContentCluster{}, Diagnostics: diag}

	n := len(valid)
	if n < minClusterSize || n == 0 {
		result.Reason = ReasonInsufficientData
		c.logger.Info(logger.ModuleClusterer, "Not enough vectors to cluster", map[string]interface{}{
			"valid_points":     n,
			"min_cluster_size": minClusterSize,
		})
		return result, nil
	}

	vectors := make([][]float32, n)
	for i, p := range valid {
		vectors[i] = p.Vector
	}

	k := maxClusters
	if byMin := n / minClusterSize; byMin < k {
		k = byMin
	}
	result.Diagnostics.K = k

	var groups [][]int
	var centroids [][]float32
	if k < 2 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		groups = [][]int{all}
		centroids = [][]float32{similarity.Mean(vectors)}
		result.Diagnostics.K = 1
		result.Diagnostics.Converged = true
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		km := runKMeans(vectors, k, c.config.MaxIterations, c.config.ConvergenceThreshold, c.rng)
		result.Diagnostics.Iterations = km.iterations
		result.Diagnostics.Converged = km.converged

		groups = make([][]int, k)
		for i, a := range km.assignments {
			groups[a] = append(groups[a], i)
		}
		centroids = km.centroids
	}

	for g, members := range groups {
		if len(members) < minClusterSize {
			if len(members) > 0 {
				result.Diagnostics.DroppedClusters++
				result.Diagnostics.DroppedMembers += len(members)
			}
			continue
		}
		result.Clusters = append(result.Clusters, buildCluster(valid, vectors, members, centroids[g]))
	}

	sort.SliceStable(result.Clusters, func(i, j int) bool {
		a, b := result.Clusters[i], result.Clusters[j]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Cohesion > b.Cohesion
	})
	for i := range result.Clusters {
		result.Clusters[i].Index = i
	}

	c.namer.NameAll(ctx, result.Clusters)

	result.Success = len(result.Clusters) > 0
	if !result.Success {
		result.Reason = ReasonInsufficientData
	}

	c.logger.Debug(logger.ModuleClusterer, "Clustering finished", map[string]interface{}{
		"points":          n,
		"k":               result.Diagnostics.K,
		"clusters":        len(result.Clusters),
		"iterations":      result.Diagnostics.Iterations,
		"dropped_members": result.Diagnostics.DroppedMembers,
	})
	return result, nil
}

// filterDimension keeps the points whose vector length matches the expected
// dimension.
func (c *Clusterer) filterDimension(points []*vectorstore.Point) ([]*vectorstore.Point, Diagnostics) {
	valid, dim, mismatched := FilterDimension(points, c.config.Dimension)
	return valid, Diagnostics{
		TotalPoints:         len(points),
		ValidPoints:         len(valid),
		DimensionMismatched: mismatched,
		Dimension:           dim,
	}
}

// FilterDimension drops points whose vector is empty or not dim long. A dim
// of 0 selects the most common length among the points.
func FilterDimension(points []*vectorstore.Point, dim int) (valid []*vectorstore.Point, used int, mismatched int) {
	if dim <= 0 {
		dim = dominantDimension(points)
	}
	valid = make([]*vectorstore.Point, 0, len(points))
	for _, p := range points {
		if p == nil || len(p.Vector) == 0 || len(p.Vector) != dim {
			mismatched++
			continue
		}
		valid = append(valid, p)
	}
	return valid, dim, mismatched
}

// dominantDimension returns the most common non-zero vector length, the
// smaller one on ties.
func dominantDimension(points []*vectorstore.Point) int {
	counts := make(map[int]int)
	for _, p := range points {
		if p != nil && len(p.Vector) > 0 {
			counts[len(p.Vector)]++
		}
	}
	best, bestCount := 0, 0
	for dim, n := range counts {
		if n > bestCount || (n == bestCount && dim < best) {
			best, bestCount = dim, n
		}
	}
	return best
}

func buildCluster(points []*vectorstore.Point, vectors [][]float32, members []int, centroid []float32) ContentCluster {
	memberVectors := make([][]float32, len(members))
	cc := ContentCluster{
		Size:     len(members),
		PointIDs: make([]string, 0, len(members)),
		Centroid: centroid,
	}
	seenDocs := make(map[string]bool)
	for i, idx := range members {
		p := points[idx]
		memberVectors[i] = vectors[idx]
		cc.PointIDs = append(cc.PointIDs, p.ID)
		if doc := vectorstore.ExtractDocumentID(p); !seenDocs[doc] {
			seenDocs[doc] = true
			cc.DocumentIDs = append(cc.DocumentIDs, doc)
		}
		text := vectorstore.ExtractContent(p.Payload)
		if text == "" {
			continue
		}
		cc.texts = append(cc.texts, text)
		if len(cc.SampleExcerpts) < sampleExcerpts {
			cc.SampleExcerpts = append(cc.SampleExcerpts, vectorstore.Excerpt(text, excerptRunes))
		}
	}
	cc.Cohesion = cohesion(memberVectors)
	cc.MeanDistance = meanDistance(memberVectors, centroid)
	return cc
}
