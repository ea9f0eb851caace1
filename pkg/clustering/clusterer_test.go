package clustering

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"cluster-intelligence-be/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobPoints returns count points scattered tightly around center.
func blobPoints(prefix string, center []float32, count int, rng *rand.Rand, text string) []*vectorstore.Point {
	points := make([]*vectorstore.Point, count)
	for i := range points {
		v := make([]float32, len(center))
		for d := range v {
			v[d] = center[d] + float32(rng.Float64()*0.05)
		}
		points[i] = &vectorstore.Point{
			ID:      fmt.Sprintf("%s-%d", prefix, i),
			Vector:  v,
			Payload: map[string]interface{}{"content": text, "document_id": fmt.Sprintf("%s-doc-%d", prefix, i)},
		}
	}
	return points
}

func twoBlobs() []*vectorstore.Point {
	rng := rand.New(rand.NewSource(7))
	points := blobPoints("a", []float32{0, 0, 0}, 6, rng, "invoice payment ledger invoice")
	return append(points, blobPoints("b", []float32{10, 10, 10}, 4, rng, "contract clause liability contract")...)
}

func TestCluster_SeparatesBlobs(t *testing.T) {
	c := NewClusterer(nil, DefaultConfig(), nil, WithSeed(42))

	res, err := c.Cluster(context.Background(), twoBlobs(), 2, 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Clusters, 2)

	// sorted by size desc
	assert.Equal(t, 6, res.Clusters[0].Size)
	assert.Equal(t, 4, res.Clusters[1].Size)
	assert.Equal(t, "Invoice, Ledger & Payment", res.Clusters[0].Name)
	assert.Equal(t, "Contract, Clause & Liability", res.Clusters[1].Name)
	assert.True(t, res.Diagnostics.Converged)
	for _, cc := range res.Clusters {
		assert.Greater(t, cc.Cohesion, 0.9)
		assert.LessOrEqual(t, len(cc.SampleExcerpts), 3)
	}
}

func TestCluster_SeededRunsAreReproducible(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points := make([]*vectorstore.Point, 40)
	for i := range points {
		v := make([]float32, 8)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		points[i] = &vectorstore.Point{ID: fmt.Sprintf("p%d", i), Vector: v}
	}

	run := func() *Result {
		res, err := NewClusterer(nil, DefaultConfig(), nil, WithSeed(99)).Cluster(context.Background(), points, 4, 3)
		require.NoError(t, err)
		return res
	}
	first, second := run(), run()

	require.Equal(t, len(first.Clusters), len(second.Clusters))
	total := func(r *Result) int {
		n := 0
		for _, cc := range r.Clusters {
			n += cc.Size
		}
		return n
	}
	assert.Equal(t, total(first), total(second))
	for i := range first.Clusters {
		assert.Equal(t, first.Clusters[i].PointIDs, second.Clusters[i].PointIDs)
	}
}

func TestCluster_InsufficientData(t *testing.T) {
	c := NewClusterer(nil, DefaultConfig(), nil, WithSeed(1))
	points := []*vectorstore.Point{
		{ID: "1", Vector: []float32{1, 2}},
		{ID: "2", Vector: []float32{1, 3}},
	}

	res, err := c.Cluster(context.Background(), points, 5, 3)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonInsufficientData, res.Reason)
	assert.Empty(t, res.Clusters)
}

func TestCluster_DimensionMismatchExcluded(t *testing.T) {
	c := NewClusterer(nil, DefaultConfig(), nil, WithSeed(1))
	points := []*vectorstore.Point{
		{ID: "1", Vector: []float32{1, 2, 3}},
		{ID: "2", Vector: []float32{1, 2, 4}},
		{ID: "3", Vector: []float32{1, 2, 5}},
		{ID: "odd", Vector: []float32{1, 2}},
		{ID: "empty"},
	}

	res, err := c.Cluster(context.Background(), points, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Diagnostics.Dimension)
	assert.Equal(t, 2, res.Diagnostics.DimensionMismatched)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, 3, res.Clusters[0].Size)
	assert.NotContains(t, res.Clusters[0].PointIDs, "odd")
}

func TestCluster_SingleClusterWhenKBelowTwo(t *testing.T) {
	c := NewClusterer(nil, DefaultConfig(), nil, WithSeed(1))
	points := []*vectorstore.Point{
		{ID: "1", Vector: []float32{0, 0}},
		{ID: "2", Vector: []float32{2, 0}},
		{ID: "3", Vector: []float32{4, 0}},
		{ID: "4", Vector: []float32{6, 0}},
	}

	res, err := c.Cluster(context.Background(), points, 5, 3)
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, 1, res.Diagnostics.K)
	assert.Equal(t, 4, res.Clusters[0].Size)
	assert.Equal(t, []float32{3, 0}, res.Clusters[0].Centroid)
	assert.Equal(t, "Content Group 1", res.Clusters[0].Name)
}

func TestCluster_TenDocsHighDimension(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	points := make([]*vectorstore.Point, 10)
	for i := range points {
		v := make([]float32, 768)
		for d := range v {
			v[d] = float32(rng.Float64())
		}
		points[i] = &vectorstore.Point{ID: fmt.Sprintf("doc-%d", i), Vector: v}
	}

	res, err := NewClusterer(nil, DefaultConfig(), nil, WithSeed(3)).Cluster(context.Background(), points, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Diagnostics.K)

	kept := 0
	for _, cc := range res.Clusters {
		assert.GreaterOrEqual(t, cc.Size, 3)
		kept += cc.Size
	}
	assert.Equal(t, 10, kept+res.Diagnostics.DroppedMembers)
	assert.LessOrEqual(t, res.Diagnostics.Iterations, DefaultMaxIterations)
}

func TestClusterCollection_ScrollsStore(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	store.Upsert("finance", twoBlobs()...)

	c := NewClusterer(store, Config{PageSize: 3}, nil, WithSeed(5))
	res, err := c.ClusterCollection(context.Background(), "finance", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Diagnostics.TotalPoints)
	assert.False(t, res.Diagnostics.Truncated)
	assert.Len(t, res.Clusters, 2)
}

func TestClusterCollection_ReportsTruncation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	store.Upsert("finance", twoBlobs()...)

	c := NewClusterer(store, Config{PageSize: 4, MaxPoints: 6}, nil, WithSeed(5))
	res, err := c.ClusterCollection(context.Background(), "finance", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Diagnostics.TotalPoints)
	assert.True(t, res.Diagnostics.Truncated)
}

func TestClusterCollection_NoStore(t *testing.T) {
	_, err := NewClusterer(nil, DefaultConfig(), nil).ClusterCollection(context.Background(), "x", 2, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCohesion(t *testing.T) {
	assert.Equal(t, 1.0, cohesion([][]float32{{1, 1}}))
	assert.InDelta(t, 1.0/(1.0+5.0), cohesion([][]float32{{0, 0}, {3, 4}}), 1e-9)
}
