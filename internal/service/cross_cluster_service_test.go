package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*vectorstore.MemoryStore
	broken string
}

func (s *failingStore) Scroll(ctx context.Context, ref string, opts vectorstore.ScrollOptions) (*vectorstore.ScrollResult, error) {
	if ref == s.broken {
		return nil, errors.New("connection refused")
	}
	return s.MemoryStore.Scroll(ctx, ref, opts)
}

func TestComputeOverlaps_SortedWithMergeCandidates(t *testing.T) {
	f := newFixture(t)
	f.cluster(t, "Finance", financeNames...)
	f.cluster(t, "Budget", "Finance Budget Archive")
	f.cluster(t, "Legal", legalNames...)

	svc := NewCrossClusterService(f.factory, nil, logger.NewNopLogger(), CrossClusterConfig{})
	overlaps, err := svc.ComputeOverlaps(f.ctx, f.userId)
	require.NoError(t, err)

	// Finance and Legal share no tokens and are left out.
	require.Len(t, overlaps, 2)

	assert.Equal(t, "Budget", overlaps[0].FirstName)
	assert.Equal(t, "Finance", overlaps[0].SecondName)
	assert.InDelta(t, 0.5, overlaps[0].Overlap, 1e-9)
	assert.True(t, overlaps[0].MergeCandidate)

	assert.Equal(t, "Budget", overlaps[1].FirstName)
	assert.Equal(t, "Legal", overlaps[1].SecondName)
	assert.InDelta(t, 0.2, overlaps[1].Overlap, 1e-9)
	assert.False(t, overlaps[1].MergeCandidate)
}

func TestFindBridgeDocuments(t *testing.T) {
	f := newFixture(t)
	_, alpha := f.cluster(t, "Alpha", "alpha-docs")
	_, beta := f.cluster(t, "Beta", "beta-docs")

	store := vectorstore.NewMemoryStore()
	store.Upsert(alpha[0].VectorRef,
		&vectorstore.Point{ID: "a1", Vector: []float32{1, 0, 0}},
		&vectorstore.Point{ID: "a2", Vector: []float32{1, 0.1, 0}},
		&vectorstore.Point{ID: "a-bridge", Vector: []float32{0.7, 0.7, 0}, Payload: map[string]interface{}{
			"document_id": "doc-42",
			"filename":    "overview.pdf",
			"content":     "Budget review of the contract renewals",
		}},
		&vectorstore.Point{ID: "a-short", Vector: []float32{1, 0}},
	)
	store.Upsert(beta[0].VectorRef,
		&vectorstore.Point{ID: "b1", Vector: []float32{0, 1, 0}},
		&vectorstore.Point{ID: "b2", Vector: []float32{0.1, 1, 0}},
	)

	svc := NewCrossClusterService(f.factory, store, logger.NewNopLogger(), CrossClusterConfig{PageSize: 2})
	res, err := svc.FindBridgeDocuments(f.ctx, f.userId, 0.7, 10)
	require.NoError(t, err)

	assert.Equal(t, 0.7, res.Threshold)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	assert.Equal(t, "a-bridge", doc.PointId)
	assert.Equal(t, "doc-42", doc.DocumentId)
	assert.Equal(t, "overview.pdf", doc.Filename)
	assert.Equal(t, alpha[0].Id, doc.CollectionId)
	require.Len(t, doc.Clusters, 2)
	assert.Equal(t, "Alpha", doc.Clusters[0].Name)
	assert.Equal(t, "Beta", doc.Clusters[1].Name)
	assert.Greater(t, doc.Clusters[0].Similarity, doc.Clusters[1].Similarity)
	assert.Greater(t, doc.BridgeScore, 0.7)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "dimension mismatch")
}

func TestFindBridgeDocuments_UnavailableCollectionBecomesWarning(t *testing.T) {
	f := newFixture(t)
	_, alpha := f.cluster(t, "Alpha", "alpha-docs")
	_, beta := f.cluster(t, "Beta", "beta-docs", "beta-extra")

	mem := vectorstore.NewMemoryStore()
	mem.Upsert(alpha[0].VectorRef, &vectorstore.Point{ID: "a1", Vector: []float32{1, 0}})
	mem.Upsert(beta[0].VectorRef, &vectorstore.Point{ID: "b1", Vector: []float32{0, 1}})
	store := &failingStore{MemoryStore: mem, broken: beta[1].VectorRef}

	svc := NewCrossClusterService(f.factory, store, logger.NewNopLogger(), CrossClusterConfig{})
	res, err := svc.FindBridgeDocuments(f.ctx, f.userId, 0, 0)
	require.NoError(t, err)

	assert.Empty(t, res.Documents)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.Contains(res.Warnings[0], "unavailable"))
	assert.Equal(t, 0.75, res.Threshold)
}

func TestFindBridgeDocuments_TruncatedCollectionBecomesWarning(t *testing.T) {
	f := newFixture(t)
	_, alpha := f.cluster(t, "Alpha", "alpha-docs")
	_, beta := f.cluster(t, "Beta", "beta-docs")

	store := vectorstore.NewMemoryStore()
	store.Upsert(alpha[0].VectorRef,
		&vectorstore.Point{ID: "a1", Vector: []float32{1, 0}},
		&vectorstore.Point{ID: "a2", Vector: []float32{1, 0.1}},
		&vectorstore.Point{ID: "a3", Vector: []float32{1, 0.2}},
	)
	store.Upsert(beta[0].VectorRef, &vectorstore.Point{ID: "b1", Vector: []float32{0, 1}})

	svc := NewCrossClusterService(f.factory, store, logger.NewNopLogger(), CrossClusterConfig{PageSize: 1, MaxPoints: 2})
	res, err := svc.FindBridgeDocuments(f.ctx, f.userId, 0.9, 10)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "alpha-docs truncated to 2 vectors")
}

func TestComputeOverlaps_CustomSimilarity(t *testing.T) {
	f := newFixture(t)
	f.cluster(t, "Finance", financeNames...)
	f.cluster(t, "Legal", legalNames...)

	always := func(a, b string) float64 { return 1 }
	svc := NewCrossClusterService(f.factory, nil, logger.NewNopLogger(), CrossClusterConfig{}, WithOverlapSimilarity(always))
	overlaps, err := svc.ComputeOverlaps(f.ctx, f.userId)
	require.NoError(t, err)
	require.Len(t, overlaps, 1)
	assert.Equal(t, 1.0, overlaps[0].Overlap)
	assert.True(t, overlaps[0].MergeCandidate)
}

func TestFindBridgeDocuments_FewerThanTwoClusters(t *testing.T) {
	f := newFixture(t)
	_, alpha := f.cluster(t, "Alpha", "alpha-docs")

	store := vectorstore.NewMemoryStore()
	store.Upsert(alpha[0].VectorRef, &vectorstore.Point{ID: "a1", Vector: []float32{1, 0}})

	svc := NewCrossClusterService(f.factory, store, logger.NewNopLogger(), CrossClusterConfig{})
	res, err := svc.FindBridgeDocuments(f.ctx, f.userId, 0.5, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Empty(t, res.Warnings)
}

func TestFindBridgeDocuments_NoStore(t *testing.T) {
	f := newFixture(t)
	svc := NewCrossClusterService(f.factory, nil, logger.NewNopLogger(), CrossClusterConfig{})
	_, err := svc.FindBridgeDocuments(f.ctx, f.userId, 0.5, 5)
	assert.ErrorIs(t, err, apperror.ErrExternalCollaborator)
}
