package service

import (
	"testing"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSuggestionService(f *fixture) *clusterSuggestionService {
	svc := NewClusterSuggestionService(f.factory, newClusterService(f, nil), f.topology, logger.NewNopLogger(), 0)
	return svc.(*clusterSuggestionService)
}

func suggestionsByType(list []*dto.ClusterSuggestionResponse) map[string]*dto.ClusterSuggestionResponse {
	out := make(map[string]*dto.ClusterSuggestionResponse, len(list))
	for _, s := range list {
		out[s.Type] = s
	}
	return out
}

// suggestionFixture has one move, one merge and one create suggestion to
// offer.
func suggestionFixture(t *testing.T) (*fixture, *entity.Cluster, *entity.Cluster, *entity.Collection) {
	f := newFixture(t)
	finance, _ := f.cluster(t, "Finance", financeNames...)
	budget, _ := f.cluster(t, "Budget", "Finance Budget Archive")
	loose := f.collection(t, "Loose Notes", nil)
	return f, finance, budget, loose
}

func TestGenerateSuggestions(t *testing.T) {
	f, finance, budget, loose := suggestionFixture(t)
	svc := newSuggestionService(f)

	res, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	require.Equal(t, 3, res.Created)
	assert.Zero(t, res.Expired)

	byType := suggestionsByType(res.Suggestions)

	move := byType[constant.SuggestionTypeMove]
	require.NotNil(t, move)
	assert.Equal(t, budget.Id, *move.SourceClusterId)
	assert.Equal(t, []uuid.UUID{finance.Id}, move.TargetClusterIds)
	assert.InDelta(t, 0.5, move.Confidence, 1e-9)

	merge := byType[constant.SuggestionTypeMerge]
	require.NotNil(t, merge)
	assert.ElementsMatch(t, []uuid.UUID{finance.Id, budget.Id}, merge.TargetClusterIds)

	create := byType[constant.SuggestionTypeCreate]
	require.NotNil(t, create)
	assert.Equal(t, loose.Id, *create.CollectionId)

	for _, s := range res.Suggestions {
		assert.Equal(t, constant.SuggestionStatusPending, s.Status)
		require.NotNil(t, s.ExpiresAt)
		assert.WithinDuration(t, s.CreatedAt.Add(constant.DefaultSuggestionTTL), *s.ExpiresAt, time.Second)
	}

	again, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	assert.Zero(t, again.Created)

	pending, err := svc.ListSuggestions(f.ctx, f.userId, constant.SuggestionStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestAcceptSuggestion_CreateAndMove(t *testing.T) {
	f, finance, budget, loose := suggestionFixture(t)
	svc := newSuggestionService(f)
	res, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	byType := suggestionsByType(res.Suggestions)

	accepted, err := svc.AcceptSuggestion(f.ctx, f.userId, byType[constant.SuggestionTypeCreate].Id)
	require.NoError(t, err)
	assert.Equal(t, constant.SuggestionStatusAccepted, accepted.Suggestion.Status)
	generated, ok := accepted.Result.(*dto.AutoGenerateClusterResponse)
	require.True(t, ok)
	assert.Equal(t, "Loose Notes Cluster", generated.Cluster.Name)
	assert.Equal(t, []uuid.UUID{loose.Id}, generated.Cluster.CollectionIds)

	_, err = svc.AcceptSuggestion(f.ctx, f.userId, byType[constant.SuggestionTypeCreate].Id)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.AcceptSuggestion(f.ctx, f.userId, byType[constant.SuggestionTypeMove].Id)
	require.NoError(t, err)
	assert.Len(t, f.members(t, finance.Id), 4)
	assert.Empty(t, f.members(t, budget.Id))
}

func TestAcceptSuggestion_RefusedMergeStaysPending(t *testing.T) {
	f := newFixture(t)
	finance, _ := f.cluster(t, "Finance", financeNames...)
	legal, _ := f.cluster(t, "Legal", legalNames...)
	svc := newSuggestionService(f)

	expires := time.Now().UTC().Add(time.Hour)
	sg := &entity.ClusterSuggestion{
		Id:               uuid.New(),
		UserId:           f.userId,
		Type:             constant.SuggestionTypeMerge,
		TargetClusterIds: []uuid.UUID{finance.Id, legal.Id},
		Confidence:       0.4,
		Status:           constant.SuggestionStatusPending,
		ExpiresAt:        &expires,
	}
	require.NoError(t, f.factory.NewUnitOfWork(f.ctx).ClusterSuggestionRepository().Create(f.ctx, sg))

	res, err := svc.AcceptSuggestion(f.ctx, f.userId, sg.Id)
	require.NoError(t, err)
	merged, ok := res.Result.(*dto.MergeClustersResponse)
	require.True(t, ok)
	assert.False(t, merged.Success)
	assert.Equal(t, constant.SuggestionStatusPending, res.Suggestion.Status)
	assert.Len(t, f.clusters(t), 2)
}

func TestDismissSuggestion(t *testing.T) {
	f, _, _, _ := suggestionFixture(t)
	svc := newSuggestionService(f)
	res, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	merge := suggestionsByType(res.Suggestions)[constant.SuggestionTypeMerge]

	dismissed, err := svc.DismissSuggestion(f.ctx, f.userId, merge.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.SuggestionStatusDismissed, dismissed.Status)

	_, err = svc.DismissSuggestion(f.ctx, f.userId, merge.Id)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.DismissSuggestion(f.ctx, uuid.New(), merge.Id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Only pending suggestions suppress duplicates, so the dismissed merge returns.
	again, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Created)
	assert.Equal(t, constant.SuggestionTypeMerge, again.Suggestions[0].Type)
}

func TestSuggestions_ExpireLazily(t *testing.T) {
	f, _, _, _ := suggestionFixture(t)
	svc := newSuggestionService(f)
	res, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	target := res.Suggestions[0].Id

	later := time.Now().UTC().Add(constant.DefaultSuggestionTTL + time.Hour)
	svc.now = func() time.Time { return later }

	_, err = svc.AcceptSuggestion(f.ctx, f.userId, target)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	expired, err := svc.ListSuggestions(f.ctx, f.userId, constant.SuggestionStatusExpired)
	require.NoError(t, err)
	assert.Len(t, expired, 3)

	regenerated, err := svc.GenerateSuggestions(f.ctx, f.userId)
	require.NoError(t, err)
	assert.Equal(t, 3, regenerated.Created)
}
