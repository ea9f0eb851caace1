package service

import (
	"context"
	"testing"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/lock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_FinanceAndLegal(t *testing.T) {
	f := newFixture(t)
	mixed, members := f.cluster(t, "Mixed Documents", concat(financeNames, legalNames)...)

	res, err := f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{
		ClusterId:             mixed.Id,
		MaxClustersAfterSplit: 3,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Reason)
	require.Len(t, res.NewClusters, 2)
	assert.False(t, res.OriginalRetained)
	assert.Nil(t, f.findCluster(t, mixed.Id))

	names := []string{res.NewClusters[0].Name, res.NewClusters[1].Name}
	assert.ElementsMatch(t, []string{"Mixed Documents – Finance Budget", "Mixed Documents – Legal Contract"}, names)

	total := 0
	for _, g := range res.NewClusters {
		assert.Len(t, g.CollectionIds, 3)
		assert.Len(t, f.members(t, g.ClusterId), 3)
		total += len(g.CollectionIds)
		assert.Equal(t, constant.ClusterTypeContentBased, f.findCluster(t, g.ClusterId).Type)
	}
	assert.Equal(t, len(members), total)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, constant.ClusterEventSplit, evs[0].EventType)
	assert.True(t, evs[0].Success)
	assert.Equal(t, mixed.Id, *evs[0].SourceClusterId)
	assert.Len(t, evs[0].TargetClusterIds, 2)
	assert.Len(t, evs[0].AffectedCollectionIds, 6)
	assert.Equal(t, []string{"CLUSTER_SPLIT"}, f.bus.types())
}

func TestSplit_RetainsLeftovers(t *testing.T) {
	f := newFixture(t)
	mixed, members := f.cluster(t, "Mixed", concat(financeNames, legalNames, []string{"Random Notes"})...)

	res, err := f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{ClusterId: mixed.Id, MaxClustersAfterSplit: 3})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.OriginalRetained)
	require.Len(t, res.RetainedIds, 1)

	kept := f.members(t, mixed.Id)
	require.Len(t, kept, 1)
	assert.Equal(t, "Random Notes", kept[0].Name)

	moved := 0
	for _, g := range res.NewClusters {
		moved += len(f.members(t, g.ClusterId))
	}
	assert.Equal(t, len(members), moved+len(kept))
}

func TestSplit_PreserveOriginal(t *testing.T) {
	f := newFixture(t)
	mixed, _ := f.cluster(t, "Mixed", concat(financeNames, legalNames)...)

	res, err := f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{ClusterId: mixed.Id, PreserveOriginal: true})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.OriginalRetained)
	assert.NotNil(t, f.findCluster(t, mixed.Id))
	assert.Empty(t, f.members(t, mixed.Id))
}

func TestSplit_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		reason  string
	}{
		{"insufficient members", financeNames, reasonInsufficientMembers},
		{"too similar", append([]string{"Finance Budget Annual"}, financeNames...), reasonTooSimilar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cluster, members := f.cluster(t, "Finance", tt.members...)

			res, err := f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{ClusterId: cluster.Id})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Len(t, f.members(t, cluster.Id), len(members))
			assert.Len(t, f.clusters(t), 1)

			evs := f.events(t)
			require.Len(t, evs, 1)
			assert.False(t, evs[0].Success)
			assert.Equal(t, tt.reason, evs[0].ErrorDetail)
		})
	}
}

func TestSplit_UnknownCluster(t *testing.T) {
	f := newFixture(t)

	_, err := f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{ClusterId: uuid.New()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
}

func TestMerge_ConservesMembers(t *testing.T) {
	f := newFixture(t)
	a, aMembers := f.cluster(t, "Finance Plans", financeNames[0], financeNames[1])
	b, bMembers := f.cluster(t, "Finance Reviews", financeNames[2])

	res, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	require.NoError(t, err)
	require.True(t, res.Success, res.Reason)
	require.NotNil(t, res.MergedClusterId)
	assert.Equal(t, "Finance", res.Name)
	assert.True(t, res.Compatibility.Compatible)

	assert.Nil(t, f.findCluster(t, a.Id))
	assert.Nil(t, f.findCluster(t, b.Id))
	merged := f.findCluster(t, *res.MergedClusterId)
	require.NotNil(t, merged)
	assert.Equal(t, constant.ClusterTypeMerged, merged.Type)
	assert.Len(t, f.members(t, merged.Id), len(aMembers)+len(bMembers))

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, constant.ClusterEventMerge, evs[0].EventType)
	assert.Equal(t, []uuid.UUID{merged.Id}, evs[0].TargetClusterIds)
	assert.ElementsMatch(t, uuidStrings([]uuid.UUID{a.Id, b.Id}), evs[0].Metadata["source_cluster_ids"])
}

func TestMerge_PersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	a, aMembers := f.cluster(t, "Finance Plans", financeNames[0], financeNames[1])
	b, bMembers := f.cluster(t, "Finance Reviews", financeNames[2])
	f.withFaults(faultyFactory{failAssign: true})

	_, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrPersistence)

	// The graph is exactly as before.
	all := f.clusters(t)
	require.Len(t, all, 2)
	assert.ElementsMatch(t, collectionIDs(aMembers), collectionIDs(f.members(t, a.Id)))
	assert.ElementsMatch(t, collectionIDs(bMembers), collectionIDs(f.members(t, b.Id)))

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, constant.ClusterEventMerge, evs[0].EventType)
	assert.False(t, evs[0].Success)
	assert.Contains(t, evs[0].ErrorDetail, "assign collections")
}

func TestMerge_EventWriteFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	a, aMembers := f.cluster(t, "Finance Plans", financeNames[0], financeNames[1])
	b, bMembers := f.cluster(t, "Finance Reviews", financeNames[2])
	f.withFaults(faultyFactory{failEvents: true})

	res, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	require.NoError(t, err)
	require.True(t, res.Success, res.Reason)

	assert.Nil(t, f.findCluster(t, a.Id))
	assert.Nil(t, f.findCluster(t, b.Id))
	require.NotNil(t, f.findCluster(t, *res.MergedClusterId))
	assert.Len(t, f.members(t, *res.MergedClusterId), len(aMembers)+len(bMembers))

	assert.Empty(t, f.events(t))
	assert.Equal(t, []string{"CLUSTER_MERGE"}, f.bus.types())
}

func TestMove_PersistenceFailureRecordsOneFailedEvent(t *testing.T) {
	f := newFixture(t)
	from, members := f.cluster(t, "Travel", "Flights")
	to, _ := f.cluster(t, "Trips")
	f.withFaults(faultyFactory{failAssign: true})

	_, err := f.topology.Move(f.ctx, f.userId, members[0].Id, &to.Id, "user request")
	assert.ErrorIs(t, err, apperror.ErrPersistence)

	assert.Len(t, f.members(t, from.Id), 1)
	assert.Empty(t, f.members(t, to.Id))
	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
}

func TestMerge_IncompatibleIsRefused(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Money", financeNames...)
	b, _ := f.cluster(t, "Law", legalNames...)

	res, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, reasonIncompatibleMerge, res.Reason)
	assert.Equal(t, 9, res.Compatibility.PairCount)
	assert.Equal(t, 0.0, res.Compatibility.AverageSimilarity)
	assert.Equal(t, 0.0, res.Compatibility.MinimumSimilarity)
	require.NotNil(t, res.Compatibility.WeakestPair)
	assert.Contains(t, res.Compatibility.Suggestions[0], "Consider moving")

	assert.NotNil(t, f.findCluster(t, a.Id))
	assert.NotNil(t, f.findCluster(t, b.Id))
	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
	assert.Equal(t, reasonIncompatibleMerge, evs[0].ErrorDetail)
}

func TestMerge_ForceSkipsGate(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Money", financeNames...)
	b, _ := f.cluster(t, "Law", legalNames...)

	res, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{
		ClusterIds: []uuid.UUID{a.Id, b.Id},
		Name:       "Everything",
		Force:      true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Everything", res.Name)
	assert.Len(t, f.members(t, *res.MergedClusterId), 6)
}

func TestMerge_EmptyClustersPassGate(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Alpha")
	b, _ := f.cluster(t, "Beta")

	res, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Alpha + Beta", res.Name)
}

func TestMerge_InvalidInput(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Alpha", "One")

	_, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, a.Id}})
	assert.ErrorIs(t, err, apperror.ErrInsufficientData)
	assert.Empty(t, f.events(t))

	_, err = f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, uuid.New()}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NotNil(t, f.findCluster(t, a.Id))
}

func TestMerge_OtherUsersClusterNotFound(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Alpha", "One")
	other := newFixture(t)
	other.factory = f.factory
	b, _ := other.cluster(t, "Beta", "Two")

	_, err := f.topology.Merge(f.ctx, f.userId, &dto.MergeClustersRequest{ClusterIds: []uuid.UUID{a.Id, b.Id}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NotNil(t, f.findCluster(t, b.Id))
}

func rebalanceFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.cluster(t, "Mixed", concat(financeNames, legalNames[:2])...)
	f.cluster(t, "Tax A", "Tax Returns Federal")
	f.cluster(t, "Tax B", "Tax Returns State")
	return f
}

func TestRebalance_DryRunDoesNotMutate(t *testing.T) {
	f := rebalanceFixture(t)

	res, err := f.topology.Rebalance(f.ctx, f.userId, &dto.RebalanceRequest{MaxClusterSize: 4, MinClusterSize: 2, DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	require.Len(t, res.Analysis.Oversized, 1)
	assert.Equal(t, "Mixed", res.Analysis.Oversized[0].Name)
	assert.Len(t, res.Analysis.Undersized, 2)
	assert.Len(t, res.Analysis.Moves, 2)
	assert.True(t, res.Analysis.NeedsChange)

	assert.Len(t, f.clusters(t), 3)
	assert.Empty(t, f.events(t))
}

func TestRebalance_AppliesOneAggregateEvent(t *testing.T) {
	f := rebalanceFixture(t)

	res, err := f.topology.Rebalance(f.ctx, f.userId, &dto.RebalanceRequest{MaxClusterSize: 4, MinClusterSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Splits, 1)
	assert.True(t, res.Splits[0].Success)
	require.Len(t, res.Merges, 1)
	assert.True(t, res.Merges[0].Success)
	assert.Equal(t, "Tax", res.Merges[0].Name)
	assert.Empty(t, res.MovesApplied)
	assert.Len(t, res.AffectedCollections, 7)

	clusters := f.clusters(t)
	assert.Len(t, clusters, 3)
	sizes := make([]int, 0, len(clusters))
	for _, c := range clusters {
		sizes = append(sizes, len(f.members(t, c.Id)))
	}
	assert.ElementsMatch(t, []int{3, 2, 2}, sizes)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, constant.ClusterEventRebalance, evs[0].EventType)
	assert.True(t, evs[0].Success)
}

func TestRebalance_AppliesMoves(t *testing.T) {
	f := newFixture(t)
	fin, _ := f.cluster(t, "Finance", financeNames[0], financeNames[1], legalNames[2])
	law, _ := f.cluster(t, "Law", legalNames[0], legalNames[1])

	res, err := f.topology.Rebalance(f.ctx, f.userId, &dto.RebalanceRequest{MaxClusterSize: 10, MinClusterSize: 1})
	require.NoError(t, err)
	require.Len(t, res.MovesApplied, 1)
	assert.Equal(t, legalNames[2], res.MovesApplied[0].CollectionName)
	assert.Len(t, f.members(t, fin.Id), 2)
	assert.Len(t, f.members(t, law.Id), 3)
}

func TestMove_AndDelete(t *testing.T) {
	f := newFixture(t)
	a, members := f.cluster(t, "Alpha", "One", "Two")
	b, _ := f.cluster(t, "Beta")

	moved, err := f.topology.Move(f.ctx, f.userId, members[0].Id, &b.Id, "")
	require.NoError(t, err)
	assert.Equal(t, a.Id, *moved.FromClusterId)
	assert.Len(t, f.members(t, b.Id), 1)

	_, err = f.topology.Move(f.ctx, f.userId, members[0].Id, uuidPtr(uuid.New()), "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, f.topology.DeleteCluster(f.ctx, f.userId, a.Id))
	assert.Nil(t, f.findCluster(t, a.Id))

	types := make([]string, 0)
	for _, e := range f.events(t) {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{"move", "move", "delete"}, types)
}

func TestDelete_ClearsReferences(t *testing.T) {
	f := newFixture(t)
	a, members := f.cluster(t, "Alpha", "One", "Two")

	require.NoError(t, f.topology.DeleteCluster(f.ctx, f.userId, a.Id))
	for _, m := range members {
		col, err := findOwnedCollection(f.ctx, f.factory.NewUnitOfWork(f.ctx), f.userId, m.Id)
		require.NoError(t, err)
		assert.Nil(t, col.ClusterId)
	}
	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Len(t, evs[0].AffectedCollectionIds, 2)
}

func TestCreateCluster(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, "Papers", nil)

	cluster, err := f.topology.CreateCluster(f.ctx, f.userId, ClusterDraft{Name: " Research ", CollectionIds: []uuid.UUID{col.Id}})
	require.NoError(t, err)
	assert.Equal(t, "Research", cluster.Name)
	assert.Equal(t, constant.ClusterTypeLogical, cluster.Type)
	assert.Len(t, f.members(t, cluster.Id), 1)

	_, err = f.topology.CreateCluster(f.ctx, f.userId, ClusterDraft{Name: "Research"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	again, err := f.topology.CreateCluster(f.ctx, f.userId, ClusterDraft{Name: "Research", UniqueName: true})
	require.NoError(t, err)
	assert.Equal(t, "Research (2)", again.Name)

	_, err = f.topology.CreateCluster(f.ctx, f.userId, ClusterDraft{Name: "X", Type: "galaxy"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestMutations_SerializedPerUser(t *testing.T) {
	f := newFixture(t)
	a, _ := f.cluster(t, "Alpha", concat(financeNames, legalNames)...)

	lease, err := f.locker.Acquire(context.Background(), lock.UserKey(f.userId), time.Second, 0)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	_, err = f.topology.Split(f.ctx, f.userId, &dto.SplitClusterRequest{ClusterId: a.Id})
	assert.ErrorIs(t, err, apperror.ErrLocked)
	assert.NotNil(t, f.findCluster(t, a.Id))
}

func TestGroupForSplit_RemainderJoinsMostSimilarSeed(t *testing.T) {
	f := newFixture(t)
	_, members := f.cluster(t, "X", "Zeta Omega Psi", "Alpha Beta Gamma", "Delta Epsilon Zeta")
	sortCollectionsByName(members)

	groups := groupForSplit(DefaultNameSimilarity, members, 1)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].members, 3)

	groups = groupForSplit(DefaultNameSimilarity, members, 2)
	require.Len(t, groups, 2)
	assert.Equal(t, "Alpha Beta Gamma", groups[0].seed.Name)
	assert.Len(t, groups[0].members, 1)
	assert.Equal(t, "Delta Epsilon Zeta", groups[1].seed.Name)
	assert.Equal(t, []string{"Delta Epsilon Zeta", "Zeta Omega Psi"}, collectionNames(groups[1].members))
}
