package clusterhealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func member(id string, docs int64, age time.Duration) Member {
	return Member{CollectionID: id, DocumentCount: docs, LastActivity: now.Add(-age)}
}

func TestAnalyzeCluster_HealthyPair(t *testing.T) {
	r := AnalyzeCluster(ClusterInput{
		ClusterID: "c1",
		Name:      "Quarterly Reports",
		Members: []Member{
			member("q1", 4, 24*time.Hour),
			member("q2", 2, 48*time.Hour),
		},
	}, now)

	assert.Equal(t, 1.0, r.SizeHealth)
	assert.Equal(t, 0.8, r.ContentHealth)
	assert.Equal(t, 1.0, r.ActivityHealth)
	assert.Equal(t, 0.94, r.HealthScore)
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Empty(t, r.Issues)
}

func TestAnalyzeCluster_Empty(t *testing.T) {
	r := AnalyzeCluster(ClusterInput{ClusterID: "c0", Name: "Nothing"}, now)

	assert.Equal(t, 0.0, r.HealthScore)
	assert.Equal(t, StatusCritical, r.Status)
	assert.Equal(t, []string{IssueEmpty}, r.Issues)
	assert.Equal(t, []string{RecommendEmpty}, r.Recommendations)
}

func TestAnalyzeCluster_IsDeterministic(t *testing.T) {
	in := ClusterInput{ClusterID: "c", Name: "n", Members: []Member{
		member("a", 0, 90*24*time.Hour),
		member("b", 3, time.Hour),
		member("c", 0, 40*24*time.Hour),
	}}
	assert.Equal(t, AnalyzeCluster(in, now), AnalyzeCluster(in, now))
}

func TestAnalyzeCluster_Factors(t *testing.T) {
	tests := []struct {
		name       string
		members    []Member
		wantScore  float64
		wantStatus string
		wantIssues []string
	}{
		{
			name:       "singleton without documents, stale",
			members:    []Member{member("a", 0, 60*24*time.Hour)},
			wantScore:  0.4*0.3 + 0.3*0.2 + 0.3*0.3,
			wantStatus: StatusCritical,
			wantIssues: []string{IssueSingleton, IssueNoDocuments, IssueLowActivity},
		},
		{
			name: "half active",
			members: []Member{
				member("a", 1, time.Hour),
				member("b", 1, 45*24*time.Hour),
			},
			wantScore:  0.4*1.0 + 0.3*0.8 + 0.3*0.8,
			wantStatus: StatusHealthy,
			wantIssues: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := AnalyzeCluster(ClusterInput{ClusterID: "x", Name: "x", Members: tt.members}, now)
			assert.InDelta(t, tt.wantScore, r.HealthScore, 1e-4)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantIssues, r.Issues)
		})
	}
}

func TestAnalyzeCluster_Oversized(t *testing.T) {
	members := make([]Member, 13)
	for i := range members {
		members[i] = member("m", 1, time.Hour)
	}
	r := AnalyzeCluster(ClusterInput{ClusterID: "big", Name: "Big", Members: members}, now)
	assert.Equal(t, 0.4, r.SizeHealth)
	assert.Contains(t, r.Issues, "Cluster is oversized (13 collections)")
	assert.Contains(t, r.Recommendations, RecommendOversized)
}

func TestSizeHealth(t *testing.T) {
	assert.Equal(t, 0.0, SizeHealth(0))
	assert.Equal(t, 0.3, SizeHealth(1))
	assert.Equal(t, 1.0, SizeHealth(2))
	assert.Equal(t, 1.0, SizeHealth(8))
	assert.Equal(t, 0.7, SizeHealth(9))
	assert.Equal(t, 0.7, SizeHealth(12))
	assert.Equal(t, 0.4, SizeHealth(13))
}

func TestAnalyzeAll_ActionItemsOrdered(t *testing.T) {
	big := make([]Member, 14)
	for i := range big {
		big[i] = member("m", 1, time.Hour)
	}
	g := AnalyzeAll([]ClusterInput{
		{ClusterID: "1", Name: "Zeta", Members: []Member{member("a", 1, time.Hour)}},
		{ClusterID: "2", Name: "Beta"},
		{ClusterID: "3", Name: "Alpha", Members: big},
		{ClusterID: "4", Name: "Fine", Members: []Member{member("a", 1, time.Hour), member("b", 1, time.Hour)}},
	}, now)

	assert.Equal(t, 4, g.ClusterCount)
	assert.Equal(t, 1, g.StatusCounts[StatusHealthy])
	require.Len(t, g.ActionItems, 3)
	assert.Equal(t, "Alpha", g.ActionItems[0].ClusterName)
	assert.Equal(t, ActionSplitCluster, g.ActionItems[0].Type)
	assert.Equal(t, "Beta", g.ActionItems[1].ClusterName)
	assert.Equal(t, ActionMergeOrExpand, g.ActionItems[1].Type)
	assert.Equal(t, PriorityHigh, g.ActionItems[1].Priority)
	assert.Equal(t, "Zeta", g.ActionItems[2].ClusterName)
	assert.Equal(t, PriorityMedium, g.ActionItems[2].Priority)
}

func TestAnalyzeAll_Empty(t *testing.T) {
	g := AnalyzeAll(nil, now)
	assert.Equal(t, 0, g.ClusterCount)
	assert.Equal(t, 0.0, g.AverageScore)
	assert.Empty(t, g.ActionItems)
}
