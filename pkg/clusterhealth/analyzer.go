// Package clusterhealth scores clusters with fixed rules. Everything here is
// a pure function of its inputs; the evaluation time is passed in.
package clusterhealth

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	StatusHealthy  = "healthy"
	StatusFair     = "fair"
	StatusPoor     = "poor"
	StatusCritical = "critical"

	ActionSplitCluster   = "split_cluster"
	ActionMergeOrExpand  = "merge_or_expand"
	ActionImproveHealth  = "improve_health"
	PriorityHigh         = "high"
	PriorityMedium       = "medium"
	PriorityLow          = "low"
	OversizedThreshold   = 12
	ActivityWindow       = 30 * 24 * time.Hour
	lowActivityFraction  = 0.5
	activityBonus        = 0.3
	weightSize           = 0.4
	weightContent        = 0.3
	weightActivity       = 0.3
	contentWithDocuments = 0.8
	contentWithout       = 0.2
)

const (
	IssueEmpty       = "Empty cluster"
	IssueSingleton   = "Only one collection"
	IssueNoDocuments = "No documents in any collection"
	IssueLowActivity = "Low recent activity"

	RecommendEmpty       = "Add collections or delete this cluster"
	RecommendSingleton   = "Add related collections or merge with a similar cluster"
	RecommendOversized   = "Split into smaller, focused clusters"
	RecommendNoDocuments = "Upload documents to collections in this cluster"
	RecommendLowActivity = "Review whether this cluster is still relevant"
)

// Member is the slice of a collection the analyzer needs.
type Member struct {
	CollectionID  string
	DocumentCount int64
	LastActivity  time.Time
}

type ClusterInput struct {
	ClusterID string
	Name      string
	Members   []Member
}

type Report struct {
	ClusterID       string    `json:"cluster_id"`
	ClusterName     string    `json:"cluster_name"`
	MemberCount     int       `json:"member_count"`
	SizeHealth      float64   `json:"size_health"`
	ContentHealth   float64   `json:"content_health"`
	ActivityHealth  float64   `json:"activity_health"`
	HealthScore     float64   `json:"health_score"`
	Status          string    `json:"status"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

type ActionItem struct {
	ClusterID   string `json:"cluster_id"`
	ClusterName string `json:"cluster_name"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Reason      string `json:"reason"`
}

type GlobalReport struct {
	ClusterCount int            `json:"cluster_count"`
	AverageScore float64        `json:"average_score"`
	StatusCounts map[string]int `json:"status_counts"`
	Clusters     []Report       `json:"clusters"`
	ActionItems  []ActionItem   `json:"action_items"`
	AnalyzedAt   time.Time      `json:"analyzed_at"`
}

func SizeHealth(members int) float64 {
	switch {
	case members <= 0:
		return 0
	case members == 1:
		return 0.3
	case members <= 8:
		return 1.0
	case members <= OversizedThreshold:
		return 0.7
	default:
		return 0.4
	}
}

func hasDocuments(members []Member) bool {
	for _, m := range members {
		if m.DocumentCount > 0 {
			return true
		}
	}
	return false
}

func ContentHealth(members []Member) float64 {
	if len(members) == 0 {
		return 0
	}
	if hasDocuments(members) {
		return contentWithDocuments
	}
	return contentWithout
}

// recentFraction is the share of members active within the window.
func recentFraction(members []Member, now time.Time) float64 {
	if len(members) == 0 {
		return 0
	}
	cutoff := now.Add(-ActivityWindow)
	recent := 0
	for _, m := range members {
		if !m.LastActivity.IsZero() && !m.LastActivity.Before(cutoff) {
			recent++
		}
	}
	return float64(recent) / float64(len(members))
}

func ActivityHealth(members []Member, now time.Time) float64 {
	if len(members) == 0 {
		return 0
	}
	return math.Min(1.0, recentFraction(members, now)+activityBonus)
}

func Status(score float64) string {
	switch {
	case score >= 0.8:
		return StatusHealthy
	case score >= 0.6:
		return StatusFair
	case score >= 0.4:
		return StatusPoor
	default:
		return StatusCritical
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// AnalyzeCluster scores one cluster.
func AnalyzeCluster(in ClusterInput, now time.Time) Report {
	n := len(in.Members)
	r := Report{
		ClusterID:       in.ClusterID,
		ClusterName:     in.Name,
		MemberCount:     n,
		SizeHealth:      SizeHealth(n),
		ContentHealth:   ContentHealth(in.Members),
		ActivityHealth:  round4(ActivityHealth(in.Members, now)),
		Issues:          []string{},
		Recommendations: []string{},
		AnalyzedAt:      now,
	}

	if n > 0 {
		r.HealthScore = round4(weightSize*r.SizeHealth + weightContent*r.ContentHealth + weightActivity*r.ActivityHealth)
	}
	r.Status = Status(r.HealthScore)

	add := func(issue, rec string) {
		r.Issues = append(r.Issues, issue)
		r.Recommendations = append(r.Recommendations, rec)
	}
	switch {
	case n == 0:
		add(IssueEmpty, RecommendEmpty)
		return r
	case n == 1:
		add(IssueSingleton, RecommendSingleton)
	case n > OversizedThreshold:
		add(fmt.Sprintf("Cluster is oversized (%d collections)", n), RecommendOversized)
	}
	if !hasDocuments(in.Members) {
		add(IssueNoDocuments, RecommendNoDocuments)
	}
	if recentFraction(in.Members, now) < lowActivityFraction {
		add(IssueLowActivity, RecommendLowActivity)
	}
	return r
}

var priorityRank = map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// ActionItemFor maps a report to at most one action item.
func ActionItemFor(r Report) (ActionItem, bool) {
	item := ActionItem{ClusterID: r.ClusterID, ClusterName: r.ClusterName}
	switch {
	case r.MemberCount > OversizedThreshold:
		item.Type, item.Priority = ActionSplitCluster, PriorityHigh
		item.Reason = fmt.Sprintf("Cluster is oversized (%d collections)", r.MemberCount)
	case r.MemberCount == 0:
		item.Type, item.Priority, item.Reason = ActionMergeOrExpand, PriorityHigh, IssueEmpty
	case r.MemberCount == 1:
		item.Type, item.Priority, item.Reason = ActionMergeOrExpand, PriorityMedium, IssueSingleton
	case r.Status == StatusCritical:
		item.Type, item.Priority = ActionImproveHealth, PriorityHigh
		item.Reason = fmt.Sprintf("Health is critical (%.2f)", r.HealthScore)
	case r.Status == StatusPoor:
		item.Type, item.Priority = ActionImproveHealth, PriorityMedium
		item.Reason = fmt.Sprintf("Health is poor (%.2f)", r.HealthScore)
	case r.Status == StatusFair && len(r.Issues) > 0:
		item.Type, item.Priority, item.Reason = ActionImproveHealth, PriorityLow, r.Issues[0]
	default:
		return ActionItem{}, false
	}
	return item, true
}

// AnalyzeAll scores every cluster and derives prioritized action items.
func AnalyzeAll(inputs []ClusterInput, now time.Time) GlobalReport {
	g := GlobalReport{
		ClusterCount: len(inputs),
		StatusCounts: map[string]int{StatusHealthy: 0, StatusFair: 0, StatusPoor: 0, StatusCritical: 0},
		Clusters:     make([]Report, 0, len(inputs)),
		ActionItems:  []ActionItem{},
		AnalyzedAt:   now,
	}

	total := 0.0
	for _, in := range inputs {
		r := AnalyzeCluster(in, now)
		g.Clusters = append(g.Clusters, r)
		g.StatusCounts[r.Status]++
		total += r.HealthScore
		if item, ok := ActionItemFor(r); ok {
			g.ActionItems = append(g.ActionItems, item)
		}
	}
	if len(inputs) > 0 {
		g.AverageScore = round4(total / float64(len(inputs)))
	}

	sort.SliceStable(g.ActionItems, func(i, j int) bool {
		a, b := g.ActionItems[i], g.ActionItems[j]
		if priorityRank[a.Priority] != priorityRank[b.Priority] {
			return priorityRank[a.Priority] < priorityRank[b.Priority]
		}
		return a.ClusterName < b.ClusterName
	})
	return g
}
