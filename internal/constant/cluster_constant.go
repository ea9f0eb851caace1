package constant

import "time"

// Cluster types
const (
	ClusterTypeLogical      = "logical"
	ClusterTypeContentBased = "content_based"
	ClusterTypeMerged       = "merged"
	ClusterTypeSharded      = "sharded"
	ClusterTypeReplicated   = "replicated"
)

var ClusterTypes = []string{
	ClusterTypeLogical,
	ClusterTypeContentBased,
	ClusterTypeMerged,
	ClusterTypeSharded,
	ClusterTypeReplicated,
}

// Cluster event types
const (
	ClusterEventCreate       = "create"
	ClusterEventSplit        = "split"
	ClusterEventMerge        = "merge"
	ClusterEventRebalance    = "rebalance"
	ClusterEventMove         = "move"
	ClusterEventDelete       = "delete"
	ClusterEventAutoGenerate = "auto_generate"
)

// Suggestion types and statuses
const (
	SuggestionTypeMove   = "move"
	SuggestionTypeCreate = "create"
	SuggestionTypeMerge  = "merge"
	SuggestionTypeSplit  = "split"

	SuggestionStatusPending   = "pending"
	SuggestionStatusAccepted  = "accepted"
	SuggestionStatusDismissed = "dismissed"
	SuggestionStatusExpired   = "expired"
)

// Topology thresholds
const (
	SplitSeedSimilarityThreshold = 0.3
	MergeMinAverageSimilarity    = 0.4
	MergeMinPairSimilarity       = 0.2
	OverlapMergeCandidate        = 0.4

	DefaultMaxClustersAfterSplit    = 3
	DefaultMinCollectionsPerCluster = 2
	DefaultRebalanceMaxClusterSize  = 12
	DefaultRebalanceMinClusterSize  = 2
	DefaultRebalanceSimilarity      = 0.3

	DefaultBridgeThreshold = 0.75
	MaxBridgeDocuments     = 100

	DefaultSuggestionTTL = 7 * 24 * time.Hour
)
