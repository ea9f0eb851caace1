package dto

import (
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/pkg/clusterhealth"
	"cluster-intelligence-be/pkg/clustering"

	"github.com/google/uuid"
)

type CreateClusterRequest struct {
	Name          string                 `json:"name" validate:"required,max=255"`
	Description   string                 `json:"description" validate:"max=2000"`
	Type          string                 `json:"type" validate:"omitempty,oneof=logical content_based merged sharded replicated"`
	Settings      map[string]interface{} `json:"settings"`
	AutoManaged   bool                   `json:"auto_managed"`
	CollectionIds []uuid.UUID            `json:"collection_ids"`
}

type UpdateClusterRequest struct {
	Id          uuid.UUID
	Name        *string                `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string                `json:"description" validate:"omitempty,max=2000"`
	Settings    map[string]interface{} `json:"settings"`
	AutoManaged *bool                  `json:"auto_managed"`
}

type ClusterResponse struct {
	Id             uuid.UUID                `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	Type           string                   `json:"type"`
	Settings       map[string]interface{}   `json:"settings"`
	Health         *entity.HealthSnapshot   `json:"health"`
	LastAnalyzedAt *time.Time               `json:"last_analyzed_at"`
	AutoManaged    bool                     `json:"auto_managed"`
	CollectionIds  []uuid.UUID              `json:"collection_ids"`
	Collections    []*ClusterCollectionItem `json:"collections,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      *time.Time               `json:"updated_at"`
}

type ClusterCollectionItem struct {
	Id            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	DocumentCount int64      `json:"document_count"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

type ClusterMembershipRequest struct {
	ClusterId    uuid.UUID
	CollectionId uuid.UUID `json:"collection_id" validate:"required"`
}

type ClusterStatsResponse struct {
	ClusterId       uuid.UUID              `json:"cluster_id"`
	Name            string                 `json:"name"`
	CollectionCount int                    `json:"collection_count"`
	DocumentCount   int64                  `json:"document_count"`
	LastActivity    *time.Time             `json:"last_activity"`
	Health          *entity.HealthSnapshot `json:"health"`
}

type AutoGenerateClusterRequest struct {
	CollectionId uuid.UUID `json:"collection_id" validate:"required"`
}

type AutoGenerateClusterResponse struct {
	Cluster     *ClusterResponse        `json:"cluster"`
	NameSource  string                  `json:"name_source"` // content or fallback
	Diagnostics *clustering.Diagnostics `json:"diagnostics,omitempty"`
}

type ContentClustersRequest struct {
	CollectionId   uuid.UUID `json:"collection_id" validate:"required"`
	MaxClusters    int       `json:"max_clusters" validate:"omitempty,min=1,max=50"`
	MinClusterSize int       `json:"min_cluster_size" validate:"omitempty,min=1,max=1000"`
}

// Topology

type SplitClusterRequest struct {
	ClusterId                uuid.UUID
	MaxClustersAfterSplit    int  `json:"max_clusters_after_split" validate:"omitempty,min=2,max=20"`
	MinCollectionsPerCluster int  `json:"min_collections_per_cluster" validate:"omitempty,min=1,max=100"`
	PreserveOriginal         bool `json:"preserve_original"`
}

type SplitGroup struct {
	ClusterId     uuid.UUID   `json:"cluster_id"`
	Name          string      `json:"name"`
	CollectionIds []uuid.UUID `json:"collection_ids"`
}

type SplitClusterResponse struct {
	Success           bool          `json:"success"`
	Reason            string        `json:"reason,omitempty"`
	OriginalClusterId uuid.UUID     `json:"original_cluster_id"`
	OriginalRetained  bool          `json:"original_retained"`
	RetainedIds       []uuid.UUID   `json:"retained_collection_ids"`
	NewClusters       []*SplitGroup `json:"new_clusters"`
}

type MergeClustersRequest struct {
	ClusterIds  []uuid.UUID `json:"cluster_ids" validate:"required,min=2,dive,required"`
	Name        string      `json:"name" validate:"max=255"`
	Description string      `json:"description" validate:"max=2000"`
	Force       bool        `json:"force"`
}

type CollectionPair struct {
	FirstId    uuid.UUID `json:"first_id"`
	FirstName  string    `json:"first_name"`
	SecondId   uuid.UUID `json:"second_id"`
	SecondName string    `json:"second_name"`
	Similarity float64   `json:"similarity"`
}

type MergeCompatibility struct {
	Compatible        bool            `json:"compatible"`
	PairCount         int             `json:"pair_count"`
	AverageSimilarity float64         `json:"average_similarity"`
	MinimumSimilarity float64         `json:"minimum_similarity"`
	WeakestPair       *CollectionPair `json:"weakest_pair,omitempty"`
	Suggestions       []string        `json:"suggestions,omitempty"`
}

type MergeClustersResponse struct {
	Success          bool                `json:"success"`
	Reason           string              `json:"reason,omitempty"`
	MergedClusterId  *uuid.UUID          `json:"merged_cluster_id,omitempty"`
	Name             string              `json:"name,omitempty"`
	SourceClusterIds []uuid.UUID         `json:"source_cluster_ids"`
	CollectionIds    []uuid.UUID         `json:"collection_ids"`
	Compatibility    *MergeCompatibility `json:"compatibility"`
}

type RebalanceRequest struct {
	MaxClusterSize      int     `json:"max_cluster_size" validate:"omitempty,min=2,max=1000"`
	MinClusterSize      int     `json:"min_cluster_size" validate:"omitempty,min=1,max=1000"`
	SimilarityThreshold float64 `json:"similarity_threshold" validate:"omitempty,gt=0,lte=1"`
	DryRun              bool    `json:"dry_run"`
}

type ClusterSizeItem struct {
	ClusterId uuid.UUID `json:"cluster_id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
}

type MoveSuggestion struct {
	CollectionId    uuid.UUID `json:"collection_id"`
	CollectionName  string    `json:"collection_name"`
	FromClusterId   uuid.UUID `json:"from_cluster_id"`
	FromClusterName string    `json:"from_cluster_name"`
	ToClusterId     uuid.UUID `json:"to_cluster_id"`
	ToClusterName   string    `json:"to_cluster_name"`
	CurrentScore    float64   `json:"current_score"`
	TargetScore     float64   `json:"target_score"`
}

type RebalanceAnalysis struct {
	Oversized   []*ClusterSizeItem `json:"oversized"`
	Undersized  []*ClusterSizeItem `json:"undersized"`
	Moves       []*MoveSuggestion  `json:"moves"`
	NeedsChange bool               `json:"needs_change"`
}

type RebalanceResponse struct {
	DryRun              bool                     `json:"dry_run"`
	Analysis            *RebalanceAnalysis       `json:"analysis"`
	Splits              []*SplitClusterResponse  `json:"splits,omitempty"`
	Merges              []*MergeClustersResponse `json:"merges,omitempty"`
	MovesApplied        []*MoveSuggestion        `json:"moves_applied,omitempty"`
	AffectedClusterIds  []uuid.UUID              `json:"affected_cluster_ids"`
	AffectedCollections []uuid.UUID              `json:"affected_collection_ids"`
}

type MoveCollectionResponse struct {
	CollectionId  uuid.UUID  `json:"collection_id"`
	FromClusterId *uuid.UUID `json:"from_cluster_id"`
	ToClusterId   *uuid.UUID `json:"to_cluster_id"`
}

// Cross-cluster analysis

type ClusterOverlap struct {
	FirstClusterId  uuid.UUID `json:"first_cluster_id"`
	FirstName       string    `json:"first_name"`
	SecondClusterId uuid.UUID `json:"second_cluster_id"`
	SecondName      string    `json:"second_name"`
	Overlap         float64   `json:"overlap"`
	MergeCandidate  bool      `json:"merge_candidate"`
}

type BridgeCluster struct {
	ClusterId  uuid.UUID `json:"cluster_id"`
	Name       string    `json:"name"`
	Similarity float64   `json:"similarity"`
}

type BridgeDocument struct {
	PointId      string           `json:"point_id"`
	DocumentId   string           `json:"document_id"`
	CollectionId uuid.UUID        `json:"collection_id"`
	Filename     string           `json:"filename"`
	Excerpt      string           `json:"excerpt"`
	BridgeScore  float64          `json:"bridge_score"`
	Clusters     []*BridgeCluster `json:"clusters"`
}

type BridgeDocumentsResponse struct {
	Threshold float64           `json:"threshold"`
	Documents []*BridgeDocument `json:"documents"`
	Warnings  []string          `json:"warnings"`
}

// Health

type GlobalHealthResponse = clusterhealth.GlobalReport

// Events

type ClusterEventResponse struct {
	Id                    uuid.UUID              `json:"id"`
	EventType             string                 `json:"event_type"`
	SourceClusterId       *uuid.UUID             `json:"source_cluster_id"`
	TargetClusterIds      []uuid.UUID            `json:"target_cluster_ids"`
	AffectedCollectionIds []uuid.UUID            `json:"affected_collection_ids"`
	TriggerReason         string                 `json:"trigger_reason"`
	Success               bool                   `json:"success"`
	ErrorDetail           string                 `json:"error_detail,omitempty"`
	Metadata              map[string]interface{} `json:"metadata"`
	CreatedAt             time.Time              `json:"created_at"`
}

type ListClusterEventsRequest struct {
	EventType string `query:"event_type" validate:"omitempty,oneof=create split merge rebalance move delete auto_generate"`
	Limit     int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Offset    int    `query:"offset" validate:"omitempty,min=0"`
}

// Suggestions

type ClusterSuggestionResponse struct {
	Id               uuid.UUID   `json:"id"`
	Type             string      `json:"type"`
	CollectionId     *uuid.UUID  `json:"collection_id"`
	SourceClusterId  *uuid.UUID  `json:"source_cluster_id"`
	TargetClusterIds []uuid.UUID `json:"target_cluster_ids"`
	Confidence       float64     `json:"confidence"`
	Reasoning        string      `json:"reasoning"`
	Status           string      `json:"status"`
	ExpiresAt        *time.Time  `json:"expires_at"`
	CreatedAt        time.Time   `json:"created_at"`
}

type GenerateSuggestionsResponse struct {
	Created     int                          `json:"created"`
	Expired     int64                        `json:"expired"`
	Suggestions []*ClusterSuggestionResponse `json:"suggestions"`
}

type AcceptSuggestionResponse struct {
	Suggestion *ClusterSuggestionResponse `json:"suggestion"`
	Result     interface{}                `json:"result"`
}
