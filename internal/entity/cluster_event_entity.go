package entity

import (
	"time"

	"github.com/google/uuid"
)

// ClusterEvent is an append-only audit record of one topology mutation.
type ClusterEvent struct {
	Id                    uuid.UUID
	UserId                uuid.UUID
	EventType             string
	SourceClusterId       *uuid.UUID
	TargetClusterIds      []uuid.UUID
	AffectedCollectionIds []uuid.UUID
	TriggerReason         string
	Success               bool
	ErrorDetail           string
	Metadata              map[string]interface{}
	CreatedAt             time.Time
}

type ClusterSuggestion struct {
	Id               uuid.UUID
	UserId           uuid.UUID
	Type             string
	CollectionId     *uuid.UUID
	SourceClusterId  *uuid.UUID
	TargetClusterIds []uuid.UUID
	Confidence       float64
	Reasoning        string
	Status           string
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

func (s *ClusterSuggestion) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
