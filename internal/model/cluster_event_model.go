package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ClusterEvent struct {
	Id                    uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId                uuid.UUID      `gorm:"type:uuid;not null;index"`
	EventType             string         `gorm:"type:varchar(32);not null;index"`
	SourceClusterId       *uuid.UUID     `gorm:"type:uuid;index"`
	TargetClusterIds      datatypes.JSON `gorm:"type:jsonb"`
	AffectedCollectionIds datatypes.JSON `gorm:"type:jsonb"`
	TriggerReason         string         `gorm:"type:text"`
	Success               bool           `gorm:"not null"`
	ErrorDetail           string         `gorm:"type:text"`
	Metadata              datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt             time.Time      `gorm:"autoCreateTime;index"`
}

func (ClusterEvent) TableName() string {
	return "cluster_events"
}

type ClusterSuggestion struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId           uuid.UUID      `gorm:"type:uuid;not null;index"`
	Type             string         `gorm:"type:varchar(16);not null"`
	CollectionId     *uuid.UUID     `gorm:"type:uuid"`
	SourceClusterId  *uuid.UUID     `gorm:"type:uuid"`
	TargetClusterIds datatypes.JSON `gorm:"type:jsonb"`
	Confidence       float64        `gorm:"not null;default:0"`
	Reasoning        string         `gorm:"type:text"`
	Status           string         `gorm:"type:varchar(16);not null;default:'pending';index"`
	ExpiresAt        *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (ClusterSuggestion) TableName() string {
	return "cluster_suggestions"
}
