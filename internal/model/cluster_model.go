package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Clusters are hard-deleted so the (user_id, name) unique index never
// collides with retired rows; the audit trail lives in cluster_events.
type Cluster struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_clusters_user_name,priority:1"`
	Name           string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_clusters_user_name,priority:2"`
	Description    string         `gorm:"type:text"`
	Type           string         `gorm:"type:varchar(32);not null;default:'logical'"`
	Settings       datatypes.JSON `gorm:"type:jsonb"`
	HealthSnapshot datatypes.JSON `gorm:"type:jsonb"`
	LastAnalyzedAt *time.Time
	AutoManaged    bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Cluster) TableName() string {
	return "clusters"
}
