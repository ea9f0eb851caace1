package entity

import (
	"time"

	"github.com/google/uuid"
)

type Cluster struct {
	Id             uuid.UUID
	UserId         uuid.UUID
	Name           string
	Description    string
	Type           string
	Settings       map[string]interface{}
	Health         *HealthSnapshot
	LastAnalyzedAt *time.Time
	AutoManaged    bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// HealthSnapshot is the last persisted health evaluation of a cluster.
type HealthSnapshot struct {
	Score           float64   `json:"score"`
	Status          string    `json:"status"`
	SizeHealth      float64   `json:"size_health"`
	ContentHealth   float64   `json:"content_health"`
	ActivityHealth  float64   `json:"activity_health"`
	MemberCount     int       `json:"member_count"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}
