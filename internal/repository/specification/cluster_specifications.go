package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByClusterID selects collections that belong to a cluster.
type ByClusterID struct {
	ClusterID uuid.UUID
}

func (s ByClusterID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("cluster_id = ?", s.ClusterID)
}

func (s ByClusterID) Matches(r Record) bool {
	id, ok := r["cluster_id"].(*uuid.UUID)
	return ok && id != nil && *id == s.ClusterID
}

type ByClusterIDs struct {
	ClusterIDs []uuid.UUID
}

func (s ByClusterIDs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("cluster_id IN ?", s.ClusterIDs)
}

func (s ByClusterIDs) Matches(r Record) bool {
	id, ok := r["cluster_id"].(*uuid.UUID)
	return ok && id != nil && containsID(s.ClusterIDs, *id)
}

// Unclustered selects collections without a cluster reference.
type Unclustered struct{}

func (s Unclustered) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("cluster_id IS NULL")
}

func (s Unclustered) Matches(r Record) bool {
	id, _ := r["cluster_id"].(*uuid.UUID)
	return id == nil
}

type ByName struct {
	Name string
}

func (s ByName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("name = ?", s.Name)
}

func (s ByName) Matches(r Record) bool {
	return r["name"] == s.Name
}

// ByCollectionIDs selects documents of the given collections.
type ByCollectionIDs struct {
	CollectionIDs []uuid.UUID
}

func (s ByCollectionIDs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("collection_id IN ?", s.CollectionIDs)
}

func (s ByCollectionIDs) Matches(r Record) bool {
	id, ok := r["collection_id"].(uuid.UUID)
	return ok && containsID(s.CollectionIDs, id)
}

type ByEventType struct {
	EventType string
}

func (s ByEventType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("event_type = ?", s.EventType)
}

func (s ByEventType) Matches(r Record) bool {
	return r["event_type"] == s.EventType
}

type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

func (s ByStatus) Matches(r Record) bool {
	return r["status"] == s.Status
}

// ExpiredBefore selects suggestions whose expiry has passed.
type ExpiredBefore struct {
	At time.Time
}

func (s ExpiredBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("expires_at IS NOT NULL AND expires_at < ?", s.At)
}

func (s ExpiredBefore) Matches(r Record) bool {
	t, ok := r["expires_at"].(*time.Time)
	return ok && t != nil && t.Before(s.At)
}
