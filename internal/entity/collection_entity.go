package entity

import (
	"time"

	"github.com/google/uuid"
)

type Collection struct {
	Id          uuid.UUID
	UserId      uuid.UUID
	Name        string
	Description string
	VectorRef   string // collection name inside the vector store
	ClusterId   *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

// LastActivity is the update time, or the creation time for never-updated
// collections.
func (c *Collection) LastActivity() time.Time {
	if c.UpdatedAt != nil && !c.UpdatedAt.IsZero() {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

type Document struct {
	Id           uuid.UUID
	CollectionId uuid.UUID
	UserId       uuid.UUID
	Filename     string
	Excerpt      string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
