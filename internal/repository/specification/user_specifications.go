package specification

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

type UserOwnedBy struct {
	UserID uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

func (s UserOwnedBy) Matches(r Record) bool {
	id, ok := r["user_id"].(uuid.UUID)
	return ok && id == s.UserID
}
