package specification

import "gorm.io/gorm"

// Specification defines the interface for query specifications
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Record is the flattened column view of a row, used by stores that cannot
// run SQL (the in-memory unit of work).
type Record map[string]interface{}

// Predicate is implemented by filtering specifications that can also be
// evaluated against an in-memory Record.
type Predicate interface {
	Matches(r Record) bool
}
