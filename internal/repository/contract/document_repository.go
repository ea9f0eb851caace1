package contract

import (
	"context"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *entity.Document) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error)
	// CountByCollection returns the number of documents per collection id;
	// collections without documents are absent from the map.
	CountByCollection(ctx context.Context, collectionIds []uuid.UUID) (map[uuid.UUID]int64, error)
}
