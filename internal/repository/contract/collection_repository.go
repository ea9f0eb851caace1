package contract

import (
	"context"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
)

type CollectionRepository interface {
	Create(ctx context.Context, collection *entity.Collection) error
	Update(ctx context.Context, collection *entity.Collection) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Collection, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Collection, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// AssignCluster points every listed collection at clusterId (nil clears
	// the reference) and returns the number of rows touched.
	AssignCluster(ctx context.Context, collectionIds []uuid.UUID, clusterId *uuid.UUID) (int64, error)
	// ClearCluster removes every reference to clusterId.
	ClearCluster(ctx context.Context, clusterId uuid.UUID) (int64, error)
}
