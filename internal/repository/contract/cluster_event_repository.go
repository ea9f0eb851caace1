package contract

import (
	"context"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"
)

// ClusterEventRepository is append-only.
type ClusterEventRepository interface {
	Create(ctx context.Context, event *entity.ClusterEvent) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterEvent, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
