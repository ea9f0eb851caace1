package contract

import (
	"context"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ClusterRepository interface {
	Create(ctx context.Context, cluster *entity.Cluster) error
	// Update and UpdateHealth never insert; a missing row is
	// gorm.ErrRecordNotFound.
	Update(ctx context.Context, cluster *entity.Cluster) error
	UpdateHealth(ctx context.Context, id uuid.UUID, snapshot *entity.HealthSnapshot, analyzedAt time.Time) error
	// Delete removes the cluster row. Callers clear member references first,
	// inside the same transaction.
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Cluster, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Cluster, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
