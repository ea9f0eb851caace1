package contract

import (
	"context"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ClusterSuggestionRepository interface {
	Create(ctx context.Context, suggestion *entity.ClusterSuggestion) error
	Update(ctx context.Context, suggestion *entity.ClusterSuggestion) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ClusterSuggestion, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterSuggestion, error)
	// ExpirePending flips every pending suggestion matched by specs to
	// expired and returns how many changed.
	ExpirePending(ctx context.Context, specs ...specification.Specification) (int64, error)
}
