package unitofwork

import (
	"context"

	"cluster-intelligence-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ClusterRepository() contract.ClusterRepository
	CollectionRepository() contract.CollectionRepository
	DocumentRepository() contract.DocumentRepository
	ClusterEventRepository() contract.ClusterEventRepository
	ClusterSuggestionRepository() contract.ClusterSuggestionRepository
}
