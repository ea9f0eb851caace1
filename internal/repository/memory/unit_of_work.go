package memory

import (
	"context"
	"fmt"

	"cluster-intelligence-be/internal/repository/contract"
)

// UnitOfWork reads committed data until Begin, then reads and writes a private
// copy until Commit or Rollback.
type UnitOfWork struct {
	store *Store
	tx    tables
}

func (u *UnitOfWork) tables() tables {
	if u.tx != nil {
		return u.tx
	}
	return u.store.committed()
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.store.txLock.Lock()
	u.tx = u.store.committed().clone()
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	u.store.swap(u.tx)
	u.tx = nil
	u.store.txLock.Unlock()
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	u.tx = nil
	u.store.txLock.Unlock()
	return nil
}

func (u *UnitOfWork) ClusterRepository() contract.ClusterRepository {
	return &clusterRepository{uow: u}
}

func (u *UnitOfWork) CollectionRepository() contract.CollectionRepository {
	return &collectionRepository{uow: u}
}

func (u *UnitOfWork) DocumentRepository() contract.DocumentRepository {
	return &documentRepository{uow: u}
}

func (u *UnitOfWork) ClusterEventRepository() contract.ClusterEventRepository {
	return &clusterEventRepository{uow: u}
}

func (u *UnitOfWork) ClusterSuggestionRepository() contract.ClusterSuggestionRepository {
	return &clusterSuggestionRepository{uow: u}
}

// write runs fn against the transaction copy, or as its own short
// transaction when Begin was not called.
func (u *UnitOfWork) write(fn func(t tables) error) error {
	if u.tx != nil {
		return fn(u.tx)
	}
	u.store.txLock.Lock()
	defer u.store.txLock.Unlock()
	t := u.store.committed().clone()
	if err := fn(t); err != nil {
		return err
	}
	u.store.swap(t)
	return nil
}
