package implementation

import (
	"context"
	"errors"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/mapper"
	"cluster-intelligence-be/internal/model"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CollectionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CollectionMapper
}

func NewCollectionRepository(db *gorm.DB) contract.CollectionRepository {
	return &CollectionRepositoryImpl{
		db:     db,
		mapper: mapper.NewCollectionMapper(),
	}
}

func (r *CollectionRepositoryImpl) Create(ctx context.Context, collection *entity.Collection) error {
	m := r.mapper.ToModel(collection)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*collection = *r.mapper.ToEntity(m)
	return nil
}

func (r *CollectionRepositoryImpl) Update(ctx context.Context, collection *entity.Collection) error {
	m := r.mapper.ToModel(collection)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*collection = *r.mapper.ToEntity(m)
	return nil
}

func (r *CollectionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Collection, error) {
	var m model.Collection
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *CollectionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Collection, error) {
	var models []*model.Collection
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *CollectionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Collection{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CollectionRepositoryImpl) AssignCluster(ctx context.Context, collectionIds []uuid.UUID, clusterId *uuid.UUID) (int64, error) {
	if len(collectionIds) == 0 {
		return 0, nil
	}
	// Membership changes do not count as collection activity, so updated_at
	// is left alone.
	res := r.db.WithContext(ctx).Model(&model.Collection{}).
		Where("id IN ?", collectionIds).
		UpdateColumn("cluster_id", clusterId)
	return res.RowsAffected, res.Error
}

func (r *CollectionRepositoryImpl) ClearCluster(ctx context.Context, clusterId uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().Model(&model.Collection{}).
		Where("cluster_id = ?", clusterId).
		UpdateColumn("cluster_id", nil)
	return res.RowsAffected, res.Error
}
