package implementation

import (
	"context"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/mapper"
	"cluster-intelligence-be/internal/model"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClusterEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ClusterEventMapper
}

func NewClusterEventRepository(db *gorm.DB) contract.ClusterEventRepository {
	return &ClusterEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewClusterEventMapper(),
	}
}

func (r *ClusterEventRepositoryImpl) Create(ctx context.Context, event *entity.ClusterEvent) error {
	m := r.mapper.ToModel(event)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*event = *r.mapper.ToEntity(m)
	return nil
}

func (r *ClusterEventRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterEvent, error) {
	var models []*model.ClusterEvent
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	events := make([]*entity.ClusterEvent, len(models))
	for i, m := range models {
		events[i] = r.mapper.ToEntity(m)
	}
	return events, nil
}

func (r *ClusterEventRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.ClusterEvent{}), specs...)
	err := query.Count(&count).Error
	return count, err
}

type ClusterSuggestionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ClusterSuggestionMapper
}

func NewClusterSuggestionRepository(db *gorm.DB) contract.ClusterSuggestionRepository {
	return &ClusterSuggestionRepositoryImpl{
		db:     db,
		mapper: mapper.NewClusterSuggestionMapper(),
	}
}

func (r *ClusterSuggestionRepositoryImpl) Create(ctx context.Context, suggestion *entity.ClusterSuggestion) error {
	m := r.mapper.ToModel(suggestion)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*suggestion = *r.mapper.ToEntity(m)
	return nil
}

func (r *ClusterSuggestionRepositoryImpl) Update(ctx context.Context, suggestion *entity.ClusterSuggestion) error {
	m := r.mapper.ToModel(suggestion)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*suggestion = *r.mapper.ToEntity(m)
	return nil
}

func (r *ClusterSuggestionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.ClusterSuggestion{}, id).Error
}

func (r *ClusterSuggestionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ClusterSuggestion, error) {
	var m model.ClusterSuggestion
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.Id == uuid.Nil {
		return nil, nil
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ClusterSuggestionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterSuggestion, error) {
	var models []*model.ClusterSuggestion
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	suggestions := make([]*entity.ClusterSuggestion, len(models))
	for i, m := range models {
		suggestions[i] = r.mapper.ToEntity(m)
	}
	return suggestions, nil
}

func (r *ClusterSuggestionRepositoryImpl) ExpirePending(ctx context.Context, specs ...specification.Specification) (int64, error) {
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.ClusterSuggestion{}), specs...)
	res := query.Where("status = ?", "pending").Update("status", "expired")
	return res.RowsAffected, res.Error
}
