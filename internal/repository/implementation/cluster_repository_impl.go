package implementation

import (
	"context"
	"errors"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/mapper"
	"cluster-intelligence-be/internal/model"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClusterRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ClusterMapper
}

func NewClusterRepository(db *gorm.DB) contract.ClusterRepository {
	return &ClusterRepositoryImpl{
		db:     db,
		mapper: mapper.NewClusterMapper(),
	}
}

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ClusterRepositoryImpl) Create(ctx context.Context, cluster *entity.Cluster) error {
	m := r.mapper.ToModel(cluster)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*cluster = *r.mapper.ToEntity(m)
	return nil
}

func (r *ClusterRepositoryImpl) Update(ctx context.Context, cluster *entity.Cluster) error {
	m := r.mapper.ToModel(cluster)
	// Select("*") writes zero values too (auto_managed=false, empty description).
	res := r.db.WithContext(ctx).Model(&model.Cluster{}).
		Where("id = ?", m.Id).
		Select("*").Omit("id", "user_id", "created_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateHealth writes only the snapshot columns so a concurrent rename or
// merge is never overwritten.
func (r *ClusterRepositoryImpl) UpdateHealth(ctx context.Context, id uuid.UUID, snapshot *entity.HealthSnapshot, analyzedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Cluster{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"health_snapshot":  r.mapper.SnapshotToJSON(snapshot),
			"last_analyzed_at": analyzedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ClusterRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.Cluster{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ClusterRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Cluster, error) {
	var m model.Cluster
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ClusterRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Cluster, error) {
	var models []*model.Cluster
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ClusterRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Cluster{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
