package implementation

import (
	"context"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/model"
	"cluster-intelligence-be/internal/repository/contract"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepositoryImpl struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &DocumentRepositoryImpl{db: db}
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, document *entity.Document) error {
	m := &model.Document{
		Id:           document.Id,
		CollectionId: document.CollectionId,
		UserId:       document.UserId,
		Filename:     document.Filename,
		Excerpt:      document.Excerpt,
		CreatedAt:    document.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	document.Id = m.Id
	document.CreatedAt = m.CreatedAt
	return nil
}

func (r *DocumentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	var models []*model.Document
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]*entity.Document, len(models))
	for i, m := range models {
		var updatedAt *time.Time
		if !m.UpdatedAt.IsZero() {
			t := m.UpdatedAt
			updatedAt = &t
		}
		docs[i] = &entity.Document{
			Id:           m.Id,
			CollectionId: m.CollectionId,
			UserId:       m.UserId,
			Filename:     m.Filename,
			Excerpt:      m.Excerpt,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    updatedAt,
		}
	}
	return docs, nil
}

func (r *DocumentRepositoryImpl) CountByCollection(ctx context.Context, collectionIds []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	if len(collectionIds) == 0 {
		return counts, nil
	}

	type row struct {
		CollectionId uuid.UUID
		Total        int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Select("collection_id, COUNT(*) AS total").
		Where("collection_id IN ?", collectionIds).
		Group("collection_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, rw := range rows {
		counts[rw.CollectionId] = rw.Total
	}
	return counts, nil
}
