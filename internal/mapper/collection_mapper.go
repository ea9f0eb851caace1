package mapper

import (
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/model"

	"gorm.io/gorm"
)

type CollectionMapper struct{}

func NewCollectionMapper() *CollectionMapper {
	return &CollectionMapper{}
}

func (m *CollectionMapper) ToEntity(c *model.Collection) *entity.Collection {
	if c == nil {
		return nil
	}
	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}
	return &entity.Collection{
		Id:          c.Id,
		UserId:      c.UserId,
		Name:        c.Name,
		Description: c.Description,
		VectorRef:   c.VectorRef,
		ClusterId:   c.ClusterId,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   timePtr(c.UpdatedAt),
		DeletedAt:   deletedAt,
		IsDeleted:   c.DeletedAt.Valid,
	}
}

func (m *CollectionMapper) ToModel(c *entity.Collection) *model.Collection {
	if c == nil {
		return nil
	}
	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	} else if c.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}
	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}
	return &model.Collection{
		Id:          c.Id,
		UserId:      c.UserId,
		Name:        c.Name,
		Description: c.Description,
		VectorRef:   c.VectorRef,
		ClusterId:   c.ClusterId,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
	}
}

func (m *CollectionMapper) ToEntities(collections []*model.Collection) []*entity.Collection {
	entities := make([]*entity.Collection, len(collections))
	for i, c := range collections {
		entities[i] = m.ToEntity(c)
	}
	return entities
}
