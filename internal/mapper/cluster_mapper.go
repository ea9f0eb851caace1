package mapper

import (
	"encoding/json"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ClusterMapper struct{}

func NewClusterMapper() *ClusterMapper {
	return &ClusterMapper{}
}

func (m *ClusterMapper) ToEntity(c *model.Cluster) *entity.Cluster {
	if c == nil {
		return nil
	}

	var settings map[string]interface{}
	if len(c.Settings) > 0 {
		_ = json.Unmarshal(c.Settings, &settings)
	}

	var health *entity.HealthSnapshot
	if len(c.HealthSnapshot) > 0 && string(c.HealthSnapshot) != "null" {
		var h entity.HealthSnapshot
		if err := json.Unmarshal(c.HealthSnapshot, &h); err == nil {
			health = &h
		}
	}

	return &entity.Cluster{
		Id:             c.Id,
		UserId:         c.UserId,
		Name:           c.Name,
		Description:    c.Description,
		Type:           c.Type,
		Settings:       settings,
		Health:         health,
		LastAnalyzedAt: c.LastAnalyzedAt,
		AutoManaged:    c.AutoManaged,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      timePtr(c.UpdatedAt),
	}
}

func (m *ClusterMapper) ToModel(c *entity.Cluster) *model.Cluster {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Cluster{
		Id:             c.Id,
		UserId:         c.UserId,
		Name:           c.Name,
		Description:    c.Description,
		Type:           c.Type,
		Settings:       toJSON(c.Settings),
		HealthSnapshot: toJSON(c.Health),
		LastAnalyzedAt: c.LastAnalyzedAt,
		AutoManaged:    c.AutoManaged,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      updatedAt,
	}
}

func (m *ClusterMapper) SnapshotToJSON(h *entity.HealthSnapshot) datatypes.JSON {
	return toJSON(h)
}

func (m *ClusterMapper) ToEntities(clusters []*model.Cluster) []*entity.Cluster {
	entities := make([]*entity.Cluster, len(clusters))
	for i, c := range clusters {
		entities[i] = m.ToEntity(c)
	}
	return entities
}

type ClusterEventMapper struct{}

func NewClusterEventMapper() *ClusterEventMapper {
	return &ClusterEventMapper{}
}

func (m *ClusterEventMapper) ToEntity(e *model.ClusterEvent) *entity.ClusterEvent {
	if e == nil {
		return nil
	}
	var metadata map[string]interface{}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &metadata)
	}
	return &entity.ClusterEvent{
		Id:                    e.Id,
		UserId:                e.UserId,
		EventType:             e.EventType,
		SourceClusterId:       e.SourceClusterId,
		TargetClusterIds:      fromUUIDJSON(e.TargetClusterIds),
		AffectedCollectionIds: fromUUIDJSON(e.AffectedCollectionIds),
		TriggerReason:         e.TriggerReason,
		Success:               e.Success,
		ErrorDetail:           e.ErrorDetail,
		Metadata:              metadata,
		CreatedAt:             e.CreatedAt,
	}
}

func (m *ClusterEventMapper) ToModel(e *entity.ClusterEvent) *model.ClusterEvent {
	if e == nil {
		return nil
	}
	return &model.ClusterEvent{
		Id:                    e.Id,
		UserId:                e.UserId,
		EventType:             e.EventType,
		SourceClusterId:       e.SourceClusterId,
		TargetClusterIds:      toJSON(nonNilIDs(e.TargetClusterIds)),
		AffectedCollectionIds: toJSON(nonNilIDs(e.AffectedCollectionIds)),
		TriggerReason:         e.TriggerReason,
		Success:               e.Success,
		ErrorDetail:           e.ErrorDetail,
		Metadata:              toJSON(e.Metadata),
		CreatedAt:             e.CreatedAt,
	}
}

type ClusterSuggestionMapper struct{}

func NewClusterSuggestionMapper() *ClusterSuggestionMapper {
	return &ClusterSuggestionMapper{}
}

func (m *ClusterSuggestionMapper) ToEntity(s *model.ClusterSuggestion) *entity.ClusterSuggestion {
	if s == nil {
		return nil
	}
	return &entity.ClusterSuggestion{
		Id:               s.Id,
		UserId:           s.UserId,
		Type:             s.Type,
		CollectionId:     s.CollectionId,
		SourceClusterId:  s.SourceClusterId,
		TargetClusterIds: fromUUIDJSON(s.TargetClusterIds),
		Confidence:       s.Confidence,
		Reasoning:        s.Reasoning,
		Status:           s.Status,
		ExpiresAt:        s.ExpiresAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        timePtr(s.UpdatedAt),
	}
}

func (m *ClusterSuggestionMapper) ToModel(s *entity.ClusterSuggestion) *model.ClusterSuggestion {
	if s == nil {
		return nil
	}
	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}
	return &model.ClusterSuggestion{
		Id:               s.Id,
		UserId:           s.UserId,
		Type:             s.Type,
		CollectionId:     s.CollectionId,
		SourceClusterId:  s.SourceClusterId,
		TargetClusterIds: toJSON(nonNilIDs(s.TargetClusterIds)),
		Confidence:       s.Confidence,
		Reasoning:        s.Reasoning,
		Status:           s.Status,
		ExpiresAt:        s.ExpiresAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        updatedAt,
	}
}

func toJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func fromUUIDJSON(raw datatypes.JSON) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	if len(raw) == 0 {
		return ids
	}
	_ = json.Unmarshal(raw, &ids)
	if ids == nil {
		ids = make([]uuid.UUID, 0)
	}
	return ids
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
