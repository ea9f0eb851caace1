package memory

import (
	"context"
	"sort"
	"time"

	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// The repositories return the same sentinel errors GORM does (with
// TranslateError enabled) so services handle both stores alike.

func put(c *cache.Cache, id uuid.UUID, v interface{}) {
	c.Set(id.String(), v, cache.NoExpiration)
}

func touch(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

func copyIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Clusters

type clusterRepository struct {
	uow *UnitOfWork
}

func cloneCluster(c entity.Cluster) entity.Cluster {
	c.Settings = copyMap(c.Settings)
	if c.Health != nil {
		h := *c.Health
		h.Issues = append([]string(nil), c.Health.Issues...)
		h.Recommendations = append([]string(nil), c.Health.Recommendations...)
		c.Health = &h
	}
	c.LastAnalyzedAt = copyTimePtr(c.LastAnalyzedAt)
	c.UpdatedAt = copyTimePtr(c.UpdatedAt)
	return c
}

func clusterRecord(c entity.Cluster) specification.Record {
	return specification.Record{
		"id":           c.Id,
		"user_id":      c.UserId,
		"name":         c.Name,
		"type":         c.Type,
		"auto_managed": c.AutoManaged,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}
}

func nameTaken(t tables, c *entity.Cluster) bool {
	for _, item := range t[tableClusters].Items() {
		other := item.Object.(entity.Cluster)
		if other.Id != c.Id && other.UserId == c.UserId && other.Name == c.Name {
			return true
		}
	}
	return false
}

func (r *clusterRepository) Create(ctx context.Context, cluster *entity.Cluster) error {
	return r.uow.write(func(t tables) error {
		if cluster.Id == uuid.Nil {
			cluster.Id = uuid.New()
		}
		if _, exists := t[tableClusters].Get(cluster.Id.String()); exists || nameTaken(t, cluster) {
			return gorm.ErrDuplicatedKey
		}
		now := r.uow.store.now()
		touch(&cluster.CreatedAt, now)
		if cluster.UpdatedAt == nil {
			cluster.UpdatedAt = &now
		}
		put(t[tableClusters], cluster.Id, cloneCluster(*cluster))
		return nil
	})
}

func (r *clusterRepository) Update(ctx context.Context, cluster *entity.Cluster) error {
	return r.uow.write(func(t tables) error {
		obj, ok := t[tableClusters].Get(cluster.Id.String())
		if !ok {
			return gorm.ErrRecordNotFound
		}
		if nameTaken(t, cluster) {
			return gorm.ErrDuplicatedKey
		}
		stored := obj.(entity.Cluster)
		cluster.UserId = stored.UserId
		cluster.CreatedAt = stored.CreatedAt
		now := r.uow.store.now()
		cluster.UpdatedAt = &now
		put(t[tableClusters], cluster.Id, cloneCluster(*cluster))
		return nil
	})
}

func (r *clusterRepository) UpdateHealth(ctx context.Context, id uuid.UUID, snapshot *entity.HealthSnapshot, analyzedAt time.Time) error {
	return r.uow.write(func(t tables) error {
		obj, ok := t[tableClusters].Get(id.String())
		if !ok {
			return gorm.ErrRecordNotFound
		}
		c := obj.(entity.Cluster)
		c.Health = snapshot
		c.LastAnalyzedAt = &analyzedAt
		put(t[tableClusters], id, cloneCluster(c))
		return nil
	})
}

func (r *clusterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.uow.write(func(t tables) error {
		if _, ok := t[tableClusters].Get(id.String()); !ok {
			return gorm.ErrRecordNotFound
		}
		t[tableClusters].Delete(id.String())
		return nil
	})
}

func (r *clusterRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Cluster, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *clusterRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Cluster, error) {
	items := r.uow.tables()[tableClusters].Items()
	byID := make(map[uuid.UUID]entity.Cluster, len(items))
	records := make([]specification.Record, 0, len(items))
	for _, item := range items {
		c := item.Object.(entity.Cluster)
		byID[c.Id] = c
		records = append(records, clusterRecord(c))
	}
	matched, err := query(sortedByCreation(records), specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Cluster, len(matched))
	for i, rec := range matched {
		c := cloneCluster(byID[rec["id"].(uuid.UUID)])
		out[i] = &c
	}
	return out, nil
}

func (r *clusterRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

// Collections

type collectionRepository struct {
	uow *UnitOfWork
}

func cloneCollection(c entity.Collection) entity.Collection {
	c.ClusterId = copyIDPtr(c.ClusterId)
	c.UpdatedAt = copyTimePtr(c.UpdatedAt)
	c.DeletedAt = copyTimePtr(c.DeletedAt)
	return c
}

func collectionRecord(c entity.Collection) specification.Record {
	return specification.Record{
		"id":         c.Id,
		"user_id":    c.UserId,
		"name":       c.Name,
		"vector_ref": c.VectorRef,
		"cluster_id": c.ClusterId,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}

func (r *collectionRepository) Create(ctx context.Context, collection *entity.Collection) error {
	return r.uow.write(func(t tables) error {
		if collection.Id == uuid.Nil {
			collection.Id = uuid.New()
		}
		if _, exists := t[tableCollections].Get(collection.Id.String()); exists {
			return gorm.ErrDuplicatedKey
		}
		now := r.uow.store.now()
		touch(&collection.CreatedAt, now)
		if collection.UpdatedAt == nil {
			collection.UpdatedAt = &now
		}
		put(t[tableCollections], collection.Id, cloneCollection(*collection))
		return nil
	})
}

func (r *collectionRepository) Update(ctx context.Context, collection *entity.Collection) error {
	return r.uow.write(func(t tables) error {
		now := r.uow.store.now()
		collection.UpdatedAt = &now
		put(t[tableCollections], collection.Id, cloneCollection(*collection))
		return nil
	})
}

func (r *collectionRepository) live(includeDeleted bool) map[uuid.UUID]entity.Collection {
	items := r.uow.tables()[tableCollections].Items()
	out := make(map[uuid.UUID]entity.Collection, len(items))
	for _, item := range items {
		c := item.Object.(entity.Collection)
		if c.IsDeleted && !includeDeleted {
			continue
		}
		out[c.Id] = c
	}
	return out
}

func (r *collectionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Collection, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *collectionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Collection, error) {
	byID := r.live(false)
	records := make([]specification.Record, 0, len(byID))
	for _, c := range byID {
		records = append(records, collectionRecord(c))
	}
	matched, err := query(sortedByCreation(records), specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Collection, len(matched))
	for i, rec := range matched {
		c := cloneCollection(byID[rec["id"].(uuid.UUID)])
		out[i] = &c
	}
	return out, nil
}

func (r *collectionRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *collectionRepository) AssignCluster(ctx context.Context, collectionIds []uuid.UUID, clusterId *uuid.UUID) (int64, error) {
	var n int64
	err := r.uow.write(func(t tables) error {
		for _, id := range collectionIds {
			obj, ok := t[tableCollections].Get(id.String())
			if !ok {
				continue
			}
			c := obj.(entity.Collection)
			if c.IsDeleted {
				continue
			}
			c.ClusterId = copyIDPtr(clusterId)
			put(t[tableCollections], c.Id, c)
			n++
		}
		return nil
	})
	return n, err
}

func (r *collectionRepository) ClearCluster(ctx context.Context, clusterId uuid.UUID) (int64, error) {
	var n int64
	err := r.uow.write(func(t tables) error {
		for _, item := range t[tableCollections].Items() {
			c := item.Object.(entity.Collection)
			if c.ClusterId == nil || *c.ClusterId != clusterId {
				continue
			}
			c.ClusterId = nil
			put(t[tableCollections], c.Id, c)
			n++
		}
		return nil
	})
	return n, err
}

// Documents

type documentRepository struct {
	uow *UnitOfWork
}

func (r *documentRepository) Create(ctx context.Context, document *entity.Document) error {
	return r.uow.write(func(t tables) error {
		if document.Id == uuid.Nil {
			document.Id = uuid.New()
		}
		touch(&document.CreatedAt, r.uow.store.now())
		d := *document
		d.UpdatedAt = copyTimePtr(document.UpdatedAt)
		put(t[tableDocuments], d.Id, d)
		return nil
	})
}

func (r *documentRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	items := r.uow.tables()[tableDocuments].Items()
	byID := make(map[uuid.UUID]entity.Document, len(items))
	records := make([]specification.Record, 0, len(items))
	for _, item := range items {
		d := item.Object.(entity.Document)
		byID[d.Id] = d
		records = append(records, specification.Record{
			"id":            d.Id,
			"user_id":       d.UserId,
			"collection_id": d.CollectionId,
			"filename":      d.Filename,
			"created_at":    d.CreatedAt,
		})
	}
	matched, err := query(sortedByCreation(records), specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Document, len(matched))
	for i, rec := range matched {
		d := byID[rec["id"].(uuid.UUID)]
		out[i] = &d
	}
	return out, nil
}

func (r *documentRepository) CountByCollection(ctx context.Context, collectionIds []uuid.UUID) (map[uuid.UUID]int64, error) {
	wanted := make(map[uuid.UUID]bool, len(collectionIds))
	for _, id := range collectionIds {
		wanted[id] = true
	}
	counts := make(map[uuid.UUID]int64)
	for _, item := range r.uow.tables()[tableDocuments].Items() {
		d := item.Object.(entity.Document)
		if wanted[d.CollectionId] {
			counts[d.CollectionId]++
		}
	}
	return counts, nil
}

// Events

type clusterEventRepository struct {
	uow *UnitOfWork
}

func cloneEvent(e entity.ClusterEvent) entity.ClusterEvent {
	e.SourceClusterId = copyIDPtr(e.SourceClusterId)
	e.TargetClusterIds = copyIDs(e.TargetClusterIds)
	e.AffectedCollectionIds = copyIDs(e.AffectedCollectionIds)
	e.Metadata = copyMap(e.Metadata)
	return e
}

func (r *clusterEventRepository) Create(ctx context.Context, event *entity.ClusterEvent) error {
	return r.uow.write(func(t tables) error {
		if event.Id == uuid.Nil {
			event.Id = uuid.New()
		}
		touch(&event.CreatedAt, r.uow.store.now())
		put(t[tableEvents], event.Id, cloneEvent(*event))
		return nil
	})
}

func (r *clusterEventRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterEvent, error) {
	items := r.uow.tables()[tableEvents].Items()
	byID := make(map[uuid.UUID]entity.ClusterEvent, len(items))
	records := make([]specification.Record, 0, len(items))
	for _, item := range items {
		e := item.Object.(entity.ClusterEvent)
		byID[e.Id] = e
		records = append(records, specification.Record{
			"id":                e.Id,
			"user_id":           e.UserId,
			"event_type":        e.EventType,
			"source_cluster_id": e.SourceClusterId,
			"success":           e.Success,
			"created_at":        e.CreatedAt,
		})
	}
	matched, err := query(sortedByCreation(records), specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.ClusterEvent, len(matched))
	for i, rec := range matched {
		e := cloneEvent(byID[rec["id"].(uuid.UUID)])
		out[i] = &e
	}
	return out, nil
}

func (r *clusterEventRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

// Suggestions

type clusterSuggestionRepository struct {
	uow *UnitOfWork
}

func cloneSuggestion(s entity.ClusterSuggestion) entity.ClusterSuggestion {
	s.CollectionId = copyIDPtr(s.CollectionId)
	s.SourceClusterId = copyIDPtr(s.SourceClusterId)
	s.TargetClusterIds = copyIDs(s.TargetClusterIds)
	s.ExpiresAt = copyTimePtr(s.ExpiresAt)
	s.UpdatedAt = copyTimePtr(s.UpdatedAt)
	return s
}

func suggestionRecord(s entity.ClusterSuggestion) specification.Record {
	return specification.Record{
		"id":                s.Id,
		"user_id":           s.UserId,
		"type":              s.Type,
		"status":            s.Status,
		"collection_id":     s.CollectionId,
		"source_cluster_id": s.SourceClusterId,
		"confidence":        s.Confidence,
		"expires_at":        s.ExpiresAt,
		"created_at":        s.CreatedAt,
	}
}

func (r *clusterSuggestionRepository) Create(ctx context.Context, suggestion *entity.ClusterSuggestion) error {
	return r.uow.write(func(t tables) error {
		if suggestion.Id == uuid.Nil {
			suggestion.Id = uuid.New()
		}
		now := r.uow.store.now()
		touch(&suggestion.CreatedAt, now)
		if suggestion.Status == "" {
			suggestion.Status = "pending"
		}
		put(t[tableSuggestions], suggestion.Id, cloneSuggestion(*suggestion))
		return nil
	})
}

func (r *clusterSuggestionRepository) Update(ctx context.Context, suggestion *entity.ClusterSuggestion) error {
	return r.uow.write(func(t tables) error {
		now := r.uow.store.now()
		suggestion.UpdatedAt = &now
		put(t[tableSuggestions], suggestion.Id, cloneSuggestion(*suggestion))
		return nil
	})
}

func (r *clusterSuggestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.uow.write(func(t tables) error {
		t[tableSuggestions].Delete(id.String())
		return nil
	})
}

func (r *clusterSuggestionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ClusterSuggestion, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *clusterSuggestionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ClusterSuggestion, error) {
	items := r.uow.tables()[tableSuggestions].Items()
	byID := make(map[uuid.UUID]entity.ClusterSuggestion, len(items))
	records := make([]specification.Record, 0, len(items))
	for _, item := range items {
		s := item.Object.(entity.ClusterSuggestion)
		byID[s.Id] = s
		records = append(records, suggestionRecord(s))
	}
	matched, err := query(sortedByCreation(records), specs)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.ClusterSuggestion, len(matched))
	for i, rec := range matched {
		s := cloneSuggestion(byID[rec["id"].(uuid.UUID)])
		out[i] = &s
	}
	return out, nil
}

func (r *clusterSuggestionRepository) ExpirePending(ctx context.Context, specs ...specification.Specification) (int64, error) {
	matched, err := r.FindAll(ctx, specs...)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.uow.write(func(t tables) error {
		now := r.uow.store.now()
		for _, s := range matched {
			if s.Status != "pending" {
				continue
			}
			s.Status = "expired"
			s.UpdatedAt = &now
			put(t[tableSuggestions], s.Id, cloneSuggestion(*s))
			n++
		}
		return nil
	})
	return n, err
}

// sortedByCreation gives map-backed tables a stable default order: creation
// time, then id.
func sortedByCreation(records []specification.Record) []specification.Record {
	sort.Slice(records, func(i, j int) bool {
		a, _ := records[i]["created_at"].(time.Time)
		b, _ := records[j]["created_at"].(time.Time)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return records[i]["id"].(uuid.UUID).String() < records[j]["id"].(uuid.UUID).String()
	})
	return records
}
