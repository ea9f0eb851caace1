package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentEmbedding is one row of document_embeddings. CollectionRef matches
// the collection's vector ref. The column is declared without a fixed
// dimension so collections embedded by different models can coexist.
type DocumentEmbedding struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CollectionRef  string          `gorm:"type:varchar(255);not null;index"`
	DocumentId     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Filename       string          `gorm:"type:varchar(512)"`
	Content        string          `gorm:"type:text"`
	ChunkIndex     int             `gorm:"default:0"`
	EmbeddingValue pgvector.Vector `gorm:"type:vector"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (DocumentEmbedding) TableName() string {
	return "document_embeddings"
}

// PgVectorStore scrolls the document_embeddings table. Pages are keyed on the
// row id, so the cursor is the last id of the previous page.
type PgVectorStore struct {
	db *gorm.DB
}

var _ VectorStore = (*PgVectorStore)(nil)

func NewPgVectorStore(db *gorm.DB) (*PgVectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrInvalidConfig)
	}
	return &PgVectorStore{db: db}, nil
}

func (s *PgVectorStore) Scroll(ctx context.Context, collectionRef string, opts ScrollOptions) (*ScrollResult, error) {
	limit := ClampPageSize(opts.Limit)

	query := s.db.WithContext(ctx).
		Model(&DocumentEmbedding{}).
		Where("collection_ref = ?", collectionRef).
		Order("id ASC").
		Limit(limit)
	if opts.Offset != "" {
		after, err := uuid.Parse(opts.Offset)
		if err != nil {
			return nil, fmt.Errorf("invalid scroll offset %q: %w", opts.Offset, err)
		}
		query = query.Where("id > ?", after)
	}
	if !opts.WithVector {
		query = query.Omit("embedding_value")
	}

	var rows []*DocumentEmbedding
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := &ScrollResult{Points: make([]*Point, 0, len(rows))}
	for _, row := range rows {
		result.Points = append(result.Points, embeddingToPoint(row, opts))
	}
	if len(rows) == limit {
		result.NextOffset = rows[len(rows)-1].Id.String()
	}
	return result, nil
}

func (s *PgVectorStore) Close() error {
	return nil
}

func embeddingToPoint(row *DocumentEmbedding, opts ScrollOptions) *Point {
	p := &Point{ID: row.Id.String()}
	if opts.WithVector {
		p.Vector = row.EmbeddingValue.Slice()
	}
	if opts.WithPayload {
		p.Payload = map[string]interface{}{
			"document_id": row.DocumentId.String(),
			"filename":    row.Filename,
			"content":     row.Content,
			"chunk_index": row.ChunkIndex,
		}
	}
	return p
}
