// Package vectorstore is the boundary to the external vector store that holds
// per-collection document embeddings.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// MaxPageSize bounds how many points a single scroll page may carry.
const MaxPageSize = 1000

var ErrInvalidConfig = errors.New("invalid vector store config")

// Point is one stored embedding and its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

type ScrollOptions struct {
	Limit       int
	Offset      string // opaque cursor returned by the previous page, "" for the first
	WithVector  bool
	WithPayload bool
}

type ScrollResult struct {
	Points     []*Point
	NextOffset string // "" when there are no more pages
}

// VectorStore pages through the points of one collection. Unknown collections
// must yield an empty result rather than an error.
type VectorStore interface {
	Scroll(ctx context.Context, collectionRef string, opts ScrollOptions) (*ScrollResult, error)
	Close() error
}

// ClampPageSize returns a page size within (0, MaxPageSize].
func ClampPageSize(size int) int {
	if size <= 0 || size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// ScrollAll collects every point of a collection, following cursors until the
// store reports no further page. maxPoints <= 0 means unbounded; truncated
// reports that the cap cut the scroll short.
func ScrollAll(ctx context.Context, store VectorStore, collectionRef string, pageSize, maxPoints int) (points []*Point, truncated bool, err error) {
	pageSize = ClampPageSize(pageSize)

	var all []*Point
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		res, err := store.Scroll(ctx, collectionRef, ScrollOptions{
			Limit:       pageSize,
			Offset:      offset,
			WithVector:  true,
			WithPayload: true,
		})
		if err != nil {
			return nil, false, fmt.Errorf("scroll %s: %w", collectionRef, err)
		}
		if res == nil || len(res.Points) == 0 {
			break
		}
		all = append(all, res.Points...)
		more := res.NextOffset != "" && res.NextOffset != offset
		if maxPoints > 0 && len(all) >= maxPoints {
			truncated = len(all) > maxPoints || more
			all = all[:maxPoints]
			break
		}
		if !more {
			break
		}
		offset = res.NextOffset
	}
	return all, truncated, nil
}
