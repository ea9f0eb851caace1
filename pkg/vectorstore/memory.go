package vectorstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore keeps points in process. Used by tests and the CLI's offline
// mode. Offsets are decimal indexes into the collection's point list.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]*Point
}

var _ VectorStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]*Point)}
}

// Upsert adds or replaces points by id.
func (s *MemoryStore) Upsert(collectionRef string, points ...*Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.collections[collectionRef]
	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.ID] = i
	}
	for _, p := range points {
		if i, ok := index[p.ID]; ok {
			existing[i] = p
			continue
		}
		index[p.ID] = len(existing)
		existing = append(existing, p)
	}
	sort.SliceStable(existing, func(i, j int) bool { return existing[i].ID < existing[j].ID })
	s.collections[collectionRef] = existing
}

func (s *MemoryStore) Scroll(ctx context.Context, collectionRef string, opts ScrollOptions) (*ScrollResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.collections[collectionRef]
	start := 0
	if opts.Offset != "" {
		n, err := strconv.Atoi(opts.Offset)
		if err != nil || n < 0 {
			return &ScrollResult{}, nil
		}
		start = n
	}
	if start >= len(points) {
		return &ScrollResult{}, nil
	}
	end := start + ClampPageSize(opts.Limit)
	if end > len(points) {
		end = len(points)
	}

	result := &ScrollResult{Points: make([]*Point, 0, end-start)}
	for _, p := range points[start:end] {
		out := &Point{ID: p.ID}
		if opts.WithVector {
			out.Vector = append([]float32(nil), p.Vector...)
		}
		if opts.WithPayload {
			out.Payload = p.Payload
		}
		result.Points = append(result.Points, out)
	}
	if end < len(points) {
		result.NextOffset = strconv.Itoa(end)
	}
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
