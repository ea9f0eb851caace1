// Package memory is an in-process implementation of the repository contracts.
// It backs unit tests and the CLI's dry-run mode. Every table is a go-cache
// instance keyed by row id; a transaction works on a copy of all tables and
// swaps them in on Commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"

	"github.com/patrickmn/go-cache"
)

const (
	tableClusters    = "clusters"
	tableCollections = "collections"
	tableDocuments   = "documents"
	tableEvents      = "cluster_events"
	tableSuggestions = "cluster_suggestions"
)

var tableNames = []string{tableClusters, tableCollections, tableDocuments, tableEvents, tableSuggestions}

type tables map[string]*cache.Cache

func newTables() tables {
	t := make(tables, len(tableNames))
	for _, name := range tableNames {
		t[name] = cache.New(cache.NoExpiration, 0)
	}
	return t
}

// clone copies every table. Rows are stored as values, and the repositories
// copy their slices and maps on the way in and out, so a shallow item copy is
// enough to isolate a transaction.
func (t tables) clone() tables {
	out := make(tables, len(t))
	for name, c := range t {
		items := c.Items()
		copied := make(map[string]cache.Item, len(items))
		for k, v := range items {
			copied[k] = v
		}
		out[name] = cache.NewFrom(cache.NoExpiration, 0, copied)
	}
	return out
}

// Store holds the committed state. Write transactions are serialized.
type Store struct {
	mu     sync.RWMutex
	txLock sync.Mutex
	data   tables
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{data: newTables(), now: time.Now}
}

// WithClock overrides the timestamp source used for created/updated columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) committed() tables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *Store) swap(t tables) {
	s.mu.Lock()
	s.data = t
	s.mu.Unlock()
}

// RepositoryFactory hands out units of work over a shared Store.
type RepositoryFactory struct {
	store *Store
}

var _ unitofwork.RepositoryFactory = (*RepositoryFactory)(nil)

func NewRepositoryFactory(store *Store) *RepositoryFactory {
	if store == nil {
		store = NewStore()
	}
	return &RepositoryFactory{store: store}
}

func (f *RepositoryFactory) Store() *Store {
	return f.store
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

// query evaluates specs against records. Predicates filter, OrderBy sorts and
// Pagination windows, applied in that order regardless of argument order.
func query(records []specification.Record, specs []specification.Specification) ([]specification.Record, error) {
	var (
		orders []specification.OrderBy
		page   *specification.Pagination
	)
	out := records[:0:0]
	preds := make([]specification.Predicate, 0, len(specs))
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.OrderBy:
			orders = append(orders, s)
		case specification.Pagination:
			p := s
			page = &p
		case specification.Predicate:
			preds = append(preds, s)
		default:
			return nil, fmt.Errorf("memory store: unsupported specification %T", spec)
		}
	}

	for _, r := range records {
		keep := true
		for _, p := range preds {
			if !p.Matches(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}

	if len(orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range orders {
				c := compare(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if page != nil {
		start := page.Offset
		if start > len(out) {
			start = len(out)
		}
		end := len(out)
		if page.Limit > 0 && start+page.Limit < end {
			end = start + page.Limit
		}
		out = out[start:end]
	}
	return out, nil
}

func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case time.Time:
		bv, _ := b.(time.Time)
		return compareTime(av, bv)
	case *time.Time:
		bv, _ := b.(*time.Time)
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return -1
		case bv == nil:
			return 1
		}
		return compareTime(*av, *bv)
	case float64:
		bv, _ := b.(float64)
		return compareFloat(av, bv)
	case int:
		bv, _ := b.(int)
		return compareFloat(float64(av), float64(bv))
	case int64:
		bv, _ := b.(int64)
		return compareFloat(float64(av), float64(bv))
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
