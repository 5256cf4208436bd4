package places

import (
	"context"
	"sort"
	"strings"
	"sync"

	"waypoint/cmd/identity/ids"
)

// MemoryStore keeps places in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Place
	order []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Place)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Place, error) {
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}
	in, err := normalizeCreate(in)
	if err != nil {
		return Place{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Place{}, err
	}

	p := Place{
		ID:        id,
		Name:      in.Name,
		Info:      in.Info,
		CreatedBy: in.CreatedBy,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[id] = p
	s.order = append(s.order, id)
	// Keep creation order stable even when callers pass out-of-order clocks.
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.byID[s.order[i]], s.byID[s.order[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return p, nil
}

func (s *MemoryStore) List(ctx context.Context, offset, limit int) ([]Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset, limit = ClampPage(offset, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.order) {
		return []Place{}, nil
	}
	end := min(offset+limit, len(s.order))
	out := make([]Place, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Place, error) {
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Place{}, ErrNotFound
	}
	return p, nil
}
