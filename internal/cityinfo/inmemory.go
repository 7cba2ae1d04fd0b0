package cityinfo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. Each unit of work
// buffers its mutations and applies them under the write lock on SaveChanges.
type InMemory struct {
	mu      sync.RWMutex
	cities  map[int]*City
	nextPOI int

	// failCommit, when set, is returned by SaveChanges instead of applying.
	failCommit error
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a store holding copies of the given cities.
func NewInMemory(cities ...City) *InMemory {
	s := &InMemory{cities: make(map[int]*City, len(cities))}
	for _, c := range cities {
		c := c.clone()
		for i := range c.PointsOfInterest {
			c.PointsOfInterest[i].CityID = c.ID
			if c.PointsOfInterest[i].ID > s.nextPOI {
				s.nextPOI = c.PointsOfInterest[i].ID
			}
		}
		s.cities[c.ID] = &c
	}
	return s
}

// FailCommits makes every later SaveChanges fail with err (nil restores normal
// behaviour). Intended for tests of the storage-error path.
func (s *InMemory) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
}

func (s *InMemory) Begin(ctx context.Context) (Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memUnit{store: s}, nil
}

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

type stagedOp struct {
	kind   opKind
	cityID int
	poi    PointOfInterest
	target *PointOfInterest // opAdd only; receives the assigned id
}

type memUnit struct {
	store  *InMemory
	ops    []stagedOp
	closed bool
}

var errClosed = errors.New("unit of work is closed")

func (u *memUnit) CityExists(ctx context.Context, cityID int) (bool, error) {
	if u.closed {
		return false, errClosed
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	_, ok := u.store.cities[cityID]
	return ok, nil
}

func (u *memUnit) GetCity(ctx context.Context, cityID int, includePointsOfInterest bool) (City, error) {
	if u.closed {
		return City{}, errClosed
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	c, ok := u.store.cities[cityID]
	if !ok {
		return City{}, ErrNotFound
	}
	out := c.clone()
	if !includePointsOfInterest {
		out.PointsOfInterest = nil
	}
	return out, nil
}

func (u *memUnit) GetCities(ctx context.Context, q CityQuery) ([]City, PaginationMetadata, error) {
	if u.closed {
		return nil, PaginationMetadata{}, errClosed
	}
	if q.PageNumber < 1 || q.PageSize < 1 {
		return nil, PaginationMetadata{}, fmt.Errorf("invalid page %d/%d", q.PageNumber, q.PageSize)
	}
	name := strings.ToLower(strings.TrimSpace(q.Name))
	search := strings.ToLower(strings.TrimSpace(q.SearchQuery))

	u.store.mu.RLock()
	matched := make([]City, 0, len(u.store.cities))
	for _, c := range u.store.cities {
		lname := strings.ToLower(c.Name)
		if name != "" && !strings.Contains(lname, name) {
			continue
		}
		if search != "" && !strings.Contains(lname, search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		out := c.clone()
		out.PointsOfInterest = nil
		matched = append(matched, out)
	}
	u.store.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	meta := NewPaginationMetadata(len(matched), q.PageSize, q.PageNumber)
	start := q.Offset()
	if start >= len(matched) {
		return []City{}, meta, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], meta, nil
}

func (u *memUnit) GetPointsOfInterest(ctx context.Context, cityID int) ([]PointOfInterest, error) {
	if u.closed {
		return nil, errClosed
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	c, ok := u.store.cities[cityID]
	if !ok {
		return nil, ErrNotFound
	}
	out := append([]PointOfInterest{}, c.PointsOfInterest...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u *memUnit) GetPointOfInterest(ctx context.Context, cityID, id int) (PointOfInterest, error) {
	if u.closed {
		return PointOfInterest{}, errClosed
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	c, ok := u.store.cities[cityID]
	if !ok {
		return PointOfInterest{}, ErrNotFound
	}
	for _, p := range c.PointsOfInterest {
		if p.ID == id {
			return p, nil
		}
	}
	return PointOfInterest{}, ErrNotFound
}

func (u *memUnit) AddPointOfInterest(ctx context.Context, cityID int, poi *PointOfInterest) error {
	if u.closed {
		return errClosed
	}
	if poi == nil {
		return errors.New("nil point of interest")
	}
	poi.CityID = cityID
	u.ops = append(u.ops, stagedOp{kind: opAdd, cityID: cityID, poi: *poi, target: poi})
	return nil
}

func (u *memUnit) UpdatePointOfInterest(ctx context.Context, poi PointOfInterest) error {
	if u.closed {
		return errClosed
	}
	u.ops = append(u.ops, stagedOp{kind: opUpdate, cityID: poi.CityID, poi: poi})
	return nil
}

func (u *memUnit) DeletePointOfInterest(ctx context.Context, poi PointOfInterest) error {
	if u.closed {
		return errClosed
	}
	u.ops = append(u.ops, stagedOp{kind: opDelete, cityID: poi.CityID, poi: poi})
	return nil
}

// SaveChanges validates every staged operation against the committed state and
// then applies them all, or none.
func (u *memUnit) SaveChanges(ctx context.Context) error {
	if u.closed {
		return fmt.Errorf("%w: %w", ErrStorage, errClosed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		return fmt.Errorf("%w: %w", ErrStorage, s.failCommit)
	}

	// Replay against a scratch copy of the affected cities so a late conflict
	// leaves the committed state untouched.
	scratch := make(map[int]City)
	nextPOI := s.nextPOI
	city := func(id int) (City, bool) {
		if c, ok := scratch[id]; ok {
			return c, true
		}
		c, ok := s.cities[id]
		if !ok {
			return City{}, false
		}
		scratch[id] = c.clone()
		return scratch[id], true
	}

	assigned := make([]int, len(u.ops))
	for i, op := range u.ops {
		c, ok := city(op.cityID)
		if !ok {
			return fmt.Errorf("city %d: %w", op.cityID, ErrNotFound)
		}
		switch op.kind {
		case opAdd:
			nextPOI++
			p := op.poi
			p.ID = nextPOI
			p.CityID = c.ID
			c.PointsOfInterest = append(c.PointsOfInterest, p)
			assigned[i] = p.ID
		case opUpdate, opDelete:
			idx := indexOf(c.PointsOfInterest, op.poi.ID)
			if idx < 0 {
				return fmt.Errorf("point of interest %d: %w", op.poi.ID, ErrNotFound)
			}
			if op.kind == opUpdate {
				c.PointsOfInterest[idx].Name = op.poi.Name
				c.PointsOfInterest[idx].Description = op.poi.Description
			} else {
				c.PointsOfInterest = append(c.PointsOfInterest[:idx:idx], c.PointsOfInterest[idx+1:]...)
			}
		}
		scratch[c.ID] = c
	}

	for id, c := range scratch {
		c := c
		s.cities[id] = &c
	}
	s.nextPOI = nextPOI
	for i, op := range u.ops {
		if op.kind == opAdd && op.target != nil {
			op.target.ID = assigned[i]
		}
	}
	u.ops = nil
	return nil
}

func (u *memUnit) Close() error {
	u.ops = nil
	u.closed = true
	return nil
}

func indexOf(ps []PointOfInterest, id int) int {
	for i, p := range ps {
		if p.ID == id {
			return i
		}
	}
	return -1
}
