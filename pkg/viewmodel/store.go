package viewmodel

import (
	"sync"

	"tableflip.dev/shopdesk/pkg/record"
)

// Store is the local projection of one live collection: the latest full
// snapshot plus view-only state. Snapshot replacement leaves the view-only
// state alone; selected ids that no longer exist are kept until cleared.
type Store[T record.Record] struct {
	mu sync.RWMutex

	items    []T
	seq      uint64
	loaded   bool
	category string
	search   string
	sort     SortOrder
	page     int
	size     int

	selected  map[string]struct{}
	order     []string
	selectAll bool
	open      string
}

// NewStore returns an empty store sorted by most recent.
func NewStore[T record.Record]() *Store[T] {
	return &Store[T]{
		sort:     MostRecent,
		page:     1,
		size:     PageSize,
		selected: make(map[string]struct{}),
	}
}

// ReplaceSnapshot swaps in a full snapshot.
func (s *Store[T]) ReplaceSnapshot(seq uint64, items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.seq = seq
	s.loaded = true
}

// Loaded reports whether any snapshot has arrived.
func (s *Store[T]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Seq is the sequence number of the current snapshot.
func (s *Store[T]) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Items returns the raw snapshot, deleted records included.
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get looks a record up by id in the raw snapshot.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *Store[T]) find(id string) (T, bool) {
	for _, r := range s.items {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// SetCategory changes the type filter and returns to page 1.
func (s *Store[T]) SetCategory(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = category
	s.page = 1
}

// SetSearch changes the text filter and returns to page 1.
func (s *Store[T]) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = term
	s.page = 1
}

// SetSort changes the ordering. The page is kept.
func (s *Store[T]) SetSort(order SortOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = order
}

// SetPage requests a 1-based page; View clamps it.
func (s *Store[T]) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = page
}

// SetPageSize overrides PageSize for views that show more rows.
func (s *Store[T]) SetPageSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > 0 {
		s.size = size
	}
}

// Filtered is the derived list before pagination.
func (s *Store[T]) Filtered() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Derive(s.items, s.category, s.search, s.sort)
}

// View derives the current page.
func (s *Store[T]) View() Page[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Paginate(Derive(s.items, s.category, s.search, s.sort), s.page, s.size)
}

// ToggleSelect adds or removes one id from the selection and reports whether
// the selection changed. Only ids of the current snapshot can be added; a
// stale id left over from an earlier snapshot can still be removed.
func (s *Store[T]) ToggleSelect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[id]; ok {
		s.unselect(id)
		return true
	}
	if _, ok := s.find(id); !ok {
		return false
	}
	s.selected[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *Store[T]) unselect(id string) {
	delete(s.selected, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// ToggleSelectAll selects every id of the filtered list, or clears the
// selection when select-all is already on.
func (s *Store[T]) ToggleSelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	if s.selectAll {
		s.selectAll = false
		return
	}
	for _, r := range Derive(s.items, s.category, s.search, s.sort) {
		id := r.RecordID()
		if _, ok := s.selected[id]; ok {
			continue
		}
		s.selected[id] = struct{}{}
		s.order = append(s.order, id)
	}
	s.selectAll = true
}

// ClearSelection empties the selection and resets select-all.
func (s *Store[T]) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	s.selectAll = false
}

func (s *Store[T]) clear() {
	s.selected = make(map[string]struct{})
	s.order = nil
}

// Selected returns the selected ids in selection order.
func (s *Store[T]) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// IsSelected reports whether id is selected.
func (s *Store[T]) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// SelectAll reports the select-all flag.
func (s *Store[T]) SelectAll() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectAll
}

// Open marks id as the opened record. It reports false, and opens nothing,
// when id is not in the snapshot.
func (s *Store[T]) Open(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.find(id); !ok {
		return false
	}
	s.open = id
	return true
}

// Opened returns the opened record, if it is still in the snapshot.
func (s *Store[T]) Opened() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.open == "" {
		var zero T
		return zero, false
	}
	return s.find(s.open)
}

// CloseOpen clears the opened record.
func (s *Store[T]) CloseOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = ""
}

// Remove drops ids from the working copy.
func (s *Store[T]) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]T, 0, len(s.items))
	for _, r := range s.items {
		if _, ok := drop[r.RecordID()]; ok {
			continue
		}
		kept = append(kept, r)
	}
	s.items = kept
}

// Update applies fn to the record with id in the working copy.
func (s *Store[T]) Update(id string, fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.items {
		if r.RecordID() == id {
			next := make([]T, len(s.items))
			copy(next, s.items)
			next[i] = fn(r)
			s.items = next
			return true
		}
	}
	return false
}

// State is a read-only copy of the view-only fields.
type State struct {
	Category  string
	Search    string
	Sort      SortOrder
	Page      int
	PageSize  int
	SelectAll bool
	Open      string
}

// State returns the current view-only state.
func (s *Store[T]) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Category:  s.category,
		Search:    s.search,
		Sort:      s.sort,
		Page:      s.page,
		PageSize:  s.size,
		SelectAll: s.selectAll,
		Open:      s.open,
	}
}
