package viewmodel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tableflip.dev/shopdesk/pkg/record"
)

// PageSize is the row count of the tabular order and query views.
const PageSize = 5

// SortOrder names one of the supported orderings.
type SortOrder string

const (
	MostRecent  SortOrder = "Most Recent"
	OldestFirst SortOrder = "Oldest First"
)

// SortOrders lists the supported orderings in menu order.
func SortOrders() []SortOrder {
	return []SortOrder{MostRecent, OldestFirst}
}

// ParseSort accepts the display names case-insensitively, plus the short
// forms "recent" and "oldest".
func ParseSort(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "most recent", "recent", "newest":
		return MostRecent, nil
	case "oldest first", "oldest":
		return OldestFirst, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Page is one paginated slice of a derived list.
type Page[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	Total      int
}

// Visible drops soft-deleted records.
func Visible[T record.Record](in []T) []T {
	out := make([]T, 0, len(in))
	for _, r := range in {
		if safeDeleted(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterType keeps records whose status equals category. An empty category
// keeps everything.
func FilterType[T record.Record](in []T, category string) []T {
	category = strings.TrimSpace(category)
	if category == "" {
		return in
	}
	out := make([]T, 0, len(in))
	for _, r := range in {
		if safeStatus(r).Equal(record.Status(category)) {
			out = append(out, r)
		}
	}
	return out
}

// FilterText keeps records with any search field containing term, ignoring
// case. A blank term keeps everything.
func FilterText[T record.Record](in []T, term string) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return in
	}
	out := make([]T, 0, len(in))
	for _, r := range in {
		if safeContains(r, term) {
			out = append(out, r)
		}
	}
	return out
}

// SortBy returns a sorted copy. Missing or malformed timestamps rank as the
// unix epoch; equal timestamps keep their input order.
func SortBy[T record.Record](in []T, order SortOrder) []T {
	type keyed struct {
		at  time.Time
		rec T
	}
	rows := make([]keyed, len(in))
	for i, r := range in {
		rows[i] = keyed{at: safeCreated(r), rec: r}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if order == OldestFirst {
			return rows[i].at.Before(rows[j].at)
		}
		return rows[i].at.After(rows[j].at)
	})
	out := make([]T, len(rows))
	for i := range rows {
		out[i] = rows[i].rec
	}
	return out
}

// Paginate returns the requested 1-based page, clamped to the available
// range.
func Paginate[T any](in []T, page, size int) Page[T] {
	if size <= 0 {
		size = PageSize
	}
	total := len(in)
	pages := (total + size - 1) / size
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return Page[T]{
		Items:      in[start:end],
		Page:       page,
		TotalPages: pages,
		Total:      total,
	}
}

// Derive runs the whole chain short of pagination.
func Derive[T record.Record](in []T, category, term string, order SortOrder) []T {
	return SortBy(FilterText(FilterType(Visible(in), category), term), order)
}

// A record built from a hostile payload must not take the list down with it;
// each accessor below recovers and falls back to a neutral value.

func safeContains(r record.Record, term string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return record.Contains(r, term)
}

func safeCreated(r record.Record) (at time.Time) {
	defer func() {
		if recover() != nil {
			at = time.Unix(0, 0)
		}
	}()
	ts := r.Created()
	if ts.IsZero() {
		return time.Unix(0, 0)
	}
	return ts.Time
}

func safeStatus(r record.Record) (s record.Status) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return r.RecordStatus()
}

func safeDeleted(r record.Record) (deleted bool) {
	defer func() {
		if recover() != nil {
			deleted = false
		}
	}()
	return r.IsDeleted()
}
