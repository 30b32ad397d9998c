package viewmodel

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tableflip.dev/shopdesk/pkg/record"
)

func order(id string, status record.Status, created time.Time) record.Order {
	o := record.Order{
		ID:          id,
		OrderNumber: "SD-" + id,
		Status:      status,
		Total:       42.5,
	}
	o.Customer.Name = "Customer " + id
	o.Customer.Email = id + "@example.com"
	if !created.IsZero() {
		o.CreatedAt = record.Timestamp{Time: created}
	}
	return o
}

func ids[T record.Record](in []T) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		out = append(out, r.RecordID())
	}
	return out
}

func dozen() []record.Order {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]record.Order, 0, 12)
	for i := 0; i < 12; i++ {
		out = append(out, order(fmt.Sprintf("o%02d", i), record.StatusProcessing, base.Add(time.Duration(i)*time.Hour)))
	}
	return out
}

func TestPaginateTwelveByFive(t *testing.T) {
	orders := dozen()

	tests := map[string]struct {
		page      int
		wantPage  int
		wantItems int
	}{
		"first":    {page: 1, wantPage: 1, wantItems: 5},
		"second":   {page: 2, wantPage: 2, wantItems: 5},
		"last":     {page: 3, wantPage: 3, wantItems: 2},
		"past end": {page: 4, wantPage: 3, wantItems: 2},
		"way past": {page: 99, wantPage: 3, wantItems: 2},
		"zero":     {page: 0, wantPage: 1, wantItems: 5},
		"negative": {page: -3, wantPage: 1, wantItems: 5},
	}
	for n, tc := range tests {
		t.Run(n, func(t *testing.T) {
			got := Paginate(orders, tc.page, PageSize)
			if got.Page != tc.wantPage {
				t.Errorf("page: want %d, got %d", tc.wantPage, got.Page)
			}
			if len(got.Items) != tc.wantItems {
				t.Errorf("items: want %d, got %d", tc.wantItems, len(got.Items))
			}
			if got.TotalPages != 3 || got.Total != 12 {
				t.Errorf("totals: want 3/12, got %d/%d", got.TotalPages, got.Total)
			}
		})
	}

	if diff := cmp.Diff(ids(Paginate(orders, 3, PageSize).Items), ids(Paginate(orders, 4, PageSize).Items)); diff != "" {
		t.Fatalf("clamped page differs from last page (-want +got):\n%s", diff)
	}
}

func TestPaginateEmpty(t *testing.T) {
	got := Paginate([]record.Order(nil), 2, PageSize)
	if got.Page != 1 || got.TotalPages != 0 || len(got.Items) != 0 {
		t.Fatalf("unexpected empty page %+v", got)
	}
}

func TestVisibleDropsDeleted(t *testing.T) {
	orders := dozen()
	orders[3].Deleted = 1
	orders[7].Deleted = 1
	got := Visible(orders)
	if len(got) != 10 {
		t.Fatalf("expected 10 visible, got %d", len(got))
	}
	for _, o := range got {
		if o.IsDeleted() {
			t.Fatalf("deleted order %s leaked", o.ID)
		}
	}
}

func TestFilterType(t *testing.T) {
	now := time.Now()
	orders := []record.Order{
		order("a", record.StatusProcessing, now),
		order("b", record.StatusDelivered, now),
		order("c", record.StatusCancelled, now),
		order("d", record.StatusDelivered, now),
	}
	if diff := cmp.Diff([]string{"b", "d"}, ids(FilterType(orders, "Delivered"))); diff != "" {
		t.Fatalf("delivered filter (-want +got):\n%s", diff)
	}
	if got := FilterType(orders, ""); len(got) != 4 {
		t.Fatalf("empty category should pass all, got %d", len(got))
	}
}

func TestFilterTextIdempotent(t *testing.T) {
	orders := dozen()
	orders[4].Customer.Phone = "+44 7700 900123"
	orders[9].Customer.Email = "ADA@lovelace.dev"

	for _, term := range []string{"", "   ", "o0", "lovelace", "7700", "42.5", "nothing-matches"} {
		once := FilterText(orders, term)
		twice := FilterText(once, term)
		if diff := cmp.Diff(ids(once), ids(twice)); diff != "" {
			t.Errorf("term %q not idempotent (-once +twice):\n%s", term, diff)
		}
	}

	if diff := cmp.Diff(ids(orders), ids(FilterText(orders, "  "))); diff != "" {
		t.Fatalf("blank term must keep everything (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"o09"}, ids(FilterText(orders, " Lovelace "))); diff != "" {
		t.Fatalf("case-insensitive match (-want +got):\n%s", diff)
	}
}

func TestSortReversal(t *testing.T) {
	orders := dozen()
	recent := ids(SortBy(orders, MostRecent))
	oldest := ids(SortBy(orders, OldestFirst))
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	if diff := cmp.Diff(oldest, recent); diff != "" {
		t.Fatalf("reversed most recent != oldest first (-want +got):\n%s", diff)
	}
}

func TestSortMissingTimestampsRankAsEpoch(t *testing.T) {
	now := time.Now()
	orders := []record.Order{
		order("dated", record.StatusProcessing, now),
		order("undated", record.StatusProcessing, time.Time{}),
		order("early", record.StatusProcessing, time.Unix(10, 0)),
	}
	if diff := cmp.Diff([]string{"dated", "early", "undated"}, ids(SortBy(orders, MostRecent))); diff != "" {
		t.Fatalf("most recent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"undated", "early", "dated"}, ids(SortBy(orders, OldestFirst))); diff != "" {
		t.Fatalf("oldest first (-want +got):\n%s", diff)
	}
}

// brittle panics from every accessor that can.
type brittle struct {
	id string
}

func (b brittle) RecordID() string            { return b.id }
func (b brittle) RecordStatus() record.Status { panic("status") }
func (b brittle) Created() record.Timestamp   { panic("created") }
func (b brittle) IsDeleted() bool             { panic("deleted") }
func (b brittle) SearchFields() []string      { panic("fields") }

func TestPipelineSurvivesBrokenRecords(t *testing.T) {
	in := []brittle{{id: "x"}, {id: "y"}}

	if got := Visible(in); len(got) != 2 {
		t.Fatalf("visible: want 2, got %d", len(got))
	}
	if got := FilterType(in, "pending"); len(got) != 0 {
		t.Fatalf("type filter: want 0, got %d", len(got))
	}
	if got := FilterText(in, "x"); len(got) != 0 {
		t.Fatalf("text filter: want 0, got %d", len(got))
	}
	if diff := cmp.Diff([]string{"x", "y"}, ids(SortBy(in, MostRecent))); diff != "" {
		t.Fatalf("sort must keep input order for equal ranks (-want +got):\n%s", diff)
	}
}

func TestParseSort(t *testing.T) {
	for in, want := range map[string]SortOrder{
		"":             MostRecent,
		"Most Recent":  MostRecent,
		"oldest":       OldestFirst,
		"Oldest First": OldestFirst,
	} {
		got, err := ParseSort(in)
		if err != nil || got != want {
			t.Errorf("ParseSort(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSort("alphabetical"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
