// Package store is the managed backend of the console: a document store
// with live collection subscriptions and an object store with signed URLs.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for unknown documents and objects.
	ErrNotFound = errors.New("store: not found")
	// ErrPermissionDenied is returned when the caller carries no principal.
	ErrPermissionDenied = errors.New("store: permission denied")
)

// Document is one record of a collection. Fields is the raw payload.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// Filter is an equality condition on a top level field.
type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Descending bool
	// Limit caps the result set; zero means no cap.
	Limit int
}

// Equal reports whether q and other select the same documents.
func (q Query) Equal(other Query) bool {
	if q.Collection != other.Collection || q.OrderBy != other.OrderBy ||
		q.Descending != other.Descending || q.Limit != other.Limit ||
		len(q.Where) != len(other.Where) {
		return false
	}
	for i := range q.Where {
		if q.Where[i].Field != other.Where[i].Field ||
			stringify(q.Where[i].Value) != stringify(other.Where[i].Value) {
			return false
		}
	}
	return true
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Where {
		fmt.Fprintf(&b, " where %s==%s", f.Field, stringify(f.Value))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.Limit)
	}
	return b.String()
}

// Documents is the document database contract.
type Documents interface {
	GetDocument(ctx context.Context, collection, id string) (Document, bool, error)
	List(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AddDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	SetDocument(ctx context.Context, collection, id string, fields map[string]interface{}) error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the write time when stored.
var ServerTimestamp = serverTimestamp{}

func resolveSentinels(fields map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			v = now.UTC().Format(time.RFC3339Nano)
		}
		out[k] = v
	}
	return out
}

type principalKey struct{}

// WithPrincipal marks ctx as acting for the given user id.
func WithPrincipal(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, principalKey{}, uid)
}

// PrincipalFrom returns the user id carried by ctx.
func PrincipalFrom(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(principalKey{}).(string)
	return uid, ok && uid != ""
}

func (q Query) matches(doc Document) bool {
	for _, f := range q.Where {
		v, ok := doc.Fields[f.Field]
		if !ok {
			return false
		}
		if stringify(v) != stringify(f.Value) {
			return false
		}
	}
	return true
}

func (q Query) apply(docs []Document) []Document {
	out := docs[:0]
	for _, doc := range docs {
		if q.matches(doc) {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		c := compareValues(out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy])
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// compareValues orders missing values first, then numbers, then
// timestamps, then plain strings.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := asNumber(a); ok {
		if y, ok := asNumber(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	as, bs := stringify(a), stringify(b)
	at, aerr := time.Parse(time.RFC3339Nano, as)
	bt, berr := time.Parse(time.RFC3339Nano, bs)
	if aerr == nil && berr == nil {
		return at.Compare(bt)
	}
	return strings.Compare(as, bs)
}
