package record

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a backend assigned instant. Missing or malformed values
// decode to the zero time so they rank as the epoch when sorting.
type Timestamp struct {
	time.Time
}

// Now returns the current instant in UTC.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// ParseTimestamp converts any backend representation into a Timestamp. It
// never fails: unknown shapes become the zero Timestamp.
func ParseTimestamp(v interface{}) Timestamp {
	switch t := v.(type) {
	case nil:
		return Timestamp{}
	case Timestamp:
		return t
	case *Timestamp:
		if t == nil {
			return Timestamp{}
		}
		return *t
	case time.Time:
		return Timestamp{Time: t}
	case string:
		return parseString(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromUnix(f)
		}
		return Timestamp{}
	case float64:
		return fromUnix(t)
	case float32:
		return fromUnix(float64(t))
	case int:
		return fromUnix(float64(t))
	case int64:
		return fromUnix(float64(t))
	case map[string]interface{}:
		// {"seconds": n, "nanoseconds": n} as exported by document databases.
		secs, ok := t["seconds"]
		if !ok {
			return Timestamp{}
		}
		base := ParseTimestamp(secs)
		if nanos, ok := t["nanoseconds"].(float64); ok && !base.IsZero() {
			base.Time = base.Add(time.Duration(nanos))
		}
		return base
	}
	return Timestamp{}
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseString(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(f)
	}
	return Timestamp{}
}

// fromUnix accepts seconds or milliseconds since the epoch.
func fromUnix(f float64) Timestamp {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Timestamp{}
	}
	if f > 1e11 {
		ms := int64(f)
		return Timestamp{Time: time.UnixMilli(ms).UTC()}
	}
	sec, frac := math.Modf(f)
	return Timestamp{Time: time.Unix(int64(sec), int64(frac*1e9)).UTC()}
}

// Unix returns seconds since the epoch; zero for the zero Timestamp.
func (t Timestamp) Unix() int64 {
	if t.IsZero() {
		return 0
	}
	return t.Time.Unix()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(fmt.Sprintf("%q", t.String())), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = ParseTimestamp(raw)
	return nil
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var timestampType = reflect.TypeOf(Timestamp{})

// timestampHook lets mapstructure decode any representation into Timestamp.
func timestampHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != timestampType {
		return data, nil
	}
	return ParseTimestamp(data), nil
}
