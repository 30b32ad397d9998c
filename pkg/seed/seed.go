// Package seed loads documents and console accounts from a YAML file. It
// stands in for the storefront flows that normally write orders and
// contact queries.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

// Now as a top level field value is stamped with the write time.
const Now = "$now"

// Account is a console login created by the seed.
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Admin    bool   `yaml:"admin"`
}

// File is the seed file layout:
//
//	accounts:
//	  - email: admin@example.com
//	    password: secret1
//	    admin: true
//	collections:
//	  successOrders:
//	    o-1001:
//	      status: processing
//	      createdAt: $now
type File struct {
	Accounts    []Account                                    `yaml:"accounts"`
	Collections map[string]map[string]map[string]interface{} `yaml:"collections"`
}

// Registrar creates identity accounts.
type Registrar interface {
	Register(ctx context.Context, email, password string) (string, error)
}

// Result counts what a seed wrote.
type Result struct {
	Accounts  int
	Documents int
}

// Seeder writes a File into the store.
type Seeder struct {
	Documents store.Documents
	Identity  Registrar
	Log       *zap.Logger
}

// Parse decodes a seed file.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	return f, nil
}

// ParseFile decodes the seed file at path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: open: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Apply writes every account and document. Collections are written in name
// order and documents in id order so repeated runs produce the same store.
func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result
	if s.Documents == nil {
		return res, errors.New("seed: documents required")
	}
	log := logging.OrNop(s.Log)

	for _, a := range f.Accounts {
		if s.Identity == nil {
			return res, errors.New("seed: accounts need an identity service")
		}
		uid, err := s.Identity.Register(ctx, a.Email, a.Password)
		if err != nil {
			return res, fmt.Errorf("seed: account %s: %w", a.Email, err)
		}
		profile := map[string]interface{}{
			"email":     strings.ToLower(strings.TrimSpace(a.Email)),
			"name":      a.Name,
			"admin":     0,
			"createdAt": store.ServerTimestamp,
		}
		if a.Admin {
			profile["admin"] = 1
		}
		if err := s.Documents.SetDocument(ctx, record.CollectionUsers, uid, profile); err != nil {
			return res, fmt.Errorf("seed: profile %s: %w", a.Email, err)
		}
		log.Debug("seeded account", zap.String("email", a.Email), zap.Bool("admin", a.Admin))
		res.Accounts++
	}

	collections := make([]string, 0, len(f.Collections))
	for name := range f.Collections {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	for _, collection := range collections {
		docs := f.Collections[collection]
		ids := make([]string, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fields, _ := normalize(docs[id]).(map[string]interface{})
			if fields == nil {
				fields = map[string]interface{}{}
			}
			for k, val := range fields {
				if val == Now {
					fields[k] = store.ServerTimestamp
				}
			}
			if err := checkStatus(collection, fields); err != nil {
				return res, fmt.Errorf("seed: %s/%s: %w", collection, id, err)
			}
			if err := s.Documents.SetDocument(ctx, collection, id, fields); err != nil {
				return res, fmt.Errorf("seed: %s/%s: %w", collection, id, err)
			}
			res.Documents++
		}
		log.Debug("seeded collection", zap.String("collection", collection), zap.Int("documents", len(ids)))
	}
	return res, nil
}

// checkStatus rejects a status the console could never show or filter on.
// A missing status is left for the decoder to default.
func checkStatus(collection string, fields map[string]interface{}) error {
	raw, ok := fields["status"]
	if !ok {
		return nil
	}
	status, ok := raw.(string)
	if !ok {
		return fmt.Errorf("status must be text, got %v", raw)
	}
	var err error
	switch collection {
	case record.CollectionOrders:
		_, err = record.ParseOrderStatus(status)
	case record.CollectionQueries, record.CollectionMobileQueries:
		_, err = record.ParseQueryStatus(status)
	}
	return err
}

// normalize turns YAML values into ones the store can encode.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
