// Package schema loads JSON Schemas from a directory and validates
// documents against the schema sharing their logical name.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flatdocs/flatdocs/internal/store"
	"github.com/flatdocs/flatdocs/pkg/logger"
)

var (
	ErrNotFound      = errors.New("schema not found")
	ErrInvalidSchema = errors.New("invalid schema")
)

// Result is the outcome of a validation run. A document with no registered
// schema is always valid.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Registry holds compiled validators keyed by logical name. It owns the
// schemas directory: Save and Delete mutate it and trigger a full reload.
type Registry struct {
	dir string

	mu       sync.RWMutex
	compiled map[string]*gojsonschema.Schema
	raw      map[string]interface{}
}

// NewRegistry scans dir and compiles every parseable schema. A missing
// directory yields an empty registry; individual bad entries are skipped
// with a warning.
func NewRegistry(dir string) *Registry {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		logger.Warnf("initial schema load: %v", err)
	}
	return r
}

// Reload discards all compiled validators and re-scans the directory.
// There is no filesystem watch; callers mutating the directory out-of-band
// must invoke this themselves.
func (r *Registry) Reload() error {
	compiled := map[string]*gojsonschema.Schema{}
	raw := map[string]interface{}{}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return fmt.Errorf("scan schema dir %s: %w", r.dir, err)
		}
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), store.Ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		b, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			logger.Warnf("skipping schema %s: %v", e.Name(), err)
			continue
		}
		var doc interface{}
		if err := json.Unmarshal(b, &doc); err != nil {
			logger.Warnf("skipping schema %s: %v", e.Name(), err)
			continue
		}
		sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			logger.Warnf("skipping schema %s: %v", e.Name(), err)
			continue
		}
		compiled[name] = sch
		raw[name] = doc
	}

	r.mu.Lock()
	r.compiled = compiled
	r.raw = raw
	r.mu.Unlock()
	return nil
}

// Validate checks doc against the schema registered under name. No schema
// means unconditionally valid. Errors pair the offending field path with
// the validator's message, in validator order.
func (r *Registry) Validate(name string, doc interface{}) *Result {
	r.mu.RLock()
	sch, ok := r.compiled[store.LogicalName(name)]
	r.mu.RUnlock()
	if !ok {
		return &Result{Valid: true}
	}

	res, err := sch.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &Result{Valid: false, Errors: []string{err.Error()}}
	}
	if res.Valid() {
		return &Result{Valid: true}
	}
	out := &Result{Valid: false}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return out
}

// Has reports whether a schema is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.compiled[store.LogicalName(name)]
	return ok
}

// Get returns the raw schema document registered under name.
func (r *Registry) Get(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.raw[store.LogicalName(name)]
	return doc, ok
}

// Names lists registered schema names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.raw))
	for n := range r.raw {
		names = append(names, n)
	}
	return names
}

// Save writes schema to the directory under name and reloads. The schema
// must compile; an uncompilable schema is rejected before touching disk.
func (r *Registry) Save(name string, schema interface{}) error {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema %s: %w", name, err)
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b)); err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidSchema, name, err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create schema dir %s: %w", r.dir, err)
	}
	final := filepath.Join(r.dir, store.SanitizeName(name))
	tmp, err := os.CreateTemp(r.dir, "schema-*")
	if err != nil {
		return fmt.Errorf("create temp schema: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write schema %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close schema %s: %w", name, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace schema %s: %w", name, err)
	}
	return r.Reload()
}

// Delete removes the schema registered under name and reloads.
func (r *Registry) Delete(name string) error {
	if !r.Has(name) {
		return ErrNotFound
	}
	if err := os.Remove(filepath.Join(r.dir, store.SanitizeName(name))); err != nil {
		return fmt.Errorf("remove schema %s: %w", name, err)
	}
	return r.Reload()
}
