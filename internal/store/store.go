// Package store maps logical document names to JSON files on disk.
// Every mutation snapshots the previous content to a backup directory and
// replaces the live file with a same-directory atomic rename, so a reader
// always sees either the fully-previous or fully-new document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/flatdocs/flatdocs/pkg/logger"
)

// Ext is the fixed on-disk extension for documents and schemas.
const Ext = ".json"

var ErrNotFound = errors.New("document not found")

// Offsite receives best-effort copies of backup snapshots. Upload failures
// are logged and never propagated.
type Offsite interface {
	UploadBackup(ctx context.Context, key string, data []byte) error
}

// Store is a flat-file JSON document store. The directory tree is the sole
// durable state; nothing is cached in memory.
type Store struct {
	dataDir   string
	backupDir string
	offsite   Offsite

	// per-sanitized-name locks so read-merge-write cycles on the same
	// document serialize within this process
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates the data and backup directories if absent and returns a Store.
func New(dataDir, backupDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %s: %w", backupDir, err)
	}
	return &Store{
		dataDir:   dataDir,
		backupDir: backupDir,
		locks:     map[string]*sync.Mutex{},
	}, nil
}

// SetOffsite attaches an optional off-site backup target. Call before
// serving requests.
func (s *Store) SetOffsite(o Offsite) { s.offsite = o }

// SanitizeName maps a logical name to a safe filename: directory components
// are stripped, characters outside [A-Za-z0-9._-] become '_', and the result
// carries exactly one ".json" extension. This is the store's only traversal
// defense and runs before every filesystem call derived from user input.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	n := b.String()
	if len(n) >= len(Ext) && strings.EqualFold(n[len(n)-len(Ext):], Ext) {
		n = n[:len(n)-len(Ext)]
	}
	return n + Ext
}

// LogicalName returns the sanitized name with the extension stripped. This
// is the key used for schema lookups and the permission map.
func LogicalName(name string) string {
	return strings.TrimSuffix(SanitizeName(name), Ext)
}

func (s *Store) path(sanitized string) string {
	return filepath.Join(s.dataDir, sanitized)
}

func (s *Store) lock(sanitized string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[sanitized]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[sanitized] = mu
	}
	return mu
}

// Read returns the parsed document for name or ErrNotFound. Malformed
// on-disk JSON surfaces as a wrapped error, not a panic.
func (s *Store) Read(name string) (interface{}, error) {
	n := SanitizeName(name)
	b, err := os.ReadFile(s.path(n))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", n, err)
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", n, err)
	}
	return doc, nil
}

// Exists reports whether a document is stored under name. No side effects.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(SanitizeName(name)))
	return err == nil
}

// Write serializes doc as indented JSON and replaces the document under
// name. An existing file is first copied to the backup directory, then the
// new content is written to a sibling temp file and renamed over the final
// path. Returns the written document.
func (s *Store) Write(name string, doc interface{}) (interface{}, error) {
	n := SanitizeName(name)
	mu := s.lock(n)
	mu.Lock()
	defer mu.Unlock()
	return s.writeLocked(n, doc)
}

// Update applies fn to the current document under name and persists the
// result, all while holding the per-name lock, so concurrent read-merge-write
// cycles on the same document cannot lose updates. fn receives the existing
// document (found is false when absent) and returns the replacement; an
// error from fn aborts without touching disk.
func (s *Store) Update(name string, fn func(existing interface{}, found bool) (interface{}, error)) (interface{}, error) {
	n := SanitizeName(name)
	mu := s.lock(n)
	mu.Lock()
	defer mu.Unlock()

	var existing interface{}
	found := false
	b, err := os.ReadFile(s.path(n))
	switch {
	case err == nil:
		if uerr := json.Unmarshal(b, &existing); uerr != nil {
			return nil, fmt.Errorf("decode %s: %w", n, uerr)
		}
		found = true
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", n, err)
	}

	doc, err := fn(existing, found)
	if err != nil {
		return nil, err
	}
	return s.writeLocked(n, doc)
}

// writeLocked is the shared mutation tail of Write and Update; the caller
// holds the per-name lock for n.
func (s *Store) writeLocked(n string, doc interface{}) (interface{}, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", n, err)
	}

	final := s.path(n)
	if err := s.backup(n, final); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dataDir, n+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", n, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		s.cleanupTemp(tmpName)
		return nil, fmt.Errorf("write temp for %s: %w", n, err)
	}
	if err := tmp.Close(); err != nil {
		s.cleanupTemp(tmpName)
		return nil, fmt.Errorf("close temp for %s: %w", n, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		s.cleanupTemp(tmpName)
		return nil, fmt.Errorf("replace %s: %w", n, err)
	}
	return doc, nil
}

// Delete backs up and removes the document under name, or ErrNotFound.
func (s *Store) Delete(name string) error {
	n := SanitizeName(name)
	mu := s.lock(n)
	mu.Lock()
	defer mu.Unlock()

	final := s.path(n)
	if _, err := os.Stat(final); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat %s: %w", n, err)
	}
	if err := s.backup(n, final); err != nil {
		return err
	}
	if err := os.Remove(final); err != nil {
		return fmt.Errorf("remove %s: %w", n, err)
	}
	return nil
}

// List enumerates stored documents as logical names (extension stripped),
// in directory enumeration order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dataDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return names, nil
}

// backup copies the current bytes of final (if present) into the backup
// directory under <sanitized>.<timestamp>. One snapshot per mutation,
// retained indefinitely.
func (s *Store) backup(sanitized, final string) error {
	b, err := os.ReadFile(final)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s for backup: %w", sanitized, err)
	}
	ts := backupTimestamp(time.Now().UTC())
	key := sanitized + "." + ts
	dst := filepath.Join(s.backupDir, key)
	if err := os.WriteFile(dst, b, 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", sanitized, err)
	}
	if s.offsite != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.offsite.UploadBackup(ctx, key, b); err != nil {
			logger.Warnf("offsite backup of %s failed: %v", key, err)
		}
	}
	return nil
}

func (s *Store) cleanupTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove temp file %s: %v", path, err)
	}
}

// backupTimestamp renders t as RFC3339Nano with ':' and '.' replaced so the
// result is a safe filename suffix.
func backupTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.Format(time.RFC3339Nano))
}
