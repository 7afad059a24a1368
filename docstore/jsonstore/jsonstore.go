// Package jsonstore persists the whole document tree in a single JSON file. Every
// operation reloads the file under a cross-process flock, so several processes (the API
// and the ops tools) can share one file.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/doctree"
	"github.com/gofrs/flock"
)

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

type Store struct {
	mu       sync.Mutex
	filePath string
	fileLock *flock.Flock
	nowFn    func() time.Time
	closed   bool
}

type Option func(*Store)

func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// Open prepares a store at filePath, creating parent directories. A missing file is an
// empty store.
func Open(filePath string, opts ...Option) (*Store, error) {
	if filePath == "" {
		return nil, errors.New("jsonstore: file path is required")
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("jsonstore: invalid path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("jsonstore: create directory: %w", err)
	}
	s := &Store{
		filePath: abs,
		fileLock: flock.New(abs + ".lock"),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	// fail fast on a corrupt file
	if err := s.withTree(context.Background(), false, func(*doctree.Tree) error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.fileLock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.fileLock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("jsonstore: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("jsonstore: lock %s not obtained", s.fileLock.Path())
	}
	return nil
}

// withTree loads the file, runs fn and, for writes, saves the result. fn errors abort
// without saving.
func (s *Store) withTree(ctx context.Context, write bool, fn func(*doctree.Tree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return docstore.ErrClosed
	}
	if err := s.acquire(ctx, write); err != nil {
		return err
	}
	defer func() { _ = s.fileLock.Unlock() }()

	tree, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(tree); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.save(tree)
}

func (s *Store) load() (*doctree.Tree, error) {
	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return doctree.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonstore: read file: %w", err)
	}
	if len(raw) == 0 {
		return doctree.New(), nil
	}
	tree := doctree.New()
	if err := json.Unmarshal(raw, tree); err != nil {
		return nil, fmt.Errorf("jsonstore: parse %s: %w", s.filePath, err)
	}
	if tree.Documents == nil {
		tree.Documents = map[string]*doctree.Record{}
	}
	return tree, nil
}

func (s *Store) save(tree *doctree.Tree) error {
	raw, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonstore: encode: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("jsonstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonstore: rename: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, docPath string) (*docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, err
	}
	var snap *docstore.Snapshot
	err := s.withTree(ctx, false, func(t *doctree.Tree) error {
		snap = t.Get(docPath)
		return nil
	})
	return snap, err
}

func (s *Store) Set(ctx context.Context, docPath string, data docstore.Data, opts ...docstore.SetOption) error {
	op, err := doctree.NewSetOp(docPath, data, opts)
	if err != nil {
		return err
	}
	return s.apply(ctx, []doctree.Op{op})
}

func (s *Store) Delete(ctx context.Context, docPath string) error {
	op, err := doctree.NewDeleteOp(docPath)
	if err != nil {
		return err
	}
	return s.apply(ctx, []doctree.Op{op})
}

func (s *Store) apply(ctx context.Context, ops []doctree.Op) error {
	if len(ops) == 0 {
		return nil
	}
	return s.withTree(ctx, true, func(t *doctree.Tree) error {
		t.Apply(ops, s.nowFn())
		return nil
	})
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	q, err := docstore.NormalizeQuery(q)
	if err != nil {
		return nil, err
	}
	var out []*docstore.Snapshot
	err = s.withTree(ctx, false, func(t *doctree.Tree) error {
		out = t.Query(q)
		return nil
	})
	return out, err
}

func (s *Store) ListCollections(ctx context.Context, docPath string) ([]string, error) {
	if docPath != "" {
		if err := docstore.ValidateDocPath(docPath); err != nil {
			return nil, err
		}
	}
	var out []string
	err := s.withTree(ctx, false, func(t *doctree.Tree) error {
		out = t.ListCollections(docPath)
		return nil
	})
	return out, err
}

// RunTransaction holds the file lock for the whole callback, so conflicts cannot occur.
// fn must only use tx.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Transaction) error) error {
	return s.withTree(ctx, true, func(t *doctree.Tree) error {
		tx := doctree.NewTx(t)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		t.Apply(tx.Ops(), s.nowFn())
		return nil
	})
}

type batch struct {
	doctree.Batch
	store *Store
}

func (b *batch) Commit(ctx context.Context) error {
	if b.Err != nil {
		return b.Err
	}
	return b.store.apply(ctx, b.Ops)
}

func (s *Store) Batch() docstore.WriteBatch {
	return &batch{store: s}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
