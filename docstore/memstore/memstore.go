// Package memstore is a process-local docstore.Store. Transactions run under an
// exclusive lock against a buffered write set, so a failed callback leaves no trace.
package memstore

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/doctree"
)

type Store struct {
	mu     sync.RWMutex
	tree   *doctree.Tree
	nowFn  func() time.Time
	closed bool
}

type Option func(*Store)

// WithClock overrides the store's write timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

func New(opts ...Option) *Store {
	s := &Store{tree: doctree.New(), nowFn: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

func (s *Store) Get(ctx context.Context, docPath string) (*docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	return s.tree.Get(docPath), nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	s.tree.Apply(ops, s.nowFn())
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	q, err := docstore.NormalizeQuery(q)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	return s.tree.Query(q), nil
}

func (s *Store) ListCollections(ctx context.Context, docPath string) ([]string, error) {
	if docPath != "" {
		if err := docstore.ValidateDocPath(docPath); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	return s.tree.ListCollections(docPath), nil
}

// RunTransaction holds the store lock for the whole callback; fn must only use tx.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	tx := doctree.NewTx(s.tree)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.tree.Apply(tx.Ops(), s.nowFn())
	return nil
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

// Len reports the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tree.Documents)
}
