// Package docstore defines the hierarchical document store used by the dashboard.
//
// Documents live at even-length paths (entities/bbva) and collections at odd-length
// paths (entities, entities/bbva/useCases). Backends: memstore (process local),
// jsonstore (single JSON file) and sqlstore (MySQL via gorm).
package docstore

import (
	"context"
	"time"
)

// Data is the field set of a document.
type Data map[string]any

// DocumentID orders or filters a query by the document id instead of a field.
const DocumentID = "__name__"

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Snapshot is a point-in-time read of one document.
type Snapshot struct {
	ID        string
	Path      string
	Exists    bool
	Data      Data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	// Limit <= 0 returns every match.
	Limit int
}

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge makes Set combine the given fields with the stored ones (shallow, per top-level
// key) instead of replacing the document.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

// IsMerge reports whether opts request merge semantics.
func IsMerge(opts []SetOption) bool {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.merge
}

// Transaction is the read/write view handed to RunTransaction callbacks. All reads must
// happen before the first write.
type Transaction interface {
	Get(docPath string) (*Snapshot, error)
	Set(docPath string, data Data, opts ...SetOption) error
	Delete(docPath string) error
}

// WriteBatch queues writes and applies them atomically on Commit.
type WriteBatch interface {
	Set(docPath string, data Data, opts ...SetOption)
	Delete(docPath string)
	Len() int
	Commit(ctx context.Context) error
}

type Store interface {
	Get(ctx context.Context, docPath string) (*Snapshot, error)
	Set(ctx context.Context, docPath string, data Data, opts ...SetOption) error
	Delete(ctx context.Context, docPath string) error
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// ListCollections returns the ids of the immediate child collections of docPath,
	// whether or not the document itself exists.
	ListCollections(ctx context.Context, docPath string) ([]string, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	Batch() WriteBatch
	Close() error
}
