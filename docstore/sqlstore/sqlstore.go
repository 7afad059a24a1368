// Package sqlstore keeps documents in a single MySQL table through gorm. Every document
// row carries its collection path, so collection scans and child collection listing are
// plain indexed queries.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one stored document.
type Document struct {
	Path           string    `gorm:"primaryKey;size:768"`
	CollectionPath string    `gorm:"size:768;index;not null"`
	DocID          string    `gorm:"size:255;not null"`
	Data           string    `gorm:"type:longtext;not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Document) TableName() string { return "documents" }

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db          *gorm.DB
	nowFn       func() time.Time
	maxAttempts int
	closed      atomic.Bool
}

type Option func(*Store)

func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// WithMaxAttempts bounds transaction retries on deadlocks and lock wait timeouts.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// Open migrates the documents table and returns a store over db.
func Open(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: db is nil")
	}
	s := &Store{
		db:          db,
		nowFn:       func() time.Time { return time.Now().UTC() },
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return s, nil
}

var _ docstore.Store = (*Store)(nil)

// mapError turns MySQL deadlock (1213) and lock wait timeout (1205) into
// docstore.ErrTransactionConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == 1213 || mysqlErr.Number == 1205) {
		return fmt.Errorf("%w: %v", docstore.ErrTransactionConflict, err)
	}
	return err
}

func toSnapshot(docPath string, row *Document) (*docstore.Snapshot, error) {
	snap := &docstore.Snapshot{ID: docstore.ID(docPath), Path: docPath}
	if row == nil {
		return snap, nil
	}
	data := docstore.Data{}
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		return nil, fmt.Errorf("sqlstore: decode %s: %w", docPath, err)
	}
	snap.Exists = true
	snap.Data = data
	snap.CreatedAt = row.CreatedAt.UTC()
	snap.UpdatedAt = row.UpdatedAt.UTC()
	return snap, nil
}

func getRow(db *gorm.DB, docPath string, forUpdate bool) (*Document, error) {
	var row Document
	q := db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("path = ?", docPath).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) Get(ctx context.Context, docPath string) (*docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	row, err := getRow(db, docPath, false)
	if err != nil {
		return nil, mapError(err)
	}
	return toSnapshot(docPath, row)
}

// writeSet upserts docPath. Merges read the current row under FOR UPDATE first.
func writeSet(db *gorm.DB, docPath string, data docstore.Data, merge bool, now time.Time) error {
	if merge {
		row, err := getRow(db, docPath, true)
		if err != nil {
			return err
		}
		if row != nil {
			current := docstore.Data{}
			if err := json.Unmarshal([]byte(row.Data), &current); err != nil {
				return fmt.Errorf("sqlstore: decode %s: %w", docPath, err)
			}
			data = docstore.MergeInto(current, data)
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sqlstore: encode %s: %w", docPath, err)
	}
	row := Document{
		Path:           docPath,
		CollectionPath: docstore.Parent(docPath),
		DocID:          docstore.ID(docPath),
		Data:           string(raw),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

func writeDelete(db *gorm.DB, docPath string) error {
	return db.Where("path = ?", docPath).Delete(&Document{}).Error
}

func (s *Store) Set(ctx context.Context, docPath string, data docstore.Data, opts ...docstore.SetOption) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return err
	}
	norm, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	merge := docstore.IsMerge(opts)
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return docstore.RetryTransaction(ctx, s.maxAttempts, func() error {
		return mapError(db.Transaction(func(tx *gorm.DB) error {
			return writeSet(tx, docPath, norm, merge, s.nowFn())
		}))
	})
}

func (s *Store) Delete(ctx context.Context, docPath string) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return mapError(writeDelete(db, docPath))
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	q, err := docstore.NormalizeQuery(q)
	if err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	db = db.Model(&Document{}).Where("collection_path = ?", q.Collection)
	for _, f := range q.Filters {
		if f.Field == docstore.DocumentID {
			id, ok := f.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: document id filter must be a string", docstore.ErrInvalidQuery)
			}
			db = db.Where("doc_id = ?", id)
			continue
		}
		if !fieldPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("%w: unsupported field %q", docstore.ErrInvalidQuery, f.Field)
		}
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", docstore.ErrInvalidQuery, err)
		}
		db = db.Where("JSON_EXTRACT(data, ?) = CAST(? AS JSON)", "$."+f.Field, string(raw))
	}

	dir := "ASC"
	if q.Direction == docstore.Desc {
		dir = "DESC"
	}
	switch {
	case q.OrderBy == "" || q.OrderBy == docstore.DocumentID:
		db = db.Order("doc_id " + dir)
	case fieldPattern.MatchString(q.OrderBy):
		db = db.Where("JSON_EXTRACT(data, ?) IS NOT NULL", "$."+q.OrderBy).
			Order(fmt.Sprintf("JSON_EXTRACT(data, '$.%s') %s", q.OrderBy, dir)).
			Order("doc_id " + dir)
	default:
		return nil, fmt.Errorf("%w: unsupported order field %q", docstore.ErrInvalidQuery, q.OrderBy)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []Document
	if err := db.Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]*docstore.Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := toSnapshot(rows[i].Path, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) ListCollections(ctx context.Context, docPath string) ([]string, error) {
	prefix := ""
	if docPath != "" {
		if err := docstore.ValidateDocPath(docPath); err != nil {
			return nil, err
		}
		prefix = docPath + "/"
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = db.Model(&Document{}).
		Where("collection_path LIKE ?", likeEscaper.Replace(prefix)+"%").
		Distinct().
		Pluck("collection_path", &paths).Error
	if err != nil {
		return nil, mapError(err)
	}
	return childCollections(prefix, paths), nil
}

// childCollections extracts the distinct next segment after prefix from collection paths.
func childCollections(prefix string, collectionPaths []string) []string {
	seen := map[string]struct{}{}
	for _, p := range collectionPaths {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			seen[rest] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type transaction struct {
	db    *gorm.DB
	now   time.Time
	wrote bool
}

func (t *transaction) Get(docPath string) (*docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, err
	}
	if t.wrote {
		return nil, docstore.ErrReadAfterWrite
	}
	row, err := getRow(t.db, docPath, true)
	if err != nil {
		return nil, err
	}
	return toSnapshot(docPath, row)
}

func (t *transaction) Set(docPath string, data docstore.Data, opts ...docstore.SetOption) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return err
	}
	norm, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	t.wrote = true
	return writeSet(t.db, docPath, norm, docstore.IsMerge(opts), t.now)
}

func (t *transaction) Delete(docPath string) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return err
	}
	t.wrote = true
	return writeDelete(t.db, docPath)
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Transaction) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return docstore.RetryTransaction(ctx, s.maxAttempts, func() error {
		return mapError(db.Transaction(func(gtx *gorm.DB) error {
			return fn(ctx, &transaction{db: gtx, now: s.nowFn()})
		}))
	})
}

type batchOp struct {
	path   string
	data   docstore.Data
	merge  bool
	delete bool
}

type batch struct {
	store *Store
	ops   []batchOp
	err   error
}

func (b *batch) Set(docPath string, data docstore.Data, opts ...docstore.SetOption) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		b.fail(err)
		return
	}
	norm, err := docstore.Normalize(data)
	if err != nil {
		b.fail(err)
		return
	}
	b.ops = append(b.ops, batchOp{path: docPath, data: norm, merge: docstore.IsMerge(opts)})
}

func (b *batch) Delete(docPath string) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		b.fail(err)
		return
	}
	b.ops = append(b.ops, batchOp{path: docPath, delete: true})
}

func (b *batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}
	db, err := b.store.conn(ctx)
	if err != nil {
		return err
	}
	return docstore.RetryTransaction(ctx, b.store.maxAttempts, func() error {
		return mapError(db.Transaction(func(tx *gorm.DB) error {
			now := b.store.nowFn()
			for _, op := range b.ops {
				var err error
				if op.delete {
					err = writeDelete(tx, op.path)
				} else {
					err = writeSet(tx, op.path, op.data, op.merge, now)
				}
				if err != nil {
					return err
				}
			}
			return nil
		}))
	})
}

func (s *Store) Batch() docstore.WriteBatch {
	return &batch{store: s}
}

// Close stops the store from serving calls. The *gorm.DB is owned by config and stays open.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// conn returns the context-bound handle, or ErrClosed after Close.
func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, docstore.ErrClosed
	}
	return s.db.WithContext(ctx), nil
}
