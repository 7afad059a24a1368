package models

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/memstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memCache struct {
	mu      sync.Mutex
	values  map[string]any
	deletes int
}

func newMemCache() *memCache {
	return &memCache{values: map[string]any{}}
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	stats, ok := v.(map[string]*EntityStats)
	if !ok {
		return false, nil
	}
	*(dest.(*map[string]*EntityStats)) = stats
	return true, nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deletes++
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memstore.Store, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 10, 25, 14, 30, 0, 0, time.UTC)}
	store := memstore.New(memstore.WithClock(clock.Now))
	base := []Option{WithClock(clock.Now), WithLogger(quietLogger()), WithDeleteBatchSize(2)}
	svc := NewService(store, append(base, opts...)...)
	return svc, store, clock
}

func mustGet(t *testing.T, store docstore.Store, path string) *docstore.Snapshot {
	t.Helper()
	snap, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	return snap
}

func mustSet(t *testing.T, store docstore.Store, path string, data docstore.Data) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), path, data))
}

func countDocs(t *testing.T, store docstore.Store, collection string) int {
	t.Helper()
	snaps, err := store.Query(context.Background(), docstore.Query{Collection: collection})
	require.NoError(t, err)
	return len(snaps)
}

func seedUseCase(t *testing.T, svc *Service, entityName string, useCase UseCase) *UseCase {
	t.Helper()
	ctx := context.Background()
	entityID := ""
	if existing, err := svc.GetEntity(ctx, utils.Slugify(entityName)); err == nil {
		entityID = existing.ID
	} else {
		entity, err := svc.CreateEntity(ctx, &NewEntity{Name: entityName})
		require.NoError(t, err)
		entityID = entity.ID
	}
	useCase.EntityID = entityID
	created, err := svc.CreateUseCase(ctx, &useCase)
	require.NoError(t, err)
	return created
}
