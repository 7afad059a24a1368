package models

import (
	"context"
	"time"

	"bitbucket.org/avalia/dashboard_backend/config"
	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bitbucket.org/avalia/dashboard_backend/models"

// Cache is the subset of utils.RedisCache the models need.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Locker returns a release func for key, or an error when the lock is held elsewhere.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Service runs every dashboard operation against one document store.
type Service struct {
	store  docstore.Store
	cache  Cache
	locker Locker
	logger *logrus.Logger
	tracer trace.Tracer
	now    func() time.Time

	deleteBatchSize int
	concurrency     int
	cacheTTL        time.Duration
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

func WithDeleteBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.deleteBatchSize = n
		}
	}
}

// WithConcurrency bounds parallel store reads and child collection drains.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

func NewService(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		logger:          config.GetLogger(),
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		deleteBatchSize: 100,
		concurrency:     8,
		cacheTTL:        time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromEnv wires the store with the process-wide redis cache, lock client and
// env settings.
func NewServiceFromEnv(store docstore.Store) *Service {
	opts := []Option{
		WithDeleteBatchSize(config.DeleteBatchSize()),
		WithCacheTTL(config.CacheLifespan()),
	}
	if config.RedisConfigured() {
		opts = append(opts,
			WithCache(utils.RedisCache{Prefix: "avalia:"}),
			WithLocker(utils.RedisLocker{Client: config.GetRedisLock()}),
		)
	}
	return NewService(store, opts...)
}

func (s *Service) Store() docstore.Store {
	return s.store
}

func (s *Service) DeleteBatchSize() int {
	return s.deleteBatchSize
}

func (s *Service) timestamp() (time.Time, string) {
	now := s.now().UTC()
	return now, utils.FormatTimestamp(now)
}

func (s *Service) log(ctx context.Context) *logrus.Entry {
	return utils.LoggerWithContext(ctx, s.logger)
}

// lock takes a best-effort distributed lock. Without a locker, or when redis fails,
// it logs and proceeds unlocked.
func (s *Service) lock(ctx context.Context, key string) func() {
	if s.locker == nil {
		return func() {}
	}
	release, err := s.locker.Lock(ctx, key, time.Minute)
	if err != nil {
		s.log(ctx).WithError(err).WithField("lock", key).Warn("proceeding without lock")
		return func() {}
	}
	return release
}
