// Package service implements the leaderboard engine behind the HTTP API, the
// subscriber and the scheduler.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/coocood/freecache"

	eventqueue "github.com/okian/courtside/internal/adapters/mq/queue"
	workerpool "github.com/okian/courtside/internal/adapters/mq/worker"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/achievement"
	"github.com/okian/courtside/internal/domain/ranking"
	"github.com/okian/courtside/internal/domain/scoring"
	"github.com/okian/courtside/pkg/logger"
)

// Default service configuration.
const (
	defaultMaxRetries      = 5
	defaultQueueSize       = 10000
	defaultPageSize        = 20
	defaultStatsTTL        = 5 * time.Second
	defaultStatsCacheBytes = 1 << 20
	minStatsCacheBytes     = 512 * 1024
)

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	calc       *scoring.Calculator
	evaluator  *achievement.Evaluator
	queue      eventqueue.Queue
	workerPool *workerpool.Pool
	statsCache *freecache.Cache
	statsMu    sync.Mutex // orders cache writes against invalidations
	statsGen   uint64     // bumped by every invalidation, guarded by statsMu

	workerCount     int
	queueSize       int
	maxRetries      int
	maxPageSize     int
	defaultPageSize int
	statsTTL        time.Duration
	statsCacheBytes int
	now             func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of achievement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the evaluation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxRetries bounds the optimistic concurrency retries per write.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithPageSizes sets the default and maximum page size. The maximum never
// exceeds ranking.MaxPageSize.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(s *Service) {
		if maxSize > 0 && maxSize <= ranking.MaxPageSize {
			s.maxPageSize = maxSize
		}
		if defaultSize > 0 && defaultSize <= s.maxPageSize {
			s.defaultPageSize = defaultSize
		}
	}
}

// WithStatsCache sets the stats cache TTL and size. A TTL <= 0 disables it.
func WithStatsCache(ttl time.Duration, bytes int) Option {
	return func(s *Service) {
		s.statsTTL = ttl
		if bytes > 0 {
			s.statsCacheBytes = bytes
		}
	}
}

// WithCalculator replaces the points policy.
func WithCalculator(c *scoring.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithEvaluator replaces the achievement rules.
func WithEvaluator(e *achievement.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		calc:            scoring.NewCalculator(),
		evaluator:       achievement.NewEvaluator(),
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       defaultQueueSize,
		maxRetries:      defaultMaxRetries,
		maxPageSize:     ranking.MaxPageSize,
		defaultPageSize: defaultPageSize,
		statsTTL:        defaultStatsTTL,
		statsCacheBytes: defaultStatsCacheBytes,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.statsTTL > 0 {
		if s.statsCacheBytes < minStatsCacheBytes {
			s.statsCacheBytes = minStatsCacheBytes
		}
		s.statsCache = freecache.NewCache(s.statsCacheBytes)
	}
	return s
}

// Start launches the achievement worker pool. Until Start is called,
// evaluations run inline after each commit.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	q := eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.queue = q
	s.workerPool = workerpool.NewPool(s.workerCount, q, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("max_retries", s.maxRetries),
	)
	return nil
}

// Stop drains pending evaluations and stops the workers. The store is owned
// by the caller and stays open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	err := s.workerPool.Shutdown(ctx)
	s.queue = nil
	s.workerPool = nil
	s.started = false

	s.logger.Info(ctx, "leaderboard service stopped")
	return err
}

// Healthy reports whether the store answers.
func (s *Service) Healthy(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}

// Status returns service runtime information for the health endpoint.
func (s *Service) Status(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		st["queueLength"] = s.queue.Len(ctx)
		st["evaluated"] = s.workerPool.Processed()
	}
	if n, err := s.store.Count(ctx); err == nil {
		st["totalPlayers"] = n
	}
	return st
}

func (s *Service) pageSizes() (def, maxSize int) { return s.defaultPageSize, s.maxPageSize }
