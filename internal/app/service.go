// Package service wires the import pipeline together: stores, catalog,
// converters, orphan resolver, importer, goal evaluator and the background
// job workers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/okian/scorepipe/internal/adapters/mq/queue"
	"github.com/okian/scorepipe/internal/adapters/mq/worker"
	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/adapters/webhook"
	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/config"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/goals"
	"github.com/okian/scorepipe/internal/importer"
	"github.com/okian/scorepipe/internal/importer/converters"
	"github.com/okian/scorepipe/internal/importer/orphan"
	"github.com/okian/scorepipe/internal/importer/sources"
	"github.com/okian/scorepipe/pkg/logger"
)

// Store is the score, blacklist and goal persistence the service needs.
type Store interface {
	repository.ScoreStore
	repository.BlacklistStore
	repository.GoalStore
}

// Service owns every pipeline component for the life of the process.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	catalog  *catalog.Memory
	rules    *games.Registry
	store    Store
	orphans  repository.OrphanStore
	emitter  webhook.Emitter
	resolver *orphan.Resolver
	importer *importer.Importer
	goals    *goals.Evaluator
	jobs     *queue.InMemoryQueue
	pool     *worker.Pool

	closers []io.Closer

	// State
	started bool
	// ownsStore and ownsOrphans mark stores opened from configuration; Stop
	// releases them so the next Start opens fresh ones.
	ownsStore   bool
	ownsOrphans bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults are used otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore replaces the configured score and goal store.
func WithStore(store Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithOrphanStore replaces the configured orphan store.
func WithOrphanStore(store repository.OrphanStore) Option {
	return func(s *Service) {
		s.orphans = store
	}
}

// WithCatalog replaces the seeded catalog.
func WithCatalog(cat *catalog.Memory) Option {
	return func(s *Service) {
		s.catalog = cat
	}
}

// WithEmitter replaces the configured webhook emitter.
func WithEmitter(em webhook.Emitter) Option {
	return func(s *Service) {
		s.emitter = em
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

// New constructs a Service. Nothing is connected until Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the stores, builds the pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting scorepipe service...")

	if err := s.openStores(ctx); err != nil {
		s.release(ctx)
		return err
	}
	if s.catalog == nil {
		s.catalog = catalog.NewMemory()
		if s.cfg.CatalogSeed != "" {
			if err := s.catalog.LoadFile(s.cfg.CatalogSeed); err != nil {
				s.release(ctx)
				return fmt.Errorf("load catalog seed: %w", err)
			}
		}
	}
	if s.emitter == nil {
		s.emitter = webhook.Discard{}
		if s.cfg.WebhookURL != "" {
			s.emitter = webhook.NewHTTPEmitter(s.cfg.WebhookURL, webhook.WithTimeout(s.cfg.WebhookTimeout()))
		}
	}
	s.rules = games.Default()

	s.jobs = queue.NewInMemoryQueue(
		queue.WithCapacity(s.cfg.JobQueueSize),
		queue.WithBufferSize(s.cfg.JobQueueSize),
	)
	s.resolver = orphan.NewResolver(s.orphans, s.catalog,
		orphan.WithThreshold(s.cfg.OrphanThreshold),
		orphan.WithCorroborationHandler(s.enqueueCorroboration),
		orphan.WithLogger(s.logger.Named("orphans")),
	)
	s.goals = goals.NewEvaluator(s.store, s.catalog, goals.NewScoreEvaluator(s.store, s.catalog, s.rules),
		goals.WithEmitter(s.emitter),
		goals.WithConcurrency(s.cfg.GoalConcurrency),
		goals.WithLogger(s.logger.Named("goals")),
	)
	s.importer = importer.New(s.store, s.rules, converters.Default(s.catalog, s.rules),
		importer.WithOrphans(s.resolver),
		importer.WithGoals(s.goals),
		importer.WithBatchSize(s.cfg.InsertBatchSize),
		importer.WithLogger(s.logger.Named("importer")),
	)
	s.resolver.SetReimporter(s.importer)

	s.pool = worker.NewPool(s.cfg.WorkerCount, s.jobs, s.handlers())
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "scorepipe service started",
		logger.String("storeDriver", s.cfg.StoreDriver),
		logger.String("orphanStore", s.cfg.OrphanStore),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("jobQueueSize", s.cfg.JobQueueSize),
		logger.Int("orphanThreshold", s.cfg.OrphanThreshold),
	)
	return nil
}

func (s *Service) openStores(ctx context.Context) error {
	if s.store == nil {
		s.ownsStore = true
		switch s.cfg.StoreDriver {
		case config.DriverPostgres:
			pg, err := repository.OpenPostgres(ctx, s.cfg.PostgresDSN)
			if err != nil {
				return err
			}
			s.store = pg
			s.closers = append(s.closers, pg)
		default:
			s.store = repository.NewMemory()
		}
	}
	if s.orphans == nil {
		s.ownsOrphans = true
		switch s.cfg.OrphanStore {
		case config.DriverRedis:
			rs, err := repository.DialRedisOrphans(ctx, s.cfg.RedisAddr, s.cfg.RedisPrefix)
			if err != nil {
				return err
			}
			s.orphans = rs
			s.closers = append(s.closers, rs)
		default:
			if mem, ok := s.store.(*repository.Memory); ok {
				s.orphans = mem
			} else {
				s.orphans = repository.NewMemory()
			}
		}
	}
	return nil
}

// Stop drains the workers and closes the stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scorepipe service...")

	var errs []error
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.release(ctx)...)

	s.started = false
	s.logger.Info(ctx, "scorepipe service stopped")
	return errors.Join(errs...)
}

// release closes the stores and forgets the ones opened from configuration.
func (s *Service) release(ctx context.Context) []error {
	errs := s.closeAll(ctx)
	if s.ownsStore {
		s.store, s.ownsStore = nil, false
	}
	if s.ownsOrphans {
		s.orphans, s.ownsOrphans = nil, false
	}
	return errs
}

func (s *Service) closeAll(ctx context.Context) []error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error(ctx, "close failed", logger.Error(err))
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errs
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Import runs a full import.
func (s *Service) Import(ctx context.Context, req importer.ImportRequest) (*importer.Result, error) { //nolint:gocritic // hugeParam
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.importer.Import(ctx, req)
}

// SubmitScore imports a single record immediately.
func (s *Service) SubmitScore(ctx context.Context, userID string, importType types.ImportType,
	data []byte, sc model.SourceContext,
) (*model.ImportProcessingInfo, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.importer.SubmitScore(ctx, userID, importType, data, sc)
}

// ImportKai pulls every page under path from the partner API for userID.
func (s *Service) ImportKai(ctx context.Context, userID, path string, token sources.TokenFunc) (*importer.Result, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if s.cfg.KaiBaseURL == "" {
		return nil, fmt.Errorf("%w: kai_base_url is not set", config.ErrInvalidConfig)
	}
	api, err := sources.NewKaiAPI(s.cfg.KaiBaseURL, token,
		sources.WithRequestTimeout(s.cfg.KaiRequestTimeout()),
		sources.WithLogger(s.logger.Named("kai")),
	)
	if err != nil {
		return nil, err
	}
	return s.importer.Import(ctx, importer.ImportRequest{
		UserID:     userID,
		ImportType: types.ImportKaiIIDX,
		Records:    api.Records(ctx, path),
		Context:    model.SourceContext{Service: "kai", Game: types.GameIIDX},
	})
}

// Deorphan sweeps stored orphans matching filter.
func (s *Service) Deorphan(ctx context.Context, filter repository.OrphanFilter) (orphan.DeorphanStats, error) {
	if err := s.running(); err != nil {
		return orphan.DeorphanStats{}, err
	}
	return s.resolver.Deorphan(ctx, filter)
}

// ChartAdded schedules resolution of fingerprint after the catalog gained
// the chart it names.
func (s *Service) ChartAdded(ctx context.Context, fingerprint string) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.enqueue(ctx, queue.NewJob(queue.JobResolveChart, map[string]string{
		argFingerprint: fingerprint,
		argTrigger:     string(orphan.TriggerCatalogUpdate),
	}))
}

// Enqueue submits a background job.
func (s *Service) Enqueue(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	if err := s.running(); err != nil {
		return err
	}
	return s.enqueue(ctx, job)
}

func (s *Service) enqueue(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	if !s.jobs.Enqueue(ctx, job) {
		return fmt.Errorf("%w: %s", ErrQueueFull, job.Kind)
	}
	s.logger.Debug(ctx, "job enqueued", logger.String("jobID", job.ID), logger.String("kind", string(job.Kind)))
	return nil
}

func (s *Service) enqueueCorroboration(ctx context.Context, fingerprint string) error {
	return s.enqueue(ctx, queue.NewJob(queue.JobResolveChart, map[string]string{
		argFingerprint: fingerprint,
		argTrigger:     string(orphan.TriggerCorroboration),
	}))
}

// Catalog returns the catalog the pipeline resolves against.
func (s *Service) Catalog() *catalog.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.cfg.WorkerCount,
		"jobQueueSize": s.cfg.JobQueueSize,
		"storeDriver":  s.cfg.StoreDriver,
		"orphanStore":  s.cfg.OrphanStore,
	}
	if s.started {
		stats["jobQueueLength"] = s.jobs.Len(context.Background())
		stats["jobsProcessed"] = s.pool.Processed()
	}
	return stats
}
