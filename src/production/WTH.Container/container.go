package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.ApiService/health"
	config "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Config"
	engine "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Engine"
	events "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Events"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
)

// base holds the dependencies shared by both services
type base struct {
	storeCfg config.StoreConfig
	kafkaCfg config.KafkaConfig
	logger   *logger.Logger

	repo      interfaces.ReadingRepository
	notifier  *events.KafkaNotifier
	submitter *engine.Submitter

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order on Shutdown
	cleanupFuncs []func() error
}

// Container manages dependencies of the API service
type Container struct {
	*base
	config *config.Config

	resolver      *engine.Resolver
	healthChecker *health.HealthChecker
}

// IngestorContainer manages dependencies of the MQTT Ingestor service
type IngestorContainer struct {
	*base
	config *config.IngestorConfig
}

// NewApiContainer creates a container for the API service from the environment
func NewApiContainer() (*Container, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}
	return NewContainer(cfg, logger.NewLogger(&cfg.Logging).WithService("api")), nil
}

// NewContainer creates an API container from an already loaded configuration
func NewContainer(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		base:   newBase(cfg.Store, cfg.Kafka, log),
		config: cfg,
	}
}

// NewIngestorContainer creates a container for the MQTT Ingestor service from the environment
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadIngestorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}
	log := logger.NewLogger(&cfg.Logging).WithService("ingestor")
	return &IngestorContainer{
		base:   newBase(cfg.Store, cfg.Kafka, log),
		config: cfg,
	}, nil
}

func newBase(storeCfg config.StoreConfig, kafkaCfg config.KafkaConfig, log *logger.Logger) *base {
	return &base{storeCfg: storeCfg, kafkaCfg: kafkaCfg, logger: log}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetConfig returns the ingestor configuration
func (c *IngestorContainer) GetConfig() *config.IngestorConfig {
	return c.config
}

// GetLogger returns the logger
func (b *base) GetLogger() *logger.Logger {
	return b.logger
}

// GetRepository returns the reading store, connecting on first use
func (b *base) GetRepository(ctx context.Context) (interfaces.ReadingRepository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.repositoryLocked(ctx)
}

func (b *base) repositoryLocked(ctx context.Context) (interfaces.ReadingRepository, error) {
	if b.repo != nil {
		return b.repo, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.storeCfg.ConnectTimeout+10*time.Second)
	defer cancel()

	repo, err := OpenRepository(ctx, b.storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", b.storeCfg.Backend, err)
	}
	b.repo = repo
	b.cleanupFuncs = append(b.cleanupFuncs, repo.Close)
	b.logger.Logger.Info().Str("backend", b.storeCfg.Backend).Msg("Reading store ready")
	return repo, nil
}

// GetSubmitter returns the reading submitter, wired to the Kafka notifier when enabled
func (b *base) GetSubmitter(ctx context.Context) (*engine.Submitter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.submitter != nil {
		return b.submitter, nil
	}
	repo, err := b.repositoryLocked(ctx)
	if err != nil {
		return nil, err
	}

	opts := []engine.SubmitterOption{engine.WithSubmitterLogger(b.logger)}
	if b.kafkaCfg.Enabled() {
		b.notifier = events.NewKafkaNotifier(b.kafkaCfg)
		b.cleanupFuncs = append(b.cleanupFuncs, b.notifier.Close)
		opts = append(opts, engine.WithNotifier(b.notifier))
		b.logger.Logger.Info().Strs("brokers", b.kafkaCfg.Brokers).Str("topic", b.kafkaCfg.Topic).Msg("Publishing reading events to Kafka")
	}

	b.submitter = engine.NewSubmitter(repo, opts...)
	return b.submitter, nil
}

// GetResolver returns the query resolver
func (c *Container) GetResolver(ctx context.Context) (*engine.Resolver, error) {
	loc, err := c.config.Query.Location()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil {
		return c.resolver, nil
	}
	repo, err := c.repositoryLocked(ctx)
	if err != nil {
		return nil, err
	}
	c.resolver = engine.NewResolver(repo,
		engine.WithLocation(loc),
		engine.WithMaxParallel(c.config.Query.MaxParallel),
		engine.WithResolverLogger(c.logger),
	)
	return c.resolver, nil
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker(ctx context.Context) (*health.HealthChecker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthChecker != nil {
		return c.healthChecker, nil
	}
	repo, err := c.repositoryLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get store for health checker: %w", err)
	}
	c.healthChecker = health.NewHealthChecker(repo, c.storeCfg.Backend)
	return c.healthChecker, nil
}

// AddCleanupFunc adds a cleanup function
func (b *base) AddCleanupFunc(fn func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupFuncs = append(b.cleanupFuncs, fn)
}

// Shutdown runs the cleanup functions in reverse registration order
func (b *base) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down container...")

	b.mu.Lock()
	funcs := b.cleanupFuncs
	b.cleanupFuncs = nil
	b.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			b.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	b.logger.Info("Container shutdown complete")
	return nil
}
