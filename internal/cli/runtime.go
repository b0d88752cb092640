package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/config"
	"github.com/aretw0/sagaflow/pkg/adapters/file"
	httpadapter "github.com/aretw0/sagaflow/pkg/adapters/http"
	sagalog "github.com/aretw0/sagaflow/pkg/adapters/log"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/adapters/process"
	"github.com/aretw0/sagaflow/pkg/adapters/redis"
	"github.com/aretw0/sagaflow/pkg/adapters/sqlite"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/observability"
	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/aretw0/sagaflow/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
)

// Runtime is the fully wired engine of the sagaflow binary together with the
// collaborators the surfaces need (metrics, SSE streams, action registry).
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Engine   *sagaflow.Engine
	Actions  *definition.Registry
	Commands *process.Runner
	Metrics  *observability.Metrics
	Streams  *httpadapter.StreamManager
	Store    ports.SagaStore
	History  ports.HistoryRecorder

	gatherer prometheus.Gatherer
	closers  []func() error
}

// NewRuntime builds the store, router, locker, history, hooks and action
// registry described by cfg and returns an Engine wired with them.
func NewRuntime(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Streams: httpadapter.NewStreamManager(logger),
	}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	var client *backend.Client
	if cfg.Store == config.StoreRedis || cfg.Router == config.RouterRedis {
		opts, err := backend.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client = backend.NewClient(opts)
		rt.closers = append(rt.closers, client.Close)
	}

	base, history, err := rt.openStore(client)
	if err != nil {
		return nil, err
	}
	store, err := rt.wrapStore(base)
	if err != nil {
		return nil, err
	}
	rt.Store = store

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	rt.Metrics = metrics
	rt.gatherer = reg

	commandsCfg, err := process.ReadConfig(cfg.Commands)
	if err != nil {
		return nil, err
	}
	rt.Commands = process.NewRunner(
		process.WithCommands(commandsCfg.ByName()),
		process.WithBaseDir(filepath.Dir(cfg.Commands)),
		process.WithGracePeriod(commandsCfg.GracePeriod),
	)
	rt.Actions = definition.NewRegistry(definition.WithCommands(rt.Commands))

	opts := []sagaflow.Option{
		sagaflow.WithStore(store),
		sagaflow.WithLogger(logger),
		sagaflow.WithLifecycleHooks(domain.MergeHooks(observability.LogHooks(logger), metrics.Hooks())),
		sagaflow.WithPersistence(cfg.PersistAttempts, retry.DefaultPolicy()),
	}
	if history != nil {
		rt.History = history
		opts = append(opts, sagaflow.WithHistory(history))
	}
	if client != nil {
		opts = append(opts,
			sagaflow.WithLocker(redis.NewLocker(client, cfg.RedisPrefix)),
			sagaflow.WithLockTTL(cfg.LockTTL),
		)
	}
	switch cfg.Router {
	case config.RouterLog:
		opts = append(opts, sagaflow.WithRouter(sagalog.NewRouter(logger, slog.LevelInfo)))
	case config.RouterRedis:
		opts = append(opts, sagaflow.WithRouter(redis.NewRouter(client, redis.WithStreamPrefix(cfg.RedisPrefix+"stream:"))))
	}

	rt.Engine = sagaflow.New(opts...)
	ok = true
	return rt, nil
}

// openStore returns the configured backend and, when enabled, the history log.
func (rt *Runtime) openStore(client *backend.Client) (ports.SagaStore, ports.HistoryRecorder, error) {
	cfg := rt.Config
	var (
		store ports.SagaStore
		lite  *sqlite.Store
	)

	openSQLite := func() (*sqlite.Store, error) {
		if lite != nil {
			return lite, nil
		}
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, s.Close)
		lite = s
		return s, nil
	}

	switch cfg.Store {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile:
		store = file.New(filepath.Join(cfg.Dir, "sagas"))
	case config.StoreRedis:
		rs := []redis.Option{redis.WithPrefix(cfg.RedisPrefix + "saga:")}
		if cfg.RedisTTL > 0 {
			rs = append(rs, redis.WithTTL(cfg.RedisTTL))
		}
		store = redis.NewFromClient(client, rs...)
	case config.StoreSQLite:
		s, err := openSQLite()
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if !cfg.History {
		return store, nil, nil
	}
	h, err := openSQLite()
	if err != nil {
		return nil, nil, err
	}
	return store, h, nil
}

// wrapStore applies the persistence middleware. Outermost first: the observer
// sees plaintext records, immutability is checked before masking and
// encryption happens last, right before the backend.
func (rt *Runtime) wrapStore(store ports.SagaStore) (ports.SagaStore, error) {
	cfg := rt.Config
	mws := []middleware.Middleware{
		middleware.NewObserverMiddleware(rt.Streams.Observe),
		middleware.NewImmutableMiddleware(),
	}
	if len(cfg.PIIKeys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIKeys))
	}
	active, fallback, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

// Load reads a definition file, registers it with the engine and returns it.
func (rt *Runtime) Load(path string) (*domain.Definition, error) {
	def, err := definition.Load(path, rt.Actions)
	if err != nil {
		return nil, err
	}
	if _, err := rt.Engine.Registry().Definition(def.Name); err == nil {
		return def, nil
	}
	if err := rt.Engine.Registry().Register(def); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadAll loads every definition file in paths. Directories are scanned for
// .yaml, .yml and .json files.
func (rt *Runtime) LoadAll(paths ...string) ([]*domain.Definition, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
			matches, _ := filepath.Glob(filepath.Join(p, pattern))
			files = append(files, matches...)
		}
	}

	defs := make([]*domain.Definition, 0, len(files))
	for _, f := range files {
		if filepath.Base(f) == filepath.Base(rt.Config.Commands) {
			continue // the command allow-list often lives next to the definitions
		}
		def, err := rt.Load(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// MetricsHandler serves the runtime's Prometheus registry.
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{})
}

// Close releases backend connections.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
