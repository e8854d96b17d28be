package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/coordinator"
	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/internal/external/upstox"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/internal/scheduler"
	"github.com/Kvijay199428/VEGA-sub001/internal/scheduler/jobs"
	"github.com/Kvijay199428/VEGA-sub001/internal/strategyconfig"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/database"
	"github.com/Kvijay199428/VEGA-sub001/pkg/httputil"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

// retryStateMaxAge is how long retry bookkeeping outlives its first attempt
const retryStateMaxAge = time.Hour

// app holds every wired service of one process
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	clock    clock.Clock
	location *time.Location
	metrics  *metrics.Metrics

	db    *database.DB // nil with the memory store
	redis *redis.Client

	routing  *strategyconfig.Config // nil without BROKER_ROUTING_FILE
	snapshot *strategyconfig.Snapshot

	router   *broker.Router
	limiters map[string]*ratelimit.Manager
	orders   *persistence.Orchestrator
	retrier  *execution.Retrier
	monitor  *execution.Monitor
	throttle *ratelimit.ClientLimiter
	service  *coordinator.Service
}

// loadConfig reads configuration and builds the process logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithFile(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// newApp wires stores, venues, limiters and services in dependency order
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		clock:    clock.Real{},
		metrics:  metrics.NewIsolated(),
		limiters: make(map[string]*ratelimit.Manager),
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.location = loc

	// 1. Routing file
	if cfg.Broker.RoutingFile != "" {
		routing, _, err := strategyconfig.Load(cfg.Broker.RoutingFile)
		if err != nil {
			return nil, fmt.Errorf("load routing file: %w", err)
		}
		if a.snapshot, err = strategyconfig.NewSnapshot(routing, cfg.Broker.RoutingFile); err != nil {
			return nil, err
		}
		a.routing = routing
		log.WithFields(map[string]interface{}{
			"source":  a.snapshot.Source,
			"version": a.snapshot.Version,
			"hash":    a.snapshot.ConfigHash,
		}).Info("Routing file loaded")
	}

	// 2. Redis (disabled client when REDIS_ENABLED=false)
	if a.redis, err = redis.New(cfg); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 3. Order store
	var store persistence.Store = persistence.NewMemoryStore()
	var trades coordinator.TradeStore = coordinator.NewMemoryTradeStore()
	if cfg.Orders.StoreBackend == "postgres" {
		if a.db, err = database.New(cfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := a.db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store = persistence.NewPostgresStore(a.db.Pool)
		trades = coordinator.NewPostgresTradeStore(a.db.Pool)
	}
	a.orders = persistence.NewOrchestrator(store, a.clock, a.metrics, log)

	// 4. Venues
	if err := a.wireBrokers(); err != nil {
		a.Close()
		return nil, err
	}

	// 5. Execution services
	execCfg, err := execution.ConfigFrom(cfg, a.routing)
	if err != nil {
		a.Close()
		return nil, err
	}
	mode, err := execution.ParseGateMode(cfg.Orders.RiskGateMode)
	if err != nil {
		a.Close()
		return nil, err
	}
	gate := execution.NewRiskGate(execution.AllowAll{}, mode, a.clock, log)

	a.retrier = execution.NewRetrier(execution.DefaultRetryPolicy(), a.clock, log)
	multi := execution.NewMultiOrderService(a.router, a.orders, gate, execCfg, a.clock, a.metrics, log)
	if execCfg.RetryTransient {
		multi.WithRetrier(a.retrier)
	}
	modify := execution.NewOrderModifyService(a.router, a.orders, a.clock, a.metrics, log)

	// 6. Coordinator
	coordCfg, err := coordinator.ConfigFrom(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var idem coordinator.IdempotencyStore = coordinator.NewMemoryIdempotency(a.clock)
	if a.redis.Enabled() {
		idem = coordinator.NewRedisIdempotency(redis.NewCache(a.redis, "vega"))
	}
	a.service = coordinator.NewService(multi, modify, a.orders, trades, idem, coordCfg, a.clock, a.metrics, log)

	// 7. Background collaborators
	a.monitor = execution.NewMonitor(a.router, a.orders, a.clock, log, execution.DefaultMonitorConfig()).WithTrades(a.service)
	a.throttle = ratelimit.NewClientLimiter(cfg.RateLimit.UserPerMinute, cfg.RateLimit.IPPerMinute, a.clock)

	return a, nil
}

// wireBrokers registers one adapter per capability: the live Upstox client in live mode,
// paper venues otherwise
func (a *app) wireBrokers() error {
	settings, strategies, caps, err := broker.FromRoutingFile(a.routing)
	if err != nil {
		return fmt.Errorf("apply routing file: %w", err)
	}
	fallback := a.cfg.Broker.Fallback
	if a.routing != nil && a.routing.Fallback != "" {
		fallback = a.routing.Fallback
	}
	a.router = broker.NewRouter(settings, strategies, fallback, a.log)

	for name, capability := range caps {
		limiter := ratelimit.NewManagerFromConfig(name, a.cfg.RateLimit, a.redis, a.clock, a.metrics, a.log)
		a.limiters[name] = limiter

		if a.cfg.Broker.Mode == "live" && name == broker.Upstox {
			httpClient := httputil.NewWithTimeout(a.cfg, a.log, a.cfg.Broker.Timeout).WithLimiter(limiter)
			client := upstox.NewClient(a.cfg.Broker, httpClient, a.log)
			a.router.Register(broker.NewUpstoxAdapter(client, capability, limiter, a.clock, a.log))
			continue
		}

		paper := broker.NewPaperAdapter(capability, limiter, a.clock, a.log)
		paper.SetDelay(a.cfg.Broker.PaperFillDelay)
		a.router.Register(paper)
	}

	if _, ok := a.router.Get(fallback); !ok {
		return fmt.Errorf("fallback broker %s has no adapter", fallback)
	}

	a.log.WithFields(map[string]interface{}{
		"mode":     a.cfg.Broker.Mode,
		"brokers":  a.router.Names(),
		"fallback": fallback,
	}).Info("Brokers registered")
	return nil
}

// newScheduler registers the maintenance jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, scheduler.WithLocation(a.location))

	all := []scheduler.Job{
		jobs.NewIdempotencySweepJob(a.service, a.log),
		jobs.NewReadCacheSweepJob(a.service, a.log),
		jobs.NewReconcileJob(a.monitor, "", a.log),
		jobs.NewClientLimiterEvictJob(a.throttle, a.log),
		jobs.NewRetryStateCleanupJob(a.retrier, retryStateMaxAge, a.clock, a.log),
	}
	for _, job := range all {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
