package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/engine"
	"github.com/BaSui01/evalflow/internal/cache"
	"github.com/BaSui01/evalflow/internal/database"
	"github.com/BaSui01/evalflow/internal/metrics"
	"github.com/BaSui01/evalflow/internal/telemetry"
	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/llm/providers/openaicompat"
	"github.com/BaSui01/evalflow/store"
)

// =============================================================================
// 🧩 应用装配
// =============================================================================

// app 一次命令执行所需的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector
	plugins   *plugins
	store     store.Store
	engine    *engine.Engine
}

// newApp 按配置装配组件；返回错误前会释放已创建的资源
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, logger: initLogger(cfg.Log)}
	defer func() {
		if err != nil {
			_ = a.close(ctx)
		}
	}()

	a.logger.Debug("starting evalflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	// 遥测初始化失败只降级
	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, a.logger,
		telemetry.WithServiceVersion(Version),
		telemetry.WithAttributes(attribute.String("evalflow.store.backend", cfg.Store.Backend)),
	)
	if err != nil {
		a.logger.Warn("failed to initialize telemetry", zap.Error(err))
		err = nil
	}

	var recorder engine.Recorder
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, a.logger)
		recorder = a.collector
	}

	provider := newProvider(cfg.LLM, a.collector, a.logger)

	a.plugins, err = newPlugins(cfg, provider, a.logger)
	if err != nil {
		return nil, err
	}

	if cfg.Engine.Persist {
		a.store, err = openStore(ctx, cfg, a.collector, a.logger)
		if err != nil {
			return nil, err
		}
	}

	opts := engine.Options{
		Runners:        a.plugins.runners,
		Scorers:        a.plugins.scorers,
		Reporters:      a.plugins.reporters,
		Store:          a.store,
		Metrics:        recorder,
		TracerProvider: a.telemetry.TracerProvider(),
		MeterProvider:  a.telemetry.MeterProvider(),
		Logger:         a.logger,
	}
	a.engine, err = engine.NewEngine(opts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// close 导出指标并释放资源
func (a *app) close(ctx context.Context) error {
	var errs []error

	if a.registry != nil && a.cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.TextfilePath, a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// newProvider 创建文本生成后端；未配置 base_url 时返回 nil
func newProvider(cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) llm.Provider {
	if !cfg.Enabled() {
		return nil
	}

	var provider llm.Provider = openaicompat.New(openaicompat.Config{
		ProviderName: "openai",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
	}, logger)

	if cfg.RateLimitRPS > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	mws := []llm.Middleware{
		llm.RecoveryMiddleware(func(r any) {
			logger.Error("llm provider panicked", zap.Any("panic", r))
		}),
		llm.LoggingMiddleware(logger),
	}
	if collector != nil {
		mws = append(mws, llm.MetricsMiddleware(provider.Name(), collector))
	}
	return llm.Wrap(provider, mws...)
}

// openStore 按 store.backend 打开存储，store.cache 为 true 时套一层 Redis 读缓存
func openStore(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.Store.Backend {
	case "memory":
		st = store.NewMemoryStore()
	case "gorm":
		st, err = openGormStore(ctx, cfg, logger)
	case "mongo":
		st, err = store.NewMongoStore(ctx, store.MongoOptions{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		}, logger)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Store.Cache {
		return st, nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = cfg.Redis.Addr
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.DB = cfg.Redis.DB
	cacheCfg.PoolSize = cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
	if cfg.Redis.TTL > 0 {
		cacheCfg.DefaultTTL = cfg.Redis.TTL
	}
	manager, err := cache.NewManager(ctx, cacheCfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cached := store.NewCachedStore(st, manager, cacheCfg.DefaultTTL, logger)
	if collector != nil {
		cached = cached.WithMetrics(collector)
	}
	return cached, nil
}

func openGormStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	poolCfg := database.DefaultPoolConfig()
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}

	pool, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), poolCfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := store.NewGormStore(ctx, pool, store.GormOptions{AutoMigrate: cfg.Store.AutoMigrate}, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return st, nil
}
