package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/config"
	"github.com/haukened/rr-block/internal/block/gateways/transport"
	"github.com/haukened/rr-block/internal/block/repos/decision/bloom"
	"github.com/haukened/rr-block/internal/block/repos/decision/lru"
	"github.com/haukened/rr-block/internal/block/repos/rulestore"
	"github.com/haukened/rr-block/internal/block/repos/rulestore/bolt"
	"github.com/haukened/rr-block/internal/block/repos/rulestore/memory"
	"github.com/haukened/rr-block/internal/block/services/filter"
	"github.com/haukened/rr-block/internal/block/services/rules"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-blockd"

	defaultDecideTimeout   = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the blocker.
type Application struct {
	config     *config.AppConfig
	store      *rulestore.Store
	rules      *rules.Service
	filter     *filter.Filter
	transports []transport.ServerTransport
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":        appName,
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"store":      cfg.Store.Backend,
		"cache_size": cfg.Filter.Cache.Size,
		"proxy_addr": cfg.Proxy.Addr,
		"api_addr":   cfg.API.Addr,
	}, "Starting rr-block")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "rr-block stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	kv, err := buildKVStore(cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule store: %w", err)
	}
	store := rulestore.New(kv, cfg.Store.Key, log.WithFields(logger, map[string]any{"component": "rulestore"}))

	cache, err := lru.New(cfg.Filter.Cache.Size)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	log.Info(map[string]any{
		"type": "LRU",
		"size": cfg.Filter.Cache.Size,
	}, "Decision cache configured")

	f := filter.New(filter.Options{
		Cache:  cache,
		Bloom:  bloom.NewFactory(),
		FPRate: cfg.Filter.FPRate,
		Logger: log.WithFields(logger, map[string]any{"component": "filter"}),
	})

	svc := rules.NewService(rules.Options{
		Store:     store,
		Listeners: []rules.Listener{f},
		Logger:    log.WithFields(logger, map[string]any{"component": "rules"}),
	})

	proxy := transport.NewProxyTransport(cfg.Proxy.Addr, f, transport.ProxyOptions{
		DecideTimeout: defaultDecideTimeout,
		Logger:        log.WithFields(logger, map[string]any{"component": "proxy"}),
	})
	api := transport.NewAPITransport(cfg.API.Addr, transport.APIOptions{
		Rules:         svc,
		Filter:        f,
		Store:         store,
		DecideTimeout: defaultDecideTimeout,
		Logger:        log.WithFields(logger, map[string]any{"component": "api"}),
	})

	return &Application{
		config:     cfg,
		store:      store,
		rules:      svc,
		filter:     f,
		transports: []transport.ServerTransport{proxy, api},
	}, nil
}

// buildKVStore opens the configured persistence backend.
func buildKVStore(cfg *config.AppConfig, clk clock.Clock) (rulestore.KVStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn(nil, "Using in-memory rule store; rules are lost on exit")
		return memory.New(clk), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		kv, err := bolt.New(cfg.Store.Path, clk)
		if err != nil {
			return nil, err
		}
		log.Info(map[string]any{"path": cfg.Store.Path, "key": cfg.Store.Key}, "Rule store opened")
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}
}

// Run loads the rules, starts the transports and blocks until ctx is cancelled
// or a transport fails.
func (app *Application) Run(ctx context.Context) error {
	defer func() {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing rule store")
		}
	}()

	// the filter is ready before the proxy accepts its first connection
	loaded := app.rules.Load()
	log.Info(map[string]any{"rules": len(loaded)}, "Blocking rules loaded")

	started := make([]transport.ServerTransport, 0, len(app.transports))
	for _, t := range app.transports {
		if err := t.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("failed to start transport: %w", err)
		}
		started = append(started, t)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range started {
		g.Go(t.Wait)
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(nil, "Shutdown initiated")
		return app.shutdown(started)
	})

	return g.Wait()
}

func (app *Application) shutdown(ts []transport.ServerTransport) error {
	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, t := range ts {
			if err := t.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
			return err
		}
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
