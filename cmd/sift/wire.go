package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/sift/internal/browser"
	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/extract"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/retrieval"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/FranksOps/sift/internal/storage/csvbackend"
	"github.com/FranksOps/sift/internal/storage/jsonbackend"
	"github.com/FranksOps/sift/internal/storage/postgres"
	"github.com/FranksOps/sift/internal/storage/sqlite"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// app holds the wired search stack and everything that must be closed.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	engine   serp.Engine
	backend  storage.Backend
	proxies  *proxy.Pool
	service  *pipeline.Service
	strategy []string
	closers  []func() error
}

func (a *app) onClose(f func() error) {
	a.closers = append(a.closers, f)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackend returns the configured attempt log, or nil for "none".
func openBackend(ctx context.Context, c config.StorageConfig) (storage.Backend, error) {
	switch c.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(c.DSN)
	case "postgres":
		return postgres.New(ctx, c.DSN)
	case "json":
		return jsonbackend.New(c.DSN)
	case "csv":
		return csvbackend.New(c.DSN)
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Backend)
}

func openCache(ctx context.Context, c config.CacheConfig, logger *slog.Logger) (cache.Store, func() error, error) {
	switch c.Backend {
	case "", "memory":
		return cache.NewMemory(c.TTL, nil), nil, nil
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
			TTL:      c.TTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
}

func openProxies(c config.ProxyConfig) (*proxy.Pool, error) {
	if c.File == "" {
		return nil, nil
	}
	p := proxy.NewPool(proxy.Config{MaxFailures: c.MaxFailures, Cooldown: c.Cooldown})
	if err := p.LoadFile(c.File); err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	return p, nil
}

// newApp wires storage, cache, strategies and the query service from cfg.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, engine: cfg.Search.Engine()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.backend, err = openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if a.backend != nil {
		a.onClose(a.backend.Close)
	}

	store, closeCache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if closeCache != nil {
		a.onClose(closeCache)
	}

	proxies, err := openProxies(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	a.proxies = proxies

	recorder := &retrieval.Recorder{Backend: a.backend, DumpPath: cfg.Search.DebugDumpPath, Logger: logger}
	ids := identity.NewRotator(cfg.Identity)
	classifier := bypass.NewClassifier(cfg.Search.BlockPhrases, cfg.Search.ContainerSelectors...)
	extractor := extract.New(extract.Config{
		Engine:             a.engine,
		ContainerSelectors: cfg.Search.ContainerSelectors,
		SnippetSelectors:   cfg.Search.SnippetSelectors,
		Logger:             logger,
	})
	pacer := ratelimit.NewPacer()

	var strategies []retrieval.Strategy
	for _, name := range cfg.Search.Strategies {
		var s retrieval.Strategy
		switch name {
		case retrieval.StrategyHTTP:
			s, err = a.httpStrategy(proxies, ids, classifier, extractor, pacer, recorder)
		case retrieval.StrategyBrowser:
			s, err = a.browserStrategy(proxies, ids, classifier, extractor, pacer, recorder)
		default:
			err = fmt.Errorf("unknown strategy %q", name)
		}
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	orch := retrieval.NewOrchestrator(logger, strategies...)
	a.strategy = orch.Strategies()

	a.service, err = pipeline.New(pipeline.Config{
		Provider:       orch,
		Cache:          store,
		DefaultResults: cfg.Search.DefaultResults,
		MaxResults:     cfg.Search.MaxResults,
		Concurrency:    cfg.Search.BatchConcurrency,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) httpStrategy(proxies *proxy.Pool, ids identity.Source, classifier *bypass.Classifier,
	extractor *extract.Extractor, pacer *ratelimit.Pacer, recorder *retrieval.Recorder) (retrieval.Strategy, error) {
	c := a.cfg.HTTP
	limiter := ratelimit.NewLimiter(c.RequestsPerSecond, c.Jitter)
	a.onClose(func() error { limiter.Stop(); return nil })

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      c.Timeout,
		MaxRedirects: c.MaxRedirects,
		UseCookieJar: c.CookieJar,
		ProxyPool:    proxies,
		Fingerprint:  fingerprint.Profile(c.Fingerprint),
		Limiter:      limiter,
		Detectors:    bypass.DetectorsWith(classifier),
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}
	return retrieval.NewHTTPStrategy(retrieval.HTTPConfig{
		Fetcher:    fetcher,
		Identities: ids,
		Extractor:  extractor,
		Engine:     a.engine,
		Pacing:     a.cfg.Search.HTTPPacing,
		Pacer:      pacer,
		Recorder:   recorder,
		Logger:     a.logger,
	})
}

func (a *app) browserStrategy(proxies *proxy.Pool, ids identity.Source, classifier *bypass.Classifier,
	extractor *extract.Extractor, pacer *ratelimit.Pacer, recorder *retrieval.Recorder) (retrieval.Strategy, error) {
	s := a.cfg.Search
	var state *browser.StateStore
	if s.StorageStatePath != "" {
		state = browser.NewStateStore(s.StorageStatePath)
	}

	pool := browser.NewPool(browser.Config{
		Launcher: browser.NewLauncher(browser.LaunchConfig{
			Bin:     a.cfg.Browser.Bin,
			Headful: !a.cfg.Browser.Headless,
			Proxies: proxies,
			Logger:  a.logger,
		}),
		Origin:           a.engine.Origin,
		State:            state,
		ReuseProbability: s.ReuseProbability,
		Timeout:          s.NavigationTimeout,
		Logger:           a.logger,
	})
	a.onClose(pool.Close)

	var humanizer *browser.Humanizer
	if s.Humanize {
		humanizer = browser.NewHumanizer(s.Timing, pacer, a.logger)
	}

	return retrieval.NewBrowserStrategy(retrieval.BrowserConfig{
		Sessions: pool,
		Navigator: browser.NewNavigator(browser.NavigatorConfig{
			Classifier:      classifier,
			ResultSelectors: s.ResultSelectors,
			Settle:          s.Settle,
			ConsentPause:    s.ConsentPause,
			ResultWait:      s.ResultWait,
			Pacer:           pacer,
			Logger:          a.logger,
		}),
		Humanizer:  humanizer,
		Extractor:  extractor,
		Engine:     a.engine,
		Identities: ids,
		State:      state,
		Pacing:     s.BrowserPacing,
		Pacer:      pacer,
		Recorder:   recorder,
		Logger:     a.logger,
	})
}
