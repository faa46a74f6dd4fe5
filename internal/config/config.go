// Package config loads sift's settings from defaults, an optional config file
// and SIFT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/sift/internal/browser"
	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/extract"
	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/retrieval"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// EnvPrefix is prepended to every environment override, so search.max_results
// is read from SIFT_SEARCH_MAX_RESULTS.
const EnvPrefix = "SIFT"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Log      LogConfig       `mapstructure:"log"`
	Search   SearchConfig    `mapstructure:"search"`
	Browser  BrowserConfig   `mapstructure:"browser"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Proxy    ProxyConfig     `mapstructure:"proxy"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Identity identity.Config `mapstructure:"identity"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// UnhealthyErrors is the error count above which /health reports 503.
	UnhealthyErrors int `mapstructure:"unhealthy_errors"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SearchConfig drives the retrieval pipeline.
type SearchConfig struct {
	DefaultResults int `mapstructure:"default_results"`
	MaxResults     int `mapstructure:"max_results"`
	// Strategies are tried in this order.
	Strategies       []string `mapstructure:"strategies"`
	BatchConcurrency int      `mapstructure:"batch_concurrency"`

	EngineDomain string   `mapstructure:"engine_domain"`
	Origin       string   `mapstructure:"origin"`
	HTMLEndpoint string   `mapstructure:"html_endpoint"`
	Endpoints    []string `mapstructure:"endpoints"`

	NavigationTimeout time.Duration   `mapstructure:"navigation_timeout"`
	ResultWait        time.Duration   `mapstructure:"result_wait"`
	Settle            ratelimit.Range `mapstructure:"settle"`
	ConsentPause      ratelimit.Range `mapstructure:"consent_pause"`
	HTTPPacing        ratelimit.Range `mapstructure:"http_pacing"`
	BrowserPacing     ratelimit.Range `mapstructure:"browser_pacing"`

	BlockPhrases       []string `mapstructure:"block_phrases"`
	ResultSelectors    []string `mapstructure:"result_selectors"`
	ContainerSelectors []string `mapstructure:"container_selectors"`
	SnippetSelectors   []string `mapstructure:"snippet_selectors"`

	StorageStatePath string  `mapstructure:"storage_state_path"`
	ReuseProbability float64 `mapstructure:"reuse_probability"`
	DebugDumpPath    string  `mapstructure:"debug_dump_path"`

	Humanize bool           `mapstructure:"humanize"`
	Timing   browser.Timing `mapstructure:"timing"`
}

type BrowserConfig struct {
	Bin      string `mapstructure:"bin"`
	Headless bool   `mapstructure:"headless"`
}

// HTTPConfig drives the plain HTTP strategy's transport.
type HTTPConfig struct {
	// Fingerprint is a TLS profile name, or "auto" to follow the User-Agent.
	Fingerprint       string        `mapstructure:"fingerprint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CookieJar         bool          `mapstructure:"cookie_jar"`
}

type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

type StorageConfig struct {
	// Backend is one of "none", "sqlite", "postgres", "json" or "csv".
	Backend string `mapstructure:"backend"`
	// DSN is a connection string for postgres and a file path otherwise.
	DSN string `mapstructure:"dsn"`
}

type ProxyConfig struct {
	File        string        `mapstructure:"file"`
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type MetricsConfig struct {
	// Port serves /metrics on its own listener. Zero mounts it on the main mux.
	Port int `mapstructure:"port"`
}

var (
	CacheBackends   = []string{"memory", "redis"}
	StorageBackends = []string{"none", "sqlite", "postgres", "json", "csv"}
	LogFormats      = []string{"text", "json"}
	Strategies      = []string{retrieval.StrategyHTTP, retrieval.StrategyBrowser}
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	engine := serp.DuckDuckGo()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			UnhealthyErrors: 10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Search: SearchConfig{
			DefaultResults:   pipeline.DefaultResults,
			MaxResults:       pipeline.DefaultMaxResults,
			Strategies:       []string{retrieval.StrategyHTTP, retrieval.StrategyBrowser},
			BatchConcurrency: pipeline.DefaultConcurrency,

			EngineDomain: engine.Domain,
			Origin:       engine.Origin,
			HTMLEndpoint: engine.HTMLEndpoint,
			Endpoints:    slices.Clone(engine.Endpoints),

			NavigationTimeout: browser.DefaultTimeout,
			ResultWait:        browser.DefaultResultWait,
			Settle:            browser.DefaultSettle,
			ConsentPause:      browser.DefaultConsentPause,
			HTTPPacing:        retrieval.DefaultHTTPPacing,
			BrowserPacing:     retrieval.DefaultBrowserPacing,

			BlockPhrases:       slices.Clone(bypass.DefaultBlockPhrases),
			ResultSelectors:    slices.Clone(browser.DefaultResultSelectors),
			ContainerSelectors: slices.Clone(extract.DefaultContainerSelectors),
			SnippetSelectors:   slices.Clone(extract.DefaultSnippetSelectors),

			StorageStatePath: "auth.json",
			ReuseProbability: browser.DefaultReuseProbability,

			Humanize: true,
			Timing:   browser.DefaultTiming(),
		},
		Browser: BrowserConfig{Headless: true},
		HTTP: HTTPConfig{
			Fingerprint:  "auto",
			MaxRedirects: 10,
			Timeout:      20 * time.Second,
			CookieJar:    true,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			TTL:         cache.DefaultTTL,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "sift:search:",
		},
		Storage: StorageConfig{Backend: "none"},
		Proxy: ProxyConfig{
			MaxFailures: 3,
			Cooldown:    5 * time.Minute,
		},
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	cfg := Default()
	setDefaults(v, "", reflect.ValueOf(cfg))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of val under its mapstructure key. Viper
// only consults the environment for keys it already knows.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate rejects settings that cannot be wired.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(LogFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q: want one of %v", c.Log.Format, LogFormats))
	}
	if !slices.Contains(CacheBackends, c.Cache.Backend) {
		errs = append(errs, fmt.Errorf("cache.backend %q: want one of %v", c.Cache.Backend, CacheBackends))
	}
	if !slices.Contains(StorageBackends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend %q: want one of %v", c.Storage.Backend, StorageBackends))
	}
	if c.Storage.Backend != "none" && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required for backend %q", c.Storage.Backend))
	}
	if len(c.Search.Strategies) == 0 {
		errs = append(errs, errors.New("search.strategies is empty"))
	}
	for _, s := range c.Search.Strategies {
		if !slices.Contains(Strategies, s) {
			errs = append(errs, fmt.Errorf("search.strategies: unknown strategy %q", s))
		}
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	if !strings.Contains(c.Search.HTMLEndpoint, serp.QueryPlaceholder) {
		errs = append(errs, fmt.Errorf("search.html_endpoint must contain %s", serp.QueryPlaceholder))
	}
	for _, e := range c.Search.Endpoints {
		if !strings.Contains(e, serp.QueryPlaceholder) {
			errs = append(errs, fmt.Errorf("search.endpoints: %q must contain %s", e, serp.QueryPlaceholder))
		}
	}
	if p := c.Search.Timing.ClickProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("search.timing.click_probability must be within [0, 1], got %v", p))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Engine returns the DuckDuckGo definition with the configured overrides.
func (s SearchConfig) Engine() serp.Engine {
	e := serp.DuckDuckGo()
	if s.EngineDomain != "" {
		e.Domain = s.EngineDomain
	}
	if s.Origin != "" {
		e.Origin = s.Origin
	}
	if s.HTMLEndpoint != "" {
		e.HTMLEndpoint = s.HTMLEndpoint
	}
	if len(s.Endpoints) > 0 {
		e.Endpoints = slices.Clone(s.Endpoints)
	}
	return e
}
