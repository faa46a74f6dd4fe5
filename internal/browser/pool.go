package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/pkg/proxy"
)

// DefaultReuseProbability is how often a session is seeded from saved state.
const DefaultReuseProbability = 0.7

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("browser: pool closed")

// Launcher starts a browser process and returns a connected handle.
type Launcher func(ctx context.Context) (*rod.Browser, error)

// LaunchConfig configures the default Launcher.
type LaunchConfig struct {
	// Bin is the Chrome binary. Empty lets rod find or download one.
	Bin string
	// Headful shows the browser window.
	Headful bool
	// Proxies, if non-empty, pins the launched process to the next healthy proxy.
	Proxies *proxy.Pool
	Logger  *slog.Logger
}

// NewLauncher returns a Launcher that starts a local Chrome.
func NewLauncher(cfg LaunchConfig) Launcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(ctx context.Context) (*rod.Browser, error) {
		l := launcher.New().
			Context(ctx).
			Headless(!cfg.Headful).
			NoSandbox(true).
			Set("disable-blink-features", "AutomationControlled")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if u := cfg.Proxies.Next(); u != nil {
			l = l.Proxy(proxy.BrowserFlag(u))
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("browser: connect: %w", err)
		}
		metrics.BrowserLaunches.Inc()
		cfg.Logger.Info("browser started", slog.String("bin", cfg.Bin), slog.Bool("headless", !cfg.Headful))
		return b, nil
	}
}

// Config configures a Pool.
type Config struct {
	Launcher Launcher
	// Origin is the engine origin granted geolocation and whose localStorage
	// is persisted, e.g. "https://duckduckgo.com".
	Origin string
	State  *StateStore
	// ReuseProbability seeds sessions from State. Zero means
	// DefaultReuseProbability; negative disables seeding.
	ReuseProbability float64
	Timeout          time.Duration
	Rand             *rand.Rand
	Logger           *slog.Logger

	// Alive is the health check run before every acquire. Nil pings the
	// browser over CDP.
	Alive func(ctx context.Context, b *rod.Browser) error
	// Discard shuts down a browser that failed the check or outlived the
	// pool. Nil means (*rod.Browser).Close.
	Discard func(b *rod.Browser) error
}

// ping asks the browser for its version, which any live CDP endpoint answers.
func ping(ctx context.Context, b *rod.Browser) error {
	_, err := proto.BrowserGetVersion{}.Call(b.Context(ctx).Timeout(5 * time.Second))
	return err
}

// Pool owns at most one browser process and hands out incognito sessions.
// The process is launched on first use and relaunched when a health check
// before an acquire finds it dead.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	closed  bool
	rnd     *rand.Rand
}

// NewPool returns a Pool. No browser is started until the first Acquire.
func NewPool(cfg Config) *Pool {
	if cfg.Launcher == nil {
		cfg.Launcher = NewLauncher(LaunchConfig{Logger: cfg.Logger})
	}
	if cfg.ReuseProbability == 0 {
		cfg.ReuseProbability = DefaultReuseProbability
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Alive == nil {
		cfg.Alive = ping
	}
	if cfg.Discard == nil {
		cfg.Discard = (*rod.Browser).Close
	}
	return &Pool{cfg: cfg, logger: cfg.Logger, rnd: cfg.Rand}
}

// handle returns a live browser, launching or relaunching as needed.
func (p *Pool) handle(ctx context.Context) (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if p.browser != nil {
		err := p.cfg.Alive(ctx, p.browser)
		if err == nil {
			return p.browser, nil
		}
		p.logger.Warn("browser unhealthy, relaunching", slog.String("error", err.Error()))
		_ = p.cfg.Discard(p.browser)
		p.browser = nil
	}

	b, err := p.cfg.Launcher(ctx)
	if err != nil {
		return nil, err
	}
	p.browser = b
	return b, nil
}

func (p *Pool) shouldSeed() bool {
	if p.cfg.ReuseProbability < 0 || p.cfg.State == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < p.cfg.ReuseProbability
}

// Acquire returns a fresh incognito session dressed in id. Any failure here
// is fatal for the caller's attempt.
func (p *Pool) Acquire(ctx context.Context, id identity.Identity) (*Session, error) {
	b, err := p.handle(ctx)
	if err != nil {
		return nil, err
	}

	incog, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}
	page, err := stealth.Page(incog)
	if err != nil {
		_ = incog.Close()
		return nil, fmt.Errorf("browser: open page: %w", err)
	}
	rp := &rodPage{page: page, incognito: incog, timeout: p.cfg.Timeout, viewport: id.Viewport}

	if err := p.dress(ctx, rp, id); err != nil {
		_ = rp.close()
		return nil, err
	}

	s := &Session{
		ID:        uuid.New().String(),
		Identity:  id,
		Page:      rp,
		CreatedAt: time.Now(),
		origin:    p.cfg.Origin,
		src:       rp,
		close:     rp.close,
		logger:    p.logger,
	}

	if p.shouldSeed() {
		s.Seeded = p.seed(ctx, rp)
	}

	p.logger.Debug("session acquired",
		slog.String("session", s.ID),
		slog.String("category", string(id.Category)),
		slog.String("user_agent", id.UserAgent),
		slog.Bool("seeded", s.Seeded),
	)
	return s, nil
}

// dress applies the identity overrides. User agent and viewport are required;
// the rest only improve the disguise and are logged when they fail.
func (p *Pool) dress(ctx context.Context, rp *rodPage, id identity.Identity) error {
	page := rp.op(ctx)

	if id.Viewport.Width > 0 && id.Viewport.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             id.Viewport.Width,
			Height:            id.Viewport.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("browser: set viewport: %w", err)
		}
	}
	if id.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      id.UserAgent,
			AcceptLanguage: id.AcceptLanguage(),
		}); err != nil {
			return fmt.Errorf("browser: set user agent: %w", err)
		}
	}

	optional := map[string]error{}
	if id.TimezoneID != "" {
		optional["timezone"] = proto.EmulationSetTimezoneOverride{TimezoneID: id.TimezoneID}.Call(page)
	}
	if id.Locale != "" {
		optional["locale"] = proto.EmulationSetLocaleOverride{Locale: id.Locale}.Call(page)
	}
	lat, lon, acc := id.Geolocation.Latitude, id.Geolocation.Longitude, 100.0
	optional["geolocation"] = proto.EmulationSetGeolocationOverride{Latitude: &lat, Longitude: &lon, Accuracy: &acc}.Call(page)
	if p.cfg.Origin != "" {
		optional["permissions"] = proto.BrowserGrantPermissions{
			Permissions:      []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
			Origin:           p.cfg.Origin,
			BrowserContextID: rp.incognito.BrowserContextID,
		}.Call(rp.incognito)
	}
	for name, err := range optional {
		if err != nil {
			p.logger.Debug("identity override failed", slog.String("override", name), slog.String("error", err.Error()))
		}
	}
	return nil
}

// seed loads persisted state into the session. A missing or corrupt state
// file only means the session starts fresh.
func (p *Pool) seed(ctx context.Context, rp *rodPage) bool {
	st, err := p.cfg.State.Load()
	if err != nil {
		if !errors.Is(err, ErrNoState) {
			p.logger.Warn("storage state unreadable", slog.String("error", err.Error()))
		}
		return false
	}
	if st.Empty() {
		return false
	}

	if len(st.Cookies) > 0 {
		if err := rp.incognito.Context(ctx).Timeout(p.cfg.Timeout).SetCookies(st.CookieParams()); err != nil {
			p.logger.Debug("seed cookies failed", slog.String("error", err.Error()))
			return false
		}
	}
	if items := st.Origin(p.cfg.Origin); len(items) > 0 {
		if _, err := rp.op(ctx).EvalOnNewDocument(seedLocalStorageJS(p.cfg.Origin, items)); err != nil {
			p.logger.Debug("seed localStorage failed", slog.String("error", err.Error()))
		}
	}
	return true
}

// seedLocalStorageJS restores items on the first document of origin.
func seedLocalStorageJS(origin string, items []LocalItem) string {
	o, _ := json.Marshal(origin)
	raw, _ := json.Marshal(items)
	return fmt.Sprintf(`(() => {
	if (location.origin !== %s) return;
	try {
		for (const it of %s) {
			if (localStorage.getItem(it.name) === null) localStorage.setItem(it.name, it.value);
		}
	} catch (e) {}
})()`, o, raw)
}

// Release closes the session's context. It is safe to call with nil.
func (p *Pool) Release(s *Session) {
	if s == nil || s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		p.logger.Debug("session close failed", slog.String("session", s.ID), slog.String("error", err.Error()))
	}
	s.close = nil
}

// Close shuts down the browser process. Later Acquire calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.browser == nil {
		return nil
	}
	err := p.cfg.Discard(p.browser)
	p.browser = nil
	return err
}
