// Package identity generates the client-presented signals a search session
// shows the engine: user agent, viewport, locale, timezone and geolocation.
package identity

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/sift/pkg/useragent"
)

// Category separates crawler-style identities from browser-style ones.
type Category string

const (
	Crawler Category = "crawler"
	Browser Category = "browser"
)

// Other returns the opposite category.
func (c Category) Other() Category {
	if c == Crawler {
		return Browser
	}
	return Crawler
}

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Geolocation is an approximate position reported to the page.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Identity is the fingerprint surface of a single retrieval attempt.
type Identity struct {
	UserAgent   string      `json:"user_agent"`
	Viewport    Viewport    `json:"viewport"`
	Locale      string      `json:"locale"`
	TimezoneID  string      `json:"timezone_id"`
	Geolocation Geolocation `json:"geolocation"`
	Category    Category    `json:"category"`
}

// AcceptLanguage renders the locale as an Accept-Language value.
func (id Identity) AcceptLanguage() string {
	if id.Locale == "" {
		return "en-US,en;q=0.9"
	}
	lang, _, _ := strings.Cut(id.Locale, "-")
	if lang == id.Locale {
		return id.Locale + ";q=0.9"
	}
	return id.Locale + "," + lang + ";q=0.9"
}

// Headers returns the request headers that accompany this identity on a plain
// HTTP fetch. Crawler identities send a minimal set; browser identities add the
// client hints and referer a real browser arriving from a search would send.
func (id Identity) Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", id.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", id.AcceptLanguage())
	h.Set("Accept-Encoding", "identity")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")

	if id.Category == Crawler {
		return h
	}

	h.Set("Referer", "https://www.google.com/")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Sec-Fetch-User", "?1")
	if strings.Contains(id.UserAgent, "Chrome/") {
		h.Set("Sec-Ch-Ua", `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`)
		h.Set("Sec-Ch-Ua-Mobile", "?0")
		h.Set("Sec-Ch-Ua-Platform", platform(id.UserAgent))
	}
	return h
}

func platform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	default:
		return `"Linux"`
	}
}

var (
	DefaultViewports = []Viewport{
		{Width: 1920, Height: 1080},
		{Width: 1366, Height: 768},
		{Width: 1536, Height: 864},
		{Width: 1440, Height: 900},
		{Width: 1280, Height: 720},
	}
	DefaultLocales   = []string{"en-US", "en-GB", "en-CA", "en-AU"}
	DefaultTimezones = []string{
		"America/New_York",
		"Europe/London",
		"America/Los_Angeles",
		"Australia/Sydney",
		"America/Chicago",
	}
)

// Config lists the pools identities are drawn from. Empty pools fall back to
// the package defaults.
type Config struct {
	BrowserAgents []string   `mapstructure:"browser_agents"`
	CrawlerAgents []string   `mapstructure:"crawler_agents"`
	Viewports     []Viewport `mapstructure:"viewports"`
	Locales       []string   `mapstructure:"locales"`
	Timezones     []string   `mapstructure:"timezones"`
	// Rand overrides the random source, for reproducible tests.
	Rand *rand.Rand `mapstructure:"-"`
}

// Source produces identities. Rotator is the production implementation;
// Fixed pins one identity for tests.
type Source interface {
	Next(c Category) Identity
}

// Rotator draws each identity field independently from its pool.
type Rotator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	browser   *useragent.Pool
	crawler   *useragent.Pool
	viewports []Viewport
	locales   []string
	timezones []string
}

var _ Source = (*Rotator)(nil)

// NewRotator builds a Rotator from cfg.
func NewRotator(cfg Config) *Rotator {
	r := &Rotator{
		rnd:       cfg.Rand,
		browser:   useragent.NewPool(cfg.BrowserAgents),
		crawler:   useragent.NewCrawlerPool(cfg.CrawlerAgents),
		viewports: cfg.Viewports,
		locales:   cfg.Locales,
		timezones: cfg.Timezones,
	}
	if r.rnd == nil {
		r.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(r.viewports) == 0 {
		r.viewports = DefaultViewports
	}
	if len(r.locales) == 0 {
		r.locales = DefaultLocales
	}
	if len(r.timezones) == 0 {
		r.timezones = DefaultTimezones
	}
	return r
}

// NextIdentity returns a fresh browser-category identity.
func (r *Rotator) NextIdentity() Identity {
	return r.Next(Browser)
}

// Next returns a fresh identity of category c.
func (r *Rotator) Next(c Category) Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := r.browser
	if c == Crawler {
		agents = r.crawler
	} else {
		c = Browser
	}

	return Identity{
		UserAgent:  agents.Pick(r.rnd.Intn(agents.Len())),
		Viewport:   r.viewports[r.rnd.Intn(len(r.viewports))],
		Locale:     r.locales[r.rnd.Intn(len(r.locales))],
		TimezoneID: r.timezones[r.rnd.Intn(len(r.timezones))],
		Geolocation: Geolocation{
			Latitude:  r.rnd.Float64()*180 - 90,
			Longitude: r.rnd.Float64()*360 - 180,
		},
		Category: c,
	}
}

// Fixed always returns the same identity, with the requested category.
type Fixed Identity

// Next returns the fixed identity tagged with c.
func (f Fixed) Next(c Category) Identity {
	id := Identity(f)
	id.Category = c
	return id
}
