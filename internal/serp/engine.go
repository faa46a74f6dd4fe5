package serp

import (
	"net/url"
	"strings"
)

// QueryPlaceholder marks where the encoded query goes in an endpoint template.
const QueryPlaceholder = "{query}"

// RedirectRule describes a redirect-wrapper link: an engine-local path whose
// Param query parameter carries the percent-encoded destination.
type RedirectRule struct {
	Path  string `mapstructure:"path"`
	Param string `mapstructure:"param"`
}

// Engine holds everything that is specific to one search engine's markup and
// URL scheme. Markup drifts, so every field is expected to be overridden from
// configuration rather than edited in code.
type Engine struct {
	Name string
	// Domain is the registrable domain; links to it or its subdomains are
	// navigation chrome rather than results.
	Domain string
	// Origin is where cookies and permissions are granted in a browser session.
	Origin string
	// HTMLEndpoint is the static, script-free endpoint fetched over plain HTTP.
	HTMLEndpoint string
	// Endpoints are tried in order by the browser strategy.
	Endpoints []string
	Redirects []RedirectRule
	// AdMarkers are sponsored-content phrases; titles are cut at the first one.
	AdMarkers []string
}

// DuckDuckGo returns the engine definition for duckduckgo.com.
func DuckDuckGo() Engine {
	return Engine{
		Name:         "duckduckgo",
		Domain:       "duckduckgo.com",
		Origin:       "https://duckduckgo.com",
		HTMLEndpoint: "https://html.duckduckgo.com/html/?q={query}",
		Endpoints: []string{
			"https://html.duckduckgo.com/html/?q={query}",
			"https://lite.duckduckgo.com/lite/?q={query}",
			"https://duckduckgo.com/html/?q={query}",
		},
		Redirects: []RedirectRule{
			{Path: "/l", Param: "uddg"},
			{Path: "/url", Param: "q"},
		},
		AdMarkers: []string{
			"Ad Viewing ads is privacy protected by DuckDuckGo",
			"Viewing ads is privacy protected by DuckDuckGo",
			"Sponsored link",
		},
	}
}

// URL fills template with the form-encoded query.
func (e Engine) URL(template, query string) string {
	return strings.ReplaceAll(template, QueryPlaceholder, url.QueryEscape(query))
}

// IsSelfHost reports whether host belongs to the engine's own domain.
func (e Engine) IsSelfHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || e.Domain == "" {
		return false
	}
	d := strings.ToLower(e.Domain)
	return host == d || strings.HasSuffix(host, "."+d)
}

// Unwrap decodes a redirect-wrapper href into its destination. ok is false
// when href is not a wrapper.
func (e Engine) Unwrap(href string) (dest string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if u.Host != "" && !e.IsSelfHost(u.Hostname()) {
		return "", false
	}
	path := strings.TrimSuffix(u.Path, "/")
	for _, r := range e.Redirects {
		if path != strings.TrimSuffix(r.Path, "/") {
			continue
		}
		if v := u.Query().Get(r.Param); v != "" {
			return v, true
		}
	}
	return "", false
}

// IsSelfLink reports whether href is engine navigation chrome: it either
// points at the engine's own host or is relative to it. Redirect wrappers are
// never self links since they carry a result.
func (e Engine) IsSelfLink(href string) bool {
	if _, ok := e.Unwrap(href); ok {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return true
	}
	if u.Host == "" {
		return u.Scheme == ""
	}
	return e.IsSelfHost(u.Hostname())
}

// Resolve turns a result href into the destination URL. Wrappers are decoded;
// anything that is not an absolute http(s) URL afterwards is rejected.
func (e Engine) Resolve(href string) (string, bool) {
	target := strings.TrimSpace(href)
	if dest, ok := e.Unwrap(target); ok {
		target = dest
	}
	if !IsAbsolute(target) {
		return "", false
	}
	return target, true
}

// IsAbsolute reports whether raw is an http or https URL with a host.
func IsAbsolute(raw string) bool {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// CleanTitle cuts title at the first sponsored-content marker.
func (e Engine) CleanTitle(title string) string {
	for _, m := range e.AdMarkers {
		if m == "" {
			continue
		}
		if i := strings.Index(title, m); i >= 0 {
			title = title[:i]
		}
	}
	return strings.TrimSpace(title)
}
