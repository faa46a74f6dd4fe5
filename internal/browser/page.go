// Package browser owns the headless browser: a self-healing process handle,
// per-call incognito sessions dressed in a rotated identity, the navigation
// state machine for results pages and the humanization layer.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/FranksOps/sift/internal/identity"
)

// DefaultTimeout bounds every single page operation.
const DefaultTimeout = 20 * time.Second

// ErrLinkNotFound is returned when no anchor on the page carries the href.
var ErrLinkNotFound = errors.New("browser: link not found")

// ErrNoMatch is returned by WaitForAny when none of the selectors appeared.
var ErrNoMatch = errors.New("browser: no selector matched")

// Page is the slice of a browser tab the navigator and humanizer drive.
// Every call is bounded by the page's own operation timeout in addition to ctx.
type Page interface {
	// Navigate loads url and returns once the DOM is parsed.
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	// ClickButton clicks the first button whose text matches the
	// case-insensitive pattern. found is false when no button matches.
	ClickButton(ctx context.Context, pattern string) (found bool, err error)
	// WaitForAny waits up to timeout for one of selectors and returns the
	// one that matched.
	WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error)
	MoveMouse(ctx context.Context, x, y float64, steps int) error
	Scroll(ctx context.Context, dy float64, steps int) error
	HoverLink(ctx context.Context, href string) error
	// ClickLink clicks the anchor with href and waits for the resulting load.
	ClickLink(ctx context.Context, href string) error
	Back(ctx context.Context) error
	Viewport() identity.Viewport
}

// LocalItem is one localStorage entry.
type LocalItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// stateSource reads the persistable state of a session.
type stateSource interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	LocalStorage(ctx context.Context) (origin string, items []LocalItem, err error)
}

// rodPage implements Page on a rod tab inside an incognito context.
type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
	timeout   time.Duration
	viewport  identity.Viewport
}

var (
	_ Page        = (*rodPage)(nil)
	_ stateSource = (*rodPage)(nil)
)

func (r *rodPage) op(ctx context.Context) *rod.Page {
	return r.page.Context(ctx).Timeout(r.timeout)
}

func (r *rodPage) Navigate(ctx context.Context, url string) error {
	p := r.op(ctx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	wait()
	return nil
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := r.op(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read html: %w", err)
	}
	return html, nil
}

func (r *rodPage) ClickButton(ctx context.Context, pattern string) (bool, error) {
	found, el, err := r.op(ctx).HasR("button", pattern)
	if err != nil {
		return false, fmt.Errorf("browser: find button: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return true, fmt.Errorf("browser: click button: %w", err)
	}
	return true, nil
}

func (r *rodPage) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	if len(selectors) == 0 {
		return "", ErrNoMatch
	}
	race := r.page.Context(ctx).Timeout(timeout).Race()
	matched := ""
	for _, sel := range selectors {
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoMatch, err)
	}
	return matched, nil
}

func (r *rodPage) MoveMouse(ctx context.Context, x, y float64, steps int) error {
	return r.op(ctx).Mouse.MoveLinear(proto.Point{X: x, Y: y}, steps)
}

func (r *rodPage) Scroll(ctx context.Context, dy float64, steps int) error {
	return r.op(ctx).Mouse.Scroll(0, dy, steps)
}

func (r *rodPage) link(ctx context.Context, href string) (*rod.Element, error) {
	els, err := r.op(ctx).Elements("a[href]")
	if err != nil {
		return nil, fmt.Errorf("browser: list links: %w", err)
	}
	for _, el := range els {
		v, err := el.Attribute("href")
		if err == nil && v != nil && *v == href {
			return el, nil
		}
	}
	return nil, ErrLinkNotFound
}

func (r *rodPage) HoverLink(ctx context.Context, href string) error {
	el, err := r.link(ctx, href)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("browser: scroll to link: %w", err)
	}
	return el.Hover()
}

func (r *rodPage) ClickLink(ctx context.Context, href string) error {
	el, err := r.link(ctx, href)
	if err != nil {
		return err
	}
	wait := r.op(ctx).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click link: %w", err)
	}
	wait()
	return nil
}

func (r *rodPage) Back(ctx context.Context) error {
	p := r.op(ctx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.NavigateBack(); err != nil {
		return fmt.Errorf("browser: navigate back: %w", err)
	}
	wait()
	return nil
}

func (r *rodPage) Viewport() identity.Viewport {
	return r.viewport
}

func (r *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	cookies, err := r.incognito.Context(ctx).Timeout(r.timeout).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: read cookies: %w", err)
	}
	return cookiesFromProto(cookies), nil
}

const localStorageJS = `() => ({
	origin: location.origin,
	items: Object.keys(localStorage).map((name) => ({ name, value: localStorage.getItem(name) })),
})`

func (r *rodPage) LocalStorage(ctx context.Context) (string, []LocalItem, error) {
	res, err := r.op(ctx).Eval(localStorageJS)
	if err != nil {
		return "", nil, fmt.Errorf("browser: read localStorage: %w", err)
	}
	return decodeLocalStorage(res.Value)
}

func decodeLocalStorage(v gson.JSON) (string, []LocalItem, error) {
	origin := v.Get("origin").Str()
	if origin == "" || origin == "null" {
		return "", nil, errors.New("browser: page has no origin")
	}
	var items []LocalItem
	for _, it := range v.Get("items").Arr() {
		items = append(items, LocalItem{Name: it.Get("name").Str(), Value: it.Get("value").Str()})
	}
	return origin, items, nil
}

func (r *rodPage) close() error {
	var errs []error
	if err := r.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.incognito.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
