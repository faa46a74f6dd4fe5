package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/identity"
)

// fakePage records calls and serves scripted HTML.
type fakePage struct {
	mu sync.Mutex

	html        []string // successive HTML reads; the last one repeats
	navErr      error
	consent     bool
	consentErr  error
	waitErr     error
	waitMatch   string
	hoverErr    error
	clickErr    error
	viewport    identity.Viewport
	calls       []string
	hovered     []string
	clicked     []string
	moves       int
	htmlReads   int
	waitTimeout time.Duration
}

var _ Page = (*fakePage)(nil)

func (f *fakePage) record(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.record("navigate " + url)
	return f.navErr
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "html")
	if len(f.html) == 0 {
		return "", errors.New("no html")
	}
	i := f.htmlReads
	if i >= len(f.html) {
		i = len(f.html) - 1
	}
	f.htmlReads++
	return f.html[i], nil
}

func (f *fakePage) ClickButton(ctx context.Context, pattern string) (bool, error) {
	f.record("consent")
	return f.consent, f.consentErr
}

func (f *fakePage) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	f.record("wait")
	f.mu.Lock()
	f.waitTimeout = timeout
	f.mu.Unlock()
	if f.waitErr != nil {
		return "", f.waitErr
	}
	if f.waitMatch != "" {
		return f.waitMatch, nil
	}
	return selectors[0], nil
}

func (f *fakePage) MoveMouse(ctx context.Context, x, y float64, steps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vp := f.viewport
	if x < 0 || y < 0 || (vp.Width > 0 && int(x) >= vp.Width) || (vp.Height > 0 && int(y) >= vp.Height) {
		return errors.New("move outside viewport")
	}
	f.moves++
	f.calls = append(f.calls, "move")
	return nil
}

func (f *fakePage) Scroll(ctx context.Context, dy float64, steps int) error {
	f.record("scroll")
	return nil
}

func (f *fakePage) HoverLink(ctx context.Context, href string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "hover")
	f.hovered = append(f.hovered, href)
	return f.hoverErr
}

func (f *fakePage) ClickLink(ctx context.Context, href string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "click")
	f.clicked = append(f.clicked, href)
	return f.clickErr
}

func (f *fakePage) Back(ctx context.Context) error {
	f.record("back")
	return nil
}

func (f *fakePage) Viewport() identity.Viewport {
	return f.viewport
}

func (f *fakePage) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}
