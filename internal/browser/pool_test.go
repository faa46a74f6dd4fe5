package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-rod/rod"

	"github.com/FranksOps/sift/internal/identity"
)

func TestPool_LaunchFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	calls := 0
	p := NewPool(Config{Launcher: func(ctx context.Context) (*rod.Browser, error) {
		calls++
		return nil, boom
	}})

	if _, err := p.Acquire(context.Background(), identity.Identity{}); !errors.Is(err, boom) {
		t.Errorf("expected launcher error, got %v", err)
	}
	if _, err := p.Acquire(context.Background(), identity.Identity{}); !errors.Is(err, boom) {
		t.Errorf("expected launcher error on retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a launch attempt per acquire, got %d", calls)
	}
}

func TestPool_RelaunchesDeadBrowser(t *testing.T) {
	first, second := rod.New(), rod.New()
	browsers := []*rod.Browser{first, second}
	launches := 0
	dead := map[*rod.Browser]bool{}
	var discarded []*rod.Browser

	p := NewPool(Config{
		Launcher: func(ctx context.Context) (*rod.Browser, error) {
			if launches == len(browsers) {
				return nil, errors.New("no more browsers")
			}
			b := browsers[launches]
			launches++
			return b, nil
		},
		Alive: func(ctx context.Context, b *rod.Browser) error {
			if dead[b] {
				return errors.New("websocket: close 1006")
			}
			return nil
		},
		Discard: func(b *rod.Browser) error {
			discarded = append(discarded, b)
			return nil
		},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b, err := p.handle(ctx)
		if err != nil || b != first {
			t.Fatalf("acquire %d: expected the first browser, got %p (%v)", i, b, err)
		}
	}
	if launches != 1 {
		t.Fatalf("a healthy browser must be reused, launched %d times", launches)
	}

	dead[first] = true
	b, err := p.handle(ctx)
	if err != nil || b != second {
		t.Fatalf("expected a relaunched browser, got %p (%v)", b, err)
	}
	if launches != 2 || len(discarded) != 1 || discarded[0] != first {
		t.Errorf("expected the dead browser discarded and one relaunch, launches=%d discarded=%v", launches, discarded)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 2 || discarded[1] != second {
		t.Errorf("expected Close to discard the live browser, got %v", discarded)
	}
}

func TestPool_RelaunchFailureIsHardError(t *testing.T) {
	boom := errors.New("chrome crashed on start")
	healthy := rod.New()
	launches := 0
	p := NewPool(Config{
		Launcher: func(ctx context.Context) (*rod.Browser, error) {
			launches++
			if launches == 1 {
				return healthy, nil
			}
			return nil, boom
		},
		Alive:   func(ctx context.Context, b *rod.Browser) error { return errors.New("target closed") },
		Discard: func(b *rod.Browser) error { return nil },
	})
	ctx := context.Background()

	if _, err := p.handle(ctx); err != nil {
		t.Fatalf("first launch failed: %v", err)
	}
	if _, err := p.handle(ctx); !errors.Is(err, boom) {
		t.Errorf("expected the relaunch error, got %v", err)
	}
	if _, err := p.handle(ctx); !errors.Is(err, boom) || launches != 3 {
		t.Errorf("expected a fresh launch attempt after a failed relaunch, launches=%d err=%v", launches, err)
	}
}

func TestPool_AcquireAfterClose(t *testing.T) {
	p := NewPool(Config{Launcher: func(ctx context.Context) (*rod.Browser, error) {
		t.Fatalf("closed pool must not launch")
		return nil, nil
	}})
	if err := p.Close(); err != nil {
		t.Fatalf("close without a browser failed: %v", err)
	}
	if _, err := p.Acquire(context.Background(), identity.Identity{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPool_Defaults(t *testing.T) {
	p := NewPool(Config{})
	if p.cfg.ReuseProbability != DefaultReuseProbability {
		t.Errorf("expected default reuse probability, got %v", p.cfg.ReuseProbability)
	}
	if p.cfg.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", p.cfg.Timeout)
	}
	if p.shouldSeed() {
		t.Errorf("pool without a state store must never seed")
	}

	disabled := NewPool(Config{State: NewStateStore("x.json"), ReuseProbability: -1})
	if disabled.shouldSeed() {
		t.Errorf("negative probability must disable seeding")
	}
}

func TestPool_ReleaseNil(t *testing.T) {
	p := NewPool(Config{})
	p.Release(nil)

	closed := 0
	s := &Session{close: func() error { closed++; return nil }}
	p.Release(s)
	p.Release(s)
	if closed != 1 {
		t.Errorf("expected session closed once, got %d", closed)
	}
}

func TestSeedLocalStorageJS(t *testing.T) {
	js := seedLocalStorageJS("https://duckduckgo.com", []LocalItem{{Name: "k", Value: `"quoted"`}})
	if !strings.Contains(js, `location.origin !== "https://duckduckgo.com"`) {
		t.Errorf("script must be scoped to the origin: %s", js)
	}
	if !strings.Contains(js, `{"name":"k","value":"\"quoted\""}`) {
		t.Errorf("items must be JSON encoded: %s", js)
	}
}
