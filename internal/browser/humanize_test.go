package browser

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

var candidateLinks = []string{
	"https://a.example/", "https://b.example/", "https://c.example/",
	"https://d.example/", "https://e.example/", "https://f.example/",
	"https://g.example/", "https://h.example/", "https://i.example/",
}

// recordingPacer never sleeps but remembers every requested pause.
func recordingPacer(seed int64, slept *[]time.Duration) *ratelimit.Pacer {
	return ratelimit.NewPacerWith(rand.New(rand.NewSource(seed)), func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	})
}

func TestHumanize_CountsWithinWindows(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		var slept []time.Duration
		page := &fakePage{viewport: identity.Viewport{Width: 1366, Height: 768}}
		timing := DefaultTiming()
		timing.ClickProbability = 0

		NewHumanizer(timing, recordingPacer(seed, &slept), nil).Humanize(context.Background(), page, candidateLinks)

		if page.moves < 3 || page.moves > 6 {
			t.Errorf("seed %d: %d moves outside [3,6]", seed, page.moves)
		}
		if n := len(page.hovered); n < 2 || n > 4 {
			t.Errorf("seed %d: %d hovers outside [2,4]", seed, n)
		}
		seen := map[string]bool{}
		for _, h := range page.hovered {
			if seen[h] {
				t.Errorf("seed %d: %s hovered twice", seed, h)
			}
			seen[h] = true
			if h == candidateLinks[8] {
				t.Errorf("seed %d: hovered a link outside the first eight", seed)
			}
		}
		if len(page.clicked) != 0 {
			t.Errorf("seed %d: click with zero probability", seed)
		}
		for _, d := range slept {
			if d < 300*time.Millisecond || d > 3*time.Second {
				t.Errorf("seed %d: pause %v outside the configured windows", seed, d)
			}
		}
	}
}

func TestHumanize_ClickAvoidsHoveredLinks(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		page := &fakePage{}
		timing := ZeroTiming()
		timing.ClickProbability = 1

		NewHumanizer(timing, ratelimit.NewPacerWith(rand.New(rand.NewSource(seed)), func(ctx context.Context, _ time.Duration) error { return nil }), nil).
			Humanize(context.Background(), page, candidateLinks)

		if len(page.clicked) != 1 {
			t.Fatalf("seed %d: expected one click, got %v", seed, page.clicked)
		}
		target := page.clicked[0]
		for _, h := range page.hovered {
			if h == target {
				t.Errorf("seed %d: clicked a hovered link %s", seed, target)
			}
		}
		inPool := false
		for _, l := range candidateLinks[:5] {
			if l == target {
				inPool = true
			}
		}
		if !inPool {
			t.Errorf("seed %d: clicked %s outside the first five", seed, target)
		}
		if page.count("back") != 1 {
			t.Errorf("seed %d: expected navigation back after the click", seed)
		}
	}
}

func TestHumanize_SwallowsFailures(t *testing.T) {
	page := &fakePage{hoverErr: errors.New("element detached"), clickErr: errors.New("not clickable")}
	timing := ZeroTiming()
	timing.ClickProbability = 1

	NewHumanizer(timing, ratelimit.NoDelay(), nil).Humanize(context.Background(), page, candidateLinks)

	if len(page.hovered) == 0 {
		t.Errorf("hover failures should not stop later hovers")
	}
	if page.count("back") != 0 {
		t.Errorf("a failed click must not navigate back")
	}
}

func TestHumanize_NoLinks(t *testing.T) {
	page := &fakePage{}
	timing := ZeroTiming()
	timing.ClickProbability = 1

	NewHumanizer(timing, ratelimit.NoDelay(), nil).Humanize(context.Background(), page, nil)

	if len(page.hovered) != 0 || len(page.clicked) != 0 {
		t.Errorf("expected no link interaction without candidates")
	}
	if page.moves == 0 || page.count("scroll") != 1 {
		t.Errorf("pointer moves and scroll should still happen")
	}
}

func TestHumanize_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &fakePage{}
	timing := ZeroTiming()
	timing.ClickProbability = 1

	NewHumanizer(timing, ratelimit.NoDelay(), nil).Humanize(ctx, page, candidateLinks)

	if page.moves != 0 || len(page.hovered) != 0 || len(page.clicked) != 0 {
		t.Errorf("expected nothing after cancellation, got %v", page.calls)
	}
}

func TestSample_Distinct(t *testing.T) {
	h := NewHumanizer(ZeroTiming(), ratelimit.NoDelay(), nil)
	got := h.sample(3, 10)
	if len(got) != 3 {
		t.Fatalf("expected sample capped at n, got %v", got)
	}
	seen := map[int]bool{}
	for _, i := range got {
		if seen[i] || i < 0 || i >= 3 {
			t.Errorf("bad sample %v", got)
		}
		seen[i] = true
	}
}
