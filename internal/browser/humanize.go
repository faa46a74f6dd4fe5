package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/identity"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// IntRange is an inclusive integer window.
type IntRange struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// Timing is the tunable parameter set of the humanizer. The exact values are
// not important; drawing every count and delay from a window is.
type Timing struct {
	Moves     IntRange        `mapstructure:"moves"`
	MoveSteps IntRange        `mapstructure:"move_steps"`
	MoveDelay ratelimit.Range `mapstructure:"move_delay"`

	Scroll      IntRange        `mapstructure:"scroll"`
	ScrollPause ratelimit.Range `mapstructure:"scroll_pause"`

	HoverPool  int             `mapstructure:"hover_pool"`
	Hovers     IntRange        `mapstructure:"hovers"`
	HoverDwell ratelimit.Range `mapstructure:"hover_dwell"`

	ClickPool        int             `mapstructure:"click_pool"`
	ClickProbability float64         `mapstructure:"click_probability"`
	ClickLoad        ratelimit.Range `mapstructure:"click_load"`
	ClickScroll      IntRange        `mapstructure:"click_scroll"`
	ClickDwell       ratelimit.Range `mapstructure:"click_dwell"`
	BackPause        ratelimit.Range `mapstructure:"back_pause"`
}

// DefaultTiming returns the production timing.
func DefaultTiming() Timing {
	return Timing{
		Moves:     IntRange{3, 6},
		MoveSteps: IntRange{2, 5},
		MoveDelay: ratelimit.Between(300*time.Millisecond, 1200*time.Millisecond),

		Scroll:      IntRange{200, 600},
		ScrollPause: ratelimit.Between(1500*time.Millisecond, 3*time.Second),

		HoverPool:  8,
		Hovers:     IntRange{2, 4},
		HoverDwell: ratelimit.Between(800*time.Millisecond, 2100*time.Millisecond),

		ClickPool:        5,
		ClickProbability: 0.5,
		ClickLoad:        ratelimit.Between(3*time.Second, 6*time.Second),
		ClickScroll:      IntRange{300, 800},
		ClickDwell:       ratelimit.Between(1*time.Second, 2500*time.Millisecond),
		BackPause:        ratelimit.Between(1*time.Second, 2*time.Second),
	}
}

// ZeroTiming keeps the default counts but removes every delay.
func ZeroTiming() Timing {
	t := DefaultTiming()
	t.MoveDelay = ratelimit.Range{}
	t.ScrollPause = ratelimit.Range{}
	t.HoverDwell = ratelimit.Range{}
	t.ClickLoad = ratelimit.Range{}
	t.ClickDwell = ratelimit.Range{}
	t.BackPause = ratelimit.Range{}
	return t
}

// Humanizer makes a session look attended: pointer moves, scrolling, hovering
// over results and sometimes a click-through and back.
type Humanizer struct {
	timing Timing
	pacer  *ratelimit.Pacer
	logger *slog.Logger
}

// NewHumanizer returns a Humanizer. A nil pacer really sleeps.
func NewHumanizer(timing Timing, pacer *ratelimit.Pacer, logger *slog.Logger) *Humanizer {
	if pacer == nil {
		pacer = ratelimit.NewPacer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Humanizer{timing: timing, pacer: pacer, logger: logger}
}

// Humanize runs the sequence on page using links as the candidate pool. It is
// best effort: every failure is logged and skipped, and nothing is returned.
func (h *Humanizer) Humanize(ctx context.Context, page Page, links []string) {
	t := h.timing
	vp := page.Viewport()
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = identity.Viewport{Width: 1280, Height: 720}
	}

	moves := h.between(t.Moves)
	for i := 0; i < moves && ctx.Err() == nil; i++ {
		x := float64(h.pacer.Intn(vp.Width))
		y := float64(h.pacer.Intn(vp.Height))
		h.try("move", page.MoveMouse(ctx, x, y, max(1, h.between(t.MoveSteps))))
		h.pause(ctx, t.MoveDelay)
	}

	h.try("scroll", page.Scroll(ctx, float64(h.between(t.Scroll)), 3))
	h.pause(ctx, t.ScrollPause)

	pool := head(links, t.HoverPool)
	hovered := map[string]bool{}
	for _, i := range h.sample(len(pool), h.between(t.Hovers)) {
		if ctx.Err() != nil {
			return
		}
		hovered[pool[i]] = true
		h.try("hover", page.HoverLink(ctx, pool[i]))
		h.pause(ctx, t.HoverDwell)
	}

	if h.pacer.Float64() >= t.ClickProbability {
		return
	}
	var remaining []string
	for _, l := range head(links, t.ClickPool) {
		if !hovered[l] {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 || ctx.Err() != nil {
		return
	}

	target := remaining[h.pacer.Intn(len(remaining))]
	if err := page.ClickLink(ctx, target); err != nil {
		h.try("click", err)
		return
	}
	h.pause(ctx, t.ClickLoad)
	h.try("scroll", page.Scroll(ctx, float64(h.between(t.ClickScroll)), 3))
	h.pause(ctx, t.ClickDwell)
	h.try("back", page.Back(ctx))
	h.pause(ctx, t.BackPause)
}

func (h *Humanizer) between(r IntRange) int {
	return h.pacer.IntBetween(r.Min, r.Max)
}

// sample picks k distinct indexes from [0, n).
func (h *Humanizer) sample(n, k int) []int {
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + h.pacer.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func (h *Humanizer) pause(ctx context.Context, r ratelimit.Range) {
	_, _ = h.pacer.Pause(ctx, r)
}

func (h *Humanizer) try(step string, err error) {
	if err != nil {
		h.logger.Debug("humanize step failed", slog.String("step", step), slog.String("error", err.Error()))
	}
}

func head(s []string, n int) []string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
