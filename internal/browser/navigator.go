package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/pkg/ratelimit"
)

// State is a navigator state.
type State string

const (
	StateInit              State = "init"
	StateNavigating        State = "navigating"
	StateConsentHandling   State = "consent_handling"
	StateWaitingForResults State = "waiting_for_results"
	StateReady             State = "ready"
	StateBlocked           State = "blocked"
)

const (
	DefaultConsentPattern = `(?i)accept|agree`
	DefaultResultWait     = 15 * time.Second
)

var (
	DefaultResultSelectors = []string{".result", ".web-result", ".result__body"}
	DefaultSettle          = ratelimit.Between(2*time.Second, 3*time.Second)
	DefaultConsentPause    = ratelimit.Between(1*time.Second, 2*time.Second)
)

// Navigation is the outcome of loading one results page.
type Navigation struct {
	State State
	HTML  string
	// Phrase is the block phrase that matched when State is StateBlocked.
	Phrase string
	// Selector is the result selector that appeared, empty if the wait timed out.
	Selector string
	Consent  bool
}

// Blocked reports whether the engine refused the request.
func (n Navigation) Blocked() bool {
	return n.State == StateBlocked
}

// NavigatorConfig configures a Navigator. Zero values take the defaults.
type NavigatorConfig struct {
	Classifier      *bypass.Classifier
	ResultSelectors []string
	ConsentPattern  string
	Settle          ratelimit.Range
	ConsentPause    ratelimit.Range
	ResultWait      time.Duration
	Pacer           *ratelimit.Pacer
	Logger          *slog.Logger
}

// Navigator loads a results page and decides whether it is usable. It never
// retries; that is the orchestrator's job.
type Navigator struct {
	classifier *bypass.Classifier
	selectors  []string
	consent    string
	settle     ratelimit.Range
	consentP   ratelimit.Range
	wait       time.Duration
	pacer      *ratelimit.Pacer
	logger     *slog.Logger
}

// NewNavigator builds a Navigator from cfg.
func NewNavigator(cfg NavigatorConfig) *Navigator {
	n := &Navigator{
		classifier: cfg.Classifier,
		selectors:  cfg.ResultSelectors,
		consent:    cfg.ConsentPattern,
		settle:     cfg.Settle,
		consentP:   cfg.ConsentPause,
		wait:       cfg.ResultWait,
		pacer:      cfg.Pacer,
		logger:     cfg.Logger,
	}
	if n.classifier == nil {
		n.classifier = bypass.NewClassifier(nil)
	}
	if len(n.selectors) == 0 {
		n.selectors = DefaultResultSelectors
	}
	if n.consent == "" {
		n.consent = DefaultConsentPattern
	}
	if n.settle == (ratelimit.Range{}) {
		n.settle = DefaultSettle
	}
	if n.consentP == (ratelimit.Range{}) {
		n.consentP = DefaultConsentPause
	}
	if n.wait <= 0 {
		n.wait = DefaultResultWait
	}
	if n.pacer == nil {
		n.pacer = ratelimit.NewPacer()
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

func (n *Navigator) enter(target string, from, to State) State {
	n.logger.Debug("navigator transition",
		slog.String("url", target),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return to
}

// Navigate loads target in page. A block page is a normal outcome reported
// through Navigation.State; the error is reserved for navigation failures.
func (n *Navigator) Navigate(ctx context.Context, page Page, target string) (Navigation, error) {
	state := StateInit
	state = n.enter(target, state, StateNavigating)

	if err := page.Navigate(ctx, target); err != nil {
		return Navigation{State: state}, err
	}
	if _, err := n.pacer.Pause(ctx, n.settle); err != nil {
		return Navigation{State: state}, err
	}

	nav := Navigation{}
	state = n.enter(target, state, StateConsentHandling)
	found, err := page.ClickButton(ctx, n.consent)
	switch {
	case err != nil:
		n.logger.Debug("consent handling failed", slog.String("url", target), slog.String("error", err.Error()))
	case found:
		nav.Consent = true
		if _, err := n.pacer.Pause(ctx, n.consentP); err != nil {
			return Navigation{State: state}, err
		}
	}
	state = n.enter(target, state, StateNavigating)

	html, err := page.HTML(ctx)
	if err != nil {
		return Navigation{State: state}, err
	}
	if signal, phrase := n.classifier.Classify(html); signal == bypass.Blocked {
		n.enter(target, state, StateBlocked)
		n.logger.Info("block page detected", slog.String("url", target), slog.String("phrase", phrase))
		return Navigation{State: StateBlocked, HTML: html, Phrase: phrase, Consent: nav.Consent}, nil
	}

	state = n.enter(target, state, StateWaitingForResults)
	sel, err := page.WaitForAny(ctx, n.selectors, n.wait)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Navigation{State: state}, ctxErr
		}
		// Some valid pages render results with other markup; extraction
		// still gets a chance at whatever is there.
		n.logger.Info("result selectors did not appear", slog.String("url", target), slog.String("error", err.Error()))
	}
	nav.Selector = sel
	if fresh, err := page.HTML(ctx); err == nil {
		html = fresh
	} else {
		n.logger.Debug("html re-read failed", slog.String("url", target), slog.String("error", err.Error()))
	}

	n.enter(target, state, StateReady)
	nav.State = StateReady
	nav.HTML = html
	return nav, nil
}
