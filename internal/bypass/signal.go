package bypass

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal classifies a loaded results page.
type Signal string

const (
	Blocked Signal = "blocked"
	Empty   Signal = "empty"
	Usable  Signal = "usable"
)

// DefaultBlockPhrases are fragments of the engine's rate-limit and challenge
// pages. The live pages change; treat this as a starting allowlist.
var DefaultBlockPhrases = []string{
	"Sorry, we are rate limiting requests",
	"Please prove you're not a robot",
	"We have detected unusual traffic",
	"unusual traffic from your computer",
	"CAPTCHA",
	"rate limit",
	"too many requests",
	"anomaly-modal",
	"bots use DuckDuckGo too",
}

// DefaultResultMarkers match result markup. A page carrying any of them is a
// results page even when a block phrase appears in it, since the engine
// echoes the query and result snippets quote the phrases freely.
var DefaultResultMarkers = []string{
	"div.result",
	"div.web-result",
	"div[data-result]",
	".result--web",
	"a.result__a",
	"a.result-link",
}

// echoSelector covers the elements that repeat the query back verbatim.
const echoSelector = "title, input, textarea, meta"

// Classifier turns page content into a Signal.
type Classifier struct {
	phrases []string
	lowered []string
	markers string
}

// NewClassifier builds a Classifier over phrases, falling back to
// DefaultBlockPhrases when none are given. markers override
// DefaultResultMarkers.
func NewClassifier(phrases []string, markers ...string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultBlockPhrases
	}
	if len(markers) == 0 {
		markers = DefaultResultMarkers
	}
	return &Classifier{phrases: phrases, lowered: lowerAll(phrases), markers: strings.Join(markers, ", ")}
}

// Classify returns Empty for blank content and Blocked with the matching
// phrase for a block page. Content with result markup is Usable, and phrases
// only count outside the title and form fields.
func (c *Classifier) Classify(content string) (Signal, string) {
	if strings.TrimSpace(content) == "" {
		return Empty, ""
	}
	i := matchIndex(strings.ToLower(content), c.lowered)
	if i < 0 {
		return Usable, ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return Blocked, c.phrases[i]
	}
	if doc.Find(c.markers).Length() > 0 {
		return Usable, ""
	}
	doc.Find(echoSelector).Remove()
	// Markup catches class names; Text catches phrases the renderer would
	// escape, like apostrophes.
	rest, _ := doc.Html()
	rest += "\n" + doc.Text()
	if i := matchIndex(strings.ToLower(rest), c.lowered); i >= 0 {
		return Blocked, c.phrases[i]
	}
	return Usable, ""
}

// Detector adapts the classifier to the Detector list used for raw responses.
func (c *Classifier) Detector() Detector {
	return func(ev *Evidence) (bool, string) {
		if s, _ := c.Classify(string(ev.Body)); s == Blocked {
			return true, SourceBlockPage
		}
		return false, ""
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, strings.ToLower(p))
	}
	return out
}

func matchIndex(lowerContent string, lowered []string) int {
	for i, p := range lowered {
		if p != "" && strings.Contains(lowerContent, p) {
			return i
		}
	}
	return -1
}
