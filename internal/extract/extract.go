// Package extract turns a search results page into ordered title/URL/snippet
// triples. It works on raw HTML, so the same code serves plain HTTP fetches
// and pages rendered by the browser.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/sift/internal/serp"
)

const (
	DefaultMinTitleLength   = 5
	DefaultMinSnippetLength = 50
)

var (
	// DefaultContainerSelectors are tried in order; the first one that matches
	// anything wins.
	DefaultContainerSelectors = []string{
		"div.result",
		"div.web-result",
		"div[data-result]",
		".result--web",
		"table tr:has(a.result-link)",
	}
	// DefaultSnippetSelectors are preferred over the generic text scan.
	DefaultSnippetSelectors = []string{
		".result__snippet",
		".snippet",
		"td.result-snippet",
	}
)

// Config customises an Extractor. Zero values pick the defaults.
type Config struct {
	Engine             serp.Engine
	ContainerSelectors []string
	SnippetSelectors   []string
	MinTitleLength     int
	MinSnippetLength   int
	Logger             *slog.Logger
}

// Extractor pulls results out of a results page.
type Extractor struct {
	engine     serp.Engine
	locators   []Locator
	snippets   []string
	minTitle   int
	minSnippet int
	logger     *slog.Logger
}

// New builds an Extractor. The locator chain is the configured selectors
// followed by the outbound-link heuristic.
func New(cfg Config) *Extractor {
	if cfg.Engine.Domain == "" {
		cfg.Engine = serp.DuckDuckGo()
	}
	if len(cfg.ContainerSelectors) == 0 {
		cfg.ContainerSelectors = DefaultContainerSelectors
	}
	if len(cfg.SnippetSelectors) == 0 {
		cfg.SnippetSelectors = DefaultSnippetSelectors
	}
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = DefaultMinTitleLength
	}
	if cfg.MinSnippetLength <= 0 {
		cfg.MinSnippetLength = DefaultMinSnippetLength
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	locators := make([]Locator, 0, len(cfg.ContainerSelectors)+1)
	for _, sel := range cfg.ContainerSelectors {
		locators = append(locators, SelectorLocator(sel))
	}
	locators = append(locators, OutboundLocator(cfg.Engine))

	return &Extractor{
		engine:     cfg.Engine,
		locators:   locators,
		snippets:   cfg.SnippetSelectors,
		minTitle:   cfg.MinTitleLength,
		minSnippet: cfg.MinSnippetLength,
		logger:     cfg.Logger,
	}
}

// Extract parses html and returns up to max results. Unparseable input
// yields an empty slice.
func (x *Extractor) Extract(html string, max int) []serp.Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		x.logger.Warn("failed to parse results page", slog.String("error", err.Error()))
		return []serp.Result{}
	}
	return x.ExtractDocument(doc, max)
}

// ExtractDocument returns up to max results from doc in container order.
// Only the first max containers are considered; one that does not yield a
// valid result is skipped without pulling in a later container.
func (x *Extractor) ExtractDocument(doc *goquery.Document, max int) []serp.Result {
	results := []serp.Result{}
	if max <= 0 {
		return results
	}

	containers, locator := x.Containers(doc)
	if containers.Length() == 0 {
		return results
	}
	x.logger.Debug("located result containers",
		slog.String("locator", locator),
		slog.Int("count", containers.Length()))
	if containers.Length() > max {
		containers = containers.Slice(0, max)
	}

	containers.Each(func(i int, s *goquery.Selection) {
		res, ok, err := x.parse(s)
		if err != nil {
			x.logger.Debug("skipping malformed result container",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			return
		}
		if ok {
			results = append(results, res)
		}
	})
	return results
}

// Containers runs the locator chain and returns the first non-empty match
// together with the name of the locator that produced it.
func (x *Extractor) Containers(doc *goquery.Document) (*goquery.Selection, string) {
	for _, l := range x.locators {
		if sel := l.Find(doc); sel != nil && sel.Length() > 0 {
			return sel, l.Name
		}
	}
	return doc.Find("sift-no-match"), ""
}

// CandidateLinks returns up to n raw hrefs of the main links on the page, in
// the form they appear in the DOM. The humanizer hovers and clicks these.
func (x *Extractor) CandidateLinks(html string, n int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil || n <= 0 {
		return nil
	}
	containers, _ := x.Containers(doc)

	var links []string
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if a := x.mainLink(s); a != nil {
			if href, ok := a.Attr("href"); ok {
				links = append(links, href)
			}
		}
		return len(links) < n
	})
	return links
}

// parse builds a result from one container. ok is false when the container
// is not a result; err reports a fault while reading it.
func (x *Extractor) parse(s *goquery.Selection) (res serp.Result, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: container panic: %v", r)
			ok = false
		}
	}()

	link := x.mainLink(s)
	if link == nil {
		return res, false, nil
	}

	rawTitle := collapse(link.Text())
	title := x.engine.CleanTitle(rawTitle)
	if len([]rune(title)) < x.minTitle {
		return res, false, nil
	}

	href, _ := link.Attr("href")
	target, valid := x.engine.Resolve(href)
	if !valid {
		return res, false, nil
	}

	return serp.Result{
		Title:   title,
		URL:     target,
		Snippet: x.snippet(s, title, rawTitle),
	}, true, nil
}

// mainLink is the first anchor in s that leads to an http(s) page off the
// engine. Navigation chrome, fragments and javascript: or mailto: links are
// passed over.
func (x *Extractor) mainLink(s *goquery.Selection) *goquery.Selection {
	var found *goquery.Selection
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.TrimSpace(href) == "" || x.engine.IsSelfLink(href) {
			return true
		}
		if _, ok := x.engine.Resolve(href); !ok {
			return true
		}
		found = a
		return false
	})
	return found
}

func (x *Extractor) snippet(s *goquery.Selection, titles ...string) string {
	accept := func(text string) bool {
		if len([]rune(text)) <= x.minSnippet {
			return false
		}
		for _, t := range titles {
			if text == t {
				return false
			}
		}
		return true
	}

	for _, sel := range x.snippets {
		if text := collapse(s.Find(sel).First().Text()); accept(text) {
			return text
		}
	}

	var out string
	s.Find("div, span, p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if text := collapse(el.Text()); accept(text) {
			out = text
			return false
		}
		return true
	})
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
