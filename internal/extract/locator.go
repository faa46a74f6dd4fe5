package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/sift/internal/serp"
)

// heuristicTags are the elements the outbound-link heuristic considers.
const heuristicTags = "div, article, li, tr"

// Locator finds candidate result containers on a page. Locators are pure and
// are evaluated in order until one returns a non-empty selection.
type Locator struct {
	Name string
	Find func(doc *goquery.Document) *goquery.Selection
}

// SelectorLocator matches containers with a CSS selector.
func SelectorLocator(selector string) Locator {
	return Locator{
		Name: selector,
		Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(selector)
		},
	}
}

// OutboundLocator is the last-resort heuristic for unknown markup: the
// innermost elements that contain at least one link leading off the engine's
// own domain. Taking only the innermost keeps page-wide wrappers from
// swallowing every result into one container.
func OutboundLocator(engine serp.Engine) Locator {
	return Locator{
		Name: "outbound-link heuristic",
		Find: func(doc *goquery.Document) *goquery.Selection {
			candidates := doc.Find(heuristicTags).FilterFunction(func(_ int, s *goquery.Selection) bool {
				return hasOutboundLink(engine, s)
			})
			return candidates.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.Find(heuristicTags).FilterSelection(candidates).Length() == 0
			})
		},
	}
}

func hasOutboundLink(engine serp.Engine, s *goquery.Selection) bool {
	found := false
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if engine.IsSelfLink(href) {
			return true
		}
		if _, ok := engine.Resolve(href); ok {
			found = true
			return false
		}
		return true
	})
	return found
}
