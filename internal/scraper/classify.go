package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"ticket-agent/internal/ai"
)

// bookableKeywords mark a page as carrying ticket-purchase
// functionality. Matching is case-insensitive against visible text.
var bookableKeywords = []string{
	"ticket", "book", "purchase", "buy", "order", "reserve",
	"quantity", "seats", "checkout", "cart",
}

// navSelectors match links/buttons that plausibly lead toward a
// booking page. Ordered; first live match wins during navigation.
var navSelectors = []string{
	"a[href*='ticket']",
	"a[href*='book']",
	"a[href*='buy']",
	"button[onclick*='ticket']",
	"button[onclick*='book']",
	".book-now",
	".buy-tickets",
	"[data-action*='book']",
}

// StripHTML returns the visible text of a markup fragment. Plain text
// passes through unchanged.
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

// IsBookablePage reports whether the page text mentions any
// ticket-purchase keyword. Pure heuristic, deterministic for a given
// input.
func IsBookablePage(html string) bool {
	text := strings.ToLower(StripHTML(html))
	for _, kw := range bookableKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// NeedsNavigation reports whether the snapshot contains any element a
// navigation step could follow. Deterministic for a given input.
func NeedsNavigation(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range navSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// navigateToBooking performs one navigation step toward a booking
// page: AI-suggested clicks first (each checked against the live DOM),
// then the heuristic selector list. Returns false when nothing
// clickable was found, which is fatal for the run.
func (s *Scraper) navigateToBooking(ctx context.Context, analysis *ai.PageAnalysis) bool {
	for _, sel := range suggestedClicks(analysis) {
		if s.tryNavigate(ctx, sel) {
			return true
		}
	}
	for _, sel := range navSelectors {
		if s.tryNavigate(ctx, sel) {
			return true
		}
	}
	return false
}

func (s *Scraper) tryNavigate(ctx context.Context, selector string) bool {
	found, err := s.drv.Exists(ctx, selector)
	if err != nil || !found {
		return false
	}
	if !s.safeClick(ctx, selector) {
		return false
	}
	if err := s.drv.WaitReady(ctx); err != nil {
		s.log.Warn("page not ready after navigation click", zap.Error(err))
		return false
	}
	sleepCtx(ctx, s.opts.SettleDelay)
	s.log.Info("navigated toward booking page", zap.String("selector", selector))
	return true
}

// suggestedClicks extracts "click <selector>" actions from an advisory
// analysis.
func suggestedClicks(analysis *ai.PageAnalysis) []string {
	if analysis == nil {
		return nil
	}
	var selectors []string
	for _, step := range analysis.NextSteps {
		trimmed := strings.TrimSpace(step)
		if len(trimmed) <= 6 || !strings.EqualFold(trimmed[:6], "click ") {
			continue
		}
		if sel := strings.TrimSpace(trimmed[6:]); sel != "" {
			selectors = append(selectors, sel)
		}
	}
	return selectors
}
