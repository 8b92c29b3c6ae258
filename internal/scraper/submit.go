package scraper

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/ai"
	"ticket-agent/internal/browser"
)

// submitSelectors locate the submit control. Ordered; first clickable
// match wins.
var submitSelectors = []string{
	"input[type='submit']",
	"button[type='submit']",
	".submit",
	".book-now",
	".purchase",
	".buy",
	"button[onclick*='submit']",
}

// successKeywords classify a post-submission page as a successful
// booking. Heuristic; false verdicts are possible and accepted.
var successKeywords = []string{
	"confirmation", "success", "booked", "purchased",
	"thank you", "order number", "ticket number",
}

const clickRetries = 3

// Submit clicks the booking form's submit control, waits for the page
// to settle, and reports whether the resulting page reads like a
// success. An advisory submit-button hint is tried first after being
// checked against the live DOM.
func (s *Scraper) Submit(ctx context.Context, analysis *ai.PageAnalysis) bool {
	selectors := submitSelectors
	if analysis != nil && analysis.SubmitButton != "" {
		selectors = append([]string{analysis.SubmitButton}, selectors...)
	}

	for _, sel := range selectors {
		found, err := s.drv.Exists(ctx, sel)
		if err != nil || !found {
			continue
		}
		if !s.safeClick(ctx, sel) {
			continue
		}
		s.log.Info("submitted booking form", zap.String("selector", sel))
		sleepCtx(ctx, s.opts.SubmitSettle)
		return s.VerifySubmission(ctx)
	}

	s.log.Warn("no submit control found")
	return false
}

// VerifySubmission classifies the current page by success-keyword
// presence.
func (s *Scraper) VerifySubmission(ctx context.Context) bool {
	html, err := s.drv.PageHTML(ctx)
	if err != nil {
		s.log.Warn("could not read post-submission page", zap.Error(err))
		return false
	}
	return SubmissionSucceeded(html)
}

// SubmissionSucceeded reports whether the page text carries any
// success keyword.
func SubmissionSucceeded(html string) bool {
	text := strings.ToLower(StripHTML(html))
	for _, kw := range successKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// safeClick clicks with a resilient strategy: scroll into view, native
// click, then a script-dispatched click when the element is not
// interactable, retried with a short backoff. A stale element aborts
// immediately since the selector must be re-resolved by the caller,
// not hammered.
func (s *Scraper) safeClick(ctx context.Context, selector string) bool {
	for attempt := 1; attempt <= clickRetries; attempt++ {
		if err := s.drv.ScrollIntoView(ctx, selector); err != nil {
			s.log.Debug("scroll into view failed", zap.String("selector", selector), zap.Error(err))
		}

		err := s.drv.Click(ctx, selector)
		if err == nil {
			return true
		}
		if errors.Is(err, browser.ErrStale) {
			s.log.Warn("element went stale during click", zap.String("selector", selector))
			return false
		}
		if errors.Is(err, browser.ErrNotInteractable) {
			if scriptErr := s.drv.ClickScript(ctx, selector); scriptErr == nil {
				return true
			}
		}

		s.log.Debug("click failed",
			zap.String("selector", selector),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < clickRetries {
			sleepCtx(ctx, time.Second)
		}
	}
	return false
}
