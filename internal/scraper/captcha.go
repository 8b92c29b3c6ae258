package scraper

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// captchaSelectors match common captcha containers. Ordered; first
// live match wins.
var captchaSelectors = []string{
	"img[src*='captcha']",
	".captcha",
	"#captcha",
	"canvas[width]",
	"[data-captcha]",
}

// captchaInputSelector locates the answer field by name/id pattern.
const captchaInputSelector = "input[name*='captcha'], input[id*='captcha']"

// HandleCaptcha detects a captcha widget, solves it, and types the
// answer. True means submission may proceed: either no captcha was
// found (no solver cost paid) or the answer went in. False blocks the
// attempt. The answer is entered verbatim, unvalidated; a wrong
// solution surfaces later as a submission failure.
func (s *Scraper) HandleCaptcha(ctx context.Context) bool {
	selector := s.findCaptcha(ctx)
	if selector == "" {
		return true
	}
	s.log.Info("captcha detected", zap.String("selector", selector))

	if s.captcha == nil {
		s.log.Warn("captcha found but no solver configured")
		return false
	}

	img, err := s.drv.Screenshot(ctx, selector)
	if err != nil {
		s.log.Error("captcha screenshot failed", zap.Error(err))
		return false
	}

	answer, err := s.captcha.SolveCaptcha(ctx, img)
	if err != nil {
		s.log.Error("captcha solving failed", zap.Error(err))
		return false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		s.log.Warn("captcha solver returned nothing")
		return false
	}

	found, err := s.drv.Exists(ctx, captchaInputSelector)
	if err != nil || !found {
		s.log.Error("no captcha answer field found", zap.Error(err))
		return false
	}
	if err := s.drv.SetValue(ctx, captchaInputSelector, answer); err != nil {
		s.log.Error("could not enter captcha answer", zap.Error(err))
		return false
	}
	s.log.Info("captcha answer entered")
	return true
}

// findCaptcha returns the selector of the first captcha container on
// the page, or "" when none match.
func (s *Scraper) findCaptcha(ctx context.Context) string {
	for _, sel := range captchaSelectors {
		found, err := s.drv.Exists(ctx, sel)
		if err != nil {
			s.log.Warn("captcha probe failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if found {
			return sel
		}
	}
	return ""
}
