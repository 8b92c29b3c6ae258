// Package scraper drives ticket-sale pages: it classifies what loaded,
// fills the booking form, deals with captchas, submits, and pulls the
// confirmation out of whatever comes back. Everything here is
// best-effort heuristic work against sites it has never seen; the
// orchestrator's job is to keep one failed attempt from sinking the
// whole run.
package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/ai"
	"ticket-agent/internal/config"
)

// Driver is the browser capability set the scraper consumes. All
// element access is selector-addressed so nothing Go-side can go stale
// across a navigation; implementations resolve selectors per call.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	PageHTML(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	ClickScript(ctx context.Context, selector string) error
	ScrollIntoView(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	SelectByValue(ctx context.Context, selector, value string) (bool, error)
	SelectByText(ctx context.Context, selector, text string) (bool, error)
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Eval(ctx context.Context, js string, out any) error
}

// Assistant is the AI collaborator for page analysis and form-value
// generation. Both calls may fail; the scraper then falls back to its
// deterministic heuristics.
type Assistant interface {
	AnalyzePage(ctx context.Context, html, pageURL string) (*ai.PageAnalysis, error)
	FormValues(ctx context.Context, fields []string, user config.UserInfo, ticketCount int) (map[string]string, error)
}

// CaptchaSolver turns a captcha screenshot into an answer.
type CaptchaSolver interface {
	SolveCaptcha(ctx context.Context, png []byte) (string, error)
}

// BookingResult records one attempt. Immutable once appended.
type BookingResult struct {
	Success            bool              `json:"success"`
	TicketsBooked      int               `json:"tickets_booked"`
	ConfirmationNumber string            `json:"confirmation_number,omitempty"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	BookingDetails     map[string]string `json:"booking_details,omitempty"`
	TotalCost          float64           `json:"total_cost"`
}

// Options bound the retry loop and its pacing.
type Options struct {
	MaxAttempts int
	// PerOrderCap limits tickets requested in a single attempt; sites
	// commonly refuse larger per-order quantities.
	PerOrderCap   int
	SettleDelay   time.Duration // after page readiness
	SubmitSettle  time.Duration // after the submit click
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	if o.PerOrderCap <= 0 {
		o.PerOrderCap = 4
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.SubmitSettle <= 0 {
		o.SubmitSettle = 3 * time.Second
	}
	if o.RetryDelayMin <= 0 {
		o.RetryDelayMin = 1 * time.Second
	}
	if o.RetryDelayMax <= o.RetryDelayMin {
		o.RetryDelayMax = o.RetryDelayMin + 2*time.Second
	}
	return o
}

// Scraper runs booking sessions against a single browser session. Not
// safe for concurrent use; one Scraper per Driver per session.
type Scraper struct {
	drv     Driver
	assist  Assistant
	captcha CaptchaSolver
	opts    Options
	log     *zap.Logger
}

// New builds a scraper. assist and captcha may be nil; every path that
// would use them has a deterministic fallback or a documented refusal.
func New(drv Driver, assist Assistant, captcha CaptchaSolver, opts Options, log *zap.Logger) *Scraper {
	return &Scraper{
		drv:     drv,
		assist:  assist,
		captcha: captcha,
		opts:    opts.withDefaults(),
		log:     log,
	}
}

// session is the mutable state of one BookTickets run.
type session struct {
	remaining int
	attempts  int
	booked    int
}

// BookTickets attempts to book ticketCount tickets from targetURL and
// returns one result per attempt that reached the booking form or
// failed trying. Every attempt restarts from targetURL. The loop ends
// when the quota is met, the attempt budget is spent, the context is
// cancelled, or the page can no longer be classified.
func (s *Scraper) BookTickets(ctx context.Context, targetURL string, user config.UserInfo, ticketCount int) []BookingResult {
	results := make([]BookingResult, 0, s.opts.MaxAttempts)
	sess := &session{remaining: ticketCount}

	for sess.remaining > 0 && sess.attempts < s.opts.MaxAttempts {
		if ctx.Err() != nil {
			s.log.Info("booking run cancelled", zap.Int("attempts", sess.attempts))
			break
		}
		sess.attempts++
		s.log.Info("booking attempt",
			zap.Int("attempt", sess.attempts),
			zap.Int("max_attempts", s.opts.MaxAttempts),
			zap.Int("remaining", sess.remaining))

		html, err := s.loadPage(ctx, targetURL)
		if err != nil {
			// Transient: record and let the loop budget decide.
			s.log.Warn("page load failed", zap.Error(err))
			results = append(results, failedResult(fmt.Sprintf("page load failed: %v", err)))
			s.randomDelay(ctx, sess)
			continue
		}

		analysis := s.analyzePage(ctx, html, targetURL)

		switch {
		case IsBookablePage(html):
			qty := sess.remaining
			if qty > s.opts.PerOrderCap {
				qty = s.opts.PerOrderCap
			}
			res := s.attemptBooking(ctx, user, qty, analysis)
			results = append(results, res)
			if res.Success {
				sess.remaining -= res.TicketsBooked
				sess.booked += res.TicketsBooked
				s.log.Info("booked tickets",
					zap.Int("tickets", res.TicketsBooked),
					zap.String("confirmation", res.ConfirmationNumber))
			} else {
				s.log.Warn("booking attempt failed", zap.String("reason", res.ErrorMessage))
			}

		case NeedsNavigation(html):
			if !s.navigateToBooking(ctx, analysis) {
				// Structural: no path to a booking page exists.
				s.log.Error("no navigation path to a booking page")
				return results
			}

		default:
			// Structural: the page is neither bookable nor navigable.
			s.log.Error("unable to classify page, aborting run")
			return results
		}

		s.randomDelay(ctx, sess)
	}

	s.log.Info("booking run finished",
		zap.Int("attempts", sess.attempts),
		zap.Int("tickets_booked", sess.booked),
		zap.Int("requested", ticketCount))
	return results
}

// loadPage navigates to the entry URL, waits for readiness, then gives
// asynchronous page scripts a fixed settle window before reading the
// markup.
func (s *Scraper) loadPage(ctx context.Context, url string) (string, error) {
	if err := s.drv.Navigate(ctx, url); err != nil {
		return "", err
	}
	if err := s.drv.WaitReady(ctx); err != nil {
		return "", err
	}
	sleepCtx(ctx, s.opts.SettleDelay)
	return s.drv.PageHTML(ctx)
}

// analyzePage asks the assistant for hints about the page. Advisory
// only; a nil return just means no hints.
func (s *Scraper) analyzePage(ctx context.Context, html, url string) *ai.PageAnalysis {
	if s.assist == nil {
		return nil
	}
	analysis, err := s.assist.AnalyzePage(ctx, html, url)
	if err != nil {
		s.log.Warn("page analysis unavailable", zap.Error(err))
		return nil
	}
	return analysis
}

// attemptBooking runs one fill-solve-submit pass on the current page.
// It never lets an error escape; failures become failed results.
func (s *Scraper) attemptBooking(ctx context.Context, user config.UserInfo, qty int, analysis *ai.PageAnalysis) BookingResult {
	fields, err := s.ExtractFields(ctx)
	if err != nil {
		return failedResult(fmt.Sprintf("form extraction failed: %v", err))
	}
	if len(fields) == 0 {
		return failedResult("no booking form found")
	}

	s.FillForm(ctx, fields, user, qty)

	if !s.HandleCaptcha(ctx) {
		return failedResult("CAPTCHA solving failed")
	}

	if !s.Submit(ctx, analysis) {
		return failedResult("form submission failed")
	}

	html, err := s.drv.PageHTML(ctx)
	if err != nil {
		s.log.Warn("could not read confirmation page", zap.Error(err))
		html = ""
	}
	conf := ExtractConfirmation(html)

	return BookingResult{
		Success:            true,
		TicketsBooked:      qty,
		ConfirmationNumber: conf.Number,
		BookingDetails:     conf.Details(),
		TotalCost:          conf.TotalCost,
	}
}

func failedResult(msg string) BookingResult {
	return BookingResult{ErrorMessage: msg}
}

// randomDelay sleeps a uniform random interval between attempts so the
// request cadence is not fixed. Skipped once the quota is met.
func (s *Scraper) randomDelay(ctx context.Context, sess *session) {
	if sess.remaining <= 0 {
		return
	}
	span := s.opts.RetryDelayMax - s.opts.RetryDelayMin
	sleepCtx(ctx, s.opts.RetryDelayMin+time.Duration(rand.Int63n(int64(span))))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
