// Package agent owns the lifecycle of one booking session: validated
// start, background execution, cooperative stop, status polling,
// report persistence, and email dispatch.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/ai"
	"ticket-agent/internal/browser"
	"ticket-agent/internal/config"
	"ticket-agent/internal/email"
	"ticket-agent/internal/scraper"
)

const stopTimeout = 10 * time.Second

// Status is a point-in-time snapshot of a session.
type Status struct {
	IsRunning          bool    `json:"is_running"`
	TotalAttempts      int     `json:"total_attempts"`
	SuccessfulBookings int     `json:"successful_bookings"`
	TotalTicketsBooked int     `json:"total_tickets_booked"`
	TargetTicketCount  int     `json:"target_ticket_count"`
	ProgressPercent    float64 `json:"progress_percentage"`
	RuntimeSeconds     float64 `json:"runtime_seconds"`
	StartTime          string  `json:"start_time,omitempty"`
}

// Runner executes booking sessions one at a time. The zero value is
// not usable; construct with New.
type Runner struct {
	cfg    *config.Config
	log    *zap.Logger
	mailer *email.Sender // nil disables reports

	// book is swapped out in tests; the default drives a real browser.
	book func(ctx context.Context) []scraper.BookingResult

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	results   []scraper.BookingResult
	startTime time.Time

	reportMu sync.Mutex
}

// New builds a runner. mailer may be nil when report delivery is not
// wanted.
func New(cfg *config.Config, mailer *email.Sender, log *zap.Logger) *Runner {
	r := &Runner{cfg: cfg, mailer: mailer, log: log}
	r.book = r.runBooking
	return r
}

// Start validates the configuration and launches the booking session
// in the background. Configuration problems fail fast, before any
// browser work.
func (r *Runner) Start(parent context.Context) error {
	if issues := r.cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			r.log.Error("configuration problem", zap.String("issue", issue))
		}
		return fmt.Errorf("configuration invalid: %d problem(s), first: %s", len(issues), issues[0])
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("booking session already running")
	}
	ctx, cancel := context.WithCancel(parent)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.results = nil
	r.startTime = time.Now()
	r.mu.Unlock()

	go r.run(ctx)
	return nil
}

func (r *Runner) run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		close(r.done)
		r.mu.Unlock()
	}()

	r.sendStatus("Booking Started", map[string]string{
		"target_website": r.cfg.TargetURL,
		"ticket_count":   strconv.Itoa(r.cfg.TicketCount),
		"start_time":     r.startTime.Format("2006-01-02 15:04:05"),
	})

	results := r.book(ctx)

	r.mu.Lock()
	r.results = results
	r.mu.Unlock()

	booked := 0
	for _, res := range results {
		if res.Success {
			booked += res.TicketsBooked
		}
	}
	r.log.Info("booking session completed",
		zap.Int("attempts", len(results)),
		zap.Int("tickets_booked", booked))

	if r.mailer == nil {
		return
	}
	if booked > 0 {
		if err := r.mailer.SendConfirmation(results); err != nil {
			r.log.Error("failed to send confirmation email", zap.Error(err))
		}
	} else {
		reason := "no booking attempt succeeded"
		if len(results) > 0 {
			reason = results[len(results)-1].ErrorMessage
		}
		if err := r.mailer.SendFailure(r.cfg.TargetURL, r.cfg.TicketCount, len(results), reason); err != nil {
			r.log.Error("failed to send failure email", zap.Error(err))
		}
	}
}

// sendStatus mails a status note when a mailer is configured. Delivery
// failures are logged, never fatal.
func (r *Runner) sendStatus(status string, details map[string]string) {
	if r.mailer == nil {
		return
	}
	if err := r.mailer.SendStatus(status, details); err != nil {
		r.log.Warn("failed to send status email", zap.Error(err))
	}
}

// runBooking is the real booking path: one browser session, optional
// AI collaborators, one scraper run. The browser is closed on every
// exit path.
func (r *Runner) runBooking(ctx context.Context) []scraper.BookingResult {
	var assist scraper.Assistant
	var solver scraper.CaptchaSolver

	if r.cfg.GeminiAPIKey != "" {
		gem, err := ai.NewGemini(ctx, r.cfg.GeminiAPIKey, r.log)
		if err != nil {
			r.log.Warn("gemini unavailable, running without AI assistance", zap.Error(err))
		} else {
			defer gem.Close()
			assist = gem
			if r.cfg.CaptchaSolver == "gemini" {
				solver = gem
			}
		}
	}
	if r.cfg.CaptchaSolver == "ocr" {
		solver = ai.NewOCR(r.log)
	}

	sess, err := browser.NewSession(ctx, browser.Options{
		Headless: r.cfg.HeadlessBrowser,
		Timeout:  r.cfg.Timeout(),
		ProxyURL: r.cfg.ProxyURL,
	}, r.log)
	if err != nil {
		r.log.Error("could not start browser", zap.Error(err))
		return []scraper.BookingResult{{ErrorMessage: fmt.Sprintf("browser start failed: %v", err)}}
	}
	defer sess.Close()

	scr := scraper.New(sess, assist, solver, scraper.Options{
		MaxAttempts:   r.cfg.MaxAttempts,
		RetryDelayMax: time.Duration(r.cfg.RetryInterval) * time.Second,
	}, r.log)

	return scr.BookTickets(ctx, r.cfg.TargetURL, r.cfg.User(), r.cfg.TicketCount)
}

// Stop cancels the session and waits briefly for the worker to notice.
// An in-flight browser action finishes or times out first; the loop
// observes cancellation at its next iteration.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	r.log.Info("stopping booking session")
	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		r.log.Warn("booking session did not stop in time")
	}
}

// Done exposes completion for callers that block on the session.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Results returns a copy of the session's per-attempt results. They
// are published when the run finishes or is stopped, not while the
// booking loop is still in flight.
func (r *Runner) Results() []scraper.BookingResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]scraper.BookingResult, len(r.results))
	copy(out, r.results)
	return out
}

// Status reports the current session state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		IsRunning:         r.running,
		TotalAttempts:     len(r.results),
		TargetTicketCount: r.cfg.TicketCount,
	}
	for _, res := range r.results {
		if res.Success {
			st.SuccessfulBookings++
			st.TotalTicketsBooked += res.TicketsBooked
		}
	}
	if r.cfg.TicketCount > 0 {
		st.ProgressPercent = float64(st.TotalTicketsBooked) / float64(r.cfg.TicketCount) * 100
		if st.ProgressPercent > 100 {
			st.ProgressPercent = 100
		}
	}
	if !r.startTime.IsZero() {
		st.StartTime = r.startTime.Format(time.RFC3339)
		st.RuntimeSeconds = time.Since(r.startTime).Seconds()
	}
	return st
}

// sessionReport is the on-disk shape of a finished session.
type sessionReport struct {
	SessionInfo struct {
		StartTime      string  `json:"start_time,omitempty"`
		EndTime        string  `json:"end_time"`
		RuntimeSeconds float64 `json:"runtime_seconds"`
		TargetWebsite  string  `json:"target_website"`
		TicketCount    int     `json:"target_ticket_count"`
	} `json:"session_info"`
	Results struct {
		TotalAttempts      int     `json:"total_attempts"`
		SuccessfulBookings int     `json:"successful_bookings"`
		TotalTicketsBooked int     `json:"total_tickets_booked"`
		SuccessRate        float64 `json:"success_rate"`
	} `json:"results"`
	BookingDetails []scraper.BookingResult `json:"booking_details"`
}

// SaveReport writes a JSON session report and returns its path. An
// empty path picks a timestamped filename.
func (r *Runner) SaveReport(path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("booking_session_%s.json", time.Now().Format("20060102_150405"))
	}

	st := r.Status()
	results := r.Results()

	var report sessionReport
	report.SessionInfo.StartTime = st.StartTime
	report.SessionInfo.EndTime = time.Now().Format(time.RFC3339)
	report.SessionInfo.RuntimeSeconds = st.RuntimeSeconds
	report.SessionInfo.TargetWebsite = r.cfg.TargetURL
	report.SessionInfo.TicketCount = r.cfg.TicketCount
	report.Results.TotalAttempts = st.TotalAttempts
	report.Results.SuccessfulBookings = st.SuccessfulBookings
	report.Results.TotalTicketsBooked = st.TotalTicketsBooked
	if r.cfg.TicketCount > 0 {
		report.Results.SuccessRate = float64(st.TotalTicketsBooked) / float64(r.cfg.TicketCount)
	}
	report.BookingDetails = results

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	r.log.Info("session report saved", zap.String("path", path))
	return path, nil
}
