package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/config"
	"ticket-agent/internal/scraper"
)

func testConfig() *config.Config {
	return &config.Config{
		TargetURL:     "https://tickets.example.com/event",
		TicketCount:   4,
		MaxAttempts:   5,
		UserName:      "Jane Doe",
		UserEmail:     "jane@x.com",
		EmailPassword: "app-password",
		CaptchaSolver: "none",
	}
}

func newTestRunner(t *testing.T, book func(ctx context.Context) []scraper.BookingResult) *Runner {
	t.Helper()
	r := New(testConfig(), nil, zap.NewNop())
	r.book = book
	return r
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestRunnerLifecycle(t *testing.T) {
	results := []scraper.BookingResult{
		{Success: true, TicketsBooked: 3, ConfirmationNumber: "AB12345", TotalCost: 45.5},
		{ErrorMessage: "form submission failed"},
	}
	r := newTestRunner(t, func(ctx context.Context) []scraper.BookingResult {
		return results
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r)

	st := r.Status()
	if st.IsRunning {
		t.Error("session still marked running after completion")
	}
	if st.TotalAttempts != 2 {
		t.Errorf("TotalAttempts = %d, want 2", st.TotalAttempts)
	}
	if st.SuccessfulBookings != 1 {
		t.Errorf("SuccessfulBookings = %d, want 1", st.SuccessfulBookings)
	}
	if st.TotalTicketsBooked != 3 {
		t.Errorf("TotalTicketsBooked = %d, want 3", st.TotalTicketsBooked)
	}
	if st.ProgressPercent != 75 {
		t.Errorf("ProgressPercent = %v, want 75", st.ProgressPercent)
	}

	got := r.Results()
	if len(got) != 2 || got[0].ConfirmationNumber != "AB12345" {
		t.Fatalf("unexpected results: %+v", got)
	}
	// Mutating the copy must not touch the runner's state.
	got[0].ConfirmationNumber = "tampered"
	if r.Results()[0].ConfirmationNumber != "AB12345" {
		t.Error("Results() exposed internal state")
	}
}

func TestRunnerStartRejectsInvalidConfig(t *testing.T) {
	r := New(&config.Config{}, nil, zap.NewNop())
	r.book = func(ctx context.Context) []scraper.BookingResult {
		t.Error("booking must not start with an invalid configuration")
		return nil
	}

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunnerRejectsConcurrentStart(t *testing.T) {
	release := make(chan struct{})
	r := newTestRunner(t, func(ctx context.Context) []scraper.BookingResult {
		<-release
		return nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail while a session runs")
	}

	close(release)
	waitDone(t, r)
}

func TestRunnerStopCancelsSession(t *testing.T) {
	r := newTestRunner(t, func(ctx context.Context) []scraper.BookingResult {
		<-ctx.Done()
		return []scraper.BookingResult{{ErrorMessage: "cancelled"}}
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
	waitDone(t, r)

	if r.Status().IsRunning {
		t.Error("session still running after Stop")
	}
	if len(r.Results()) != 1 {
		t.Errorf("partial results not kept: %+v", r.Results())
	}
}

func TestRunnerRestartAfterCompletion(t *testing.T) {
	runs := 0
	r := newTestRunner(t, func(ctx context.Context) []scraper.BookingResult {
		runs++
		return nil
	})

	for i := 0; i < 2; i++ {
		if err := r.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		waitDone(t, r)
	}
	if runs != 2 {
		t.Fatalf("booking ran %d times, want 2", runs)
	}
}

func TestSaveReport(t *testing.T) {
	r := newTestRunner(t, func(ctx context.Context) []scraper.BookingResult {
		return []scraper.BookingResult{
			{Success: true, TicketsBooked: 4, ConfirmationNumber: "XQ77P"},
		}
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r)

	path := filepath.Join(t.TempDir(), "session.json")
	got, err := r.SaveReport(path)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if got != path {
		t.Fatalf("returned path %q, want %q", got, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report struct {
		SessionInfo struct {
			TargetWebsite string `json:"target_website"`
		} `json:"session_info"`
		Results struct {
			TotalTicketsBooked int     `json:"total_tickets_booked"`
			SuccessRate        float64 `json:"success_rate"`
		} `json:"results"`
		BookingDetails []scraper.BookingResult `json:"booking_details"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.SessionInfo.TargetWebsite != "https://tickets.example.com/event" {
		t.Errorf("target_website = %q", report.SessionInfo.TargetWebsite)
	}
	if report.Results.TotalTicketsBooked != 4 {
		t.Errorf("total_tickets_booked = %d, want 4", report.Results.TotalTicketsBooked)
	}
	if report.Results.SuccessRate != 1 {
		t.Errorf("success_rate = %v, want 1", report.Results.SuccessRate)
	}
	if len(report.BookingDetails) != 1 || report.BookingDetails[0].ConfirmationNumber != "XQ77P" {
		t.Errorf("booking_details = %+v", report.BookingDetails)
	}
}

func TestSaveReportDefaultPath(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	r := newTestRunner(t, nil)
	path, err := r.SaveReport("")
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Fatalf("default path %q is not a json file", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
}
