package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/config"
)

// fakeDriver is a scriptable in-memory Driver. It serves formHTML
// until a successful click flips it to confirmHTML, mimicking a
// submission navigation.
type fakeDriver struct {
	formHTML    string
	confirmHTML string
	fieldsJSON  string
	exists      map[string]bool
	shot        []byte

	navErr         error
	clickErr       map[string]error
	scriptClickErr error
	selectValue    bool
	selectText     bool

	submitted    bool
	navigations  int
	clicks       []string
	scriptClicks []string
	setValues    map[string]string
	screenshots  []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		fieldsJSON: "[]",
		exists:     map[string]bool{},
		setValues:  map[string]string{},
		clickErr:   map[string]error{},
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if d.navErr != nil {
		return d.navErr
	}
	d.navigations++
	d.submitted = false
	return nil
}

func (d *fakeDriver) WaitReady(ctx context.Context) error { return nil }

func (d *fakeDriver) PageHTML(ctx context.Context) (string, error) {
	if d.submitted {
		return d.confirmHTML, nil
	}
	return d.formHTML, nil
}

func (d *fakeDriver) Exists(ctx context.Context, sel string) (bool, error) {
	return d.exists[sel], nil
}

func (d *fakeDriver) Click(ctx context.Context, sel string) error {
	if err := d.clickErr[sel]; err != nil {
		return err
	}
	d.clicks = append(d.clicks, sel)
	if d.confirmHTML != "" {
		d.submitted = true
	}
	return nil
}

func (d *fakeDriver) ClickScript(ctx context.Context, sel string) error {
	if d.scriptClickErr != nil {
		return d.scriptClickErr
	}
	d.scriptClicks = append(d.scriptClicks, sel)
	if d.confirmHTML != "" {
		d.submitted = true
	}
	return nil
}

func (d *fakeDriver) ScrollIntoView(ctx context.Context, sel string) error { return nil }

func (d *fakeDriver) SetValue(ctx context.Context, sel, value string) error {
	d.setValues[sel] = value
	return nil
}

func (d *fakeDriver) SelectByValue(ctx context.Context, sel, value string) (bool, error) {
	return d.selectValue, nil
}

func (d *fakeDriver) SelectByText(ctx context.Context, sel, text string) (bool, error) {
	return d.selectText, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	d.screenshots = append(d.screenshots, sel)
	return d.shot, nil
}

func (d *fakeDriver) Eval(ctx context.Context, js string, out any) error {
	if s, ok := out.(*string); ok {
		*s = d.fieldsJSON
	}
	return nil
}

var testUser = config.UserInfo{Name: "Jane Doe", Email: "jane@x.com", Phone: "+1555"}

func fastOpts(maxAttempts int) Options {
	return Options{
		MaxAttempts:   maxAttempts,
		SettleDelay:   time.Millisecond,
		SubmitSettle:  time.Millisecond,
		RetryDelayMin: time.Millisecond,
		RetryDelayMax: 2 * time.Millisecond,
	}
}

func newTestScraper(d Driver, maxAttempts int) *Scraper {
	return New(d, nil, nil, fastOpts(maxAttempts), zap.NewNop())
}

func TestBookTicketsZeroRemaining(t *testing.T) {
	drv := newFakeDriver()
	s := newTestScraper(drv, 5)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 0)

	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if drv.navigations != 0 {
		t.Fatalf("expected no navigation with zero tickets, got %d", drv.navigations)
	}
}

func TestBookTicketsUnclassifiablePageAborts(t *testing.T) {
	drv := newFakeDriver()
	drv.formHTML = "<html><body><p>lorem ipsum dolor sit amet</p></body></html>"
	s := newTestScraper(drv, 5)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 2)

	if len(results) != 0 {
		t.Fatalf("expected no results on unclassifiable page, got %d", len(results))
	}
	if drv.navigations != 1 {
		t.Fatalf("expected exactly one attempt, got %d navigations", drv.navigations)
	}
}

func TestBookTicketsAttemptBudget(t *testing.T) {
	drv := newFakeDriver()
	// Bookable page but no form at all: every attempt fails.
	drv.formHTML = "<html><body><h1>Buy tickets here</h1></body></html>"
	s := newTestScraper(drv, 3)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 2)

	if len(results) != 3 {
		t.Fatalf("expected results bounded by max attempts (3), got %d", len(results))
	}
	for i, r := range results {
		if r.Success {
			t.Fatalf("result %d unexpectedly succeeded", i)
		}
		if r.ErrorMessage != "no booking form found" {
			t.Fatalf("result %d: unexpected error %q", i, r.ErrorMessage)
		}
	}
}

func TestBookTicketsSuccessMeetsQuota(t *testing.T) {
	drv := newFakeDriver()
	drv.formHTML = `<html><body><h1>Buy tickets</h1><form><input name="full_name"><input name="qty"></form></body></html>`
	drv.confirmHTML = `<html><body>Thank you! Your order number: AB12345 Total: $45.50</body></html>`
	drv.fieldsJSON = `[{"name":"full_name","kind":"text","selector":"form [name=\"full_name\"]"},{"name":"qty","kind":"text","selector":"form [name=\"qty\"]"}]`
	drv.exists["input[type='submit']"] = true
	s := newTestScraper(drv, 10)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 6)

	if len(results) != 2 {
		t.Fatalf("expected 2 attempts for 6 tickets with a per-order cap of 4, got %d", len(results))
	}
	total := 0
	for i, r := range results {
		if !r.Success {
			t.Fatalf("attempt %d failed: %s", i, r.ErrorMessage)
		}
		total += r.TicketsBooked
		if r.ConfirmationNumber != "AB12345" {
			t.Fatalf("attempt %d: confirmation = %q, want AB12345", i, r.ConfirmationNumber)
		}
		if r.TotalCost != 45.5 {
			t.Fatalf("attempt %d: total cost = %v, want 45.5", i, r.TotalCost)
		}
	}
	if total != 6 {
		t.Fatalf("booked %d tickets, want 6", total)
	}
	if results[0].TicketsBooked != 4 || results[1].TicketsBooked != 2 {
		t.Fatalf("per-attempt split = %d/%d, want 4/2",
			results[0].TicketsBooked, results[1].TicketsBooked)
	}
}

func TestBookTicketsNeverOverbooks(t *testing.T) {
	drv := newFakeDriver()
	drv.formHTML = `<html><body>Buy tickets<form><input name="qty"></form></body></html>`
	drv.confirmHTML = `<html><body>Booked, thank you</body></html>`
	drv.fieldsJSON = `[{"name":"qty","kind":"text","selector":"form [name=\"qty\"]"}]`
	drv.exists["input[type='submit']"] = true
	s := newTestScraper(drv, 10)

	requested := 5
	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, requested)

	total := 0
	for _, r := range results {
		if r.Success {
			total += r.TicketsBooked
		}
	}
	if total > requested {
		t.Fatalf("booked %d tickets for a quota of %d", total, requested)
	}
	if len(results) > 10 {
		t.Fatalf("results (%d) exceed max attempts", len(results))
	}
}

func TestBookTicketsNavigationDeadEndAborts(t *testing.T) {
	drv := newFakeDriver()
	// Nav-looking markup but no live element answers any selector.
	drv.formHTML = `<html><body><a href="/tickets">see more</a></body></html>`
	s := newTestScraper(drv, 5)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 2)

	if len(results) != 0 {
		t.Fatalf("expected no results on navigation dead end, got %d", len(results))
	}
	if drv.navigations != 1 {
		t.Fatalf("expected run to abort after first attempt, got %d navigations", drv.navigations)
	}
}

func TestBookTicketsTransientLoadFailureRetries(t *testing.T) {
	drv := newFakeDriver()
	drv.navErr = errors.New("net::ERR_CONNECTION_REFUSED")
	s := newTestScraper(drv, 2)

	results := s.BookTickets(context.Background(), "http://tickets.test", testUser, 1)

	if len(results) != 2 {
		t.Fatalf("expected one failed result per attempt, got %d", len(results))
	}
	for _, r := range results {
		if r.Success {
			t.Fatal("load failure must not produce a success")
		}
	}
}

func TestBookTicketsCancelledContext(t *testing.T) {
	drv := newFakeDriver()
	drv.formHTML = "<html><body>Buy tickets</body></html>"
	s := newTestScraper(drv, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := s.BookTickets(ctx, "http://tickets.test", testUser, 2)
	if len(results) != 0 {
		t.Fatalf("expected no results after cancellation, got %d", len(results))
	}
	if drv.navigations != 0 {
		t.Fatalf("expected no navigation after cancellation, got %d", drv.navigations)
	}
}
