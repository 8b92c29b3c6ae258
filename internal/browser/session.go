package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Failure classes the scraper's retry policy branches on.
var (
	// ErrNotFound: no element matched the selector.
	ErrNotFound = errors.New("element not found")
	// ErrNotInteractable: the element exists but cannot receive the
	// action (covered, zero-size, disabled).
	ErrNotInteractable = errors.New("element not interactable")
	// ErrStale: the element's node is gone from the current document.
	ErrStale = errors.New("element is stale")
	// ErrTimeout: the operation exceeded the session timeout.
	ErrTimeout = errors.New("operation timed out")
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configure one browser session.
type Options struct {
	Headless bool
	Timeout  time.Duration // per driver operation
	ProxyURL string
}

// Session owns one Chrome instance for the lifetime of one booking
// run. It is not safe for concurrent use; a host running several
// sessions needs one Session each.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	timeout time.Duration
	log     *zap.Logger
}

// NewSession starts Chrome and blocks until it is reachable. Close
// must be called on every exit path.
func NewSession(parent context.Context, opts Options, log *zap.Logger) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Session{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{browserCancel, allocCancel},
		timeout: timeout,
		log:     log,
	}

	// Sites guard submissions with alert()/confirm(); accept them so
	// the run never hangs on a modal dialog.
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			s.log.Info("auto-accepting page dialog", zap.String("message", e.Message))
			go func() {
				_ = chromedp.Run(browserCtx, chromedp.ActionFunc(func(c context.Context) error {
					return page.HandleJavaScriptDialog(true).Do(c)
				}))
			}()
		}
	})

	if err := s.run(parent, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	s.log.Info("browser session started", zap.Bool("headless", opts.Headless))
	return s, nil
}

// Close quits Chrome and releases all handles. Safe to call more than
// once.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.log.Info("browser session closed")
}

// run executes chromedp actions bounded by the session timeout. The
// caller context is consulted before starting; an in-flight action is
// not preempted by it, matching the cooperative cancellation model.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return classify(chromedp.Run(opCtx, actions...))
}

// classify maps raw CDP failures onto the sentinel errors above.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "detached") || strings.Contains(msg, "cannot find context"):
		return fmt.Errorf("%w: %v", ErrStale, err)
	case strings.Contains(msg, "box model") ||
		strings.Contains(msg, "not visible") ||
		strings.Contains(msg, "not clickable") ||
		strings.Contains(msg, "layout object"):
		return fmt.Errorf("%w: %v", ErrNotInteractable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Navigate loads a URL.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// WaitReady blocks until document.readyState is complete, bounded by
// the session timeout.
func (s *Session) WaitReady(ctx context.Context) error {
	return s.run(ctx, chromedp.Poll(`document.readyState === "complete"`, nil,
		chromedp.WithPollingInterval(100*time.Millisecond)))
}

// PageHTML returns the current document markup.
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// Exists reports whether any element matches the selector right now.
// It never waits.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	js := fmt.Sprintf(`document.querySelector(%s) !== null`, strconv.Quote(selector))
	if err := s.run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Click dispatches a native click on the first match.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// ClickScript clicks via a script-dispatched event, for elements a
// native click cannot reach.
func (s *Session) ClickScript(ctx context.Context, selector string) error {
	js := fmt.Sprintf(`(function(){
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, strconv.Quote(selector))
	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return ErrNotFound
	}
	return nil
}

// ScrollIntoView scrolls the first match into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

// SetValue clears the field and types the value.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// SelectByValue picks the option whose value attribute matches and
// fires input/change so framework listeners see it. Returns false when
// no option matched.
func (s *Session) SelectByValue(ctx context.Context, selector, value string) (bool, error) {
	return s.selectOption(ctx, selector, value, "value")
}

// SelectByText picks the option whose visible label matches.
func (s *Session) SelectByText(ctx context.Context, selector, text string) (bool, error) {
	return s.selectOption(ctx, selector, text, "text")
}

func (s *Session) selectOption(ctx context.Context, selector, want, mode string) (bool, error) {
	// chromedp.SetValue is unreliable for <select>; drive it in JS.
	js := fmt.Sprintf(`(function(){
		const el = document.querySelector(%s);
		if (!el || el.tagName !== 'SELECT') return false;
		const want = %s;
		for (const opt of el.options) {
			const key = %s === 'value' ? opt.value : opt.text.trim();
			if (key === want) {
				el.value = opt.value;
				el.dispatchEvent(new Event('input', {bubbles: true}));
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, strconv.Quote(selector), strconv.Quote(want), strconv.Quote(mode))

	var matched bool
	if err := s.run(ctx, chromedp.Evaluate(js, &matched)); err != nil {
		return false, err
	}
	return matched, nil
}

// Screenshot captures just the first element matching the selector.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery))
	return buf, err
}

// Eval runs a script and decodes its JSON result into out.
func (s *Session) Eval(ctx context.Context, js string, out any) error {
	return s.run(ctx, chromedp.Evaluate(js, out))
}
