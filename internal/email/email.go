// Package email renders and delivers booking reports over SMTP.
package email

import (
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"ticket-agent/internal/scraper"
)

// previewLimit bounds the free-text page capture included in reports.
const previewLimit = 500

// Settings carry the SMTP account used for delivery. Reports go to the
// booking user's own address.
type Settings struct {
	Server   string
	Port     int
	Address  string // sender and recipient
	Password string
}

// Sender delivers booking reports.
type Sender struct {
	settings Settings
	log      *zap.Logger
}

// NewSender builds a report sender.
func NewSender(settings Settings, log *zap.Logger) *Sender {
	return &Sender{settings: settings, log: log}
}

// SendConfirmation mails the per-attempt outcome of a finished run.
func (s *Sender) SendConfirmation(results []scraper.BookingResult) error {
	subject := ConfirmationSubject(results)
	text := ConfirmationText(results)
	html := ConfirmationHTML(results)
	return s.send(subject, text, html)
}

// SendFailure mails a run that booked nothing.
func (s *Sender) SendFailure(targetURL string, ticketCount, attempts int, reason string) error {
	subject := "Ticket Booking Failed - Action Required"
	text := FailureText(targetURL, ticketCount, attempts, reason)
	return s.send(subject, text, "")
}

// SendStatus mails a short status note, e.g. at run start.
func (s *Sender) SendStatus(status string, details map[string]string) error {
	subject := "Ticket Booking Status: " + status
	text := StatusText(status, details)
	return s.send(subject, text, "")
}

func (s *Sender) send(subject, text, html string) error {
	if s.settings.Address == "" || s.settings.Password == "" {
		return fmt.Errorf("email credentials not configured")
	}

	msg, err := buildMessage(s.settings.Address, s.settings.Address, subject, text, html)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.settings.Server, s.settings.Port)
	auth := smtp.PlainAuth("", s.settings.Address, s.settings.Password, s.settings.Server)
	if err := smtp.SendMail(addr, auth, s.settings.Address, []string{s.settings.Address}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	s.log.Info("report email sent", zap.String("subject", subject))
	return nil
}

// buildMessage assembles an RFC 5322 message, multipart/alternative
// when an HTML body is present.
func buildMessage(from, to, subject, text, html string) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")

	if html == "" {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		sb.WriteString(text)
		return []byte(sb.String()), nil
	}

	var body strings.Builder
	w := multipart.NewWriter(&body)
	sb.WriteString(`Content-Type: multipart/alternative; boundary="` + w.Boundary() + "\"\r\n\r\n")

	textPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(text)); err != nil {
		return nil, err
	}
	htmlPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(html)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	sb.WriteString(body.String())
	return []byte(sb.String()), nil
}

// ConfirmationSubject summarizes the run outcome in one line.
func ConfirmationSubject(results []scraper.BookingResult) string {
	booked := 0
	for _, r := range results {
		if r.Success {
			booked += r.TicketsBooked
		}
	}
	if booked == 0 {
		return "Ticket Booking Report - No Tickets Booked"
	}
	return fmt.Sprintf("Ticket Booking Confirmed - %d Ticket(s)", booked)
}

// ConfirmationText renders the plain-text report body.
func ConfirmationText(results []scraper.BookingResult) string {
	var sb strings.Builder
	sb.WriteString("Ticket Booking Report\n")
	sb.WriteString("=====================\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("Attempt %d: ", i+1))
		if !r.Success {
			sb.WriteString(fmt.Sprintf("FAILED (%s)\n", r.ErrorMessage))
			continue
		}
		sb.WriteString(fmt.Sprintf("SUCCESS - %d ticket(s)\n", r.TicketsBooked))
		if r.ConfirmationNumber != "" {
			sb.WriteString(fmt.Sprintf("  Confirmation: %s\n", r.ConfirmationNumber))
		}
		if r.TotalCost > 0 {
			sb.WriteString(fmt.Sprintf("  Total: $%.2f\n", r.TotalCost))
		}
		if preview := Truncate(r.BookingDetails["full_content"], previewLimit); preview != "" {
			sb.WriteString("  Page excerpt:\n  " + preview + "\n")
		}
	}
	return sb.String()
}

// ConfirmationHTML renders the HTML alternative.
func ConfirmationHTML(results []scraper.BookingResult) string {
	var rows strings.Builder
	for i, r := range results {
		status := "❌ Failed"
		detail := htmlEscape(r.ErrorMessage)
		if r.Success {
			status = "✅ Success"
			detail = fmt.Sprintf("%d ticket(s)", r.TicketsBooked)
			if r.ConfirmationNumber != "" {
				detail += ", confirmation " + htmlEscape(r.ConfirmationNumber)
			}
			if r.TotalCost > 0 {
				detail += fmt.Sprintf(", $%.2f", r.TotalCost)
			}
		}
		rows.WriteString(fmt.Sprintf(
			"<tr><td>%d</td><td>%s</td><td>%s</td></tr>\n", i+1, status, detail))
	}

	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>🎫 Ticket Booking Report</h2>
  <table border="1" cellpadding="6" cellspacing="0">
    <tr><th>Attempt</th><th>Status</th><th>Details</th></tr>
    %s
  </table>
  <p style="color: #888; font-size: 12px;">Generated %s</p>
</body>
</html>`, rows.String(), time.Now().Format("2006-01-02 15:04:05"))
}

// FailureText renders the failure notification body.
func FailureText(targetURL string, ticketCount, attempts int, reason string) string {
	var sb strings.Builder
	sb.WriteString("The automated ticket booking attempt was unsuccessful.\n\n")
	sb.WriteString("Failure details:\n")
	sb.WriteString(fmt.Sprintf("  Target website: %s\n", targetURL))
	sb.WriteString(fmt.Sprintf("  Requested tickets: %d\n", ticketCount))
	sb.WriteString(fmt.Sprintf("  Total attempts: %d\n", attempts))
	if reason == "" {
		reason = "Booking process failed"
	}
	sb.WriteString(fmt.Sprintf("  Error: %s\n", reason))
	sb.WriteString(fmt.Sprintf("  Timestamp: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString("\nRecommended actions:\n")
	sb.WriteString("  - Check the target website manually\n")
	sb.WriteString("  - Verify the configuration and credentials\n")
	sb.WriteString("  - Retry when tickets may be available again\n")
	return sb.String()
}

// StatusText renders a status-update body with stable key ordering.
func StatusText(status string, details map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Booking status: " + status + "\n\n")
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, details[k]))
	}
	return sb.String()
}

// Truncate bounds a free-text capture to n runes.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
