// Package cli runs a booking session from the terminal.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ticket-agent/internal/agent"
	"ticket-agent/internal/config"
	"ticket-agent/internal/email"
)

// Run loads the configuration, starts one booking session, and blocks
// until it finishes or the user interrupts it. A report file is
// written either way.
func Run(ctx context.Context, reportPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg.DebugMode)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "Configuration validation failed:")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  - %s\n", issue)
		}
		return fmt.Errorf("%d configuration problem(s)", len(issues))
	}

	fmt.Printf("Target website: %s\n", cfg.TargetURL)
	fmt.Printf("Tickets to book: %d\n", cfg.TicketCount)
	fmt.Printf("Max attempts: %d\n\n", cfg.MaxAttempts)

	mailer := email.NewSender(email.Settings{
		Server:   cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Address:  cfg.UserEmail,
		Password: cfg.EmailPassword,
	}, logger)

	runner := agent.New(cfg, mailer, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Booking session started. Press Ctrl+C to stop.")

	select {
	case <-runner.Done():
	case <-ctx.Done():
		logger.Info("interrupt received, stopping session")
		runner.Stop()
	}

	status := runner.Status()
	fmt.Println("\nBooking summary:")
	fmt.Printf("  Total attempts: %d\n", status.TotalAttempts)
	fmt.Printf("  Successful bookings: %d\n", status.SuccessfulBookings)
	fmt.Printf("  Tickets booked: %d/%d\n", status.TotalTicketsBooked, status.TargetTicketCount)
	fmt.Printf("  Progress: %.1f%%\n", status.ProgressPercent)

	path, err := runner.SaveReport(reportPath)
	if err != nil {
		logger.Error("could not save session report", zap.Error(err))
	} else {
		fmt.Printf("  Session report: %s\n", path)
	}
	return nil
}
