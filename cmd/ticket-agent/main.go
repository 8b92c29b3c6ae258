package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"ticket-agent/internal/agent"
	"ticket-agent/internal/cli"
	"ticket-agent/internal/config"
	"ticket-agent/internal/email"
	"ticket-agent/internal/gui"
)

func main() {
	mode := flag.String("mode", "gui", "Run mode: 'gui' or 'cli'")
	report := flag.String("report", "", "Session report path (CLI mode, default timestamped)")
	help := flag.Bool("help", false, "Show help message")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	switch *mode {
	case "gui":
		cfg, err := config.Load()
		if err != nil {
			log.Fatal(err)
		}
		logger, err := config.NewLogger(cfg.DebugMode)
		if err != nil {
			log.Fatal(err)
		}
		defer logger.Sync()

		mailer := email.NewSender(email.Settings{
			Server:   cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Address:  cfg.UserEmail,
			Password: cfg.EmailPassword,
		}, logger)
		runner := agent.New(cfg, mailer, logger)
		gui.New(cfg, runner, logger).Run()

	case "cli":
		if err := cli.Run(context.Background(), *report); err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatalf("Invalid mode: %s (use 'gui' or 'cli')", *mode)
	}
}

func printHelp() {
	fmt.Println(`
Ticket Agent - AI-assisted ticket booking
=========================================

Usage:
  ticket-agent [options]

Options:
  -mode string
        Run mode: 'gui' or 'cli' (default "gui")

  -report string
        Where to write the session report in CLI mode
        (default: booking_session_<timestamp>.json)

  -help
        Show this help message

Configuration comes from config.yaml, a .env file, or environment
variables (TARGET_WEBSITE_URL, TICKET_COUNT, USER_EMAIL, ...).

Examples:
  # Start the dashboard (default)
  ./ticket-agent

  # Run one booking session in the terminal
  ./ticket-agent -mode=cli

  # Run with a fixed report path
  ./ticket-agent -mode=cli -report=run.json
`)
}
