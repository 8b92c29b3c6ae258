package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"ticket-agent/internal/cli"
)

func main() {
	report := flag.String("report", "", "Session report path (default timestamped)")
	help := flag.Bool("help", false, "Show help message")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	if err := cli.Run(context.Background(), *report); err != nil {
		log.Fatal(err)
	}
}

func printHelp() {
	fmt.Println(`
Ticket Agent CLI - headless booking runner
==========================================

Usage:
  ticket-agent-cli [options]

Options:
  -report string
        Where to write the session report
        (default: booking_session_<timestamp>.json)

  -help
        Show this help message

Configuration comes from config.yaml, a .env file, or environment
variables (TARGET_WEBSITE_URL, TICKET_COUNT, USER_EMAIL, ...).

Examples:
  # Run one booking session
  ticket-agent-cli

  # Run with a fixed report path
  ticket-agent-cli -report=run.json
`)
}
