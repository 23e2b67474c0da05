package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

var version = "0.1.0"

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "demo":
		if err := demo(args); err != nil {
			log.Error().Err(err).Msg("demo failed")
			os.Exit(1)
		}
	case "journal":
		if err := journalSummary(args); err != nil {
			log.Error().Err(err).Msg("journal failed")
			os.Exit(1)
		}
	case "attest":
		if err := attestSession(args); err != nil {
			log.Error().Err(err).Msg("attest failed")
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("flashledger", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`flashledger - flash-accounting session ledger

Usage:
  flashledger <command> [arguments]

Commands:
  demo [-jsonl file] [-db file]   run a nested flash-loan scenario and print the journal summary
  journal <file.jsonl>            summarize a JSONL journal file
  attest <file.jsonl> <session>   prove and verify that a session's settlement balanced
  version                         print version
  help                            show this help`)
}
