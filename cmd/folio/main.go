package main

import (
	"fmt"
	"os"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "hash-answer":
		if err := runHashAnswer(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("folio %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`folio - blog content store with a single admin session

Usage:
  folio <command> [arguments]

Commands:
  serve                 Start the HTTP server (configured via FOLIO_* env vars)
  hash-answer [answer]  Print a bcrypt hash for FOLIO_ADMIN_ANSWER_HASH
                        (reads the answer from stdin when omitted)
  version               Print the folio version
  help                  Show this help message

Examples:
  FOLIO_SESSION_SECRET=... FOLIO_ADMIN_ANSWER=... folio serve
  echo -n 'my answer' | folio hash-answer`)
}
