// Command ledgersync pulls customers, accounts and invoices from the ledger
// provider and reconciles them into the practice-management system.
package main

import (
	"fmt"
	"os"

	"github.com/practicebridge/ledgersync/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "run":
		err = runSync(logger)
	case "status":
		err = runStatus(logger)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: ledgersync [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run     Run one synchronization pass (default)")
	fmt.Println("  status  Check configuration and adapter connectivity")
}
