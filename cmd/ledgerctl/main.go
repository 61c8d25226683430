package main

import (
	"os"

	"github.com/microtrade/ledger-engine/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
