// Package main is the entry point for ledger-bridge CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/ledger-bridge/cmd/ledger-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
