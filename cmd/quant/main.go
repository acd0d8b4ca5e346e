package main

import (
	"os"

	"github.com/wonny/aegis-t0/cmd/quant/commands"
)

// ⭐ Single CLI entry point: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
