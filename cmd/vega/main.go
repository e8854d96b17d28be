package main

import (
	"os"

	"github.com/Kvijay199428/VEGA-sub001/cmd/vega/commands"
)

// main is the entry point for the VEGA order CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/vega [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
