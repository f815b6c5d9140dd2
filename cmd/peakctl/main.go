package main

import (
	"os"

	"github.com/peakpoint/backend/cmd/peakctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
