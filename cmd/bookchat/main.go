package main

import (
	"log/slog"
	"os"

	"github.com/liao/bookchat/internal/cli"
)

// set by ldflags
var version = "dev"

func main() {
	cmd := cli.NewRootCommand(version)
	if err := cmd.Execute(); err != nil {
		slog.Error("command failed", "command", os.Args[1:], "error", err)
		os.Exit(1)
	}
}
