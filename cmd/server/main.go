// Package main provides the Messenger bot server entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oorion/avery-messenger-bot/internal/app"
	"github.com/oorion/avery-messenger-bot/internal/buildinfo"
	"github.com/oorion/avery-messenger-bot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize application (version %s): %v\n", buildinfo.Version, err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
