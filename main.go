package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tphakala/mediaguard/cmd"
	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logLevel(settings))

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command execution error: %v\n", err)
		os.Exit(1)
	}
}

// logLevel resolves the minimum log level from the configuration; the debug
// flag wins over the configured level.
func logLevel(settings *conf.Settings) slog.Level {
	if settings.Main.Debug {
		return slog.LevelDebug
	}
	switch settings.Main.Log.Level {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
