package main

import (
	"context"
	"fmt"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/config"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	load := func() (*config.Config, error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if err := cli.NewCtlCommand(load, logger).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
