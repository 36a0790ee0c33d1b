package main

import (
	"fmt"
	"os"

	"github.com/wildwatch/wildwatch-go/cmd"
	"github.com/wildwatch/wildwatch-go/internal/conf"
	"github.com/wildwatch/wildwatch-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	if settings.Main.LogFile != "" {
		closeLogs, err := logging.InitFile(settings.Main.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error initializing file logging: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeLogs() }()
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
