package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wildwatch/wildwatch-go/cmd/sms"
	"github.com/wildwatch/wildwatch-go/cmd/watch"
	"github.com/wildwatch/wildwatch-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wildwatch",
		Short: "WildWatch CLI",
		Long:  "Headless client for the WildWatch monitoring backend: session management, data polling, and alert derivation.",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		watch.Command(settings),
		sms.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Main.Debug, "debug", "d", viper.GetBool("main.debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.BaseURL, "baseurl", viper.GetString("backend.baseurl"), "Base URL of the backend API")
	rootCmd.PersistentFlags().DurationVar(&settings.Poll.Interval, "interval", viper.GetDuration("poll.interval"), "Data polling interval")
	rootCmd.PersistentFlags().StringVar(&settings.Storage.Path, "storage", viper.GetString("storage.path"), "Path to the local state database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
