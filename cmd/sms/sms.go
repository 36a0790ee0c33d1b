// Package sms implements the test SMS command, exercising the backend's
// notification delivery path with the stored session.
package sms

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wildwatch/wildwatch-go/internal/api"
	"github.com/wildwatch/wildwatch-go/internal/conf"
	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/logging"
	"github.com/wildwatch/wildwatch-go/internal/session"
)

// Command creates the sms command.
func Command(settings *conf.Settings) *cobra.Command {
	var phoneNumber, message string

	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Send a test SMS",
		Long:  "Send a test SMS through the backend to verify delivery. Requires a stored session from a prior watch run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSMS(cmd.Context(), settings, phoneNumber, message)
		},
	}

	cmd.Flags().StringVar(&phoneNumber, "to", "", "Destination phone number in E.164 format")
	cmd.Flags().StringVar(&message, "message", "", "Message body (backend default when omitted)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runSMS(ctx context.Context, settings *conf.Settings, phoneNumber, message string) error {
	logger := logging.ForService("sms")

	storage, err := kvstore.OpenSQLite(settings.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open local state store: %w", err)
	}
	defer func() { _ = storage.Close() }()

	client := api.New(api.Config{
		BaseURL:   settings.Backend.BaseURL,
		Timeout:   settings.Backend.RequestTimeout,
		UserAgent: settings.Backend.UserAgent,
	}, storage, nil)
	defer client.Close()

	sess := session.NewStore(client, storage, nil, nil)
	sess.Initialize(ctx)
	if !sess.IsAuthenticated() {
		return fmt.Errorf("no valid session; sign in with 'wildwatch watch' first")
	}

	result, err := client.SendTestSMS(ctx, phoneNumber, message)
	if err != nil {
		return fmt.Errorf("sms delivery failed: %w", err)
	}

	logger.Info("test sms sent", "to", phoneNumber, "success", result.Success, "sid", result.SID)
	fmt.Printf("SMS to %s: %s\n", phoneNumber, result.Message)
	return nil
}
