// Package watch implements the main monitoring command: it signs in, starts
// the polling loop, and streams derived alert activity to the log until
// interrupted.
package watch

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wildwatch/wildwatch-go/internal/alerts"
	"github.com/wildwatch/wildwatch-go/internal/api"
	"github.com/wildwatch/wildwatch-go/internal/conf"
	"github.com/wildwatch/wildwatch-go/internal/kvstore"
	"github.com/wildwatch/wildwatch-go/internal/logging"
	"github.com/wildwatch/wildwatch-go/internal/model"
	"github.com/wildwatch/wildwatch-go/internal/poller"
	"github.com/wildwatch/wildwatch-go/internal/session"
)

// Command creates the watch command.
func Command(settings *conf.Settings) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor detections and alerts",
		Long:  "Sign in, poll the backend for devices and detections, and log alert activity until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), settings, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", viper.GetString("username"), "Username or email to sign in with")
	cmd.Flags().StringVarP(&password, "password", "p", viper.GetString("password"), "Password (prompted when omitted)")

	return cmd
}

func runWatch(ctx context.Context, settings *conf.Settings, username, password string) error {
	logger := logging.ForService("watch")

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

	sess := session.NewStore(client, storage, locationProvider(settings), nil,
		session.WithLocationTimeout(settings.Location.Timeout))
	defer sess.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Restore a persisted session before asking for credentials
	sess.Initialize(ctx)
	if !sess.IsAuthenticated() {
		identifier, secret, err := credentials(username, password)
		if err != nil {
			return err
		}
		role, err := sess.Login(ctx, identifier, secret)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		logger.Info("signed in", "role", role)
	}

	alertStore := alerts.NewStore(storage, nil)
	dataStore := poller.NewStore(client, sess, nil, poller.WithInterval(settings.Poll.Interval))

	sub, subCtx := dataStore.Subscribe()
	go alertStore.Run(subCtx, sub)

	logSub, logCtx := dataStore.Subscribe()
	go streamAlerts(logCtx, logSub, alertStore, logger)

	dataStore.Start(ctx)
	defer dataStore.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// streamAlerts logs alert state after every poll cycle, flagging alerts not
// seen before.
func streamAlerts(ctx context.Context, sub <-chan []model.Detection, alertStore *alerts.Store, logger *slog.Logger) {
	seen := make(map[string]struct{})
	for {
		select {
		case <-sub:
			current := alertStore.Alerts()
			for i := range current {
				if _, ok := seen[current[i].ID]; ok {
					continue
				}
				seen[current[i].ID] = struct{}{}
				logger.Info("new alert",
					"id", current[i].ID,
					"severity", current[i].Severity,
					"title", current[i].Title,
					"camera", current[i].CameraID)
			}
			logger.Info("alert summary",
				"alerts", len(current),
				"unread", alertStore.UnreadCount(),
				"unresolved", alertStore.UnresolvedCount())
		case <-ctx.Done():
			return
		}
	}
}

// credentials fills in whichever of username/password was not flagged.
func credentials(username, password string) (string, string, error) {
	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username or email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}
	return username, password, nil
}

// locationProvider maps the configured provider name to an implementation.
func locationProvider(settings *conf.Settings) session.LocationProvider {
	if settings.Location.Provider == "static" {
		return &session.StaticLocation{Point: model.GeoPoint{
			Lat: settings.Location.Latitude,
			Lng: settings.Location.Longitude,
		}}
	}
	return &session.IPLocation{}
}
