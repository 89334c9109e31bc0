package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/spf13/cobra"
)

// ChannelTestResult reports one probe.
type ChannelTestResult struct {
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Connected bool   `json:"connected"`
}

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Check notification channel endpoints",
	}

	cmd.AddCommand(channelTestCmd())

	return cmd
}

func channelTestCmd() *cobra.Command {
	var (
		kind     string
		endpoint string
		secret   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a connection test message to an endpoint",
		Long: `Send a connection test message to an endpoint.

Examples:
  # Probe a Slack incoming webhook
  gatewayctl channel test --kind slack --url https://hooks.slack.com/services/...

  # Probe a signed generic webhook
  gatewayctl channel test --kind webhook --url https://ci.example.com/hook --secret s3cr3t`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, err := domain.ParseChannelKindFromString(kind)
			if err != nil {
				return err
			}

			dispatcher, err := channel.New(domain.ChannelConfig{
				ID:          "gatewayctl",
				Kind:        parsedKind,
				EndpointURL: endpoint,
				Secret:      secret,
				Enabled:     true,
			}, channel.Options{Timeout: timeout})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result := ChannelTestResult{
				Kind:      parsedKind.String(),
				Endpoint:  observability.RedactURL(endpoint),
				Connected: dispatcher.TestConnection(ctx),
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Connected {
				return fmt.Errorf("connection test failed for %s channel", result.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Channel kind: teams, slack, webhook")
	cmd.Flags().StringVar(&endpoint, "url", "", "Endpoint URL")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret for generic webhooks")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
