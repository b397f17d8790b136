package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capturepair/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if client, ok := ctx.dialDaemon(cmd.Context()); ok {
				sent, message, err := client.TestNotification(cmd.Context())
				if message != "" {
					fmt.Fprintln(out, message)
				} else if sent {
					fmt.Fprintln(out, "Test notification sent")
				}
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "ntfy topic not configured")
				return nil
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "test notification sent")
			return nil
		},
	}
}
