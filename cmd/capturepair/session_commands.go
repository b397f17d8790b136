package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"capturepair/internal/api"
	"capturepair/internal/config"
)

func newSetupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "setup <device>",
		Short: "Run the readiness pipeline and install the capture app on a device",
		Long: "Checks drivers, confirms Developer Mode, then installs and launches the capture app.\n" +
			"<device> may be a UDID, a label from 'capturepair devices', or a unique device name.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc api.Service) error {
				session, err := svc.BeginSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return reportSession(cmd, ctx, session)
			})
		},
	}
}

func newPairingFileCommand(ctx *commandContext) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "pairing-file <device>",
		Short: "Export a device pairing record for capture tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination := strings.TrimSpace(dest)
			if destination != "" {
				expanded, err := config.ExpandPath(destination)
				if err != nil {
					return fmt.Errorf("resolve destination: %w", err)
				}
				destination = expanded
			}
			return ctx.withService(cmd, func(svc api.Service) error {
				session, err := svc.ExportPairingFile(cmd.Context(), args[0], destination)
				if err != nil {
					return err
				}
				return reportSession(cmd, ctx, session)
			})
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination file (defaults to <pairing_dir>/<udid>.plist)")
	return cmd
}

func newSessionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the session currently in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc api.Service) error {
				session, err := svc.CurrentSession(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), api.SessionResponse{Session: session}, func(out io.Writer) error {
					if session == nil {
						fmt.Fprintln(out, "No session in progress")
						return nil
					}
					for _, line := range sessionLines(*session, shouldColorize(out)) {
						fmt.Fprintln(out, line)
					}
					return nil
				})
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var device string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc api.Service) error {
				sessions, err := svc.History(cmd.Context(), api.HistoryQuery{DeviceID: strings.TrimSpace(device), Limit: limit})
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), api.HistoryResponse{Sessions: sessions}, func(out io.Writer) error {
					if len(sessions) == 0 {
						fmt.Fprintln(out, "No sessions recorded")
						return nil
					}
					fmt.Fprint(out, renderTable(
						[]column{col("Finished"), col("Device"), col("Operation"), col("State"), num("Duration"), col("Detail")},
						historyRows(sessions),
					))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "Only show sessions for this UDID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show")
	return cmd
}

// reportSession prints a finished session and turns a failed outcome into a
// non-zero exit.
func reportSession(cmd *cobra.Command, ctx *commandContext, session api.Session) error {
	if err := writeOutput(cmd, ctx.outputFormat(), session, func(out io.Writer) error {
		for _, line := range sessionLines(session, shouldColorize(out)) {
			fmt.Fprintln(out, line)
		}
		return nil
	}); err != nil {
		return err
	}
	if session.State == "failed" {
		return fmt.Errorf("%s failed: %s", session.Operation, session.ErrorMessage)
	}
	return nil
}

func sessionLines(session api.Session, colorize bool) []string {
	device := session.DeviceID
	if session.DeviceName != "" {
		device = fmt.Sprintf("%s (%s)", session.DeviceName, session.DeviceID)
	}
	lines := []string{
		renderStatusLine("Device", statusInfo, device, colorize),
		renderStatusLine("Operation", statusInfo, session.Operation, colorize),
		renderStatusLine("State", sessionStatusKind(session.State), sessionStateMessage(session), colorize),
	}
	if session.DevMode != "" {
		lines = append(lines, renderStatusLine("Developer Mode", devModeKind(session.DevMode), session.DevMode, colorize))
	}
	if session.PairingFile != "" {
		lines = append(lines, renderStatusLine("Pairing file", statusOK,
			fmt.Sprintf("%s (%d bytes)", session.PairingFile, session.PairingBytes), colorize))
	}
	if session.DurationMillis > 0 {
		lines = append(lines, renderStatusLine("Duration", statusInfo, formatMillis(session.DurationMillis), colorize))
	}
	return lines
}

func sessionStateMessage(session api.Session) string {
	switch session.State {
	case "awaiting_dev_mode_enable":
		return "enable Developer Mode in Settings > Privacy & Security, restart the device, then run setup again"
	case "awaiting_driver_install":
		return "drivers are missing; run 'capturepair drivers install'"
	case "failed":
		if session.ErrorKind != "" {
			return fmt.Sprintf("failed: %s (%s)", session.ErrorMessage, session.ErrorKind)
		}
		return "failed: " + session.ErrorMessage
	default:
		return session.State
	}
}

func devModeKind(status string) statusKind {
	switch status {
	case "enabled":
		return statusOK
	case "disabled":
		return statusWarn
	default:
		return statusInfo
	}
}

func historyRows(sessions []api.Session) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		detail := s.ErrorMessage
		if detail == "" {
			detail = s.PairingFile
		}
		device := s.DeviceID
		if s.DeviceName != "" {
			device = s.DeviceName + " (" + shortID(s.DeviceID) + ")"
		}
		rows = append(rows, []string{
			formatTimestamp(s.FinishedAt),
			device,
			s.Operation,
			s.State,
			formatMillis(s.DurationMillis),
			detail,
		})
	}
	return rows
}

func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return "…" + id[len(id)-4:]
}

func secondsDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
