package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"capturepair/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, driver, device, and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc api.Service) error {
				status, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), status, func(out io.Writer) error {
					renderStatus(out, status, shouldColorize(out))
					return nil
				})
			})
		},
	}
}

func renderStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	section := func(title string) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(out, line)
		}
	}

	section("System Status")
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running (in-process)", colorize))
	}
	for _, line := range driverLines(status.Drivers, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Devices", statusInfo, strconv.Itoa(status.DeviceCount)+" attached", colorize))
	if status.HistoryPath != "" {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	}
	fmt.Fprintln(out)

	section("Preflight")
	failed := 0
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
			failed++
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	if failed > 0 {
		fmt.Fprintf(out, "%s%d check(s) failed\n", statusIndent, failed)
	}
	fmt.Fprintln(out)

	section("Sessions")
	if status.Session != nil {
		fmt.Fprintln(out, renderStatusLine("Current", sessionStatusKind(status.Session.State),
			fmt.Sprintf("%s %s (%s)", status.Session.Operation, status.Session.DeviceID, status.Session.State), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Current", statusInfo, "idle", colorize))
	}
	if status.LastSession != nil {
		fmt.Fprintln(out, renderStatusLine("Last", sessionStatusKind(status.LastSession.State),
			fmt.Sprintf("%s %s (%s)", status.LastSession.Operation, status.LastSession.DeviceID, sessionStateMessage(*status.LastSession)), colorize))
	}
	if len(status.SessionCounts) > 0 {
		states := make([]string, 0, len(status.SessionCounts))
		for state := range status.SessionCounts {
			states = append(states, state)
		}
		sort.Strings(states)
		rows := make([][]string, 0, len(states))
		for _, state := range states {
			rows = append(rows, []string{state, strconv.Itoa(status.SessionCounts[state])})
		}
		fmt.Fprint(out, renderTable([]column{col("Recorded"), num("Count")}, rows))
	}
}
