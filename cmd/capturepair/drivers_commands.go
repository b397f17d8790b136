package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"capturepair/internal/api"
)

func newDriversCommand(ctx *commandContext) *cobra.Command {
	driversCmd := &cobra.Command{
		Use:   "drivers",
		Short: "Inspect and install host device drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriverOp(cmd, ctx, api.Service.DriverState)
		},
	}

	driversCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the last known driver state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriverOp(cmd, ctx, api.Service.DriverState)
		},
	})

	driversCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Probe the host for device drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriverOp(cmd, ctx, api.Service.CheckDrivers)
		},
	})

	driversCmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install host device drivers (may prompt for elevation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriverOp(cmd, ctx, api.Service.InstallDrivers)
		},
	})

	return driversCmd
}

func runDriverOp(cmd *cobra.Command, ctx *commandContext, op func(api.Service, context.Context) (api.DriverState, error)) error {
	return ctx.withService(cmd, func(svc api.Service) error {
		state, err := op(svc, cmd.Context())
		if err != nil {
			return err
		}
		if err := writeOutput(cmd, ctx.outputFormat(), state, func(out io.Writer) error {
			colorize := shouldColorize(out)
			for _, line := range driverLines(state, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		}); err != nil {
			return err
		}
		if state.Phase == "failed" {
			return fmt.Errorf("driver install failed: %s", state.Message)
		}
		return nil
	})
}

func driverLines(state api.DriverState, colorize bool) []string {
	message := state.Phase
	switch {
	case state.NotRequired:
		message = "not required on this platform"
	case state.Message != "":
		message = fmt.Sprintf("%s (%s)", state.Phase, state.Message)
	}
	lines := []string{renderStatusLine("Drivers", driverStatusKind(state.Phase), message, colorize)}
	if state.Phase == "missing" {
		lines = append(lines, statusIndent+"Run 'capturepair drivers install' to install them.")
	}
	return lines
}
