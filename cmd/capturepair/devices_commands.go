package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"capturepair/internal/api"
	"capturepair/internal/backend"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "List attached devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc api.Service) error {
				var (
					list api.DeviceList
					err  error
				)
				if refresh {
					list, err = svc.RefreshDevices(cmd.Context())
				} else {
					list, err = svc.Devices(cmd.Context())
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd, ctx.outputFormat(), list, func(out io.Writer) error {
					renderDeviceList(out, list)
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Enumerate devices again before listing")
	return cmd
}

func renderDeviceList(out io.Writer, list api.DeviceList) {
	if list.Stale {
		reason := list.StaleReason
		if reason == "" {
			reason = "device list may be out of date"
		}
		fmt.Fprintf(out, "Device list is stale (%s); run 'capturepair devices --refresh'\n", reason)
	}
	if len(list.Devices) == 0 {
		fmt.Fprintln(out, "No devices attached")
		return
	}
	rows := make([][]string, 0, len(list.Devices))
	for _, dev := range list.Devices {
		rows = append(rows, []string{dev.Label, dev.Name, dev.ID})
	}
	fmt.Fprint(out, renderTable([]column{col("Label"), col("Name"), col("UDID")}, rows))
}

func newWirelessCommand(ctx *commandContext) *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:   "wireless",
		Short: "Browse the local network for paired devices with Wi-Fi sync enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			duration := cfg.BrowseDuration()
			if cmd.Flags().Changed("seconds") {
				duration = secondsDuration(seconds)
			}
			devices, err := backend.NewWirelessBrowser(cfg.Wireless.Interface).Browse(cmd.Context(), duration)
			if err != nil {
				return err
			}
			return writeOutput(cmd, ctx.outputFormat(), devices, func(out io.Writer) error {
				if len(devices) == 0 {
					fmt.Fprintln(out, "No wireless devices found")
					return nil
				}
				rows := make([][]string, 0, len(devices))
				for _, dev := range devices {
					rows = append(rows, []string{dev.Instance, dev.MAC, dev.Host, fmt.Sprint(dev.Port), strings.Join(dev.Addresses, ", ")})
				}
				fmt.Fprint(out, renderTable(
					[]column{col("Instance"), col("MAC"), col("Host"), num("Port"), col("Addresses")}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 0, "Browse duration in seconds (defaults to the configured value)")
	return cmd
}
