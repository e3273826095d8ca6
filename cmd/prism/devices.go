package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/device"
)

// NewDevicesCmd creates the devices command.
func NewDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the scanners PRISM can find",
		Long: `Devices probes every backend selected by --backend and prints what it
finds. Nothing is claimed or scanned.

Examples:
  # Probe HPLIP and SANE
  prism devices

  # Check that an inbox is usable
  prism devices -b folder -i ./inbox`,
		RunE: runDevicesCmd,
	}

	addDeviceFlags(cmd)
	cmd.Flags().StringP("workdir", "w", "", "Workspace root the inbox is resolved against (default: .)")

	return cmd
}

// runDevicesCmd executes the devices command.
func runDevicesCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	opts := cfg.DeviceOptions()
	opts.Logger = logger
	backends, err := device.Candidates(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	found := 0
	for _, b := range backends {
		h := device.NewHandle(b, device.WithHandleLogger(logger))
		caps, err := h.Probe(ctx)
		switch {
		case err == nil:
			found++
			duplex := "simplex"
			if caps.Duplex {
				duplex = "duplex"
			}
			fmt.Fprintf(out, "%-8s %s  %s  (%s)\n", b.Name(), caps.Device, caps.Description, duplex)
		case errors.Is(err, device.ErrDeviceNotFound):
			fmt.Fprintf(out, "%-8s no device\n", b.Name())
		default:
			fmt.Fprintf(out, "%-8s error: %v\n", b.Name(), err)
		}
		if err := h.Release(ctx); err != nil {
			logger.Warn("failed to release backend", "backend", b.Name(), "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if found == 0 {
		return fmt.Errorf("%w: tried %d backend(s)", device.ErrDeviceNotFound, len(backends))
	}
	return nil
}
