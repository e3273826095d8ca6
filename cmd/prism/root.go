package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/session"
)

// Exit codes.
const (
	exitFailure     = 1
	exitInterrupted = 130
)

// NewRootCmd creates the root command for PRISM.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prism",
		Short: "Privacy redacting image scanning middleware",
		Long: `PRISM scans two-sided paper forms, occludes the privacy protected fields
with a per-form redaction overlay, and optionally extracts searchable text
from what remains.

Raw scans are kept in Scans/, redacted copies are written to Redactions/
and OCR text and searchable PDFs go to OCR/. Every document is recorded in
a local ledger.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .prism in current or home directory)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewDevicesCmd())
	cmd.AddCommand(NewRedactCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so sessions can release the scanner before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, session.ErrInterrupted) || errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	return exitFailure
}
