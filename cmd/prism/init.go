package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/config"
)

//go:embed templates/prism.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a PRISM workspace",
		Long: `Initialize creates a .prism configuration file and the workspace
directories next to it:

  redaction-overlays/   Form-2-front.png, Form-2-back.png, Form-3-front.png, Form-3-back.png
  Scans/                raw scans
  Redactions/           redacted copies
  OCR/                  text and searchable PDFs

Examples:
  # Create .prism and the directories in the current directory
  prism init

  # Create a workspace elsewhere
  prism init -o /srv/prism/.prism

  # Force overwrite an existing configuration file
  prism init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/prism.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	root := filepath.Dir(outputPath)
	layout := artifact.NewLayout(root)
	if err := os.MkdirAll(layout.Overlays, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := layout.EnsureOutputDirs(); err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintf(out, "Created workspace directories under %s\n", root)
	fmt.Fprintln(out, "\nBefore the first session:")
	fmt.Fprintf(out, "  - Put the four redaction overlays into %s\n", layout.Overlays)
	fmt.Fprintln(out, "  - Set backend and device if auto-detection picks the wrong scanner")
	return nil
}
