package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/config"
	"github.com/nao1215/prism/internal/device"
)

// flagCommand returns a command with the run flags parsed from args.
func flagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().StringP("config", "c", "", "")
	addWorkspaceFlags(cmd)
	addDeviceFlags(cmd)
	addOCRFlags(cmd, "")
	cmd.Flags().String("metrics-file", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

// writeConfig writes a .prism file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".prism")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	t.Run("copies only flags that were set", func(t *testing.T) {
		t.Parallel()
		cmd := flagCommand(t, "-b", "sane", "-r", "600", "--ocr=false", "--languages", "eng,deu", "-v")
		cfg := config.NewConfig()
		cfg.Mode = "Gray"

		if err := applyFlags(cmd.Flags(), cfg); err != nil {
			t.Fatalf("applyFlags() error = %v", err)
		}
		if cfg.Backend != device.BackendSane {
			t.Errorf("Backend = %q", cfg.Backend)
		}
		if cfg.Resolution != 600 {
			t.Errorf("Resolution = %d", cfg.Resolution)
		}
		if cfg.OCR {
			t.Error("OCR should be disabled")
		}
		if !slices.Equal(cfg.Languages, []string{"eng", "deu"}) {
			t.Errorf("Languages = %v", cfg.Languages)
		}
		if !cfg.Verbose {
			t.Error("Verbose should be set")
		}
		if cfg.Mode != "Gray" {
			t.Errorf("unset flag overwrote Mode: %q", cfg.Mode)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("flags override the file", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "backend: folder\ninbox: scans-in\nresolution: 200\n")
		cmd := flagCommand(t, "-c", path, "-r", "400")

		cfg, err := loadConfig(cmd)
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Backend != device.BackendFolder || cfg.Inbox != "scans-in" {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if cfg.Resolution != 400 {
			t.Errorf("Resolution = %d, want 400", cfg.Resolution)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q", cfg.ConfigFilePath)
		}
	})

	t.Run("rejects an invalid result", func(t *testing.T) {
		t.Parallel()
		cmd := flagCommand(t, "-c", writeConfig(t, ""), "-b", "folder")

		_, err := loadConfig(cmd)
		if !errors.Is(err, config.ErrInboxRequired) {
			t.Errorf("loadConfig() error = %v, want ErrInboxRequired", err)
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		t.Parallel()
		cmd := flagCommand(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := loadConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("loadConfig() error = %v, want ErrConfigNotFound", err)
		}
	})
}
