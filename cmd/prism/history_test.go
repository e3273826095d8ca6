package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/model"
)

// seedLedger records one complete and one failed document in dir.
func seedLedger(t *testing.T, dir string) {
	t.Helper()
	ctx := context.Background()
	ledger, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()

	now := time.Now()
	if err := ledger.StartSession(ctx, database.Session{ID: "s1", Started: now, Backend: "folder"}); err != nil {
		t.Fatal(err)
	}
	for i, wid := range []string{"0012345678", "0087654321"} {
		req := model.NewDocumentRequest(model.WID(wid), model.Form2, now)
		doc := model.NewDocument("s1", req)
		doc.StartedAt = now.Add(time.Duration(i) * time.Minute)
		doc.FinishedAt = doc.StartedAt.Add(time.Second)
		doc.Status = model.StatusComplete
		if i == 1 {
			doc.Fail(model.StatusRedactionFailed, context.DeadlineExceeded)
		}
		doc.Pages = append(doc.Pages, &model.Page{
			Side:    model.SideFront,
			Stem:    req.Stem(1, model.SideFront),
			RawPath: "/scans/" + req.Stem(1, model.SideFront) + ".png",
		})
		if err := ledger.SaveDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"history", "-c", writeConfig(t, "")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("lists documents", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedLedger(t, dir)

		out, err := runHistory(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"PRISM DOCUMENT HISTORY", "0012345678", "0087654321"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("filters by status and masks WIDs", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedLedger(t, dir)

		out, err := runHistory(t, "--db-dir", dir, "--status", "redaction_failed", "--mask")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(out, "0087654321") || strings.Contains(out, "0012345678") {
			t.Errorf("expected WIDs to be masked, got:\n%s", out)
		}
		if !strings.Contains(out, "4321") || strings.Contains(out, "5678") {
			t.Errorf("expected only the failed document, got:\n%s", out)
		}
	})

	t.Run("writes markdown", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedLedger(t, dir)

		out, err := runHistory(t, "--db-dir", dir, "--markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "# PRISM Document History") {
			t.Errorf("expected markdown heading, got:\n%s", out)
		}
	})

	t.Run("reports an empty ledger directory", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No documents recorded yet.") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("rejects bad filters", func(t *testing.T) {
		t.Parallel()
		for _, args := range [][]string{
			{"--status", "lost"},
			{"--wid", "123"},
			{"--since", "yesterday"},
			{"--limit", "-1"},
			{"--markdown", "--json"},
		} {
			if _, err := runHistory(t, append([]string{"--db-dir", t.TempDir()}, args...)...); err == nil {
				t.Errorf("expected error for %v", args)
			}
		}
	})
}

func TestParseSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("accepts a date", func(t *testing.T) {
		t.Parallel()
		got, err := parseSince("2024-06-01", now)
		if err != nil {
			t.Fatal(err)
		}
		if got.Year() != 2024 || got.Month() != time.June || got.Day() != 1 {
			t.Errorf("parseSince() = %v", got)
		}
	})

	t.Run("accepts a duration", func(t *testing.T) {
		t.Parallel()
		got, err := parseSince("48h", now)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(now.Add(-48 * time.Hour)) {
			t.Errorf("parseSince() = %v", got)
		}
	})

	t.Run("rejects negative durations", func(t *testing.T) {
		t.Parallel()
		if _, err := parseSince("-1h", now); err == nil {
			t.Error("expected error")
		}
	})
}
