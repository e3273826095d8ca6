package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/model"
	"github.com/nao1215/prism/internal/report"
)

// defaultHistoryLimit is the number of documents shown without --limit.
const defaultHistoryLimit = 50

var knownStatuses = []model.DocumentStatus{
	model.StatusComplete,
	model.StatusCaptureFailed,
	model.StatusRedactionFailed,
	model.StatusCancelled,
	model.StatusPending,
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the documents recorded in the ledger",
		Long: `History lists processed documents, newest first, with their status,
page counts and any warnings.

--since accepts a date (2024-06-01) or a duration back from now (24h).

Examples:
  # Recent documents
  prism history

  # Everything recorded for one WID
  prism history --wid 0012345678 --limit 0

  # Failed redactions of the last week as Markdown
  prism history --status redaction_failed --since 168h --markdown > failures.md`,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", "", "Ledger directory (default: XDG data directory)")
	cmd.Flags().String("wid", "", "Only documents of this WID")
	cmd.Flags().String("session", "", "Only documents of this session id")
	cmd.Flags().String("status", "", "Only documents with this status")
	cmd.Flags().String("since", "", "Only documents created at or after this date or duration ago")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of documents (0 for all)")
	cmd.Flags().Bool("markdown", false, "Output in Markdown format")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.Flags().Bool("mask", false, "Show only the last four digits of each WID")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cmd, cfg)

	filter, desc, err := historyFilter(cmd, time.Now())
	if err != nil {
		return err
	}
	writer, err := historyWriter(cmd, cfg.Verbose)
	if err != nil {
		return err
	}

	ledger, err := database.Open(cfg.DBDir, database.Options{EnableWAL: true})
	if errors.Is(err, database.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.ListDocuments(cmd.Context(), filter)
	if err != nil {
		return err
	}

	_, err = writer.Write(&report.History{
		Generated: time.Now(),
		Filter:    desc,
		Documents: records,
	})
	return err
}

// historyFilter builds the ledger query from the flags and a description
// of it for the report header.
func historyFilter(cmd *cobra.Command, now time.Time) (database.DocumentFilter, string, error) {
	var filter database.DocumentFilter
	var desc []string
	flags := cmd.Flags()

	if s, _ := flags.GetString("wid"); s != "" {
		wid, err := model.ParseWID(s)
		if err != nil {
			return filter, "", err
		}
		filter.WID = wid
		desc = append(desc, "wid="+wid.String())
	}
	if s, _ := flags.GetString("session"); s != "" {
		filter.SessionID = s
		desc = append(desc, "session="+s)
	}
	if s, _ := flags.GetString("status"); s != "" {
		status := model.DocumentStatus(s)
		if !slices.Contains(knownStatuses, status) {
			return filter, "", fmt.Errorf("unknown status %q", s)
		}
		filter.Status = status
		desc = append(desc, "status="+s)
	}
	if s, _ := flags.GetString("since"); s != "" {
		since, err := parseSince(s, now)
		if err != nil {
			return filter, "", err
		}
		filter.Since = since
		desc = append(desc, "since="+since.Format(time.RFC3339))
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return filter, "", err
	}
	if limit < 0 {
		return filter, "", fmt.Errorf("invalid limit %d", limit)
	}
	filter.Limit = limit

	return filter, strings.Join(desc, ", "), nil
}

// parseSince accepts a YYYY-MM-DD date in local time or a duration before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.ParseInLocation(model.DateLayout, s, time.Local); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a date like 2024-06-01 or a duration like 24h", s)
	}
	return now.Add(-d), nil
}

// historyWriter returns the report writer selected by the output flags.
func historyWriter(cmd *cobra.Command, verbose bool) (report.Writer, error) {
	flags := cmd.Flags()
	asMarkdown, _ := flags.GetBool("markdown")
	asJSON, _ := flags.GetBool("json")
	mask, _ := flags.GetBool("mask")
	out := cmd.OutOrStdout()

	switch {
	case asMarkdown && asJSON:
		return nil, errors.New("--markdown and --json cannot be used together")
	case asMarkdown:
		return report.NewMarkdownWriter(out, report.WithMaskedWID(mask)), nil
	case asJSON:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithJSONOptions(report.WithMaskedWID(mask))), nil
	default:
		return report.NewSimpleWriter(out,
			report.WithVerbose(verbose),
			report.WithSimpleOptions(report.WithMaskedWID(mask)),
		), nil
	}
}
