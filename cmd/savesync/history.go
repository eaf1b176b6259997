package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/savesync/savesync/internal/config"
	"github.com/savesync/savesync/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "setup",
	Short:   "List recorded push attempts",
	Long: `List push attempts recorded by savesync run, newest first.

Failed attempts show the step that failed and the files that were dropped
from the queue; those files are pushed again the next time they change.

Example usage:
  savesync history                          # last 20 attempts
  savesync history --since "2 hours ago"    # natural-language lower bound
  savesync history --outcome failed         # only failures
  savesync history --format json            # machine-readable output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Decode(v)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		sinceText, _ := cmd.Flags().GetString("since")
		outcome, _ := cmd.Flags().GetString("outcome")
		format, _ := cmd.Flags().GetString("format")
		noColor, _ := cmd.Flags().GetBool("no-color")

		filter := journal.Filter{Limit: limit, Outcome: outcome}
		if sinceText != "" {
			filter.Since, err = parseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
		}

		if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No history yet (%s does not exist)\n", cfg.History.Path)
			return nil
		}

		j, err := journal.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		records, err := j.List(context.Background(), filter)
		if err != nil {
			return err
		}

		return writeHistory(cmd.OutOrStdout(), records, format, noColor || os.Getenv("NO_COLOR") != "")
	},
}

// parseSince accepts an RFC 3339 timestamp, a Go duration meaning "that
// long ago", or a natural-language phrase such as "yesterday".
func parseSince(text string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(text); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", text)
	}
	return r.Time, nil
}

func writeHistory(w io.Writer, records []journal.Record, format string, noColor bool) error {
	if records == nil {
		records = []journal.Record{}
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()

	case "", "table":
		if len(records) == 0 {
			_, err := fmt.Fprintln(w, "No attempts recorded")
			return err
		}
		_, err := fmt.Fprintln(w, renderTable(w, records, noColor))
		return err

	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func renderTable(w io.Writer, records []journal.Record, noColor bool) string {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	outcomeStyles := map[string]lipgloss.Style{
		"succeeded": cell.Foreground(lipgloss.Color("2")),
		"failed":    cell.Foreground(lipgloss.Color("1")),
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		detail := ""
		if rec.Outcome == "failed" {
			detail = rec.FailedStep + ": " + rec.Error
		}
		if rec.LockRemoved {
			detail = strings.TrimSpace("lock removed " + detail)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Duration().Round(time.Millisecond).String(),
			rec.Outcome,
			strings.Join(rec.Files, ", "),
			detail,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Faint(true)).
		Headers("ID", "STARTED", "DURATION", "OUTCOME", "FILES", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 3 && row >= 0 && row < len(records) {
				if s, ok := outcomeStyles[records[row].Outcome]; ok {
					return s
				}
			}
			return cell
		})

	return t.Render()
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "maximum number of attempts to show (0 = all)")
	historyCmd.Flags().String("since", "", `only attempts started after this time ("2h", "yesterday", RFC 3339)`)
	historyCmd.Flags().String("outcome", "", "only attempts with this outcome (succeeded, failed)")
	historyCmd.Flags().StringP("format", "f", "table", "output format: table, json, yaml")
	historyCmd.Flags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(historyCmd)
}
