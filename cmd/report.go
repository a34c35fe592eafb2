package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	app "github.com/okian/facecheck/internal/app"
	"github.com/okian/facecheck/internal/domain/report"
)

var (
	reportDate   string
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the attendance summary of a day from the configured store",
	Long: `Print the attendance summary of a day. The summary is read from the
configured store, so it is only meaningful with store_driver=sqlite.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Day to summarize as YYYY-MM-DD (default today)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json or yaml")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	day, err := parseReportDate(reportDate, loc)
	if err != nil {
		return err
	}

	sum, err := loadSummary(ctx, day)
	if err != nil {
		return err
	}
	return writeSummary(cmd.OutOrStdout(), sum, reportFormat)
}

func parseReportDate(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Now().In(loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", raw, err)
	}
	return day, nil
}

func loadSummary(ctx context.Context, day time.Time) (report.Summary, error) {
	loc, err := cfg.Location()
	if err != nil {
		return report.Summary{}, err
	}
	store, err := app.OpenStore(ctx, cfg, loc)
	if err != nil {
		return report.Summary{}, err
	}
	defer func() { _ = store.Close() }()

	ids, err := store.Identities(ctx)
	if err != nil {
		return report.Summary{}, fmt.Errorf("load identities: %w", err)
	}
	recs, err := store.RecordsForDay(ctx, day)
	if err != nil {
		return report.Summary{}, fmt.Errorf("load records: %w", err)
	}
	return report.Summarize(day, recs, ids, loc), nil
}

func writeSummary(w io.Writer, sum report.Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown --format %q (want json or yaml)", format)
	}
}
