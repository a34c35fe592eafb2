package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	app "github.com/okian/facecheck/internal/app"
	"github.com/okian/facecheck/internal/domain/registry"
)

// manifestColumns is the required CSV header, in order.
var manifestColumns = []string{"external_id", "display_name", "email", "organization", "job_title", "photo"}

var errManifest = errors.New("invalid manifest")

var enrollManifest string

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Register attendees in bulk from a CSV manifest of photos",
	Long: `Register attendees in bulk. The manifest is a CSV file with the header

  external_id,display_name,email,organization,job_title,photo

where photo is an image path relative to the manifest. Each photo is sent
to the configured extractor; rows that fail are reported and skipped.`,
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringVar(&enrollManifest, "manifest", "", "Path to the CSV manifest")
	_ = enrollCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(enrollCmd)
}

type manifestRow struct {
	line  int
	reg   registry.Registration
	photo string
}

// parseManifest reads rows from r. Photo paths are resolved against baseDir.
func parseManifest(r io.Reader, baseDir string) ([]manifestRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", errManifest, err)
	}
	for i, col := range manifestColumns {
		if i >= len(header) || strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("%w: header must be %s", errManifest, strings.Join(manifestColumns, ","))
		}
	}

	var rows []manifestRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", errManifest, line, err)
		}
		photo := strings.TrimSpace(rec[5])
		if photo != "" && !filepath.IsAbs(photo) {
			photo = filepath.Join(baseDir, photo)
		}
		rows = append(rows, manifestRow{
			line: line,
			reg: registry.Registration{
				ExternalID:   rec[0],
				DisplayName:  rec[1],
				Email:        rec[2],
				Organization: rec[3],
				JobTitle:     rec[4],
			},
			photo: photo,
		})
	}
}

func runEnroll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	f, err := os.Open(enrollManifest)
	if err != nil {
		return err
	}
	rows, err := parseManifest(f, filepath.Dir(enrollManifest))
	_ = f.Close()
	if err != nil {
		return err
	}

	svc := app.New(app.WithConfig(cfg))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetDescription("Enrolling attendees"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("attendees"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var failures []string
	for _, row := range rows {
		if err := enrollRow(cmd, svc, row); err != nil {
			failures = append(failures, fmt.Sprintf("line %d (%s): %v", row.line, row.reg.ExternalID, err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nEnrolled %d of %d attendees\n", len(rows)-len(failures), len(rows))
	if len(failures) > 0 {
		fmt.Fprintf(out, "Failures: %d\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(out, "  - %s\n", f)
		}
		return fmt.Errorf("%d of %d rows failed", len(failures), len(rows))
	}
	return nil
}

func enrollRow(cmd *cobra.Command, svc *app.Service, row manifestRow) error {
	if row.photo == "" {
		return errors.New("photo is required")
	}
	photo, err := os.ReadFile(row.photo)
	if err != nil {
		return err
	}
	_, err = svc.RegisterIdentity(cmd.Context(), row.reg, photo)
	return err
}
