package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"horde-monitor/internal/app"
)

var exportFlags struct {
	from, to  string
	last      time.Duration
	csv, png  string
	maxPoints int
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write archived samples as CSV and an optional PNG chart",
	Long: "Without --csv or --png the archive is written to export.dir as " +
		"horde-monitor-data-<timestamp>.csv, the same layout as a live window export.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rng, err := archiveRange(exportFlags.from, exportFlags.to, exportFlags.last)
		if err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Range:     rng,
			CSVPath:   exportFlags.csv,
			PNGPath:   exportFlags.png,
			MaxPoints: exportFlags.maxPoints,
		})
	},
}

// archiveRange parses RFC3339 bounds; empty strings leave a bound open.
func archiveRange(from, to string, last time.Duration) (app.ArchiveRange, error) {
	rng := app.ArchiveRange{Last: last}
	for _, b := range []struct {
		flag  string
		value string
		dst   *time.Time
	}{{"from", from, &rng.From}, {"to", to, &rng.To}} {
		if b.value == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, b.value)
		if err != nil {
			return app.ArchiveRange{}, fmt.Errorf("--%s: %w", b.flag, err)
		}
		*b.dst = ts
	}
	if last > 0 && from != "" {
		return app.ArchiveRange{}, fmt.Errorf("--last and --from are mutually exclusive")
	}
	return rng, nil
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.from, "from", "", "Oldest sample time, RFC3339 (inclusive)")
	f.StringVar(&exportFlags.to, "to", "", "Newest sample time, RFC3339 (exclusive, default now)")
	f.DurationVar(&exportFlags.last, "last", 0, "Export this much history ending at --to, e.g. 6h")
	f.StringVar(&exportFlags.csv, "csv", "", "CSV destination")
	f.StringVar(&exportFlags.png, "png", "", "PNG chart destination")
	f.IntVar(&exportFlags.maxPoints, "max-points", 0, "Downsample to at most this many points (default export.max_data_points)")
}
