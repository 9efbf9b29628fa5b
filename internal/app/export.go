package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"horde-monitor/internal/export"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/storage"
)

// ArchiveRange selects archived samples by time. Last takes precedence over
// From; a zero To means now.
type ArchiveRange struct {
	From time.Time
	To   time.Time
	Last time.Duration
}

func (r ArchiveRange) bounds(now time.Time, fallback time.Duration) (time.Time, time.Time, error) {
	to := now.UTC()
	if !r.To.IsZero() {
		to = r.To.UTC()
	}
	var from time.Time
	switch {
	case r.Last > 0:
		from = to.Add(-r.Last)
	case !r.From.IsZero():
		from = r.From.UTC()
	default:
		from = to.Add(-fallback)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty range: %s is not before %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

// ExportOptions hold parameters for exporting archived points. With neither
// path set, a CSV named after the export time is written to export.dir.
type ExportOptions struct {
	Range     ArchiveRange
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// Export writes archived samples in the same CSV layout as a live window
// export, optionally with a PNG chart of the same points.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	limit := a.Config.ResolveMaxPoints(opts.MaxPoints)
	now := time.Now()
	from, to, err := opts.Range.bounds(now, time.Duration(limit)*a.Config.Monitor.Interval)
	if err != nil {
		return err
	}

	records, err := store.ListPointsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	log := a.Logger.With().Time("from", from).Time("to", to).Logger()
	if len(records) == 0 {
		log.Warn().Msg("archive has no samples in range; nothing exported")
		return nil
	}

	points := export.Downsample(lo.Map(records, func(rec storage.PointRecord, _ int) metrics.DataPoint {
		return rec.DataPoint()
	}), limit)

	csvPath := opts.CSVPath
	if csvPath == "" && opts.PNGPath == "" {
		csvPath = filepath.Join(a.Config.Export.Dir, export.Filename(now))
	}

	var errs []error
	if csvPath != "" {
		if err := export.WriteCSVFile(csvPath, points); err != nil {
			errs = append(errs, err)
		} else {
			log.Info().Str("path", csvPath).Int("rows", len(points)).Msg("csv written")
		}
	}
	if opts.PNGPath != "" {
		if err := export.WritePNGFile(opts.PNGPath, points); err != nil {
			errs = append(errs, err)
		} else {
			log.Info().Str("path", opts.PNGPath).Int("points", len(points)).Msg("chart written")
		}
	}
	return errors.Join(errs...)
}
