package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"horde-monitor/internal/export"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/storage"
)

// Backfill imports window exports into the archive. Rows are upserted by
// timestamp, so importing overlapping files is safe.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if len(opts.Paths) == 0 {
		return errors.New("no files to import")
	}

	var store storage.PointStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		s, closeStore, err := a.requireStore(ctx, "backfill")
		if err != nil {
			return err
		}
		defer closeStore()
		store = s
	}

	imported := 0
	failed := 0
	for _, path := range opts.Paths {
		points, err := readExport(path)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("file", path).Msg("cannot read export")
			continue
		}

		for _, point := range points {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if store == nil {
				imported++
				continue
			}
			if err := store.UpsertPoint(ctx, storage.NewPointRecord(point, nil, nil)); err != nil {
				failed++
				a.Logger.Error().Err(err).Time("timestamp", point.Timestamp).Msg("backfill failed")
				continue
			}
			imported++
		}
		a.Logger.Info().Str("file", path).Int("points", len(points)).Msg("export read")
	}

	a.Logger.Info().Int("imported", imported).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return fmt.Errorf("%d backfill failures, check the logs", failed)
	}
	return nil
}

func readExport(path string) ([]metrics.DataPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return export.ReadCSV(file)
}
