package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"horde-monitor/internal/export"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/storage"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	// Oldest prints in sampling order instead of newest first.
	Oldest bool
	IDs    bool
}

// Show prints the most recent archived samples with the export columns.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	if opts.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}
	store, closeStore, err := a.requireStore(ctx, "show points")
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentPoints(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "archive is empty")
		return err
	}
	if opts.Oldest {
		slices.Reverse(records)
	}

	header := slices.Clone(export.Header)
	rows := export.Table(lo.Map(records, func(rec storage.PointRecord, _ int) metrics.DataPoint {
		return rec.DataPoint()
	}))
	if opts.IDs {
		header = append(header, "Active IDs")
		for i, rec := range records {
			ids := slices.Concat(rec.ImageIDs, rec.TextIDs)
			rows[i] = append(rows[i], strings.Join(lo.Ternary(len(ids) == 0, []string{"-"}, ids), ","))
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range slices.Concat([][]string{header}, rows) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
