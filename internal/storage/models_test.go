package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"horde-monitor/internal/metrics"
)

func TestPointRecordRoundTrip(t *testing.T) {
	point := metrics.DataPoint{
		Timestamp:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 7200)),
		Kudos:         decimal.NewFromInt(130),
		KudosChange:   decimal.NewNullDecimal(decimal.NewFromInt(30)),
		ImageRequests: 2,
		TextRequests:  1,
	}

	rec := NewPointRecord(point, []string{"a", "b"}, nil)
	if rec.SampledAt.Location() != time.UTC {
		t.Fatal("archive times should be UTC")
	}
	if rec.TextIDs == nil || len(rec.TextIDs) != 0 {
		t.Fatalf("nil ids should become empty, got %#v", rec.TextIDs)
	}

	back := rec.DataPoint()
	if !back.Timestamp.Equal(point.Timestamp) || !back.Kudos.Equal(point.Kudos) {
		t.Fatalf("round trip changed point: %+v", back)
	}
	if !back.KudosChange.Valid || !back.KudosChange.Decimal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("kudos change lost: %+v", back.KudosChange)
	}
}

func TestNullDecimalHelpers(t *testing.T) {
	if nullDecimalArg(decimal.NullDecimal{}) != nil {
		t.Fatal("absent decimal should bind as NULL")
	}
	if got := nullDecimalArg(decimal.NewNullDecimal(decimal.RequireFromString("1.50"))); got != "1.5" {
		t.Fatalf("bound value = %v", got)
	}

	d, err := parseNullDecimal(sql.NullString{})
	if err != nil || d.Valid {
		t.Fatalf("NULL should parse as absent: %+v %v", d, err)
	}
	d, err = parseNullDecimal(sql.NullString{String: "-3.25", Valid: true})
	if err != nil || !d.Decimal.Equal(decimal.RequireFromString("-3.25")) {
		t.Fatalf("unexpected parse: %+v %v", d, err)
	}
	if _, err := parseNullDecimal(sql.NullString{String: "x", Valid: true}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNilStoreNotConfigured(t *testing.T) {
	var store *Store
	if err := store.UpsertPoint(context.Background(), PointRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.CountPoints(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	store.Close()
}
