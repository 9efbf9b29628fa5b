package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS horde_points (
        sampled_at     TIMESTAMPTZ PRIMARY KEY,
        kudos          NUMERIC     NOT NULL,
        kudos_change   NUMERIC,
        image_requests INTEGER     NOT NULL,
        text_requests  INTEGER     NOT NULL,
        image_ids      TEXT[]      NOT NULL DEFAULT '{}',
        text_ids       TEXT[]      NOT NULL DEFAULT '{}',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS monitor_halts (
        id          BIGSERIAL   PRIMARY KEY,
        occurred_at TIMESTAMPTZ NOT NULL,
        error       TEXT        NOT NULL,
        last_kudos  NUMERIC,
        channels    TEXT[]      NOT NULL DEFAULT '{}',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertPointSQL = `INSERT INTO horde_points (
        sampled_at,
        kudos,
        kudos_change,
        image_requests,
        text_requests,
        image_ids,
        text_ids
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (sampled_at) DO UPDATE
    SET
        kudos          = EXCLUDED.kudos,
        kudos_change   = EXCLUDED.kudos_change,
        image_requests = EXCLUDED.image_requests,
        text_requests  = EXCLUDED.text_requests,
        image_ids      = EXCLUDED.image_ids,
        text_ids       = EXCLUDED.text_ids;`

	pointColumns = `sampled_at,
        kudos::text,
        kudos_change::text,
        image_requests,
        text_requests,
        image_ids,
        text_ids,
        created_at`

	listPointsBetweenSQL = `SELECT ` + pointColumns + `
    FROM horde_points
    WHERE sampled_at >= $1
      AND sampled_at < $2
    ORDER BY sampled_at;`

	listRecentPointsSQL = `SELECT ` + pointColumns + `
    FROM horde_points
    ORDER BY sampled_at DESC
    LIMIT $1;`

	countPointsSQL = `SELECT COUNT(*) FROM horde_points;`

	insertHaltSQL = `INSERT INTO monitor_halts (
        occurred_at,
        error,
        last_kudos,
        channels
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, occurred_at, error, last_kudos::text, channels, created_at;`

	listRecentHaltsSQL = `SELECT
        id,
        occurred_at,
        error,
        last_kudos::text,
        channels,
        created_at
    FROM monitor_halts
    ORDER BY occurred_at DESC
    LIMIT $1;`
)

// PointStore defines operations for the point archive.
type PointStore interface {
	UpsertPoint(ctx context.Context, point PointRecord) error
	ListPointsBetween(ctx context.Context, from, to time.Time) ([]PointRecord, error)
	ListRecentPoints(ctx context.Context, limit int) ([]PointRecord, error)
	CountPoints(ctx context.Context) (int64, error)
}

// HaltStore defines operations for halt auditing.
type HaltStore interface {
	InsertHalt(ctx context.Context, halt HaltRecord) (HaltRecord, error)
	ListRecentHalts(ctx context.Context, limit int) ([]HaltRecord, error)
}

// Store aggregates access to archived points and halts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// UpsertPoint persists or updates an archived point keyed by sample time.
func (s *Store) UpsertPoint(ctx context.Context, point PointRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPointSQL,
		point.SampledAt,
		point.Kudos.String(),
		nullDecimalArg(point.KudosChange),
		point.ImageRequests,
		point.TextRequests,
		nonNil(point.ImageIDs),
		nonNil(point.TextIDs),
	)
	if execErr != nil {
		return fmt.Errorf("upsert point: %w", execErr)
	}
	return nil
}

// ListPointsBetween lists points within [from, to) in ascending order.
func (s *Store) ListPointsBetween(ctx context.Context, from, to time.Time) ([]PointRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPointsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list points between: %w", queryErr)
	}
	return collectPoints(rows, 0)
}

// ListRecentPoints lists the most recent points ordered by descending time.
func (s *Store) ListRecentPoints(ctx context.Context, limit int) ([]PointRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPointsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent points: %w", queryErr)
	}
	return collectPoints(rows, limit)
}

// CountPoints counts archived points.
func (s *Store) CountPoints(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPointsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count points: %w", scanErr)
	}
	return count, nil
}

// InsertHalt records a halt event.
func (s *Store) InsertHalt(ctx context.Context, halt HaltRecord) (HaltRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return HaltRecord{}, err
	}

	row := pool.QueryRow(ctx, insertHaltSQL,
		halt.OccurredAt,
		halt.Error,
		nullDecimalArg(halt.LastKudos),
		nonNil(halt.Channels),
	)
	rec, scanErr := scanHalt(row)
	if scanErr != nil {
		return HaltRecord{}, fmt.Errorf("insert halt: %w", scanErr)
	}
	return rec, nil
}

// ListRecentHalts lists the most recent halts.
func (s *Store) ListRecentHalts(ctx context.Context, limit int) ([]HaltRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentHaltsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent halts: %w", queryErr)
	}
	defer rows.Close()

	halts := make([]HaltRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanHalt(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		halts = append(halts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return halts, nil
}

func collectPoints(rows pgx.Rows, capacity int) ([]PointRecord, error) {
	defer rows.Close()

	points := make([]PointRecord, 0, capacity)
	for rows.Next() {
		point, scanErr := scanPoint(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

func scanPoint(row pgx.Row) (PointRecord, error) {
	var (
		rec       PointRecord
		kudosStr  string
		changeStr sql.NullString
	)
	if err := row.Scan(
		&rec.SampledAt,
		&kudosStr,
		&changeStr,
		&rec.ImageRequests,
		&rec.TextRequests,
		&rec.ImageIDs,
		&rec.TextIDs,
		&rec.CreatedAt,
	); err != nil {
		return PointRecord{}, err
	}

	var err error
	if rec.Kudos, err = decimal.NewFromString(kudosStr); err != nil {
		return PointRecord{}, fmt.Errorf("parse kudos: %w", err)
	}
	if rec.KudosChange, err = parseNullDecimal(changeStr); err != nil {
		return PointRecord{}, fmt.Errorf("parse kudos change: %w", err)
	}
	rec.SampledAt = rec.SampledAt.UTC()
	return rec, nil
}

func scanHalt(row pgx.Row) (HaltRecord, error) {
	var (
		rec      HaltRecord
		kudosStr sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.OccurredAt,
		&rec.Error,
		&kudosStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return HaltRecord{}, err
	}

	var err error
	if rec.LastKudos, err = parseNullDecimal(kudosStr); err != nil {
		return HaltRecord{}, fmt.Errorf("parse last kudos: %w", err)
	}
	return rec, nil
}

func nullDecimalArg(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
