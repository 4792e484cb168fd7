package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPointSQL = `INSERT INTO market_series (
        metric,
        date,
        value,
        source
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (metric, date) DO UPDATE
    SET
        value      = EXCLUDED.value,
        source     = EXCLUDED.source,
        updated_at = now();`

	listPointsBetweenSQL = `SELECT
        metric,
        date,
        value::text,
        source,
        created_at,
        updated_at
    FROM market_series
    WHERE metric = $1
      AND date >= $2
      AND date <= $3
    ORDER BY date;`

	listDatesBetweenSQL = `SELECT date
    FROM market_series
    WHERE metric = $1
      AND date >= $2
      AND date <= $3
    ORDER BY date;`

	listPointsOnSQL = `SELECT
        metric,
        date,
        value::text,
        source,
        created_at,
        updated_at
    FROM market_series
    WHERE metric = $1
      AND date = ANY($2::date[])
    ORDER BY date;`

	listRecentPointsSQL = `SELECT
        metric,
        date,
        value::text,
        source,
        created_at,
        updated_at
    FROM market_series
    ORDER BY date DESC, metric
    LIMIT $1;`

	existsPointSQL = `SELECT EXISTS (
        SELECT 1 FROM market_series WHERE metric = $1 AND date = $2
    );`

	countPointsSQL = `SELECT COUNT(*) FROM market_series;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SeriesWriter defines the mutations a sync transaction may perform.
type SeriesWriter interface {
	UpsertPoint(ctx context.Context, point SeriesPoint) error
	Exists(ctx context.Context, metric Metric, date time.Time) (bool, error)
}

// SeriesReader defines read access for the alignment and display paths.
type SeriesReader interface {
	ListDatesBetween(ctx context.Context, metric Metric, from, to time.Time) ([]time.Time, error)
	ListPointsOn(ctx context.Context, metric Metric, dates []time.Time) ([]SeriesPoint, error)
	ListPointsBetween(ctx context.Context, metric Metric, from, to time.Time) ([]SeriesPoint, error)
	ListRecentPoints(ctx context.Context, limit int) ([]SeriesPoint, error)
}

// TxRunner executes a function against a single database transaction,
// committing when it returns nil and rolling back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(SeriesWriter) error) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every statement
// works unchanged inside or outside an explicit transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides access to the market_series table.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) querier() (querier, error) {
	if s == nil || s.q == nil {
		return nil, ErrNotConfigured
	}
	return s.q, nil
}

// WithTx runs fn against a transaction-scoped view of the store. All upserts
// performed through the callback commit together or not at all.
func (s *Store) WithTx(ctx context.Context, fn func(SeriesWriter) error) error {
	if s == nil || s.pool == nil {
		return ErrNotConfigured
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: the session-scoped lock dies with the connection anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertPoint writes or overwrites the row for (metric, date). A second write
// for the same key deterministically overwrites value and source in place.
func (s *Store) UpsertPoint(ctx context.Context, point SeriesPoint) error {
	q, err := s.querier()
	if err != nil {
		return err
	}

	_, execErr := q.Exec(ctx, upsertPointSQL,
		string(point.Metric),
		point.Date,
		point.Value.String(),
		point.Source,
	)
	if execErr != nil {
		return fmt.Errorf("upsert point: %w", execErr)
	}
	return nil
}

// Exists reports whether a point is already stored for (metric, date).
func (s *Store) Exists(ctx context.Context, metric Metric, date time.Time) (bool, error) {
	q, err := s.querier()
	if err != nil {
		return false, err
	}

	var exists bool
	if scanErr := q.QueryRow(ctx, existsPointSQL, string(metric), date).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("exists point: %w", scanErr)
	}
	return exists, nil
}

// ListDatesBetween returns the stored dates for a metric within an inclusive
// range, ascending.
func (s *Store) ListDatesBetween(ctx context.Context, metric Metric, from, to time.Time) ([]time.Time, error) {
	q, err := s.querier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listDatesBetweenSQL, string(metric), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list dates between: %w", queryErr)
	}
	defer rows.Close()

	dates := make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d.UTC())
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return dates, nil
}

// ListPointsBetween returns all stored points for a metric within an inclusive
// range, ascending by date.
func (s *Store) ListPointsBetween(ctx context.Context, metric Metric, from, to time.Time) ([]SeriesPoint, error) {
	q, err := s.querier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listPointsBetweenSQL, string(metric), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list points between: %w", queryErr)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// ListPointsOn returns the points for a metric restricted to an explicit date
// set, ascending by date.
func (s *Store) ListPointsOn(ctx context.Context, metric Metric, dates []time.Time) ([]SeriesPoint, error) {
	if len(dates) == 0 {
		return []SeriesPoint{}, nil
	}

	q, err := s.querier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listPointsOnSQL, string(metric), dates)
	if queryErr != nil {
		return nil, fmt.Errorf("list points on dates: %w", queryErr)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// ListRecentPoints returns the newest stored points across both metrics.
func (s *Store) ListRecentPoints(ctx context.Context, limit int) ([]SeriesPoint, error) {
	q, err := s.querier()
	if err != nil {
		return nil, err
	}

	rows, queryErr := q.Query(ctx, listRecentPointsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent points: %w", queryErr)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// CountPoints counts stored points.
func (s *Store) CountPoints(ctx context.Context) (int64, error) {
	q, err := s.querier()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := q.QueryRow(ctx, countPointsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count points: %w", scanErr)
	}
	return count, nil
}

func collectPoints(rows pgx.Rows) ([]SeriesPoint, error) {
	points := make([]SeriesPoint, 0)
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

func scanPoint(rows pgx.Rows) (SeriesPoint, error) {
	var (
		metric    string
		date      time.Time
		valueStr  string
		source    string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := rows.Scan(
		&metric,
		&date,
		&valueStr,
		&source,
		&createdAt,
		&updatedAt,
	); err != nil {
		return SeriesPoint{}, err
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return SeriesPoint{}, fmt.Errorf("parse point value: %w", err)
	}

	return SeriesPoint{
		Metric:    Metric(metric),
		Date:      date.UTC(),
		Value:     value,
		Source:    source,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
