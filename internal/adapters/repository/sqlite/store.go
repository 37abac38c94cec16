package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

const backendSQLite = "sqlite"

const selectColumns = `user_id, display_name, score, created_at, updated_at`

// rankOrder must stay in sync with ordering.Compare.
const rankOrder = `score DESC, created_at ASC, user_id ASC`

// Store implements repository.Store and repository.Positioner on SQLite.
type Store struct {
	db  *DB
	now func() time.Time
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the database at path, migrates it and returns a ready Store.
func Open(ctx context.Context, path string, log logger.Logger, opts ...Option) (*Store, error) {
	db, err := New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	if err := db.Migrate(ctx, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", model.ErrStorage, err)
	}
	return NewStore(db, opts...), nil
}

// NewStore creates a Store on an already migrated database.
func NewStore(db *DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create implements repository.Store.
func (s *Store) Create(ctx context.Context, userID, displayName string) (model.UserScore, error) {
	defer observe("create", time.Now())

	now := s.now()
	res, err := s.db.SqlDB.ExecContext(ctx,
		`INSERT INTO user_scores (user_id, display_name, score, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, displayName, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return model.UserScore{}, storageErr("insert user score", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.UserScore{}, storageErr("rows affected", err)
	}
	if n == 0 {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, userID)
	}
	return model.UserScore{
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   fromNanos(now.UnixNano()),
		UpdatedAt:   fromNanos(now.UnixNano()),
	}, nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, userID string) (model.UserScore, error) {
	defer observe("get", time.Now())

	row := s.db.SqlDB.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_scores WHERE user_id = ?`, userID)
	return scanOne(row, userID)
}

// SetScore implements repository.Store as a plain overwrite.
func (s *Store) SetScore(ctx context.Context, userID string, score int64) (model.UserScore, error) {
	defer observe("set_score", time.Now())

	if score < 0 {
		return model.UserScore{}, fmt.Errorf("%w: score must not be negative", model.ErrValidation)
	}
	row := s.db.SqlDB.QueryRowContext(ctx,
		`UPDATE user_scores SET score = ?, updated_at = ?
		 WHERE user_id = ?
		 RETURNING `+selectColumns,
		score, s.now().UnixNano(), userID,
	)
	return scanOne(row, userID)
}

// IncrementScore implements repository.Store with a single UPDATE statement,
// so the add is atomic under concurrent writers.
func (s *Store) IncrementScore(ctx context.Context, userID string, delta int64) (model.UserScore, error) {
	defer observe("increment_score", time.Now())

	// Bounds keep score within [0, MaxInt64] without a separate read.
	lo, hi := int64(0), int64(math.MaxInt64)
	if delta > 0 {
		hi = math.MaxInt64 - delta
	} else {
		lo = -delta
	}
	row := s.db.SqlDB.QueryRowContext(ctx,
		`UPDATE user_scores SET score = score + ?, updated_at = ?
		 WHERE user_id = ? AND score >= ? AND score <= ?
		 RETURNING `+selectColumns,
		delta, s.now().UnixNano(), userID, lo, hi,
	)
	u, err := scanOne(row, userID)
	if !errors.Is(err, model.ErrNotFound) {
		return u, err
	}
	// No row updated: either the user is missing or the bound rejected it.
	if _, getErr := s.Get(ctx, userID); getErr != nil {
		return model.UserScore{}, getErr
	}
	return model.UserScore{}, fmt.Errorf("%w: score out of range", model.ErrValidation)
}

// ListAll implements repository.Store.
func (s *Store) ListAll(ctx context.Context) ([]model.UserScore, error) {
	defer observe("list_all", time.Now())

	rows, err := s.db.SqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM user_scores ORDER BY `+rankOrder)
	if err != nil {
		return nil, storageErr("list user scores", err)
	}
	return scanAll(rows)
}

// ListPage implements repository.Store. Rows and total come from one read
// transaction so they describe the same population.
func (s *Store) ListPage(ctx context.Context, offset, limit int) ([]model.UserScore, int, error) {
	defer observe("list_page", time.Now())

	if offset < 0 || limit < 1 {
		return nil, 0, fmt.Errorf("%w: invalid page window", model.ErrValidation)
	}

	tx, err := s.db.SqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, storageErr("begin read", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_scores`).Scan(&total); err != nil {
		return nil, 0, storageErr("count user scores", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM user_scores ORDER BY `+rankOrder+` LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, storageErr("page user scores", err)
	}
	out, err := scanAll(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Position implements repository.Positioner by counting rows strictly above.
func (s *Store) Position(ctx context.Context, userID string) (int, int, model.UserScore, error) {
	defer observe("position", time.Now())

	tx, err := s.db.SqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, model.UserScore{}, storageErr("begin read", err)
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanOne(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM user_scores WHERE user_id = ?`, userID), userID)
	if err != nil {
		return 0, 0, model.UserScore{}, err
	}

	created := u.CreatedAt.UnixNano()
	var above, total int
	err = tx.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM user_scores
			 WHERE score > ?1
			    OR (score = ?1 AND (created_at < ?2 OR (created_at = ?2 AND user_id < ?3)))),
			(SELECT COUNT(*) FROM user_scores)`,
		u.Score, created, u.UserID,
	).Scan(&above, &total)
	if err != nil {
		return 0, 0, model.UserScore{}, storageErr("count above", err)
	}
	return above + 1, total, u, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.SqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_scores`).Scan(&n); err != nil {
		return 0, storageErr("count user scores", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (model.UserScore, error) {
	var (
		u                model.UserScore
		created, updated int64
	)
	if err := r.Scan(&u.UserID, &u.DisplayName, &u.Score, &created, &updated); err != nil {
		return model.UserScore{}, err
	}
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return u, nil
}

func scanOne(row *sql.Row, userID string) (model.UserScore, error) {
	u, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
		}
		return model.UserScore{}, storageErr("scan user score", err)
	}
	return u, nil
}

func scanAll(rows *sql.Rows) ([]model.UserScore, error) {
	defer rows.Close()

	out := []model.UserScore{}
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, storageErr("scan user score", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate user scores", err)
	}
	return out, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func storageErr(op string, err error) error {
	metrics.RecordErrorByComponent("repository", "storage")
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(backendSQLite, op, float64(time.Since(start).Microseconds())/1000)
}
