package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens a SQLite store at the given path.
func Open(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps SetNX batches serialized across goroutines.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SetClock overrides the time source used for expiry.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) live() sq.Sqlizer {
	return sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": s.now().UnixMilli()}}
}

func (s *SQLiteStore) expiry(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return s.now().Add(ttl).UnixMilli()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	query, args, err := sq.Select("value").From("kv").
		Where(sq.Eq{"key": key}).
		Where(s.live()).
		ToSql()
	if err != nil {
		return "", err
	}

	var value string
	err = s.conn.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	query, args, err := sq.Insert("kv").
		Columns("key", "value", "expires_at").
		Values(key, value, s.expiry(ttl)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SetNX(ctx context.Context, keys []string, value string, ttl time.Duration) ([]bool, error) {
	out := make([]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin setnx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	exp := s.expiry(ttl)
	for i, key := range keys {
		purge, purgeArgs, err := sq.Delete("kv").
			Where(sq.Eq{"key": key}).
			Where(sq.LtOrEq{"expires_at": now}).
			ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, purge, purgeArgs...); err != nil {
			return nil, fmt.Errorf("purging expired %s: %w", key, err)
		}

		insert, insertArgs, err := sq.Insert("kv").
			Columns("key", "value", "expires_at").
			Values(key, value, exp).
			Suffix("ON CONFLICT(key) DO NOTHING").
			ToSql()
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, insert, insertArgs...)
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		out[i] = n == 1
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit setnx: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Del(ctx context.Context, key string) error {
	for _, table := range []string{"kv", "kv_list"} {
		query, args, err := sq.Delete(table).Where(sq.Eq{"key": key}).ToSql()
		if err != nil {
			return err
		}
		if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("del %s: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LPush(ctx context.Context, key string, values ...string) (int, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin lpush: %w", err)
	}
	defer tx.Rollback()

	for _, v := range values {
		query, args, err := sq.Insert("kv_list").Columns("key", "value").Values(key, v).ToSql()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("lpush %s: %w", key, err)
		}
	}

	query, args, err := sq.Select("COUNT(*)").From("kv_list").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit lpush: %w", err)
	}
	return n, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type listRow struct {
	id    int64
	value string
}

// listRows returns the list head first.
func listRows(ctx context.Context, q queryer, key string) ([]listRow, error) {
	query, args, err := sq.Select("id", "value").From("kv_list").
		Where(sq.Eq{"key": key}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", key, err)
	}
	defer rows.Close()

	var out []listRow
	for rows.Next() {
		var r listRow
		if err := rows.Scan(&r.id, &r.value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	rows, err := listRows(ctx, s.conn, key)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := normalizeRange(start, stop, len(rows))
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, hi-lo)
	for _, r := range rows[lo:hi] {
		out = append(out, r.value)
	}
	return out, nil
}

func (s *SQLiteStore) LTrim(ctx context.Context, key string, start, stop int) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ltrim: %w", err)
	}
	defer tx.Rollback()

	rows, err := listRows(ctx, tx, key)
	if err != nil {
		return err
	}

	del := sq.Delete("kv_list").Where(sq.Eq{"key": key})
	if lo, hi, ok := normalizeRange(start, stop, len(rows)); ok {
		// Rows are ordered by id descending, so the kept window is an id range.
		newest, oldest := rows[lo].id, rows[hi-1].id
		del = del.Where(sq.Or{sq.Gt{"id": newest}, sq.Lt{"id": oldest}})
	}

	query, args, err := del.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return tx.Commit()
}
