package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists members and activity logs in Postgres.
//
// Per-member exclusivity comes from SELECT ... FOR UPDATE inside a
// transaction; SET LOCAL lock_timeout bounds the wait so a contended row
// surfaces ErrLockTimeout instead of blocking indefinitely. The member UPDATE
// and its log INSERTs share the transaction, so they commit together or not
// at all.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

const schema = `
CREATE TABLE IF NOT EXISTS members (
	id            BIGINT PRIMARY KEY,
	first_name    VARCHAR(50) NOT NULL,
	last_name     VARCHAR(50) NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	checked_in    BOOLEAN NOT NULL DEFAULT FALSE,
	total_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_in       TIMESTAMPTZ,
	last_out      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_members_roster ON members (active, last_name, first_name);
CREATE INDEX IF NOT EXISTS idx_members_checked_in ON members (checked_in, active);

CREATE TABLE IF NOT EXISTS activity_logs (
	id        BIGSERIAL PRIMARY KEY,
	member_id BIGINT REFERENCES members (id) ON DELETE SET NULL,
	entered   TEXT NOT NULL,
	operation VARCHAR(20) NOT NULL,
	status    VARCHAR(20) NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	ts        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_logs_ts ON activity_logs (ts DESC);
CREATE INDEX IF NOT EXISTS idx_logs_member_ts ON activity_logs (member_id, ts DESC);
`

// EnsureSchema creates tables and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const memberColumns = `id, first_name, last_name, active, checked_in, total_seconds, last_in, last_out`

// GetMember implements Store.
func (s *PostgresStore) GetMember(ctx context.Context, id int64) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members WHERE id = $1
	`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpsertMember implements Store. Attendance state is preserved on conflict.
func (s *PostgresStore) UpsertMember(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, first_name, last_name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			active = EXCLUDED.active
	`, m.ID, m.FirstName, m.LastName, m.Active)
	return err
}

// ListMembers implements Store.
func (s *PostgresStore) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error) {
	query, args := buildFilter(`SELECT `+memberColumns+` FROM members`, filter)
	query += " ORDER BY last_name, first_name, id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Mutate implements Store.
func (s *PostgresStore) Mutate(ctx context.Context, id int64, fn MutateFunc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+memberColumns+`
			FROM members WHERE id = $1
			FOR UPDATE
		`, id)
		m, err := scanMember(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrMemberNotFound
			}
			return err
		}
		entries, err := fn(m)
		if err != nil {
			return err
		}
		if err := updateMember(ctx, tx, *m); err != nil {
			return err
		}
		return insertLogs(ctx, tx, entries)
	})
}

// MutateAll implements Store.
func (s *PostgresStore) MutateAll(ctx context.Context, filter MemberFilter, fn MutateFunc) (int, error) {
	count := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args := buildFilter(`SELECT `+memberColumns+` FROM members`, filter)
		query += " ORDER BY id FOR UPDATE"
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		var selected []Member
		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				rows.Close()
				return err
			}
			selected = append(selected, *m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var entries []LogEntry
		for i := range selected {
			es, err := fn(&selected[i])
			if err != nil {
				return err
			}
			entries = append(entries, es...)
		}
		for _, m := range selected {
			if err := updateMember(ctx, tx, m); err != nil {
				return err
			}
		}
		if err := insertLogs(ctx, tx, entries); err != nil {
			return err
		}
		count = len(selected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AppendLog implements Store.
func (s *PostgresStore) AppendLog(ctx context.Context, e LogEntry) (LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO activity_logs (member_id, entered, operation, status, message, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.MemberID, e.Entered, e.Operation, e.Status, e.Message, e.Timestamp)
	if err := row.Scan(&e.ID); err != nil {
		return LogEntry{}, err
	}
	return e, nil
}

// CountCheckedIn implements Store.
func (s *PostgresStore) CountCheckedIn(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM members WHERE checked_in = TRUE`
	if activeOnly {
		query += ` AND active = TRUE`
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// RecentLogs implements Store.
func (s *PostgresStore) RecentLogs(ctx context.Context, limit, offset int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, entered, operation, status, message, ts
		FROM activity_logs
		ORDER BY ts DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Entered, &e.Operation, &e.Status, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// inTx runs fn in a transaction with a bounded lock wait. Any error rolls
// the whole transaction back.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	millis := s.lockTimeout.Milliseconds()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", millis)); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		// 55P03 = lock_not_available
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return ErrLockTimeout
		}
		return err
	}
	return tx.Commit()
}

func updateMember(ctx context.Context, tx *sql.Tx, m Member) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE members
		SET checked_in = $2, total_seconds = $3, last_in = $4, last_out = $5
		WHERE id = $1
	`, m.ID, m.CheckedIn, m.TotalSeconds, m.LastIn, m.LastOut)
	return err
}

func insertLogs(ctx context.Context, tx *sql.Tx, entries []LogEntry) error {
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activity_logs (member_id, entered, operation, status, message, ts)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.MemberID, e.Entered, e.Operation, e.Status, e.Message, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Active, &m.CheckedIn, &m.TotalSeconds, &m.LastIn, &m.LastOut); err != nil {
		return nil, err
	}
	return &m, nil
}

func buildFilter(query string, filter MemberFilter) (string, []any) {
	args := []any{}
	clauses := []string{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.CheckedIn != nil {
		args = append(args, *filter.CheckedIn)
		clauses = append(clauses, fmt.Sprintf("checked_in = $%d", len(args)))
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, "id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query, args
}
