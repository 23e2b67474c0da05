package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// Store persists journal records to SQLite. Use ":memory:" for an
// in-process database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) a SQLite-backed journal store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invocation TEXT NOT NULL,
		session INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		op TEXT NOT NULL,
		actor TEXT,
		token TEXT,
		amount TEXT,
		err TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_invocation ON records(invocation);
	CREATE INDEX IF NOT EXISTS idx_records_invocation_session ON records(invocation, session);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists records in order inside one transaction.
func (s *Store) Append(ctx context.Context, records []accountant.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (invocation, session, depth, op, actor, token, amount, err, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.Invocation, r.Session, r.Depth, string(r.Op),
			string(r.Actor), string(r.Token), r.Amount, r.Err,
			r.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

// ReadInvocation returns all records of one invocation in append order.
func (s *Store) ReadInvocation(ctx context.Context, invocation string) ([]accountant.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation, session, depth, op, actor, token, amount, err, timestamp
		FROM records WHERE invocation = ? ORDER BY id`, invocation)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// InvocationIDs returns the distinct invocation ids in first-append order.
func (s *Store) InvocationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation FROM records GROUP BY invocation ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Load reads the entire store back into a Journal.
func (s *Store) Load(ctx context.Context) (*Journal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation, session, depth, op, actor, token, amount, err, timestamp
		FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	j := New()
	for _, r := range records {
		j.Record(r)
	}
	return j, nil
}

func scanRecords(rows *sql.Rows) ([]accountant.Record, error) {
	var records []accountant.Record
	for rows.Next() {
		var r accountant.Record
		var op, actor, token, ts string
		if err := rows.Scan(&r.Invocation, &r.Session, &r.Depth, &op, &actor, &token, &r.Amount, &r.Err, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Op = accountant.Op(op)
		r.Actor = accountant.Account(actor)
		r.Token = accountant.Token(token)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
		r.Timestamp = parsed
		records = append(records, r)
	}
	return records, rows.Err()
}
