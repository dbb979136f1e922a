// Package journal keeps a local, append-only record of the transactions this
// client submitted. It never stores contract state.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("journal entry not found")

type Entry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	UpdatedAt time.Time `json:"updated_at"`
	Account   string    `json:"account"`
	Action    string    `json:"action"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

type ListOptions struct {
	Limit   int
	Offset  int
	Account string
	Status  Status
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	account TEXT NOT NULL,
	action TEXT NOT NULL,
	tx_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS transactions_at ON transactions (at);`

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Begin records a pending action and returns its id.
func (j *Journal) Begin(ctx context.Context, account, action string) (string, error) {
	id := uuid.NewString()
	ts := j.now().UTC().UnixMilli()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transactions (id, at, updated_at, account, action, status) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ts, ts, account, action, string(StatusPending),
	)
	if err != nil {
		return "", fmt.Errorf("journal begin: %w", err)
	}
	return id, nil
}

// Update sets the outcome of an entry. An empty txHash keeps the stored one.
func (j *Journal) Update(ctx context.Context, id, txHash string, status Status, message string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE transactions
		 SET tx_hash = CASE WHEN ? = '' THEN tx_hash ELSE ? END, status = ?, message = ?, updated_at = ?
		 WHERE id = ?`,
		txHash, txHash, string(status), message, j.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("journal update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, at, updated_at, account, action, tx_hash, status, message FROM transactions WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// List returns entries newest first and whether more remain past the page.
func (j *Journal) List(ctx context.Context, opts ListOptions) ([]Entry, bool, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		return nil, false, fmt.Errorf("offset must be >= 0")
	}
	var (
		where []string
		args  []any
	)
	if opts.Account != "" {
		where = append(where, "lower(account) = lower(?)")
		args = append(args, opts.Account)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	q := `SELECT id, at, updated_at, account, action, tx_hash, status, message FROM transactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit+1, opts.Offset)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0, opts.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := len(out) > opts.Limit
	if hasMore {
		out = out[:opts.Limit]
	}
	return out, hasMore, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e           Entry
		at, updated int64
		status      string
	)
	if err := s.Scan(&e.ID, &at, &updated, &e.Account, &e.Action, &e.TxHash, &status, &e.Message); err != nil {
		return Entry{}, err
	}
	e.At = time.UnixMilli(at).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	e.Status = Status(status)
	return e, nil
}
