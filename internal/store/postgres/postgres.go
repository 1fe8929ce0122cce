package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"optionchain/internal/provider"
)

const DefaultTable = "option_chain_snapshots"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store keeps one JSONB document per snapshot. captured_at is assigned by the
// database and is the ordering key.
type Store struct {
	db    *sql.DB
	table string // quoted identifier

	insertSQL string
	latestSQL string
}

// Open connects with the lib/pq driver, pings and ensures the schema.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := New(ctx, db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and ensures the schema. The Store owns db afterwards.
func New(ctx context.Context, db *sql.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	quoted := pq.QuoteIdentifier(table)
	s := &Store{
		db:        db,
		table:     quoted,
		insertSQL: fmt.Sprintf(`INSERT INTO %s (id, is_mock, underlying, document) VALUES ($1, $2, $3, $4) RETURNING captured_at`, quoted),
		latestSQL: fmt.Sprintf(`SELECT captured_at, document FROM %s ORDER BY captured_at DESC LIMIT 1`, quoted),
	}
	if err := s.InitSchema(ctx, table); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) InitSchema(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id UUID PRIMARY KEY,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_mock BOOLEAN NOT NULL DEFAULT FALSE,
		underlying TEXT NOT NULL,
		document JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (captured_at DESC);
	`, s.table, pq.QuoteIdentifier(table+"_captured_at_idx"))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, snap provider.Snapshot) (string, error) {
	doc, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	id := uuid.New()
	var capturedAt time.Time
	if err := s.db.QueryRowContext(ctx, s.insertSQL, id, snap.IsMockData, snap.Underlying, doc).Scan(&capturedAt); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return id.String(), nil
}

func (s *Store) Latest(ctx context.Context) (*provider.Snapshot, error) {
	var (
		capturedAt time.Time
		doc        []byte
	)
	err := s.db.QueryRowContext(ctx, s.latestSQL).Scan(&capturedAt, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	var snap provider.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	snap.Timestamp = capturedAt.UTC()
	return &snap, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
