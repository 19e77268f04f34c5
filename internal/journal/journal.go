// Package journal persists coordinator bookkeeping in SQLite: the in-flight
// round's registrations and a report per aggregated round.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bits-and-blooms/bitset"
	_ "modernc.org/sqlite"

	"ChainFL/internal/artifact"
	"ChainFL/internal/logger"
	"ChainFL/internal/registry"
)

// ErrNotFound is returned when no report exists for a round.
var ErrNotFound = errors.New("journal: not found")

const schema = `
CREATE TABLE IF NOT EXISTS updates (
	round         INTEGER NOT NULL,
	client_id     TEXT    NOT NULL,
	submission_id TEXT    NOT NULL,
	uri           TEXT    NOT NULL,
	sha256        TEXT    NOT NULL,
	size          INTEGER NOT NULL,
	tx_hash       TEXT    NOT NULL DEFAULT '',
	registered_at INTEGER NOT NULL,
	PRIMARY KEY (round, client_id)
);

CREATE TABLE IF NOT EXISTS rounds (
	round           INTEGER PRIMARY KEY,
	ledger_updates  INTEGER NOT NULL,
	included        INTEGER NOT NULL,
	participation   BLOB,
	total_size      INTEGER NOT NULL,
	aggregated_uri  TEXT    NOT NULL,
	aggregated_hash TEXT    NOT NULL,
	snapshot_uri    TEXT    NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	published_at    INTEGER NOT NULL
);
`

// Report summarizes one aggregated round.
type Report struct {
	Round         uint64              `json:"round"`
	LedgerUpdates int                 `json:"ledgerUpdates"` // LedgerUpdates is the ledger's update count at close
	Included      int                 `json:"included"`      // Included is the number of updates aggregated
	Participation *bitset.BitSet      `json:"-"`             // Participation has bit i set when ledger update i was aggregated
	TotalSize     uint64              `json:"totalSize"`
	Aggregated    artifact.ContentRef `json:"aggregated"`
	Snapshot      string              `json:"snapshot,omitempty"`
	StartedAt     time.Time           `json:"startedAt"`
	PublishedAt   time.Time           `json:"publishedAt"`
}

// IncludedIndices lists the ledger update indices that were aggregated.
func (r Report) IncludedIndices() []uint {
	if r.Participation == nil {
		return nil
	}

	out := make([]uint, 0, r.Participation.Count())
	for i, ok := r.Participation.NextSet(0); ok; i, ok = r.Participation.NextSet(i + 1) {
		out = append(out, i)
	}

	return out
}

// Journal is a SQLite-backed store.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

var _ registry.Persister = (*Journal)(nil)

// Open opens or creates the journal at path.
func Open(path string, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = logger.Component("journal")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite:\n%w", err)
	}

	// One writer keeps SQLite lock contention out of the coordinator loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema:\n%w", err)
	}

	return &Journal{db: db, log: log}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// Registry persistence
// =============================================================================

// SaveEntry upserts a registration.
func (j *Journal) SaveEntry(e registry.Entry) error {
	_, err := j.db.Exec(`
		INSERT INTO updates (round, client_id, submission_id, uri, sha256, size, tx_hash, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (round, client_id) DO UPDATE SET
			submission_id = excluded.submission_id,
			uri           = excluded.uri,
			sha256        = excluded.sha256,
			size          = excluded.size,
			tx_hash       = excluded.tx_hash`,
		int64(e.Round), e.ClientID, e.SubmissionID, e.Weights.URI, e.Weights.SHA256,
		int64(e.Size), e.TxHash, e.RegisteredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save entry:\n%w", err)
	}

	return nil
}

// DeleteEntry removes a registration.
func (j *Journal) DeleteEntry(round uint64, clientID string) error {
	if _, err := j.db.Exec(`DELETE FROM updates WHERE round = ? AND client_id = ?`, int64(round), clientID); err != nil {
		return fmt.Errorf("delete entry:\n%w", err)
	}

	return nil
}

// PruneBefore removes registrations of rounds before round.
func (j *Journal) PruneBefore(round uint64) error {
	if _, err := j.db.Exec(`DELETE FROM updates WHERE round < ?`, int64(round)); err != nil {
		return fmt.Errorf("prune entries:\n%w", err)
	}

	return nil
}

// LoadRound returns round's registrations in registration order.
func (j *Journal) LoadRound(round uint64) ([]registry.Entry, error) {
	rows, err := j.db.Query(`
		SELECT client_id, submission_id, uri, sha256, size, tx_hash, registered_at
		FROM updates WHERE round = ? ORDER BY registered_at, rowid`, int64(round))
	if err != nil {
		return nil, fmt.Errorf("query entries:\n%w", err)
	}
	defer rows.Close()

	var out []registry.Entry

	for rows.Next() {
		var (
			e    = registry.Entry{Round: round}
			size int64
			at   int64
		)

		if err := rows.Scan(&e.ClientID, &e.SubmissionID, &e.Weights.URI, &e.Weights.SHA256, &size, &e.TxHash, &at); err != nil {
			return nil, fmt.Errorf("scan entry:\n%w", err)
		}

		e.Size = uint64(size)
		e.RegisteredAt = time.Unix(0, at)
		out = append(out, e)
	}

	return out, rows.Err()
}

// =============================================================================
// Round reports
// =============================================================================

// RecordReport stores the report of an aggregated round, replacing any earlier one.
func (j *Journal) RecordReport(ctx context.Context, r Report) error {
	var bits []byte
	if r.Participation != nil {
		b, err := r.Participation.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode participation:\n%w", err)
		}
		bits = b
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rounds
			(round, ledger_updates, included, participation, total_size,
			 aggregated_uri, aggregated_hash, snapshot_uri, started_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.Round), r.LedgerUpdates, r.Included, bits, int64(r.TotalSize),
		r.Aggregated.URI, r.Aggregated.SHA256, r.Snapshot,
		r.StartedAt.UnixNano(), r.PublishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record report:\n%w", err)
	}

	j.log.Debug("round report recorded", "round", r.Round, "included", r.Included)

	return nil
}

// Report returns the report of round.
func (j *Journal) Report(ctx context.Context, round uint64) (Report, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT round, ledger_updates, included, participation, total_size,
		       aggregated_uri, aggregated_hash, snapshot_uri, started_at, published_at
		FROM rounds WHERE round = ?`, int64(round))

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("round %d: %w", round, ErrNotFound)
	}

	return r, err
}

// Reports returns the latest reports, newest first.
func (j *Journal) Reports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT round, ledger_updates, included, participation, total_size,
		       aggregated_uri, aggregated_hash, snapshot_uri, started_at, published_at
		FROM rounds ORDER BY round DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports:\n%w", err)
	}
	defer rows.Close()

	var out []Report

	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (Report, error) {
	var (
		r                 Report
		round, totalSize  int64
		bits              []byte
		started, finished int64
	)

	err := s.Scan(&round, &r.LedgerUpdates, &r.Included, &bits, &totalSize,
		&r.Aggregated.URI, &r.Aggregated.SHA256, &r.Snapshot, &started, &finished)
	if err != nil {
		return Report{}, err
	}

	r.Round = uint64(round)
	r.TotalSize = uint64(totalSize)
	r.StartedAt = time.Unix(0, started)
	r.PublishedAt = time.Unix(0, finished)

	if len(bits) > 0 {
		r.Participation = new(bitset.BitSet)
		if err := r.Participation.UnmarshalBinary(bits); err != nil {
			return Report{}, fmt.Errorf("decode participation:\n%w", err)
		}
	}

	return r, nil
}
