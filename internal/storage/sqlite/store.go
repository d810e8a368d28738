// Package sqlite provides the SQLite-backed document store and audit log.
//
// Documents are stored whole as JSON, one row per owner and ruleset
// version. The revision and cash columns mirror the payload so conditional
// writes can evaluate their predicate inside the write transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	sqlitemigrate "github.com/datadealer/dd-app/internal/platform/storage/sqlitemigrate"
	"github.com/datadealer/dd-app/internal/storage"
	"github.com/datadealer/dd-app/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists game documents and audit events in SQLite.
type Store struct {
	sqlDB *sql.DB

	// now is swappable for guard evaluation in tests.
	now func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite game store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetClock replaces the write-time clock used for guard evaluation.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Get implements storage.DocumentStore.
func (s *Store) Get(ctx context.Context, owner string, version int) (*game.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload FROM game_documents WHERE owner = ? AND version = ?`,
		owner, version,
	)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return decodeDocument(payload)
}

// Create implements storage.DocumentStore.
func (s *Store) Create(ctx context.Context, doc *game.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO game_documents (owner, version, revision, cash, charging, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.Owner, doc.Version, doc.Revision, doc.Values.Cash, len(doc.Charging), payload,
		toMillis(doc.CreatedAt), toMillis(doc.UpdatedAt),
	)
	if err != nil {
		if isDocumentConflict(err) {
			return fmt.Errorf("document for %s/%d already exists", doc.Owner, doc.Version)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Update implements storage.DocumentStore. The cash guard is folded into
// the conditional UPDATE against the stored row; the action point guard
// depends only on the snapshot carried in the match, so it is evaluated
// here with the store's clock.
func (s *Store) Update(ctx context.Context, match storage.Match, doc *game.Document) (*game.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if match.AP != nil && !match.AP.Satisfied(s.now()) {
		return nil, storage.ErrLostRace
	}

	next := doc.Clone()
	next.Revision = match.Revision + 1
	next.UpdatedAt = s.now()
	payload, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	query := `UPDATE game_documents
		 SET revision = ?, cash = ?, charging = ?, payload = ?, updated_at = ?
		 WHERE owner = ? AND version = ? AND revision = ?`
	args := []any{
		next.Revision, next.Values.Cash, len(next.Charging), payload, toMillis(next.UpdatedAt),
		match.Owner, match.Version, match.Revision,
	}
	if match.Cash != nil {
		query += ` AND cash >= ?`
		args = append(args, match.Cash.Minimum)
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if affected == 0 {
		var one int
		row := s.sqlDB.QueryRowContext(ctx,
			`SELECT 1 FROM game_documents WHERE owner = ? AND version = ?`,
			match.Owner, match.Version,
		)
		if scanErr := row.Scan(&one); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return nil, storage.ErrNotFound
			}
			return nil, fmt.Errorf("verify document: %w", scanErr)
		}
		return nil, storage.ErrLostRace
	}
	return next, nil
}

// FinishCharge implements storage.DocumentStore. The read and the
// conditional write share one transaction so a concurrent mutation makes
// the trigger a no-op instead of resurrecting stale state.
func (s *Store) FinishCharge(ctx context.Context, owner string, version int, path string, start time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT revision, payload FROM game_documents WHERE owner = ? AND version = ?`,
		owner, version,
	)
	var revision uint64
	var payload []byte
	if err := row.Scan(&revision, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query document: %w", err)
	}
	doc, err := decodeDocument(payload)
	if err != nil {
		return false, err
	}

	job := doc.ChargeJobFor(path)
	if job == nil || !job.Start.Equal(start) {
		return false, nil
	}
	doc.Ready = append(doc.Ready, game.Collectible{Path: job.Path, Result: job.Result})
	doc.RemoveChargeJob(path)
	if node := doc.NodeByPath(path); node != nil {
		node.Instance.ChargeStart = nil
	}
	doc.Revision = revision + 1
	doc.UpdatedAt = s.now()

	encoded, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE game_documents
		 SET revision = ?, charging = ?, payload = ?, updated_at = ?
		 WHERE owner = ? AND version = ? AND revision = ?`,
		doc.Revision, len(doc.Charging), encoded, toMillis(doc.UpdatedAt), owner, version, revision,
	)
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// DueCharges implements storage.ChargeScheduler. Charge queues live
// inside the JSON payload, so the listing decodes documents that carry
// one; the mirrored charging flag keeps idle documents out of the scan.
func (s *Store) DueCharges(ctx context.Context, now time.Time, limit int) ([]storage.DueCharge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT owner, version, payload FROM game_documents WHERE charging > 0`,
	)
	if err != nil {
		return nil, fmt.Errorf("query charging documents: %w", err)
	}
	defer rows.Close()

	var due []storage.DueCharge
	for rows.Next() {
		var owner string
		var version int
		var payload []byte
		if err := rows.Scan(&owner, &version, &payload); err != nil {
			return nil, fmt.Errorf("scan charging document: %w", err)
		}
		doc, err := decodeDocument(payload)
		if err != nil {
			return nil, err
		}
		for _, job := range doc.Charging {
			if job.End.After(now) {
				continue
			}
			due = append(due, storage.DueCharge{
				Owner:   owner,
				Version: version,
				Path:    job.Path,
				Start:   job.Start,
			})
			if limit > 0 && len(due) >= limit {
				return due, nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charging documents: %w", err)
	}
	return due, nil
}

// Reset implements storage.DocumentStore.
func (s *Store) Reset(ctx context.Context, owner string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM game_documents WHERE owner = ? AND version = ?`,
		owner, version,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Append implements storage.EventLog.
func (s *Store) Append(ctx context.Context, event storage.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_events (kind, owner, target, level, xp, karma, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(event.Kind), event.Owner, event.Target,
		event.Level, event.XP, event.Karma, toMillis(event.At),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Events returns the audit records for one owner ordered oldest first.
func (s *Store) Events(ctx context.Context, owner string) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT kind, owner, target, level, xp, karma, occurred_at
		 FROM audit_events WHERE owner = ? ORDER BY occurred_at, id`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.Event
	for rows.Next() {
		var event storage.Event
		var kind string
		var at int64
		if err := rows.Scan(&kind, &event.Owner, &event.Target, &event.Level, &event.XP, &event.Karma, &at); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Kind = storage.EventKind(kind)
		event.At = fromMillis(at)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func decodeDocument(payload []byte) (*game.Document, error) {
	var doc game.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func isDocumentConflict(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "game_documents")
}

var _ storage.DocumentStore = (*Store)(nil)
var _ storage.ChargeScheduler = (*Store)(nil)
var _ storage.EventLog = (*Store)(nil)
