package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/rampart/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. Parent directories are created.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1 (SQLite has a single writer)
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 1,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at config.Path
// and initializes the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, audit.NewStorageError("sqlite", "open", errors.New("database path cannot be empty"))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, audit.NewStorageError("sqlite", "open", err)
		}
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxOpenConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize applies pragmas and creates the schema.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store persists a record and its entries in one transaction.
func (s *SQLiteStorage) Store(ctx context.Context, record *audit.Record) error {
	if record.ID == "" {
		return audit.NewStorageError("sqlite", "store", audit.ErrMissingID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_records (id, identifier, verdict, policy_version, recorded_at, violations)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Identifier, record.Verdict, record.PolicyVersion,
		record.RecordedAt.UTC().UnixNano(), record.Violations,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}

	if len(record.Entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit_entries (record_id, position, rule_id, domain, clause_kind, outcome, severity, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return audit.NewStorageError("sqlite", "store", err)
		}
		defer stmt.Close()

		for i, e := range record.Entries {
			if _, err := stmt.ExecContext(ctx, record.ID, i, e.RuleID, e.Domain, e.ClauseKind, e.Outcome, e.Severity, e.Reason); err != nil {
				return audit.NewStorageError("sqlite", "store", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves records matching the query filters, entries included.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT id, identifier, verdict, policy_version, recorded_at, violations FROM audit_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	sortOrder := "DESC"
	if query.SortOrder == "asc" {
		sortOrder = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY recorded_at %s, id ASC", sortOrder)

	limit := audit.DefaultQueryLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	records := []*audit.Record{}
	for rows.Next() {
		var (
			record     audit.Record
			recordedAt int64
		)
		if err := rows.Scan(&record.ID, &record.Identifier, &record.Verdict, &record.PolicyVersion, &recordedAt, &record.Violations); err != nil {
			rows.Close()
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		record.RecordedAt = time.Unix(0, recordedAt).UTC()
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	rows.Close()

	// Entries are loaded after the record cursor is closed; with a single
	// connection a nested query would block.
	for _, record := range records {
		entries, err := s.loadEntries(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		record.Entries = entries
	}

	return records, nil
}

func (s *SQLiteStorage) loadEntries(ctx context.Context, recordID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, domain, clause_kind, outcome, severity, reason
		FROM audit_entries WHERE record_id = ? ORDER BY position`, recordID)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query_entries", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.RuleID, &e.Domain, &e.ClauseKind, &e.Outcome, &e.Severity, &e.Reason); err != nil {
			return nil, audit.NewStorageError("sqlite", "scan_entries", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query_entries", err)
	}
	return entries, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM audit_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters together with their
// entries.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	whereClause, args := buildWhereClause(query)
	selectIDs := "SELECT id FROM audit_records"
	if whereClause != "" {
		selectIDs += " WHERE " + whereClause
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM audit_entries WHERE record_id IN ("+selectIDs+")", args...); err != nil {
		return 0, audit.NewStorageError("sqlite", "delete_entries", err)
	}

	deleteRecords := "DELETE FROM audit_records"
	if whereClause != "" {
		deleteRecords += " WHERE " + whereClause
	}
	result, err := tx.ExecContext(ctx, deleteRecords, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close releases the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause (without the keyword) and its
// arguments from query filters.
func buildWhereClause(query *audit.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, query.StartTime.UTC().UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, query.EndTime.UTC().UnixNano())
	}
	if query.Identifier != "" {
		conditions = append(conditions, "identifier = ?")
		args = append(args, query.Identifier)
	}
	if query.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, query.Verdict)
	}
	if query.PolicyVersion != "" {
		conditions = append(conditions, "policy_version = ?")
		args = append(args, query.PolicyVersion)
	}
	if query.RuleID != "" {
		conditions = append(conditions, "id IN (SELECT record_id FROM audit_entries WHERE rule_id = ?)")
		args = append(args, query.RuleID)
	}

	return strings.Join(conditions, " AND "), args
}
