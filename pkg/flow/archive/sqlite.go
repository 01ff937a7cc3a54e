package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"proxycast-hq/flowscope/pkg/flow"
)

// StorageError reports a failed archive operation.
type StorageError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("flow archive %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Cause }

func newStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

// Config contains configuration for the SQLite flow archive.
type Config struct {
	// Path is the database file path.
	Path string `json:"path" yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool `json:"wal_mode" yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:         "data/flows.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// Archive is the SQLite-backed flow archive.
type Archive struct {
	db     *sql.DB
	config *Config
	logger *slog.Logger
}

// New opens (creating if needed) the archive database and initializes the
// schema.
func New(config *Config) (*Archive, error) {
	if config == nil {
		config = DefaultConfig()
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, newStorageError("open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	a := &Archive{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "flow.archive"),
	}

	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	a.logger.Info("flow archive opened",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return a, nil
}

func (a *Archive) initialize() error {
	if a.config.WALMode {
		if _, err := a.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return newStorageError("enable_wal", err)
		}
	}
	if _, err := a.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", a.config.BusyTimeout.Milliseconds())); err != nil {
		return newStorageError("set_busy_timeout", err)
	}
	if _, err := a.db.Exec(Schema); err != nil {
		return newStorageError("create_schema", err)
	}
	if _, err := a.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return newStorageError("insert_schema_version", err)
	}

	var version int
	err := a.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newStorageError("get_schema_version", err)
	}
	if version != SchemaVersion {
		return newStorageError("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store persists one flow. Storing the same id again replaces the row, so
// re-archiving after an annotation change is safe.
func (a *Archive) Store(ctx context.Context, record *flow.FlowRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return newStorageError("encode", err)
	}

	query := `
		INSERT OR REPLACE INTO flows (
			id, state, flow_type, provider, model,
			created, duration_ms, total_tokens, has_error, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = a.db.ExecContext(ctx, query,
		record.ID,
		string(record.State),
		record.Type.String(),
		record.Metadata.Provider,
		record.Request.Model,
		record.Timestamps.Created,
		record.Timestamps.DurationMs,
		record.TotalTokens(),
		boolInt(record.HasError()),
		string(blob),
	)
	if err != nil {
		return newStorageError("store", err)
	}
	return nil
}

// Get retrieves one archived flow by id.
func (a *Archive) Get(ctx context.Context, id string) (*flow.FlowRecord, error) {
	var blob string
	err := a.db.QueryRowContext(ctx, `SELECT record FROM flows WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flow.NewNotFoundError(id)
	}
	if err != nil {
		return nil, newStorageError("get", err)
	}

	var record flow.FlowRecord
	if err := json.Unmarshal([]byte(blob), &record); err != nil {
		return nil, newStorageError("decode", err)
	}
	return &record, nil
}

// List returns archived flows newest first.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]*flow.FlowRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT record FROM flows ORDER BY created DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, newStorageError("list", err)
	}
	defer rows.Close()

	records := []*flow.FlowRecord{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, newStorageError("scan", err)
		}
		var record flow.FlowRecord
		if err := json.Unmarshal([]byte(blob), &record); err != nil {
			return nil, newStorageError("decode", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list", err)
	}
	return records, nil
}

// Count returns the number of archived flows.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`).Scan(&count); err != nil {
		return 0, newStorageError("count", err)
	}
	return count, nil
}

// DeleteOlderThan removes archived flows created before the cutoff and
// returns how many were removed.
func (a *Archive) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, `DELETE FROM flows WHERE created < ?`, cutoff)
	if err != nil {
		return 0, newStorageError("delete_older_than", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, newStorageError("delete_older_than", err)
	}
	if affected > 0 {
		a.logger.Info("archived flows pruned", "removed", affected, "cutoff", cutoff)
	}
	return affected, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
