package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	model "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
)

const (
	keyOllamaHost = "ollama_host"
	keyLLMModel   = "llm_model"
)

// SQLiteStore keeps the settings record as key/value rows in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create settings dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the record. ok is false until Save has been called at least once.
func (s *SQLiteStore) Load(ctx context.Context) (model.Settings, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?)`, keyOllamaHost, keyLLMModel)
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var (
		out   model.Settings
		found bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Settings{}, false, fmt.Errorf("scan settings: %w", err)
		}
		found = true
		switch key {
		case keyOllamaHost:
			out.OllamaHost = value
		case keyLLMModel:
			out.LLMModel = value
		}
	}
	if err := rows.Err(); err != nil {
		return model.Settings{}, false, fmt.Errorf("iterate settings: %w", err)
	}
	return out, found, nil
}

// Save replaces both values in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, v model.Settings) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsert = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for key, value := range map[string]string{keyOllamaHost: v.OllamaHost, keyLLMModel: v.LLMModel} {
		if _, err = tx.ExecContext(ctx, upsert, key, value); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}
