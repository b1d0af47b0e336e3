package convcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"relator-ai/internal/domain"
)

// SQLiteStore implements domain.ChatStore using SQLite. One row per
// conversation; the entry list is stored as a JSON document, which matches
// the all-or-nothing save semantics the conversation manager needs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate chat db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			key        TEXT PRIMARY KEY,
			entries    TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetChat implements domain.ChatStore. A missing key yields an empty slice.
func (s *SQLiteStore) GetChat(ctx context.Context, key string) ([]domain.ChatEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT entries FROM chats WHERE key = ?", key)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, domain.WrapOp("ChatStore.GetChat", err)
	}

	var entries []domain.ChatEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, domain.NewDomainError("ChatStore.GetChat", domain.ErrChatStore, err.Error())
	}
	return entries, nil
}

// SaveChat implements domain.ChatStore.
func (s *SQLiteStore) SaveChat(ctx context.Context, key string, entries []domain.ChatEntry) error {
	if entries == nil {
		entries = []domain.ChatEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return domain.NewDomainError("ChatStore.SaveChat", domain.ErrChatStore, err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (key, entries, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET entries = excluded.entries, updated_at = excluded.updated_at
	`, key, string(raw), time.Now().UTC().Format(time.RFC3339))
	return domain.WrapOp("ChatStore.SaveChat", err)
}

// DeleteChat implements domain.ChatStore.
func (s *SQLiteStore) DeleteChat(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE key = ?", key)
	return domain.WrapOp("ChatStore.DeleteChat", err)
}

// ReapStale deletes conversations not updated within maxAge and returns the
// count of deleted rows.
func (s *SQLiteStore) ReapStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, domain.WrapOp("ChatStore.ReapStale", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

var _ domain.ChatStore = (*SQLiteStore)(nil)
