// Package store implements the SQLite-backed repositories for animus.
//
// Schedules are persisted as a durable list rewritten atomically on every
// mutation; conversations are one durable record per name. Both are
// JSON-encoded payload columns, so the repository interfaces stay
// swappable without touching scheduler or conversation logic.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"animus/internal/conversation"
	"animus/internal/logging"
	"animus/internal/schedule"
)

// Store owns the workspace SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	logging.Store("Opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// migrate creates the schema if missing.
func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	logging.Store("Closing store")
	return s.db.Close()
}

// Schedules returns the schedule repository view of the store.
func (s *Store) Schedules() schedule.Repository {
	return &scheduleRepo{s: s}
}

// Conversations returns the conversation repository view of the store.
func (s *Store) Conversations() conversation.Repository {
	return &conversationRepo{s: s}
}

// -----------------------------------------------------------------------------
// Schedule repository
// -----------------------------------------------------------------------------

type scheduleRepo struct {
	s *Store
}

// Load returns all persisted schedules.
func (r *scheduleRepo) Load() ([]*schedule.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.db.Query(`SELECT data FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var out []*schedule.Schedule
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		var sched schedule.Schedule
		if err := json.Unmarshal([]byte(data), &sched); err != nil {
			return nil, fmt.Errorf("decoding schedule: %w", err)
		}
		out = append(out, &sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Loaded %d schedules", len(out))
	return out, nil
}

// SaveAll rewrites the full schedule set in one transaction.
func (r *scheduleRepo) SaveAll(schedules []*schedule.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, err := r.s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedules`); err != nil {
		return fmt.Errorf("clearing schedules: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, sched := range schedules {
		data, err := json.Marshal(sched)
		if err != nil {
			return fmt.Errorf("encoding schedule %s: %w", sched.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schedules (id, data, updated_at) VALUES (?, ?, ?)`,
			sched.ID, string(data), now,
		); err != nil {
			return fmt.Errorf("inserting schedule %s: %w", sched.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schedules: %w", err)
	}

	logging.StoreDebug("Saved %d schedules", len(schedules))
	return nil
}

// -----------------------------------------------------------------------------
// Conversation repository
// -----------------------------------------------------------------------------

type conversationRepo struct {
	s *Store
}

// Load returns all persisted conversations.
func (r *conversationRepo) Load() ([]*conversation.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows, err := r.s.db.Query(`SELECT data FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []*conversation.Conversation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		var c conversation.Conversation
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("decoding conversation: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Loaded %d conversations", len(out))
	return out, nil
}

// Save upserts one conversation record.
func (r *conversationRepo) Save(c *conversation.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", c.Name, err)
	}

	_, err = r.s.db.Exec(
		`INSERT INTO conversations (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		c.Name, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.Name, err)
	}
	return nil
}

// Delete removes one conversation record.
func (r *conversationRepo) Delete(name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, err := r.s.db.Exec(`DELETE FROM conversations WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", name, err)
	}
	return nil
}
