// internal/events/store.go
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements EventStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates an event store on an existing handle and
// initializes the schema
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// OpenSQLiteStore opens (or creates) the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewSQLiteStore(db)
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		delivered_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target, delivered_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Save persists an event
func (s *SQLiteStore) Save(event *Event) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO events (id, type, source, target, payload, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`, event.ID, event.Type, event.Source, event.Target, string(payloadJSON), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetPending retrieves undelivered events for a target, oldest first.
// A specific target also sees events addressed to "all".
func (s *SQLiteStore) GetPending(target string, types []EventType) ([]*Event, error) {
	where := `delivered_at IS NULL AND (target = ? OR target = 'all')`
	args := []interface{}{target}
	if target == "all" {
		where = `delivered_at IS NULL AND target = ?`
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, et := range types {
			placeholders[i] = "?"
			args = append(args, string(et))
		}
		where += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf(`
		SELECT id, type, source, target, payload, created_at
		FROM events
		WHERE %s
		ORDER BY created_at ASC
	`, where)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var event Event
		var payloadJSON string
		if err := rows.Scan(&event.ID, &event.Type, &event.Source, &event.Target, &payloadJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		out = append(out, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// MarkDelivered stamps an event as consumed
func (s *SQLiteStore) MarkDelivered(eventID string) error {
	result, err := s.db.Exec(`UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as delivered: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// Cleanup deletes delivered events older than the given age
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := s.db.Exec(`DELETE FROM events WHERE delivered_at IS NOT NULL AND created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old events: %w", err)
	}
	return nil
}
