// internal/skb/store.go
package skb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TEAMTWIN/internal/task"
)

// DurableStore mirrors knowledge-base records into SQLite. It is optional:
// the in-memory SKB is authoritative and the mirror provides restart
// continuity with identical observable semantics.
type DurableStore struct {
	db *sql.DB
}

// OpenDurableStore opens (or creates) the database and initializes the
// schema. Callers that receive an error are expected to continue in-memory.
func OpenDurableStore(path string) (*DurableStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", path, err)
	}

	s := &DurableStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewDurableStore wraps an existing database handle (used by tests)
func NewDurableStore(db *sql.DB) (*DurableStore, error) {
	s := &DurableStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *DurableStore) Close() error {
	return s.db.Close()
}

func (s *DurableStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		task_type TEXT,
		priority INTEGER NOT NULL DEFAULT 5,
		estimated_hours REAL NOT NULL DEFAULT 0,
		required_skills TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		assigned_to TEXT,
		dependencies TEXT,
		deadline TIMESTAMP,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		task_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		assigned_at TIMESTAMP NOT NULL,
		reason TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		message_id TEXT PRIMARY KEY,
		from_agent TEXT NOT NULL,
		to_agent TEXT NOT NULL,
		type TEXT NOT NULL,
		task_id TEXT,
		payload BLOB,
		sent_at TIMESTAMP NOT NULL,
		received_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to);
	CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_log(task_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveTask upserts a task row
func (s *DurableStore) SaveTask(t *task.Task) error {
	skills, _ := json.Marshal(t.RequiredSkills)
	deps, _ := json.Marshal(t.Dependencies)
	metadata, _ := json.Marshal(t.Metadata)

	var deadline interface{}
	if t.Deadline != nil {
		deadline = *t.Deadline
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, title, description, task_type, priority, estimated_hours, required_skills, status, assigned_to, dependencies, deadline, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			description=excluded.description,
			task_type=excluded.task_type,
			priority=excluded.priority,
			estimated_hours=excluded.estimated_hours,
			required_skills=excluded.required_skills,
			status=excluded.status,
			assigned_to=excluded.assigned_to,
			dependencies=excluded.dependencies,
			deadline=excluded.deadline,
			metadata=excluded.metadata,
			updated_at=excluded.updated_at
	`,
		t.ID, t.Title, t.Description, t.Type, t.Priority, t.EstimatedHours,
		string(skills), t.Status, t.AssignedTo, string(deps), deadline,
		string(metadata), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// DeleteTask removes a task row
func (s *DurableStore) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// LoadTasks returns all persisted tasks
func (s *DurableStore) LoadTasks() ([]*task.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, task_type, priority, estimated_hours, required_skills, status, assigned_to, dependencies, deadline, metadata, created_at, updated_at
		FROM tasks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var t task.Task
		var skills, deps, metadata, assignedTo sql.NullString
		var deadline sql.NullTime

		err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.Type, &t.Priority,
			&t.EstimatedHours, &skills, &t.Status, &assignedTo,
			&deps, &deadline, &metadata, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if assignedTo.Valid {
			t.AssignedTo = assignedTo.String
		}
		if deadline.Valid {
			d := deadline.Time
			t.Deadline = &d
		}
		unmarshalInto(skills, &t.RequiredSkills)
		unmarshalInto(deps, &t.Dependencies)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
				t.Metadata = make(map[string]string)
			}
		}
		if t.Metadata == nil {
			t.Metadata = make(map[string]string)
		}

		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// SaveAssignment upserts an assignment row
func (s *DurableStore) SaveAssignment(a *Assignment) error {
	_, err := s.db.Exec(`
		INSERT INTO assignments (task_id, agent_id, assigned_at, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			agent_id=excluded.agent_id,
			assigned_at=excluded.assigned_at,
			reason=excluded.reason
	`, a.TaskID, a.AgentID, a.AssignedAt, a.Reason)
	return err
}

// DeleteAssignment removes an assignment row
func (s *DurableStore) DeleteAssignment(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM assignments WHERE task_id = ?`, taskID)
	return err
}

// LoadAssignments returns all persisted assignments
func (s *DurableStore) LoadAssignments() ([]*Assignment, error) {
	rows, err := s.db.Query(`SELECT task_id, agent_id, assigned_at, reason FROM assignments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		var a Assignment
		var reason sql.NullString
		if err := rows.Scan(&a.TaskID, &a.AgentID, &a.AssignedAt, &reason); err != nil {
			return nil, err
		}
		if reason.Valid {
			a.Reason = reason.String
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAuditEntry appends one delivered message to the durable log
func (s *DurableStore) SaveAuditEntry(e AuditEntry) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO audit_log (message_id, from_agent, to_agent, type, task_id, payload, sent_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.MessageID, e.FromAgent, e.ToAgent, e.Type, e.TaskID, e.Payload, e.SentAt, e.ReceivedAt)
	return err
}

// LoadAuditEntries returns the durable message log for a task, in delivery
// order. An empty task id returns everything.
func (s *DurableStore) LoadAuditEntries(taskID string) ([]AuditEntry, error) {
	query := `SELECT message_id, from_agent, to_agent, type, task_id, payload, sent_at, received_at FROM audit_log`
	args := []interface{}{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY received_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var tid sql.NullString
		var payload []byte
		if err := rows.Scan(&e.MessageID, &e.FromAgent, &e.ToAgent, &e.Type, &tid, &payload, &e.SentAt, &e.ReceivedAt); err != nil {
			return nil, err
		}
		if tid.Valid {
			e.TaskID = tid.String
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func unmarshalInto(src sql.NullString, dst *[]string) {
	if !src.Valid || src.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		log.Printf("[SKB] ignoring malformed stored list: %v", err)
	}
}
