package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/wardenhq/warden/internal/model"
)

// Store manages Warden's internal state backed by SQLite. It persists the
// agent registry, scheduler triggers, workflows and their runs, webhook
// delivery counters, and key-value settings.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "warden.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Agent registry
// ---------------------------------------------------------------------------

// ListAgents returns all registered agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]model.Agent, error) {
	agents := []model.Agent{}
	err := s.db.SelectContext(ctx, &agents, `SELECT * FROM agents ORDER BY name`)
	return agents, err
}

// CreateAgent inserts a new agent, assigning its ID and timestamps.
func (s *Store) CreateAgent(ctx context.Context, a *model.Agent) error {
	a.ID = uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.IsActive, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAgent fetches one agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	err := s.db.GetContext(ctx, &a, `SELECT * FROM agents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAgent updates the mutable fields of an agent.
func (s *Store) UpdateAgent(ctx context.Context, a *model.Agent) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Description, a.IsActive, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent and, via cascade, its triggers.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scheduler triggers
// ---------------------------------------------------------------------------

// ListTriggers returns all scheduler triggers.
func (s *Store) ListTriggers(ctx context.Context) ([]model.Trigger, error) {
	triggers := []model.Trigger{}
	err := s.db.SelectContext(ctx, &triggers, `SELECT * FROM triggers ORDER BY created_at`)
	return triggers, err
}

// CreateTrigger inserts a scheduler trigger for an existing agent.
func (s *Store) CreateTrigger(ctx context.Context, t *model.Trigger) error {
	t.ID = uuid.Must(uuid.NewV7()).String()
	t.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers (id, agent_id, schedule, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, t.Schedule, t.IsActive, t.CreatedAt)
	return err
}

// DeleteTrigger removes a trigger by ID.
func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

// ListWorkflows returns all workflows ordered by name.
func (s *Store) ListWorkflows(ctx context.Context) ([]model.Workflow, error) {
	workflows := []model.Workflow{}
	err := s.db.SelectContext(ctx, &workflows, `SELECT * FROM workflows ORDER BY name`)
	return workflows, err
}

// CreateWorkflow registers a workflow definition.
func (s *Store) CreateWorkflow(ctx context.Context, wf *model.Workflow) error {
	wf.ID = uuid.Must(uuid.NewV7()).String()
	wf.CreatedAt = time.Now().UTC()
	if wf.Steps <= 0 {
		wf.Steps = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, steps, created_at) VALUES (?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.Steps, wf.CreatedAt)
	return err
}

// GetWorkflow fetches one workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	var wf model.Workflow
	err := s.db.GetContext(ctx, &wf, `SELECT * FROM workflows WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// CreateWorkflowRun records a new execution of a workflow.
func (s *Store) CreateWorkflowRun(ctx context.Context, run *model.WorkflowRun) error {
	run.ID = uuid.Must(uuid.NewV7()).String()
	run.StartedAt = time.Now().UTC()
	if run.Status == "" {
		run.Status = "queued"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.Status, run.StartedAt)
	return err
}

// ---------------------------------------------------------------------------
// Webhook delivery counters
// ---------------------------------------------------------------------------

// RecordDelivery bumps one provider counter. outcome is one of "accepted",
// "duplicate", "rejected".
func (s *Store) RecordDelivery(ctx context.Context, provider, outcome string) error {
	var column string
	switch outcome {
	case "accepted":
		column = "accepted"
	case "duplicate":
		column = "duplicates"
	case "rejected":
		column = "rejected"
	default:
		return fmt.Errorf("unknown delivery outcome %q", outcome)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO webhook_counters (provider, %[1]s, last_seen_at) VALUES (?, 1, ?)
		 ON CONFLICT(provider) DO UPDATE SET %[1]s = %[1]s + 1, last_seen_at = excluded.last_seen_at`,
		column), provider, time.Now().UTC())
	return err
}

// ListProviderStatus returns the delivery counters for every provider that
// has received at least one delivery.
func (s *Store) ListProviderStatus(ctx context.Context) ([]model.ProviderStatus, error) {
	statuses := []model.ProviderStatus{}
	err := s.db.SelectContext(ctx, &statuses, `SELECT * FROM webhook_counters ORDER BY provider`)
	return statuses, err
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting upserts a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
