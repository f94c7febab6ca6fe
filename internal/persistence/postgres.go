package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

// PostgresStore persists beads and dependency edges to Postgres. Queries
// are written with ? placeholders and translated to Postgres's $N style by
// rebind, so the same query text could in principle be shared with a
// sqlite backend.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds connection parameters, each overridable by an
// OYA_POSTGRES_* environment variable with the given default.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresConfigFromEnv reads OYA_POSTGRES_{HOST,PORT,USER,PASSWORD,DB,SSLMODE}
// falling back to localhost/5432/oya/oya/oya/disable.
func PostgresConfigFromEnv() PostgresConfig {
	cfg := PostgresConfig{
		Host:     envOr("OYA_POSTGRES_HOST", "localhost"),
		Port:     5432,
		User:     envOr("OYA_POSTGRES_USER", "oya"),
		Password: envOr("OYA_POSTGRES_PASSWORD", "oya"),
		Database: envOr("OYA_POSTGRES_DB", "oya"),
		SSLMode:  envOr("OYA_POSTGRES_SSLMODE", "disable"),
	}
	if p := os.Getenv("OYA_POSTGRES_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			cfg.Port = n
		}
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c PostgresConfig) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// NewPostgresStore opens a connection pool, tunes it, pings it, and runs
// schema migration before returning.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS beads (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			title TEXT NOT NULL,
			state TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			claimed_by TEXT,
			assigned_queue TEXT,
			error_message TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			metadata JSONB,
			tags JSONB,
			transitions JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_beads_workflow ON beads(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_beads_state ON beads(state)`,
		`CREATE TABLE IF NOT EXISTS dependency_edges (
			workflow_id TEXT NOT NULL,
			dependency TEXT NOT NULL,
			dependent TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (workflow_id, dependency, dependent)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("persistence: migrate: %w", err)
		}
	}
	return nil
}

// rebind translates ? placeholders into Postgres's $1, $2, ... style so
// query text written against ? can target either backend.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *PostgresStore) SaveBead(ctx context.Context, bead *models.Bead) error {
	now := time.Now()
	if bead.ID == "" {
		bead.ID = NewBeadID()
	}
	if bead.CreatedAt.IsZero() {
		bead.CreatedAt = now
	}
	bead.UpdatedAt = now
	metadata, tags, transitions, err := marshalBeadJSON(bead)
	if err != nil {
		return err
	}
	query := rebind(`INSERT INTO beads
		(id, workflow_id, title, state, priority, claimed_by, assigned_queue, error_message,
		 retry_count, max_retries, metadata, tags, transitions, created_at, updated_at, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
		 workflow_id=EXCLUDED.workflow_id, title=EXCLUDED.title, state=EXCLUDED.state,
		 priority=EXCLUDED.priority, claimed_by=EXCLUDED.claimed_by,
		 assigned_queue=EXCLUDED.assigned_queue, error_message=EXCLUDED.error_message,
		 retry_count=EXCLUDED.retry_count, max_retries=EXCLUDED.max_retries,
		 metadata=EXCLUDED.metadata, tags=EXCLUDED.tags, transitions=EXCLUDED.transitions,
		 updated_at=EXCLUDED.updated_at, started_at=EXCLUDED.started_at, completed_at=EXCLUDED.completed_at`)
	_, err = s.db.ExecContext(ctx, query,
		bead.ID, bead.WorkflowID, bead.Title, bead.State, bead.Priority, nullString(bead.ClaimedBy),
		nullString(bead.AssignedQueue), nullString(bead.ErrorMessage),
		bead.RetryCount, bead.MaxRetries, metadata, tags, transitions,
		bead.CreatedAt, bead.UpdatedAt, bead.StartedAt, bead.CompletedAt)
	if err != nil {
		return fmt.Errorf("persistence: save bead: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBead(ctx context.Context, bead *models.Bead) error {
	return s.SaveBead(ctx, bead)
}

func (s *PostgresStore) GetBead(ctx context.Context, id string) (*models.Bead, error) {
	query := rebind(`SELECT id, workflow_id, title, state, priority, claimed_by, assigned_queue, error_message, retry_count,
		max_retries, metadata, tags, transitions, created_at, updated_at, started_at, completed_at
		FROM beads WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, query, id)
	bead, err := scanBead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bead %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get bead: %w", err)
	}
	return bead, nil
}

func (s *PostgresStore) DeleteBead(ctx context.Context, id string) error {
	query := rebind(`DELETE FROM beads WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("persistence: delete bead: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBeadsByWorkflow(ctx context.Context, workflowID string) ([]*models.Bead, error) {
	query := rebind(`SELECT id, workflow_id, title, state, priority, claimed_by, assigned_queue, error_message, retry_count,
		max_retries, metadata, tags, transitions, created_at, updated_at, started_at, completed_at
		FROM beads WHERE workflow_id = ? ORDER BY created_at`)
	return s.queryBeads(ctx, query, workflowID)
}

func (s *PostgresStore) ListBeadsByState(ctx context.Context, state models.BeadState) ([]*models.Bead, error) {
	query := rebind(`SELECT id, workflow_id, title, state, priority, claimed_by, assigned_queue, error_message, retry_count,
		max_retries, metadata, tags, transitions, created_at, updated_at, started_at, completed_at
		FROM beads WHERE state = ? ORDER BY created_at`)
	return s.queryBeads(ctx, query, state)
}

func (s *PostgresStore) queryBeads(ctx context.Context, query string, args ...interface{}) ([]*models.Bead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: query beads: %w", err)
	}
	defer rows.Close()
	var out []*models.Bead
	for rows.Next() {
		bead, err := scanBead(rows)
		if err != nil {
			return nil, fmt.Errorf("persistence: scan bead: %w", err)
		}
		out = append(out, bead)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AssignToWorker(ctx context.Context, beadID, workerID string, now time.Time) error {
	query := rebind(`UPDATE beads SET claimed_by = ?, state = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, workerID, models.BeadAssigned, now, beadID)
	if err != nil {
		return fmt.Errorf("persistence: assign to worker: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, beadID, reason string, now time.Time) error {
	query := rebind(`UPDATE beads SET state = ?, error_message = ?, retry_count = retry_count + 1,
		updated_at = ?, completed_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, models.BeadFailed, reason, now, now, beadID)
	if err != nil {
		return fmt.Errorf("persistence: mark failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reschedule(ctx context.Context, beadID string, now time.Time) error {
	query := rebind(`UPDATE beads SET claimed_by = NULL, error_message = NULL, state = ?, updated_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, models.BeadReady, now, beadID)
	if err != nil {
		return fmt.Errorf("persistence: reschedule: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveDependencyEdge(ctx context.Context, e models.DependencyEdge) error {
	query := rebind(`INSERT INTO dependency_edges (workflow_id, dependency, dependent, type)
		VALUES (?,?,?,?) ON CONFLICT (workflow_id, dependency, dependent) DO UPDATE SET type = EXCLUDED.type`)
	_, err := s.db.ExecContext(ctx, query, e.WorkflowID, e.Dependency, e.Dependent, e.Type)
	if err != nil {
		return fmt.Errorf("persistence: save edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDependencyEdges(ctx context.Context, workflowID string) ([]models.DependencyEdge, error) {
	query := rebind(`SELECT workflow_id, dependency, dependent, type FROM dependency_edges WHERE workflow_id = ?`)
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list edges: %w", err)
	}
	defer rows.Close()
	var out []models.DependencyEdge
	for rows.Next() {
		var e models.DependencyEdge
		if err := rows.Scan(&e.WorkflowID, &e.Dependency, &e.Dependent, &e.Type); err != nil {
			return nil, fmt.Errorf("persistence: scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// BlockedBeads joins beads against dependency_edges to find, for every
// non-terminal bead in workflowID, the blocking dependencies that have not
// yet reached BeadCompleted.
func (s *PostgresStore) BlockedBeads(ctx context.Context, workflowID string) (map[string]BlockedBead, error) {
	query := rebind(`
		SELECT e.dependent, e.dependency
		FROM dependency_edges e
		JOIN beads dependent_bead ON dependent_bead.id = e.dependent
		JOIN beads dependency_bead ON dependency_bead.id = e.dependency
		WHERE e.workflow_id = ?
		  AND e.type = ?
		  AND dependent_bead.state NOT IN (?, ?, ?)
		  AND dependency_bead.state != ?
		ORDER BY e.dependent, e.dependency`)
	rows, err := s.db.QueryContext(ctx, query, workflowID, models.BlockingDependency,
		models.BeadCompleted, models.BeadFailed, models.BeadCancelled, models.BeadCompleted)
	if err != nil {
		return nil, fmt.Errorf("persistence: blocked beads: %w", err)
	}
	defer rows.Close()
	blockers := make(map[string][]string)
	for rows.Next() {
		var dependent, dependency string
		if err := rows.Scan(&dependent, &dependency); err != nil {
			return nil, fmt.Errorf("persistence: scan blocked bead: %w", err)
		}
		blockers[dependent] = append(blockers[dependent], dependency)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]BlockedBead, len(blockers))
	for id, ids := range blockers {
		out[id] = BlockedBead{BlockedBy: ids, Reason: blockedReason(id, ids)}
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBead(row scanner) (*models.Bead, error) {
	var b models.Bead
	var claimedBy, assignedQueue, errorMessage sql.NullString
	var metadata, tags, transitions []byte
	err := row.Scan(&b.ID, &b.WorkflowID, &b.Title, &b.State, &b.Priority, &claimedBy,
		&assignedQueue, &errorMessage,
		&b.RetryCount, &b.MaxRetries, &metadata, &tags, &transitions,
		&b.CreatedAt, &b.UpdatedAt, &b.StartedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	b.ClaimedBy = claimedBy.String
	b.AssignedQueue = assignedQueue.String
	b.ErrorMessage = errorMessage.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(transitions) > 0 {
		if err := json.Unmarshal(transitions, &b.Transitions); err != nil {
			return nil, fmt.Errorf("unmarshal transitions: %w", err)
		}
	}
	return &b, nil
}

func marshalBeadJSON(b *models.Bead) (metadata, tags, transitions []byte, err error) {
	if metadata, err = json.Marshal(b.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if tags, err = json.Marshal(b.Tags); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if transitions, err = json.Marshal(b.Transitions); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal transitions: %w", err)
	}
	return metadata, tags, transitions, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
