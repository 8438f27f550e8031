package macro

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for macro persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Macro CRUD
	GetByID(ctx context.Context, id string) (*Macro, error)
	GetBySlug(ctx context.Context, slug string) (*Macro, error)
	List(ctx context.Context) ([]Macro, error)
	Create(ctx context.Context, m *Macro) error
	Update(ctx context.Context, m *Macro) error
	Delete(ctx context.Context, id string) error

	// Run history
	CreateRun(ctx context.Context, run *MacroRun) error
	UpdateRun(ctx context.Context, run *MacroRun) error
	GetRun(ctx context.Context, id string) (*MacroRun, error)
	ListRuns(ctx context.Context, macroID string, limit int) ([]MacroRun, error)
}

// macroColumns is the SELECT column list for macro queries.
const macroColumns = `id, name, slug, description, enabled, items, sort_order, created_at, updated_at`

// runColumns is the SELECT column list for run queries.
const runColumns = `id, macro_id, triggered_at, started_at, completed_at,
			trigger_type, trigger_source, status,
			nodes_run, nodes_succeeded, nodes_failed,
			error_message, failed_position, duration_ms`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a macro by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Macro, error) {
	query := `SELECT ` + macroColumns + ` FROM macros WHERE id = ?`

	m, err := scanMacroRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMacroNotFound
		}
		return nil, fmt.Errorf("querying macro by id: %w", err)
	}
	return m, nil
}

// GetBySlug retrieves a macro by its slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Macro, error) {
	query := `SELECT ` + macroColumns + ` FROM macros WHERE slug = ?`

	m, err := scanMacroRow(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMacroNotFound
		}
		return nil, fmt.Errorf("querying macro by slug: %w", err)
	}
	return m, nil
}

// List retrieves all macros ordered by sort_order then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Macro, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+macroColumns+` FROM macros ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("querying macros: %w", err)
	}
	defer rows.Close()

	var macros []Macro
	for rows.Next() {
		m, scanErr := scanMacroRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning macro: %w", scanErr)
		}
		macros = append(macros, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating macros: %w", err)
	}
	return macros, nil
}

// Create inserts a new macro.
func (r *SQLiteRepository) Create(ctx context.Context, m *Macro) error {
	itemsJSON, err := marshalItems(m.Items)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO macros (
			id, name, slug, description, enabled, items, sort_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.Name,
		m.Slug,
		nullableString(m.Description),
		boolToInt(m.Enabled),
		itemsJSON,
		m.SortOrder,
		m.CreatedAt.Format(time.RFC3339),
		m.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrMacroExists
		}
		return fmt.Errorf("inserting macro: %w", err)
	}
	return nil
}

// Update modifies an existing macro.
func (r *SQLiteRepository) Update(ctx context.Context, m *Macro) error {
	itemsJSON, err := marshalItems(m.Items)
	if err != nil {
		return err
	}

	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE macros SET
			name = ?, slug = ?, description = ?, enabled = ?,
			items = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Slug,
		nullableString(m.Description),
		boolToInt(m.Enabled),
		itemsJSON,
		m.SortOrder,
		m.UpdatedAt.Format(time.RFC3339),
		m.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrMacroExists
		}
		return fmt.Errorf("updating macro: %w", err)
	}
	return checkAffected(result, ErrMacroNotFound)
}

// Delete removes a macro and, through the foreign key, its run history.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM macros WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting macro: %w", err)
	}
	return checkAffected(result, ErrMacroNotFound)
}

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *MacroRun) error {
	query := `
		INSERT INTO macro_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.MacroID,
		run.TriggeredAt.Format(time.RFC3339),
		nullableTime(run.StartedAt),
		nullableTime(run.CompletedAt),
		run.TriggerType,
		nullableString(run.TriggerSource),
		string(run.Status),
		run.NodesRun,
		run.NodesSucceeded,
		run.NodesFailed,
		nullableString(run.ErrorMessage),
		nullableInt(run.FailedPosition),
		nullableInt(run.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run record.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *MacroRun) error {
	query := `
		UPDATE macro_runs SET
			started_at = ?, completed_at = ?, status = ?,
			nodes_run = ?, nodes_succeeded = ?, nodes_failed = ?,
			error_message = ?, failed_position = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableTime(run.StartedAt),
		nullableTime(run.CompletedAt),
		string(run.Status),
		run.NodesRun,
		run.NodesSucceeded,
		run.NodesFailed,
		nullableString(run.ErrorMessage),
		nullableInt(run.FailedPosition),
		nullableInt(run.DurationMS),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return checkAffected(result, ErrRunNotFound)
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*MacroRun, error) {
	query := `SELECT ` + runColumns + ` FROM macro_runs WHERE id = ?`

	run, err := scanRunRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent runs for a macro, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, macroID string, limit int) ([]MacroRun, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + runColumns + ` FROM macro_runs
		WHERE macro_id = ?
		ORDER BY triggered_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, macroID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []MacroRun
	for rows.Next() {
		run, scanErr := scanRunRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMacroRow(scanner rowScanner) (*Macro, error) {
	var m Macro
	var description sql.NullString
	var itemsJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&m.ID,
		&m.Name,
		&m.Slug,
		&description,
		&enabled,
		&itemsJSON,
		&m.SortOrder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		m.Description = &description.String
	}
	m.Enabled = enabled != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		m.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		m.UpdatedAt = t
	}

	if itemsJSON != "" && itemsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(itemsJSON), &m.Items); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling items: %w", jsonErr)
		}
	}
	if m.Items == nil {
		m.Items = []FlatItem{}
	}

	return &m, nil
}

func scanRunRow(scanner rowScanner) (*MacroRun, error) {
	var run MacroRun
	var triggeredAt, status string
	var startedAt, completedAt, triggerSource, errorMessage sql.NullString
	var failedPosition, durationMS sql.NullInt64

	err := scanner.Scan(
		&run.ID,
		&run.MacroID,
		&triggeredAt,
		&startedAt,
		&completedAt,
		&run.TriggerType,
		&triggerSource,
		&status,
		&run.NodesRun,
		&run.NodesSucceeded,
		&run.NodesFailed,
		&errorMessage,
		&failedPosition,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if t, parseErr := time.Parse(time.RFC3339, triggeredAt); parseErr == nil {
		run.TriggeredAt = t
	}
	run.StartedAt = parseNullTime(startedAt)
	run.CompletedAt = parseNullTime(completedAt)
	if triggerSource.Valid {
		run.TriggerSource = &triggerSource.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if failedPosition.Valid {
		v := int(failedPosition.Int64)
		run.FailedPosition = &v
	}
	if durationMS.Valid {
		v := int(durationMS.Int64)
		run.DurationMS = &v
	}

	return &run, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

// marshalItems stores items detached so pair links never reach the database.
func marshalItems(items []FlatItem) (string, error) {
	detached := make([]FlatItem, len(items))
	for i, it := range items {
		detached[i] = it.Detach()
		detached[i].Position = 0
	}
	data, err := json.Marshal(detached)
	if err != nil {
		return "", fmt.Errorf("marshalling items: %w", err)
	}
	return string(data), nil
}

func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
