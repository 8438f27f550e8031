package variables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

// MaxValueLength bounds a single variable value (captured command output
// is truncated by the engine well below this).
const MaxValueLength = 1 << 20

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,63}$`)

// Variable is a named value with its last modification time.
type Variable struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the full variable store used by the API. It extends
// engine.VariableStore with listing and deletion.
type Store interface {
	engine.VariableStore
	List(ctx context.Context) ([]Variable, error)
	Delete(ctx context.Context, name string) error
}

// ValidateName checks a variable name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validate(name, value string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(value) > MaxValueLength {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(value))
	}
	return nil
}

// ─── SQLite ─────────────────────────────────────────────────────────────────

// SQLiteStore persists variables in the variables table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed variable store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the value of name and whether it is set.
func (s *SQLiteStore) Get(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM variables WHERE name = ?`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("querying variable: %w", err)
	}
	return value, true, nil
}

// Set creates or replaces a variable.
func (s *SQLiteStore) Set(ctx context.Context, name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	query := `
		INSERT INTO variables (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, name, value, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("storing variable: %w", err)
	}
	return nil
}

// Delete removes a variable.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting variable: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all variables ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Variable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value, updated_at FROM variables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying variables: %w", err)
	}
	defer rows.Close()

	vars := []Variable{}
	for rows.Next() {
		var v Variable
		var updatedAt string
		if err := rows.Scan(&v.Name, &v.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning variable: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
			v.UpdatedAt = t
		}
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variables: %w", err)
	}
	return vars, nil
}

// ─── Memory ─────────────────────────────────────────────────────────────────

// MemoryStore keeps variables in memory for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	vars map[string]Variable
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vars: make(map[string]Variable)}
}

func (m *MemoryStore) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[name]
	return v.Value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[name] = Variable{Name: name, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vars[name]; !ok {
		return ErrNotFound
	}
	delete(m.vars, name)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Variable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Variable, 0, len(m.vars))
	for _, v := range m.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
