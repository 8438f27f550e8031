package macro

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Library and Runner.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Library provides macro management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Library struct {
	repo     Repository
	types    *TypeRegistry
	maxItems int

	cache   map[string]*Macro // Cached macros by ID
	cacheMu sync.RWMutex      // Protects cache

	editMu sync.Mutex // Serialises EditItems read-modify-write cycles

	logger Logger
}

// NewLibrary creates a new macro library.
// The repository is used for persistence; the library adds caching.
func NewLibrary(repo Repository, types *TypeRegistry) *Library {
	return &Library{
		repo:     repo,
		types:    types,
		maxItems: DefaultMaxItems,
		cache:    make(map[string]*Macro),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the library.
func (l *Library) SetLogger(logger Logger) {
	l.logger = logger
}

// SetMaxItems sets the per-macro item limit. n <= 0 keeps the default.
func (l *Library) SetMaxItems(n int) {
	if n > 0 {
		l.maxItems = n
	}
}

// Types returns the type registry used to validate items.
func (l *Library) Types() *TypeRegistry { return l.types }

// RefreshCache reloads all macros from the repository into the cache.
// This should be called on application startup.
func (l *Library) RefreshCache(ctx context.Context) error {
	macros, err := l.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading macros: %w", err)
	}

	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()

	l.cache = make(map[string]*Macro, len(macros))
	for i := range macros {
		m := macros[i]
		l.cache[m.ID] = m.DeepCopy()
	}

	l.logger.Info("macro cache refreshed", "count", len(macros))
	return nil
}

// GetMacro retrieves a macro by ID.
// The returned macro is a deep copy; callers can safely modify it.
func (l *Library) GetMacro(_ context.Context, id string) (*Macro, error) {
	l.cacheMu.RLock()
	cached, ok := l.cache[id]
	l.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrMacroNotFound
}

// GetMacroBySlug retrieves a macro by its slug.
func (l *Library) GetMacroBySlug(_ context.Context, slug string) (*Macro, error) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	for _, m := range l.cache {
		if m.Slug == slug {
			return m.DeepCopy(), nil
		}
	}
	return nil, ErrMacroNotFound
}

// ListMacros returns deep copies of all macros sorted by sort_order then
// name, matching the database ordering.
func (l *Library) ListMacros(_ context.Context) ([]Macro, error) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()

	macros := make([]Macro, 0, len(l.cache))
	for _, m := range l.cache {
		macros = append(macros, *m.DeepCopy())
	}
	sort.Slice(macros, func(i, j int) bool {
		if macros[i].SortOrder != macros[j].SortOrder {
			return macros[i].SortOrder < macros[j].SortOrder
		}
		return macros[i].Name < macros[j].Name
	})
	return macros, nil
}

// CreateMacro validates, persists, and caches a new macro.
func (l *Library) CreateMacro(ctx context.Context, m *Macro) error {
	if m.ID == "" {
		m.ID = GenerateID()
	}
	if m.Slug == "" {
		m.Slug = GenerateSlug(m.Name)
	}
	if m.Items == nil {
		m.Items = []FlatItem{}
	}

	if err := ValidateMacro(m, l.types, l.maxItems); err != nil {
		return err
	}

	if err := l.repo.Create(ctx, m); err != nil {
		return err
	}

	l.cacheMu.Lock()
	l.cache[m.ID] = m.DeepCopy()
	l.cacheMu.Unlock()

	l.logger.Info("macro created", "id", m.ID, "name", m.Name, "items", len(m.Items))
	return nil
}

// UpdateMacro validates, persists, and updates the cached macro.
func (l *Library) UpdateMacro(ctx context.Context, m *Macro) error {
	if err := ValidateMacro(m, l.types, l.maxItems); err != nil {
		return err
	}

	if err := l.repo.Update(ctx, m); err != nil {
		return err
	}

	l.cacheMu.Lock()
	l.cache[m.ID] = m.DeepCopy()
	l.cacheMu.Unlock()

	l.logger.Info("macro updated", "id", m.ID, "name", m.Name)
	return nil
}

// DeleteMacro removes a macro from persistence and cache.
func (l *Library) DeleteMacro(ctx context.Context, id string) error {
	if err := l.repo.Delete(ctx, id); err != nil {
		return err
	}

	l.cacheMu.Lock()
	delete(l.cache, id)
	l.cacheMu.Unlock()

	l.logger.Info("macro deleted", "id", id)
	return nil
}

// EditItems loads a macro's items into a List, applies edit, and stores
// the result. The returned list reflects the saved state, with positions,
// depths and pairs recomputed.
//
// If edit returns an error nothing is saved.
func (l *Library) EditItems(ctx context.Context, id string, edit func(*List) error) (*List, error) {
	l.editMu.Lock()
	defer l.editMu.Unlock()

	m, err := l.GetMacro(ctx, id)
	if err != nil {
		return nil, err
	}

	list, err := l.OpenList(m)
	if err != nil {
		return nil, err
	}
	if err := edit(list); err != nil {
		return nil, err
	}

	m.Items = list.Detached()
	if err := l.UpdateMacro(ctx, m); err != nil {
		return nil, err
	}
	return list, nil
}

// OpenList restores a macro's items into an editable List.
func (l *Library) OpenList(m *Macro) (*List, error) {
	list, err := NewListFromItems(l.types, m.Items)
	if err != nil {
		return nil, fmt.Errorf("macro %q: %w", m.ID, err)
	}
	list.SetMaxItems(l.maxItems)
	return list, nil
}

// GetMacroCount returns the number of cached macros.
func (l *Library) GetMacroCount() int {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	return len(l.cache)
}
