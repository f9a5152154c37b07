package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	model "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
)

// ErrMissingField is returned when an update omits ollama_host or llm_model.
var ErrMissingField = errors.New("ollama_host and llm_model are required")

// Manager holds the active settings in memory and writes changes through to a Store.
type Manager struct {
	mu      sync.RWMutex
	store   model.Store
	current model.Settings
	logger  *slog.Logger
}

// NewManager loads the persisted record, falling back to defaults when none exists.
func NewManager(ctx context.Context, store model.Store, defaults model.Settings, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	current, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !ok || !current.Complete() {
		current = defaults.Normalize()
		logger.Info("using default settings", "ollama_host", current.OllamaHost, "llm_model", current.LLMModel)
	}

	return &Manager{store: store, current: current.Normalize(), logger: logger}, nil
}

// Current returns the active settings.
func (m *Manager) Current() model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update validates, persists, then activates next. The in-memory value only
// changes once the write succeeded.
func (m *Manager) Update(ctx context.Context, next model.Settings) (model.Settings, error) {
	if !next.Complete() {
		return model.Settings{}, ErrMissingField
	}
	next = next.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, next); err != nil {
		return model.Settings{}, fmt.Errorf("persist settings: %w", err)
	}
	m.current = next
	m.logger.Info("settings updated", "ollama_host", next.OllamaHost, "llm_model", next.LLMModel)
	return next, nil
}
