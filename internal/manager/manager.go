package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ovchat/internal/pipeline"
	"ovchat/internal/registry"
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

var timeNow = time.Now

type Manager struct {
	cfg   Config
	store *session.Store

	mu     sync.RWMutex
	state  State
	err    string
	pipe   pipeline.Pipeline
	loaded *Loaded

	// loadMu serializes Load/Unload.
	loadMu sync.Mutex
	// genCh is a single slot: one generation in flight.
	genCh chan struct{}

	publisher  EventPublisher
	startTime  time.Time
	loadsTotal atomic.Uint64
	chatsTotal atomic.Uint64
}

// SetPublisher installs an EventPublisher; nil restores the no-op default.
func (m *Manager) SetPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		m.publisher = noopPublisher{}
		return
	}
	m.publisher = p
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if e.Time.IsZero() {
		e.Time = timeNow()
	}
	p.Publish(e)
}

// Store exposes the session store.
func (m *Manager) Store() *session.Store { return m.store }

// Settings returns the active session settings.
func (m *Manager) Settings() session.Settings { return m.store.Current() }

// Catalog returns the selectable model ids.
func (m *Manager) Catalog() []string { return m.store.Models() }

// AllowRemote reports the default hub download policy.
func (m *Manager) AllowRemote() bool { return m.cfg.AllowRemote }

// Ready reports whether a pipeline is open.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipe != nil
}

// ListModels returns the converted models found under the models root.
func (m *Manager) ListModels() ([]types.Model, error) {
	if m.cfg.ModelsRoot == "" {
		return nil, nil
	}
	return registry.LoadDir(m.cfg.ModelsRoot)
}

// Devices returns the available devices, the preference order and the
// selected device.
func (m *Manager) Devices() types.DevicesResponse {
	return types.DevicesResponse{
		Available:  m.store.Available(),
		Preference: m.store.Preference(),
		Selected:   m.store.Current().Device,
	}
}
