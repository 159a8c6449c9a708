package manager

import (
	"context"
)

// Unload waits for any in-flight generation, then closes the open pipeline.
// Unloading with nothing open is a no-op.
func (m *Manager) Unload(ctx context.Context) error {
	if !m.loadMu.TryLock() {
		return tooBusyError{what: "load"}
	}
	defer m.loadMu.Unlock()
	select {
	case m.genCh <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.genCh }()

	m.mu.Lock()
	p := m.pipe
	var modelID string
	if m.loaded != nil {
		modelID = m.loaded.Settings.ModelID
	}
	m.pipe = nil
	m.loaded = nil
	m.state = StateIdle
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	m.publish(Event{Name: EventUnload, ModelID: modelID})
	logger.Info().Str("model", modelID).Msg("pipeline closed")
	return p.Close()
}

// Close releases the pipeline on shutdown.
func (m *Manager) Close() error {
	return m.Unload(context.Background())
}
