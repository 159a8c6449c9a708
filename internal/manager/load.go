package manager

import (
	"context"
	"strings"

	"ovchat/internal/acquire"
	"ovchat/internal/session"
)

// Descriptor returns the acquisition target for the current settings.
func (m *Manager) Descriptor() acquire.Descriptor {
	return m.store.Current().Descriptor(m.cfg.ModelsRoot)
}

// ConversionCommand returns the converter command line for the current
// settings without running it.
func (m *Manager) ConversionCommand() string {
	if m.cfg.Acquirer == nil {
		d := m.Descriptor()
		params := acquire.SelectCompression(d.ModelID, d.Variant, d.Device)
		return acquire.BuildCommand(d.SourceID(), d.Variant.WeightFormat(), d.Dir, params, d.Variant.IsAWQ(), false)
	}
	return strings.Join(m.cfg.Acquirer.ConversionArgs(m.Descriptor()), " ")
}

// Acquire ensures the model for the current settings is converted on disk
// and returns where it came from.
func (m *Manager) Acquire(ctx context.Context, allowRemote bool) (acquire.Result, error) {
	return m.acquire(ctx, m.store.Current(), allowRemote)
}

func (m *Manager) acquire(ctx context.Context, s session.Settings, allowRemote bool) (acquire.Result, error) {
	if m.cfg.Acquirer == nil {
		return acquire.Result{}, ErrDependencyUnavailable("model acquisition not configured")
	}
	if s.Device == "" {
		return acquire.Result{}, noDeviceError{}
	}
	d := s.Descriptor(m.cfg.ModelsRoot)
	res, err := m.cfg.Acquirer.Acquire(ctx, d, allowRemote)
	if err != nil {
		return res, err
	}
	if mb, err := acquire.ModelSizeMB(res.Dir); err == nil {
		logger.Info().Str("dir", res.Dir).Float64("size_mb", mb).Msg("model size")
	} else {
		logger.Warn().Err(err).Str("dir", res.Dir).Msg("model size unavailable")
	}
	return res, nil
}

// Load acquires the model for the current settings and opens it on the
// selected device, using the configured remote policy.
func (m *Manager) Load(ctx context.Context) (*Loaded, error) {
	return m.LoadWith(ctx, m.cfg.AllowRemote)
}

// LoadWith is Load with an explicit remote policy. State moves to loading,
// then ready or error. On failure the previously open pipeline, if any,
// stays in service.
func (m *Manager) LoadWith(ctx context.Context, allowRemote bool) (*Loaded, error) {
	if m.cfg.Backend == nil {
		return nil, ErrDependencyUnavailable("inference backend not configured")
	}
	if !m.loadMu.TryLock() {
		return nil, tooBusyError{what: "load"}
	}
	defer m.loadMu.Unlock()

	s := m.store.Current()
	m.setState(StateLoading, "")
	m.publish(Event{Name: EventLoadStart, ModelID: s.ModelID, Fields: map[string]any{"variant": string(s.Variant), "device": s.Device}})

	res, err := m.acquire(ctx, s, allowRemote)
	if err != nil {
		m.fail(s, "acquire", err)
		return nil, err
	}
	p, err := m.cfg.Backend.Open(res.Dir, s.Device)
	if err != nil {
		m.fail(s, "open", err)
		return nil, err
	}

	// Wait for any in-flight generation before swapping pipelines.
	select {
	case m.genCh <- struct{}{}:
	case <-ctx.Done():
		_ = p.Close()
		m.fail(s, "swap", ctx.Err())
		return nil, ctx.Err()
	}
	loaded := &Loaded{Dir: res.Dir, Source: string(res.Source), Device: s.Device, Settings: s, Command: res.Command}
	if mb, err := acquire.ModelSizeMB(res.Dir); err == nil {
		loaded.SizeMB = mb
	}
	m.mu.Lock()
	old := m.pipe
	m.pipe = p
	m.loaded = loaded
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	<-m.genCh

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warn().Err(err).Msg("close previous pipeline")
		}
	}
	m.loadsTotal.Add(1)
	logger.Info().Str("model", s.ModelID).Str("device", s.Device).Str("dir", res.Dir).Str("source", string(res.Source)).Msg("model loaded")
	m.publish(Event{Name: EventLoadDone, ModelID: s.ModelID, Fields: map[string]any{"dir": res.Dir, "source": string(res.Source)}})
	cp := *loaded
	return &cp, nil
}

func (m *Manager) setState(st State, errMsg string) {
	m.mu.Lock()
	m.state = st
	m.err = errMsg
	m.mu.Unlock()
}

func (m *Manager) fail(s session.Settings, stage string, err error) {
	logger.Error().Err(err).Str("model", s.ModelID).Str("stage", stage).Msg("model load failed")
	m.setState(StateError, err.Error())
	m.publish(Event{Name: EventLoadError, ModelID: s.ModelID, Fields: map[string]any{"stage": stage, "error": err.Error()}})
}
