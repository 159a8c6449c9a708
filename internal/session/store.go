package session

import (
	"sync"

	"github.com/rs/zerolog"

	"ovchat/internal/device"
)

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

// Store owns the current Settings. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	cur        Settings
	available  []string
	preference []string
	models     []string
}

// NewStore builds a store over the available devices. When initial names no
// device, or one that is not available, the first preferred available device
// is selected.
func NewStore(initial Settings, available, preference, models []string) *Store {
	if len(preference) == 0 {
		preference = device.DefaultPreference
	}
	if len(models) == 0 {
		models = DefaultModels
	}
	s := &Store{
		available:  append([]string(nil), available...),
		preference: append([]string(nil), preference...),
		models:     append([]string(nil), models...),
	}
	if initial.Device == "" || !device.Contains(s.available, initial.Device) {
		initial.Device = device.Select(s.preference, s.available)
	}
	s.cur = initial
	return s
}

// Current returns the active settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Available returns the devices the store accepts.
func (s *Store) Available() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.available...)
}

// Preference returns the device preference order.
func (s *Store) Preference() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.preference...)
}

// Models returns the selectable model catalog.
func (s *Store) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.models...)
}

// Apply derives new settings from the current ones. On error the error is
// logged and the previous settings stay in place.
func (s *Store) Apply(change func(Settings) (Settings, error)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := change(s.cur)
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		logger.Error().Err(err).Msg("settings change rejected")
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

// SetTemperature sets the sampling temperature; values outside [0,1] are
// rejected.
func (s *Store) SetTemperature(t float64) error {
	next, err := s.Apply(func(cur Settings) (Settings, error) { return cur.WithTemperature(t) })
	if err == nil {
		logger.Info().Float64("temperature", next.Temperature).Msg("temperature set")
	}
	return err
}

// SetDevice selects dev. An unavailable device is rejected and the store
// falls back to the first preferred available device.
func (s *Store) SetDevice(dev string) error {
	avail := s.Available()
	next, err := s.Apply(func(cur Settings) (Settings, error) { return cur.WithDevice(dev, avail) })
	if err != nil {
		fallback := device.Select(s.preference, avail)
		s.mu.Lock()
		s.cur.Device = fallback
		s.mu.Unlock()
		return err
	}
	logger.Info().Str("device", next.Device).Msg("device set")
	return nil
}

// SetModel selects the model id.
func (s *Store) SetModel(modelID string) error {
	_, err := s.Apply(func(cur Settings) (Settings, error) { return cur.WithModel(modelID) })
	return err
}

// SetVariant selects the compression variant by name.
func (s *Store) SetVariant(name string) error {
	_, err := s.Apply(func(cur Settings) (Settings, error) { return cur.WithVariant(name) })
	return err
}

// SetMaxNewTokens sets the generation length limit.
func (s *Store) SetMaxNewTokens(n int) error {
	_, err := s.Apply(func(cur Settings) (Settings, error) { return cur.WithMaxNewTokens(n) })
	return err
}
