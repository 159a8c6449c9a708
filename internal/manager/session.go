package manager

import (
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

// UpdateSession applies every field of u at once. Nothing changes when any
// field is rejected.
func (m *Manager) UpdateSession(u types.SessionUpdate) (session.Settings, error) {
	avail := m.store.Available()
	return m.Apply(func(cur session.Settings) (session.Settings, error) {
		var err error
		if u.Model != nil {
			if cur, err = cur.WithModel(*u.Model); err != nil {
				return cur, err
			}
		}
		if u.Variant != nil {
			if cur, err = cur.WithVariant(*u.Variant); err != nil {
				return cur, err
			}
		}
		if u.Device != nil {
			if cur, err = cur.WithDevice(*u.Device, avail); err != nil {
				return cur, err
			}
		}
		if u.Temperature != nil {
			if cur, err = cur.WithTemperature(*u.Temperature); err != nil {
				return cur, err
			}
		}
		if u.MaxNewTokens != nil {
			if cur, err = cur.WithMaxNewTokens(*u.MaxNewTokens); err != nil {
				return cur, err
			}
		}
		return cur, nil
	})
}

// Apply swaps in the settings derived by change. A rejected change leaves the
// session untouched and is reported as invalid.
func (m *Manager) Apply(change func(session.Settings) (session.Settings, error)) (session.Settings, error) {
	next, err := m.store.Apply(change)
	if err != nil {
		return next, invalidError{err: err}
	}
	m.publish(Event{Name: EventSessionUpdated, ModelID: next.ModelID, Fields: map[string]any{"variant": string(next.Variant), "device": next.Device, "temperature": next.Temperature}})
	return next, nil
}

// SessionView converts settings to the API payload.
func SessionView(s session.Settings) types.Session {
	return types.Session{
		Org:          s.Org,
		Model:        s.ModelID,
		Variant:      string(s.Variant),
		Device:       s.Device,
		Temperature:  s.Temperature,
		MaxNewTokens: s.MaxNewTokens,
	}
}
