package manager

import (
	"ovchat/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{State: m.state, Settings: m.store.Current(), Err: m.err}
	if m.loaded != nil {
		cp := *m.loaded
		snap.Loaded = &cp
	}
	return snap
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	now := timeNow()
	resp := types.StatusResponse{
		State:          string(snap.State),
		Session:        SessionView(snap.Settings),
		Generating:     len(m.genCh) > 0,
		LastError:      snap.Err,
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
		ChatsTotal:     m.chatsTotal.Load(),
	}
	if snap.Loaded != nil {
		resp.ModelDir = snap.Loaded.Dir
		resp.Source = snap.Loaded.Source
		resp.LoadedDevice = snap.Loaded.Device
	}
	return resp
}
