package manager

import (
	"os/exec"

	"ovchat/internal/device"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	ConverterFound  bool     `json:"converter_found"`
	ConverterPath   string   `json:"converter_path,omitempty"`
	Device          string   `json:"device"`
	DeviceAvailable bool     `json:"device_available"`
	Available       []string `json:"available"`
	Errors          []string `json:"errors,omitempty"`
}

// OK reports whether every check passed.
func (r SanityReport) OK() bool { return len(r.Errors) == 0 }

// SanityCheck validates that the converter is on PATH and the selected
// device is available. It does not mutate state.
func (m *Manager) SanityCheck() SanityReport {
	s := m.store.Current()
	r := SanityReport{Device: s.Device, Available: m.store.Available()}
	if p, err := exec.LookPath(m.cfg.Converter); err == nil {
		r.ConverterFound = true
		r.ConverterPath = p
	} else {
		r.Errors = append(r.Errors, m.cfg.Converter+" not found on PATH")
	}
	switch {
	case s.Device == "":
		r.Errors = append(r.Errors, noDeviceError{}.Error())
	case device.Contains(r.Available, s.Device):
		r.DeviceAvailable = true
	default:
		r.Errors = append(r.Errors, "device "+s.Device+" not available")
	}
	return r
}
