// Package device selects the inference target (GPU, NPU, CPU) from the
// devices reported by the runtime.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPreference is the order in which devices are tried when the user
// has not picked one.
var DefaultPreference = []string{"GPU", "NPU", "CPU"}

// DefaultProbeCommand prints the OpenVINO runtime's device list on stdout.
var DefaultProbeCommand = []string{
	"python3", "-c",
	"import openvino as ov; print(' '.join(ov.Core().available_devices))",
}

// Fallback is used when neither configuration nor the probe yields a device.
const Fallback = "CPU"

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

// Select returns the first entry of preference present in available, or ""
// when nothing matches. An empty result means no usable device.
func Select(preference, available []string) string {
	set := make(map[string]struct{}, len(available))
	for _, d := range available {
		set[d] = struct{}{}
	}
	for _, dev := range preference {
		if _, ok := set[dev]; ok {
			logger.Info().Str("device", dev).Msg("using device")
			return dev
		}
	}
	logger.Error().Strs("available", available).Msg("no suitable device found for model inference")
	return ""
}

// Contains reports whether dev is one of devices.
func Contains(devices []string, dev string) bool {
	for _, d := range devices {
		if d == dev {
			return true
		}
	}
	return false
}

// Normalize upper-cases device names, strips instance suffixes ("GPU.0" ->
// "GPU") and drops duplicates while keeping order.
func Normalize(devices []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		d = strings.ToUpper(strings.TrimSpace(d))
		if i := strings.IndexByte(d, '.'); i > 0 {
			d = d[:i]
		}
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Prober reports the devices the inference runtime can see.
type Prober interface {
	Probe(ctx context.Context) ([]string, error)
}

// CommandProber runs an external command and parses whitespace-separated
// device names from its stdout.
type CommandProber struct {
	Command []string
	Timeout time.Duration
}

func (p CommandProber) Probe(ctx context.Context) ([]string, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("empty probe command")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("device probe %s: %w: %s", p.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return Normalize(strings.Fields(stdout.String())), nil
}

// Discover returns the available devices. A non-empty configured list wins;
// otherwise the prober is consulted, and on failure the CPU fallback is used.
func Discover(ctx context.Context, configured []string, p Prober) []string {
	if devs := Normalize(configured); len(devs) > 0 {
		return devs
	}
	if p != nil {
		devs, err := p.Probe(ctx)
		if err == nil && len(devs) > 0 {
			logger.Debug().Strs("devices", devs).Msg("device probe")
			return devs
		}
		if err != nil {
			logger.Warn().Err(err).Msg("device probe failed; falling back to CPU")
		}
	}
	return []string{Fallback}
}
