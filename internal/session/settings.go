// Package session holds the user's model, device, compression and sampling
// selection. Settings is an immutable value; every change produces a new
// one, and the Store swaps it in only when it validates.
package session

import (
	"fmt"
	"math"
	"strings"

	"ovchat/internal/acquire"
)

const (
	DefaultOrg          = "deepseek-ai"
	DefaultModel        = "DeepSeek-R1-Distill-Qwen-1.5B"
	DefaultTemperature  = 0.7
	DefaultMaxNewTokens = 256
)

// DefaultModels is the catalog offered for selection.
var DefaultModels = []string{"DeepSeek-R1-Distill-Qwen-1.5B", "DeepSeek-R1-Distill-Qwen-7B"}

// Settings is one complete selection. Use the With* methods to derive a
// changed copy.
type Settings struct {
	Org          string          `json:"org"`
	ModelID      string          `json:"model"`
	Variant      acquire.Variant `json:"variant"`
	Device       string          `json:"device"`
	Temperature  float64         `json:"temperature"`
	MaxNewTokens int             `json:"max_new_tokens"`
}

// Defaults returns the initial settings for the given device.
func Defaults(device string) Settings {
	return Settings{
		Org:          DefaultOrg,
		ModelID:      DefaultModel,
		Variant:      acquire.INT4,
		Device:       device,
		Temperature:  DefaultTemperature,
		MaxNewTokens: DefaultMaxNewTokens,
	}
}

// ValidateTemperature accepts values in [0, 1].
func ValidateTemperature(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", t)
	}
	return nil
}

// WithTemperature returns a copy with the given temperature.
func (s Settings) WithTemperature(t float64) (Settings, error) {
	if err := ValidateTemperature(t); err != nil {
		return s, err
	}
	s.Temperature = t
	return s, nil
}

// WithModel returns a copy selecting modelID.
func (s Settings) WithModel(modelID string) (Settings, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return s, fmt.Errorf("model id is empty")
	}
	s.ModelID = modelID
	return s, nil
}

// WithVariant returns a copy selecting the named compression variant.
func (s Settings) WithVariant(name string) (Settings, error) {
	v, err := acquire.ParseVariant(name)
	if err != nil {
		return s, err
	}
	s.Variant = v
	return s, nil
}

// WithDevice returns a copy selecting device, which must be in available.
func (s Settings) WithDevice(device string, available []string) (Settings, error) {
	device = strings.ToUpper(strings.TrimSpace(device))
	for _, d := range available {
		if d == device {
			s.Device = device
			return s, nil
		}
	}
	return s, fmt.Errorf("device %s is not available", device)
}

// WithMaxNewTokens returns a copy with the generation length limit.
func (s Settings) WithMaxNewTokens(n int) (Settings, error) {
	if n <= 0 {
		return s, fmt.Errorf("max new tokens must be positive, got %d", n)
	}
	s.MaxNewTokens = n
	return s, nil
}

// Validate checks every field.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.ModelID) == "" {
		return fmt.Errorf("model id is empty")
	}
	if _, err := acquire.ParseVariant(string(s.Variant)); err != nil {
		return err
	}
	if err := ValidateTemperature(s.Temperature); err != nil {
		return err
	}
	if s.MaxNewTokens <= 0 {
		return fmt.Errorf("max new tokens must be positive, got %d", s.MaxNewTokens)
	}
	return nil
}

// Descriptor builds the acquisition target for these settings under root.
func (s Settings) Descriptor(root string) acquire.Descriptor {
	return acquire.Descriptor{
		Org:     s.Org,
		ModelID: s.ModelID,
		Variant: s.Variant,
		Device:  s.Device,
		Dir:     acquire.DirFor(root, s.ModelID, s.Variant, s.Device),
	}
}
