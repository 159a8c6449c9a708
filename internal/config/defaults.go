package config

import (
	"fmt"
	"strings"

	"ovchat/internal/acquire"
	"ovchat/internal/hub"
	"ovchat/internal/session"
)

// Backend names.
const (
	BackendServer     = "server"
	BackendSubprocess = "subprocess"
	BackendLlama      = "llama"
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		ModelsDir:       "~/.cache/ovchat/models",
		LogLevel:        "info",
		Org:             session.DefaultOrg,
		DefaultModel:    session.DefaultModel,
		Models:          append([]string(nil), session.DefaultModels...),
		Variant:         string(acquire.INT4),
		Temperature:     session.DefaultTemperature,
		MaxNewTokens:    session.DefaultMaxNewTokens,
		HubURL:          hub.DefaultBaseURL,
		Converter:       acquire.DefaultConverter,
		Backend:         BackendServer,
		ServerURL:       "http://127.0.0.1:8000",
		ServerBin:       "ovms",
		TopP:            0.95,
		TopK:            40,
		RepeatPenalty:   1.1,
		MaxBodyBytes:    1 << 20,
		CORSMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		CORSHeaders:     []string{"Content-Type", "Authorization", "X-Log-Level"},
		RequestLogLevel: "info",
	}
}

// Merge overlays the non-zero fields of over onto base. Booleans can only be
// switched on.
func Merge(base, over Config) Config {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	list := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = append([]string(nil), v...)
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	flt := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	str(&base.Addr, over.Addr)
	str(&base.ModelsDir, over.ModelsDir)
	str(&base.LogLevel, over.LogLevel)
	str(&base.Org, over.Org)
	str(&base.DefaultModel, over.DefaultModel)
	list(&base.Models, over.Models)
	str(&base.Variant, over.Variant)
	str(&base.Device, over.Device)
	flt(&base.Temperature, over.Temperature)
	num(&base.MaxNewTokens, over.MaxNewTokens)
	list(&base.Devices, over.Devices)
	list(&base.DevicePreference, over.DevicePreference)
	list(&base.DeviceProbe, over.DeviceProbe)
	base.Offline = base.Offline || over.Offline
	str(&base.HubURL, over.HubURL)
	str(&base.Converter, over.Converter)
	base.TrustRemoteCode = base.TrustRemoteCode || over.TrustRemoteCode
	str(&base.Backend, over.Backend)
	str(&base.ServerURL, over.ServerURL)
	str(&base.ServerAPIPrefix, over.ServerAPIPrefix)
	str(&base.ServerAPIKey, over.ServerAPIKey)
	str(&base.ServerBin, over.ServerBin)
	list(&base.ServerArgs, over.ServerArgs)
	num(&base.ServerPortStart, over.ServerPortStart)
	num(&base.ServerPortEnd, over.ServerPortEnd)
	num(&base.LlamaCtx, over.LlamaCtx)
	num(&base.LlamaThreads, over.LlamaThreads)
	num(&base.LlamaGPULayers, over.LlamaGPULayers)
	str(&base.LlamaModelFile, over.LlamaModelFile)
	flt(&base.TopP, over.TopP)
	num(&base.TopK, over.TopK)
	flt(&base.RepeatPenalty, over.RepeatPenalty)
	list(&base.Stop, over.Stop)
	num(&base.ChatTimeoutSec, over.ChatTimeoutSec)
	if over.MaxBodyBytes != 0 {
		base.MaxBodyBytes = over.MaxBodyBytes
	}
	base.CORSEnabled = base.CORSEnabled || over.CORSEnabled
	list(&base.CORSOrigins, over.CORSOrigins)
	list(&base.CORSMethods, over.CORSMethods)
	list(&base.CORSHeaders, over.CORSHeaders)
	base.Swagger = base.Swagger || over.Swagger
	str(&base.RequestLogLevel, over.RequestLogLevel)
	return base
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if err := session.ValidateTemperature(c.Temperature); err != nil {
		return err
	}
	if _, err := acquire.ParseVariant(c.Variant); err != nil {
		return err
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive, got %d", c.MaxNewTokens)
	}
	switch strings.ToLower(c.Backend) {
	case BackendServer, BackendSubprocess, BackendLlama:
	default:
		return fmt.Errorf("unknown backend %q (want server, subprocess or llama)", c.Backend)
	}
	if c.ServerPortStart > 0 && c.ServerPortEnd < c.ServerPortStart {
		return fmt.Errorf("server port range %d-%d is empty", c.ServerPortStart, c.ServerPortEnd)
	}
	switch strings.ToLower(c.RequestLogLevel) {
	case "", "off", "error", "info", "debug":
	default:
		return fmt.Errorf("unknown request_log_level %q (want off, error, info or debug)", c.RequestLogLevel)
	}
	return nil
}
