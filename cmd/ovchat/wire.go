package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ovchat/internal/acquire"
	"ovchat/internal/common/fsutil"
	"ovchat/internal/config"
	"ovchat/internal/device"
	"ovchat/internal/hub"
	"ovchat/internal/manager"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
)

const (
	probeTimeout     = 10 * time.Second
	progressInterval = 5 * time.Second
)

// discoverDevices returns the available devices per cfg.
func discoverDevices(ctx context.Context, cfg config.Config) []string {
	probe := cfg.DeviceProbe
	if len(probe) == 0 {
		probe = device.DefaultProbeCommand
	}
	return device.Discover(ctx, cfg.Devices, device.CommandProber{Command: probe, Timeout: probeTimeout})
}

// newStore builds the session store with the configured defaults.
func newStore(cfg config.Config, available []string) (*session.Store, error) {
	v, err := acquire.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	initial := session.Defaults(strings.ToUpper(strings.TrimSpace(cfg.Device)))
	if cfg.Org != "" {
		initial.Org = cfg.Org
	}
	if cfg.DefaultModel != "" {
		initial.ModelID = cfg.DefaultModel
	}
	initial.Variant = v
	initial.Temperature = cfg.Temperature
	initial.MaxNewTokens = cfg.MaxNewTokens
	store := session.NewStore(initial, available, cfg.DevicePreference, cfg.Models)
	if err := store.Current().Validate(); err != nil {
		return nil, err
	}
	return store, nil
}

func newResolver(cfg config.Config) *acquire.Resolver {
	var h acquire.Hub
	if !cfg.Offline {
		c := hub.New(cfg.HubURL, hub.TokenFromEnv())
		c.Progress = hub.LogProgress(progressInterval)
		h = c
	}
	r := acquire.NewResolver(acquire.ExecRunner{}, h)
	if cfg.Converter != "" {
		r.Converter = cfg.Converter
	}
	r.TrustRemoteCode = cfg.TrustRemoteCode
	return r
}

// newBackend selects the inference backend named by cfg.Backend.
func newBackend(cfg config.Config) (pipeline.Backend, error) {
	reqTimeout := time.Duration(cfg.ChatTimeoutSec) * time.Second
	switch strings.ToLower(cfg.Backend) {
	case config.BackendServer, "":
		return pipeline.NewServerBackend(pipeline.ServerConfig{
			BaseURL:        cfg.ServerURL,
			APIPrefix:      cfg.ServerAPIPrefix,
			APIKey:         cfg.ServerAPIKey,
			RequestTimeout: reqTimeout,
		}), nil
	case config.BackendSubprocess:
		return pipeline.NewSubprocessBackend(pipeline.SubprocessConfig{
			Bin:            cfg.ServerBin,
			Args:           cfg.ServerArgs,
			APIPrefix:      cfg.ServerAPIPrefix,
			PortStart:      cfg.ServerPortStart,
			PortEnd:        cfg.ServerPortEnd,
			RequestTimeout: reqTimeout,
		}), nil
	case config.BackendLlama:
		return pipeline.NewLlamaBackend(pipeline.LlamaConfig{
			ContextSize: cfg.LlamaCtx,
			Threads:     cfg.LlamaThreads,
			GPULayers:   cfg.LlamaGPULayers,
			ModelFile:   cfg.LlamaModelFile,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// newManager wires device discovery, the session store, acquisition and the
// backend into a Manager.
func newManager(ctx context.Context, cfg config.Config) (*manager.Manager, error) {
	root, err := fsutil.ResolveDir(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg, discoverDevices(ctx, cfg))
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return manager.New(manager.Config{
		Store:       store,
		Acquirer:    newResolver(cfg),
		Backend:     backend,
		ModelsRoot:  root,
		AllowRemote: !cfg.Offline,
		Converter:   cfg.Converter,
		Sampling: manager.Sampling{
			TopP:          float32(cfg.TopP),
			TopK:          cfg.TopK,
			RepeatPenalty: float32(cfg.RepeatPenalty),
			Stop:          cfg.Stop,
		},
		Publisher: manager.LogPublisher{},
	}), nil
}
