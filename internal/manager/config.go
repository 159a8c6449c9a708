package manager

import (
	"context"

	"ovchat/internal/acquire"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
)

// Acquirer resolves a descriptor into a converted model directory.
// *acquire.Resolver implements it.
type Acquirer interface {
	Acquire(ctx context.Context, d acquire.Descriptor, allowRemote bool) (acquire.Result, error)
	ConversionArgs(d acquire.Descriptor) []string
}

// Sampling defaults applied when Config.Sampling fields are unset.
const (
	defaultTopP          = 0.95
	defaultTopK          = 40
	defaultRepeatPenalty = 1.1
)

// Sampling holds generation parameters that are not part of the session.
type Sampling struct {
	TopP          float32
	TopK          int
	RepeatPenalty float32
	Stop          []string
}

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Store    *session.Store
	Acquirer Acquirer
	Backend  pipeline.Backend
	// ModelsRoot holds one directory per model/variant/device.
	ModelsRoot string
	// AllowRemote enables hub downloads when Load is called without an
	// explicit choice.
	AllowRemote bool
	// Converter is checked on PATH by SanityCheck. Empty means optimum-cli.
	Converter string
	Sampling  Sampling
	Publisher EventPublisher
}

// New constructs a Manager from cfg.
func New(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = session.NewStore(session.Defaults(""), nil, nil, nil)
	}
	if cfg.Converter == "" {
		cfg.Converter = acquire.DefaultConverter
	}
	if cfg.Sampling.TopP <= 0 {
		cfg.Sampling.TopP = defaultTopP
	}
	if cfg.Sampling.TopK <= 0 {
		cfg.Sampling.TopK = defaultTopK
	}
	if cfg.Sampling.RepeatPenalty <= 0 {
		cfg.Sampling.RepeatPenalty = defaultRepeatPenalty
	}
	m := &Manager{
		cfg:       cfg,
		store:     cfg.Store,
		state:     StateIdle,
		genCh:     make(chan struct{}, 1),
		publisher: noopPublisher{},
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	}
	m.startTime = timeNow()
	return m
}
