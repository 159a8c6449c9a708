package manager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"ovchat/internal/acquire"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
)

// fakeAcquirer returns d.Dir without touching the filesystem.
type fakeAcquirer struct {
	mu    sync.Mutex
	err   error
	calls []acquire.Descriptor
}

func (f *fakeAcquirer) Acquire(ctx context.Context, d acquire.Descriptor, allowRemote bool) (acquire.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	if f.err != nil {
		return acquire.Result{}, f.err
	}
	return acquire.Result{Dir: d.Dir, Source: acquire.SourceLocal}, nil
}

func (f *fakeAcquirer) ConversionArgs(d acquire.Descriptor) []string {
	return []string{"optimum-cli", "export", "openvino", "--model", d.SourceID(), d.Dir}
}

// fakeBackend opens fakePipelines.
type fakeBackend struct {
	mu      sync.Mutex
	openErr error
	tokens  []string
	block   chan struct{}
	opened  []*fakePipeline
}

func (b *fakeBackend) Open(modelPath, device string) (pipeline.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	p := &fakePipeline{path: modelPath, device: device, tokens: b.tokens, block: b.block, started: make(chan struct{}, 1)}
	b.opened = append(b.opened, p)
	return p, nil
}

type fakePipeline struct {
	path, device string
	tokens       []string
	block        chan struct{}
	started      chan struct{}

	mu      sync.Mutex
	closed  bool
	lastCfg pipeline.GenerationConfig
}

func (p *fakePipeline) Generate(ctx context.Context, prompt string, cfg pipeline.GenerationConfig, onToken func(string) error) (pipeline.Result, error) {
	p.mu.Lock()
	p.lastCfg = cfg
	p.mu.Unlock()
	select {
	case p.started <- struct{}{}:
	default:
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return pipeline.Result{}, ctx.Err()
		}
	}
	var out string
	for _, t := range p.tokens {
		if err := onToken(t); err != nil {
			if errors.Is(err, pipeline.ErrStopGeneration) {
				break
			}
			return pipeline.Result{}, err
		}
		out += t
	}
	return pipeline.Result{Content: out, FinishReason: "stop", Usage: pipeline.Usage{CompletionTokens: len(p.tokens)}}, nil
}

func (p *fakePipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func newTestManager(t *testing.T, acq *fakeAcquirer, be *fakeBackend) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher(0)
	store := session.NewStore(session.Defaults(""), []string{"CPU", "GPU"}, nil, nil)
	m := New(Config{
		Store:      store,
		Acquirer:   acq,
		Backend:    be,
		ModelsRoot: filepath.Join(t.TempDir(), "models"),
		Publisher:  pub,
	})
	return m, pub
}
