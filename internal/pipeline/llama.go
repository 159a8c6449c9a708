//go:build llama

package pipeline

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaConfig configures the in-process backend.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	// GPULayers is offloaded when the device is GPU.
	GPULayers int
	// ModelFile selects the GGUF file; see ResolveGGUF.
	ModelFile string
}

// LlamaAvailable reports whether this binary was built with in-process
// inference.
const LlamaAvailable = true

type llamaBackend struct {
	cfg LlamaConfig
}

// NewLlamaBackend constructs the in-process go-llama.cpp backend.
func NewLlamaBackend(cfg LlamaConfig) Backend {
	return &llamaBackend{cfg: cfg}
}

func (b *llamaBackend) Open(modelPath, device string) (Pipeline, error) {
	file, err := ResolveGGUF(modelPath, b.cfg.ModelFile)
	if err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{llama.SetContext(zn(b.cfg.ContextSize, 2048))}
	if strings.EqualFold(device, "GPU") && b.cfg.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(b.cfg.GPULayers))
	}
	m, err := llama.New(file, mo...)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", file).Str("device", device).Msg("llama model loaded")
	return &llamaPipeline{model: m, threads: b.cfg.Threads}, nil
}

type llamaPipeline struct {
	model   *llama.LLama
	threads int
}

func (p *llamaPipeline) Generate(ctx context.Context, prompt string, cfg GenerationConfig, onToken func(string) error) (Result, error) {
	if p.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	c := &collector{onToken: onToken}
	var cbErr error
	p.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := c.emit(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	_, err := p.model.Predict(prompt, predictOptions(cfg, p.threads)...)
	if ctx.Err() != nil {
		return c.finish(Result{}, ctx.Err())
	}
	if cbErr != nil {
		return c.finish(Result{}, cbErr)
	}
	if err != nil {
		return Result{}, err
	}
	return c.finish(Result{FinishReason: "stop"}, nil)
}

func (p *llamaPipeline) Close() error {
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions maps a GenerationConfig onto go-llama.cpp options.
func predictOptions(cfg GenerationConfig, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(cfg.MaxNewTokens, 1)),
		llama.SetThreads(zn(threads, 1)),
		llama.SetTopP(zf(cfg.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(cfg.TopK, llama.DefaultOptions.TopK)),
		// Temperature 0 is a valid greedy setting here.
		llama.SetTemperature(cfg.Temperature),
		llama.SetPenalty(zf(cfg.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if cfg.Seed != 0 {
		po = append(po, llama.SetSeed(cfg.Seed))
	}
	if len(cfg.Stop) > 0 {
		po = append(po, llama.SetStopWords(cfg.Stop...))
	}
	return po
}
