package manager

import (
	"context"
	"errors"
	"io"
	"strings"

	"ovchat/internal/pipeline"
)

// ChatOptions override session values for one request.
type ChatOptions struct {
	// MaxNewTokens overrides the session limit when positive.
	MaxNewTokens int
	// Stop replaces the configured stop sequences when non-empty.
	Stop []string
}

// Chat forwards prompt to the open pipeline and writes each token to w as it
// is generated.
func (m *Manager) Chat(ctx context.Context, prompt string, w io.Writer) (pipeline.Result, error) {
	return m.Generate(ctx, prompt, ChatOptions{}, func(tok string) error {
		_, err := io.WriteString(w, tok)
		return err
	})
}

// Generate runs one generation with sampling taken from the current
// settings. Only one generation runs at a time; a concurrent call fails with
// a busy error rather than queueing.
func (m *Manager) Generate(ctx context.Context, prompt string, opts ChatOptions, onToken func(string) error) (pipeline.Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return pipeline.Result{}, invalidError{err: errors.New("prompt is empty")}
	}
	select {
	case m.genCh <- struct{}{}:
	default:
		return pipeline.Result{}, tooBusyError{what: "generation"}
	}
	defer func() { <-m.genCh }()

	m.mu.RLock()
	p := m.pipe
	var modelID string
	if m.loaded != nil {
		modelID = m.loaded.Settings.ModelID
	}
	m.mu.RUnlock()
	if p == nil {
		return pipeline.Result{}, ErrNotLoaded
	}

	cfg := m.generationConfig(opts)
	m.chatsTotal.Add(1)
	m.publish(Event{Name: EventChatStart, ModelID: modelID, Fields: map[string]any{"max_new_tokens": cfg.MaxNewTokens, "temperature": cfg.Temperature}})
	res, err := p.Generate(ctx, prompt, cfg, onToken)
	if err != nil {
		logger.Error().Err(err).Str("model", modelID).Msg("generation failed")
		m.publish(Event{Name: EventChatError, ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		return res, err
	}
	logger.Debug().Str("model", modelID).Int("tokens", res.Usage.CompletionTokens).Str("finish", res.FinishReason).Msg("generation done")
	m.publish(Event{Name: EventChatDone, ModelID: modelID, Fields: map[string]any{"tokens": res.Usage.CompletionTokens}})
	return res, nil
}

func (m *Manager) generationConfig(opts ChatOptions) pipeline.GenerationConfig {
	s := m.store.Current()
	cfg := pipeline.GenerationConfig{
		MaxNewTokens:  s.MaxNewTokens,
		Temperature:   float32(s.Temperature),
		TopP:          m.cfg.Sampling.TopP,
		TopK:          m.cfg.Sampling.TopK,
		RepeatPenalty: m.cfg.Sampling.RepeatPenalty,
		Stop:          m.cfg.Sampling.Stop,
	}
	if opts.MaxNewTokens > 0 {
		cfg.MaxNewTokens = opts.MaxNewTokens
	}
	if len(opts.Stop) > 0 {
		cfg.Stop = opts.Stop
	}
	return cfg
}
