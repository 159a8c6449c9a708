// Package pipeline abstracts the local inference runtime. A Backend opens a
// converted model directory on a device; the resulting Pipeline streams
// generated tokens through a callback.
//
// Backends:
//
//   - server: an already running OpenAI-compatible completion server
//     (OpenVINO Model Server, llama-server, ...).
//   - subprocess: spawns such a server per opened model and stops it on Close.
//   - llama: in-process go-llama.cpp, enabled with `-tags=llama`. Without the
//     tag a stub returns a dependency-unavailable error.
package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

// Backend constructs pipelines.
type Backend interface {
	// Open loads the model at modelPath for inference on device.
	Open(modelPath, device string) (Pipeline, error)
}

// Pipeline is a loaded model.
type Pipeline interface {
	// Generate streams tokens for prompt to onToken. Returning an error from
	// onToken stops generation; ErrStopGeneration stops it without failing.
	// Implementations must return when ctx is canceled.
	Generate(ctx context.Context, prompt string, cfg GenerationConfig, onToken func(string) error) (Result, error)
	// Close releases the model.
	Close() error
}

// GenerationConfig carries sampling parameters.
type GenerationConfig struct {
	MaxNewTokens  int      `json:"max_new_tokens"`
	Temperature   float32  `json:"temperature"`
	TopP          float32  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
}

// Result summarizes a finished generation.
type Result struct {
	Content      string `json:"content"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrStopGeneration may be returned by a token callback to end generation
// early without an error.
var ErrStopGeneration = errors.New("stop generation")

// dependencyUnavailableError signals a missing runtime (binary, server or
// build tag).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependency-unavailable error.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// collector wraps onToken to accumulate content and count tokens. A
// ErrStopGeneration from onToken is reported via stopped.
type collector struct {
	onToken func(string) error
	content []byte
	tokens  int
	stopped bool
}

func (c *collector) emit(tok string) error {
	if tok == "" {
		return nil
	}
	c.content = append(c.content, tok...)
	c.tokens++
	if c.onToken == nil {
		return nil
	}
	if err := c.onToken(tok); err != nil {
		if errors.Is(err, ErrStopGeneration) {
			c.stopped = true
		}
		return err
	}
	return nil
}

// finish builds the Result, folding a clean stop into success.
func (c *collector) finish(r Result, err error) (Result, error) {
	if r.Content == "" {
		r.Content = string(c.content)
	}
	if r.Usage.CompletionTokens == 0 {
		r.Usage.CompletionTokens = c.tokens
		r.Usage.TotalTokens = r.Usage.PromptTokens + c.tokens
	}
	if c.stopped {
		r.FinishReason = "stop"
		return r, nil
	}
	return r, err
}
