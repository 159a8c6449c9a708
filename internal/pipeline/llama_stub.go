//go:build !llama

package pipeline

// LlamaConfig configures the in-process backend.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	GPULayers   int
	ModelFile   string
}

// LlamaAvailable reports whether this binary was built with in-process
// inference.
const LlamaAvailable = false

type llamaBackend struct{}

// NewLlamaBackend returns a backend that refuses to open models. Build with
// -tags=llama for in-process inference.
func NewLlamaBackend(LlamaConfig) Backend { return llamaBackend{} }

func (llamaBackend) Open(string, string) (Pipeline, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
