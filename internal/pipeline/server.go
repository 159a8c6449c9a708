package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// API path prefixes of the supported completion servers. OpenVINO Model
// Server serves its OpenAI-compatible endpoints under /v3.
const (
	DefaultAPIPrefix = "/v1"
	OVMSAPIPrefix    = "/v3"
)

// ServerConfig configures the server backend.
type ServerConfig struct {
	BaseURL string
	// APIPrefix is prepended to /models and /completions. Empty means
	// DefaultAPIPrefix.
	APIPrefix      string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// ModelName overrides the model field sent to the server. Empty means the
	// base name of the opened model directory.
	ModelName string
}

// serverBackend talks to an OpenAI-compatible completion server over HTTP.
type serverBackend struct {
	cfg        ServerConfig
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// NewServerBackend constructs a server-backed Backend.
func NewServerBackend(cfg ServerConfig) Backend {
	return &serverBackend{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		prefix:     apiPrefix(cfg.APIPrefix, DefaultAPIPrefix),
		httpClient: newHTTPClient(cfg.ConnectTimeout),
	}
}

// apiPrefix normalizes p to "/x" form; empty selects def.
func apiPrefix(p, def string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return def
	}
	return "/" + p
}

func newHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: every request carries its own context deadline.
	return &http.Client{Transport: tr, Timeout: 0}
}

func (b *serverBackend) Open(modelPath, device string) (Pipeline, error) {
	if b.baseURL == "" {
		return nil, ErrDependencyUnavailable("inference server url not configured")
	}
	name := b.cfg.ModelName
	if name == "" && strings.TrimSpace(modelPath) != "" {
		name = filepath.Base(modelPath)
	}
	if !healthy(b.httpClient, b.baseURL+b.prefix, b.cfg.APIKey, 2*time.Second) {
		return nil, ErrDependencyUnavailable("inference server not reachable at " + b.baseURL)
	}
	logger.Info().Str("url", b.baseURL).Str("model", name).Str("device", device).Msg("pipeline opened")
	return &serverPipeline{
		baseURL:    b.baseURL,
		prefix:     b.prefix,
		apiKey:     b.cfg.APIKey,
		model:      name,
		reqTimeout: b.cfg.RequestTimeout,
		httpClient: b.httpClient,
	}, nil
}

// healthy checks that the server answers GET <apiBase>/models with 2xx.
func healthy(cli *http.Client, apiBase, apiKey string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/models", nil)
	if err != nil {
		return false
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := cli.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// serverPipeline streams completions from one server-side model.
type serverPipeline struct {
	baseURL    string
	prefix     string
	apiKey     string
	model      string
	reqTimeout time.Duration
	httpClient *http.Client
}

// completionRequest is the payload for <prefix>/completions.
type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stream      bool     `json:"stream"`
	// Not standard OpenAI; servers that do not know it ignore it.
	RepeatPenalty float32 `json:"repeat_penalty,omitempty"`
}

// streamChoice is the subset of a streamed chunk we read. Completion servers
// put text in "text"; chat-style servers in "delta.content".
type streamChoice struct {
	Text  string `json:"text"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

func (p *serverPipeline) Generate(ctx context.Context, prompt string, cfg GenerationConfig, onToken func(string) error) (Result, error) {
	if p.httpClient == nil {
		return Result{}, errors.New("server pipeline not initialized")
	}
	if p.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.reqTimeout)
		defer cancel()
	}
	payload := completionRequest{
		Model:         p.model,
		Prompt:        prompt,
		MaxTokens:     cfg.MaxNewTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		Stop:          cfg.Stop,
		Seed:          cfg.Seed,
		Stream:        true,
		RepeatPenalty: cfg.RepeatPenalty,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.prefix+"/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	c := &collector{onToken: onToken}
	final, err := readStream(ctx, resp.Body, c)
	return c.finish(final, err)
}

// UpstreamError is a non-2xx answer from the completion server.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference server http error: %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// StatusCode reports every upstream failure as 502 Bad Gateway.
func (e *UpstreamError) StatusCode() int { return http.StatusBadGateway }

// readStream parses Server-Sent Events ("data: {...}" lines, "[DONE]"
// terminator) and forwards text fragments to c.
func readStream(ctx context.Context, body io.Reader, c *collector) (Result, error) {
	r := bufio.NewReader(body)
	var final Result
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); l != "" && strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				return final, nil
			}
			var chunk streamChunk
			if e := json.Unmarshal([]byte(data), &chunk); e != nil {
				logger.Debug().Str("line", l).Msg("unparsed stream line")
			} else {
				if chunk.Usage != nil {
					final.Usage = *chunk.Usage
				}
				if len(chunk.Choices) > 0 {
					ch := chunk.Choices[0]
					frag := ch.Text
					if frag == "" {
						frag = ch.Delta.Content
					}
					if cbErr := c.emit(frag); cbErr != nil {
						return final, cbErr
					}
					if ch.FinishReason != "" {
						final.FinishReason = ch.FinishReason
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return final, nil
			}
			if ctx.Err() != nil {
				return final, ctx.Err()
			}
			return final, err
		}
	}
}

func (p *serverPipeline) Close() error { return nil }
