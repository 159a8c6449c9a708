package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ovchat/internal/acquire"
	"ovchat/internal/httpapi"
	"ovchat/internal/hub"
	"ovchat/internal/manager"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

// fakeConverter stands in for optimum-cli: it writes a converted model into
// the output directory, which is the last argument.
type fakeConverter struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *fakeConverter) Run(_ context.Context, argv []string) error {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), argv...))
	c.mu.Unlock()
	dir := argv[len(argv)-1]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, acquire.MarkerFile), []byte("<net/>"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, acquire.WeightsFile), make([]byte, 1<<20), 0o644)
}

func (c *fakeConverter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// newCompletionServer serves /v1/models and a streaming /v1/completions that
// answers every prompt with the given tokens.
func newCompletionServer(t *testing.T, tokens ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Stream || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, tok := range tokens {
			b, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"text": tok}}})
			fmt.Fprintf(w, "data: %s\n\n", b)
			if fl != nil {
				fl.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"text\":\"\",\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newHubServer serves one repository with the given files.
func newHubServer(t *testing.T, repo string, files map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/api/models/") != repo {
			http.NotFound(w, r)
			return
		}
		var siblings []map[string]any
		for name, b := range files {
			siblings = append(siblings, map[string]any{"rfilename": name, "size": len(b)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": repo, "siblings": siblings})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutPrefix(r.URL.Path, "/"+repo+"/resolve/main/")
		b, found := files[name]
		if !ok || !found {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stack struct {
	api  *httptest.Server
	mgr  *manager.Manager
	conv *fakeConverter
	root string
}

// newStack wires the real resolver, manager and HTTP API against fakes for
// the converter, the hub and the inference server. An empty hubURL disables
// the hub.
func newStack(t *testing.T, hubURL string, tokens ...string) *stack {
	t.Helper()
	root := t.TempDir()
	conv := &fakeConverter{}
	var h acquire.Hub
	if hubURL != "" {
		h = hub.New(hubURL, "")
	}
	completions := newCompletionServer(t, tokens...)
	store := session.NewStore(session.Defaults(""), []string{"CPU", "GPU"}, []string{"GPU", "CPU"}, nil)
	mgr := manager.New(manager.Config{
		Store:       store,
		Acquirer:    acquire.NewResolver(conv, h),
		Backend:     pipeline.NewServerBackend(pipeline.ServerConfig{BaseURL: completions.URL}),
		ModelsRoot:  root,
		AllowRemote: true,
	})
	t.Cleanup(func() { _ = mgr.Close() })
	api := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(api.Close)
	return &stack{api: api, mgr: mgr, conv: conv, root: root}
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodPost, url, payload)
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return v
}

func readChunks(t *testing.T, b []byte) []types.ChatChunk {
	t.Helper()
	var out []types.ChatChunk
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		out = append(out, decode[types.ChatChunk](t, sc.Bytes()))
	}
	return out
}
