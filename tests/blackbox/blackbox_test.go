package blackbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cleanup := func() { _ = ln.Close() }
	return ln.Addr().(*net.TCPAddr).Port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds the binary")
	}
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as converter")
	}
	binPath := filepath.Join(t.TempDir(), "ovchat")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/ovchat")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// writeConverter creates a stand-in for optimum-cli that writes a converted
// model into its last argument.
func writeConverter(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake-optimum-cli")
	script := `#!/bin/sh
for last; do :; done
mkdir -p "$last"
printf '<net/>' > "$last/openvino_model.xml"
head -c 1048576 /dev/zero > "$last/openvino_model.bin"
`
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("write converter: %v", err)
	}
	return p
}

func completionServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"x ", "= ", "4"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":%q}]}\n\n", tok)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin string, env []string, args ...string) *serverProc {
	t.Helper()
	port, release := findFreePort(t)
	release()
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	base := "http://" + addr
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "serve", "--addr", addr}, args...)
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{cmd: cmd, base: base}
}

func do(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
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
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := t.TempDir()
	llm := completionServer(t)
	sp := startServer(t, bin,
		[]string{"OVCHAT_DEVICES=CPU", "OVCHAT_CONVERTER=" + writeConverter(t)},
		"--models-dir", modelsDir, "--server-url", llm.URL, "--offline",
	)

	resp, body := do(t, http.MethodGet, sp.base+"/models", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var models struct {
		Catalog []string `json:"catalog"`
		Local   []any    `json:"local"`
	}
	if err := json.Unmarshal(body, &models); err != nil {
		t.Fatalf("/models json: %v body=%s", err, body)
	}
	if len(models.Catalog) != 2 || len(models.Local) != 0 {
		t.Fatalf("models=%+v", models)
	}

	resp, _ = do(t, http.MethodGet, sp.base+"/readyz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz initial %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, sp.base+"/load", []byte(`{}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/load %d %s", resp.StatusCode, body)
	}
	var load struct {
		Dir    string `json:"dir"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(body, &load); err != nil {
		t.Fatalf("/load json: %v", err)
	}
	if load.Source != "convert" || filepath.Base(load.Dir) != "DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU" {
		t.Fatalf("load=%+v", load)
	}

	resp, body = do(t, http.MethodPost, sp.base+"/chat", []byte(`{"prompt":"solve the equation 2x = 8"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/chat %d %s", resp.StatusCode, body)
	}
	var text strings.Builder
	var done bool
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var c struct {
			Token string `json:"token"`
			Done  bool   `json:"done"`
		}
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			t.Fatalf("chunk %q: %v", sc.Text(), err)
		}
		text.WriteString(c.Token)
		done = done || c.Done
	}
	if text.String() != "x = 4" || !done {
		t.Fatalf("chat text=%q done=%v", text.String(), done)
	}

	resp, _ = do(t, http.MethodGet, sp.base+"/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz after load %d", resp.StatusCode)
	}
}

func TestBlackbox_ChatBeforeLoad_409(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, []string{"OVCHAT_DEVICES=CPU"}, "--models-dir", t.TempDir(), "--offline")

	resp, body := do(t, http.MethodPost, sp.base+"/chat", []byte(`{"prompt":"hi"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d, body=%s", resp.StatusCode, body)
	}
}

func TestBlackbox_InvalidTemperature_400(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, []string{"OVCHAT_DEVICES=CPU"}, "--models-dir", t.TempDir(), "--offline")

	resp, body := do(t, http.MethodPut, sp.base+"/session", []byte(`{"temperature":7}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, body)
	}
}
