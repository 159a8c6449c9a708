package pipeline

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultServerArgs launches OpenVINO Model Server for a single model.
var DefaultServerArgs = []string{
	"--rest_bind_address", "{host}",
	"--rest_port", "{port}",
	"--model_path", "{model}",
	"--model_name", "{name}",
	"--target_device", "{device}",
	"--task", "text_generation",
}

// SubprocessConfig configures the subprocess backend.
type SubprocessConfig struct {
	// Bin is the server executable.
	Bin string
	// Args is the argv template. {model}, {name}, {device}, {host} and {port}
	// are substituted. Empty means DefaultServerArgs.
	Args      []string
	Host      string
	PortStart int
	PortEnd   int
	// APIPrefix of the spawned server. Empty means OVMSAPIPrefix.
	APIPrefix string
	// ReadyTimeout bounds the wait for <prefix>/models to answer. Default 60s.
	ReadyTimeout   time.Duration
	RequestTimeout time.Duration
}

type subprocessBackend struct {
	cfg SubprocessConfig
}

// NewSubprocessBackend constructs a Backend that spawns one server per
// opened model.
func NewSubprocessBackend(cfg SubprocessConfig) Backend {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if len(cfg.Args) == 0 {
		cfg.Args = DefaultServerArgs
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	cfg.APIPrefix = apiPrefix(cfg.APIPrefix, OVMSAPIPrefix)
	return &subprocessBackend{cfg: cfg}
}

// expandArgs substitutes placeholders in the argv template.
func expandArgs(tmpl []string, vars map[string]string) []string {
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

func (b *subprocessBackend) Open(modelPath, device string) (Pipeline, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	bin := strings.TrimSpace(b.cfg.Bin)
	if bin == "" {
		return nil, ErrDependencyUnavailable("inference server binary not configured")
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("inference server binary %q not found: %v", bin, err))
	}
	var port int
	var err error
	if b.cfg.PortStart > 0 && b.cfg.PortEnd >= b.cfg.PortStart {
		port, err = pickPortInRange(b.cfg.Host, b.cfg.PortStart, b.cfg.PortEnd)
	} else {
		port, err = pickFreePort(b.cfg.Host)
	}
	if err != nil {
		return nil, err
	}
	name := modelName(modelPath)
	args := expandArgs(b.cfg.Args, map[string]string{
		"model":  modelPath,
		"name":   name,
		"device": device,
		"host":   b.cfg.Host,
		"port":   strconv.Itoa(port),
	})
	baseURL := fmt.Sprintf("http://%s:%d", b.cfg.Host, port)

	cmd := exec.Command(bin, args...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start inference server: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Info().Str("model", modelPath).Str("device", device).Int("pid", pid).Int("port", port).Msg("inference server started")

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	cli := newHTTPClient(0)
	deadline := time.Now().Add(b.cfg.ReadyTimeout)
	for {
		if time.Now().After(deadline) {
			stopProcess(cmd, waitErr)
			logger.Warn().Int("pid", pid).Msg("inference server readiness timeout")
			return nil, fmt.Errorf("inference server not ready in time: %s", baseURL)
		}
		select {
		case werr := <-waitErr:
			logger.Warn().Int("pid", pid).AnErr("exit", werr).Msg("inference server exited before ready")
			if werr == nil {
				return nil, fmt.Errorf("inference server exited before ready: %s", baseURL)
			}
			return nil, fmt.Errorf("inference server exited early: %v; stderr tail: %s", werr, stderr.String())
		default:
		}
		if healthy(cli, baseURL+b.cfg.APIPrefix, "", time.Second) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Info().Int("pid", pid).Str("url", baseURL).Msg("inference server ready")
	return &subprocessPipeline{
		serverPipeline: serverPipeline{
			baseURL:    baseURL,
			prefix:     b.cfg.APIPrefix,
			model:      name,
			reqTimeout: b.cfg.RequestTimeout,
			httpClient: cli,
		},
		cmd:     cmd,
		waitErr: waitErr,
	}, nil
}

// subprocessPipeline owns a spawned server for its lifetime.
type subprocessPipeline struct {
	serverPipeline
	once    sync.Once
	cmd     *exec.Cmd
	waitErr chan error
}

// PID returns the server process id.
func (p *subprocessPipeline) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close terminates the server: interrupt first, kill after two seconds.
func (p *subprocessPipeline) Close() error {
	p.once.Do(func() {
		stopProcess(p.cmd, p.waitErr)
		logger.Info().Str("url", p.baseURL).Msg("inference server stopped")
	})
	return nil
}

func stopProcess(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-waitErr:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

func modelName(modelPath string) string {
	p := strings.TrimRight(modelPath, "/\\")
	if i := strings.LastIndexAny(p, "/\\"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
