package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// outputTailBytes bounds the converter output kept for error reports.
const outputTailBytes = 4096

// ExecRunner runs commands with os/exec, logging their output line by line.
type ExecRunner struct {
	// Env is appended to the inherited environment.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Run executes argv and waits. Cancelling ctx interrupts the process and
// kills it if it does not exit promptly.
func (r ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 10 * time.Second

	tail := &tailBuffer{max: outputTailBytes}
	stdout := &lineLogger{level: zerolog.DebugLevel, stream: "stdout", tail: tail}
	stderr := &lineLogger{level: zerolog.InfoLevel, stream: "stderr", tail: tail}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.flush()
	stderr.flush()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w; output tail: %s", argv[0], err, tail.String())
	}
	return nil
}

// lineLogger logs complete lines written to it.
type lineLogger struct {
	level  zerolog.Level
	stream string
	tail   *tailBuffer
	buf    []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.tail.Write(p)
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		lw.emit(lw.buf[:idx])
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

func (lw *lineLogger) flush() {
	if len(lw.buf) > 0 {
		lw.emit(lw.buf)
		lw.buf = nil
	}
}

func (lw *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	logger.WithLevel(lw.level).Str("stream", lw.stream).Msg(string(line))
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b = append(t.b, p...)
	if len(t.b) > t.max {
		t.b = t.b[len(t.b)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.b))
}
