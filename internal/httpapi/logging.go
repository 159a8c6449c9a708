package httpapi

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var logger = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { logger = l }

// loggingLineWriter logs complete NDJSON lines at debug level.
type loggingLineWriter struct {
	buf []byte
	rid string
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if idx > 0 {
			logger.Debug().Str("request_id", lw.rid).RawJSON("line", lw.buf[:idx]).Msg("chat>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

var defaultLogLevel = LevelOff

// SetDefaultRequestLogLevel overrides the per-request logging default.
func SetDefaultRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestEvent starts a log event annotated with the request id.
func requestEvent(r *http.Request, ev *zerolog.Event) *zerolog.Event {
	ev = ev.Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	return ev
}
