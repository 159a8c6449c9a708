package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ovchat/internal/manager"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Catalog() []string
	ListModels() ([]types.Model, error)
	Devices() types.DevicesResponse
	Settings() session.Settings
	UpdateSession(u types.SessionUpdate) (session.Settings, error)
	AllowRemote() bool
	LoadWith(ctx context.Context, allowRemote bool) (*manager.Loaded, error)
	Generate(ctx context.Context, prompt string, opts manager.ChatOptions, onToken func(string) error) (pipeline.Result, error)
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsOpts.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOpts.Origins,
			AllowedMethods: corsOpts.Methods,
			AllowedHeaders: corsOpts.Headers,
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		local, err := svc.ListModels()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if local == nil {
			local = []types.Model{}
		}
		writeJSON(w, types.ModelsResponse{Catalog: svc.Catalog(), Local: local})
	})

	r.Get("/devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Devices())
	})

	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manager.SessionView(svc.Settings()))
	})

	r.Put("/session", func(w http.ResponseWriter, r *http.Request) {
		var u types.SessionUpdate
		if !decodeJSON(w, r, &u, true) {
			return
		}
		s, err := svc.UpdateSession(u)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, manager.SessionView(s))
	})

	r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		allow := svc.AllowRemote()
		if req.AllowRemote != nil {
			allow = *req.AllowRemote
		}
		start := time.Now()
		ctx, cancel := operationContext(r, 0)
		defer cancel()
		loaded, err := svc.LoadWith(ctx, allow)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("load_in_progress")
			}
			requestEvent(r, logger.Warn()).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("load failed")
			writeJSONError(w, status, err.Error())
			return
		}
		requestEvent(r, logger.Info()).Str("dir", loaded.Dir).Str("source", loaded.Source).Dur("dur", time.Since(start)).Msg("load done")
		writeJSON(w, types.LoadResponse{Dir: loaded.Dir, Source: loaded.Source, Command: loaded.Command, Device: loaded.Device, SizeMB: loaded.SizeMB})
	})

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		serveChat(svc, w, r, req)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not loaded"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if swaggerEnabled {
		MountSwagger(r)
	}
	return r
}

// decodeJSON decodes the request body into v. When required is false an
// empty body is accepted. It writes the error response and returns false on
// failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, required bool) bool {
	if r.ContentLength == 0 && !required {
		return true
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) && !required {
			return true
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// serveChat streams tokens as NDJSON. Errors before the first token map to
// an HTTP status; later errors end the stream with an error line.
func serveChat(svc Service, w http.ResponseWriter, r *http.Request, req types.ChatRequest) {
	ctx, cancel := operationContext(r, time.Duration(chatTimeout)*time.Second)
	defer cancel()

	lvl := requestLogLevel(r)
	var out io.Writer = w
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{rid: middleware.GetReqID(r.Context())})
	}
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(out)
	started := false
	writeChunk := func(c types.ChatChunk) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(c); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	start := time.Now()
	if lvl >= LevelInfo {
		requestEvent(r, logger.Info()).Int("prompt_len", len(req.Prompt)).Msg("chat start")
	}
	res, err := svc.Generate(ctx, req.Prompt, manager.ChatOptions{MaxNewTokens: req.MaxNewTokens, Stop: req.Stop}, func(tok string) error {
		chatTokensTotal.Inc()
		return writeChunk(types.ChatChunk{Token: tok})
	})
	if err != nil {
		if r.Context().Err() != nil {
			chatRequestsTotal.WithLabelValues("canceled").Inc()
			return
		}
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("generation_in_progress")
		}
		chatRequestsTotal.WithLabelValues("error").Inc()
		if lvl >= LevelError {
			requestEvent(r, logger.Error()).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("chat end")
		}
		if !started {
			writeJSONError(w, status, err.Error())
			return
		}
		_ = writeChunk(types.ChatChunk{Done: true, Error: err.Error()})
		return
	}
	chatRequestsTotal.WithLabelValues("ok").Inc()
	_ = writeChunk(types.ChatChunk{Done: true, FinishReason: res.FinishReason, CompletionTokens: res.Usage.CompletionTokens})
	if lvl >= LevelInfo {
		requestEvent(r, logger.Info()).Int("tokens", res.Usage.CompletionTokens).Dur("dur", time.Since(start)).Msg("chat end")
	}
}
