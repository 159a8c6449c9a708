package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ovchat/internal/httpapi"
)

func newServeCmd(o *options) *cobra.Command {
	var (
		addr     string
		loadNow  bool
		shutdown time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := o.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			ctx := cmd.Context()
			m, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			httpapi.Configure(httpapi.Options{
				MaxBodyBytes: cfg.MaxBodyBytes,
				ChatTimeout:  time.Duration(cfg.ChatTimeoutSec) * time.Second,
				CORS: httpapi.CORSOptions{
					Enabled: cfg.CORSEnabled,
					Origins: cfg.CORSOrigins,
					Methods: cfg.CORSMethods,
					Headers: cfg.CORSHeaders,
				},
				Swagger:         cfg.Swagger,
				RequestLogLevel: strings.ToLower(cfg.RequestLogLevel),
			})
			httpapi.SetBaseContext(ctx)

			if report := m.SanityCheck(); !report.OK() {
				o.log.Warn().Strs("problems", report.Errors).Msg("sanity check")
			}
			if loadNow {
				if _, err := m.Load(ctx); err != nil {
					o.log.Error().Err(err).Msg("initial load failed")
				}
			}

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(m),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				o.log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Str("backend", cfg.Backend).Msg("ovchat listening")
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				o.log.Info().Msg("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdown)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					o.log.Warn().Err(err).Msg("graceful shutdown error")
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().BoolVar(&loadNow, "load", false, "Acquire and load the selected model before serving")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	return cmd
}
