package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ovchat/internal/acquire"
	"ovchat/internal/config"
	"ovchat/internal/device"
	"ovchat/internal/httpapi"
	"ovchat/internal/hub"
	"ovchat/internal/manager"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
)

// options holds the persistent flags. Only flags the user set override the
// file and environment.
type options struct {
	configPath string
	envFile    string
	logLevel   string
	modelsDir  string
	model      string
	variant    string
	device     string
	backend    string
	serverURL  string
	offline    bool
	temp       float64

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "ovchat",
		Short:         "Convert, load and chat with DeepSeek models on OpenVINO devices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&o.envFile, "env-file", ".env", "Dotenv file loaded before reading OVCHAT_* variables")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&o.modelsDir, "models-dir", "", "Directory holding converted models")
	pf.StringVar(&o.model, "model", "", "Model id, e.g. DeepSeek-R1-Distill-Qwen-1.5B")
	pf.StringVar(&o.variant, "variant", "", "Compression variant: INT4|INT8|FP16")
	pf.StringVar(&o.device, "device", "", "Inference device: CPU|GPU|NPU")
	pf.StringVar(&o.backend, "backend", "", "Inference backend: server|subprocess|llama")
	pf.StringVar(&o.serverURL, "server-url", "", "Base URL of the completion server (server backend)")
	pf.BoolVar(&o.offline, "offline", false, "Never download from the hub")
	pf.Float64Var(&o.temp, "temperature", 0, "Sampling temperature in [0,1]")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := o.resolve(cmd, os.Getenv)
		if err != nil {
			return err
		}
		o.cfg = cfg
		o.log = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
		installLogger(o.log)
		return nil
	}

	root.AddCommand(
		newDevicesCmd(o),
		newModelsCmd(o),
		newCommandCmd(o),
		newAcquireCmd(o),
		newSizeCmd(o),
		newChatCmd(o),
		newServeCmd(o),
		newVersionCmd(),
	)
	return root
}

// resolve layers defaults, config file, environment and flags.
func (o *options) resolve(cmd *cobra.Command, getenv func(string) string) (config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.Config{}, err
	}
	cfg := config.Defaults()
	if o.configPath != "" {
		fileCfg, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = config.Merge(cfg, fileCfg)
	}
	cfg, err := config.ApplyEnv(cfg, getenv)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { cfg.LogLevel = o.logLevel })
	set("models-dir", func() { cfg.ModelsDir = o.modelsDir })
	set("model", func() { cfg.DefaultModel = o.model })
	set("variant", func() { cfg.Variant = o.variant })
	set("device", func() { cfg.Device = o.device })
	set("backend", func() { cfg.Backend = o.backend })
	set("server-url", func() { cfg.ServerURL = o.serverURL })
	set("offline", func() { cfg.Offline = o.offline })
	set("temperature", func() { cfg.Temperature = o.temp })
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func installLogger(l zerolog.Logger) {
	acquire.SetLogger(l.With().Str("pkg", "acquire").Logger())
	device.SetLogger(l.With().Str("pkg", "device").Logger())
	hub.SetLogger(l.With().Str("pkg", "hub").Logger())
	pipeline.SetLogger(l.With().Str("pkg", "pipeline").Logger())
	session.SetLogger(l.With().Str("pkg", "session").Logger())
	manager.SetLogger(l.With().Str("pkg", "manager").Logger())
	httpapi.SetLogger(l.With().Str("pkg", "http").Logger())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip config resolution.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("ovchat", version)
		},
	}
}
