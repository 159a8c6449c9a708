// Package acquire decides how a converted model ends up on disk: reuse a
// local conversion, download a preconverted copy from the hub, or run the
// conversion CLI.
package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ovchat/internal/common/fsutil"
)

const (
	// MarkerFile marks a directory as already converted.
	MarkerFile = "openvino_model.xml"
	// WeightsFile holds the converted weights.
	WeightsFile = "openvino_model.bin"
	// HubOrg owns the preconverted repositories.
	HubOrg = "OpenVINO"
)

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

// Hub is the remote registry of preconverted models.
type Hub interface {
	RepoExists(ctx context.Context, repo string) (bool, error)
	SnapshotDownload(ctx context.Context, repo, dir string) error
}

// Runner executes an external command synchronously. A non-zero exit must
// be returned as an error.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// Descriptor names one model conversion target.
type Descriptor struct {
	Org     string
	ModelID string
	Variant Variant
	Device  string
	Dir     string
}

// SourceID is the upstream repository id, e.g. "deepseek-ai/DeepSeek-R1-Distill-Qwen-1.5B".
func (d Descriptor) SourceID() string {
	if d.Org == "" {
		return d.ModelID
	}
	return d.Org + "/" + d.ModelID
}

// DirFor returns the conventional directory for a model/variant/device
// triple under root.
func DirFor(root, modelID string, v Variant, device string) string {
	return filepath.Join(root, fmt.Sprintf("%s-%s-%s", modelID, v, device))
}

// HubID derives the preconverted repository id for a source model id and
// precision, e.g. "OpenVINO/DeepSeek-R1-Distill-Qwen-1.5B-int4-cw-ov".
func HubID(sourceModelID, precision string) string {
	name := sourceModelID
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return HubOrg + "/" + name + "-" + strings.ToLower(precision) + "-cw-ov"
}

// IsConverted reports whether dir already holds a converted model.
func IsConverted(dir string) bool {
	return fsutil.IsFile(filepath.Join(dir, MarkerFile))
}

// Source tells where an acquired model came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceHub     Source = "hub"
	SourceConvert Source = "convert"
)

// Result describes a completed acquisition.
type Result struct {
	Dir    string `json:"dir"`
	Source Source `json:"source"`
	// Command is set when the converter ran.
	Command string `json:"command,omitempty"`
}

// Resolver runs the acquisition decision procedure.
type Resolver struct {
	Runner Runner
	// Hub may be nil, which disables remote fetch.
	Hub Hub
	// Converter overrides argv[0] of the conversion command.
	Converter       string
	TrustRemoteCode bool
}

// NewResolver constructs a Resolver with the default converter.
func NewResolver(runner Runner, hub Hub) *Resolver {
	return &Resolver{Runner: runner, Hub: hub, Converter: DefaultConverter}
}

// ConversionArgs returns the converter argv the resolver would run for d.
func (r *Resolver) ConversionArgs(d Descriptor) []string {
	params := SelectCompression(d.ModelID, d.Variant, d.Device)
	args := CommandArgs(d.SourceID(), d.Variant.WeightFormat(), d.Dir, params, d.Variant.IsAWQ(), r.TrustRemoteCode)
	if r.Converter != "" {
		args[0] = r.Converter
	}
	return args
}

// Acquire ensures d.Dir holds a converted model and returns it. An already
// converted directory is returned without external work. Otherwise, when
// allowRemote is set, a preconverted copy is downloaded if the hub has one.
// Failing that the converter runs; its failure aborts acquisition.
func (r *Resolver) Acquire(ctx context.Context, d Descriptor, allowRemote bool) (Result, error) {
	if strings.TrimSpace(d.Dir) == "" {
		return Result{}, fmt.Errorf("acquire %s: empty target directory", d.ModelID)
	}
	log := logger.With().Str("model", d.ModelID).Str("variant", string(d.Variant)).Str("dir", d.Dir).Logger()

	if IsConverted(d.Dir) {
		log.Info().Msg("model already converted")
		acquireTotal.WithLabelValues(string(SourceLocal)).Inc()
		return Result{Dir: d.Dir, Source: SourceLocal}, nil
	}

	if allowRemote && r.Hub != nil {
		hubID := HubID(d.SourceID(), string(d.Variant))
		log.Info().Str("hub_id", hubID).Msg("checking for preconverted model")
		ok, err := r.Hub.RepoExists(ctx, hubID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.Warn().Err(err).Str("hub_id", hubID).Msg("hub lookup failed; converting locally")
		case ok:
			log.Info().Str("hub_id", hubID).Msg("found preconverted model; download started")
			if err := r.Hub.SnapshotDownload(ctx, hubID, d.Dir); err != nil {
				acquireErrors.WithLabelValues(string(SourceHub)).Inc()
				return Result{}, fmt.Errorf("download %s: %w", hubID, err)
			}
			log.Info().Msg("model downloaded")
			acquireTotal.WithLabelValues(string(SourceHub)).Inc()
			return Result{Dir: d.Dir, Source: SourceHub}, nil
		}
	}

	if r.Runner == nil {
		return Result{}, fmt.Errorf("acquire %s: no command runner configured", d.ModelID)
	}
	if err := os.MkdirAll(filepath.Dir(d.Dir), 0o755); err != nil {
		return Result{}, fmt.Errorf("create models root: %w", err)
	}
	args := r.ConversionArgs(d)
	cmdline := strings.Join(args, " ")
	log.Info().Str("command", cmdline).Msg("conversion started; this may take some time")
	start := time.Now()
	if err := r.Runner.Run(ctx, args); err != nil {
		acquireErrors.WithLabelValues(string(SourceConvert)).Inc()
		return Result{}, fmt.Errorf("convert %s: %w", d.SourceID(), err)
	}
	conversionDuration.Observe(time.Since(start).Seconds())
	acquireTotal.WithLabelValues(string(SourceConvert)).Inc()
	log.Info().Dur("dur", time.Since(start)).Msg("model converted")
	return Result{Dir: d.Dir, Source: SourceConvert, Command: cmdline}, nil
}
