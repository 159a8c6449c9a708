package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "OVCHAT_"

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays OVCHAT_* variables from getenv onto c.
func ApplyEnv(c Config, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	var errs []error
	get := func(key string) string { return strings.TrimSpace(getenv(EnvPrefix + key)) }
	str := func(key string, dst *string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := get(key); v != "" {
			*dst = SplitCSV(v)
		}
	}
	num := func(key string, dst *int) {
		if v := get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v := get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Addr)
	str("MODELS_DIR", &c.ModelsDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("ORG", &c.Org)
	str("MODEL", &c.DefaultModel)
	list("MODELS", &c.Models)
	str("VARIANT", &c.Variant)
	str("DEVICE", &c.Device)
	flt("TEMPERATURE", &c.Temperature)
	num("MAX_NEW_TOKENS", &c.MaxNewTokens)
	list("DEVICES", &c.Devices)
	list("DEVICE_PREFERENCE", &c.DevicePreference)
	boolean("OFFLINE", &c.Offline)
	str("HUB_URL", &c.HubURL)
	str("CONVERTER", &c.Converter)
	boolean("TRUST_REMOTE_CODE", &c.TrustRemoteCode)
	str("BACKEND", &c.Backend)
	str("SERVER_URL", &c.ServerURL)
	str("SERVER_API_PREFIX", &c.ServerAPIPrefix)
	str("SERVER_API_KEY", &c.ServerAPIKey)
	str("SERVER_BIN", &c.ServerBin)
	num("SERVER_PORT_START", &c.ServerPortStart)
	num("SERVER_PORT_END", &c.ServerPortEnd)
	num("LLAMA_CTX", &c.LlamaCtx)
	num("LLAMA_THREADS", &c.LlamaThreads)
	num("LLAMA_GPU_LAYERS", &c.LlamaGPULayers)
	str("LLAMA_MODEL_FILE", &c.LlamaModelFile)
	num("CHAT_TIMEOUT_SEC", &c.ChatTimeoutSec)
	boolean("CORS_ENABLED", &c.CORSEnabled)
	list("CORS_ORIGINS", &c.CORSOrigins)
	boolean("SWAGGER", &c.Swagger)
	str("REQUEST_LOG_LEVEL", &c.RequestLogLevel)
	return c, errors.Join(errs...)
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
