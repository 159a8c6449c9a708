package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

// Options collects the tunables of the HTTP layer. Apply them with Configure
// before calling NewMux.
type Options struct {
	// MaxBodyBytes caps JSON request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
	// ChatTimeout bounds one /chat request. Zero disables.
	ChatTimeout time.Duration
	CORS        CORSOptions
	// Swagger mounts the API browser at /swagger/.
	Swagger bool
	// RequestLogLevel is the per-request log level when a request does not
	// ask for one: off, error, info or debug.
	RequestLogLevel string
}

// CORSOptions configures the opt-in CORS middleware.
type CORSOptions struct {
	Enabled bool
	Origins []string
	Methods []string
	Headers []string
}

// Configure applies o to the package.
func Configure(o Options) {
	SetMaxBodyBytes(o.MaxBodyBytes)
	SetChatTimeoutSeconds(int64(o.ChatTimeout / time.Second))
	SetCORSOptions(o.CORS.Enabled, o.CORS.Origins, o.CORS.Methods, o.CORS.Headers)
	SetSwaggerEnabled(o.Swagger)
	SetDefaultRequestLogLevel(o.RequestLogLevel)
}

var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes sets the JSON body limit; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// chatTimeout is in seconds.
var chatTimeout int64

// SetChatTimeoutSeconds sets the chat timeout in seconds (0 disables).
func SetChatTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	chatTimeout = sec
}

var corsOpts CORSOptions

// SetCORSOptions configures CORS. When disabled no middleware is installed.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsOpts = CORSOptions{
		Enabled: enabled,
		Origins: append([]string(nil), origins...),
		Methods: append([]string(nil), methods...),
		Headers: append([]string(nil), headers...),
	}
}

var swaggerEnabled bool

// SetSwaggerEnabled toggles the /swagger/ route.
func SetSwaggerEnabled(on bool) { swaggerEnabled = on }
