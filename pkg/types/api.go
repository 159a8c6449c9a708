package types

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	// Selectable model ids.
	Catalog []string `json:"catalog"`
	// Converted models found under the models root.
	Local []Model `json:"local"`
}

// DevicesResponse is returned by GET /devices.
type DevicesResponse struct {
	// Devices reported by the runtime.
	// example: ["CPU","GPU"]
	Available []string `json:"available"`
	// Preference order used for automatic selection.
	// example: ["GPU","NPU","CPU"]
	Preference []string `json:"preference"`
	// Device currently selected.
	// example: GPU
	Selected string `json:"selected"`
}

// SessionUpdate is the body of PUT /session. Omitted fields are unchanged.
type SessionUpdate struct {
	Model        *string  `json:"model,omitempty"`
	Variant      *string  `json:"variant,omitempty"`
	Device       *string  `json:"device,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
}

// LoadRequest is the optional body of POST /load.
type LoadRequest struct {
	// Allow downloading a preconverted model from the hub. Defaults to the
	// server setting.
	AllowRemote *bool `json:"allow_remote,omitempty"`
}

// LoadResponse is returned by POST /load.
type LoadResponse struct {
	// example: /home/user/.cache/ovchat/models/DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU
	Dir string `json:"dir"`
	// How the model was obtained: local, hub or convert.
	// example: local
	Source string `json:"source"`
	// Conversion command line, when one ran.
	Command string `json:"command,omitempty"`
	// example: CPU
	Device string `json:"device"`
	// example: 1024.5
	SizeMB float64 `json:"size_mb,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// example: Why is the sky blue?
	Prompt string `json:"prompt" example:"Why is the sky blue?"`
	// Overrides the session limit for this request.
	MaxNewTokens int `json:"max_new_tokens,omitempty"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
}

// ChatChunk is one NDJSON line of a chat stream.
type ChatChunk struct {
	Token string `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	// Set on the final line.
	FinishReason     string `json:"finish_reason,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Manager state: idle, loading, ready or error.
	// example: ready
	State   string  `json:"state" example:"ready"`
	Session Session `json:"session"`
	// Directory of the loaded model.
	ModelDir string `json:"model_dir,omitempty"`
	// How the loaded model was obtained.
	Source string `json:"source,omitempty"`
	// Device the pipeline was opened on.
	LoadedDevice string `json:"loaded_device,omitempty"`
	// Whether a generation is in flight.
	Generating bool `json:"generating"`
	// Last error observed by the manager.
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// example: 2
	LoadsTotal uint64 `json:"loads_total" example:"2"`
	// example: 10
	ChatsTotal uint64 `json:"chats_total" example:"10"`
}
