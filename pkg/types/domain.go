package types

// Model represents a converted OpenVINO model directory on disk.
type Model struct {
	// Directory name; unique under the models root.
	// example: DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU
	ID string `json:"id" example:"DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU"`
	// Source model id without organization.
	// example: DeepSeek-R1-Distill-Qwen-1.5B
	Name string `json:"name" example:"DeepSeek-R1-Distill-Qwen-1.5B"`
	// Absolute path to the model directory.
	// example: /home/user/.cache/ovchat/models/DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU
	Path string `json:"path" example:"/home/user/.cache/ovchat/models/DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU"`
	// Compression variant.
	// example: INT4
	Variant string `json:"variant,omitempty" example:"INT4"`
	// Device the model was converted for.
	// example: CPU
	Device string `json:"device,omitempty" example:"CPU"`
	// Size of the weights file in MiB.
	// example: 1024.5
	SizeMB float64 `json:"size_mb,omitempty" example:"1024.5"`
}

// Session is the active model, device and sampling selection.
type Session struct {
	// example: deepseek-ai
	Org string `json:"org" example:"deepseek-ai"`
	// example: DeepSeek-R1-Distill-Qwen-1.5B
	Model string `json:"model" example:"DeepSeek-R1-Distill-Qwen-1.5B"`
	// example: INT4
	Variant string `json:"variant" example:"INT4"`
	// example: GPU
	Device string `json:"device" example:"GPU"`
	// example: 0.7
	Temperature float64 `json:"temperature" example:"0.7"`
	// example: 256
	MaxNewTokens int `json:"max_new_tokens" example:"256"`
}
