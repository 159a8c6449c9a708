package acquire

import "strings"

// CompressionParams are the weight-compression arguments handed to the
// converter. GroupSize -1 means no grouping.
type CompressionParams struct {
	Sym             bool    `json:"sym" yaml:"sym" toml:"sym"`
	GroupSize       int     `json:"group_size" yaml:"group_size" toml:"group_size"`
	Ratio           float64 `json:"ratio" yaml:"ratio" toml:"ratio"`
	AWQ             bool    `json:"awq,omitempty" yaml:"awq,omitempty" toml:"awq,omitempty"`
	ScaleEstimation bool    `json:"scale_estimation,omitempty" yaml:"scale_estimation,omitempty" toml:"scale_estimation,omitempty"`
	AllLayers       bool    `json:"all_layers,omitempty" yaml:"all_layers,omitempty" toml:"all_layers,omitempty"`
}

var compressionTable = map[string]CompressionParams{
	"DeepSeek-R1-Distill-Llama-8B":  {Sym: true, GroupSize: 128, Ratio: 0.8},
	"DeepSeek-R1-Distill-Qwen-7B":   {Sym: true, GroupSize: 128, Ratio: 1.0},
	"DeepSeek-R1-Distill-Qwen-14B":  {Sym: true, GroupSize: 128, Ratio: 1.0},
	"DeepSeek-R1-Distill-Qwen-1.5B": {Sym: true, GroupSize: 128, Ratio: 1.0},
	"DeepSeek-R1-Distill-Qwen-32B":  {Sym: true, GroupSize: 128, Ratio: 1.0},
}

var defaultCompression = CompressionParams{Sym: false, GroupSize: 128, Ratio: 0.8}

var npuCompression = CompressionParams{Sym: true, GroupSize: -1, Ratio: 1.0}

// LookupCompression returns the parameters for modelID, or the default set.
// The returned value is a copy.
func LookupCompression(modelID string) CompressionParams {
	if p, ok := compressionTable[modelID]; ok {
		return p
	}
	return defaultCompression
}

// NPUCompression returns the fixed parameter set used for NPU targets.
func NPUCompression() CompressionParams { return npuCompression }

// SelectCompression picks the parameters for a conversion. Only INT4
// variants are compressed; nil means the converter runs without
// compression arguments. NPU targets, named by the variant or the device,
// get the NPU set.
func SelectCompression(modelID string, v Variant, device string) *CompressionParams {
	if !v.IsINT4() {
		return nil
	}
	var p CompressionParams
	if v.IsNPU() || strings.EqualFold(device, "NPU") {
		p = NPUCompression()
	} else {
		p = LookupCompression(modelID)
	}
	return &p
}
