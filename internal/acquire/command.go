package acquire

import (
	"math"
	"strconv"
	"strings"
)

// DefaultConverter is the conversion CLI invoked when none is configured.
const DefaultConverter = "optimum-cli"

// CommandArgs returns the converter invocation as argv. The first element is
// DefaultConverter.
func CommandArgs(modelID, weightFormat, outputDir string, params *CompressionParams, awq, trustRemoteCode bool) []string {
	args := []string{
		DefaultConverter, "export", "openvino",
		"--model", modelID,
		"--task", "text-generation-with-past",
		"--weight-format", weightFormat,
	}
	if params != nil {
		args = append(args, "--group-size", strconv.Itoa(params.GroupSize), "--ratio", formatRatio(params.Ratio))
		if params.Sym {
			args = append(args, "--sym")
		}
		if awq || params.AWQ {
			args = append(args, "--awq", "--dataset", "wikitext2", "--num-samples", "128")
			if params.ScaleEstimation {
				args = append(args, "--scale-estimation")
			}
		}
		if params.AllLayers {
			args = append(args, "--all-layers")
		}
	}
	if trustRemoteCode {
		args = append(args, "--trust-remote-code")
	}
	return append(args, outputDir)
}

// BuildCommand renders the converter invocation as a single command line.
func BuildCommand(modelID, weightFormat, outputDir string, params *CompressionParams, awq, trustRemoteCode bool) string {
	return strings.Join(CommandArgs(modelID, weightFormat, outputDir, params, awq, trustRemoteCode), " ")
}

// formatRatio keeps one decimal for whole numbers (1 -> "1.0").
func formatRatio(r float64) string {
	if r == math.Trunc(r) {
		return strconv.FormatFloat(r, 'f', 1, 64)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
