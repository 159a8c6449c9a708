package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveGGUF returns the GGUF weights file go-llama.cpp should load for
// modelPath, which is either the file itself or a model directory.
//
// A non-empty name selects the file: absolute names are used as is, relative
// ones are joined to the directory. Otherwise the directory is scanned for
// *.gguf and the lexically first match wins, which is the first shard of a
// split model. A directory without GGUF weights (an OpenVINO IR export, say)
// reports a dependency-unavailable error.
func ResolveGGUF(modelPath, name string) (string, error) {
	modelPath = strings.TrimSpace(modelPath)
	name = strings.TrimSpace(name)
	if modelPath == "" && !filepath.IsAbs(name) {
		return "", fmt.Errorf("model path is empty")
	}

	dir := modelPath
	if modelPath != "" {
		st, err := os.Stat(modelPath)
		if err != nil {
			return "", fmt.Errorf("model path: %w", err)
		}
		if !st.IsDir() {
			if isGGUF(modelPath) {
				return modelPath, nil
			}
			dir = filepath.Dir(modelPath)
		}
	}

	if name != "" {
		p := name
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			return "", ErrDependencyUnavailable(fmt.Sprintf("GGUF weights %s not found", p))
		}
		return p, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read model directory: %w", err)
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && isGGUF(e.Name()) {
			found = append(found, e.Name())
		}
	}
	if len(found) == 0 {
		return "", ErrDependencyUnavailable(fmt.Sprintf("no GGUF weights in %s", dir))
	}
	sort.Strings(found)
	return filepath.Join(dir, found[0]), nil
}

func isGGUF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".gguf")
}
