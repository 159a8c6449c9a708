package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ovchat/internal/acquire"
	"ovchat/internal/common/fsutil"
	"ovchat/pkg/types"
)

// LoadDir scans root for converted model directories (those holding
// openvino_model.xml). Directory names following the
// <model>-<variant>-<device> convention are split into their parts; other
// names are listed with Name = ID. A missing root yields an empty list.
func LoadDir(root string) ([]types.Model, error) {
	abs, err := fsutil.ResolveDir(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(abs, e.Name())
		if !acquire.IsConverted(p) {
			continue
		}
		m := types.Model{ID: e.Name(), Name: e.Name(), Path: p}
		if name, v, dev, ok := ParseDirName(e.Name()); ok {
			m.Name, m.Variant, m.Device = name, string(v), dev
		}
		if mb, err := acquire.ModelSizeMB(p); err == nil {
			m.SizeMB = mb
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// variantsBySuffixLen lists known variants longest first so "INT4-NPU" wins
// over "INT4".
var variantsBySuffixLen = []acquire.Variant{acquire.INT4NPU, acquire.INT4AWQ, acquire.INT4, acquire.INT8, acquire.FP16}

// ParseDirName splits "<model>-<variant>-<device>".
func ParseDirName(name string) (model string, v acquire.Variant, device string, ok bool) {
	i := strings.LastIndex(name, "-")
	if i <= 0 || i == len(name)-1 {
		return "", "", "", false
	}
	rest, device := name[:i], name[i+1:]
	for _, cand := range variantsBySuffixLen {
		suffix := "-" + string(cand)
		if strings.HasSuffix(strings.ToUpper(rest), suffix) && len(rest) > len(suffix) {
			return rest[:len(rest)-len(suffix)], cand, device, true
		}
	}
	return "", "", "", false
}
