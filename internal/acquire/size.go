package acquire

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ovchat/internal/common/fsutil"
)

// ModelSizeMB returns the size of the converted weights file in MiB. A
// missing directory or weights file yields an error matching fs.ErrNotExist.
func ModelSizeMB(dir string) (float64, error) {
	if !fsutil.IsDir(dir) {
		return 0, fmt.Errorf("model directory %s does not exist: %w", dir, fs.ErrNotExist)
	}
	p := filepath.Join(dir, WeightsFile)
	fi, err := os.Stat(p)
	if err != nil {
		return 0, fmt.Errorf("model file %s does not exist in %s: %w", WeightsFile, dir, fs.ErrNotExist)
	}
	return float64(fi.Size()) / (1024 * 1024), nil
}
