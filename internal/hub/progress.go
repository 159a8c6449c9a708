package hub

import (
	"sync"
	"time"
)

// LogProgress returns a Client.Progress callback that logs each file's byte
// count at most once per interval, and once more when the file completes.
func LogProgress(interval time.Duration) func(file string, done, total int64) {
	var mu sync.Mutex
	last := make(map[string]time.Time)
	return func(file string, done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		now := timeNow()
		complete := total > 0 && done >= total
		if !complete && now.Sub(last[file]) < interval {
			return
		}
		last[file] = now
		ev := logger.Info().Str("file", file).Int64("bytes", done)
		if total > 0 {
			ev = ev.Int64("total", total).Float64("pct", float64(done)*100/float64(total))
		}
		ev.Msg("downloading")
	}
}

var timeNow = time.Now
