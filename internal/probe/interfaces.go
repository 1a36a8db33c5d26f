package probe

import (
	"fmt"
	"time"
)

// Prober is the interface for reading animation metadata from files.
type Prober interface {
	Probe(filePath string) (*Info, error)
	SupportsFile(filePath string) bool
}

// CachedProber extends Prober with caching capabilities.
type CachedProber interface {
	Prober
	ClearCache()
	GetCacheStats() CacheStats
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Size         int     `json:"size"`
	HitRate      float64 `json:"hit_rate"`
	TotalQueries int64   `json:"total_queries"`
}

// Info describes an animation without its pixel data.
type Info struct {
	Path          string        `json:"path"`
	Size          int64         `json:"size"`
	Format        string        `json:"format"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Frames        int           `json:"frames"`
	LoopCount     int           `json:"loop_count"`
	Delays        []int         `json:"delays"`
	TotalDuration time.Duration `json:"total_duration"`
	PaletteSizes  []int         `json:"palette_sizes"`
}

// Animated reports whether the file has more than one frame.
func (i *Info) Animated() bool {
	return i.Frames > 1
}

// LoopDescription returns a human-readable description of the loop count.
func (i *Info) LoopDescription() string {
	switch {
	case i.LoopCount == 0:
		return "forever"
	case i.LoopCount < 0:
		return "once"
	case i.LoopCount == 1:
		return "1 extra time"
	default:
		return fmt.Sprintf("%d extra times", i.LoopCount)
	}
}
