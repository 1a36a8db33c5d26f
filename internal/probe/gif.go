package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gifshrink/internal/anim"
	applog "gifshrink/internal/logger"
)

// GIFProber reads metadata from GIF files and the still formats the
// compressor accepts.
type GIFProber struct {
	logger *logrus.Logger
	cache  sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewGIFProber returns a new GIFProber.
func NewGIFProber(logger *logrus.Logger) *GIFProber {
	if logger == nil {
		logger = applog.Discard()
	}
	return &GIFProber{logger: logger}
}

// Probe returns metadata for filePath. Results are cached until the file's
// size or modification time changes.
func (p *GIFProber) Probe(filePath string) (*Info, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filePath)
	}

	key := p.getCacheKey(filePath, fileInfo)
	if value, ok := p.cache.Load(key); ok {
		p.incrementCacheHits()
		return value.(Info).clone(), nil
	}
	p.incrementCacheMisses()

	a, err := anim.Decode(filePath)
	if err != nil {
		return nil, err
	}

	info := Info{
		Path:         filePath,
		Size:         a.Size,
		Format:       string(a.Format),
		Width:        a.Width,
		Height:       a.Height,
		Frames:       a.Len(),
		LoopCount:    a.LoopCount,
		Delays:       a.Delays(),
		PaletteSizes: a.PaletteSizes(),
	}
	for i := range info.Delays {
		delay, ok := anim.LookupDelay(info.Delays, i)
		if !ok {
			delay = anim.DefaultDelay
		}
		info.TotalDuration += time.Duration(delay) * 10 * time.Millisecond
	}

	p.logger.WithFields(logrus.Fields{
		"file":   filePath,
		"frames": info.Frames,
		"width":  info.Width,
		"height": info.Height,
	}).Debug("Probed file")

	p.cache.Store(key, info)
	p.mutex.Lock()
	p.stats.Size++
	p.mutex.Unlock()

	return info.clone(), nil
}

func (i Info) clone() *Info {
	i.Delays = slices.Clone(i.Delays)
	i.PaletteSizes = slices.Clone(i.PaletteSizes)
	return &i
}

// SupportsFile reports whether the file is supported by this prober.
func (p *GIFProber) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	supportedExts := []string{".gif", ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

	return slices.Contains(supportedExts, ext)
}

// ClearCache removes all entries from the internal cache and resets statistics.
func (p *GIFProber) ClearCache() {
	p.cache.Range(func(key, _ any) bool {
		p.cache.Delete(key)
		return true
	})
	p.mutex.Lock()
	p.stats = CacheStats{}
	p.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this prober.
func (p *GIFProber) GetCacheStats() CacheStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	stats := p.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

func (p *GIFProber) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (p *GIFProber) incrementCacheHits() {
	p.mutex.Lock()
	p.stats.Hits++
	p.stats.TotalQueries++
	p.mutex.Unlock()
}

func (p *GIFProber) incrementCacheMisses() {
	p.mutex.Lock()
	p.stats.Misses++
	p.stats.TotalQueries++
	p.mutex.Unlock()
}
