package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"gifshrink/internal/compressor"
	"gifshrink/internal/config"
	"gifshrink/internal/logger"
	"gifshrink/internal/probe"
	"gifshrink/internal/statistics"
)

// LogHookFunc receives the human-readable lines a run produces, so they can
// be forwarded (for example to WebSocket clients).
type LogHookFunc func(level, message string)

// Hooks are optional callbacks invoked while a batch runs. They are called
// from worker goroutines.
type Hooks struct {
	Log      LogHookFunc
	FileDone func(FileResult)
	Progress compressor.ProgressFunc
}

// Runner compresses every supported file under a directory.
type Runner struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	compressor compressor.Compressor
	prober     probe.Prober
	params     compressor.Params
	workers    int
	hooks      Hooks
}

// FileInfo contains information about a file to be compressed.
type FileInfo struct {
	Path       string
	OutputPath string
	Size       int64
	ModTime    time.Time
	Extension  string
}

// FileResult represents the outcome for one file.
type FileResult struct {
	Path       string             `json:"path"`
	OutputPath string             `json:"output_path"`
	Skipped    bool               `json:"skipped,omitempty"`
	DryRun     bool               `json:"dry_run,omitempty"`
	Info       *probe.Info        `json:"info,omitempty"`
	Result     *compressor.Result `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NewRunner returns a new Runner.
func NewRunner(
	cfg *config.Config,
	log *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
) *Runner {
	return NewRunnerWithHooks(cfg, log, stats, comp, Hooks{})
}

// NewRunnerWithHooks returns a Runner that reports through hooks.
func NewRunnerWithHooks(
	cfg *config.Config,
	log *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
	hooks Hooks,
) *Runner {
	workers := cfg.Batch.WorkerThreads
	if workers <= 0 {
		workers = 4
	}
	params := cfg.Compression.Params()
	params.Progress = hooks.Progress
	return &Runner{
		config:     cfg,
		logger:     log,
		stats:      stats,
		compressor: comp,
		prober:     probe.NewGIFProber(log),
		params:     params,
		workers:    workers,
		hooks:      hooks,
	}
}

// SetProber replaces the prober used to filter candidates and describe them
// in dry runs, so callers can share a cache.
func (r *Runner) SetProber(p probe.Prober) {
	r.prober = p
}

// Run compresses all files in the source directory. Per-file failures are
// recorded in the statistics and do not stop the run; cancelling ctx does.
func (r *Runner) Run(ctx context.Context) error {
	log := logger.WithOperation(r.logger, "batch")
	log.Info("Starting batch compression")
	r.stats.Start()
	defer r.stats.Finalize()

	if err := r.params.Validate(); err != nil {
		return err
	}

	files, err := r.discoverFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}

	if len(files) == 0 {
		log.Info("No files found to compress")
		return nil
	}

	log.Infof("Found %d files to process", len(files))

	if r.config.Batch.DryRun {
		log.Info("Running in dry-run mode - no files will be written")
	}

	r.processFiles(ctx, files)

	if err := ctx.Err(); err != nil {
		log.Warn("Batch compression stopped")
		return err
	}
	log.Info("Batch compression completed")
	return nil
}

// discoverFiles finds all supported files in the source directory.
func (r *Runner) discoverFiles(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	source := filepath.Clean(config.ExpandPath(r.config.Batch.SourceDirectory))
	target := ""
	if !r.config.IsInPlace() {
		target = filepath.Clean(config.ExpandPath(r.config.Batch.TargetDirectory))
	}

	err := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.logger.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}

		if info.IsDir() {
			if path == source {
				r.stats.IncrementDirectoriesScanned()
				return nil
			}
			if !r.config.Batch.Recursive {
				return filepath.SkipDir
			}
			if target != "" && path == target {
				r.logger.Debugf("Skipping target directory: %s", path)
				return filepath.SkipDir
			}
			r.stats.IncrementDirectoriesScanned()
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !r.config.HasExtension(ext) {
			return nil
		}
		if !r.prober.SupportsFile(path) {
			logger.WithFile(r.logger, path).Debug("Skipping unsupported format")
			return nil
		}
		if target == "" && r.isOwnOutput(path) {
			r.logger.Debugf("Skipping previous output: %s", path)
			return nil
		}

		outputPath, err := r.OutputPathFor(path)
		if err != nil {
			r.logger.Warnf("Skipping %s: %v", path, err)
			r.stats.AddError(path, "path_generation", err.Error())
			return nil
		}

		files = append(files, FileInfo{
			Path:       path,
			OutputPath: outputPath,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Extension:  ext,
		})
		r.stats.IncrementFilesFound()
		r.stats.IncrementFileType(ext)
		return nil
	})

	return files, err
}

// OutputPathFor returns where the compressed version of path is written:
// mirrored under the target directory, or next to the input with the
// configured suffix. The output is always a .gif.
func (r *Runner) OutputPathFor(path string) (string, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	var out string
	if r.config.IsInPlace() {
		out = filepath.Join(filepath.Dir(path), name+r.suffix()+".gif")
	} else {
		source := filepath.Clean(config.ExpandPath(r.config.Batch.SourceDirectory))
		rel, err := filepath.Rel(source, filepath.Dir(path))
		if err != nil {
			return "", err
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%s is outside the source directory", path)
		}
		target := config.ExpandPath(r.config.Batch.TargetDirectory)
		out = filepath.Join(target, rel, name+".gif")
	}

	if filepath.Clean(out) == filepath.Clean(path) {
		return "", fmt.Errorf("output would overwrite the input")
	}
	return out, nil
}

func (r *Runner) suffix() string {
	if r.config.Batch.Suffix == "" {
		return "-compressed"
	}
	return r.config.Batch.Suffix
}

// isOwnOutput returns true for files an in-place run has written before.
func (r *Runner) isOwnOutput(path string) bool {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(name, r.suffix())
}

// processFiles fans files out to the worker pool.
func (r *Runner) processFiles(ctx context.Context, files []FileInfo) {
	var wg sync.WaitGroup
	fileChan := make(chan FileInfo, r.workers)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, fileChan)
		}()
	}

	go func() {
		defer close(fileChan)
		for _, file := range files {
			select {
			case fileChan <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
}

// worker processes files from the channel.
func (r *Runner) worker(ctx context.Context, fileChan <-chan FileInfo) {
	for file := range fileChan {
		if ctx.Err() != nil {
			continue
		}
		r.processFile(ctx, file)
	}
}

// processFile compresses a single file.
func (r *Runner) processFile(ctx context.Context, file FileInfo) {
	log := logger.WithFile(r.logger, file.Path)
	log.Debug("Processing file")
	r.stats.IncrementFilesProcessed()

	res := FileResult{Path: file.Path, OutputPath: file.OutputPath}

	if r.config.Batch.SkipExisting {
		if _, err := os.Stat(file.OutputPath); err == nil {
			r.emit("info", fmt.Sprintf("Skipping %s: %s already exists", file.Path, file.OutputPath))
			r.stats.IncrementFilesSkipped()
			res.Skipped = true
			r.done(res)
			return
		}
	}

	if r.config.Batch.DryRun {
		res.DryRun = true
		details := humanize.Bytes(uint64(file.Size))
		if info, err := r.prober.Probe(file.Path); err == nil {
			res.Info = info
			details = fmt.Sprintf("%s, %d frames, %dx%d", details, info.Frames, info.Width, info.Height)
		} else {
			log.WithError(err).Debug("Could not read metadata")
		}
		r.emit("info", fmt.Sprintf("DRY-RUN: Would compress %s (%s) -> %s",
			file.Path, details, file.OutputPath))
		r.done(res)
		return
	}

	if err := os.MkdirAll(filepath.Dir(file.OutputPath), 0755); err != nil {
		r.fail(res, "directory_creation", err)
		return
	}

	result, err := r.compressor.Compress(ctx, file.Path, file.OutputPath, r.params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Debug("Stopped before finishing")
			return
		}
		r.fail(res, "compress", err)
		return
	}

	r.stats.RecordCompression(result.OriginalSize, result.OutputSize, result.Frames)
	res.Result = result
	r.emit("info", fmt.Sprintf("Compressed %s -> %s: %s -> %s (%.1f%%)",
		file.Path, file.OutputPath,
		humanize.Bytes(uint64(result.OriginalSize)),
		humanize.Bytes(uint64(result.OutputSize)),
		result.PercentageSaved()))
	r.done(res)
}

func (r *Runner) fail(res FileResult, operation string, err error) {
	r.stats.IncrementFilesWithErrors()
	r.stats.AddError(res.Path, operation, err.Error())
	res.Error = err.Error()
	r.emit("error", fmt.Sprintf("Could not compress %s: %v", res.Path, err))
	r.done(res)
}

func (r *Runner) emit(level, msg string) {
	switch level {
	case "error":
		r.logger.Error(msg)
	case "warn":
		r.logger.Warn(msg)
	default:
		r.logger.Info(msg)
	}
	if r.hooks.Log != nil {
		r.hooks.Log(level, msg)
	}
}

func (r *Runner) done(res FileResult) {
	if r.hooks.FileDone != nil {
		r.hooks.FileDone(res)
	}
}
