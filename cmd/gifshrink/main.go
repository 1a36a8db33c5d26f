package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gifshrink/internal/batch"
	"gifshrink/internal/compressor"
	"gifshrink/internal/config"
	"gifshrink/internal/logger"
	"gifshrink/internal/probe"
	"gifshrink/internal/statistics"
	"gifshrink/internal/web"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes reported to the shell.
const (
	exitOK        = 0
	exitOther     = 1
	exitDecode    = 2
	exitTransform = 3
	exitEncode    = 4
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	version = "dev"

	resizeFactor float64
	maxColors    int
	quality      int
	filter       string
	engine       string
	dither       bool
	background   string

	targetDir string
	suffix    string
	dryRun    bool
	workers   int

	port int
)

// rootCmd compresses a single file.
var rootCmd = &cobra.Command{
	Use:   "gifshrink <input> <output>",
	Short: "Shrink GIF animations by resizing and reducing colors",
	Long: `gifshrink reduces the file size of a GIF animation. Every frame is
resized with a high-quality filter, re-quantized to an adaptive palette and
the sequence is re-encoded as an optimized, endlessly looping GIF. Frame
durations are kept.

Examples:
  gifshrink in.gif out.gif
  gifshrink in.gif out.gif --resize-factor 0.5 --max-colors 64
  gifshrink batch ./animations --target ./small
  gifshrink inspect out.gif`,
	Version:       version,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args[0], args[1])
	},
}

// batchCmd compresses every supported file under a directory.
var batchCmd = &cobra.Command{
	Use:   "batch <source-directory>",
	Short: "Compress every GIF under a directory",
	Long: `Walks the source directory and compresses every supported file. Outputs
are mirrored under --target, or written next to each input with --suffix.
Files are processed by a pool of workers; failures are reported at the end
and do not stop the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args)
	},
}

// inspectCmd prints animation metadata.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show frame count, size, delays and palettes of an animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.OutOrStdout(), args[0])
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing compression, batch and inspection
endpoints under /api and live progress over a WebSocket at /ws.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	defaults := compressor.DefaultParams()
	flags := rootCmd.PersistentFlags()
	flags.Float64Var(&resizeFactor, "resize-factor", defaults.ResizeFactor, "scale factor applied to both dimensions, in (0, 1]")
	flags.IntVar(&maxColors, "max-colors", defaults.MaxColors, "maximum palette size per frame, 1-256")
	flags.IntVar(&quality, "quality", defaults.Quality, "encoder quality hint, 1-100")
	flags.StringVar(&filter, "filter", defaults.Filter, "resample filter (lanczos, catmullrom, mitchell, linear, box, nearest)")
	flags.StringVar(&engine, "engine", defaults.Engine, "resample engine (imaging, nfnt)")
	flags.BoolVar(&dither, "dither", defaults.Dither, "apply Floyd-Steinberg dithering")
	flags.StringVar(&background, "background", defaults.Background, "color transparent pixels are flattened onto")

	batchCmd.Flags().StringVar(&targetDir, "target", "", "directory outputs are mirrored into (default: next to inputs)")
	batchCmd.Flags().StringVar(&suffix, "suffix", "", "suffix added to in-place outputs (default -compressed)")
	batchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be compressed without writing")
	batchCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent workers")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run the web server on (default 8080)")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress compresses one file and prints progress the way the
// interactive tool always has.
func runCompress(cmd *cobra.Command, input, output string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	out := cmd.OutOrStdout()
	if quiet {
		out = io.Discard
	}

	params := cfg.Compression.Params()
	if err := params.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Opening %s...\n", input)
	if info, err := os.Stat(input); err == nil {
		fmt.Fprintf(out, "Original size: %s\n", humanize.Bytes(uint64(info.Size())))
	}

	params.Progress = func(p compressor.Progress) {
		switch p.Stage {
		case compressor.StageFrame:
			fmt.Fprintf(out, "Processing frame %d...\r", p.Frame+1)
		case compressor.StageEncode:
			fmt.Fprintf(out, "\nProcessed %d frames\n", p.Processed)
			fmt.Fprintf(out, "Saving to %s...\n", output)
		}
	}

	result, err := compressor.NewDefaultCompressor(log).Compress(context.Background(), input, output, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Compressed size: %s\n", humanize.Bytes(uint64(result.OutputSize)))
	fmt.Fprintf(out, "Reduction: %.1f%%\n", result.PercentageSaved())
	return nil
}

// runBatch compresses a directory and prints the run statistics.
func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Batch.SourceDirectory = args[0]
	}
	if cfg.Batch.SourceDirectory == "" {
		cfg.Batch.SourceDirectory = "."
	}
	if err := cfg.ValidateBatch(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	out := cmd.OutOrStdout()

	var hooks batch.Hooks
	if !quiet {
		hooks.Log = func(level, message string) {
			fmt.Fprintln(out, message)
		}
	}
	runner := batch.NewRunnerWithHooks(cfg, log, stats, compressor.NewDefaultCompressor(log), hooks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := runner.Run(ctx)

	if !quiet {
		fmt.Fprintln(out, "\n"+stats.GetSummary())
		fmt.Fprintln(out, stats.GetFileTypeBreakdown())
		if stats.GetFilesWithErrors() > 0 {
			fmt.Fprintln(out, "\n"+stats.GetErrorSummary())
		}
	}

	if runErr != nil {
		return fmt.Errorf("batch failed: %w", runErr)
	}
	if n := stats.GetFilesWithErrors(); n > 0 {
		return fmt.Errorf("%d files could not be compressed", n)
	}
	return nil
}

// runInspect prints probe information for a file.
func runInspect(out io.Writer, path string) error {
	info, err := probe.NewGIFProber(logger.Discard()).Probe(path)
	if err != nil {
		return fmt.Errorf("%w: %w", compressor.ErrDecode, err)
	}

	fmt.Fprintf(out, "File:       %s\n", info.Path)
	fmt.Fprintf(out, "Size:       %s\n", humanize.Bytes(uint64(info.Size)))
	fmt.Fprintf(out, "Format:     %s\n", info.Format)
	fmt.Fprintf(out, "Dimensions: %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(out, "Frames:     %d\n", info.Frames)
	fmt.Fprintf(out, "Loop:       %s\n", info.LoopDescription())
	fmt.Fprintf(out, "Duration:   %s\n", info.TotalDuration)
	if info.Animated() {
		fmt.Fprintf(out, "Delays:     %s\n", joinInts(info.Delays))
		fmt.Fprintf(out, "Palettes:   %s\n", joinInts(info.PaletteSizes))
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log, compressor.NewDefaultCompressor(log), probe.NewGIFProber(log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gifshrink API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Fprintln(out, "\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Fprintln(out, "Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("resize-factor") {
		cfg.Compression.ResizeFactor = resizeFactor
	}
	if flags.Changed("max-colors") {
		cfg.Compression.MaxColors = maxColors
	}
	if flags.Changed("quality") {
		cfg.Compression.Quality = quality
	}
	if flags.Changed("filter") {
		cfg.Compression.Filter = filter
	}
	if flags.Changed("engine") {
		cfg.Compression.Engine = engine
	}
	if flags.Changed("dither") {
		cfg.Compression.Dither = dither
	}
	if flags.Changed("background") {
		cfg.Compression.Background = background
	}

	if flags.Changed("target") {
		cfg.Batch.TargetDirectory = targetDir
	}
	if flags.Changed("suffix") {
		cfg.Batch.Suffix = suffix
	}
	if flags.Changed("dry-run") {
		cfg.Batch.DryRun = dryRun
	}
	if flags.Changed("workers") && workers > 0 {
		cfg.Batch.WorkerThreads = workers
	}

	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := cfg.Logging.LoggerConfig()
	// Progress lines own the terminal; structured logs go to the file only
	// unless asked for.
	loggerCfg.Console = verbose

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, compressor.ErrDecode):
		return exitDecode
	case errors.Is(err, compressor.ErrTransform):
		return exitTransform
	case errors.Is(err, compressor.ErrEncode):
		return exitEncode
	default:
		return exitOther
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
