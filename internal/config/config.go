package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"gifshrink/internal/compressor"
	"gifshrink/internal/logger"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the per-file compression settings
type CompressionConfig struct {
	ResizeFactor float64 `mapstructure:"resize_factor"`
	MaxColors    int     `mapstructure:"max_colors"`
	Quality      int     `mapstructure:"quality"`
	Filter       string  `mapstructure:"filter"`
	Engine       string  `mapstructure:"engine"`
	Dither       bool    `mapstructure:"dither"`
	Background   string  `mapstructure:"background"`
}

// BatchConfig contains directory processing settings
type BatchConfig struct {
	SourceDirectory string   `mapstructure:"source_directory"`
	TargetDirectory string   `mapstructure:"target_directory"`
	Suffix          string   `mapstructure:"suffix"`
	Recursive       bool     `mapstructure:"recursive"`
	SkipExisting    bool     `mapstructure:"skip_existing"`
	WorkerThreads   int      `mapstructure:"worker_threads"`
	DryRun          bool     `mapstructure:"dry_run"`
	Extensions      []string `mapstructure:"extensions"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	params := compressor.DefaultParams()
	logDefaults := logger.DefaultConfig()
	return &Config{
		Compression: CompressionConfig{
			ResizeFactor: params.ResizeFactor,
			MaxColors:    params.MaxColors,
			Quality:      params.Quality,
			Filter:       params.Filter,
			Engine:       params.Engine,
			Dither:       params.Dither,
			Background:   params.Background,
		},
		Batch: BatchConfig{
			Suffix:        "-compressed",
			Recursive:     true,
			SkipExisting:  true,
			WorkerThreads: 4,
			Extensions:    []string{".gif"},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      logDefaults.Level,
			FilePath:   logDefaults.FilePath,
			MaxSize:    logDefaults.MaxSize,
			MaxBackups: logDefaults.MaxBackups,
			MaxAge:     logDefaults.MaxAge,
			Compress:   logDefaults.Compress,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gifshrink")
		v.AddConfigPath("/etc/gifshrink")
	}

	// Environment variables only override keys viper already knows about
	setDefaults(v, config)
	v.SetEnvPrefix("GIFSHRINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compression.resize_factor", c.Compression.ResizeFactor)
	v.SetDefault("compression.max_colors", c.Compression.MaxColors)
	v.SetDefault("compression.quality", c.Compression.Quality)
	v.SetDefault("compression.filter", c.Compression.Filter)
	v.SetDefault("compression.engine", c.Compression.Engine)
	v.SetDefault("compression.dither", c.Compression.Dither)
	v.SetDefault("compression.background", c.Compression.Background)

	v.SetDefault("batch.source_directory", c.Batch.SourceDirectory)
	v.SetDefault("batch.target_directory", c.Batch.TargetDirectory)
	v.SetDefault("batch.suffix", c.Batch.Suffix)
	v.SetDefault("batch.recursive", c.Batch.Recursive)
	v.SetDefault("batch.skip_existing", c.Batch.SkipExisting)
	v.SetDefault("batch.worker_threads", c.Batch.WorkerThreads)
	v.SetDefault("batch.dry_run", c.Batch.DryRun)
	v.SetDefault("batch.extensions", c.Batch.Extensions)

	v.SetDefault("server.port", c.Server.Port)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Compression.Params().Validate(); err != nil {
		return err
	}

	c.Batch.Extensions = normalizeExtensions(c.Batch.Extensions)
	if len(c.Batch.Extensions) == 0 {
		c.Batch.Extensions = []string{".gif"}
	}
	if c.Batch.WorkerThreads <= 0 {
		c.Batch.WorkerThreads = 4
	}
	if c.Batch.Suffix == "" && c.Batch.TargetDirectory == "" {
		c.Batch.Suffix = "-compressed"
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// ValidateBatch checks the directories a batch run needs.
func (c *Config) ValidateBatch() error {
	if c.Batch.SourceDirectory == "" {
		return fmt.Errorf("source_directory is required")
	}
	if !isValidPath(c.Batch.SourceDirectory) {
		return fmt.Errorf("source_directory does not exist or is not accessible: %s", c.Batch.SourceDirectory)
	}
	return nil
}

// Params converts the compression section into compressor parameters.
func (c CompressionConfig) Params() compressor.Params {
	return compressor.Params{
		ResizeFactor: c.ResizeFactor,
		MaxColors:    c.MaxColors,
		Quality:      c.Quality,
		Filter:       c.Filter,
		Engine:       c.Engine,
		Dither:       c.Dither,
		Background:   c.Background,
	}
}

// LoggerConfig converts the logging section for logger.NewLogger.
func (c LoggingConfig) LoggerConfig() logger.LoggerConfig {
	return logger.LoggerConfig{
		Level:      c.Level,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		Console:    true,
	}
}

// IsInPlace returns true when outputs are written next to their inputs
func (c *Config) IsInPlace() bool {
	return c.Batch.TargetDirectory == "" || c.Batch.TargetDirectory == c.Batch.SourceDirectory
}

// HasExtension checks if the extension is one the batch runner picks up
func (c *Config) HasExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Batch.Extensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func isValidPath(path string) bool {
	if path == "" {
		return false
	}

	expandedPath := ExpandPath(path)
	stat, err := os.Stat(expandedPath)
	return err == nil && stat.IsDir()
}

// ExpandPath expands environment variables and a leading ~.
func ExpandPath(path string) string {
	expandedPath := os.ExpandEnv(path)
	if strings.HasPrefix(expandedPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expandedPath
		}
		expandedPath = filepath.Join(home, expandedPath[1:])
	}
	return expandedPath
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
