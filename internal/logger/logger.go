package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// FileConfig describes an optional rotated log file. When Path is empty and
// Dir is set, the file becomes Dir/<name>.log.
type FileConfig struct {
	Dir        string `toml:"dir,omitempty" mapstructure:"dir"`
	Path       string `toml:"path,omitempty" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb,omitempty" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days,omitempty" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress,omitempty" mapstructure:"compress"`
}

// Config controls the daemon logger: level, colored stderr output and an
// optional rotated file destination.
type Config struct {
	Level string     `toml:"level,omitempty" mapstructure:"level"`
	Color bool       `toml:"color,omitempty" mapstructure:"color"`
	File  FileConfig `toml:"file,omitempty" mapstructure:"file"`
}

// Writer returns the rotated file writer for name, or nil when no file
// destination is configured.
func (c Config) Writer(name string) io.WriteCloser {
	path := c.File.Path
	if path == "" && c.File.Dir != "" {
		path = filepath.Join(c.File.Dir, fmt.Sprintf("%s.log", name))
	}
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// New builds the slog logger for the daemon. The returned closer is non-nil
// when a rotated file is attached.
func (c Config) New(name string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if fw := c.Writer(name); fw != nil {
		w = io.MultiWriter(os.Stderr, fw)
		closer = fw
	}

	var h slog.Handler
	if c.Color {
		h = NewColorTextHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
