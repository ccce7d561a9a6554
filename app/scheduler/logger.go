package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/amirphl/social-publisher/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger writing to stdout, a rotated file, or both, as cfg.Output selects.
// The returned closer releases the file; it is a no-op for stdout-only output.
func NewLogger(cfg config.LoggingConfig, prefix string) (*log.Logger, io.Closer, error) {
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC

	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return log.New(os.Stdout, prefix, flags), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var w io.Writer = rotator
	if cfg.Output != "file" {
		w = io.MultiWriter(os.Stdout, rotator)
	}
	// log.Logger is goroutine-safe
	return log.New(w, prefix, flags), rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
