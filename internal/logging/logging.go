// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level slog.Level
	// File, when set, receives a copy of every line, rotated by size.
	File      string
	MaxSizeMB int
	MaxFiles  int
}

// New returns a text logger writing to stdout (and File, if set) plus a close
// function that flushes the log file. Close is safe to call when File is empty.
func New(opts Options) (*slog.Logger, func() error, error) {
	return NewTo(os.Stdout, opts)
}

// NewTo is New with stdout replaced by w. The backup CLI logs to stderr so its
// stdout stays readable.
func NewTo(stdout io.Writer, opts Options) (*slog.Logger, func() error, error) {
	out := stdout
	closeFn := func() error { return nil }

	if opts.File != "" {
		writer, err := NewRotatingWriter(opts)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(stdout, writer)
		closeFn = writer.Close
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level}))
	return logger, closeFn, nil
}

// NewRotatingWriter opens opts.File for appending, rotating it once it passes
// MaxSizeMB (default 10) and keeping MaxFiles old copies (default 5).
func NewRotatingWriter(opts Options) (*lumberjack.Logger, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("rotation file path must not be empty")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxFiles,
	}, nil
}
