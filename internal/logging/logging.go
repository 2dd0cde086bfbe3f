package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/traktion/antftp/internal/event"
)

// Options configures New.
type Options struct {
	Stderr io.Writer
	// File, when set, receives JSON records at debug level.
	File  string
	Level slog.Level
}

// New returns a logger writing text to Stderr at Level and, when File is
// set, JSON to File. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	var handler slog.Handler = slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: opts.Level})
	if opts.File == "" {
		return slog.New(handler), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewMultiHandler(handler, jsonHandler)), f, nil
}

// LogEvent writes ev as a structured "antftp.event" record.
func LogEvent(ctx context.Context, logger *slog.Logger, ev event.Event) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.Time("at", ev.Timestamp),
	}
	if ev.Op != "" {
		attrs = append(attrs, slog.String("op", ev.Op))
	}
	if ev.Path != "" {
		attrs = append(attrs, slog.String("path", ev.Path))
	}
	if ev.Address != "" {
		attrs = append(attrs, slog.String("address", ev.Address))
	}
	if ev.Size > 0 {
		attrs = append(attrs, slog.Int64("size", ev.Size))
	}
	level := slog.LevelDebug
	if ev.Error != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	logger.LogAttrs(ctx, level, "antftp.event", attrs...)
}
