package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct{ zerolog.Logger }

// FileConfig enables a rotating log file next to stderr output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(level string) *Logger { return NewWithFile(level, FileConfig{}) }

func NewWithFile(level string, fc FileConfig) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if fc.Path != "" {
		w = zerolog.MultiLevelWriter(os.Stderr, &lumberjack.Logger{
			Filename:   fc.Path,
			MaxSize:    ifzero(fc.MaxSizeMB, 100),
			MaxBackups: ifzero(fc.MaxBackups, 5),
			MaxAge:     ifzero(fc.MaxAgeDays, 30),
			Compress:   true,
		})
	}
	zerolog.TimeFieldFormat = time.RFC3339
	z := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return &Logger{z}
}

// Nop discards everything; used by tests.
func Nop() *Logger { return &Logger{zerolog.Nop()} }

func (l *Logger) HTTPLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		l.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", ww.Status()).Dur("dur", time.Since(start)).Msg("http")
	})
}

func ifzero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
