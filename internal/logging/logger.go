package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mrz1836/tokengov/internal/constants"
)

var (
	globalsOnce sync.Once  //nolint:gochecknoglobals // one-time zerolog configuration
	globalMu    sync.Mutex //nolint:gochecknoglobals // protects log.Logger
)

// configureGlobals sets the field names shared by every log sink so the
// rotating file can be read back with `jq '.event'`.
func configureGlobals() {
	globalsOnce.Do(func() {
		zerolog.TimestampFieldName = "ts"
		zerolog.MessageFieldName = "event"
	})
}

// Options controls how New builds a logger.
type Options struct {
	// Verbose selects debug level and wins over Quiet and Level.
	Verbose bool

	// Quiet selects warn level.
	Quiet bool

	// Level is used when neither Verbose nor Quiet is set. Empty means info.
	Level string

	// File is the rotating log file. Empty disables file output.
	File string

	// MaxSizeMB and MaxBackups configure rotation. Zero uses the defaults
	// from the constants package.
	MaxSizeMB  int
	MaxBackups int

	// Console overrides the console sink. Nil selects stderr, pretty-printed
	// when stderr is a terminal and NO_COLOR is unset.
	Console io.Writer
}

// Logger bundles a configured zerolog.Logger with the file it writes to.
type Logger struct {
	zerolog.Logger

	file io.Closer
}

// New builds a logger writing to the console and, when opts.File is set, to a
// rotating file filtered through FilteringWriter. A file that cannot be
// created is reported in the returned error while the console-only logger is
// still usable.
func New(opts Options) (*Logger, error) {
	configureGlobals()

	console := opts.Console
	if console == nil {
		console = selectConsole()
	}

	l := &Logger{}
	var writer io.Writer = console
	var fileErr error

	if opts.File != "" {
		lj, err := openRotatingFile(opts)
		if err != nil {
			fileErr = err
		} else {
			l.file = lj
			writer = zerolog.MultiLevelWriter(console, NewFilteringWriter(lj))
		}
	}

	l.Logger = zerolog.New(writer).
		Level(SelectLevel(opts.Verbose, opts.Quiet, opts.Level)).
		Hook(NewSensitiveDataHook()).
		With().Timestamp().Logger()

	return l, fileErr
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SetGlobal points the zerolog/log package logger at logger.
func SetGlobal(logger zerolog.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	log.Logger = logger
}

// SelectLevel maps the CLI verbosity flags and the configured level name to a
// zerolog level.
func SelectLevel(verbose, quiet bool, level string) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func selectConsole() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}
	return os.Stderr
}

func openRotatingFile(opts Options) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = constants.LogMaxSizeMB
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = constants.LogMaxBackups
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     constants.LogMaxAgeDays,
		Compress:   constants.LogCompress,
	}, nil
}
