package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	JSONFormat bool
	OutputFile string    // Path to log file (empty = console only)
	MaxSize    int64     // Max size in bytes before rotation (default: 10MB)
	MaxBackups int       // Number of old log files to keep (default: 3)
	Console    io.Writer // Defaults to stderr
}

// Logger is a logrus logger that may own a log file.
type Logger struct {
	*logrus.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a logger with the given configuration
func New(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024 // 10MB
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.Console == nil {
		config.Console = os.Stderr
	}

	level, err := logrus.ParseLevel(config.Level)
	if config.Level == "" {
		level, err = logrus.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	l := &Logger{Logger: logrus.New()}
	l.SetLevel(level)

	out := config.Console
	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
		if err := rotateIfNeeded(config.OutputFile, config.MaxSize, config.MaxBackups); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}
		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		l.file = file
		out = io.MultiWriter(config.Console, file)
	}
	l.SetOutput(out)

	if config.JSONFormat {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		colors := config.OutputFile == "" && isTerminal(config.Console)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   colors,
			DisableColors: !colors,
		})
	}
	return l, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// rotateIfNeeded moves path to path.1 (shifting older backups) once it has
// grown past maxSize.
func rotateIfNeeded(path string, maxSize int64, maxBackups int) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // File doesn't exist yet
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < maxSize {
		return nil
	}

	os.Remove(fmt.Sprintf("%s.%d", path, maxBackups))
	for i := maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, fmt.Sprintf("%s.%d", path, i+1))
		}
	}

	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// LevelFor maps the verbose flag onto a configured level.
func LevelFor(configured string, verbose bool) string {
	if verbose {
		return "debug"
	}
	if strings.TrimSpace(configured) == "" {
		return "info"
	}
	return configured
}
