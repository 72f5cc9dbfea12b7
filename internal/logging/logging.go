package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	Logger  = zerolog.Nop()
	logFile *os.File
)

// Options controls where and how verbosely the bridge logs
type Options struct {
	Dir   string    // defaults to ~/.local/state/bizbridge
	Debug bool      // lowers the level to debug
	Also  io.Writer // optional second sink, e.g. stderr
}

// timestampHook adds timestamp at the end of each log event
type timestampHook struct{}

func (h timestampHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	e.Time("ts", time.Now())
}

// DefaultDir returns the state directory log files go to
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "state", "bizbridge")
}

// Init initializes the logging system with zerolog
func Init(opts Options) error {
	logDir := opts.Dir
	if logDir == "" {
		logDir = DefaultDir()
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	logPath := filepath.Join(logDir, "bizbridge.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	logFile = f

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure field names
	zerolog.MessageFieldName = "msg"

	var w io.Writer = logFile
	if opts.Also != nil {
		w = zerolog.MultiLevelWriter(logFile, opts.Also)
	}

	// Create logger with hook that adds timestamp last
	Logger = zerolog.New(w).Hook(timestampHook{})

	return nil
}

// SetOutput points the logger at w, used by tests and the mock backend
func SetOutput(w io.Writer) {
	Logger = zerolog.New(w).Hook(timestampHook{})
}

// Close closes the log file
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Debug returns a debug level event
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info returns an info level event
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn returns a warn level event
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error returns an error level event
func Error() *zerolog.Event {
	return Logger.Error()
}
