package build

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// LogConfig describes where and how verbosely the daemon logs.
type LogConfig struct {
	// Level is a btclog level name such as "debug" or "info".
	Level string

	// Dir enables the rotating log file when non-empty.
	Dir string

	// MaxFiles and MaxFileSizeMB tune the rotator.
	MaxFiles      int
	MaxFileSizeMB int

	// Console receives the human-readable stream. Defaults to stderr.
	Console io.Writer
}

// Loggers bundles the root logger with the sinks behind it.
type Loggers struct {
	// Root is handed to every service constructor.
	Root *slog.Logger

	handlers *HandlerSet
	rotator  *RotatingLogWriter
}

// SubLoggerFunc installs a package-level logger, e.g. actor.UseLogger.
type SubLoggerFunc func(btclogv2.Logger)

// SetupLoggers builds the console and file handlers, fans them out through a
// HandlerSet and hands each registered subsystem its tagged logger.
func SetupLoggers(cfg LogConfig,
	subsystems map[string]SubLoggerFunc) (*Loggers, error) {

	level, ok := btclog.LevelFromString(cfg.Level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []btclogv2.Handler{btclogv2.NewDefaultHandler(console)}

	var rot *RotatingLogWriter
	if cfg.Dir != "" {
		rot = NewRotatingLogWriter()
		rcfg := DefaultLogRotatorConfig()
		rcfg.LogDir = cfg.Dir
		if cfg.MaxFiles > 0 {
			rcfg.MaxLogFiles = cfg.MaxFiles
		}
		if cfg.MaxFileSizeMB > 0 {
			rcfg.MaxLogFileSize = cfg.MaxFileSizeMB
		}
		if err := rot.Init(rcfg); err != nil {
			return nil, err
		}
		handlers = append(handlers, btclogv2.NewDefaultHandler(rot))
	}

	set := NewHandlerSet(handlers...)
	set.SetLevel(level)

	for tag, use := range subsystems {
		use(btclogv2.NewSLogger(set.SubSystem(tag)))
	}

	return &Loggers{
		Root:     slog.New(set),
		handlers: set,
		rotator:  rot,
	}, nil
}

// SetLevel changes the level of every sink at runtime.
func (l *Loggers) SetLevel(name string) error {
	level, ok := btclog.LevelFromString(name)
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	l.handlers.SetLevel(level)

	return nil
}

// Close flushes the log file, if any.
func (l *Loggers) Close() error {
	if l.rotator == nil {
		return nil
	}

	return l.rotator.Close()
}
