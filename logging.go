package soilvol

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// lineFormatter renders `time [module] LEVEL: message` with the short level
// names DEBUG, INFO, WARN and ERROR.
type lineFormatter struct{}

var levelNames = map[logging.Level]string{
	logging.CRITICAL: "ERROR",
	logging.ERROR:    "ERROR",
	logging.WARNING:  "WARN",
	logging.NOTICE:   "INFO",
	logging.INFO:     "INFO",
	logging.DEBUG:    "DEBUG",
}

func (lineFormatter) Format(calldepth int, r *logging.Record, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s [%s] %s: %s",
		r.Time.Format("2006/01/02 15:04:05.000000"), r.Module, levelNames[r.Level], r.Message())
	return err
}

// DefaultLogger writes debug/info lines to stdout and warnings/errors to
// stderr. Each instance owns its backends, so loggers never share a level.
type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	out    *logging.Logger
	outLvl logging.LeveledBackend
	err    *logging.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewLoggerWithSinks(prefix, debug, os.Stdout, os.Stderr)
}

// NewLoggerWithSinks is NewDefaultLogger with explicit output streams.
func NewLoggerWithSinks(prefix string, debug bool, stdout, stderr io.Writer) *DefaultLogger {
	if prefix == "" {
		prefix = "soilvol"
	}
	l := &DefaultLogger{
		out: logging.MustGetLogger(prefix),
		err: logging.MustGetLogger(prefix),
	}
	l.outLvl = leveledSink(stdout, logging.INFO)
	l.out.SetBackend(l.outLvl)
	l.err.SetBackend(leveledSink(stderr, logging.WARNING))
	l.SetDebug(debug)
	return l
}

func leveledSink(w io.Writer, level logging.Level) logging.LeveledBackend {
	backend := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), lineFormatter{})
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(level, "")
	return leveled
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	if enabled {
		l.outLvl.SetLevel(logging.DEBUG, "")
	} else {
		l.outLvl.SetLevel(logging.INFO, "")
	}
	l.mu.Unlock()
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.out.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Warningf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Errorf(format, args...)
}

// Nop logger

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// OrNop returns l, or a no-op logger when l is nil. Never returns nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
