package log

import (
	"io"
	"log"
	"os"
)

// Logger is the logging interface used throughout this module.
type Logger interface {
	Debugf(format string, args ...interface{})

	Infof(format string, args ...interface{})

	Warnf(format string, args ...interface{})

	Errorf(format string, args ...interface{})

	Fatalf(format string, args ...interface{})
}

// DefaultLogger receives everything logged through the package level
// functions.
var DefaultLogger Logger

func init() {
	DefaultLogger = &logWrapper{console: log.New(os.Stderr, "", log.LstdFlags)}
}

// logWrapper writes to the console and, when a sink has been set, to a log
// file. The file sink always receives debug output; the console only sees it
// in verbose mode. Quiet mode silences the console for everything below
// Errorf, errors are never suppressed.
type logWrapper struct {
	console *log.Logger
	file    *log.Logger
	quiet   bool
	verbose bool
}

func (l *logWrapper) emit(level, format string, args ...interface{}) {
	if l.file != nil {
		l.file.Printf(level+format, args...)
	}
	if l.quiet {
		return
	}
	l.console.Printf(level+format, args...)
}

func (l *logWrapper) Debugf(format string, args ...interface{}) {
	if l.file != nil {
		l.file.Printf("[DEBUG] "+format, args...)
	}
	if l.quiet || !l.verbose {
		return
	}
	l.console.Printf("[DEBUG] "+format, args...)
}

func (l *logWrapper) Infof(format string, args ...interface{}) {
	l.emit("", format, args...)
}

func (l *logWrapper) Warnf(format string, args ...interface{}) {
	l.emit("[WARN] ", format, args...)
}

func (l *logWrapper) Errorf(format string, args ...interface{}) {
	if l.file != nil {
		l.file.Printf("[ERROR] "+format, args...)
	}
	l.console.Printf("[ERROR] "+format, args...)
}

func (l *logWrapper) Fatalf(format string, args ...interface{}) {
	if l.file != nil {
		l.file.Printf("[FATAL] "+format, args...)
	}
	l.console.Fatalf("[FATAL] "+format, args...)
}

// SetQuiet silences console output below the error level.
func SetQuiet(quiet bool) {
	if l, ok := DefaultLogger.(*logWrapper); ok {
		l.quiet = quiet
	}
}

// SetVerbose enables debug output on the console.
func SetVerbose(verbose bool) {
	if l, ok := DefaultLogger.(*logWrapper); ok {
		l.verbose = verbose
	}
}

// SetFile adds a log file sink that receives all levels including debug.
func SetFile(w io.Writer) {
	if l, ok := DefaultLogger.(*logWrapper); ok {
		l.file = log.New(w, "", log.LstdFlags)
	}
}

func Debugf(format string, args ...interface{}) {
	DefaultLogger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	DefaultLogger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	DefaultLogger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	DefaultLogger.Fatalf(format, args...)
}
