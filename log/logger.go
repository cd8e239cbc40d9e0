package log

import (
	"io"
	"os"

	"github.com/op/go-logging"
	"golang.org/x/term"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// Formats used when the sink is a terminal and when it is not.
var (
	colorFormat = logging.MustStringFormatter(
		`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
	)
	plainFormat = logging.MustStringFormatter(
		`[%{time:15:04:05.000}] [%{module}] [%{level:.4s}] %{message}`,
	)
)

// The internal leveled logger backend
var leveledBackend logging.LeveledBackend

// The current verbosity, re-applied whenever the sink changes.
var currentLevel = Notice

// Logger is the named leveled logger used across the engine.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New creates a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// SetSink overrides the backend output sink. Colors are only emitted when the
// sink is a terminal.
func SetSink(sink io.Writer) {
	format := plainFormat
	if f, ok := sink.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		format = colorFormat
	}
	backend := logging.NewLogBackend(sink, "", 0)
	backendWithFormatter := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(backendWithFormatter)
	logging.SetBackend(leveledBackend)
	SetLevel(currentLevel)
}

// SetLevel sets logger verbosity.
func SetLevel(level Level) {
	var loggerLevel logging.Level

	switch level {
	case Debug:
		loggerLevel = logging.DEBUG
	case Info:
		loggerLevel = logging.INFO
	case Notice:
		loggerLevel = logging.NOTICE
	case Warning:
		loggerLevel = logging.WARNING
	case Error:
		loggerLevel = logging.ERROR
	default:
		loggerLevel = logging.NOTICE
	}

	currentLevel = level
	leveledBackend.SetLevel(loggerLevel, "")
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Notice)
}
