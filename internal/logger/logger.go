package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	INFO Level = iota
	WARN
	ERROR
	DEBUG
)

func (l Level) String() string {
	switch l {
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case DEBUG:
		return "DEBUG"
	}
	return "UNKNOWN"
}

type palette struct {
	reset, red, green, yellow, gray, cyan string
}

var (
	colors = palette{
		reset:  "\033[0m",
		red:    "\033[31m",
		green:  "\033[32m",
		yellow: "\033[33m",
		gray:   "\033[90m",
		cyan:   "\033[36m",
	}

	mu    sync.Mutex
	out   io.Writer = os.Stdout
	debug bool

	// Optional sink for the dashboard websocket
	logChan   chan LogEntry
	logChanMu sync.RWMutex
)

// LogEntry represents a structured log message
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Init applies environment driven settings (NO_COLOR, OWT_DEBUG).
func Init() {
	if os.Getenv("NO_COLOR") != "" {
		DisableColors()
	}
	if os.Getenv("OWT_DEBUG") != "" {
		SetDebug(true)
	}
}

func DisableColors() {
	mu.Lock()
	defer mu.Unlock()
	colors = palette{}
}

// SetDebug toggles DEBUG output. DEBUG lines are dropped when disabled.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debug = enabled
}

// SetOutput redirects console output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// SetLogChannel sets a channel to stream logs to (e.g., for dashboard)
func SetLogChannel(ch chan LogEntry) {
	logChanMu.Lock()
	defer logChanMu.Unlock()
	logChan = ch
}

func log(level Level, component string, format string, args ...interface{}) {
	mu.Lock()
	if level == DEBUG && !debug {
		mu.Unlock()
		return
	}
	c := colors
	w := out
	mu.Unlock()

	now := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)

	var color string
	switch level {
	case INFO:
		color = c.green
	case WARN:
		color = c.yellow
	case ERROR:
		color = c.red
	case DEBUG:
		color = c.gray
	}

	fmt.Fprintf(w, "%s[%s]%s %s[%s]%s %s[%s]%s: %s\n",
		c.gray, now, c.reset,
		color, level, c.reset,
		c.cyan, component, c.reset,
		msg,
	)

	entry := LogEntry{
		Timestamp: now,
		Level:     level.String(),
		Component: component,
		Message:   msg,
	}

	logChanMu.RLock()
	if logChan != nil {
		select {
		case logChan <- entry:
		default:
			// Drop log if channel is full
		}
	}
	logChanMu.RUnlock()
}

func Info(component string, format string, args ...interface{}) {
	log(INFO, component, format, args...)
}

func Warn(component string, format string, args ...interface{}) {
	log(WARN, component, format, args...)
}

func Error(component string, format string, args ...interface{}) {
	log(ERROR, component, format, args...)
}

func Debug(component string, format string, args ...interface{}) {
	log(DEBUG, component, format, args...)
}
