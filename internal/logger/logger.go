package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Separator frames request blocks in the log output.
const Separator = "--------------------------------------------------------------"

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	jsonFormat   bool
	console      io.Writer = os.Stdout
	file         *os.File
	logger       = stdlog.New(os.Stdout, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects "text" (default) or "json" line encoding.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = strings.EqualFold(format, "json")
}

// SetOutput replaces the console writer. A file sink enabled with
// EnableFileSink keeps receiving a copy of every line.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
	rebuild()
}

// EnableFileSink appends every log line to the file at path in addition to
// the console. The file is created when missing. An error means the path is
// not writable and the sink stays disabled.
func EnableFileSink(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Close()
	}
	file = f
	rebuild()
	return nil
}

// CloseFileSink detaches and closes the file sink, if any.
func CloseFileSink() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	rebuild()
	return err
}

// rebuild must be called with mu held.
func rebuild() {
	if file != nil {
		logger = stdlog.New(io.MultiWriter(console, file), "", 0)
		return
	}
	logger = stdlog.New(console, "", 0)
}

func format(level Level, ts time.Time, message string) string {
	if jsonFormat {
		b, _ := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"msg"`
		}{ts.Format(time.RFC3339), level.String(), message})
		return string(b)
	}
	return fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), level.String(), message)
}

func log(level Level, f string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}
	logger.Println(format(level, time.Now(), fmt.Sprintf(f, v...)))
}

// Block writes a group of lines as one contiguous entry framed by separator
// lines. Concurrent callers never interleave their blocks.
func Block(level Level, lines []string) {
	if len(lines) == 0 {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	var sb strings.Builder
	if !jsonFormat {
		sb.WriteString(Separator)
		sb.WriteByte('\n')
	}
	for _, line := range lines {
		sb.WriteString(format(level, now, line))
		sb.WriteByte('\n')
	}
	if !jsonFormat {
		sb.WriteString(Separator)
		sb.WriteByte('\n')
	}
	logger.Print(sb.String())
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
