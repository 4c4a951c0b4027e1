package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsFile = "diagnostics_log.txt"
	transcriptFile  = "transcript_log.txt"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	textFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// ResolveDir picks the log directory: -logpath flag, then RTSCRIBE_LOG_PATH,
// then the OS default. Relative paths resolve against the working directory.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("RTSCRIBE_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	textFile, err = os.OpenFile(filepath.Join(dir, transcriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if textFile != nil {
		textFile.Close()
		textFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(provider, policy string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("policy", policy).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("fragments", count).
		Msg("session_end")
}

func RecordingState(state string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("state", state).Msg("recording_state")
}

func RecognizerError(err error) {
	if !logReady {
		return
	}
	diagLog.Error().Err(err).Msg("recognizer_error")
}

func CommandFired(trigger, action string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("trigger", trigger).
		Str("action", action).
		Msg("command")
}

// Fragment appends a recognized fragment to transcript_log.txt.
// Interim fragments only go to the diagnostics log.
func Fragment(text string, final bool) {
	if !logReady {
		return
	}
	if !final {
		diagLog.Debug().Str("text", text).Msg("interim")
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if textFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	textFile.WriteString(line)
}
