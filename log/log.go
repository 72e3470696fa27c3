package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const appName = "parley"

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: PARLEY_LOG_PATH environment variable
	if envPath := os.Getenv("PARLEY_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return defaultDir()
}

// defaultDir follows each platform's convention for per-user logs.
func defaultDir() (string, error) {
	if runtime.GOOS == "windows" {
		local, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(local, appName, "logs"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", appName), nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, appName, "logs"), nil
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
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

	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcriptFile, err = os.OpenFile(filepath.Join(dir, "transcript_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
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

	logReady.Store(true)
	return nil
}

// Logger exposes the diagnostics logger for libraries that want a sink.
// It is a no-op logger until Init succeeds.
func Logger() zerolog.Logger {
	if !logReady.Load() {
		return zerolog.Nop()
	}
	return diagLog
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady.Store(false)
}

func Info(msg string) {
	if logReady.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady.Load() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(model, mode string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("model", model).
		Str("mode", mode).
		Msg("session_start")
}

func SessionEnd(items, events int) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Int("items", items).
		Int("events", events).
		Msg("session_end")
}

func TurnMode(mode string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().Str("mode", mode).Msg("turn_mode")
}

func Cancel(trackID string, offset int) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("item", trackID).
		Int("offset", offset).
		Msg("response_cancel")
}

func DecodeFailed(itemID string, err error) {
	if !logReady.Load() {
		return
	}
	diagLog.Warn().
		Str("item", itemID).
		Err(err).
		Msg("decode_failed")
}

// Transcript appends one finished utterance to the transcript log.
func Transcript(role, text string) {
	if !logReady.Load() || text == "" {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcriptFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, role, text)
	transcriptFile.WriteString(line)
}
