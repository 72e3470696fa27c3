package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/parley-logs")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/parley-logs" {
		t.Errorf("got %q, want /tmp/parley-logs", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("PARLEY_LOG_PATH", "/tmp/parley-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/parley-env-log" {
		t.Errorf("got %q, want /tmp/parley-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("PARLEY_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "parley") {
		t.Errorf("default directory %q does not mention parley", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "transcript_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTranscript(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Transcript("agent", "hello world")
	Transcript("you", "")

	data, err := os.ReadFile(filepath.Join(tmp, "transcript_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), data)
	}
	// format: "2006-01-02 15:04:05\t[pid]\trole\ttext"
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 4 || fields[2] != "agent" || fields[3] != "hello world" {
		t.Errorf("unexpected transcript line: %q", lines[0])
	}
}

func TestDiagnosticsHelpers(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("gpt-4o-realtime-preview", "manual")
	TurnMode("vad")
	Cancel("item_1", 4800)
	DecodeFailed("item_2", errors.New("no space left"))
	SessionEnd(3, 12)
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"session_start", "turn_mode", "response_cancel", "offset=4800", "decode_failed", "no space left", "session_end", "events=12"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, data)
		}
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	setupLogDir(t)
	// none of these may panic without open files
	Info("x")
	Warnf("%d", 1)
	Transcript("you", "hi")
	l := Logger()
	l.Info().Msg("dropped")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
