package logging

import (
	"log/slog"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"huh":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, 100); got != 100 {
		t.Errorf("orDefault(0, 100) = %d, want 100", got)
	}
	if got := orDefault(-5, 100); got != 100 {
		t.Errorf("orDefault(-5, 100) = %d, want 100", got)
	}
	if got := orDefault(7, 100); got != 7 {
		t.Errorf("orDefault(7, 100) = %d, want 7", got)
	}
}

func TestNewWithoutPathReturnsUsableLogger(t *testing.T) {
	log := New(Options{Level: "debug"})
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	log.Info("test message", "k", "v")
}

func TestNewWithPathRotatesToFile(t *testing.T) {
	log := New(Options{Path: filepath.Join(t.TempDir(), "rowkeep.log"), Level: "info"})
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	log.Info("test message")
}
