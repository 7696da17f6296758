package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithWriter(nil); err == nil {
		t.Fatal("expected error for nil writer")
	}
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	l := Get().With(String("importID", "imp-1"))
	l.Info(ctx, "imported score", String("scoreID", "T123"), Int("n", 3))

	out := buf.String()
	for _, want := range []string{"imported score", "importID=imp-1", "scoreID=T123", "n=3", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestLoggerSevereLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Severe(context.Background(), "song-chart desync", Error(errors.New("boom")))

	if !strings.Contains(buf.String(), "level=SEVERE") {
		t.Errorf("expected severe level label, got %q", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden at info")
	if strings.Contains(buf.String(), "hidden at info") {
		t.Fatal("debug output should be suppressed at info level")
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Named("orphans").Debug(ctx, "visible at debug")
	if !strings.Contains(buf.String(), "visible at debug") {
		t.Fatal("debug output should be written at debug level")
	}

	for _, lvl := range []string{"", "info", "warn", "warning", "error", "severe"} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: unexpected error %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerNilContext(t *testing.T) {
	if err := InitWithWriter(&bytes.Buffer{}); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	//nolint:staticcheck // nil context is tolerated on purpose
	Get().Warn(nil, "no context")
}
