package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv("SIGMATCH_LOG_LEVEL", "")
	t.Setenv("SIGMATCH_LOG_PREFIX", "")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("analyzing", "path", "a.elf")

	out := buf.String()
	if !strings.Contains(out, "analyzing") {
		t.Fatalf("message missing from output: %q", out)
	}
	if !strings.Contains(out, "sigmatch") {
		t.Fatalf("default prefix missing from output: %q", out)
	}
	if err := lg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewLoggerWithWriterLevel(t *testing.T) {
	t.Setenv("SIGMATCH_LOG_LEVEL", "error")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("info message logged at error level: %q", buf.String())
	}
	lg.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error message missing: %q", buf.String())
	}
}

func TestIsDebug(t *testing.T) {
	t.Setenv("SIGMATCH_LOG_LEVEL", "debug")
	if !IsDebug() {
		t.Fatal("IsDebug = false with SIGMATCH_LOG_LEVEL=debug")
	}

	t.Setenv("SIGMATCH_LOG_LEVEL", "info")
	if IsDebug() {
		t.Fatal("IsDebug = true without debug level")
	}
}
