package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]int{
		"DEBUG":    levelDebug,
		"debug":    levelDebug,
		"INFO":     levelInfo,
		"WARN":     levelWarning,
		"WARNING":  levelWarning,
		"warning":  levelWarning,
		"ERROR":    levelError,
		"CRITICAL": levelCritical,
		"critical": levelCritical,
		"":         levelInfo,
		"VERBOSE":  levelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func capturing(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{
		name:   "test",
		logger: log.New(&buf, "", 0),
		level:  parseLevel(level),
	}, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := capturing("WARNING")
	l.Debug("d")
	l.Info("i")
	l.Warning("w")
	l.Error("e")

	out := buf.String()
	if strings.Contains(out, "DEBUG") || strings.Contains(out, "INFO") {
		t.Errorf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "WARNING") || !strings.Contains(out, "ERROR") {
		t.Errorf("enabled levels missing: %q", out)
	}
}

func TestCriticalLevelSilencesErrors(t *testing.T) {
	l, buf := capturing("CRITICAL")
	l.Debug("d")
	l.Info("i")
	l.Warning("w")
	l.Error("e")

	if out := buf.String(); out != "" {
		t.Errorf("expected silence below critical, got %q", out)
	}
}

func TestNamedSharesLevel(t *testing.T) {
	l, buf := capturing("ERROR")
	sub := l.Named("sub")
	sub.Warning("w")
	sub.Error("boom")

	out := buf.String()
	if strings.Contains(out, "WARNING") {
		t.Errorf("sub-logger did not inherit level: %q", out)
	}
	if !strings.Contains(out, "[sub] ERROR: boom") {
		t.Errorf("sub-logger name missing: %q", out)
	}
}
