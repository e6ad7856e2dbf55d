package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type captured struct {
	level  slog.Level
	msg    string
	err    error
	extras map[string]interface{}
}

func TestReportingHandlerForwardsErrors(t *testing.T) {
	var buf bytes.Buffer
	var got []captured
	handler := NewReportingHandler(slog.NewTextHandler(&buf, nil), func(level slog.Level, msg string, err error, extras map[string]interface{}) {
		got = append(got, captured{level, msg, err, extras})
	})
	logger := slog.New(handler).With("service", "portal").WithGroup("req")

	boom := errors.New("boom")
	logger.Info("fine", "id", 1)
	logger.Error("resolve failed", "error", boom, "auth_id", "a-1")

	if len(got) != 1 {
		t.Fatalf("expected one report, got %d", len(got))
	}
	if got[0].msg != "resolve failed" || got[0].err != boom {
		t.Fatalf("unexpected report %+v", got[0])
	}
	if got[0].extras["service"] != "portal" || got[0].extras["req.auth_id"] != "a-1" {
		t.Fatalf("unexpected extras %+v", got[0].extras)
	}
	if !strings.Contains(buf.String(), "resolve failed") || !strings.Contains(buf.String(), "fine") {
		t.Fatalf("records not passed through: %s", buf.String())
	}
}

func TestNewPicksFormatByEnv(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Env: "prod"}).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON in prod, got %q", buf.String())
	}

	buf.Reset()
	logger := New(&buf, Options{Env: "dev", Level: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}
