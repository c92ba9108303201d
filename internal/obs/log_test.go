package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONLoggerEmitsStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	restore := SetLogger(NewJSONLogger(&buf, zapcore.InfoLevel))
	defer restore()

	Logger().Info("request_complete", zap.String("endpoint", "/srq20/"), zap.Int("status", 200))
	Logger().Debug("dropped")

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected exactly one line, got %q", line)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "endpoint", "status"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
}

func TestSetLoggerNilFallsBackToNop(t *testing.T) {
	restore := SetLogger(nil)
	defer restore()
	if Logger() == nil {
		t.Fatal("expected non-nil logger")
	}
	Logger().Error("ignored")
}
