package log

import (
	"errors"
	"testing"
)

type entry struct {
	level  string
	msg    string
	fields map[string]any
}

type testLogger struct {
	entries []entry
}

func (l *testLogger) add(level string, f map[string]any, msg string) {
	l.entries = append(l.entries, entry{level: level, msg: msg, fields: f})
}

func (l *testLogger) Info(f map[string]any, msg string)  { l.add("INFO", f, msg) }
func (l *testLogger) Error(f map[string]any, msg string) { l.add("ERROR", f, msg) }
func (l *testLogger) Debug(f map[string]any, msg string) { l.add("DEBUG", f, msg) }
func (l *testLogger) Warn(f map[string]any, msg string)  { l.add("WARN", f, msg) }
func (l *testLogger) Panic(f map[string]any, msg string) { l.add("PANIC", f, msg) }
func (l *testLogger) Fatal(f map[string]any, msg string) { l.add("FATAL", f, msg) }

func TestActualZapLogger(t *testing.T) {
	Debug(map[string]any{
		"host":    "example.com",
		"rules":   3,
		"blocked": true,
		"error":   errors.New("boom"),
	}, "test debug")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic, but none occurred")
		}
	}()
	Panic(nil, "test panic")
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	tlog := &testLogger{}
	SetLogger(tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	expected := []string{"INFO:info msg", "ERROR:error msg", "DEBUG:debug msg", "WARN:warn msg"}
	if len(tlog.entries) != len(expected) {
		t.Fatalf("expected %d log entries, got %d", len(expected), len(tlog.entries))
	}
	for i, want := range expected {
		got := tlog.entries[i].level + ":" + tlog.entries[i].msg
		if got != want {
			t.Errorf("expected log[%d] = %q, got %q", i, want, got)
		}
	}
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	tests := []struct {
		env, level string
		wantErr    bool
	}{
		{"dev", "debug", false},
		{"prod", "info", false},
		{"prod", " WARN ", false},
		{"dev", "notalevel", true},
	}
	for _, tt := range tests {
		err := Configure(tt.env, tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("Configure(%q, %q) err=%v, wantErr=%v", tt.env, tt.level, err, tt.wantErr)
		}
	}
}

func TestWithFields_MergesAndOverrides(t *testing.T) {
	tlog := &testLogger{}
	l := WithFields(tlog, map[string]any{"component": "proxy", "addr": ":8080"})

	l.Info(map[string]any{"addr": ":9090", "host": "example.com"}, "request_blocked")

	if len(tlog.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(tlog.entries))
	}
	f := tlog.entries[0].fields
	if f["component"] != "proxy" {
		t.Errorf("component=%v, want proxy", f["component"])
	}
	if f["addr"] != ":9090" {
		t.Errorf("addr=%v, want per-call value :9090", f["addr"])
	}
	if f["host"] != "example.com" {
		t.Errorf("host=%v, want example.com", f["host"])
	}
}

func TestWithFields_EmptyBaseReturnsSameLogger(t *testing.T) {
	tlog := &testLogger{}
	if got := WithFields(tlog, nil); got != Logger(tlog) {
		t.Fatalf("expected the wrapped logger to be returned unchanged")
	}
}

func TestWithFields_AllLevels(t *testing.T) {
	tlog := &testLogger{}
	l := WithFields(tlog, map[string]any{"k": "v"})
	l.Debug(nil, "d")
	l.Info(nil, "i")
	l.Warn(nil, "w")
	l.Error(nil, "e")
	l.Panic(nil, "p")
	l.Fatal(nil, "f")
	if len(tlog.entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(tlog.entries))
	}
	for _, e := range tlog.entries {
		if e.fields["k"] != "v" {
			t.Errorf("%s entry missing base field", e.level)
		}
	}
}

func TestNoopLogger_AllLevels(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	SetLogger(NewNoopLogger())

	Debug(nil, "debug message")
	Info(nil, "info message")
	Warn(nil, "warn message")
	Error(nil, "error message")
	Panic(nil, "panic message")
	Fatal(nil, "fatal message")
}
