package pgwire

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestLogger_SlogOutput(t *testing.T) {
	var buf bytes.Buffer
	var logger Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	logger.Debug("message framed", "type", "R", "length", 8)
	logger.Info("connection established", "addr", "127.0.0.1:5432")

	out := buf.String()
	if !strings.Contains(out, "message framed") {
		t.Errorf("output missing debug message: %q", out)
	}
	if !strings.Contains(out, "type=R") || !strings.Contains(out, "length=8") {
		t.Errorf("output missing debug attributes: %q", out)
	}
	if !strings.Contains(out, "connection established") {
		t.Errorf("output missing info message: %q", out)
	}
}

// mockLogger records calls for testing the Logger interface
type mockLogger struct {
	debugCalled bool
	infoCalled  bool
	warnCalled  bool
	errorCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *mockLogger) Debug(msg string, args ...any) {
	l.debugCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Info(msg string, args ...any) {
	l.infoCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.warnCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.errorCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func TestLogger_CustomImplementation(t *testing.T) {
	var logger Logger = &mockLogger{}

	mock := logger.(*mockLogger)

	logger.Debug("test debug", "key1", "value1")
	if !mock.debugCalled {
		t.Error("Debug not called")
	}
	if mock.lastMsg != "test debug" {
		t.Errorf("lastMsg = %s, want 'test debug'", mock.lastMsg)
	}
	if len(mock.lastArgs) != 2 {
		t.Errorf("lastArgs has %d elements, want 2", len(mock.lastArgs))
	}

	logger.Info("test info", "key2", "value2")
	if !mock.infoCalled {
		t.Error("Info not called")
	}

	logger.Warn("test warn", "key3", "value3")
	if !mock.warnCalled {
		t.Error("Warn not called")
	}

	logger.Error("test error", "key4", "value4")
	if !mock.errorCalled {
		t.Error("Error not called")
	}
}

func TestTransport_UsesCustomLogger(t *testing.T) {
	mock := &mockLogger{}

	opts := options{
		codec:     &mockCodec{},
		onMessage: func(Message) error { return nil },
		logger:    mock,
	}
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.logger != mock {
		t.Error("custom logger replaced by default")
	}
}
