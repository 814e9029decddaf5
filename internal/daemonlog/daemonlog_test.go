package daemonlog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsProductionAndDebugLoggers(t *testing.T) {
	if _, err := New(Options{}); err != nil {
		t.Fatalf("New(production): %v", err)
	}
	if _, err := New(Options{Debug: true}); err != nil {
		t.Fatalf("New(debug): %v", err)
	}
}

func TestPrintfAdaptsToFormatStringCallback(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	fn := Printf(logger.Sugar())
	fn("rib: install %s cost=%d", "10.0.0.1", 20)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 log entry, got %d", len(entries))
	}
	want := "rib: install 10.0.0.1 cost=20"
	if entries[0].Message != want {
		t.Fatalf("logged message = %q, want %q", entries[0].Message, want)
	}
}
