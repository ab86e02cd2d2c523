package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/momentics/wstransport/internal/config"
)

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wsecho.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:   "debug",
		Format:  "json",
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Debug("frame", zap.String("op", "ping"))
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"frame"`) || !strings.Contains(string(data), `"op":"ping"`) {
		t.Fatalf("unexpected log output %q", data)
	}
	if zap.L() != logger {
		t.Fatal("logger not installed globally")
	}
}

func TestSetupLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "rotated.log")
	logger, err := SetupLogger(config.LogConfig{
		Level:   "info",
		Outputs: []string{"ignored.log"},
		Rotation: config.RotationConfig{
			Enable:   true,
			Filename: name,
		},
	})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Debug("hidden")
	logger.Info("shown")
	logger.Sync()

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Fatalf("level not honoured: %q", data)
	}
	if _, err := os.Stat("ignored.log"); err == nil {
		t.Fatal("rotation filename must take precedence over the output name")
	}
}

func TestSetupLoggerBadLevel(t *testing.T) {
	if _, err := SetupLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
