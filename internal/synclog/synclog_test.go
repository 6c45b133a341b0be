package synclog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesJSONLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")

	logger := New(Options{Path: path})
	logger.Transition("shift", "shift-1", "pending", "synced", "")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(blob)
	if !strings.Contains(line, `"msg":"status transition"`) {
		t.Errorf("missing transition message: %s", line)
	}
	if !strings.Contains(line, `"record_id":"shift-1"`) {
		t.Errorf("missing record id: %s", line)
	}
}

func TestNew_DebugLowersLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")

	logger := New(Options{Path: path})
	logger.Debug("invisible")
	logger.Close()

	blob, _ := os.ReadFile(path)
	if strings.Contains(string(blob), "invisible") {
		t.Error("debug line written at info level")
	}

	path = filepath.Join(t.TempDir(), "sync.log")
	logger = New(Options{Path: path, Debug: true})
	logger.Debug("visible")
	logger.Close()

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(blob), "visible") {
		t.Error("debug line missing in debug mode")
	}
}
