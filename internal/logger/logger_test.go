package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesToFile(t *testing.T) {
	prevOut, prevLevel := Log.Out, Log.GetLevel()
	t.Cleanup(func() {
		Log.SetOutput(prevOut)
		Log.SetLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "dispatch.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Log.Infof("[Enterprise] hello %d", 42)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read log file: %v", err)
	}
	if !strings.Contains(string(data), "Logger initialized.") {
		t.Errorf("log file is missing the init line: %q", data)
	}
	if !strings.Contains(string(data), "hello 42") {
		t.Errorf("log file is missing the info line: %q", data)
	}
}

func TestSetLevel(t *testing.T) {
	prev := Log.GetLevel()
	t.Cleanup(func() { Log.SetLevel(prev) })

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug) failed: %v", err)
	}
	if Log.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %v", Log.GetLevel())
	}
	if err := SetLevel("chatty"); err == nil {
		t.Errorf("Expected an error for an unknown level")
	}
}
