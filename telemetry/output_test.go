package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeConfig struct{}

func (fakeConfig) WriteYAML(path string) error {
	return os.WriteFile(path, []byte("engine: {}\n"), 0644)
}

func TestOutputManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	for frame := uint64(1); frame <= 3; frame++ {
		if err := om.WriteFrame(FrameStats{Frame: frame, Particles: 10}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := om.WritePerf(PerfStats{}, 3); err != nil {
		t.Fatalf("WritePerf: %v", err)
	}
	if err := om.WriteConfig(fakeConfig{}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "frame,particles,") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("expected config.yaml: %v", err)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("expected nil manager, got %v, %v", om, err)
	}
	if err := om.WriteFrame(FrameStats{}); err != nil {
		t.Errorf("expected nil manager to discard, got %v", err)
	}
	if om.Dir() != "" || om.Close() != nil {
		t.Error("expected nil manager to be inert")
	}
}
