package main

import (
	"os"
	"testing"

	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
)

func TestDump(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Screen.Width, cfg.Screen.Height = 40, 30
	cfg.Engine.ParticleCount = 100
	cfg.Data.Synthetic = field.SyntheticSpec{Kind: field.Vortex, Lon: 16, Lat: 9, Lev: 1, MaxSpeed: 20}

	files, err := dump(cfg, 3, t.TempDir())
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(files) != 6 {
		t.Fatalf("expected 6 files, got %v", files)
	}
	for _, f := range files {
		if info, err := os.Stat(f); err != nil || info.Size() == 0 {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}
}

func TestShadePosition(t *testing.T) {
	c := shadePosition(gpu.Texel{180, 0, 0, 1})
	if c.R != 127 || c.G != 127 || c.B != 255 {
		t.Errorf("unexpected colour %v", c)
	}
}
