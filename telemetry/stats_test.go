package telemetry

import (
	"math"
	"testing"
)

func texels(vals ...[4]float32) []float32 {
	out := make([]float32, 0, len(vals)*4)
	for _, v := range vals {
		out = append(out, v[:]...)
	}
	return out
}

func TestComputeFrameStats(t *testing.T) {
	prev := texels([4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 1}, [4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0})
	cur := texels([4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0}, [4]float32{0, 0, 0, 0})
	next := texels([4]float32{1, 10, 0, 0}, [4]float32{2, 20, 0, 0}, [4]float32{3, 30, 0, 1}, [4]float32{9, 99, 0, 1})
	speeds := texels([4]float32{0, 0, 0, 0.2}, [4]float32{0, 0, 0, 0.4}, [4]float32{0, 0, 0, 0.6}, [4]float32{0, 0, 0, 5})

	// Only the first three texels are active.
	s := ComputeFrameStats(7, 3, [3][]float32{prev, cur, next}, speeds)

	if s.Frame != 7 || s.Particles != 3 {
		t.Errorf("unexpected header %+v", s)
	}
	if s.Reseeded != 1 || math.Abs(s.ReseedFraction-1.0/3) > 1e-12 {
		t.Errorf("expected 1 reseeded, got %d (%v)", s.Reseeded, s.ReseedFraction)
	}
	if s.Segments != 1 {
		t.Errorf("expected 1 drawn segment, got %d", s.Segments)
	}
	if math.Abs(s.SpeedNormMean-0.4) > 1e-6 {
		t.Errorf("expected mean norm 0.4, got %v", s.SpeedNormMean)
	}
	if math.Abs(s.SpeedNormStd-0.2) > 1e-6 {
		t.Errorf("expected sample stddev 0.2, got %v", s.SpeedNormStd)
	}
	if math.Abs(s.LatMean-20) > 1e-9 {
		t.Errorf("expected lat mean 20, got %v", s.LatMean)
	}
	if math.Abs(s.SpeedNormP90-0.6) > 1e-6 {
		t.Errorf("expected p90 0.6, got %v", s.SpeedNormP90)
	}
}

func TestComputeFrameStatsEmpty(t *testing.T) {
	s := ComputeFrameStats(1, 0, [3][]float32{}, nil)
	if s.Reseeded != 0 || s.SpeedNormMean != 0 {
		t.Errorf("expected zero stats, got %+v", s)
	}
}
