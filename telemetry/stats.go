package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// FrameStats summarizes the particle population after one tick.
type FrameStats struct {
	Frame     uint64 `csv:"frame"`
	Particles int    `csv:"particles"`

	// Particles reseeded this frame
	Reseeded       int     `csv:"reseeded"`
	ReseedFraction float64 `csv:"reseed_fraction"`

	// Particles whose three slots are all advected, i.e. that drew a ribbon
	Segments int `csv:"segments"`

	SpeedNormMean float64 `csv:"speed_norm_mean"`
	SpeedNormStd  float64 `csv:"speed_norm_std"`
	SpeedNormP90  float64 `csv:"speed_norm_p90"`

	LatMean float64 `csv:"lat_mean"`
	LatStd  float64 `csv:"lat_std"`
}

// ComputeFrameStats derives statistics from particle texture readbacks.
// slots holds the previous, current and next position textures and speeds
// the speed texture, each four values per texel; only the first count
// texels are read.
func ComputeFrameStats(frame uint64, count int, slots [3][]float32, speeds []float32) FrameStats {
	s := FrameStats{Frame: frame, Particles: count}
	if count == 0 {
		return s
	}

	next := slots[2]
	norms := make([]float64, count)
	lats := make([]float64, count)
	for i := 0; i < count; i++ {
		if next[i*4+3] != 0 {
			s.Reseeded++
		}
		if slots[0][i*4+3] == 0 && slots[1][i*4+3] == 0 && next[i*4+3] == 0 {
			s.Segments++
		}
		norms[i] = float64(speeds[i*4+3])
		lats[i] = float64(next[i*4+1])
	}

	s.ReseedFraction = float64(s.Reseeded) / float64(count)
	s.SpeedNormMean, s.SpeedNormStd = stat.MeanStdDev(norms, nil)
	s.LatMean, s.LatStd = stat.MeanStdDev(lats, nil)

	sort.Float64s(norms)
	s.SpeedNormP90 = stat.Quantile(0.9, stat.Empirical, norms, nil)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frame", s.Frame),
		slog.Int("particles", s.Particles),
		slog.Int("reseeded", s.Reseeded),
		slog.Int("segments", s.Segments),
		slog.Float64("speed_norm_mean", s.SpeedNormMean),
		slog.Float64("speed_norm_p90", s.SpeedNormP90),
	)
}
