package main

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/renderer"
)

func newFadeCmd() *cobra.Command {
	var opacity float64
	cmd := &cobra.Command{
		Use:   "fade",
		Short: "plot how a trail pixel decays with no new segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			if !cmd.Flags().Changed("opacity") {
				opacity = cfg.Engine.FadeOpacity
			}
			if opacity < 0 || opacity >= 1 {
				return fmt.Errorf("opacity %v: trails only clear for values in [0, 1)", opacity)
			}

			quantized, ideal := fadeCurve(opacity)
			fmt.Println(asciigraph.PlotMany([][]float64{quantized, ideal},
				asciigraph.Height(15),
				asciigraph.Width(80),
				asciigraph.SeriesColors(asciigraph.Green, asciigraph.DarkGray),
				asciigraph.Caption(fmt.Sprintf("alpha per frame at fade_opacity %g (8-bit, continuous)", opacity)),
			))
			fmt.Println()

			bound := renderer.FramesToClear(opacity)
			fmt.Printf("cleared after %d frames (bound %d), %.2fs at %d fps\n",
				len(quantized)-1, bound, float64(len(quantized)-1)/float64(cfg.Screen.TargetFPS), cfg.Screen.TargetFPS)
			return nil
		},
	}
	cmd.Flags().Float64Var(&opacity, "opacity", 0, "fade opacity (default engine.fade_opacity)")
	return cmd
}

// fadeCurve returns the alpha of an opaque pixel faded frame by frame until
// it reaches zero, alongside the unquantized f^n.
func fadeCurve(f float64) (quantized, ideal []float64) {
	c := gpu.Texel{1, 1, 1, 1}
	for n := 0; ; n++ {
		quantized = append(quantized, float64(c[3]))
		ideal = append(ideal, math.Pow(f, float64(n)))
		if c[3] == 0 {
			return quantized, ideal
		}
		c = renderer.Fade(c, f)
	}
}
