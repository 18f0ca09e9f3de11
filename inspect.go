package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/field"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

func newInspectCmd() *cobra.Command {
	var lon, lat, lev float64
	cmd := &cobra.Command{
		Use:   "inspect [dataset]",
		Short: "summarize a dataset and optionally query a point",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			data := cfg.Data
			if len(args) == 1 {
				data.Path = args[0]
			}
			ds, err := data.Dataset()
			if err != nil {
				return err
			}
			g, err := field.NewGrid(ds, cfg.Engine.FlipY)
			if err != nil {
				return err
			}

			name := data.Path
			if name == "" {
				name = "synthetic " + string(data.Synthetic.Kind)
			}
			out := renderSummary(name, ds, g)

			if cmd.Flags().Changed("lon") || cmd.Flags().Changed("lat") {
				s := g.At(lon, lat, lev)
				out = lipgloss.JoinVertical(lipgloss.Left, out, boxStyle.Render(strings.Join([]string{
					headerStyle.Render(fmt.Sprintf("point (%.3f, %.3f, %g)", lon, lat, lev)),
					row("u", fmt.Sprintf("%.4f m/s", s.U)),
					row("v", fmt.Sprintf("%.4f m/s", s.V)),
					row("speed", fmt.Sprintf("%.4f m/s", s.Speed)),
					row("direction", fmt.Sprintf("%.1f°", s.Direction)),
				}, "\n")))
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lon, "lon", 0, "query longitude")
	cmd.Flags().Float64Var(&lat, "lat", 0, "query latitude")
	cmd.Flags().Float64Var(&lev, "lev", 0, "query level")
	return cmd
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func axisRow(a field.Axis, count int, interval float64) string {
	return fmt.Sprintf("%d  [%g, %g]  step %g", count, a.Min, a.Max, interval)
}

func renderSummary(name string, ds *field.Dataset, g *field.Grid) string {
	speeds := make([]float64, 0, len(g.U()))
	missing := 0
	for i, u := range g.U() {
		v := g.V()[i]
		if !finite(ds.U.Array[i]) || !finite(ds.V.Array[i]) {
			missing++
		}
		speeds = append(speeds, math.Hypot(float64(u), float64(v)))
	}
	mean, std := stat.MeanStdDev(speeds, nil)
	peak := 0.0
	for _, s := range speeds {
		peak = math.Max(peak, s)
	}

	w, h := g.TextureSize()
	lines := []string{
		headerStyle.Render(name),
		row("lon", axisRow(ds.Lon, g.LonCount, g.LonInterval)),
		row("lat", axisRow(ds.Lat, g.LatCount, g.LatInterval)),
		row("lev", axisRow(ds.Lev, g.LevCount, g.LevInterval)),
		row("global", fmt.Sprintf("%t", g.Global)),
		row("u range", fmt.Sprintf("[%g, %g]", g.URange.Min, g.URange.Max)),
		row("v range", fmt.Sprintf("[%g, %g]", g.VRange.Min, g.VRange.Max)),
		row("speed", fmt.Sprintf("mean %.3f  std %.3f  max %.3f", mean, std, peak)),
		row("missing", fmt.Sprintf("%d of %d", missing, len(speeds))),
		row("texture", fmt.Sprintf("%dx%d r32f x2", w, h)),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
