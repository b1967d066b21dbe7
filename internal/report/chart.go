package report

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"ma-screener/internal/rank"
)

// RenderEquityChart renders the cumulative next-day return curve as PNG.
// Points sharing a date collapse to the last one of that date.
func RenderEquityChart(title string, points []rank.EquityPoint) ([]byte, error) {
	var xValues []time.Time
	var yValues []float64
	for _, p := range points {
		if n := len(xValues); n > 0 && xValues[n-1].Equal(p.Date) {
			yValues[n-1] = p.Cumulative
			continue
		}
		xValues = append(xValues, p.Date)
		yValues = append(yValues, p.Cumulative)
	}
	if len(xValues) < 2 {
		return nil, fmt.Errorf("need at least 2 equity dates, got %d", len(xValues))
	}

	equity := chart.TimeSeries{
		Name: "Cumulative return %",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("16a34a"), // green-600
			StrokeWidth: 2,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f%%", f)
				}
				return ""
			},
		},
		Series: []chart.Series{equity},
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteEquityChart renders the chart to path.
func WriteEquityChart(path, title string, points []rank.EquityPoint) error {
	png, err := RenderEquityChart(title, points)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}
