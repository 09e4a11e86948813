// Package render draws the chart encodings under test as PNG images.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"chart-abtest-service/internal/domain"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth  = 1024
	chartHeight = 600
)

// ErrNothingToDraw is returned for empty inputs; go-chart refuses them too.
var ErrNothingToDraw = errors.New("nothing to draw")

var (
	barColor    = drawing.ColorFromHex("17408B")
	accentColor = drawing.ColorFromHex("C9082A")
	lightShade  = drawing.ColorFromHex("9ECAE1")
	darkShade   = drawing.ColorFromHex("08306B")
)

// TrialChart draws ranked with the encoding of variant.
func TrialChart(variant domain.Variant, title string, ranked []domain.RankedEntity) ([]byte, error) {
	if len(ranked) == 0 {
		return nil, ErrNothingToDraw
	}
	switch variant {
	case domain.VariantPrimary:
		return barChart(title, ranked)
	case domain.VariantAlternate:
		return stackedChart(title, ranked)
	default:
		return nil, fmt.Errorf("unknown chart variant %q", variant)
	}
}

// barChart is one bar per entity.
func barChart(title string, ranked []domain.RankedEntity) ([]byte, error) {
	bars := make([]chart.Value, 0, len(ranked))
	for _, entity := range ranked {
		bars = append(bars, chart.Value{
			Label: entity.Name,
			Value: entity.Score,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		})
	}
	bc := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth(len(ranked)),
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      chart.YAxis{Range: headroom(bars)},
		Bars:       bars,
	}
	return renderPNG(bc.Render)
}

// stackedChart is a single bar with one segment per entity, darkest on top.
func stackedChart(title string, ranked []domain.RankedEntity) ([]byte, error) {
	values := make([]chart.Value, 0, len(ranked))
	// go-chart stacks from the bottom, so the leader goes last.
	for i := len(ranked) - 1; i >= 0; i-- {
		entity := ranked[i]
		shade := shadeAt(i, len(ranked))
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%g)", entity.Name, entity.Score),
			Value: entity.Score,
			Style: chart.Style{
				FillColor:   shade,
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 1,
				FontColor:   drawing.ColorWhite,
			},
		})
	}
	sbc := chart.StackedBarChart{
		Title:      title + " (Stacked)",
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		Bars: []chart.StackedBar{
			{Name: title, Width: 240, Values: values},
		},
	}
	return renderPNG(sbc.Render)
}

// SummaryChart draws the average answer time per chart type.
func SummaryChart(rows []domain.SummaryRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNothingToDraw
	}
	palette := []drawing.Color{barColor, accentColor}
	bars := make([]chart.Value, 0, len(rows))
	for i, row := range rows {
		c := palette[i%len(palette)]
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("Chart %s (%.2fs)", row.Variant, row.Mean),
			Value: row.Mean,
			Style: chart.Style{FillColor: c, StrokeColor: c},
		})
	}
	bc := chart.BarChart{
		Title:      "Average Answer Time by Chart Type",
		Width:      chartWidth / 2,
		Height:     chartHeight / 2,
		BarWidth:   80,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      chart.YAxis{Range: headroom(bars)},
		Bars:       bars,
	}
	return renderPNG(bc.Render)
}

func renderPNG(render func(chart.RendererProvider, io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// headroom spans zero to 20% above the tallest bar. go-chart rejects a
// zero-height range, which a single bar would otherwise produce.
func headroom(bars []chart.Value) *chart.ContinuousRange {
	top := 0.0
	for _, bar := range bars {
		if bar.Value > top {
			top = bar.Value
		}
	}
	if top <= 0 {
		top = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: top * 1.2}
}

func barWidth(n int) int {
	w := (chartWidth - 120) / (n * 2)
	if w > 80 {
		return 80
	}
	if w < 10 {
		return 10
	}
	return w
}

// shadeAt blends from darkShade (i=0) to lightShade (i=n-1).
func shadeAt(i, n int) drawing.Color {
	if n <= 1 {
		return darkShade
	}
	t := float64(i) / float64(n-1)
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t)
	}
	return drawing.Color{
		R: lerp(darkShade.R, lightShade.R),
		G: lerp(darkShade.G, lightShade.G),
		B: lerp(darkShade.B, lightShade.B),
		A: 255,
	}
}
