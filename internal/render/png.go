package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"technical-analyst/chart"
)

const (
	maxScale   = 2
	plotMargin = 40
	// volumeShare is the part of a panel given to the secondary axis
	volumeShare = 0.25
)

// PNGExporter draws charts as plain PNG line and bar plots
type PNGExporter struct{}

var _ Exporter = PNGExporter{}

// Export stacks specs vertically into one image of opts size
func (PNGExporter) Export(ctx context.Context, specs []chart.Spec, opts chart.ImageOptions) ([]byte, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}
	scale := opts.Scale
	if scale < 1 {
		scale = 1
	}
	if scale > maxScale {
		scale = maxScale
	}
	width, height := opts.Width*scale, opts.Height*scale
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid export size %dx%d", opts.Width, opts.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	panel := height / len(specs)
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bounds := image.Rect(0, i*panel, width, (i+1)*panel)
		drawPanel(img, bounds, spec)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type axisRange struct {
	min, max float64
	set      bool
}

func (r *axisRange) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if !r.set {
		r.min, r.max, r.set = v, v, true
		return
	}
	r.min = math.Min(r.min, v)
	r.max = math.Max(r.max, v)
}

// project maps v into [top, bottom] pixels, larger values higher up
func (r axisRange) project(v float64, top, bottom int) int {
	span := r.max - r.min
	if span == 0 {
		return (top + bottom) / 2
	}
	return bottom - int((v-r.min)/span*float64(bottom-top))
}

func secondary(tr chart.Trace) bool {
	return tr.YAxis == "y2"
}

func drawPanel(img *image.RGBA, bounds image.Rectangle, spec chart.Spec) {
	draw.Draw(img, bounds, &image.Uniform{C: parseColor(spec.Layout.PaperBG, color.White)}, image.Point{}, draw.Src)
	if len(spec.Traces) == 0 {
		return
	}

	dates := spec.Traces[0].X
	index := make(map[string]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	var primary, volume axisRange
	if r := spec.Layout.YAxis.Range; len(r) == 2 {
		primary.add(r[0])
		primary.add(r[1])
	}
	for _, tr := range spec.Traces {
		target := &primary
		if secondary(tr) {
			target = &volume
			volume.add(0)
		}
		if len(spec.Layout.YAxis.Range) == 2 && !secondary(tr) {
			continue
		}
		for _, v := range tr.Y {
			if v != nil {
				target.add(*v)
			}
		}
		for i := range tr.High {
			target.add(tr.High[i])
			target.add(tr.Low[i])
		}
	}

	left, right := bounds.Min.X+plotMargin, bounds.Max.X-plotMargin
	top, bottom := bounds.Min.Y+plotMargin, bounds.Max.Y-plotMargin
	priceBottom := bottom
	volumeTop := bottom
	if volume.set {
		volumeTop = bottom - int(float64(bottom-top)*volumeShare)
		priceBottom = volumeTop - int(float64(bottom-top)*0.05)
	}

	n := len(dates)
	xAt := func(i int) int {
		if n <= 1 {
			return (left + right) / 2
		}
		return left + i*(right-left)/(n-1)
	}

	grid := parseColor(spec.Layout.XAxis.GridColor, color.Gray{Y: 0xe0})
	hline(img, left, right, priceBottom, grid)
	if volume.set {
		hline(img, left, right, bottom, grid)
	}

	for _, tr := range spec.Traces {
		switch tr.Type {
		case "candlestick":
			for i := range tr.Close {
				c := parseColor(chart.ColorUp, color.Black)
				if tr.Close[i] < tr.Open[i] {
					c = parseColor(chart.ColorDown, color.Black)
				}
				x := xAt(i)
				line(img, x, primary.project(tr.High[i], top, priceBottom), x, primary.project(tr.Low[i], top, priceBottom), c)
			}
		case "bar":
			rng, lo, hi := primary, top, priceBottom
			if secondary(tr) {
				rng, lo, hi = volume, volumeTop, bottom
			}
			base := rng.project(math.Max(rng.min, math.Min(0, rng.max)), lo, hi)
			for i, v := range tr.Y {
				if v == nil {
					continue
				}
				c := traceColor(tr, i)
				x := xAt(i)
				line(img, x, base, x, rng.project(*v, lo, hi), c)
			}
		default:
			c := traceColor(tr, 0)
			prevX, prevY, have := 0, 0, false
			for i, v := range tr.Y {
				if v == nil {
					have = false
					continue
				}
				x, y := xAt(i), primary.project(*v, top, priceBottom)
				if have {
					line(img, prevX, prevY, x, y, c)
				}
				prevX, prevY, have = x, y, true
			}
		}
	}

	for _, s := range spec.Layout.Shapes {
		if s.Type != "line" {
			continue
		}
		c := parseColor("", color.Black)
		if s.Line != nil {
			c = parseColor(s.Line.Color, color.Black)
		}
		if s.XRef == "paper" {
			if y, ok := toFloat(s.Y0); ok {
				hline(img, left, right, primary.project(y, top, priceBottom), c)
			}
			continue
		}
		if d, ok := s.X0.(string); ok {
			if i, found := index[d]; found {
				x := xAt(i)
				line(img, x, top, x, bottom, c)
			}
		}
	}
}

func traceColor(tr chart.Trace, i int) color.Color {
	if tr.Marker != nil && len(tr.Marker.Color) > 0 {
		if i < len(tr.Marker.Color) {
			return parseColor(tr.Marker.Color[i], color.Black)
		}
		return parseColor(tr.Marker.Color[0], color.Black)
	}
	if tr.Line != nil {
		return parseColor(tr.Line.Color, color.Black)
	}
	return color.Black
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// parseColor understands #rrggbb and rgba(r,g,b,a)
func parseColor(s string, fallback color.Color) color.Color {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#") && len(s) == 7:
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return fallback
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		parts := strings.Split(s[5:len(s)-1], ",")
		if len(parts) != 4 {
			return fallback
		}
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || v < 0 || v > 255 {
				return fallback
			}
			rgb[i] = uint8(v)
		}
		return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}
	}
	return fallback
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, c)
	}
}

// line draws with Bresenham's algorithm
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
