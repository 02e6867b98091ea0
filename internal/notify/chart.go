package notify

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
)

var (
	chartBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	chartAxis       = color.RGBA{0x60, 0x60, 0x60, 0xff}
	chartSeparator  = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	chartProfit     = color.RGBA{0x2e, 0x9d, 0x4f, 0xff}
	chartLoss       = color.RGBA{0xd6, 0x3b, 0x3b, 0xff}
)

// BarChart renders a P/L payload as a PNG bar chart: one bar per trade,
// green above the zero line and red below, tag groups in sorted order and
// separated by a vertical rule. Labels travel in the message caption.
type BarChart struct {
	BarWidth int
	Gap      int
	Height   int
	Margin   int
}

// DefaultBarChart returns a chart sized for a phone screen.
func DefaultBarChart() BarChart {
	return BarChart{BarWidth: 36, Gap: 12, Height: 320, Margin: 20}
}

// Render implements Renderer.
func (c BarChart) Render(p PnLPayload) ([]byte, error) {
	if p.Empty() {
		return nil, fmt.Errorf("nothing to render")
	}
	tags := make([]string, 0, len(p.Groups))
	for tag := range p.Groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	maxPos, maxNeg := 0.0, 0.0
	bars := 0
	for _, tag := range tags {
		for _, e := range p.Groups[tag] {
			maxPos = math.Max(maxPos, e.PnL)
			maxNeg = math.Max(maxNeg, -e.PnL)
			bars++
		}
	}
	span := maxPos + maxNeg
	if span == 0 {
		span = 1
	}

	width := 2*c.Margin + bars*(c.BarWidth+c.Gap) + (len(tags)-1)*c.Gap
	plotH := c.Height - 2*c.Margin
	zeroY := c.Margin + int(math.Round(float64(plotH)*maxPos/span))

	img := image.NewRGBA(image.Rect(0, 0, width, c.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{chartBackground}, image.Point{}, draw.Src)

	x := c.Margin
	for i, tag := range tags {
		if i > 0 {
			fill(img, image.Rect(x, c.Margin, x+1, c.Height-c.Margin), chartSeparator)
			x += c.Gap
		}
		for _, e := range p.Groups[tag] {
			h := int(math.Round(float64(plotH) * math.Abs(e.PnL) / span))
			x0 := x + c.Gap/2
			if e.PnL >= 0 {
				fill(img, image.Rect(x0, zeroY-h, x0+c.BarWidth, zeroY), chartProfit)
			} else {
				fill(img, image.Rect(x0, zeroY, x0+c.BarWidth, zeroY+h), chartLoss)
			}
			x += c.BarWidth + c.Gap
		}
	}
	fill(img, image.Rect(c.Margin/2, zeroY, width-c.Margin/2, zeroY+1), chartAxis)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
}

var _ Renderer = BarChart{}
