// Package render rasterizes the static diagram views: the five-box
// architecture blueprint, the theory-to-component workflow graph and
// snapshots of the interactive canvas. Layout is deterministic; the same
// input always produces the same image.
package render

import (
	"image"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Options controls rasterization.
type Options struct {
	// Scale multiplies the base layout dimensions. Zero means 1.
	Scale float64
}

func (o Options) scale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}

// newContext creates a drawing context at base dimensions times scale,
// pre-scaled so all drawing happens in base coordinates.
func newContext(baseW, baseH int, scale float64) *gg.Context {
	dc := gg.NewContext(int(float64(baseW)*scale), int(float64(baseH)*scale))
	dc.Scale(scale, scale)
	dc.SetFontFace(basicfont.Face7x13)
	return dc
}

// EncodePNG writes an image as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return domain.IOError("encode png", err)
	}
	return nil
}

// Export writes an image to a PNG file.
func Export(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.IOError("create render file", err)
	}
	defer f.Close()
	return EncodePNG(f, img)
}

// box draws a rounded, filled and stroked rectangle.
func box(dc *gg.Context, x, y, w, h float64, fill, stroke color3) {
	dc.DrawRoundedRectangle(x, y, w, h, 8)
	dc.SetRGB(fill.r, fill.g, fill.b)
	dc.FillPreserve()
	dc.SetRGB(stroke.r, stroke.g, stroke.b)
	dc.SetLineWidth(2)
	dc.Stroke()
}

// labelBox writes a heading and wrapped body text inside a box.
func labelBox(dc *gg.Context, x, y, w, h float64, heading, body string) {
	dc.SetRGB(0.1, 0.1, 0.15)
	dc.DrawStringWrapped(heading, x+w/2, y+14, 0.5, 0, w-24, 1.3, gg.AlignCenter)
	if body != "" {
		dc.SetRGB(0.25, 0.25, 0.3)
		dc.DrawStringWrapped(truncate(body, 280), x+12, y+34, 0, 0, w-24, 1.4, gg.AlignLeft)
	}
}

// edge draws a straight connector line.
func edge(dc *gg.Context, x1, y1, x2, y2 float64) {
	dc.SetRGB(0.45, 0.45, 0.55)
	dc.SetLineWidth(1.5)
	dc.DrawLine(x1, y1, x2, y2)
	dc.Stroke()
}

// arrow draws a directed connector with a triangular head at the end.
func arrow(dc *gg.Context, x1, y1, x2, y2 float64) {
	edge(dc, x1, y1, x2, y2)

	dx, dy := x2-x1, y2-y1
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return
	}
	ux, uy := dx/norm, dy/norm
	px, py := -uy, ux
	const headLen, headWidth = 10.0, 5.0
	bx, by := x2-ux*headLen, y2-uy*headLen
	dc.SetRGB(0.45, 0.45, 0.55)
	dc.MoveTo(x2, y2)
	dc.LineTo(bx+px*headWidth, by+py*headWidth)
	dc.LineTo(bx-px*headWidth, by-py*headWidth)
	dc.ClosePath()
	dc.Fill()
}

type color3 struct{ r, g, b float64 }

var (
	colorCanvas    = color3{0.97, 0.97, 0.95}
	colorCoreFill  = color3{0.86, 0.91, 0.99}
	colorBoxFill   = color3{0.93, 0.93, 0.97}
	colorBoxStroke = color3{0.35, 0.4, 0.55}
)

// truncate cuts on rune boundaries so multi-byte text never splits
// mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
