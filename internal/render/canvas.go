package render

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Canvas node card geometry.
const (
	nodeW = 220.0
	nodeH = 120.0

	canvasMargin = 80.0
	canvasMinW   = 900
	canvasMinH   = 600
)

// Canvas rasterizes a snapshot of the interactive canvas: the background
// underlay when present, connections to their fixed target points, then
// node cards at their current positions.
func Canvas(asset *domain.GeneratedAsset, opts Options) (image.Image, error) {
	if asset == nil {
		return nil, domain.ValidationError("canvas asset is nil", nil)
	}

	baseW, baseH := canvasBounds(asset)
	dc := newContext(baseW, baseH, opts.scale())
	dc.SetRGB(colorCanvas.r, colorCanvas.g, colorCanvas.b)
	dc.Clear()

	if asset.Background != nil && len(asset.Background.Payload) > 0 {
		bg, _, err := image.Decode(bytes.NewReader(asset.Background.Payload))
		if err != nil {
			return nil, domain.ConversionError("decode background image", err)
		}
		sx := float64(baseW) / float64(bg.Bounds().Dx())
		sy := float64(baseH) / float64(bg.Bounds().Dy())
		dc.Push()
		dc.Scale(sx, sy)
		dc.DrawImage(bg, 0, 0)
		dc.Pop()
	}

	for _, c := range asset.Connections {
		src := asset.Node(c.SourceNodeID)
		if src == nil {
			continue
		}
		edge(dc, src.Position.X+nodeW/2, src.Position.Y+nodeH/2, c.Target.X, c.Target.Y)
		dc.SetRGB(0.45, 0.45, 0.55)
		dc.DrawCircle(c.Target.X, c.Target.Y, 5)
		dc.Fill()
	}

	for _, n := range asset.Nodes {
		box(dc, n.Position.X, n.Position.Y, nodeW, nodeH, colorBoxFill, colorBoxStroke)
		labelBox(dc, n.Position.X, n.Position.Y, nodeW, nodeH, n.Title, n.Text)
	}

	return dc.Image(), nil
}

// canvasBounds sizes the snapshot to cover every node and connection
// target plus a margin, never below the minimum canvas size.
func canvasBounds(asset *domain.GeneratedAsset) (int, int) {
	maxX, maxY := 0.0, 0.0
	for _, n := range asset.Nodes {
		if x := n.Position.X + nodeW; x > maxX {
			maxX = x
		}
		if y := n.Position.Y + nodeH; y > maxY {
			maxY = y
		}
	}
	for _, c := range asset.Connections {
		if c.Target.X > maxX {
			maxX = c.Target.X
		}
		if c.Target.Y > maxY {
			maxY = c.Target.Y
		}
	}

	w := int(maxX + canvasMargin)
	h := int(maxY + canvasMargin)
	if w < canvasMinW {
		w = canvasMinW
	}
	if h < canvasMinH {
		h = canvasMinH
	}
	return w, h
}
