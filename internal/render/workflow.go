package render

import (
	"image"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Workflow column geometry: theories on the left, components on the
// right, directed links between them.
const (
	workflowW = 1100

	columnW   = 380.0
	theoryX   = 70.0
	compX     = workflowW - columnW - 70.0
	rowH      = 100.0
	rowGap    = 30.0
	columnTop = 80.0
)

// Workflow rasterizes the theory-to-component graph.
func Workflow(g *domain.WorkflowGraph, opts Options) (image.Image, error) {
	if g == nil || len(g.Theories) == 0 || len(g.Components) == 0 {
		return nil, domain.ValidationError("workflow graph is empty", nil)
	}

	rows := len(g.Theories)
	if len(g.Components) > rows {
		rows = len(g.Components)
	}
	baseH := int(columnTop*2 + float64(rows)*rowH + float64(rows-1)*rowGap)

	dc := newContext(workflowW, baseH, opts.scale())
	dc.SetRGB(colorCanvas.r, colorCanvas.g, colorCanvas.b)
	dc.Clear()

	dc.SetRGB(0.1, 0.1, 0.15)
	dc.DrawStringAnchored("Document theory", theoryX+columnW/2, columnTop-30, 0.5, 0.5)
	dc.DrawStringAnchored("Agent components", compX+columnW/2, columnTop-30, 0.5, 0.5)

	theoryPos := make(map[string]int, len(g.Theories))
	for i, item := range g.Theories {
		theoryPos[item.ID] = i
	}
	compPos := make(map[string]int, len(g.Components))
	for i, item := range g.Components {
		compPos[item.ID] = i
	}

	// Links under the boxes, arrowheads pointing into the component side.
	for _, l := range g.Links {
		ti, ok1 := theoryPos[l.TheoryID]
		ci, ok2 := compPos[l.ComponentID]
		if !ok1 || !ok2 {
			continue
		}
		y1 := rowCenter(ti)
		y2 := rowCenter(ci)
		arrow(dc, theoryX+columnW, y1, compX, y2)
		if l.Label != "" {
			dc.SetRGB(0.35, 0.35, 0.45)
			dc.DrawStringAnchored(truncate(l.Label, 40), (theoryX+columnW+compX)/2, (y1+y2)/2-8, 0.5, 0.5)
		}
	}

	for i, item := range g.Theories {
		y := columnTop + float64(i)*(rowH+rowGap)
		box(dc, theoryX, y, columnW, rowH, colorBoxFill, colorBoxStroke)
		labelBox(dc, theoryX, y, columnW, rowH, item.Label, "")
	}
	for i, item := range g.Components {
		y := columnTop + float64(i)*(rowH+rowGap)
		box(dc, compX, y, columnW, rowH, colorCoreFill, colorBoxStroke)
		labelBox(dc, compX, y, columnW, rowH, item.Label, "")
	}

	return dc.Image(), nil
}

func rowCenter(i int) float64 {
	return columnTop + float64(i)*(rowH+rowGap) + rowH/2
}
