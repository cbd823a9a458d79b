package render

import (
	"image"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Base blueprint canvas dimensions and box geometry. Core sits in the
// middle; the four outer slots occupy fixed corners, each wired to core.
const (
	blueprintW = 1200
	blueprintH = 800

	slotBoxW = 320.0
	slotBoxH = 190.0
	coreBoxW = 360.0
	coreBoxH = 200.0
)

type slotRect struct{ x, y, w, h float64 }

var blueprintLayout = map[domain.BlueprintSlot]slotRect{
	domain.SlotCore:     {(blueprintW - coreBoxW) / 2, (blueprintH - coreBoxH) / 2, coreBoxW, coreBoxH},
	domain.SlotPlanning: {60, 60, slotBoxW, slotBoxH},
	domain.SlotMemory:   {blueprintW - slotBoxW - 60, 60, slotBoxW, slotBoxH},
	domain.SlotTools:    {60, blueprintH - slotBoxH - 60, slotBoxW, slotBoxH},
	domain.SlotOutput:   {blueprintW - slotBoxW - 60, blueprintH - slotBoxH - 60, slotBoxW, slotBoxH},
}

// Blueprint rasterizes the five-box architecture infographic. Headings
// and summaries come from the model; positions and edges never vary.
func Blueprint(bp *domain.Blueprint, opts Options) (image.Image, error) {
	if bp == nil || !bp.Complete() {
		return nil, domain.ValidationError("blueprint is incomplete", nil)
	}

	dc := newContext(blueprintW, blueprintH, opts.scale())
	dc.SetRGB(colorCanvas.r, colorCanvas.g, colorCanvas.b)
	dc.Clear()

	core := blueprintLayout[domain.SlotCore]
	cx, cy := core.x+core.w/2, core.y+core.h/2

	// Edges first so boxes overlay their endpoints.
	for _, slot := range domain.BlueprintSlots {
		if slot == domain.SlotCore {
			continue
		}
		r := blueprintLayout[slot]
		edge(dc, r.x+r.w/2, r.y+r.h/2, cx, cy)
	}

	for _, slot := range domain.BlueprintSlots {
		r := blueprintLayout[slot]
		fill := colorBoxFill
		if slot == domain.SlotCore {
			fill = colorCoreFill
		}
		box(dc, r.x, r.y, r.w, r.h, fill, colorBoxStroke)

		b := bp.Box(slot)
		labelBox(dc, r.x, r.y, r.w, r.h, b.Heading, b.Summary)
	}

	return dc.Image(), nil
}
