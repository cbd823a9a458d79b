// Package domain holds the core types shared by every Atelier layer.
package domain

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Page is a single document page image. Pages are created on upload,
// removed on user deletion and never updated.
type Page struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"sessionId"`
	PageNumber int       `json:"pageNumber"`
	MediaType  string    `json:"mediaType"` // image/jpeg or image/png
	DisplayURL string    `json:"displayUrl"`
	Payload    []byte    `json:"-"` // raw image bytes, served at DisplayURL
	CreatedAt  time.Time `json:"createdAt"`
}

// TransferEncoding returns the base64 payload used when sending the
// page to the model gateway.
func (p *Page) TransferEncoding() string {
	return base64.StdEncoding.EncodeToString(p.Payload)
}

// ChatMessage is one turn of a session transcript. The transcript is
// append-only; no edit or delete operation exists.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	IsError   bool      `json:"isError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Point is a 2D coordinate in canvas space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DiagramNode is a positioned card on the canvas. Position changes only
// through drag gestures; content changes only through model refinement.
type DiagramNode struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Position Point  `json:"position"`
}

// DiagramConnection links a node to a free-floating target point. The
// target is a background coordinate, not a node, and does not follow
// node drags.
type DiagramConnection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	Target       Point  `json:"target"`
}

// BackgroundImage is a generated canvas backdrop.
type BackgroundImage struct {
	MediaType string `json:"mediaType"`
	Payload   []byte `json:"payload"`
	Prompt    string `json:"prompt,omitempty"`
}

// GeneratedAsset is the full canvas state for a session.
type GeneratedAsset struct {
	Nodes       []DiagramNode       `json:"nodes"`
	Connections []DiagramConnection `json:"connections"`
	Background  *BackgroundImage    `json:"background,omitempty"`
}

// Default grid spacing for nodes that arrive without a position.
const (
	gridOriginX = 80.0
	gridOriginY = 80.0
	gridStepX   = 260.0
	gridStepY   = 180.0
	gridColumns = 4
)

// MergeNodes replaces the asset's nodes with incoming, keeping the
// existing position for any id already on the canvas. New ids adopt the
// incoming position, or a deterministic grid slot when the incoming
// position is the zero point. Connections whose source node disappears
// are dropped.
func (a *GeneratedAsset) MergeNodes(incoming []DiagramNode) {
	existing := make(map[string]Point, len(a.Nodes))
	for _, n := range a.Nodes {
		existing[n.ID] = n.Position
	}

	merged := make([]DiagramNode, 0, len(incoming))
	fresh := 0
	for _, n := range incoming {
		if pos, ok := existing[n.ID]; ok {
			n.Position = pos
		} else if n.Position == (Point{}) {
			n.Position = gridSlot(fresh)
			fresh++
		}
		merged = append(merged, n)
	}
	a.Nodes = merged

	kept := make(map[string]bool, len(merged))
	for _, n := range merged {
		kept[n.ID] = true
	}
	conns := a.Connections[:0]
	for _, c := range a.Connections {
		if kept[c.SourceNodeID] {
			conns = append(conns, c)
		}
	}
	a.Connections = conns
}

// Node returns the node with the given id, or nil.
func (a *GeneratedAsset) Node(id string) *DiagramNode {
	for i := range a.Nodes {
		if a.Nodes[i].ID == id {
			return &a.Nodes[i]
		}
	}
	return nil
}

// RemoveNode deletes a node and every connection sourced from it.
func (a *GeneratedAsset) RemoveNode(id string) bool {
	idx := -1
	for i := range a.Nodes {
		if a.Nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	a.Nodes = append(a.Nodes[:idx], a.Nodes[idx+1:]...)

	conns := a.Connections[:0]
	for _, c := range a.Connections {
		if c.SourceNodeID != id {
			conns = append(conns, c)
		}
	}
	a.Connections = conns
	return true
}

// RemoveConnection deletes a connection by id.
func (a *GeneratedAsset) RemoveConnection(id string) bool {
	for i := range a.Connections {
		if a.Connections[i].ID == id {
			a.Connections = append(a.Connections[:i], a.Connections[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the asset.
func (a *GeneratedAsset) Clone() *GeneratedAsset {
	cp := &GeneratedAsset{
		Nodes:       append([]DiagramNode(nil), a.Nodes...),
		Connections: append([]DiagramConnection(nil), a.Connections...),
	}
	if a.Background != nil {
		bg := *a.Background
		bg.Payload = append([]byte(nil), a.Background.Payload...)
		cp.Background = &bg
	}
	return cp
}

func gridSlot(n int) Point {
	return Point{
		X: gridOriginX + float64(n%gridColumns)*gridStepX,
		Y: gridOriginY + float64(n/gridColumns)*gridStepY,
	}
}

// BlueprintSlot identifies one of the five fixed boxes of the agent
// architecture infographic.
type BlueprintSlot string

const (
	SlotCore     BlueprintSlot = "core"
	SlotPlanning BlueprintSlot = "planning"
	SlotMemory   BlueprintSlot = "memory"
	SlotTools    BlueprintSlot = "tools"
	SlotOutput   BlueprintSlot = "output"
)

// BlueprintSlots lists the slots in render order; core is the hub.
var BlueprintSlots = []BlueprintSlot{SlotCore, SlotPlanning, SlotMemory, SlotTools, SlotOutput}

// BlueprintBox is the model-returned summary for one slot.
type BlueprintBox struct {
	Slot    BlueprintSlot `json:"slot"`
	Heading string        `json:"heading"`
	Summary string        `json:"summary"`
}

// Blueprint is the five-box agent-architecture summary. Layout and
// edges are fixed: every outer slot connects to core.
type Blueprint struct {
	Boxes []BlueprintBox `json:"boxes"`
}

// Box returns the box filling the given slot, or nil.
func (b *Blueprint) Box(slot BlueprintSlot) *BlueprintBox {
	for i := range b.Boxes {
		if b.Boxes[i].Slot == slot {
			return &b.Boxes[i]
		}
	}
	return nil
}

// Complete reports whether all five slots are filled.
func (b *Blueprint) Complete() bool {
	for _, slot := range BlueprintSlots {
		if b.Box(slot) == nil {
			return false
		}
	}
	return true
}

// WorkflowItem is a theory or component entry in the workflow graph.
type WorkflowItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// WorkflowLink is a directed edge from a theory item to a component.
type WorkflowLink struct {
	TheoryID    string `json:"theoryId"`
	ComponentID string `json:"componentId"`
	Label       string `json:"label,omitempty"`
}

// WorkflowGraph maps document theory to implementation components.
type WorkflowGraph struct {
	Theories   []WorkflowItem `json:"theories"`
	Components []WorkflowItem `json:"components"`
	Links      []WorkflowLink `json:"links"`
}

// Validate drops links whose endpoints are missing and reports whether
// anything usable remains.
func (g *WorkflowGraph) Validate() bool {
	theories := make(map[string]bool, len(g.Theories))
	for _, t := range g.Theories {
		theories[t.ID] = true
	}
	components := make(map[string]bool, len(g.Components))
	for _, c := range g.Components {
		components[c.ID] = true
	}
	links := g.Links[:0]
	for _, l := range g.Links {
		if theories[l.TheoryID] && components[l.ComponentID] {
			links = append(links, l)
		}
	}
	g.Links = links
	return len(g.Theories) > 0 && len(g.Components) > 0
}

// Session groups pages, transcript and studio state under one mode.
type Session struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	Mode      SessionMode `json:"mode"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
