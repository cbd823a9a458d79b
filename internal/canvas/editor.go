// Package canvas implements the interactive node editor of creative mode:
// drag and link gestures, node refinement and background generation over
// an in-memory working copy that commits on gesture release.
package canvas

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
)

// SessionStore is the slice of the studio service the editor needs.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Asset(ctx context.Context, id uuid.UUID) (*domain.GeneratedAsset, error)
	SaveAsset(ctx context.Context, id uuid.UUID, asset *domain.GeneratedAsset) error
	Emit(ctx context.Context, ev domain.StreamEvent)
}

// ImageGateway covers the model tasks the editor calls.
type ImageGateway interface {
	RefineNode(ctx context.Context, node domain.DiagramNode, instruction string) (domain.DiagramNode, error)
	GenerateBackground(ctx context.Context, prompt string) (*domain.BackgroundImage, error)
	RefineBackground(ctx context.Context, prev *domain.BackgroundImage, feedback string) (*domain.BackgroundImage, error)
}

type dragState struct {
	nodeID  string
	offsetX float64
	offsetY float64
}

type linkState struct {
	sourceNodeID string
	preview      domain.Point
}

// sessionState is one session's working copy plus active gestures.
type sessionState struct {
	asset *domain.GeneratedAsset
	drag  *dragState
	link  *linkState
}

// Editor holds the working copies of all sessions currently in creative
// mode. Position updates during a drag stay in memory; the asset is
// serialized back to the store on gesture release.
type Editor struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState

	store   SessionStore
	gateway ImageGateway
	logger  *observability.Logger
}

// NewEditor creates the canvas editor.
func NewEditor(store SessionStore, gateway ImageGateway, logger *observability.Logger) *Editor {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Editor{
		sessions: make(map[uuid.UUID]*sessionState),
		store:    store,
		gateway:  gateway,
		logger:   logger.WithOperation("canvas"),
	}
}

// Open loads a session's asset into a working copy. Called on studio
// entry; subsequent operations load lazily if needed.
func (e *Editor) Open(ctx context.Context, sessionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.state(ctx, sessionID)
	return err
}

// Close drops a session's working copy after committing it.
func (e *Editor) Close(ctx context.Context, sessionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(e.sessions, sessionID)
	if err := e.store.SaveAsset(ctx, sessionID, st.asset); err != nil {
		return err
	}
	return nil
}

// Snapshot returns a deep copy of the current working state.
func (e *Editor) Snapshot(ctx context.Context, sessionID uuid.UUID) (*domain.GeneratedAsset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return st.asset.Clone(), nil
}

// BeginDrag starts a drag gesture, capturing the grab offset between the
// pointer and the node origin so the node does not jump under the cursor.
func (e *Editor) BeginDrag(ctx context.Context, sessionID uuid.UUID, nodeID string, pointer domain.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	node := st.asset.Node(nodeID)
	if node == nil {
		return domain.CanvasError(fmt.Sprintf("no node %s on canvas", nodeID), nil)
	}
	st.drag = &dragState{
		nodeID:  nodeID,
		offsetX: pointer.X - node.Position.X,
		offsetY: pointer.Y - node.Position.Y,
	}
	return nil
}

// DragTo moves the dragged node to follow the pointer. In-memory only.
func (e *Editor) DragTo(ctx context.Context, sessionID uuid.UUID, nodeID string, pointer domain.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.drag == nil || st.drag.nodeID != nodeID {
		return domain.CanvasError("no active drag for node", nil)
	}
	node := st.asset.Node(nodeID)
	if node == nil {
		return domain.CanvasError(fmt.Sprintf("no node %s on canvas", nodeID), nil)
	}
	node.Position = domain.Point{
		X: pointer.X - st.drag.offsetX,
		Y: pointer.Y - st.drag.offsetY,
	}
	return nil
}

// EndDrag releases the gesture and serializes the asset back to the
// store.
func (e *Editor) EndDrag(ctx context.Context, sessionID uuid.UUID, nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.drag == nil || st.drag.nodeID != nodeID {
		return domain.CanvasError("no active drag for node", nil)
	}
	st.drag = nil
	return e.commit(ctx, sessionID, st)
}

// BeginLink opens a pending connection from a node toward the pointer.
func (e *Editor) BeginLink(ctx context.Context, sessionID uuid.UUID, sourceNodeID string, pointer domain.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.asset.Node(sourceNodeID) == nil {
		return domain.CanvasError(fmt.Sprintf("no node %s on canvas", sourceNodeID), nil)
	}
	st.link = &linkState{sourceNodeID: sourceNodeID, preview: pointer}
	return nil
}

// TraceLink updates the pending link's preview endpoint.
func (e *Editor) TraceLink(ctx context.Context, sessionID uuid.UUID, pointer domain.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.link == nil {
		return domain.CanvasError("no pending link", nil)
	}
	st.link.preview = pointer
	return nil
}

// EndLink fixes the pending link at the release point, creating a
// connection to that background coordinate, and commits.
func (e *Editor) EndLink(ctx context.Context, sessionID uuid.UUID, pointer domain.Point) (*domain.DiagramConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.link == nil {
		return nil, domain.CanvasError("no pending link", nil)
	}
	conn := domain.DiagramConnection{
		ID:           uuid.NewString(),
		SourceNodeID: st.link.sourceNodeID,
		Target:       pointer,
	}
	st.asset.Connections = append(st.asset.Connections, conn)
	st.link = nil
	if err := e.commit(ctx, sessionID, st); err != nil {
		return nil, err
	}
	return &conn, nil
}

// RemoveNode deletes a node and its connections, then commits.
func (e *Editor) RemoveNode(ctx context.Context, sessionID uuid.UUID, nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if !st.asset.RemoveNode(nodeID) {
		return domain.CanvasError(fmt.Sprintf("no node %s on canvas", nodeID), nil)
	}
	return e.commit(ctx, sessionID, st)
}

// RemoveConnection deletes a connection, then commits.
func (e *Editor) RemoveConnection(ctx context.Context, sessionID uuid.UUID, connectionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	if !st.asset.RemoveConnection(connectionID) {
		return domain.CanvasError(fmt.Sprintf("no connection %s on canvas", connectionID), nil)
	}
	return e.commit(ctx, sessionID, st)
}

// RefineNode sends one node's content to the model with an instruction
// and merges the refined content back, keeping id and position.
func (e *Editor) RefineNode(ctx context.Context, sessionID uuid.UUID, nodeID, instruction string) (*domain.DiagramNode, error) {
	e.mu.Lock()
	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	node := st.asset.Node(nodeID)
	if node == nil {
		e.mu.Unlock()
		return nil, domain.CanvasError(fmt.Sprintf("no node %s on canvas", nodeID), nil)
	}
	snapshot := *node
	e.mu.Unlock()

	// Gateway call runs outside the lock; the refined content is merged
	// by id afterwards so a concurrent drag keeps its position.
	refined, err := e.gateway.RefineNode(ctx, snapshot, instruction)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, err = e.creativeState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	node = st.asset.Node(nodeID)
	if node == nil {
		return nil, domain.CanvasError(fmt.Sprintf("node %s removed during refinement", nodeID), nil)
	}
	node.Title = refined.Title
	node.Text = refined.Text
	result := *node
	if err := e.commit(ctx, sessionID, st); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyGenerated merges a freshly generated asset into the working copy:
// existing node positions win, new nodes take grid slots, orphaned
// connections drop.
func (e *Editor) ApplyGenerated(ctx context.Context, sessionID uuid.UUID, incoming *domain.GeneratedAsset) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	st.asset.MergeNodes(incoming.Nodes)
	if incoming.Background != nil {
		st.asset.Background = incoming.Background
	}
	return e.commit(ctx, sessionID, st)
}

// GenerateBackground asks the model for a canvas backdrop.
func (e *Editor) GenerateBackground(ctx context.Context, sessionID uuid.UUID, prompt string) (*domain.BackgroundImage, error) {
	if prompt == "" {
		return nil, domain.ValidationError("background prompt is required", nil)
	}
	if err := e.requireCreative(ctx, sessionID); err != nil {
		return nil, err
	}

	bg, err := e.gateway.GenerateBackground(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return bg, e.setBackground(ctx, sessionID, bg)
}

// RefineBackground re-generates the backdrop from the previous image
// plus feedback text.
func (e *Editor) RefineBackground(ctx context.Context, sessionID uuid.UUID, feedback string) (*domain.BackgroundImage, error) {
	if feedback == "" {
		return nil, domain.ValidationError("background feedback is required", nil)
	}

	e.mu.Lock()
	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	prev := st.asset.Background
	e.mu.Unlock()

	if prev == nil {
		return nil, domain.CanvasError("no background to refine", nil)
	}

	bg, err := e.gateway.RefineBackground(ctx, prev, feedback)
	if err != nil {
		return nil, err
	}
	return bg, e.setBackground(ctx, sessionID, bg)
}

func (e *Editor) setBackground(ctx context.Context, sessionID uuid.UUID, bg *domain.BackgroundImage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.creativeState(ctx, sessionID)
	if err != nil {
		return err
	}
	st.asset.Background = bg
	if err := e.commit(ctx, sessionID, st); err != nil {
		return err
	}
	e.store.Emit(ctx, domain.NewEvent(domain.EventBackgroundReady, sessionID))
	return nil
}

// state returns the working copy, loading it from the store on first use.
// Callers hold e.mu.
func (e *Editor) state(ctx context.Context, sessionID uuid.UUID) (*sessionState, error) {
	if st, ok := e.sessions[sessionID]; ok {
		return st, nil
	}
	asset, err := e.store.Asset(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st := &sessionState{asset: asset}
	e.sessions[sessionID] = st
	return st, nil
}

// creativeState is state plus the creative-mode check every canvas
// operation requires. Callers hold e.mu.
func (e *Editor) creativeState(ctx context.Context, sessionID uuid.UUID) (*sessionState, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != domain.ModeCreative {
		return nil, domain.SessionError(fmt.Sprintf("canvas editing requires creative mode, session is %s", session.Mode), nil)
	}
	return e.state(ctx, sessionID)
}

func (e *Editor) requireCreative(ctx context.Context, sessionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.creativeState(ctx, sessionID)
	return err
}

// commit serializes the working copy back to the store and announces it.
// Callers hold e.mu.
func (e *Editor) commit(ctx context.Context, sessionID uuid.UUID, st *sessionState) error {
	if err := e.store.SaveAsset(ctx, sessionID, st.asset); err != nil {
		return err
	}
	e.store.Emit(ctx, domain.NewEvent(domain.EventCanvasCommit, sessionID))
	return nil
}
