// Package rpc exposes the canvas editor as a Connect service so gesture
// traffic (drag, link, refine) runs over typed unary procedures instead
// of ad-hoc REST endpoints.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
)

// ServicePrefix is the mount point of all canvas procedures.
const ServicePrefix = "/rpc/canvas.v1.CanvasService/"

// CanvasService implements the Connect canvas procedures over the editor.
type CanvasService struct {
	editor *canvas.Editor
	logger *observability.Logger
}

// NewCanvasService creates the service.
func NewCanvasService(editor *canvas.Editor, logger *observability.Logger) *CanvasService {
	if logger == nil {
		logger = observability.Nop()
	}
	return &CanvasService{editor: editor, logger: logger.WithOperation("rpc")}
}

// Pointer is a canvas coordinate on the wire.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Pointer) point() domain.Point { return domain.Point{X: p.X, Y: p.Y} }

// Ack is the empty success response.
type Ack struct{}

type BeginDragRequest struct {
	SessionID string  `json:"session_id"`
	NodeID    string  `json:"node_id"`
	Pointer   Pointer `json:"pointer"`
}

type DragToRequest struct {
	SessionID string  `json:"session_id"`
	NodeID    string  `json:"node_id"`
	Pointer   Pointer `json:"pointer"`
}

type EndDragRequest struct {
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id"`
}

type BeginLinkRequest struct {
	SessionID    string  `json:"session_id"`
	SourceNodeID string  `json:"source_node_id"`
	Pointer      Pointer `json:"pointer"`
}

type TraceLinkRequest struct {
	SessionID string  `json:"session_id"`
	Pointer   Pointer `json:"pointer"`
}

type EndLinkRequest struct {
	SessionID string  `json:"session_id"`
	Pointer   Pointer `json:"pointer"`
}

type EndLinkResponse struct {
	Connection domain.DiagramConnection `json:"connection"`
}

type RemoveNodeRequest struct {
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id"`
}

type RemoveConnectionRequest struct {
	SessionID    string `json:"session_id"`
	ConnectionID string `json:"connection_id"`
}

type RefineNodeRequest struct {
	SessionID   string `json:"session_id"`
	NodeID      string `json:"node_id"`
	Instruction string `json:"instruction"`
}

type RefineNodeResponse struct {
	Node domain.DiagramNode `json:"node"`
}

type SnapshotRequest struct {
	SessionID string `json:"session_id"`
}

type SnapshotResponse struct {
	Asset *domain.GeneratedAsset `json:"asset"`
}

func (s *CanvasService) BeginDrag(ctx context.Context, req *connect.Request[BeginDragRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.BeginDrag(ctx, sid, req.Msg.NodeID, req.Msg.Pointer.point()); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) DragTo(ctx context.Context, req *connect.Request[DragToRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.DragTo(ctx, sid, req.Msg.NodeID, req.Msg.Pointer.point()); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) EndDrag(ctx context.Context, req *connect.Request[EndDragRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.EndDrag(ctx, sid, req.Msg.NodeID); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) BeginLink(ctx context.Context, req *connect.Request[BeginLinkRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.BeginLink(ctx, sid, req.Msg.SourceNodeID, req.Msg.Pointer.point()); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) TraceLink(ctx context.Context, req *connect.Request[TraceLinkRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.TraceLink(ctx, sid, req.Msg.Pointer.point()); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) EndLink(ctx context.Context, req *connect.Request[EndLinkRequest]) (*connect.Response[EndLinkResponse], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	conn, err := s.editor.EndLink(ctx, sid, req.Msg.Pointer.point())
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&EndLinkResponse{Connection: *conn}), nil
}

func (s *CanvasService) RemoveNode(ctx context.Context, req *connect.Request[RemoveNodeRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.RemoveNode(ctx, sid, req.Msg.NodeID); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) RemoveConnection(ctx context.Context, req *connect.Request[RemoveConnectionRequest]) (*connect.Response[Ack], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.editor.RemoveConnection(ctx, sid, req.Msg.ConnectionID); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *CanvasService) RefineNode(ctx context.Context, req *connect.Request[RefineNodeRequest]) (*connect.Response[RefineNodeResponse], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	node, err := s.editor.RefineNode(ctx, sid, req.Msg.NodeID, req.Msg.Instruction)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&RefineNodeResponse{Node: *node}), nil
}

func (s *CanvasService) Snapshot(ctx context.Context, req *connect.Request[SnapshotRequest]) (*connect.Response[SnapshotResponse], error) {
	sid, err := parseSessionID(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	asset, err := s.editor.Snapshot(ctx, sid)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&SnapshotResponse{Asset: asset}), nil
}

// Handlers returns the procedure path → handler map to mount on a router.
func (s *CanvasService) Handlers() map[string]http.Handler {
	return map[string]http.Handler{
		ServicePrefix + "BeginDrag":        procedure(ServicePrefix+"BeginDrag", s.BeginDrag),
		ServicePrefix + "DragTo":           procedure(ServicePrefix+"DragTo", s.DragTo),
		ServicePrefix + "EndDrag":          procedure(ServicePrefix+"EndDrag", s.EndDrag),
		ServicePrefix + "BeginLink":        procedure(ServicePrefix+"BeginLink", s.BeginLink),
		ServicePrefix + "TraceLink":        procedure(ServicePrefix+"TraceLink", s.TraceLink),
		ServicePrefix + "EndLink":          procedure(ServicePrefix+"EndLink", s.EndLink),
		ServicePrefix + "RemoveNode":       procedure(ServicePrefix+"RemoveNode", s.RemoveNode),
		ServicePrefix + "RemoveConnection": procedure(ServicePrefix+"RemoveConnection", s.RemoveConnection),
		ServicePrefix + "RefineNode":       procedure(ServicePrefix+"RefineNode", s.RefineNode),
		ServicePrefix + "Snapshot":         procedure(ServicePrefix+"Snapshot", s.Snapshot),
	}
}

// procedure builds a unary Connect handler with the JSON codec. The
// built-in codecs expect proto messages; the wire types here are plain
// structs.
func procedure[Req, Res any](path string, unary func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) http.Handler {
	return connect.NewUnaryHandler(path, unary, connect.WithCodec(jsonCodec{}))
}

// jsonCodec marshals Connect messages with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}

func parseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid session_id"))
	}
	return id, nil
}

// rpcError maps domain errors onto Connect codes.
func rpcError(err error) error {
	switch {
	case domain.IsNotFound(err):
		return connect.NewError(connect.CodeNotFound, err)
	case domain.IsType(err, domain.ErrorTypeValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case domain.IsType(err, domain.ErrorTypeSession):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case domain.IsType(err, domain.ErrorTypeCanvas):
		return connect.NewError(connect.CodeNotFound, err)
	case domain.IsType(err, domain.ErrorTypeGateway):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
