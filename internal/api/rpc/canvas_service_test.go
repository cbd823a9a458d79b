package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/domain"
)

type stubStore struct {
	session *domain.Session
	asset   *domain.GeneratedAsset
}

func (s *stubStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return s.session, nil
}

func (s *stubStore) Asset(ctx context.Context, id uuid.UUID) (*domain.GeneratedAsset, error) {
	return s.asset.Clone(), nil
}

func (s *stubStore) SaveAsset(ctx context.Context, id uuid.UUID, asset *domain.GeneratedAsset) error {
	s.asset = asset.Clone()
	return nil
}

func (s *stubStore) Emit(ctx context.Context, ev domain.StreamEvent) {}

type stubGateway struct{}

func (stubGateway) RefineNode(ctx context.Context, node domain.DiagramNode, instruction string) (domain.DiagramNode, error) {
	node.Title = "Refined"
	return node, nil
}

func (stubGateway) GenerateBackground(ctx context.Context, prompt string) (*domain.BackgroundImage, error) {
	return &domain.BackgroundImage{MediaType: "image/png", Payload: []byte{1}}, nil
}

func (stubGateway) RefineBackground(ctx context.Context, prev *domain.BackgroundImage, feedback string) (*domain.BackgroundImage, error) {
	return prev, nil
}

func newTestService(t *testing.T) (*httptest.Server, uuid.UUID, *stubStore) {
	t.Helper()

	sessionID := uuid.New()
	store := &stubStore{
		session: &domain.Session{ID: sessionID, Mode: domain.ModeCreative},
		asset: &domain.GeneratedAsset{
			Nodes: []domain.DiagramNode{
				{ID: "n1", Title: "Core", Position: domain.Point{X: 100, Y: 100}},
			},
		},
	}
	editor := canvas.NewEditor(store, stubGateway{}, nil)
	svc := NewCanvasService(editor, nil)

	mux := http.NewServeMux()
	for path, handler := range svc.Handlers() {
		mux.Handle(path, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sessionID, store
}

func call[Req, Res any](t *testing.T, srv *httptest.Server, proc string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](srv.Client(), srv.URL+ServicePrefix+proc, connect.WithCodec(jsonCodec{}))
	res, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func TestDragProcedures(t *testing.T) {
	srv, sid, store := newTestService(t)

	_, err := call[BeginDragRequest, Ack](t, srv, "BeginDrag", &BeginDragRequest{
		SessionID: sid.String(), NodeID: "n1", Pointer: Pointer{X: 100, Y: 100},
	})
	require.NoError(t, err)

	_, err = call[DragToRequest, Ack](t, srv, "DragTo", &DragToRequest{
		SessionID: sid.String(), NodeID: "n1", Pointer: Pointer{X: 250, Y: 180},
	})
	require.NoError(t, err)

	_, err = call[EndDragRequest, Ack](t, srv, "EndDrag", &EndDragRequest{
		SessionID: sid.String(), NodeID: "n1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.Point{X: 250, Y: 180}, store.asset.Nodes[0].Position)
}

func TestLinkProcedures(t *testing.T) {
	srv, sid, store := newTestService(t)

	_, err := call[BeginLinkRequest, Ack](t, srv, "BeginLink", &BeginLinkRequest{
		SessionID: sid.String(), SourceNodeID: "n1", Pointer: Pointer{X: 120, Y: 120},
	})
	require.NoError(t, err)

	res, err := call[EndLinkRequest, EndLinkResponse](t, srv, "EndLink", &EndLinkRequest{
		SessionID: sid.String(), Pointer: Pointer{X: 400, Y: 300},
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", res.Connection.SourceNodeID)
	assert.Equal(t, domain.Point{X: 400, Y: 300}, res.Connection.Target)
	assert.Len(t, store.asset.Connections, 1)
}

func TestRefineNodeProcedure(t *testing.T) {
	srv, sid, _ := newTestService(t)

	res, err := call[RefineNodeRequest, RefineNodeResponse](t, srv, "RefineNode", &RefineNodeRequest{
		SessionID: sid.String(), NodeID: "n1", Instruction: "sharpen",
	})
	require.NoError(t, err)
	assert.Equal(t, "Refined", res.Node.Title)
	assert.Equal(t, domain.Point{X: 100, Y: 100}, res.Node.Position)
}

func TestSnapshotProcedure(t *testing.T) {
	srv, sid, _ := newTestService(t)

	res, err := call[SnapshotRequest, SnapshotResponse](t, srv, "Snapshot", &SnapshotRequest{SessionID: sid.String()})
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	assert.Len(t, res.Asset.Nodes, 1)
}

func TestErrorMapping(t *testing.T) {
	srv, sid, store := newTestService(t)

	// Unknown node → not found.
	_, err := call[BeginDragRequest, Ack](t, srv, "BeginDrag", &BeginDragRequest{
		SessionID: sid.String(), NodeID: "ghost",
	})
	require.Error(t, err)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	// Wrong mode → failed precondition.
	store.session.Mode = domain.ModeReady
	_, err = call[SnapshotRequest, SnapshotResponse](t, srv, "Snapshot", &SnapshotRequest{SessionID: sid.String()})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	// Bad uuid → invalid argument.
	_, err = call[SnapshotRequest, SnapshotResponse](t, srv, "Snapshot", &SnapshotRequest{SessionID: "nope"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRemoveProcedures(t *testing.T) {
	srv, sid, store := newTestService(t)

	_, err := call[BeginLinkRequest, Ack](t, srv, "BeginLink", &BeginLinkRequest{
		SessionID: sid.String(), SourceNodeID: "n1",
	})
	require.NoError(t, err)
	res, err := call[EndLinkRequest, EndLinkResponse](t, srv, "EndLink", &EndLinkRequest{
		SessionID: sid.String(), Pointer: Pointer{X: 10, Y: 10},
	})
	require.NoError(t, err)

	_, err = call[RemoveConnectionRequest, Ack](t, srv, "RemoveConnection", &RemoveConnectionRequest{
		SessionID: sid.String(), ConnectionID: res.Connection.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, store.asset.Connections)

	_, err = call[RemoveNodeRequest, Ack](t, srv, "RemoveNode", &RemoveNodeRequest{
		SessionID: sid.String(), NodeID: "n1",
	})
	require.NoError(t, err)
	assert.Empty(t, store.asset.Nodes)
}
