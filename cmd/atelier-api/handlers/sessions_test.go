package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/internal/cache"
	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/convert"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/storage"
	"github.com/atelier-ai/atelier/internal/studio"
)

// idleGateway satisfies the model gateway without ever being reached;
// these tests exercise the synchronous handler path only.
type idleGateway struct{}

func (idleGateway) ChatInit(ctx context.Context, pages []domain.Page) (string, error) {
	return "", nil
}

func (idleGateway) ChatTurn(ctx context.Context, pages []domain.Page, transcript []domain.ChatMessage, text string, resultCh chan<- string) (string, error) {
	return "", nil
}

func (idleGateway) ExtractText(ctx context.Context, page domain.Page) (string, error) {
	return "", nil
}

func (idleGateway) ExtractBlueprint(ctx context.Context, pages []domain.Page) (*domain.Blueprint, error) {
	return &domain.Blueprint{}, nil
}

func (idleGateway) ExtractWorkflow(ctx context.Context, pages []domain.Page) (*domain.WorkflowGraph, error) {
	return &domain.WorkflowGraph{}, nil
}

type handlerFixture struct {
	handler  *SessionHandler
	svc      *studio.Service
	sessions *storage.SessionRepository
	router   chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.Options{
		Driver:     "sqlite",
		SQLitePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mem := cache.NewMemoryClient(100)
	t.Cleanup(func() { mem.Close() })

	conv, err := convert.NewConverter(85, 10)
	require.NoError(t, err)

	svc := studio.NewService(studio.Deps{
		DB:        db,
		Cache:     mem,
		Events:    mem,
		Gateway:   idleGateway{},
		Converter: conv,
	})
	editor := canvas.NewEditor(svc, nil, observability.Nop())
	handler := NewSessionHandler(observability.Nop(), svc, editor)

	router := chi.NewRouter()
	router.Post("/v1/sessions/{id}/analyze", handler.Analyze)

	return &handlerFixture{
		handler:  handler,
		svc:      svc,
		sessions: storage.NewSessionRepository(db),
		router:   router,
	}
}

func TestAnalyzeHandler_RejectsWhileAnalyzing(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateSession(ctx, "busy")
	require.NoError(t, err)
	require.NoError(t, f.sessions.UpdateMode(ctx, s.ID, domain.ModeAnalyzing))

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+s.ID.String()+"/analyze", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	// The duplicate request is rejected synchronously, not accepted into
	// a doomed background run.
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "analyzing")

	got, err := f.svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAnalyzing, got.Mode)
}

func TestAnalyzeHandler_RejectsCreativeMode(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateSession(ctx, "drawing")
	require.NoError(t, err)
	require.NoError(t, f.sessions.UpdateMode(ctx, s.ID, domain.ModeCreative))

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+s.ID.String()+"/analyze", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnalyzeHandler_UnknownSession(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/1b4e28ba-2fa1-11d2-883f-0016d3cca427/analyze", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
