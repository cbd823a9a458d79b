// Package studio orchestrates document sessions: upload, analysis, chat
// and the transitions into and out of the creative canvas.
package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-ai/atelier/internal/cache"
	"github.com/atelier-ai/atelier/internal/convert"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/storage"
)

// ModelGateway is the slice of the AI gateway the studio depends on.
type ModelGateway interface {
	ChatInit(ctx context.Context, pages []domain.Page) (string, error)
	ChatTurn(ctx context.Context, pages []domain.Page, transcript []domain.ChatMessage, text string, resultCh chan<- string) (string, error)
	ExtractText(ctx context.Context, page domain.Page) (string, error)
	ExtractBlueprint(ctx context.Context, pages []domain.Page) (*domain.Blueprint, error)
	ExtractWorkflow(ctx context.Context, pages []domain.Page) (*domain.WorkflowGraph, error)
}

// Deps bundles the service's collaborators.
type Deps struct {
	DB        storage.DB
	Cache     cache.Client
	Events    cache.PubSub
	Gateway   ModelGateway
	Converter *convert.Converter
	Logger    *observability.Logger

	MaxConcurrent int
	CacheTTL      time.Duration
}

// Service owns the session lifecycle over storage, cache and the gateway.
type Service struct {
	sessions   *storage.SessionRepository
	pages      *storage.PageRepository
	messages   *storage.MessageRepository
	assets     *storage.AssetRepository
	workflows  *storage.WorkflowRepository
	blueprints *storage.BlueprintRepository

	cache   cache.Client
	events  cache.PubSub
	gateway ModelGateway
	conv    *convert.Converter
	logger  *observability.Logger

	maxConcurrent int
	cacheTTL      time.Duration
}

// NewService creates the studio service.
func NewService(d Deps) *Service {
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = 4
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = 30 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = observability.Nop()
	}
	return &Service{
		sessions:      storage.NewSessionRepository(d.DB),
		pages:         storage.NewPageRepository(d.DB),
		messages:      storage.NewMessageRepository(d.DB),
		assets:        storage.NewAssetRepository(d.DB),
		workflows:     storage.NewWorkflowRepository(d.DB),
		blueprints:    storage.NewBlueprintRepository(d.DB),
		cache:         d.Cache,
		events:        d.Events,
		gateway:       d.Gateway,
		conv:          d.Converter,
		logger:        d.Logger.WithOperation("studio"),
		maxConcurrent: d.MaxConcurrent,
		cacheTTL:      d.CacheTTL,
	}
}

// CreateSession creates a new idle session.
func (s *Service) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	if title == "" {
		title = "Untitled session"
	}
	session := &domain.Session{Title: title}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domain.StorageError("create session", err)
	}
	s.logger.Info().Str("session_id", session.ID.String()).Msg("session created")
	return session, nil
}

// GetSession retrieves a session by id.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.StorageError("get session", err)
	}
	return session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, domain.StorageError("list sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes a session, its pages, transcript and assets, and
// invalidates every cached artifact.
func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return domain.StorageError("delete session", err)
	}
	if err := s.cache.DeleteByPrefix(ctx, cache.SessionPrefix(id)); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("cache invalidation failed")
	}
	return nil
}

// AddDocument converts a single upload into page records appended after
// the session's existing pages.
func (s *Service) AddDocument(ctx context.Context, sessionID uuid.UUID, filename string, data []byte) ([]*domain.Page, error) {
	return s.AddDocuments(ctx, sessionID, []convert.Upload{{Filename: filename, Data: data}})
}

// AddDocuments converts a batch of uploads concurrently and appends the
// resulting pages in upload order after the session's existing pages.
// Rejected while the session is analyzing. A failed conversion fails the
// whole batch before any page is written.
func (s *Service) AddDocuments(ctx context.Context, sessionID uuid.UUID, uploads []convert.Upload) ([]*domain.Page, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode == domain.ModeAnalyzing {
		return nil, domain.SessionError("cannot add documents while analysis is running", nil)
	}
	if len(uploads) == 0 {
		return nil, domain.ValidationError("no files in upload", nil)
	}

	converted, err := s.conv.ConvertAll(ctx, uploads, s.maxConcurrent)
	if err != nil {
		return nil, err
	}

	existing, err := s.pages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list pages", err)
	}
	next := len(existing) + 1

	var created []*domain.Page
	for _, images := range converted {
		for _, img := range images {
			page := &domain.Page{
				SessionID:  sessionID,
				PageNumber: next,
				MediaType:  img.MediaType,
				Payload:    img.Payload,
			}
			if err := s.pages.Create(ctx, page); err != nil {
				return nil, domain.StorageError("create page", err)
			}
			page.DisplayURL = displayURL(page.ID)
			if err := s.cache.Set(ctx, cache.PageKey(sessionID, page.ID), page.Payload, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Msg("page cache write failed")
			}
			created = append(created, page)
			next++
		}
	}

	s.logger.Info().
		Str("session_id", sessionID.String()).
		Int("files", len(uploads)).
		Int("pages", len(created)).
		Msg("documents added")
	return created, nil
}

// ListPages returns a session's pages without payloads, ordered by page
// number, with display URLs assigned.
func (s *Service) ListPages(ctx context.Context, sessionID uuid.UUID) ([]*domain.Page, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	pages, err := s.pages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list pages", err)
	}
	for _, p := range pages {
		p.DisplayURL = displayURL(p.ID)
		p.Payload = nil
	}
	return pages, nil
}

// PageImage returns a page's raw image bytes and media type, via the
// cache when warm.
func (s *Service) PageImage(ctx context.Context, pageID uuid.UUID) (*domain.Page, error) {
	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.StorageError("get page", err)
	}
	page.DisplayURL = displayURL(page.ID)
	return page, nil
}

// RemovePage deletes a page from a session. Rejected while analyzing.
func (s *Service) RemovePage(ctx context.Context, sessionID, pageID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Mode == domain.ModeAnalyzing {
		return domain.SessionError("cannot remove pages while analysis is running", nil)
	}

	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return domain.StorageError("get page", err)
	}
	if page.SessionID != sessionID {
		return domain.ValidationError("page does not belong to session", nil)
	}

	if err := s.pages.Delete(ctx, pageID); err != nil {
		return domain.StorageError("delete page", err)
	}
	if err := s.cache.Delete(ctx, cache.PageKey(sessionID, pageID)); err != nil {
		s.logger.Warn().Err(err).Msg("page cache delete failed")
	}
	return nil
}

// Analyze runs the full analysis pipeline: per-page text extraction,
// blueprint extraction and the opening chat message. The session moves to
// analyzing for the duration; success lands on ready, failure restores
// the previous mode and appends an error-flagged assistant message.
func (s *Service) Analyze(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	// The equal-mode no-op in setMode would otherwise let a duplicate
	// request run a second pipeline and capture analyzing as the mode to
	// restore on failure, wedging the session.
	if session.Mode == domain.ModeAnalyzing {
		return domain.SessionError("analysis already in progress", nil)
	}
	previous := session.Mode
	if err := s.setMode(ctx, session, domain.ModeAnalyzing); err != nil {
		return err
	}

	pages, err := s.loadPages(ctx, sessionID)
	if err == nil && len(pages) == 0 {
		err = domain.ValidationError("session has no pages to analyze", nil)
	}
	if err != nil {
		s.failAnalysis(ctx, session, previous, err)
		return err
	}

	start := domain.NewEvent(domain.EventStart, sessionID)
	start.PageCount = len(pages)
	s.emit(ctx, start)

	if err := s.extractPages(ctx, sessionID, pages); err != nil {
		s.failAnalysis(ctx, session, previous, err)
		return err
	}

	blueprint, err := s.gateway.ExtractBlueprint(ctx, pages)
	if err != nil {
		s.failAnalysis(ctx, session, previous, err)
		return err
	}
	if err := s.blueprints.Save(ctx, sessionID, blueprint); err != nil {
		err = domain.StorageError("save blueprint", err)
		s.failAnalysis(ctx, session, previous, err)
		return err
	}
	s.cacheJSON(ctx, cache.BlueprintKey(sessionID), blueprint)

	greeting, err := s.gateway.ChatInit(ctx, pages)
	if err != nil {
		s.failAnalysis(ctx, session, previous, err)
		return err
	}
	if err := s.appendMessage(ctx, sessionID, domain.RoleAssistant, greeting, false); err != nil {
		s.failAnalysis(ctx, session, previous, err)
		return err
	}

	if err := s.setMode(ctx, session, domain.ModeReady); err != nil {
		return err
	}
	s.emit(ctx, domain.NewEvent(domain.EventComplete, sessionID))
	s.logger.Info().
		Str("session_id", sessionID.String()).
		Int("pages", len(pages)).
		Msg("analysis complete")
	return nil
}

// extractPages runs per-page text extraction with bounded concurrency,
// caching each result and emitting page events.
func (s *Service) extractPages(ctx context.Context, sessionID uuid.UUID, pages []domain.Page) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for _, page := range pages {
		g.Go(func() error {
			ev := domain.NewEvent(domain.EventPageProcessing, sessionID)
			ev.PageNumber = page.PageNumber
			ev.PageCount = len(pages)
			s.emit(gctx, ev)

			text, err := s.gateway.ExtractText(gctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.PageNumber, err)
			}
			if err := s.cache.Set(gctx, cache.PageTextKey(sessionID, page.ID), []byte(text), s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Int("page", page.PageNumber).Msg("text cache write failed")
			}

			done := domain.NewEvent(domain.EventPageComplete, sessionID)
			done.PageNumber = page.PageNumber
			done.PageCount = len(pages)
			s.emit(gctx, done)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) failAnalysis(ctx context.Context, session *domain.Session, previous domain.SessionMode, cause error) {
	s.logger.Error().
		Err(cause).
		Str("session_id", session.ID.String()).
		Msg("analysis failed")

	if err := s.setMode(ctx, session, previous); err != nil {
		s.logger.Error().Err(err).Msg("mode restore failed")
	}
	msg := fmt.Sprintf("Analysis failed: %v", cause)
	if err := s.appendMessage(ctx, session.ID, domain.RoleAssistant, msg, true); err != nil {
		s.logger.Error().Err(err).Msg("error message append failed")
	}

	ev := domain.NewEvent(domain.EventError, session.ID)
	ev.Message = msg
	s.emit(ctx, ev)
}

// Chat appends the user's message, runs a gateway chat turn over the
// session's pages and transcript, and appends the reply. Streaming
// deltas are re-emitted on the event feed and, when deltas is non-nil,
// forwarded to the caller.
func (s *Service) Chat(ctx context.Context, sessionID uuid.UUID, text string, deltas chan<- string) (*domain.ChatMessage, error) {
	if text == "" {
		return nil, domain.ValidationError("message text is required", nil)
	}
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != domain.ModeReady && session.Mode != domain.ModeCreative {
		return nil, domain.SessionError(fmt.Sprintf("chat requires an analyzed session, mode is %s", session.Mode), nil)
	}

	transcript, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pages, err := s.loadPages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.appendMessage(ctx, sessionID, domain.RoleUser, text, false); err != nil {
		return nil, err
	}

	// Bridge gateway deltas onto the event feed and the caller's channel.
	bridge := make(chan string, 64)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		for delta := range bridge {
			ev := domain.NewEvent(domain.EventStreaming, sessionID)
			ev.Message = delta
			s.emit(ctx, ev)
			if deltas != nil {
				deltas <- delta
			}
		}
	}()

	history := make([]domain.ChatMessage, len(transcript))
	for i, m := range transcript {
		history[i] = *m
	}

	reply, gwErr := s.gateway.ChatTurn(ctx, pages, history, text, bridge)
	close(bridge)
	<-bridgeDone

	assistant := &domain.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Text:      reply,
		IsError:   gwErr != nil,
	}
	if gwErr != nil {
		assistant.Text = fmt.Sprintf("The model could not answer: %v", gwErr)
	}
	if err := s.messages.Append(ctx, assistant); err != nil {
		return nil, domain.StorageError("append message", err)
	}
	if gwErr != nil {
		return assistant, domain.GatewayError("chat turn failed", gwErr)
	}
	return assistant, nil
}

// Transcript returns the session transcript in chronological order.
func (s *Service) Transcript(ctx context.Context, sessionID uuid.UUID) ([]*domain.ChatMessage, error) {
	messages, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list messages", err)
	}
	return messages, nil
}

// ExtractText returns the plain text of one page, via the cache when the
// analysis pass already extracted it.
func (s *Service) ExtractText(ctx context.Context, sessionID, pageID uuid.UUID) (string, error) {
	if cached, err := s.cache.Get(ctx, cache.PageTextKey(sessionID, pageID)); err == nil {
		return string(cached), nil
	}

	page, err := s.pages.GetByID(ctx, pageID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", err
		}
		return "", domain.StorageError("get page", err)
	}
	if page.SessionID != sessionID {
		return "", domain.ValidationError("page does not belong to session", nil)
	}

	text, err := s.gateway.ExtractText(ctx, *page)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, cache.PageTextKey(sessionID, pageID), []byte(text), s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("text cache write failed")
	}
	return text, nil
}

// BuildWorkflow extracts the theory-to-component graph for the session
// and persists it.
func (s *Service) BuildWorkflow(ctx context.Context, sessionID uuid.UUID) (*domain.WorkflowGraph, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Mode != domain.ModeReady && session.Mode != domain.ModeCreative {
		return nil, domain.SessionError("workflow extraction requires an analyzed session", nil)
	}

	pages, err := s.loadPages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, domain.ValidationError("session has no pages", nil)
	}

	graph, err := s.gateway.ExtractWorkflow(ctx, pages)
	if err != nil {
		return nil, err
	}
	if err := s.workflows.Save(ctx, sessionID, graph); err != nil {
		return nil, domain.StorageError("save workflow", err)
	}
	s.cacheJSON(ctx, cache.WorkflowKey(sessionID), graph)
	return graph, nil
}

// GetWorkflow returns the stored workflow graph.
func (s *Service) GetWorkflow(ctx context.Context, sessionID uuid.UUID) (*domain.WorkflowGraph, error) {
	if cached, err := s.cache.Get(ctx, cache.WorkflowKey(sessionID)); err == nil {
		var graph domain.WorkflowGraph
		if json.Unmarshal(cached, &graph) == nil {
			return &graph, nil
		}
	}
	graph, err := s.workflows.Get(ctx, sessionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.StorageError("get workflow", err)
	}
	s.cacheJSON(ctx, cache.WorkflowKey(sessionID), graph)
	return graph, nil
}

// GetBlueprint returns the stored architecture blueprint.
func (s *Service) GetBlueprint(ctx context.Context, sessionID uuid.UUID) (*domain.Blueprint, error) {
	if cached, err := s.cache.Get(ctx, cache.BlueprintKey(sessionID)); err == nil {
		var bp domain.Blueprint
		if json.Unmarshal(cached, &bp) == nil {
			return &bp, nil
		}
	}
	bp, err := s.blueprints.Get(ctx, sessionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, domain.StorageError("get blueprint", err)
	}
	s.cacheJSON(ctx, cache.BlueprintKey(sessionID), bp)
	return bp, nil
}

// EnterStudio moves the session into creative mode.
func (s *Service) EnterStudio(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.setMode(ctx, session, domain.ModeCreative); err != nil {
		return nil, err
	}
	return session, nil
}

// ExitStudio returns the session to ready mode.
func (s *Service) ExitStudio(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.setMode(ctx, session, domain.ModeReady); err != nil {
		return nil, err
	}
	return session, nil
}

// Asset returns the session's canvas state. An untouched session yields
// an empty asset, not an error.
func (s *Service) Asset(ctx context.Context, sessionID uuid.UUID) (*domain.GeneratedAsset, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	asset, err := s.assets.Get(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("get asset", err)
	}
	return asset, nil
}

// SaveAsset persists the session's canvas state.
func (s *Service) SaveAsset(ctx context.Context, sessionID uuid.UUID, asset *domain.GeneratedAsset) error {
	if err := s.assets.Save(ctx, sessionID, asset); err != nil {
		return domain.StorageError("save asset", err)
	}
	return nil
}

// Emit publishes a stream event on the session's event channel.
func (s *Service) Emit(ctx context.Context, ev domain.StreamEvent) {
	s.emit(ctx, ev)
}

// setMode applies a checked mode transition and persists it, emitting a
// mode_change event. A transition to the current mode is a no-op.
func (s *Service) setMode(ctx context.Context, session *domain.Session, to domain.SessionMode) error {
	if session.Mode == to {
		return nil
	}
	if err := session.Transition(to); err != nil {
		return err
	}
	if err := s.sessions.UpdateMode(ctx, session.ID, to); err != nil {
		return domain.StorageError("update mode", err)
	}
	ev := domain.NewEvent(domain.EventModeChange, session.ID)
	ev.Mode = to
	s.emit(ctx, ev)
	return nil
}

func (s *Service) loadPages(ctx context.Context, sessionID uuid.UUID) ([]domain.Page, error) {
	stored, err := s.pages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, domain.StorageError("list pages", err)
	}
	pages := make([]domain.Page, len(stored))
	for i, p := range stored {
		p.DisplayURL = displayURL(p.ID)
		pages[i] = *p
	}
	return pages, nil
}

func (s *Service) appendMessage(ctx context.Context, sessionID uuid.UUID, role domain.Role, text string, isError bool) error {
	m := &domain.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		IsError:   isError,
	}
	if err := s.messages.Append(ctx, m); err != nil {
		return domain.StorageError("append message", err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, ev domain.StreamEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, cache.EventChannel(ev.SessionID), ev); err != nil {
		s.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("event publish failed")
	}
}

func (s *Service) cacheJSON(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func displayURL(pageID uuid.UUID) string {
	return "/v1/pages/" + pageID.String() + "/image"
}
