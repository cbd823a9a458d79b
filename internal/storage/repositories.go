package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/domain"
)

// ErrNotFound indicates a missing record; it wraps domain.ErrNotFound
// so callers can test with domain.IsNotFound.
var ErrNotFound = fmt.Errorf("storage: %w", domain.ErrNotFound)

// SessionRepository handles session CRUD.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Mode == "" {
		s.Mode = domain.ModeIdle
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID.String(), s.Title, string(s.Mode), s.CreatedAt, s.UpdatedAt)
	return err
}

// GetByID retrieves a session by id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var (
		s     domain.Session
		idStr string
		mode  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, mode, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id.String()).Scan(&idStr, &s.Title, &mode, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	s.Mode = domain.SessionMode(mode)
	return &s, nil
}

// List returns all sessions, newest first.
func (r *SessionRepository) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, mode, created_at, updated_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var (
			s     domain.Session
			idStr string
			mode  string
		)
		if err := rows.Scan(&idStr, &s.Title, &mode, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		s.Mode = domain.SessionMode(mode)
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// UpdateMode persists a mode change.
func (r *SessionRepository) UpdateMode(ctx context.Context, id uuid.UUID, mode domain.SessionMode) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET mode = $1, updated_at = $2 WHERE id = $3
	`, string(mode), time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a session; dependent rows cascade.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// PageRepository handles page persistence. Pages are immutable: there
// is intentionally no update operation.
type PageRepository struct {
	db DB
}

// NewPageRepository creates a new page repository.
func NewPageRepository(db DB) *PageRepository {
	return &PageRepository{db: db}
}

// Create inserts a page.
func (r *PageRepository) Create(ctx context.Context, p *domain.Page) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pages (id, session_id, page_number, media_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID.String(), p.SessionID.String(), p.PageNumber, p.MediaType, p.Payload, p.CreatedAt)
	return err
}

// GetByID retrieves a page with its payload.
func (r *PageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Page, error) {
	var (
		p      domain.Page
		idStr  string
		sidStr string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, page_number, media_type, payload, created_at
		FROM pages WHERE id = $1
	`, id.String()).Scan(&idStr, &sidStr, &p.PageNumber, &p.MediaType, &p.Payload, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if p.SessionID, err = uuid.Parse(sidStr); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListBySession returns a session's pages ordered by page number.
func (r *PageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Page, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, page_number, media_type, payload, created_at
		FROM pages WHERE session_id = $1 ORDER BY page_number, created_at
	`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*domain.Page
	for rows.Next() {
		var (
			p      domain.Page
			idStr  string
			sidStr string
		)
		if err := rows.Scan(&idStr, &sidStr, &p.PageNumber, &p.MediaType, &p.Payload, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if p.SessionID, err = uuid.Parse(sidStr); err != nil {
			return nil, err
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// Delete removes a page.
func (r *PageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pages WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MessageRepository handles the append-only transcript.
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append adds a message to a session's transcript.
func (r *MessageRepository) Append(ctx context.Context, m *domain.ChatMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, text, is_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID.String(), m.SessionID.String(), string(m.Role), m.Text, m.IsError, m.CreatedAt)
	return err
}

// ListBySession returns the transcript in chronological order.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, text, is_error, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at, id
	`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var (
			m      domain.ChatMessage
			idStr  string
			sidStr string
			role   string
		)
		if err := rows.Scan(&idStr, &sidStr, &role, &m.Text, &m.IsError, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if m.SessionID, err = uuid.Parse(sidStr); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// AssetRepository persists the canvas state per session.
type AssetRepository struct {
	db DB
}

// NewAssetRepository creates a new asset repository.
func NewAssetRepository(db DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Save upserts the full canvas asset for a session.
func (r *AssetRepository) Save(ctx context.Context, sessionID uuid.UUID, asset *domain.GeneratedAsset) error {
	nodes, err := json.Marshal(asset.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	connections, err := json.Marshal(asset.Connections)
	if err != nil {
		return fmt.Errorf("marshal connections: %w", err)
	}

	var (
		background []byte
		bgType     sql.NullString
		bgPrompt   sql.NullString
	)
	if asset.Background != nil {
		background = asset.Background.Payload
		bgType = sql.NullString{String: asset.Background.MediaType, Valid: true}
		bgPrompt = sql.NullString{String: asset.Background.Prompt, Valid: true}
	}

	// Upsert; both sqlite and postgres understand ON CONFLICT.
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO assets (session_id, nodes, connections, background, background_media_type, background_prompt, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			background = EXCLUDED.background,
			background_media_type = EXCLUDED.background_media_type,
			background_prompt = EXCLUDED.background_prompt,
			updated_at = EXCLUDED.updated_at
	`, sessionID.String(), string(nodes), string(connections), background, bgType, bgPrompt, time.Now().UTC())
	return err
}

// Get loads the canvas asset for a session. A session without a saved
// asset returns an empty asset, not an error.
func (r *AssetRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.GeneratedAsset, error) {
	var (
		nodes       string
		connections string
		background  []byte
		bgType      sql.NullString
		bgPrompt    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT nodes, connections, background, background_media_type, background_prompt
		FROM assets WHERE session_id = $1
	`, sessionID.String()).Scan(&nodes, &connections, &background, &bgType, &bgPrompt)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.GeneratedAsset{}, nil
	}
	if err != nil {
		return nil, err
	}

	asset := &domain.GeneratedAsset{}
	if err := json.Unmarshal([]byte(nodes), &asset.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(connections), &asset.Connections); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	if len(background) > 0 && bgType.Valid {
		asset.Background = &domain.BackgroundImage{
			MediaType: bgType.String,
			Payload:   background,
			Prompt:    bgPrompt.String,
		}
	}
	return asset, nil
}

// WorkflowRepository persists the workflow graph per session.
type WorkflowRepository struct {
	db DB
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Save upserts a session's workflow graph.
func (r *WorkflowRepository) Save(ctx context.Context, sessionID uuid.UUID, graph *domain.WorkflowGraph) error {
	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (session_id, graph, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
			graph = EXCLUDED.graph,
			updated_at = EXCLUDED.updated_at
	`, sessionID.String(), string(data), time.Now().UTC())
	return err
}

// Get loads a session's workflow graph.
func (r *WorkflowRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.WorkflowGraph, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT graph FROM workflows WHERE session_id = $1
	`, sessionID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	graph := &domain.WorkflowGraph{}
	if err := json.Unmarshal([]byte(data), graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return graph, nil
}

// BlueprintRepository persists the five-box blueprint per session.
type BlueprintRepository struct {
	db DB
}

// NewBlueprintRepository creates a new blueprint repository.
func NewBlueprintRepository(db DB) *BlueprintRepository {
	return &BlueprintRepository{db: db}
}

// Save upserts a session's blueprint.
func (r *BlueprintRepository) Save(ctx context.Context, sessionID uuid.UUID, bp *domain.Blueprint) error {
	data, err := json.Marshal(bp.Boxes)
	if err != nil {
		return fmt.Errorf("marshal boxes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO blueprints (session_id, boxes, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
			boxes = EXCLUDED.boxes,
			updated_at = EXCLUDED.updated_at
	`, sessionID.String(), string(data), time.Now().UTC())
	return err
}

// Get loads a session's blueprint.
func (r *BlueprintRepository) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Blueprint, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT boxes FROM blueprints WHERE session_id = $1
	`, sessionID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	bp := &domain.Blueprint{}
	if err := json.Unmarshal([]byte(data), &bp.Boxes); err != nil {
		return nil, fmt.Errorf("unmarshal boxes: %w", err)
	}
	return bp, nil
}

// requireRow maps zero affected rows to ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
