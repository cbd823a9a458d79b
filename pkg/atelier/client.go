// Package atelier is the public Go client for the Atelier API.
package atelier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/atelier-ai/atelier/internal/domain"
)

// Re-export the wire types so callers never import internal packages.
type (
	Session           = domain.Session
	SessionMode       = domain.SessionMode
	Page              = domain.Page
	ChatMessage       = domain.ChatMessage
	Blueprint         = domain.Blueprint
	WorkflowGraph     = domain.WorkflowGraph
	GeneratedAsset    = domain.GeneratedAsset
	DiagramNode       = domain.DiagramNode
	DiagramConnection = domain.DiagramConnection
	Point             = domain.Point
	StreamEvent       = domain.StreamEvent
	EventType         = domain.EventType
)

// Event type constants, re-exported for switch statements on the feed.
const (
	EventStart           = domain.EventStart
	EventPageProcessing  = domain.EventPageProcessing
	EventStreaming       = domain.EventStreaming
	EventPageComplete    = domain.EventPageComplete
	EventComplete        = domain.EventComplete
	EventError           = domain.EventError
	EventModeChange      = domain.EventModeChange
	EventCanvasCommit    = domain.EventCanvasCommit
	EventBackgroundReady = domain.EventBackgroundReady
)

// Session mode constants.
const (
	ModeIdle      = domain.ModeIdle
	ModeAnalyzing = domain.ModeAnalyzing
	ModeReady     = domain.ModeReady
	ModeCreative  = domain.ModeCreative
)

const defaultBaseURL = "http://localhost:8090"

// Client talks to an Atelier API server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets the API server address.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client. A local .env file and the ATELIER_API_URL
// and ATELIER_API_KEY environment variables supply defaults; options
// override them.
func NewClient(opts ...Option) *Client {
	_ = godotenv.Load()

	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	if v := os.Getenv("ATELIER_API_URL"); v != "" {
		c.baseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("ATELIER_API_KEY"); v != "" {
		c.apiKey = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("atelier: %s (%s, status %d)", e.Message, e.Type, e.StatusCode)
	}
	return fmt.Sprintf("atelier: %s (status %d)", e.Message, e.StatusCode)
}

// CreateSession creates a session with an optional title.
func (c *Client) CreateSession(ctx context.Context, title string) (*Session, error) {
	var session Session
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions lists all sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id.String(), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session and everything under it.
func (c *Client) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+id.String(), nil, nil)
}

// Upload sends one or more local files to a session. Each PDF becomes a
// page per document page; each image becomes a single page.
func (c *Client) Upload(ctx context.Context, sessionID uuid.UUID, paths ...string) ([]*Page, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("atelier: no files to upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("atelier: open %s: %w", p, err)
		}
		part, err := mw.CreateFormFile("file", filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("atelier: read %s: %w", p, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/sessions/"+sessionID.String()+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pages []*Page
	if err := c.decode(resp, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// ListPages lists a session's pages in order.
func (c *Client) ListPages(ctx context.Context, sessionID uuid.UUID) ([]*Page, error) {
	var pages []*Page
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String()+"/pages", nil, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// DeletePage removes a single page from a session.
func (c *Client) DeletePage(ctx context.Context, sessionID, pageID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete,
		"/v1/sessions/"+sessionID.String()+"/pages/"+pageID.String(), nil, nil)
}

// PageImage downloads the raw image bytes for a page.
func (c *Client) PageImage(ctx context.Context, pageID uuid.UUID) ([]byte, string, error) {
	return c.raw(ctx, "/v1/pages/"+pageID.String()+"/image")
}

// Analyze starts document analysis. The call returns as soon as the
// server accepts the job; progress arrives on the event feed.
func (c *Client) Analyze(ctx context.Context, sessionID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/analyze", nil, nil)
}

// Chat sends a message and returns the full assistant reply.
func (c *Client) Chat(ctx context.Context, sessionID uuid.UUID, text string) (*ChatMessage, error) {
	var reply ChatMessage
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/chat",
		map[string]string{"text": text}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// ChatStream sends a message and streams reply deltas to the given
// channel, returning the final assistant message. The channel is closed
// when the reply completes.
func (c *Client) ChatStream(ctx context.Context, sessionID uuid.UUID, text string, deltas chan<- string) (*ChatMessage, error) {
	defer close(deltas)

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/sessions/"+sessionID.String()+"/chat?stream=true", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFrom(resp)
	}

	return parseChatStream(resp.Body, deltas)
}

// ExtractText runs verbatim text extraction on a page.
func (c *Client) ExtractText(ctx context.Context, sessionID, pageID uuid.UUID) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/extract/text",
		map[string]string{"pageId": pageID.String()}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Transcript fetches the full chat transcript.
func (c *Client) Transcript(ctx context.Context, sessionID uuid.UUID) ([]*ChatMessage, error) {
	var messages []*ChatMessage
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String()+"/transcript", nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Blueprint fetches the five-box architecture blueprint.
func (c *Client) Blueprint(ctx context.Context, sessionID uuid.UUID) (*Blueprint, error) {
	var bp Blueprint
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String()+"/blueprint", nil, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// BuildWorkflow asks the server to derive the theory-to-component graph.
func (c *Client) BuildWorkflow(ctx context.Context, sessionID uuid.UUID) (*WorkflowGraph, error) {
	var graph WorkflowGraph
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/workflow", nil, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

// Workflow fetches the stored workflow graph.
func (c *Client) Workflow(ctx context.Context, sessionID uuid.UUID) (*WorkflowGraph, error) {
	var graph WorkflowGraph
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String()+"/workflow", nil, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

// EnterStudio switches the session into creative mode.
func (c *Client) EnterStudio(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/studio/enter", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ExitStudio commits the canvas and returns the session to ready mode.
func (c *Client) ExitStudio(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/studio/exit", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Canvas fetches the canvas state. Background payload bytes are elided;
// use Background or RenderCanvas for pixels.
func (c *Client) Canvas(ctx context.Context, sessionID uuid.UUID) (*GeneratedAsset, error) {
	var asset GeneratedAsset
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID.String()+"/canvas", nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// Background downloads the raw canvas background image.
func (c *Client) Background(ctx context.Context, sessionID uuid.UUID) ([]byte, string, error) {
	return c.raw(ctx, "/v1/sessions/"+sessionID.String()+"/canvas/background")
}

// GenerateBackground creates a canvas background from a prompt.
func (c *Client) GenerateBackground(ctx context.Context, sessionID uuid.UUID, prompt string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+sessionID.String()+"/canvas/background",
		map[string]string{"prompt": prompt}, nil)
}

// RefineBackground regenerates the background from feedback on the
// current one.
func (c *Client) RefineBackground(ctx context.Context, sessionID uuid.UUID, feedback string) error {
	return c.do(ctx, http.MethodPut, "/v1/sessions/"+sessionID.String()+"/canvas/background",
		map[string]string{"prompt": feedback}, nil)
}

// RenderBlueprint downloads the blueprint infographic PNG.
func (c *Client) RenderBlueprint(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	data, _, err := c.raw(ctx, "/v1/sessions/"+sessionID.String()+"/blueprint/render")
	return data, err
}

// RenderWorkflow downloads the workflow graph PNG.
func (c *Client) RenderWorkflow(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	data, _, err := c.raw(ctx, "/v1/sessions/"+sessionID.String()+"/workflow/render")
	return data, err
}

// RenderCanvas downloads the canvas composition PNG.
func (c *Client) RenderCanvas(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	data, _, err := c.raw(ctx, "/v1/sessions/"+sessionID.String()+"/canvas/render")
	return data, err
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

// do performs a JSON request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

// raw downloads a binary endpoint, returning bytes and content type.
func (c *Client) raw(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", c.errorFrom(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) decode(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFrom(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) errorFrom(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var parsed struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Error != "" {
		apiErr.Message = parsed.Error
		apiErr.Type = parsed.Type
	}
	return apiErr
}

// wsURL converts the base URL into the websocket endpoint for a session.
func (c *Client) wsURL(sessionID uuid.UUID) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/sessions/" + sessionID.String() + "/events"
	return u.String(), nil
}
