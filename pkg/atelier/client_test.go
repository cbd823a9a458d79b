package atelier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "notes", body["title"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Session{ID: id, Title: "notes", Mode: ModeIdle})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	session, err := c.CreateSession(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, "notes", session.Title)
}

func TestAPIKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-API-Key")
		json.NewEncoder(w).Encode([]Session{})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("secret"))
	_, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestAPIErrorParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found", "type": "not_found"})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.GetSession(context.Background(), uuid.New())
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session not found", apiErr.Message)
}

func TestUploadMultipart(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/"+sessionID.String()+"/documents", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File["file"]
		require.Len(t, files, 1)
		assert.Equal(t, "page.jpg", files[0].Filename)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]Page{{ID: uuid.New(), SessionID: sessionID, PageNumber: 1}})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "page.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))

	c := NewClient(WithBaseURL(srv.URL))
	pages, err := c.Upload(context.Background(), sessionID, path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
}

func TestChatStreamParsing(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"delta":"Hello"}`,
		"",
		`data: {"delta":" there"}`,
		"",
		`data: {"id":"` + uuid.New().String() + `","role":"assistant","text":"Hello there"}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")

	deltas := make(chan string, 8)
	msg, err := parseChatStream(strings.NewReader(stream), deltas)
	close(deltas)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Hello there", msg.Text)

	var collected []string
	for d := range deltas {
		collected = append(collected, d)
	}
	assert.Equal(t, []string{"Hello", " there"}, collected)
}

func TestChatStreamError(t *testing.T) {
	stream := "data: {\"error\":\"model unavailable\"}\n\n"
	deltas := make(chan string, 1)
	_, err := parseChatStream(strings.NewReader(stream), deltas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}
