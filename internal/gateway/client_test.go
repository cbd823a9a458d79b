package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		Model:          "test-model",
		ImageModel:     "test-image-model",
		RequestTimeout: 5 * time.Second,
	}, observability.Nop())
	c.retry.InitialBackoff = time.Millisecond
	c.retry.MaxBackoff = 5 * time.Millisecond
	return c
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"id":"gen-1","choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func testPage(payload []byte) domain.Page {
	return domain.Page{MediaType: "image/jpeg", Payload: payload}
}

func TestChatInit_SendsPagesAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		fmt.Fprint(w, completionBody("Hello! This document covers agents."))
	})

	reply, err := client.ChatInit(context.Background(), []domain.Page{testPage([]byte{1, 2, 3})})
	require.NoError(t, err)
	assert.Equal(t, "Hello! This document covers agents.", reply)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Contains(t, gotBody, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
}

func TestChatTurn_StreamsDeltas(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	deltas := make(chan string, 10)
	full, err := client.ChatTurn(context.Background(), nil, nil, "hi", deltas)
	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
	close(deltas)

	var collected strings.Builder
	for d := range deltas {
		collected.WriteString(d)
	}
	assert.Equal(t, "Hello", collected.String())
}

func TestChatTurn_SkipsErrorMessagesInTranscript(t *testing.T) {
	var gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		fmt.Fprint(w, completionBody("ok"))
	})

	transcript := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Text: "previous reply"},
		{Role: domain.RoleAssistant, Text: "the gateway failed", IsError: true},
	}
	_, err := client.ChatTurn(context.Background(), nil, transcript, "next", nil)
	require.NoError(t, err)
	assert.Contains(t, gotBody, "previous reply")
	assert.NotContains(t, gotBody, "the gateway failed")
}

func TestRetry_RecoversFromTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionBody("recovered"))
	})

	reply, err := client.ExtractText(context.Background(), testPage([]byte{1}))
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad request"}`)
	})

	_, err := client.ExtractText(context.Background(), testPage([]byte{1}))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, domain.IsType(err, domain.ErrorTypeGateway))
}

func TestExtractBlueprint_FallsBackOnGarbage(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("I am unable to produce JSON today. Sorry."))
	})

	bp, err := client.ExtractBlueprint(context.Background(), []domain.Page{testPage([]byte{1})})
	require.NoError(t, err)
	assert.True(t, bp.Complete())
}

func TestExtractWorkflow_ConfidenceFloor(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`{"theories":[{"id":"t1","label":"A"}],"components":[{"id":"c1","label":"B"}],"links":[],"confidence":0.2}`))
	})

	_, err := client.ExtractWorkflow(context.Background(), []domain.Page{testPage([]byte{1})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below floor")
}

func TestRefineNode_PreservesIDAndPosition(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody(`{"title":"Refined","text":"Better text."}`))
	})

	node := domain.DiagramNode{ID: "n1", Title: "Old", Position: domain.Point{X: 42, Y: 7}}
	refined, err := client.RefineNode(context.Background(), node, "make it better")
	require.NoError(t, err)
	assert.Equal(t, "n1", refined.ID)
	assert.Equal(t, domain.Point{X: 42, Y: 7}, refined.Position)
	assert.Equal(t, "Refined", refined.Title)
}

func TestGenerateBackground(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 0x50})
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"","images":[{"type":"image_url","image_url":{"url":"data:image/png;base64,%s"}}]}}]}`, payload)
	})

	bg, err := client.GenerateBackground(context.Background(), "soft forest")
	require.NoError(t, err)
	assert.Equal(t, "image/png", bg.MediaType)
	assert.Equal(t, "soft forest", bg.Prompt)
	assert.NotEmpty(t, bg.Payload)
}

func TestGenerateBackground_NoImageInResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("cannot generate images"))
	})

	_, err := client.GenerateBackground(context.Background(), "anything")
	require.Error(t, err)
}

func TestContextCancellation(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, completionBody("too late"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ExtractText(ctx, testPage([]byte{1}))
	assert.Error(t, err)
}
