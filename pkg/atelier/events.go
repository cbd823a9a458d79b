package atelier

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Events opens the session's live event feed. Events arrive on the
// returned channel until the context is canceled or the connection
// drops; the channel is closed either way.
func (c *Client) Events(ctx context.Context, sessionID uuid.UUID) (<-chan StreamEvent, error) {
	target, err := c.wsURL(sessionID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, c.errorFrom(resp)
		}
		return nil, err
	}

	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev StreamEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close the socket on cancellation so the reader unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return events, nil
}

// parseChatStream consumes the SSE reply stream: delta frames, then the
// final assistant message, then a done marker.
func parseChatStream(r io.Reader, deltas chan<- string) (*ChatMessage, error) {
	var final *ChatMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var frame struct {
			Delta string `json:"delta"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err == nil && frame.Delta != "" {
			deltas <- frame.Delta
			continue
		}
		if frame.Error != "" {
			return nil, &APIError{StatusCode: http.StatusBadGateway, Message: frame.Error}
		}

		var msg ChatMessage
		if err := json.Unmarshal([]byte(data), &msg); err == nil && msg.Text != "" {
			final = &msg
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return final, nil
}
