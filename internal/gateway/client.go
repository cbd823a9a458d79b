// Package gateway wraps the hosted multimodal model API behind typed
// task calls. All substantive intelligence lives on the other side of
// this boundary.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/observability"
)

const (
	defaultBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel      = "google/gemini-2.5-flash"
	defaultImageModel = "google/gemini-2.5-flash-image"
)

// Client handles communication with the OpenRouter chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	imageModel string
	httpClient *http.Client
	breaker    *Breaker
	retry      *RetryConfig
	logger     *observability.Logger

	confidenceFloor float64
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	ImageModel      string
	RequestTimeout  time.Duration
	MaxRetries      int
	ConfidenceFloor float64
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model      string    `json:"model"`
	Messages   []Message `json:"messages"`
	Stream     bool      `json:"stream"`
	Modalities []string  `json:"modalities,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents message content in streaming and non-streaming responses
type Delta struct {
	Content string         `json:"content"`
	Role    string         `json:"role"`
	Images  []GeneratedImg `json:"images,omitempty"`
}

// GeneratedImg is an image returned by an image-modality request.
type GeneratedImg struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

// NewClient creates a new gateway client.
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultImageModel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = 0.6
	}
	if logger == nil {
		logger = observability.Nop()
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &Client{
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		imageModel:      cfg.ImageModel,
		httpClient:      &http.Client{Timeout: cfg.RequestTimeout},
		breaker:         NewBreaker("gateway", logger),
		retry:           retry,
		logger:          logger.WithOperation("gateway"),
		confidenceFloor: cfg.ConfidenceFloor,
	}
}

// complete sends a non-streaming request and returns the first choice's text.
func (c *Client) complete(ctx context.Context, req *Request) (string, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return c.parseCompletion(resp.Body)
}

// stream sends a streaming request and forwards deltas to resultCh,
// returning the accumulated text.
func (c *Client) stream(ctx context.Context, req *Request, resultCh chan<- string) (string, error) {
	req.Stream = true
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	parser := NewStreamParser(resp.Body)
	full, err := parser.Collect(resultCh)
	if err != nil {
		return "", domain.GatewayError("Failed to parse stream", err)
	}
	return full, nil
}

// send marshals and posts the request through the breaker and retry loop.
func (c *Client) send(ctx context.Context, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.GatewayError("Failed to marshal request", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.retryWithBackoff(ctx, func() (*http.Response, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}

			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
			httpReq.Header.Set("HTTP-Referer", "https://github.com/atelier-ai/atelier")
			httpReq.Header.Set("X-Title", "Atelier Document Studio")

			return c.httpClient.Do(httpReq)
		})
	})
	if err != nil {
		return nil, domain.GatewayError("Failed to send request", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, domain.GatewayError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	return resp, nil
}

// parseCompletion extracts the content of the first choice.
func (c *Client) parseCompletion(body io.Reader) (string, error) {
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return "", domain.GatewayError("Failed to read response body", err)
	}

	var apiResp Response
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", domain.GatewayError("Failed to parse API response", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", domain.GatewayError("No choices in API response", nil)
	}

	content := apiResp.Choices[0].Message.Content
	if content == "" {
		content = apiResp.Choices[0].Delta.Content
	}
	return content, nil
}

// parseImageResponse extracts the first generated image from a response.
func (c *Client) parseImageResponse(body io.Reader) (*domain.BackgroundImage, error) {
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.GatewayError("Failed to read response body", err)
	}

	var apiResp Response
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, domain.GatewayError("Failed to parse API response", err)
	}

	for _, choice := range apiResp.Choices {
		images := choice.Message.Images
		if len(images) == 0 {
			images = choice.Delta.Images
		}
		for _, img := range images {
			bg, err := decodeDataURL(img.ImageURL.URL)
			if err == nil {
				return bg, nil
			}
		}
	}

	return nil, domain.GatewayError("No image in API response", nil)
}

// imagePart builds a data-URL content part for a page payload.
func imagePart(mediaType, base64Payload string) ContentPart {
	return ContentPart{
		Type: "image_url",
		ImageURL: &ImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", mediaType, base64Payload),
		},
	}
}

// pageParts converts session pages to image content parts.
func pageParts(pages []domain.Page) []ContentPart {
	parts := make([]ContentPart, 0, len(pages))
	for i := range pages {
		parts = append(parts, imagePart(pages[i].MediaType, pages[i].TransferEncoding()))
	}
	return parts
}
