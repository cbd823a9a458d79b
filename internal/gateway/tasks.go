package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/internal/domain"
)

// ChatInit sends all page images and asks for a greeting plus summary.
// The returned text becomes the first assistant message of the session.
func (c *Client) ChatInit(ctx context.Context, pages []domain.Page) (string, error) {
	parts := []ContentPart{{Type: "text", Text: chatInitPrompt}}
	parts = append(parts, pageParts(pages)...)

	req := &Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: parts}},
	}
	return c.complete(ctx, req)
}

// ChatTurn sends the transcript plus a new user message over the page
// images, streaming deltas to resultCh when non-nil, and returns the
// full assistant reply.
func (c *Client) ChatTurn(ctx context.Context, pages []domain.Page, transcript []domain.ChatMessage, text string, resultCh chan<- string) (string, error) {
	messages := make([]Message, 0, len(transcript)+2)

	system := []ContentPart{{Type: "text", Text: chatSystemPrompt}}
	system = append(system, pageParts(pages)...)
	messages = append(messages, Message{Role: "user", Content: system})

	for _, m := range transcript {
		if m.IsError {
			continue
		}
		messages = append(messages, Message{
			Role:    string(m.Role),
			Content: []ContentPart{{Type: "text", Text: m.Text}},
		})
	}

	messages = append(messages, Message{
		Role:    "user",
		Content: []ContentPart{{Type: "text", Text: text}},
	})

	req := &Request{Model: c.model, Messages: messages}
	if resultCh != nil {
		return c.stream(ctx, req, resultCh)
	}
	return c.complete(ctx, req)
}

// ExtractText transcribes the visible text of a single page.
func (c *Client) ExtractText(ctx context.Context, page domain.Page) (string, error) {
	req := &Request{
		Model: c.model,
		Messages: []Message{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: extractTextPrompt},
				imagePart(page.MediaType, page.TransferEncoding()),
			},
		}},
	}
	return c.complete(ctx, req)
}

// ExtractBlueprint asks for the five-slot agent-architecture summary of
// the document. A malformed response falls back to a synthesized
// blueprint rather than failing the analysis.
func (c *Client) ExtractBlueprint(ctx context.Context, pages []domain.Page) (*domain.Blueprint, error) {
	parts := []ContentPart{{Type: "text", Text: blueprintPrompt}}
	parts = append(parts, pageParts(pages)...)

	req := &Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: parts}},
	}
	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	bp, err := parseBlueprintJSON(content)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Blueprint response unusable, synthesizing fallback")
		return synthesizeBlueprint(content), nil
	}
	return bp, nil
}

// ExtractWorkflow asks for the theory-to-component workflow graph. A
// result below the confidence floor is rejected.
func (c *Client) ExtractWorkflow(ctx context.Context, pages []domain.Page) (*domain.WorkflowGraph, error) {
	parts := []ContentPart{{Type: "text", Text: workflowPrompt}}
	parts = append(parts, pageParts(pages)...)

	req := &Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: parts}},
	}
	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	graph, confidence, err := parseWorkflowJSON(content)
	if err != nil {
		return nil, domain.GatewayError("Workflow response unusable", err)
	}
	if confidence < c.confidenceFloor {
		return nil, domain.GatewayError(fmt.Sprintf("workflow confidence %.2f below floor %.2f", confidence, c.confidenceFloor), nil)
	}
	if !graph.Validate() {
		return nil, domain.GatewayError("workflow graph has no usable items", nil)
	}
	return graph, nil
}

// RefineNode rewrites a node's content per the user instruction,
// returning the refined content under the same identifier. Position is
// never touched here; the canvas merge preserves it.
func (c *Client) RefineNode(ctx context.Context, node domain.DiagramNode, instruction string) (domain.DiagramNode, error) {
	prompt := fmt.Sprintf(refineNodePrompt, node.ID, node.Title, node.Text, instruction)

	req := &Request{
		Model: c.model,
		Messages: []Message{{
			Role:    "user",
			Content: []ContentPart{{Type: "text", Text: prompt}},
		}},
	}
	content, err := c.complete(ctx, req)
	if err != nil {
		return domain.DiagramNode{}, err
	}

	refined, err := parseNodeJSON(content)
	if err != nil {
		return domain.DiagramNode{}, domain.GatewayError("Node refinement response unusable", err)
	}
	refined.ID = node.ID
	refined.Position = node.Position
	return refined, nil
}

// GenerateBackground requests an image-modality completion and returns
// the generated backdrop.
func (c *Client) GenerateBackground(ctx context.Context, prompt string) (*domain.BackgroundImage, error) {
	return c.imageRequest(ctx, []Message{{
		Role: "user",
		Content: []ContentPart{{
			Type: "text",
			Text: fmt.Sprintf(backgroundPrompt, prompt),
		}},
	}}, prompt)
}

// RefineBackground re-sends the previous image plus feedback text.
func (c *Client) RefineBackground(ctx context.Context, prev *domain.BackgroundImage, feedback string) (*domain.BackgroundImage, error) {
	if prev == nil {
		return c.GenerateBackground(ctx, feedback)
	}

	b64 := encodeBase64(prev.Payload)
	return c.imageRequest(ctx, []Message{{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: fmt.Sprintf(backgroundRefinePrompt, feedback)},
			imagePart(prev.MediaType, b64),
		},
	}}, strings.TrimSpace(prev.Prompt+" | "+feedback))
}

func (c *Client) imageRequest(ctx context.Context, messages []Message, prompt string) (*domain.BackgroundImage, error) {
	req := &Request{
		Model:      c.imageModel,
		Messages:   messages,
		Modalities: []string{"image", "text"},
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bg, err := c.parseImageResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	bg.Prompt = prompt
	return bg, nil
}

const chatInitPrompt = `You are a document analysis assistant. The images are the pages of a document the user just uploaded.

Write a short greeting followed by a concise summary of the document: what it is, its main topics, and anything notable. Keep it under 200 words. Plain text only, no markdown headers.`

const chatSystemPrompt = `You are a document analysis assistant. The images are the pages of the document under discussion. Answer the user's questions about this document accurately and concisely. If the answer is not in the document, say so.`

const extractTextPrompt = `Transcribe all visible text on this page, preserving reading order. Output plain text only: no commentary, no markdown fences, no descriptions of images. If the page has no text, output nothing.`

const blueprintPrompt = `You are an AI-architecture analyst. Read the document pages and summarize the system they describe as a five-part agent architecture.

Return ONLY a valid JSON object with exactly this structure:

{
  "core": {"heading": "short title", "summary": "one or two sentences"},
  "planning": {"heading": "...", "summary": "..."},
  "memory": {"heading": "...", "summary": "..."},
  "tools": {"heading": "...", "summary": "..."},
  "output": {"heading": "...", "summary": "..."}
}

Slot meanings:
- core: the central reasoning engine or main idea
- planning: how work is decomposed, ordered or decided
- memory: what state, context or knowledge is kept
- tools: external capabilities, integrations or data sources
- output: what the system produces for its users

Every slot must be filled. If the document does not describe a slot explicitly, infer the closest match from context. No markdown fences, no extra text.`

const workflowPrompt = `You are a technical analyst. Read the document pages and map the theoretical concepts they present to the concrete components that implement them.

Return ONLY a valid JSON object with exactly this structure:

{
  "theories": [{"id": "t1", "label": "concept name"}],
  "components": [{"id": "c1", "label": "component name"}],
  "links": [{"theory_id": "t1", "component_id": "c1", "label": "optional relationship"}],
  "confidence": 0.0-1.0
}

Rules:
- theories are ideas, methods or principles from the document
- components are concrete artifacts: modules, services, data structures
- every link must reference declared ids
- confidence reflects how clearly the document supports this mapping
- no markdown fences, no extra text`

const refineNodePrompt = `You are refining one card of a diagram. Current card:

id: %s
title: %s
text: %s

User instruction: %s

Return ONLY a valid JSON object: {"title": "new title", "text": "new text"}. Keep the title short. No markdown fences, no extra text.`

const backgroundPrompt = `Generate a clean, softly colored background illustration for a diagram canvas. It must stay visually quiet so cards drawn on top remain readable: no text, no sharp focal points. Theme: %s`

const backgroundRefinePrompt = `Adjust the attached background illustration per this feedback, keeping it visually quiet with no text: %s`
