package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/internal/domain"
)

// extractJSON pulls the JSON object out of a model response that may be
// wrapped in markdown fences or surrounded by prose.
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no valid JSON found in response")
	}

	return content[start : end+1], nil
}

type blueprintBoxJSON struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

// parseBlueprintJSON parses the five-slot blueprint response.
func parseBlueprintJSON(content string) (*domain.Blueprint, error) {
	jsonContent, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var raw map[string]blueprintBoxJSON
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	bp := &domain.Blueprint{}
	for _, slot := range domain.BlueprintSlots {
		box, ok := raw[string(slot)]
		if !ok || box.Heading == "" {
			return nil, fmt.Errorf("slot %s missing from response", slot)
		}
		bp.Boxes = append(bp.Boxes, domain.BlueprintBox{
			Slot:    slot,
			Heading: box.Heading,
			Summary: box.Summary,
		})
	}
	return bp, nil
}

// synthesizeBlueprint builds a deterministic fallback blueprint from an
// unusable model response so the infographic always renders.
func synthesizeBlueprint(content string) *domain.Blueprint {
	excerpt := firstSentence(content)
	headings := map[domain.BlueprintSlot]string{
		domain.SlotCore:     "Core Engine",
		domain.SlotPlanning: "Planning",
		domain.SlotMemory:   "Memory",
		domain.SlotTools:    "Tools",
		domain.SlotOutput:   "Output",
	}

	bp := &domain.Blueprint{}
	for _, slot := range domain.BlueprintSlots {
		summary := "Not described in the document."
		if slot == domain.SlotCore && excerpt != "" {
			summary = excerpt
		}
		bp.Boxes = append(bp.Boxes, domain.BlueprintBox{
			Slot:    slot,
			Heading: headings[slot],
			Summary: summary,
		})
	}
	return bp
}

func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	if content == "" {
		return ""
	}
	if idx := strings.IndexAny(content, ".\n"); idx > 0 {
		content = content[:idx+1]
	}
	if len(content) > 200 {
		content = content[:200]
	}
	return strings.TrimSpace(content)
}

type workflowJSON struct {
	Theories   []workflowItemJSON `json:"theories"`
	Components []workflowItemJSON `json:"components"`
	Links      []workflowLinkJSON `json:"links"`
	Confidence float64            `json:"confidence"`
}

type workflowItemJSON struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type workflowLinkJSON struct {
	TheoryID    string `json:"theory_id"`
	ComponentID string `json:"component_id"`
	Label       string `json:"label,omitempty"`
}

// parseWorkflowJSON parses the workflow-graph response and returns the
// graph plus the model's self-reported confidence.
func parseWorkflowJSON(content string) (*domain.WorkflowGraph, float64, error) {
	jsonContent, err := extractJSON(content)
	if err != nil {
		return nil, 0, err
	}

	var raw workflowJSON
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse JSON: %w", err)
	}

	graph := &domain.WorkflowGraph{}
	for _, t := range raw.Theories {
		if t.ID != "" && t.Label != "" {
			graph.Theories = append(graph.Theories, domain.WorkflowItem{ID: t.ID, Label: t.Label})
		}
	}
	for _, c := range raw.Components {
		if c.ID != "" && c.Label != "" {
			graph.Components = append(graph.Components, domain.WorkflowItem{ID: c.ID, Label: c.Label})
		}
	}
	for _, l := range raw.Links {
		graph.Links = append(graph.Links, domain.WorkflowLink{
			TheoryID:    l.TheoryID,
			ComponentID: l.ComponentID,
			Label:       l.Label,
		})
	}

	return graph, raw.Confidence, nil
}

type nodeJSON struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// parseNodeJSON parses a node-refinement response.
func parseNodeJSON(content string) (domain.DiagramNode, error) {
	jsonContent, err := extractJSON(content)
	if err != nil {
		return domain.DiagramNode{}, err
	}

	var raw nodeJSON
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return domain.DiagramNode{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if raw.Title == "" && raw.Text == "" {
		return domain.DiagramNode{}, fmt.Errorf("refinement response has no content")
	}

	return domain.DiagramNode{Title: raw.Title, Text: raw.Text}, nil
}

// decodeDataURL parses a data:<mediatype>;base64,<payload> URL into a
// background image.
func decodeDataURL(url string) (*domain.BackgroundImage, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, fmt.Errorf("not a data URL")
	}
	rest := strings.TrimPrefix(url, "data:")

	sep := strings.Index(rest, ";base64,")
	if sep == -1 {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	mediaType := rest[:sep]
	payload, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return nil, fmt.Errorf("decode data URL payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("data URL payload is empty")
	}

	return &domain.BackgroundImage{MediaType: mediaType, Payload: payload}, nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
