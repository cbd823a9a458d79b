package gateway

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose wrapped", `Here is the result: {"a":1} hope that helps`, `{"a":1}`, false},
		{"no json", "sorry, I cannot do that", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBlueprintJSON(t *testing.T) {
	content := "```json\n" + `{
		"core": {"heading": "Reasoner", "summary": "Central LLM loop."},
		"planning": {"heading": "Planner", "summary": "Task decomposition."},
		"memory": {"heading": "Memory", "summary": "Vector store."},
		"tools": {"heading": "Tools", "summary": "Web search."},
		"output": {"heading": "Output", "summary": "Reports."}
	}` + "\n```"

	bp, err := parseBlueprintJSON(content)
	require.NoError(t, err)
	require.True(t, bp.Complete())
	assert.Equal(t, "Reasoner", bp.Box(domain.SlotCore).Heading)
	assert.Equal(t, "Web search.", bp.Box(domain.SlotTools).Summary)
}

func TestParseBlueprintJSON_MissingSlot(t *testing.T) {
	content := `{"core": {"heading": "Reasoner", "summary": "x"}}`
	_, err := parseBlueprintJSON(content)
	assert.Error(t, err)
}

func TestSynthesizeBlueprint(t *testing.T) {
	bp := synthesizeBlueprint("The document describes a retrieval pipeline. More text follows.")
	require.True(t, bp.Complete())
	assert.Contains(t, bp.Box(domain.SlotCore).Summary, "retrieval pipeline")
	// Outer slots get placeholder summaries, never empty boxes.
	for _, slot := range domain.BlueprintSlots {
		assert.NotEmpty(t, bp.Box(slot).Heading)
		assert.NotEmpty(t, bp.Box(slot).Summary)
	}
}

func TestParseWorkflowJSON(t *testing.T) {
	content := `{
		"theories": [{"id": "t1", "label": "Attention"}],
		"components": [{"id": "c1", "label": "Encoder"}],
		"links": [{"theory_id": "t1", "component_id": "c1", "label": "implements"}],
		"confidence": 0.85
	}`

	graph, confidence, err := parseWorkflowJSON(content)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, confidence, 0.001)
	require.Len(t, graph.Theories, 1)
	require.Len(t, graph.Links, 1)
	assert.Equal(t, "implements", graph.Links[0].Label)
}

func TestParseWorkflowJSON_SkipsBlankItems(t *testing.T) {
	content := `{
		"theories": [{"id": "t1", "label": "A"}, {"id": "", "label": "blank id"}],
		"components": [{"id": "c1", "label": ""}],
		"links": [],
		"confidence": 0.9
	}`

	graph, _, err := parseWorkflowJSON(content)
	require.NoError(t, err)
	assert.Len(t, graph.Theories, 1)
	assert.Empty(t, graph.Components)
}

func TestParseNodeJSON(t *testing.T) {
	node, err := parseNodeJSON(`{"title": "Planner", "text": "Decomposes tasks."}`)
	require.NoError(t, err)
	assert.Equal(t, "Planner", node.Title)

	_, err = parseNodeJSON(`{"title": "", "text": ""}`)
	assert.Error(t, err)

	_, err = parseNodeJSON("no json here")
	assert.Error(t, err)
}

func TestDecodeDataURL(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	bg, err := decodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/png", bg.MediaType)
	assert.Equal(t, payload, bg.Payload)
}

func TestDecodeDataURL_Rejects(t *testing.T) {
	tests := []string{
		"https://example.com/image.png",
		"data:image/png,rawpayload",
		"data:image/png;base64,%%%invalid%%%",
		"data:image/png;base64,",
	}
	for _, url := range tests {
		if _, err := decodeDataURL(url); err == nil {
			t.Errorf("decodeDataURL(%q) should fail", url)
		}
	}
}
