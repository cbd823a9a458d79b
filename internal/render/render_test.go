package render

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-ai/atelier/internal/domain"
)

func testBlueprint() *domain.Blueprint {
	bp := &domain.Blueprint{}
	for _, slot := range domain.BlueprintSlots {
		bp.Boxes = append(bp.Boxes, domain.BlueprintBox{
			Slot:    slot,
			Heading: "Heading " + string(slot),
			Summary: "A short summary of what this part of the agent does.",
		})
	}
	return bp
}

func testGraph() *domain.WorkflowGraph {
	return &domain.WorkflowGraph{
		Theories: []domain.WorkflowItem{
			{ID: "t1", Label: "Chain-of-thought prompting"},
			{ID: "t2", Label: "Retrieval grounding"},
		},
		Components: []domain.WorkflowItem{
			{ID: "c1", Label: "Planner"},
			{ID: "c2", Label: "Vector store"},
			{ID: "c3", Label: "Answer composer"},
		},
		Links: []domain.WorkflowLink{
			{TheoryID: "t1", ComponentID: "c1", Label: "drives"},
			{TheoryID: "t2", ComponentID: "c2"},
		},
	}
}

func testAsset() *domain.GeneratedAsset {
	return &domain.GeneratedAsset{
		Nodes: []domain.DiagramNode{
			{ID: "n1", Title: "Core", Text: "the model loop", Position: domain.Point{X: 100, Y: 120}},
			{ID: "n2", Title: "Tools", Text: "search, code", Position: domain.Point{X: 500, Y: 300}},
		},
		Connections: []domain.DiagramConnection{
			{ID: "c1", SourceNodeID: "n1", Target: domain.Point{X: 700, Y: 150}},
		},
	}
}

func TestBlueprint_FixedDimensions(t *testing.T) {
	img, err := Blueprint(testBlueprint(), Options{})
	require.NoError(t, err)
	assert.Equal(t, blueprintW, img.Bounds().Dx())
	assert.Equal(t, blueprintH, img.Bounds().Dy())
}

func TestBlueprint_ScaleMultipliesDimensions(t *testing.T) {
	img, err := Blueprint(testBlueprint(), Options{Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, blueprintW*2, img.Bounds().Dx())
	assert.Equal(t, blueprintH*2, img.Bounds().Dy())
}

func TestBlueprint_RejectsIncomplete(t *testing.T) {
	bp := testBlueprint()
	bp.Boxes = bp.Boxes[:3]
	_, err := Blueprint(bp, Options{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestBlueprint_Deterministic(t *testing.T) {
	a, err := Blueprint(testBlueprint(), Options{})
	require.NoError(t, err)
	b, err := Blueprint(testBlueprint(), Options{})
	require.NoError(t, err)

	var bufA, bufB bytes.Buffer
	require.NoError(t, EncodePNG(&bufA, a))
	require.NoError(t, EncodePNG(&bufB, b))
	assert.Equal(t, bufA.Bytes(), bufB.Bytes())
}

func TestWorkflow_HeightFollowsLongestColumn(t *testing.T) {
	img, err := Workflow(testGraph(), Options{})
	require.NoError(t, err)
	assert.Equal(t, workflowW, img.Bounds().Dx())

	// Three component rows dominate.
	want := int(columnTop*2 + 3*rowH + 2*rowGap)
	assert.Equal(t, want, img.Bounds().Dy())
}

func TestWorkflow_RejectsEmptyGraph(t *testing.T) {
	_, err := Workflow(&domain.WorkflowGraph{}, Options{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestCanvas_BoundsCoverContent(t *testing.T) {
	img, err := Canvas(testAsset(), Options{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, img.Bounds().Dx(), canvasMinW)
	assert.GreaterOrEqual(t, img.Bounds().Dy(), canvasMinH)
}

func TestCanvas_EmptyAssetRendersMinimumCanvas(t *testing.T) {
	img, err := Canvas(&domain.GeneratedAsset{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, canvasMinW, img.Bounds().Dx())
	assert.Equal(t, canvasMinH, img.Bounds().Dy())
}

func TestCanvas_WithBackgroundUnderlay(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	asset := testAsset()
	asset.Background = &domain.BackgroundImage{MediaType: "image/png", Payload: buf.Bytes()}

	_, err := Canvas(asset, Options{})
	require.NoError(t, err)
}

func TestCanvas_BadBackgroundPayload(t *testing.T) {
	asset := testAsset()
	asset.Background = &domain.BackgroundImage{MediaType: "image/png", Payload: []byte("not an image")}

	_, err := Canvas(asset, Options{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConversion))
}

func TestTruncate_RuneBoundaries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short ascii", "hello", 10, "hello"},
		{"long ascii", "a longer label here", 10, "a longe..."},
		{"exact length", "exact", 5, "exact"},
		{"multibyte kept whole", "ドキュメント解析パイプライン", 8, "ドキュメン..."},
		{"accents", "généralisation détaillée", 12, "généralis..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestExport_WritesPNGFile(t *testing.T) {
	img, err := Blueprint(testBlueprint(), Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "blueprint.png")
	require.NoError(t, Export(path, img))

	decoded, derr := decodeFile(t, path)
	require.NoError(t, derr)
	assert.Equal(t, blueprintW, decoded.Bounds().Dx())
}

func decodeFile(t *testing.T, path string) (image.Image, error) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
