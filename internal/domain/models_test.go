package domain

import "testing"

func TestMergeNodes_PreservesExistingPositions(t *testing.T) {
	asset := &GeneratedAsset{
		Nodes: []DiagramNode{
			{ID: "a", Title: "Old A", Position: Point{X: 10, Y: 20}},
			{ID: "b", Title: "Old B", Position: Point{X: 30, Y: 40}},
		},
	}

	asset.MergeNodes([]DiagramNode{
		{ID: "a", Title: "New A", Text: "refined", Position: Point{X: 999, Y: 999}},
		{ID: "c", Title: "New C", Position: Point{X: 5, Y: 6}},
	})

	if len(asset.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes after merge, got %d", len(asset.Nodes))
	}

	a := asset.Node("a")
	if a == nil {
		t.Fatal("Node a missing after merge")
	}
	if a.Position != (Point{X: 10, Y: 20}) {
		t.Errorf("Pre-existing node position not preserved: got %+v", a.Position)
	}
	if a.Title != "New A" || a.Text != "refined" {
		t.Errorf("Incoming content not applied: got title=%q text=%q", a.Title, a.Text)
	}

	c := asset.Node("c")
	if c == nil {
		t.Fatal("Node c missing after merge")
	}
	if c.Position != (Point{X: 5, Y: 6}) {
		t.Errorf("New node should adopt incoming position, got %+v", c.Position)
	}

	if asset.Node("b") != nil {
		t.Error("Node b should be dropped: not in incoming set")
	}
}

func TestMergeNodes_GridDefaultsForMissingPositions(t *testing.T) {
	asset := &GeneratedAsset{}
	asset.MergeNodes([]DiagramNode{
		{ID: "n1"},
		{ID: "n2"},
	})

	p1 := asset.Node("n1").Position
	p2 := asset.Node("n2").Position
	if p1 == (Point{}) || p2 == (Point{}) {
		t.Error("Nodes without positions should get grid defaults")
	}
	if p1 == p2 {
		t.Error("Grid defaults must be distinct per node")
	}
}

func TestMergeNodes_DropsOrphanedConnections(t *testing.T) {
	asset := &GeneratedAsset{
		Nodes: []DiagramNode{{ID: "a"}, {ID: "b"}},
		Connections: []DiagramConnection{
			{ID: "c1", SourceNodeID: "a", Target: Point{X: 1, Y: 1}},
			{ID: "c2", SourceNodeID: "b", Target: Point{X: 2, Y: 2}},
		},
	}

	asset.MergeNodes([]DiagramNode{{ID: "a", Position: Point{X: 1, Y: 1}}})

	if len(asset.Connections) != 1 {
		t.Fatalf("Expected 1 connection after merge, got %d", len(asset.Connections))
	}
	if asset.Connections[0].ID != "c1" {
		t.Errorf("Wrong connection kept: %s", asset.Connections[0].ID)
	}
}

func TestRemoveNode_DropsConnections(t *testing.T) {
	asset := &GeneratedAsset{
		Nodes: []DiagramNode{{ID: "a"}, {ID: "b"}},
		Connections: []DiagramConnection{
			{ID: "c1", SourceNodeID: "a"},
			{ID: "c2", SourceNodeID: "b"},
		},
	}

	if !asset.RemoveNode("a") {
		t.Fatal("RemoveNode returned false for existing node")
	}
	if asset.RemoveNode("a") {
		t.Error("RemoveNode should return false for missing node")
	}
	if len(asset.Nodes) != 1 || asset.Nodes[0].ID != "b" {
		t.Errorf("Unexpected nodes after removal: %+v", asset.Nodes)
	}
	if len(asset.Connections) != 1 || asset.Connections[0].ID != "c2" {
		t.Errorf("Connections sourced from removed node must be dropped: %+v", asset.Connections)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	asset := &GeneratedAsset{
		Nodes:      []DiagramNode{{ID: "a", Position: Point{X: 1, Y: 1}}},
		Background: &BackgroundImage{MediaType: "image/png", Payload: []byte{1, 2, 3}},
	}

	cp := asset.Clone()
	cp.Nodes[0].Position = Point{X: 9, Y: 9}
	cp.Background.Payload[0] = 42

	if asset.Nodes[0].Position != (Point{X: 1, Y: 1}) {
		t.Error("Clone shares node storage with original")
	}
	if asset.Background.Payload[0] != 1 {
		t.Error("Clone shares background payload with original")
	}
}

func TestBlueprintComplete(t *testing.T) {
	bp := &Blueprint{}
	if bp.Complete() {
		t.Error("Empty blueprint should not be complete")
	}
	for _, slot := range BlueprintSlots {
		bp.Boxes = append(bp.Boxes, BlueprintBox{Slot: slot, Heading: string(slot)})
	}
	if !bp.Complete() {
		t.Error("Blueprint with all five slots should be complete")
	}
}

func TestWorkflowGraphValidate(t *testing.T) {
	g := &WorkflowGraph{
		Theories:   []WorkflowItem{{ID: "t1", Label: "Theory"}},
		Components: []WorkflowItem{{ID: "c1", Label: "Component"}},
		Links: []WorkflowLink{
			{TheoryID: "t1", ComponentID: "c1"},
			{TheoryID: "t1", ComponentID: "missing"},
			{TheoryID: "missing", ComponentID: "c1"},
		},
	}

	if !g.Validate() {
		t.Fatal("Graph with valid items should validate")
	}
	if len(g.Links) != 1 {
		t.Errorf("Expected dangling links dropped, got %d links", len(g.Links))
	}

	empty := &WorkflowGraph{}
	if empty.Validate() {
		t.Error("Empty graph should not validate")
	}
}
