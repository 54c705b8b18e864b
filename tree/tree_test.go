package tree

import "testing"

func TestWalkOrder(t *testing.T) {
	root := &Node{ID: 0, Kind: KindSubDocument, Payload: &SubDocumentPayload{}}
	a := &Node{ID: 1, Kind: KindText, Payload: &TextPayload{Body: "a"}}
	b := &Node{ID: 2, Kind: KindSubDocument, Payload: &SubDocumentPayload{}}
	c := &Node{ID: 3, Kind: KindText, Payload: &TextPayload{Body: "c"}}
	root.AddChild(a)
	root.AddChild(b)
	b.AddChild(c)

	var seen []int
	root.Walk(func(n *Node) bool {
		seen = append(seen, n.ID)
		return true
	})
	want := []int{0, 1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("visited %d nodes, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walk order %v, want %v", seen, want)
		}
	}
}

func TestWalkStops(t *testing.T) {
	root := &Node{Kind: KindSubDocument}
	root.AddChild(&Node{ID: 1})
	root.AddChild(&Node{ID: 2})
	count := 0
	root.Walk(func(n *Node) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("expected walk to stop after 2 visits, got %d", count)
	}
}

func TestReferencesCollection(t *testing.T) {
	link := &Node{Kind: KindLink, Payload: &LinkPayload{Target: &Reference{Space: RefPrimary, ID: 4}}}
	if refs := link.References(); len(refs) != 1 || refs[0].ID != 4 {
		t.Fatalf("link references = %v", refs)
	}

	hot := &Node{Kind: KindHotSpotImage, Payload: &HotSpotPayload{
		Regions: []Region{
			{X1: 0, Y1: 0, X2: 10, Y2: 10, Ref: &Reference{Space: RefPrimary, ID: 1}},
			{X1: 10, Y1: 0, X2: 20, Y2: 10, Child: &Node{ID: 9}},
			{X1: 0, Y1: 10, X2: 10, Y2: 20, Ref: &Reference{Space: RefExtra, ExtraKind: ExtraHotSpotImage, ID: 2}},
		},
	}}
	refs := hot.References()
	if len(refs) != 2 {
		t.Fatalf("expected 2 region references, got %d", len(refs))
	}

	text := &Node{Kind: KindText, Payload: &TextPayload{Body: "no refs"}}
	if refs := text.References(); refs != nil {
		t.Fatalf("text node should have no references, got %v", refs)
	}
}

func TestFindByExtraID(t *testing.T) {
	img := &Node{ID: 3, Kind: KindHotSpotImage, ExtraIDs: []ExtraID{{Kind: ExtraHotSpotImage, ID: 12}}}
	u := &Unresolved{
		Root:  img,
		Nodes: []*Node{img},
		Extra: map[ExtraID]*Node{{Kind: ExtraHotSpotImage, ID: 12}: img},
	}
	doc := NewResolvedDocument(u, nil)
	got, ok := doc.FindByExtraID(ExtraHotSpotImage, 12)
	if !ok || got != img {
		t.Fatalf("FindByExtraID failed: %v %v", got, ok)
	}
	if _, ok := doc.FindByExtraID(ExtraHotSpotImage, 13); ok {
		t.Fatalf("unexpected hit for unregistered extra id")
	}
}
