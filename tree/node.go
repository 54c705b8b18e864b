// Package tree defines the node hierarchy produced by decoding a UHS
// hint file: typed node variants, primary and secondary identifiers,
// and the recorded cross-references that the resolver wires up after
// the whole document has been scanned.
package tree

// NodeKind identifies the closed set of node variants. Adding a kind
// means adding a constant and a payload type, nothing else.
type NodeKind int

const (
	KindText NodeKind = iota
	KindLink
	KindHotSpotImage
	KindVersionGate
	KindCredit
	KindSubDocument
)

func (k NodeKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLink:
		return "link"
	case KindHotSpotImage:
		return "hotspot-image"
	case KindVersionGate:
		return "version-gate"
	case KindCredit:
		return "credit"
	case KindSubDocument:
		return "sub-document"
	default:
		return "unknown"
	}
}

// ExtraIDKind scopes secondary identifiers. A node addressed through an
// extra id lives in a namespace independent of its tree position.
type ExtraIDKind int

const (
	// ExtraHotSpotImage names the shared background image of a hotspot
	// node, so several hotspot nodes can point at one image without
	// owning it twice.
	ExtraHotSpotImage ExtraIDKind = iota
)

func (k ExtraIDKind) String() string {
	switch k {
	case ExtraHotSpotImage:
		return "hotspot-image"
	default:
		return "unknown"
	}
}

// ExtraID is a secondary identifier: a kind tag plus an integer id.
type ExtraID struct {
	Kind ExtraIDKind
	ID   int
}

// RefSpace selects the namespace a recorded reference is interpreted in.
type RefSpace int

const (
	RefPrimary RefSpace = iota
	RefExtra
)

// Reference is a recorded (kind, id) cross-reference. The builder only
// records the pair; Target and Dangling stay zero until the resolver
// runs over the finished tree. References never own their target.
type Reference struct {
	Space     RefSpace
	ExtraKind ExtraIDKind // meaningful when Space == RefExtra
	ID        int

	Target   *Node
	Dangling bool
}

// IsResolved reports whether the resolver has already visited this
// reference, either binding a target or marking it dangling.
func (r *Reference) IsResolved() bool { return r.Target != nil || r.Dangling }

// Region is one clickable rectangle of a hotspot node. Exactly one of
// Child and Ref is set: Child points at a node the hotspot owns through
// its Children list, Ref records a target elsewhere in the document.
type Region struct {
	X1, Y1, X2, Y2 int
	Child          *Node
	Ref            *Reference
}

// Payload carries the kind-specific content of a node.
type Payload interface{ payload() }

type TextPayload struct {
	Body string
	// Blob holds the raw bytes for binary-backed text and audio hunks.
	Blob []byte
}

type LinkPayload struct {
	Target *Reference
}

type HotSpotPayload struct {
	Image  []byte
	Width  int // 0 when the image could not be probed
	Height int
	Regions []Region
}

type VersionGatePayload struct {
	Required string
}

type CreditPayload struct {
	Body string
}

type SubDocumentPayload struct{}

func (*TextPayload) payload()        {}
func (*LinkPayload) payload()        {}
func (*HotSpotPayload) payload()     {}
func (*VersionGatePayload) payload() {}
func (*CreditPayload) payload()      {}
func (*SubDocumentPayload) payload() {}

// Node is the tree unit. Children order is document order; it is the
// reading order a viewer presents. ID is assigned monotonically at
// construction and unique within a document.
type Node struct {
	ID       int
	Kind     NodeKind
	Title    string
	Payload  Payload
	Children []*Node
	ExtraIDs []ExtraID
	Offset   int // byte offset of the node's first segment in the file
}

// AddChild appends c preserving document order.
func (n *Node) AddChild(c *Node) { n.Children = append(n.Children, c) }

// Walk visits n and every descendant in document order. Returning false
// from fn stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// References returns the recorded cross-references owned by n.
func (n *Node) References() []*Reference {
	switch p := n.Payload.(type) {
	case *LinkPayload:
		if p.Target != nil {
			return []*Reference{p.Target}
		}
	case *HotSpotPayload:
		var refs []*Reference
		for i := range p.Regions {
			if p.Regions[i].Ref != nil {
				refs = append(refs, p.Regions[i].Ref)
			}
		}
		return refs
	}
	return nil
}
