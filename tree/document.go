package tree

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "info"
}

// Diagnostic records a recoverable irregularity: a dangling reference,
// an unreadable hotspot image, a segment the builder accepted with
// reservations. Fatal conditions are errors, never diagnostics.
type Diagnostic struct {
	Severity Severity
	Offset   int // byte offset in the source file, -1 when unknown
	NodeID   int // primary id of the node concerned, -1 when unknown
	Message  string
}

// Unresolved is the builder's output: the complete node hierarchy with
// every cross-reference still recorded as a raw (kind, id) pair. Nodes
// is the arena, indexed by primary id in construction order.
type Unresolved struct {
	Root     *Node
	Nodes    []*Node
	Extra    map[ExtraID]*Node
	Revision string
	Title    string
	Diags    []Diagnostic
}

// ResolvedDocument is the final output handed to viewers: root access,
// ordered child iteration (via Node.Children), extra-id lookup and the
// accumulated diagnostics.
type ResolvedDocument struct {
	root     *Node
	nodes    []*Node
	extra    map[ExtraID]*Node
	revision string
	title    string
	diags    []Diagnostic
}

// NewResolvedDocument is called by the resolver once every reference
// has been visited.
func NewResolvedDocument(u *Unresolved, diags []Diagnostic) *ResolvedDocument {
	return &ResolvedDocument{
		root:     u.Root,
		nodes:    u.Nodes,
		extra:    u.Extra,
		revision: u.Revision,
		title:    u.Title,
		diags:    diags,
	}
}

func (d *ResolvedDocument) Root() *Node     { return d.root }
func (d *ResolvedDocument) Revision() string { return d.revision }
func (d *ResolvedDocument) Title() string   { return d.title }
func (d *ResolvedDocument) NodeCount() int  { return len(d.nodes) }

// NodeByID returns the node with the given primary id.
func (d *ResolvedDocument) NodeByID(id int) (*Node, bool) {
	if id < 0 || id >= len(d.nodes) {
		return nil, false
	}
	return d.nodes[id], true
}

// FindByExtraID resolves a secondary identifier, e.g. "hotspot image #3".
func (d *ResolvedDocument) FindByExtraID(kind ExtraIDKind, id int) (*Node, bool) {
	n, ok := d.extra[ExtraID{Kind: kind, ID: id}]
	return n, ok
}

// Diagnostics returns the recoverable irregularities collected during
// building and resolution, in the order they were recorded.
func (d *ResolvedDocument) Diagnostics() []Diagnostic { return d.diags }
