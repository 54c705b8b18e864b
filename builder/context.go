package builder

import (
	"fmt"

	"github.com/openuhs/uhslib/tree"
)

// ParseContext is the mutable state threaded through one Build call:
// the primary-id allocator, the open-node stack modeling nesting, and
// the extra-id registry. It lives exactly as long as the parse and is
// never shared between documents, so concurrent parses cannot
// interfere.
type ParseContext struct {
	maxDepth int
	nodes    []*tree.Node
	stack    []*tree.Node
	extra    map[tree.ExtraID]*tree.Node
}

func NewParseContext(maxDepth int) *ParseContext {
	return &ParseContext{
		maxDepth: maxDepth,
		extra:    make(map[tree.ExtraID]*tree.Node),
	}
}

// AllocatePrimaryID hands out ids monotonically; the n-th node created
// during a build gets id n-1, with no gaps or repeats.
func (c *ParseContext) AllocatePrimaryID() int { return len(c.nodes) }

// PushOpenNode creates a node of the given kind and opens a stack frame
// for it. The node joins the arena immediately so the arena index is
// the primary id.
func (c *ParseContext) PushOpenNode(kind tree.NodeKind, title string, offset int) (*tree.Node, error) {
	if len(c.stack) >= c.maxDepth {
		return nil, fmt.Errorf("%w: %d frames", ErrDepthExceeded, len(c.stack))
	}
	n := &tree.Node{
		ID:     c.AllocatePrimaryID(),
		Kind:   kind,
		Title:  title,
		Offset: offset,
	}
	c.nodes = append(c.nodes, n)
	c.stack = append(c.stack, n)
	return n, nil
}

// PopOpenNode closes the top frame and attaches the finished node as a
// child of the new stack top, preserving document order.
func (c *ParseContext) PopOpenNode() (*tree.Node, error) {
	if len(c.stack) == 0 {
		return nil, fmt.Errorf("%w: close without open", ErrUnbalancedStructure)
	}
	n := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	if len(c.stack) > 0 {
		c.stack[len(c.stack)-1].AddChild(n)
	}
	return n, nil
}

// OpenNode returns the current stack top.
func (c *ParseContext) OpenNode() *tree.Node {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *ParseContext) Depth() int { return len(c.stack) }

// RegisterExtraID binds a secondary identifier to a node. A duplicate
// (kind, id) pair is a parse error, never a silent overwrite.
func (c *ParseContext) RegisterExtraID(kind tree.ExtraIDKind, id int, n *tree.Node) error {
	key := tree.ExtraID{Kind: kind, ID: id}
	if prev, ok := c.extra[key]; ok {
		return fmt.Errorf("%w: %s #%d already bound to node %d", ErrDuplicateExtraID, kind, id, prev.ID)
	}
	c.extra[key] = n
	n.ExtraIDs = append(n.ExtraIDs, key)
	return nil
}

// Nodes returns the arena in construction order.
func (c *ParseContext) Nodes() []*tree.Node { return c.nodes }

// Extra returns the extra-id registry.
func (c *ParseContext) Extra() map[tree.ExtraID]*tree.Node { return c.extra }
