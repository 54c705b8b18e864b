// Package resolver runs the second pass over a built tree: every raw
// reference is bound to its target node or marked dangling. The two
// passes exist because the format allows forward references; nothing
// can be bound until the whole document has been read.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/openuhs/uhslib/observability"
	"github.com/openuhs/uhslib/tree"
)

// ErrCycle reports references that loop among themselves. Reference
// edges are followed transitively, so a pair of links naming each other
// fails even though the tree itself is acyclic. A reference back to a
// structural ancestor is fine; only reference-to-reference loops are
// rejected.
var ErrCycle = errors.New("uhs: reference cycle")

type Config struct {
	Logger observability.Logger
}

type Resolver struct {
	logger observability.Logger
}

func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &Resolver{logger: cfg.Logger}
}

// Resolve binds references in arena order, which makes the output
// deterministic for a given input. A target that does not exist is a
// warning diagnostic, never an error: historical files commonly carry
// stale ids and the rest of the document is still useful. Already
// resolved references are left alone and dangling marks keep their
// diagnostics, so resolving twice yields the same document.
func (r *Resolver) Resolve(ctx context.Context, u *tree.Unresolved) (*tree.ResolvedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diags := append([]tree.Diagnostic(nil), u.Diags...)
	dangling := 0
	for _, n := range u.Nodes {
		for _, ref := range n.References() {
			if ref.Target != nil {
				continue
			}
			if ref.Dangling {
				// marked by an earlier resolve; the diagnostic must
				// still appear in this document
				diags = append(diags, danglingDiag(n, ref))
				dangling++
				continue
			}
			target := lookup(u, ref)
			if target == nil {
				ref.Dangling = true
				dangling++
				d := danglingDiag(n, ref)
				diags = append(diags, d)
				r.logger.Warn(d.Message, observability.NodeID(n.ID), observability.Offset(n.Offset))
				continue
			}
			ref.Target = target
		}
	}
	if err := checkCycles(u); err != nil {
		return nil, err
	}
	r.logger.Debug("references resolved",
		observability.Int(observability.MetricNodeCount, len(u.Nodes)),
		observability.Int(observability.MetricDanglingCount, dangling))
	return tree.NewResolvedDocument(u, diags), nil
}

// lookup finds a reference target. Primary ids index the arena
// directly; some writers reuse shared-image ids in the primary
// namespace, so an out-of-range primary id falls back to the extra-id
// registry before being declared dangling.
func lookup(u *tree.Unresolved, ref *tree.Reference) *tree.Node {
	switch ref.Space {
	case tree.RefPrimary:
		if ref.ID >= 0 && ref.ID < len(u.Nodes) {
			return u.Nodes[ref.ID]
		}
		return u.Extra[tree.ExtraID{Kind: ref.ExtraKind, ID: ref.ID}]
	case tree.RefExtra:
		return u.Extra[tree.ExtraID{Kind: ref.ExtraKind, ID: ref.ID}]
	}
	return nil
}

const (
	cycleWhite = iota
	cycleGray
	cycleBlack
)

// checkCycles walks the graph whose edges are resolved references.
func checkCycles(u *tree.Unresolved) error {
	state := make([]byte, len(u.Nodes))
	var visit func(n *tree.Node) error
	visit = func(n *tree.Node) error {
		switch state[n.ID] {
		case cycleGray:
			return fmt.Errorf("%w through node %d", ErrCycle, n.ID)
		case cycleBlack:
			return nil
		}
		state[n.ID] = cycleGray
		for _, ref := range n.References() {
			if ref.Target == nil {
				continue
			}
			if err := visit(ref.Target); err != nil {
				return err
			}
		}
		state[n.ID] = cycleBlack
		return nil
	}
	for _, n := range u.Nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

func danglingDiag(n *tree.Node, ref *tree.Reference) tree.Diagnostic {
	return tree.Diagnostic{
		Severity: tree.SeverityWarning,
		Offset:   n.Offset,
		NodeID:   n.ID,
		Message:  fmt.Sprintf("dangling reference to %s", refName(ref)),
	}
}

func refName(ref *tree.Reference) string {
	if ref.Space == tree.RefExtra {
		return fmt.Sprintf("%v #%d", ref.ExtraKind, ref.ID)
	}
	return fmt.Sprintf("node #%d", ref.ID)
}
