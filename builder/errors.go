package builder

import "errors"

var (
	// ErrUnbalancedStructure indicates hunk counts that overrun their
	// enclosing hunk or the end of the document, or a close without a
	// matching open. The document is structurally invalid.
	ErrUnbalancedStructure = errors.New("uhs: unbalanced hunk structure")

	// ErrDepthExceeded indicates nesting beyond the configured bound.
	// The limit exists so pathological files fail cleanly instead of
	// exhausting the call stack.
	ErrDepthExceeded = errors.New("uhs: nesting depth exceeded")

	// ErrDuplicateExtraID indicates a (kind, id) pair registered twice.
	// Overwriting silently would make two unrelated nodes share state,
	// so this is always a parse error.
	ErrDuplicateExtraID = errors.New("uhs: duplicate extra id registration")
)
