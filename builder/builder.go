// Package builder constructs the node hierarchy from segments. Nesting
// is modeled with an explicit open-node stack in ParseContext rather
// than call recursion, so pathological depth fails with a bounded-depth
// error instead of exhausting the call stack. Cross-references are
// recorded as raw (kind, id) pairs; the resolver wires them up after
// the whole document has been scanned, because UHS documents permit
// both backward and forward references.
package builder

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openuhs/uhslib/codec"
	"github.com/openuhs/uhslib/observability"
	"github.com/openuhs/uhslib/scanner"
	"github.com/openuhs/uhslib/tree"
)

// Config bounds tree construction. Zero values select the defaults.
type Config struct {
	MaxDepth int // open-node stack bound, default 64
	Scanner  scanner.Config
	Logger   observability.Logger
}

func (c *Config) defaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 64
	}
	if c.Logger == nil {
		c.Logger = observability.NopLogger{}
	}
}

type Builder struct {
	cfg Config
}

func New(cfg Config) *Builder {
	cfg.defaults()
	return &Builder{cfg: cfg}
}

type buildState struct {
	doc    *codec.RawDocument
	sc     scanner.Scanner
	pc     *ParseContext
	logger observability.Logger
	diags  []tree.Diagnostic
	frames []*frame
}

// frame mirrors one open node on the ParseContext stack plus the
// builder-side bookkeeping the node kind needs: where the hunk ends,
// hotspot region state, and text accumulation for hint bodies.
type frame struct {
	node    *tree.Node
	end     int // first line index past the hunk
	literal bool // hint bodies: nested-header syntax reads as plain text

	hotspot  *tree.HotSpotPayload
	pending  *pendingRegion
	sawImage bool

	nest *nestState
}

type nestState struct {
	cur       []string
	curOffset int
}

type pendingRegion struct {
	x1, y1, x2, y2 int
	offset         int
}

func (st *buildState) top() *frame {
	if len(st.frames) == 0 {
		return nil
	}
	return st.frames[len(st.frames)-1]
}

func (st *buildState) diag(sev tree.Severity, offset, nodeID int, msg string) {
	st.diags = append(st.diags, tree.Diagnostic{Severity: sev, Offset: offset, NodeID: nodeID, Message: msg})
	if sev == tree.SeverityWarning {
		st.logger.Warn(msg, observability.Offset(offset), observability.NodeID(nodeID))
	} else {
		st.logger.Debug(msg, observability.Offset(offset), observability.NodeID(nodeID))
	}
}

// Build runs recursive-descent construction over the segment sequence
// and returns the unresolved tree. References recorded inside nodes
// stay raw; a target that does not exist is not a build error.
func (b *Builder) Build(ctx context.Context, doc *codec.RawDocument) (*tree.Unresolved, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := &buildState{
		doc:    doc,
		sc:     scanner.New(doc, b.cfg.Scanner),
		pc:     NewParseContext(b.cfg.MaxDepth),
		logger: b.cfg.Logger,
	}
	root, err := st.pc.PushOpenNode(tree.KindSubDocument, doc.Title, 0)
	if err != nil {
		return nil, err
	}
	root.Payload = &tree.SubDocumentPayload{}

	if doc.Revision == codec.Revision88a {
		err = b.build88a(st)
	} else {
		err = b.buildHunks(ctx, st)
	}
	if err != nil {
		return nil, err
	}

	for len(st.frames) > 0 {
		if err := st.closeFrame(); err != nil {
			return nil, err
		}
	}
	if _, err := st.pc.PopOpenNode(); err != nil {
		return nil, err
	}
	if st.pc.Depth() != 0 {
		return nil, fmt.Errorf("%w: %d frames left open", ErrUnbalancedStructure, st.pc.Depth())
	}

	b.cfg.Logger.Debug("tree built",
		observability.Revision(doc.Revision.String()),
		observability.Int(observability.MetricNodeCount, len(st.pc.Nodes())),
		observability.Int(observability.MetricSegmentCount, st.sc.Len()))

	return &tree.Unresolved{
		Root:     root,
		Nodes:    st.pc.Nodes(),
		Extra:    st.pc.Extra(),
		Revision: doc.Revision.String(),
		Title:    doc.Title,
		Diags:    st.diags,
	}, nil
}

func (b *Builder) buildHunks(ctx context.Context, st *buildState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for len(st.frames) > 0 && st.sc.Position() >= st.top().end {
			if err := st.closeFrame(); err != nil {
				return err
			}
		}
		seg, err := st.sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		fr := st.top()
		if fr != nil && fr.literal {
			st.accumulate(fr, seg)
			continue
		}
		if seg.Kind == scanner.SegmentLine {
			switch {
			case fr != nil && fr.hotspot != nil:
				if err := b.hotspotLine(st, fr, seg); err != nil {
					return err
				}
			case fr != nil && fr.nest != nil:
				if err := st.accumulateFlush(fr, seg); err != nil {
					return err
				}
			case strings.TrimSpace(seg.Raw) == "":
				// stray blank line between hunks
			default:
				return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("expected hunk header, got %q", seg.Raw)}
			}
			continue
		}

		// A nested hunk interrupts any text being accumulated, so the
		// child order matches the document.
		if fr != nil && fr.nest != nil {
			if err := st.flushText(fr); err != nil {
				return err
			}
		}
		end := seg.Line + seg.Count
		parentEnd := st.sc.Len()
		if fr != nil {
			parentEnd = fr.end
		}
		if end > parentEnd {
			return fmt.Errorf("%w: hunk %q at offset %d declares %d lines past its enclosing hunk", ErrUnbalancedStructure, seg.Tag, seg.Offset, seg.Count)
		}
		if err := b.openHunk(st, seg, end); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) openHunk(st *buildState, seg scanner.Segment, end int) error {
	switch seg.Tag {
	case "subject":
		_, err := st.openContainer(tree.KindSubDocument, seg, end, &tree.SubDocumentPayload{}, nil)
		return err
	case "nesthint":
		_, err := st.openContainer(tree.KindSubDocument, seg, end, &tree.SubDocumentPayload{}, &nestState{})
		return err
	case "version", "incentive":
		required, err := st.bodyLine(seg)
		if err != nil {
			return err
		}
		n, err := st.pc.PushOpenNode(tree.KindVersionGate, "", seg.Offset)
		if err != nil {
			return err
		}
		n.Payload = &tree.VersionGatePayload{Required: required.Raw}
		st.frames = append(st.frames, &frame{node: n, end: end, nest: &nestState{}})
		return nil
	case "hint":
		return b.openHint(st, seg, end)
	case "link":
		return b.leafLink(st, seg)
	case "text", "info":
		return b.leafText(st, seg)
	case "blank":
		return b.leafBlank(st, seg)
	case "credit":
		return b.leafCredit(st, seg)
	case "sound":
		return b.leafSound(st, seg)
	case "hyperpng", "gifa":
		n, err := st.pc.PushOpenNode(tree.KindHotSpotImage, "", seg.Offset)
		if err != nil {
			return err
		}
		payload := &tree.HotSpotPayload{}
		n.Payload = payload
		st.frames = append(st.frames, &frame{node: n, end: end, hotspot: payload})
		return nil
	}
	return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("unhandled hunk tag %q", seg.Tag)}
}

// openContainer reads the hunk's title line and opens a stack frame.
func (st *buildState) openContainer(kind tree.NodeKind, seg scanner.Segment, end int, payload tree.Payload, nest *nestState) (*tree.Node, error) {
	title, err := st.bodyLine(seg)
	if err != nil {
		return nil, err
	}
	n, err := st.pc.PushOpenNode(kind, title.Raw, seg.Offset)
	if err != nil {
		return nil, err
	}
	n.Payload = payload
	st.frames = append(st.frames, &frame{node: n, end: end, nest: nest})
	return n, nil
}

// openHint opens a question frame whose body is literal hint text:
// header-shaped lines inside it are hint text, not structure.
func (b *Builder) openHint(st *buildState, seg scanner.Segment, end int) error {
	if _, err := st.openContainer(tree.KindSubDocument, seg, end, &tree.SubDocumentPayload{}, &nestState{}); err != nil {
		return err
	}
	st.top().literal = true
	return nil
}

func (st *buildState) closeFrame() error {
	fr := st.frames[len(st.frames)-1]
	if fr.pending != nil {
		return &scanner.MalformedSegmentError{Offset: fr.pending.offset, Reason: "hotspot region without a target"}
	}
	if fr.nest != nil {
		if err := st.flushText(fr); err != nil {
			return err
		}
	}
	st.frames = st.frames[:len(st.frames)-1]
	n, err := st.pc.PopOpenNode()
	if err != nil {
		return err
	}
	st.attachRegionChild(n)
	return nil
}

// attachRegionChild pairs a just-finished node with a hotspot region
// waiting for its target.
func (st *buildState) attachRegionChild(n *tree.Node) {
	fr := st.top()
	if fr == nil || fr.hotspot == nil || fr.pending == nil {
		return
	}
	p := fr.pending
	fr.pending = nil
	st.checkRegionBounds(fr, p.x1, p.y1, p.x2, p.y2, p.offset)
	fr.hotspot.Regions = append(fr.hotspot.Regions, tree.Region{X1: p.x1, Y1: p.y1, X2: p.x2, Y2: p.y2, Child: n})
}

func (st *buildState) accumulate(fr *frame, seg scanner.Segment) {
	if strings.TrimSpace(seg.Raw) == "-" {
		// separator; flushing cannot fail here because the frame is
		// already open one level above the accumulated text
		_ = st.flushText(fr)
		return
	}
	if len(fr.nest.cur) == 0 {
		fr.nest.curOffset = seg.Offset
	}
	fr.nest.cur = append(fr.nest.cur, seg.Raw)
}

func (st *buildState) accumulateFlush(fr *frame, seg scanner.Segment) error {
	if strings.TrimSpace(seg.Raw) == "-" {
		return st.flushText(fr)
	}
	st.accumulate(fr, seg)
	return nil
}

func (st *buildState) flushText(fr *frame) error {
	if fr.nest == nil || len(fr.nest.cur) == 0 {
		return nil
	}
	body := strings.Join(fr.nest.cur, "\n")
	offset := fr.nest.curOffset
	fr.nest.cur = nil
	_, err := st.leaf(tree.KindText, "", offset, &tree.TextPayload{Body: body})
	return err
}

// leaf creates a complete node in one push/pop so its primary id lands
// in document order.
func (st *buildState) leaf(kind tree.NodeKind, title string, offset int, payload tree.Payload) (*tree.Node, error) {
	n, err := st.pc.PushOpenNode(kind, title, offset)
	if err != nil {
		return nil, err
	}
	n.Payload = payload
	if _, err := st.pc.PopOpenNode(); err != nil {
		return nil, err
	}
	st.attachRegionChild(n)
	return n, nil
}

func (st *buildState) bodyLine(parent scanner.Segment) (scanner.Segment, error) {
	seg, err := st.sc.Next()
	if err == io.EOF {
		return scanner.Segment{}, fmt.Errorf("%w: hunk %q truncated at end of document", ErrUnbalancedStructure, parent.Tag)
	}
	if err != nil {
		return scanner.Segment{}, err
	}
	// A body line may look like a hunk header ("2 subject" as a title);
	// position decides, so only the raw text matters here.
	return seg, nil
}

func (b *Builder) leafLink(st *buildState, seg scanner.Segment) error {
	if seg.Count != 3 {
		return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("link hunk must span 3 lines, declares %d", seg.Count)}
	}
	title, err := st.bodyLine(seg)
	if err != nil {
		return err
	}
	target, err := st.bodyLine(seg)
	if err != nil {
		return err
	}
	fields := strings.Fields(target.Raw)
	if len(fields) != 2 || fields[0] != "target" {
		return &scanner.MalformedSegmentError{Offset: target.Offset, Line: target.Line, Reason: fmt.Sprintf("link target line %q", target.Raw)}
	}
	ref, err := parseRef(fields[1], target.Offset, target.Line)
	if err != nil {
		return err
	}
	_, err = st.leaf(tree.KindLink, title.Raw, seg.Offset, &tree.LinkPayload{Target: ref})
	return err
}

func (b *Builder) leafText(st *buildState, seg scanner.Segment) error {
	title, err := st.bodyLine(seg)
	if err != nil {
		return err
	}
	rem := seg.Count - 2
	lines := make([]scanner.Segment, 0, rem)
	for i := 0; i < rem; i++ {
		l, err := st.bodyLine(seg)
		if err != nil {
			return err
		}
		lines = append(lines, l)
	}
	payload := &tree.TextPayload{}
	if st.doc.Revision == codec.Revision95a && len(st.doc.Binary) > 0 && len(lines) == 1 {
		if off, length, ok := parseBinaryRef(lines[0].Raw); ok {
			blob, err := st.sc.ReadBinary(off, length)
			if err != nil {
				return err
			}
			payload.Blob = blob
			payload.Body = scanner.DecodeText(blob)
		}
	}
	if payload.Blob == nil {
		parts := make([]string, len(lines))
		for i, l := range lines {
			parts[i] = l.Raw
		}
		payload.Body = strings.Join(parts, "\n")
	}
	_, err = st.leaf(tree.KindText, title.Raw, seg.Offset, payload)
	return err
}

func (b *Builder) leafBlank(st *buildState, seg scanner.Segment) error {
	for i := 0; i < seg.Count-1; i++ {
		if _, err := st.bodyLine(seg); err != nil {
			return err
		}
	}
	_, err := st.leaf(tree.KindText, "", seg.Offset, &tree.TextPayload{})
	return err
}

func (b *Builder) leafCredit(st *buildState, seg scanner.Segment) error {
	parts := make([]string, 0, seg.Count-1)
	for i := 0; i < seg.Count-1; i++ {
		l, err := st.bodyLine(seg)
		if err != nil {
			return err
		}
		parts = append(parts, l.Raw)
	}
	_, err := st.leaf(tree.KindCredit, "", seg.Offset, &tree.CreditPayload{Body: strings.Join(parts, "\n")})
	return err
}

func (b *Builder) leafSound(st *buildState, seg scanner.Segment) error {
	title, err := st.bodyLine(seg)
	if err != nil {
		return err
	}
	ref, err := st.bodyLine(seg)
	if err != nil {
		return err
	}
	off, length, ok := parseBinaryRef(ref.Raw)
	if !ok {
		return &scanner.MalformedSegmentError{Offset: ref.Offset, Line: ref.Line, Reason: fmt.Sprintf("sound payload line %q", ref.Raw)}
	}
	blob, err := st.sc.ReadBinary(off, length)
	if err != nil {
		return err
	}
	_, err = st.leaf(tree.KindText, title.Raw, seg.Offset, &tree.TextPayload{Blob: blob})
	return err
}

func (b *Builder) hotspotLine(st *buildState, fr *frame, seg scanner.Segment) error {
	fields := strings.Fields(seg.Raw)
	if len(fields) == 0 {
		return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: "blank line inside a hotspot hunk"}
	}
	if !fr.sawImage {
		if len(fields) != 4 || fields[0] != "image" {
			return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("hotspot hunk must open with an image line, got %q", seg.Raw)}
		}
		off, err1 := strconv.Atoi(fields[1])
		length, err2 := strconv.Atoi(fields[2])
		extraID, err3 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("hotspot image line %q", seg.Raw)}
		}
		blob, err := st.sc.ReadBinary(off, length)
		if err != nil {
			return err
		}
		fr.hotspot.Image = blob
		if w, h, ok := probeImage(blob); ok {
			fr.hotspot.Width, fr.hotspot.Height = w, h
		} else {
			st.diag(tree.SeverityWarning, seg.Offset, fr.node.ID, "hotspot image is not a decodable image")
		}
		if err := st.pc.RegisterExtraID(tree.ExtraHotSpotImage, extraID, fr.node); err != nil {
			return err
		}
		fr.sawImage = true
		return nil
	}
	switch fields[0] {
	case "region":
		if len(fields) != 5 {
			return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("region line %q", seg.Raw)}
		}
		coords, err := parseCoords(fields[1:], seg)
		if err != nil {
			return err
		}
		fr.pending = &pendingRegion{x1: coords[0], y1: coords[1], x2: coords[2], y2: coords[3], offset: seg.Offset}
		// The region's target is the hunk that follows; look ahead to
		// confirm, then back up so the main loop builds it.
		mark := st.sc.Position()
		next, err := st.sc.Next()
		if err == io.EOF || (err == nil && next.Kind != scanner.SegmentHunkHeader) {
			return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: "region must be followed by a target hunk"}
		}
		if err != nil {
			return err
		}
		return st.sc.Seek(mark)
	case "regionlink":
		if len(fields) != 6 {
			return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("regionlink line %q", seg.Raw)}
		}
		coords, err := parseCoords(fields[1:5], seg)
		if err != nil {
			return err
		}
		ref, err := parseRef(fields[5], seg.Offset, seg.Line)
		if err != nil {
			return err
		}
		st.checkRegionBounds(fr, coords[0], coords[1], coords[2], coords[3], seg.Offset)
		fr.hotspot.Regions = append(fr.hotspot.Regions, tree.Region{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3], Ref: ref})
		return nil
	}
	return &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("unrecognized hotspot entry %q", seg.Raw)}
}

func (st *buildState) checkRegionBounds(fr *frame, x1, y1, x2, y2, offset int) {
	if x2 <= x1 || y2 <= y1 {
		st.diag(tree.SeverityWarning, offset, fr.node.ID, fmt.Sprintf("degenerate hotspot region %d,%d-%d,%d", x1, y1, x2, y2))
		return
	}
	if fr.hotspot.Width > 0 && (x2 > fr.hotspot.Width || y2 > fr.hotspot.Height) {
		st.diag(tree.SeverityWarning, offset, fr.node.ID, fmt.Sprintf("hotspot region %d,%d-%d,%d exceeds image bounds %dx%d", x1, y1, x2, y2, fr.hotspot.Width, fr.hotspot.Height))
	}
}

func parseCoords(fields []string, seg scanner.Segment) ([4]int, error) {
	var out [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return out, &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("region coordinate %q", f)}
		}
		out[i] = v
	}
	return out, nil
}

// parseRef reads a reference token: "7" or "id:7" name a primary id,
// "image:3" names a shared hotspot image by extra id.
func parseRef(tok string, offset, line int) (*tree.Reference, error) {
	space := tree.RefPrimary
	kind := tree.ExtraHotSpotImage
	num := tok
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		switch tok[:i] {
		case "id":
		case "image":
			space = tree.RefExtra
		default:
			return nil, &scanner.MalformedSegmentError{Offset: offset, Line: line, Reason: fmt.Sprintf("reference namespace %q", tok[:i])}
		}
		num = tok[i+1:]
	}
	id, err := strconv.Atoi(num)
	if err != nil {
		return nil, &scanner.MalformedSegmentError{Offset: offset, Line: line, Reason: fmt.Sprintf("reference id %q", num)}
	}
	return &tree.Reference{Space: space, ExtraKind: kind, ID: id}, nil
}

func parseBinaryRef(text string) (off, length int, ok bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, false
	}
	o, err1 := strconv.Atoi(fields[0])
	l, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || o < 0 || l < 0 {
		return 0, 0, false
	}
	return o, l, true
}
