package builder

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openuhs/uhslib/scanner"
	"github.com/openuhs/uhslib/tree"
)

// The original line-table layout has no hunk syntax. The file is four
// header lines, then a subject table, a question table and the hint
// region, all glued together by 1-based line pointers: each subject row
// names the line of its first question, each question row the line of
// its first hint, and the header's two markers bound the hint region.
// A row is a pair of lines, label then pointer.

type legacyRow struct {
	label  scanner.Segment
	target int
}

func (b *Builder) build88a(st *buildState) error {
	var lines []scanner.Segment
	for {
		seg, err := st.sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		lines = append(lines, seg)
	}
	if len(lines) < 6 {
		return fmt.Errorf("%w: line table too short", ErrUnbalancedStructure)
	}

	firstHint, err := legacyPointer(lines[2])
	if err != nil {
		return err
	}
	lastHint, err := legacyPointer(lines[3])
	if err != nil {
		return err
	}
	firstQuestion, err := legacyPointer(lines[5])
	if err != nil {
		return err
	}
	if firstQuestion < 7 || firstQuestion > firstHint || lastHint > len(lines) {
		return fmt.Errorf("%w: line table pointers %d/%d/%d out of order", ErrUnbalancedStructure, firstQuestion, firstHint, lastHint)
	}

	subjects, err := legacyRows(lines, 5, firstQuestion)
	if err != nil {
		return err
	}
	questions, err := legacyRows(lines, firstQuestion, firstHint)
	if err != nil {
		return err
	}

	// Pointer targets become slice bounds: a subject's questions run to
	// the next subject's target, the last subject's to the hint region.
	for i, s := range subjects {
		qFrom, err := legacyIndex(s, firstQuestion, len(questions))
		if err != nil {
			return err
		}
		qTo := len(questions)
		if i+1 < len(subjects) {
			if qTo, err = legacyIndex(subjects[i+1], firstQuestion, len(questions)); err != nil {
				return err
			}
		}
		if qTo < qFrom {
			return fmt.Errorf("%w: subject pointers not monotonic at line %d", ErrUnbalancedStructure, s.label.Line+1)
		}
		sn, err := st.pc.PushOpenNode(tree.KindSubDocument, s.label.Raw, s.label.Offset)
		if err != nil {
			return err
		}
		sn.Payload = &tree.SubDocumentPayload{}

		for q := qFrom; q < qTo; q++ {
			hFrom := questions[q].target
			hTo := lastHint + 1
			if q+1 < len(questions) {
				hTo = questions[q+1].target
			}
			if hFrom < firstHint || hTo < hFrom || hTo > lastHint+1 {
				return fmt.Errorf("%w: question pointers not monotonic at line %d", ErrUnbalancedStructure, questions[q].label.Line+1)
			}
			qn, err := st.pc.PushOpenNode(tree.KindSubDocument, questions[q].label.Raw, questions[q].label.Offset)
			if err != nil {
				return err
			}
			qn.Payload = &tree.SubDocumentPayload{}
			for h := hFrom; h < hTo; h++ {
				hl := lines[h-1]
				if _, err := st.leaf(tree.KindText, "", hl.Offset, &tree.TextPayload{Body: hl.Raw}); err != nil {
					return err
				}
			}
			if _, err := st.pc.PopOpenNode(); err != nil {
				return err
			}
		}
		if _, err := st.pc.PopOpenNode(); err != nil {
			return err
		}
	}
	return nil
}

// legacyRows reads label/pointer pairs between two 1-based line bounds.
func legacyRows(lines []scanner.Segment, from, to int) ([]legacyRow, error) {
	if (to-from)%2 != 0 {
		return nil, fmt.Errorf("%w: truncated line-table row before line %d", ErrUnbalancedStructure, to)
	}
	rows := make([]legacyRow, 0, (to-from)/2)
	for ln := from; ln < to; ln += 2 {
		target, err := legacyPointer(lines[ln])
		if err != nil {
			return nil, err
		}
		rows = append(rows, legacyRow{label: lines[ln-1], target: target})
	}
	return rows, nil
}

// legacyIndex converts a subject's line pointer to a question index.
func legacyIndex(r legacyRow, firstQuestion, count int) (int, error) {
	if r.target < firstQuestion || (r.target-firstQuestion)%2 != 0 {
		return 0, &scanner.MalformedSegmentError{Offset: r.label.Offset, Line: r.label.Line, Reason: fmt.Sprintf("subject pointer %d does not name a question line", r.target)}
	}
	idx := (r.target - firstQuestion) / 2
	if idx > count {
		return 0, fmt.Errorf("%w: subject pointer %d past the question table", ErrUnbalancedStructure, r.target)
	}
	return idx, nil
}

func legacyPointer(seg scanner.Segment) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(seg.Raw))
	if err != nil {
		return 0, &scanner.MalformedSegmentError{Offset: seg.Offset, Line: seg.Line, Reason: fmt.Sprintf("line pointer %q", seg.Raw)}
	}
	return v, nil
}
