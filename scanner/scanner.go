// Package scanner turns a de-obfuscated UHS body into logical segments.
// The cursor is explicit caller state: Position and Seek let the tree
// builder checkpoint and backtrack when a construct needs look-ahead.
package scanner

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/openuhs/uhslib/codec"
)

// SegmentKind distinguishes a hunk header from an ordinary line.
type SegmentKind int

const (
	// SegmentLine is a plain body line (or any line of an 88a file).
	SegmentLine SegmentKind = iota
	// SegmentHunkHeader is a "<count> <tag>" line opening a hunk in the
	// 9x revisions. Count includes the header line itself.
	SegmentHunkHeader
)

// Segment is a purely lexical unit: tag, length hint and text. It owns
// no cross-references.
type Segment struct {
	Kind   SegmentKind
	Tag    string // hunk tag, header segments only
	Count  int    // declared hunk line count, header segments only
	Raw    string // full line text, CP-437 transcoded to UTF-8
	Offset int    // byte offset of the line in the original file
	Line   int    // line index within the body
}

// MalformedSegmentError reports tag syntax the reader cannot interpret.
// It carries the byte offset for diagnostics; the format is not
// self-synchronizing enough to skip past it safely.
type MalformedSegmentError struct {
	Offset int
	Line   int
	Reason string
}

func (e *MalformedSegmentError) Error() string {
	return fmt.Sprintf("uhs: malformed segment at offset %d (line %d): %s", e.Offset, e.Line, e.Reason)
}

// Config bounds the reader. Zero values select the defaults.
type Config struct {
	MaxLineLength int // default 4096
	MaxHunkLines  int // default 1 << 20
}

func (c *Config) defaults() {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = 4096
	}
	if c.MaxHunkLines <= 0 {
		c.MaxHunkLines = 1 << 20
	}
}

// Scanner produces the segment sequence for one document.
type Scanner interface {
	// Next returns the next segment, io.EOF at end of document, or a
	// *MalformedSegmentError.
	Next() (Segment, error)
	// Position returns the cursor for a later Seek.
	Position() int
	// Seek restores a previously checkpointed cursor.
	Seek(pos int) error
	// Len is the total number of body lines.
	Len() int
	// ReadBinary copies a length-addressed slice out of the 95a binary
	// hunk.
	ReadBinary(off, length int) ([]byte, error)
}

type bodyLine struct {
	text   string
	offset int
}

type segScanner struct {
	doc   *codec.RawDocument
	cfg   Config
	lines []bodyLine
	pos   int
}

// New splits the document body into lines up front; the body is fully
// buffered already, so there is no I/O past this point.
func New(doc *codec.RawDocument, cfg Config) Scanner {
	cfg.defaults()
	s := &segScanner{doc: doc, cfg: cfg}
	body := doc.Body
	off := 0
	for off < len(body) {
		rel := bytes.IndexByte(body[off:], '\n')
		end := len(body)
		next := len(body)
		if rel >= 0 {
			end = off + rel
			next = end + 1
		}
		text := body[off:end]
		if len(text) > 0 && text[len(text)-1] == '\r' {
			text = text[:len(text)-1]
		}
		s.lines = append(s.lines, bodyLine{text: decodeText(text), offset: doc.BodyOffset + off})
		off = next
	}
	return s
}

func (s *segScanner) Position() int { return s.pos }
func (s *segScanner) Len() int      { return len(s.lines) }

func (s *segScanner) Seek(pos int) error {
	if pos < 0 || pos > len(s.lines) {
		return fmt.Errorf("uhs: seek out of range: %d", pos)
	}
	s.pos = pos
	return nil
}

func (s *segScanner) Next() (Segment, error) {
	if s.pos >= len(s.lines) {
		return Segment{}, io.EOF
	}
	l := s.lines[s.pos]
	seg := Segment{Kind: SegmentLine, Raw: l.text, Offset: l.offset, Line: s.pos}
	if len(l.text) > s.cfg.MaxLineLength {
		return Segment{}, &MalformedSegmentError{Offset: l.offset, Line: s.pos, Reason: "line exceeds length limit"}
	}
	if s.doc.Revision != codec.Revision88a {
		if count, tag, ok := splitHeader(l.text); ok && tagKnown(s.doc.Revision, tag) {
			if count < 2 {
				return Segment{}, &MalformedSegmentError{Offset: l.offset, Line: s.pos, Reason: fmt.Sprintf("hunk %q declares %d lines", tag, count)}
			}
			if count > s.cfg.MaxHunkLines {
				return Segment{}, &MalformedSegmentError{Offset: l.offset, Line: s.pos, Reason: fmt.Sprintf("hunk %q exceeds line limit", tag)}
			}
			seg.Kind = SegmentHunkHeader
			seg.Tag = tag
			seg.Count = count
		}
	}
	s.pos++
	return seg, nil
}

func (s *segScanner) ReadBinary(off, length int) ([]byte, error) {
	if s.doc.Revision != codec.Revision95a {
		return nil, &MalformedSegmentError{Offset: off, Line: s.pos, Reason: "binary hunk reference outside a 95a document"}
	}
	if off < 0 || length < 0 || off+length > len(s.doc.Binary) {
		return nil, &MalformedSegmentError{
			Offset: s.doc.BinaryOffset + off,
			Line:   s.pos,
			Reason: fmt.Sprintf("binary region %d+%d out of range (%d bytes)", off, length, len(s.doc.Binary)),
		}
	}
	return append([]byte(nil), s.doc.Binary[off:off+length]...), nil
}

func splitHeader(text string) (count int, tag string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	return n, fields[1], true
}

// Hunk tags by revision. The hotspot and audio hunks need the binary
// region and exist only in 95a.
var textTags = map[string]bool{
	"subject":   true,
	"link":      true,
	"text":      true,
	"hint":      true,
	"nesthint":  true,
	"version":   true,
	"incentive": true,
	"info":      true,
	"credit":    true,
	"blank":     true,
}

var binaryTags = map[string]bool{
	"hyperpng": true,
	"gifa":     true,
	"sound":    true,
}

func tagKnown(rev codec.Revision, tag string) bool {
	if textTags[tag] {
		return true
	}
	return rev == codec.Revision95a && binaryTags[tag]
}

// DecodeText transcodes CP-437 payload bytes (the container predates
// Unicode) to UTF-8.
func DecodeText(b []byte) string { return decodeText(b) }

func decodeText(b []byte) string {
	out, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		// Every byte has a CP-437 mapping; keep the raw text if the
		// decoder disagrees.
		return string(b)
	}
	return string(out)
}
