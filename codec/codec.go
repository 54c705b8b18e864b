// Package codec reverses the byte-level obfuscation of UHS containers
// and validates their embedded checksums. Decode is a pure function
// over the input buffer: the raw bytes are treated as read-only and the
// recovered plaintext lives in a fresh buffer.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrCorrupt reports a container that identifies itself correctly
	// but fails structural validation: bad checksum, truncated header,
	// hint-range markers out of bounds.
	ErrCorrupt = errors.New("uhs: corrupt container")

	// ErrUnsupportedVersion reports header magic the decoder does not
	// recognize as one of the three historical revisions.
	ErrUnsupportedVersion = errors.New("uhs: unsupported container version")
)

// Revision tags the detected format variant.
type Revision int

const (
	// Revision88a is the original line-table format: no checksum, hint
	// lines scrambled with a fixed character table.
	Revision88a Revision = iota
	// Revision91a introduces the hunk section behind an 88a stub, a
	// title-keyed obfuscation and a trailing CRC.
	Revision91a
	// Revision95a adds a raw binary hunk behind a 0x1A sentinel for
	// images, sounds and hotspot overlays.
	Revision95a
)

func (r Revision) String() string {
	switch r {
	case Revision88a:
		return "88a"
	case Revision91a:
		return "91a"
	case Revision95a:
		return "95a"
	default:
		return "unknown"
	}
}

const (
	magicLine    = "UHS"
	endOf88a     = "** END OF 88A FORMAT **"
	binarySentinel = 0x1A
)

// RawDocument is the codec's output: the de-obfuscated text section,
// the detected revision and, for 95a, the raw binary hunk. Offsets are
// into the original file so diagnostics can name real byte positions.
// Immutable once produced.
type RawDocument struct {
	Revision     Revision
	Title        string
	Body         []byte
	BodyOffset   int
	Binary       []byte
	BinaryOffset int
}

type line struct {
	text string
	off  int // byte offset of the line start in the file
	end  int // byte offset just past the line text, excluding EOL
}

func splitLines(data []byte) []line {
	var out []line
	off := 0
	for off <= len(data) {
		rel := bytes.IndexByte(data[off:], '\n')
		if rel < 0 {
			if off < len(data) {
				out = append(out, line{text: trimCR(data[off:]), off: off, end: len(data)})
			}
			break
		}
		end := off + rel
		text := data[off:end]
		if len(text) > 0 && text[len(text)-1] == '\r' {
			text = text[:len(text)-1]
			end--
		}
		out = append(out, line{text: string(text), off: off, end: end})
		off += rel + 1
	}
	return out
}

func trimCR(b []byte) string {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Decode detects the revision from the header markers, validates the
// embedded checksum where the revision carries one, and reverses the
// obfuscation. The input buffer is never mutated.
func Decode(data []byte) (*RawDocument, error) {
	lines := splitLines(data)
	if len(lines) == 0 || lines[0].text != magicLine {
		return nil, fmt.Errorf("%w: missing %q header", ErrUnsupportedVersion, magicLine)
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	title := lines[1].text

	sentinelIdx := -1
	for i, l := range lines {
		if l.text == endOf88a {
			sentinelIdx = i
			break
		}
	}
	if sentinelIdx < 0 {
		return decode88a(data, lines, title)
	}
	return decode9x(data, lines, sentinelIdx, title)
}

func decode88a(data []byte, lines []line, title string) (*RawDocument, error) {
	first, err1 := strconv.Atoi(strings.TrimSpace(lines[2].text))
	last, err2 := strconv.Atoi(strings.TrimSpace(lines[3].text))
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: unreadable hint line markers", ErrCorrupt)
	}
	if first < 5 || last < first || last > len(lines) {
		return nil, fmt.Errorf("%w: hint range %d..%d out of bounds", ErrCorrupt, first, last)
	}
	body := make([]byte, len(data))
	copy(body, data)
	start := lines[first-1].off
	end := lines[last-1].end
	copy(body[start:end], Deobfuscate(Revision88a, title, data[start:end]))
	return &RawDocument{
		Revision: Revision88a,
		Title:    title,
		Body:     body,
	}, nil
}

func decode9x(data []byte, lines []line, sentinelIdx int, title string) (*RawDocument, error) {
	if len(data) < lines[sentinelIdx].end+3 {
		return nil, fmt.Errorf("%w: no content after 88a section", ErrCorrupt)
	}
	stored := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	if got := Checksum(data[:len(data)-2]); got != stored {
		return nil, fmt.Errorf("%w: checksum mismatch (stored %04x, computed %04x)", ErrCorrupt, stored, got)
	}

	// The text section starts on the line after the sentinel.
	start := lines[sentinelIdx].end
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	payload := data[start : len(data)-2]

	rev := Revision91a
	textEnd := len(payload)
	var binary []byte
	binaryOffset := 0
	if idx := bytes.IndexByte(payload, binarySentinel); idx >= 0 {
		rev = Revision95a
		textEnd = idx
		binary = payload[idx+1:]
		binaryOffset = start + idx + 1
	}

	return &RawDocument{
		Revision:     rev,
		Title:        title,
		Body:         Deobfuscate(rev, title, payload[:textEnd]),
		BodyOffset:   start,
		Binary:       binary,
		BinaryOffset: binaryOffset,
	}, nil
}
