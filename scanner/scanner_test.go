package scanner

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/openuhs/uhslib/codec"
)

func doc9x(rev codec.Revision, body string) *codec.RawDocument {
	return &codec.RawDocument{Revision: rev, Title: "t", Body: []byte(body), BodyOffset: 100}
}

func TestNextClassifiesHunkHeaders(t *testing.T) {
	sc := New(doc9x(codec.Revision91a, "3 subject\r\nThe Castle\r\njust a line\r\n"), Config{})
	seg, err := sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Kind != SegmentHunkHeader || seg.Tag != "subject" || seg.Count != 3 {
		t.Fatalf("header segment = %+v", seg)
	}
	if seg.Offset != 100 {
		t.Fatalf("offset = %d, want 100", seg.Offset)
	}
	seg, err = sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Kind != SegmentLine || seg.Raw != "The Castle" {
		t.Fatalf("body segment = %+v", seg)
	}
}

func TestNextNeverClassifiesIn88a(t *testing.T) {
	sc := New(&codec.RawDocument{Revision: codec.Revision88a, Body: []byte("3 subject\r\n")}, Config{})
	seg, err := sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Kind != SegmentLine {
		t.Fatalf("88a lines must stay lexical lines, got %+v", seg)
	}
}

func TestBinaryTagsNeed95a(t *testing.T) {
	// In 91a "4 hyperpng" is not a recognized hunk header; it reads as
	// an ordinary line and the builder rejects it in context.
	sc := New(doc9x(codec.Revision91a, "4 hyperpng\r\n"), Config{})
	seg, err := sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Kind != SegmentLine {
		t.Fatalf("hyperpng must not classify in 91a, got %+v", seg)
	}

	sc = New(doc9x(codec.Revision95a, "4 hyperpng\r\n"), Config{})
	seg, err = sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Kind != SegmentHunkHeader || seg.Tag != "hyperpng" {
		t.Fatalf("hyperpng should classify in 95a, got %+v", seg)
	}
}

func TestMalformedHunkCount(t *testing.T) {
	sc := New(doc9x(codec.Revision91a, "1 subject\r\n"), Config{})
	_, err := sc.Next()
	var mal *MalformedSegmentError
	if !errors.As(err, &mal) {
		t.Fatalf("err = %v, want MalformedSegmentError", err)
	}
	if mal.Offset != 100 {
		t.Fatalf("malformed offset = %d, want 100", mal.Offset)
	}
}

func TestLineLengthLimit(t *testing.T) {
	sc := New(doc9x(codec.Revision91a, strings.Repeat("x", 50)+"\r\n"), Config{MaxLineLength: 10})
	_, err := sc.Next()
	var mal *MalformedSegmentError
	if !errors.As(err, &mal) {
		t.Fatalf("err = %v, want MalformedSegmentError", err)
	}
}

func TestPositionSeekBacktrack(t *testing.T) {
	sc := New(doc9x(codec.Revision91a, "2 credit\r\nwho\r\ntail\r\n"), Config{})
	mark := sc.Position()
	first, _ := sc.Next()
	if _, err := sc.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := sc.Seek(mark); err != nil {
		t.Fatalf("seek: %v", err)
	}
	again, err := sc.Next()
	if err != nil {
		t.Fatalf("next after seek: %v", err)
	}
	if again != first {
		t.Fatalf("backtracked segment differs: %+v vs %+v", again, first)
	}
	if err := sc.Seek(99); err == nil {
		t.Fatalf("expected out-of-range seek to fail")
	}
}

func TestEndOfDocument(t *testing.T) {
	sc := New(doc9x(codec.Revision91a, "only\r\n"), Config{})
	if _, err := sc.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := sc.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadBinary(t *testing.T) {
	doc := &codec.RawDocument{
		Revision:     codec.Revision95a,
		Body:         []byte(""),
		Binary:       []byte{1, 2, 3, 4, 5},
		BinaryOffset: 400,
	}
	sc := New(doc, Config{})
	got, err := sc.ReadBinary(1, 3)
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Fatalf("binary slice = %v", got)
	}
	// The returned slice is a copy.
	got[0] = 99
	if doc.Binary[1] == 99 {
		t.Fatalf("ReadBinary aliases the document buffer")
	}

	if _, err := sc.ReadBinary(4, 5); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	var mal *MalformedSegmentError
	_, err = sc.ReadBinary(4, 5)
	if !errors.As(err, &mal) {
		t.Fatalf("err = %v, want MalformedSegmentError", err)
	}

	sc91 := New(doc9x(codec.Revision91a, ""), Config{})
	if _, err := sc91.ReadBinary(0, 0); err == nil {
		t.Fatalf("91a must reject binary reads")
	}
}

func TestCP437Transcoding(t *testing.T) {
	// 0x81 is u-umlaut in CP-437.
	sc := New(doc9x(codec.Revision91a, "T\x81r\r\n"), Config{})
	seg, err := sc.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if seg.Raw != "Tür" {
		t.Fatalf("transcoded line = %q, want %q", seg.Raw, "Tür")
	}
}
