package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestChecksumKnownValue(t *testing.T) {
	// CRC-16/ARC check value.
	if got := Checksum([]byte("123456789")); got != 0xBB3D {
		t.Fatalf("checksum = %04x, want bb3d", got)
	}
}

func TestObfuscateRoundTrip9x(t *testing.T) {
	plain := []byte("12 subject\r\nThe Woodlands\r\ntext with high bytes \x80\xFE\r\n")
	for _, rev := range []Revision{Revision91a, Revision95a} {
		cipher := Obfuscate(rev, "A Test Title", plain)
		if bytes.Equal(cipher, plain) {
			t.Fatalf("%s: obfuscation is a no-op", rev)
		}
		back := Deobfuscate(rev, "A Test Title", cipher)
		if !bytes.Equal(back, plain) {
			t.Fatalf("%s: round trip mismatch\n got %q\nwant %q", rev, back, plain)
		}
	}
}

// Every byte value must survive the 9x round trip; the transform is
// modular over 0xE0, so wrap-around inside the printable range is the
// easy bug to reintroduce.
func TestObfuscateRoundTripAllBytes(t *testing.T) {
	plain := make([]byte, 256)
	for i := range plain {
		plain[i] = byte(i)
	}
	for _, rev := range []Revision{Revision91a, Revision95a} {
		back := Deobfuscate(rev, "Tower Quest", Obfuscate(rev, "Tower Quest", plain))
		for i := range plain {
			if back[i] != plain[i] {
				t.Fatalf("%s: byte 0x%02X came back as 0x%02X", rev, plain[i], back[i])
			}
		}
	}
}

func TestObfuscateRoundTrip88a(t *testing.T) {
	// The 88a table is defined over 7-bit text only.
	plain := []byte("You need the shovel from the gardener's hut.")
	cipher := Obfuscate(Revision88a, "", plain)
	if bytes.Equal(cipher, plain) {
		t.Fatalf("88a scramble is a no-op")
	}
	if got := Deobfuscate(Revision88a, "", cipher); !bytes.Equal(got, plain) {
		t.Fatalf("88a round trip mismatch: got %q want %q", got, plain)
	}
}

func TestKeyScheduleDeterministic(t *testing.T) {
	a := KeySchedule(Revision95a, "Quest for Ages")
	b := KeySchedule(Revision95a, "Quest for Ages")
	if !bytes.Equal(a, b) {
		t.Fatalf("key schedule not deterministic")
	}
	if bytes.Equal(a, KeySchedule(Revision91a, "Quest for Ages")) {
		t.Fatalf("revisions should derive distinct schedules")
	}
	if bytes.Equal(a, KeySchedule(Revision95a, "Another Title")) {
		t.Fatalf("titles should derive distinct schedules")
	}
}

func build88aFixture(title, hint string) []byte {
	var buf bytes.Buffer
	buf.WriteString("UHS\r\n")
	buf.WriteString(title + "\r\n")
	buf.WriteString("5\r\n5\r\n")
	buf.Write(Obfuscate(Revision88a, title, []byte(hint)))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func build9xFixture(rev Revision, title, hunkText string, binary []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("UHS\r\n")
	buf.WriteString(title + "\r\n")
	buf.WriteString("5\r\n5\r\n")
	buf.WriteString("Upgrade your reader to view this file.\r\n")
	buf.WriteString(endOf88a + "\r\n")
	buf.Write(Obfuscate(rev, title, []byte(hunkText)))
	if rev == Revision95a {
		buf.WriteByte(binarySentinel)
		buf.Write(binary)
	}
	return AppendChecksum(buf.Bytes())
}

func TestDecodeDetects88a(t *testing.T) {
	data := build88aFixture("Old Game", "Dig under the oak tree.")
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Revision != Revision88a {
		t.Fatalf("revision = %s, want 88a", doc.Revision)
	}
	if doc.Title != "Old Game" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !bytes.Contains(doc.Body, []byte("Dig under the oak tree.")) {
		t.Fatalf("hint region not deciphered: %q", doc.Body)
	}
}

func TestDecodeDetects91a(t *testing.T) {
	data := build9xFixture(Revision91a, "Newer Game", "3 subject\r\nThe Castle\r\nhint line\r\n", nil)
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Revision != Revision91a {
		t.Fatalf("revision = %s, want 91a", doc.Revision)
	}
	if !bytes.HasPrefix(doc.Body, []byte("3 subject")) {
		t.Fatalf("body not deciphered: %q", doc.Body)
	}
	if doc.Binary != nil {
		t.Fatalf("91a must not carry a binary hunk")
	}
}

func TestDecodeDetects95a(t *testing.T) {
	bin := []byte{0x89, 'P', 'N', 'G', 0x1A, 0x00}
	data := build9xFixture(Revision95a, "Newest Game", "2 credit\r\nwritten by someone\r\n", bin)
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Revision != Revision95a {
		t.Fatalf("revision = %s, want 95a", doc.Revision)
	}
	if !bytes.Equal(doc.Binary, bin) {
		t.Fatalf("binary hunk mismatch: %v", doc.Binary)
	}
	if !bytes.HasPrefix(doc.Body, []byte("2 credit")) {
		t.Fatalf("body not deciphered: %q", doc.Body)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("PK\x03\x04 definitely not a hint file"))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	data := build9xFixture(Revision91a, "Game", "2 credit\r\nsomeone\r\n", nil)
	data[len(data)-1] ^= 0xFF
	_, err := Decode(data)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsBadHintRange(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("UHS\r\nGame\r\n2\r\n999\r\nonly line\r\n")
	_, err := Decode(buf.Bytes())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	data := build9xFixture(Revision95a, "Game", "2 credit\r\nsomeone\r\n", []byte{1, 2, 3})
	snapshot := append([]byte(nil), data...)
	if _, err := Decode(data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(data, snapshot) {
		t.Fatalf("input buffer was mutated")
	}
	data88 := build88aFixture("Game", "A hint.")
	snapshot88 := append([]byte(nil), data88...)
	if _, err := Decode(data88); err != nil {
		t.Fatalf("decode 88a: %v", err)
	}
	if !bytes.Equal(data88, snapshot88) {
		t.Fatalf("88a input buffer was mutated")
	}
}

func TestDecodeDeterministic(t *testing.T) {
	data := build9xFixture(Revision95a, "Game", "2 credit\r\nsomeone\r\n", []byte{9, 9})
	a, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(a.Body, b.Body) || a.Revision != b.Revision || a.Title != b.Title {
		t.Fatalf("repeated decode produced different documents")
	}
}
