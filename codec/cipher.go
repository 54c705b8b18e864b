package codec

// The container's obfuscation is a deterministic byte-wise transform,
// not a cryptographic cipher. Control bytes (< 0x20) always pass
// through unchanged so the line structure of the text survives; only
// printable bytes are scrambled.
//
// Revision 88a uses a fixed positional character table. The 9x
// revisions use a repeating key schedule derived from the document
// title, so the schedule is a pure function of (revision, title) and
// concurrent decodes never share state.

const (
	printableBase = 0x20
	printableMod  = 0xE0

	seed91a = 0x6B
	seed95a = 0x1F
)

// KeySchedule derives the repeating key for the 9x revisions. The 88a
// revision has no key; its transform is the fixed table below.
func KeySchedule(rev Revision, title string) []byte {
	seed := byte(seed91a)
	if rev == Revision95a {
		seed = seed95a
	}
	if title == "" {
		return []byte{seed}
	}
	key := make([]byte, len(title))
	acc := seed
	for i := 0; i < len(title); i++ {
		t := title[i]
		acc = acc*31 + t
		key[i] = (t + (acc ^ byte(i))) % printableMod
	}
	return key
}

// Obfuscate applies the revision's transform to plain bytes. It exists
// alongside Deobfuscate so tooling and tests can construct valid
// containers; Decode only ever runs the inverse direction.
func Obfuscate(rev Revision, title string, plain []byte) []byte {
	out := make([]byte, len(plain))
	if rev == Revision88a {
		for i, b := range plain {
			out[i] = scramble88a(b)
		}
		return out
	}
	key := KeySchedule(rev, title)
	j := 0
	for i, b := range plain {
		if b < printableBase {
			out[i] = b
			continue
		}
		// modular arithmetic in int: byte arithmetic wraps at 256,
		// which is not a multiple of the modulus
		k := int(key[j%len(key)]) % printableMod
		out[i] = byte((int(b)-printableBase+k)%printableMod) + printableBase
		j++
	}
	return out
}

// Deobfuscate recovers plain bytes from an obfuscated region. The input
// is never written to; callers keep their buffer intact.
func Deobfuscate(rev Revision, title string, cipher []byte) []byte {
	out := make([]byte, len(cipher))
	if rev == Revision88a {
		for i, b := range cipher {
			out[i] = unscramble88a(b)
		}
		return out
	}
	key := KeySchedule(rev, title)
	j := 0
	for i, b := range cipher {
		if b < printableBase {
			out[i] = b
			continue
		}
		k := int(key[j%len(key)]) % printableMod
		out[i] = byte(((int(b)-printableBase-k)%printableMod+printableMod)%printableMod) + printableBase
		j++
	}
	return out
}

// The 88a table maps even printables into [0x20,0x50) and odd ones into
// [0x50,0x80), which is why the inverse branches on 0x50.
func scramble88a(b byte) byte {
	if b < printableBase {
		return b
	}
	if b%2 == 0 {
		return (b + 0x20) / 2
	}
	return (b + 0x7F) / 2
}

func unscramble88a(b byte) byte {
	if b < printableBase {
		return b
	}
	if b < 0x50 {
		return b*2 - 0x20
	}
	return b*2 - 0x7F
}
