package webauthn

// ASN.1 handling for ECDSA signatures. Authenticators are split between
// emitting raw r||s concatenations and DER SEQUENCE{INTEGER r, INTEGER s}
// encodings; the verifier accepts both, so this file converts DER to the raw
// form. The transform is pure byte manipulation with no cryptographic calls.

const p256FieldSize = 32

// parseASN1Length reads a BER/DER length octet sequence starting at offset.
// Short form and long form up to two length bytes are accepted. Returns the
// decoded length and the offset of the first content byte, or ok=false on
// malformed input.
func parseASN1Length(b []byte, offset int) (length, next int, ok bool) {
	if offset >= len(b) {
		return 0, 0, false
	}
	first := b[offset]
	if first&0x80 == 0 {
		return int(first), offset + 1, true
	}
	numBytes := int(first & 0x7f)
	if numBytes == 0 || numBytes > 2 || offset+1+numBytes > len(b) {
		return 0, 0, false
	}
	for i := 0; i < numBytes; i++ {
		length = length<<8 | int(b[offset+1+i])
	}
	return length, offset + 1 + numBytes, true
}

// derSignatureToRaw converts a DER-encoded ECDSA signature into the raw
// fixed-width r||s form: leading sign-padding zero bytes are stripped from
// each integer and each half is left-padded to fieldSize bytes. Returns
// ok=false when the input is not a well-formed two-integer SEQUENCE; callers
// treat that as eliminating this decoding candidate, not as a fatal error.
func derSignatureToRaw(sig []byte, fieldSize int) ([]byte, bool) {
	if len(sig) < 8 || sig[0] != 0x30 {
		return nil, false
	}

	seqLen, idx, ok := parseASN1Length(sig, 1)
	if !ok || idx+seqLen != len(sig) {
		return nil, false
	}

	r, idx, ok := readASN1Integer(sig, idx)
	if !ok {
		return nil, false
	}
	s, idx, ok := readASN1Integer(sig, idx)
	if !ok || idx != len(sig) {
		return nil, false
	}

	r = trimLeadingZeros(r)
	s = trimLeadingZeros(s)
	if len(r) > fieldSize || len(s) > fieldSize {
		return nil, false
	}

	out := make([]byte, fieldSize*2)
	copy(out[fieldSize-len(r):], r)
	copy(out[fieldSize*2-len(s):], s)
	return out, true
}

func readASN1Integer(b []byte, offset int) (value []byte, next int, ok bool) {
	if offset >= len(b) || b[offset] != 0x02 {
		return nil, 0, false
	}
	length, idx, ok := parseASN1Length(b, offset+1)
	if !ok || length == 0 || idx+length > len(b) {
		return nil, 0, false
	}
	return b[idx : idx+length], idx + length, true
}

func trimLeadingZeros(b []byte) []byte {
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return b
}
