// Package webauthn implements the relying-party side of passkey ceremonies:
// base64url framing, client data validation, and assertion signature
// verification for ES256 and RS256 credentials. It holds no state and talks
// to no store.
package webauthn

import (
	"encoding/base64"
	"strings"
)

// Encode returns the unpadded base64url encoding of b, the framing used for
// every binary field crossing the wire.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode reverses Encode. Padded input is tolerated since some clients keep
// the trailing '=' characters.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
