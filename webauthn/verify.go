package webauthn

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
)

// Algorithm is a COSE signature algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

// The set of algorithms supported by this package.
const (
	ES256 Algorithm = -7   // ECDSA over P-256 with SHA-256
	RS256 Algorithm = -257 // RSASSA-PKCS1-v1.5 with SHA-256
)

// Verification failure reasons. Callers surface these to clients as a single
// opaque failure; the specific reason is for server-side logs only.
var (
	ErrClientDataType       = errors.New("unexpected client data type")
	ErrChallengeMismatch    = errors.New("challenge mismatch")
	ErrOriginNotAllowed     = errors.New("origin not allowed")
	ErrRpIDMismatch         = errors.New("rpId hash mismatch")
	ErrUserNotPresent       = errors.New("user not present")
	ErrBadSignature         = errors.New("signature verification failed")
	ErrUnsupportedAlgorithm = errors.New("unsupported public key algorithm")
)

// Assertion carries the raw authenticator response fields of an
// authentication ceremony.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte
}

// RelyingParty validates passkey ceremonies. The relying-party identifier is
// derived from the client origin rather than configured, so a single
// RelyingParty serves every allowed origin.
type RelyingParty struct {
	// AllowedOrigins restricts clientData.origin. Empty skips the check
	// (dev-only).
	AllowedOrigins []string
}

// VerifyAssertion validates an authentication assertion against the stored
// SPKI public key and the just-consumed challenge value. alg is the COSE
// algorithm recorded at registration; nil means legacy data with no recorded
// algorithm, in which case ECDSA is attempted first with RSA as fallback.
func (rp *RelyingParty) VerifyAssertion(a Assertion, publicKeySPKI []byte, alg *Algorithm, challenge string) error {
	cd, err := parseClientData(a.ClientDataJSON)
	if err != nil {
		return err
	}
	if err := cd.check(ceremonyGet, challenge, rp.AllowedOrigins); err != nil {
		return err
	}

	rpID, err := cd.rpID()
	if err != nil {
		return err
	}
	rpIDHash := sha256.Sum256([]byte(rpID))
	if len(a.AuthenticatorData) < 33 {
		return fmt.Errorf("authenticator data too short: %d bytes", len(a.AuthenticatorData))
	}
	if !bytes.Equal(a.AuthenticatorData[:32], rpIDHash[:]) {
		return ErrRpIDMismatch
	}
	if a.AuthenticatorData[32]&0x01 == 0 {
		return ErrUserNotPresent
	}

	clientDataHash := sha256.Sum256(a.ClientDataJSON)
	payload := append([]byte{}, a.AuthenticatorData...)
	payload = append(payload, clientDataHash[:]...)

	pub, err := x509.ParsePKIXPublicKey(publicKeySPKI)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}

	if alg == nil {
		// Legacy record with no recorded algorithm: try each strategy in
		// priority order.
		for _, s := range strategies {
			if s.verify(pub, payload, a.Signature) {
				return nil
			}
		}
		return ErrBadSignature
	}

	for _, s := range strategies {
		if !s.matches(*alg) {
			continue
		}
		if !s.verify(pub, payload, a.Signature) {
			return ErrBadSignature
		}
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, int(*alg))
}

// CheckRegistration validates the client data of a credential creation
// ("none" attestation model: attestation content beyond client data is not
// inspected).
func (rp *RelyingParty) CheckRegistration(clientDataJSON []byte, challenge string) error {
	cd, err := parseClientData(clientDataJSON)
	if err != nil {
		return err
	}
	return cd.check(ceremonyCreate, challenge, rp.AllowedOrigins)
}

// strategy verifies one signature algorithm. Strategies are tried in priority
// order, which keeps adding another algorithm additive.
type strategy interface {
	matches(alg Algorithm) bool
	verify(pub crypto.PublicKey, payload, sig []byte) bool
}

var strategies = []strategy{es256{}, rs256{}}

type es256 struct{}

func (es256) matches(alg Algorithm) bool { return alg == ES256 }

// verify accepts the signature either as a raw 64-byte r||s concatenation or
// as DER. The raw form is tried first when the length allows, then a
// DER-to-raw normalization, and finally the bytes as DER directly.
func (es256) verify(pub crypto.PublicKey, payload, sig []byte) bool {
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(payload)

	if len(sig) == 2*p256FieldSize && verifyRawECDSA(ecdsaPub, digest[:], sig) {
		return true
	}
	if raw, ok := derSignatureToRaw(sig, p256FieldSize); ok && verifyRawECDSA(ecdsaPub, digest[:], raw) {
		return true
	}
	return ecdsa.VerifyASN1(ecdsaPub, digest[:], sig)
}

func verifyRawECDSA(pub *ecdsa.PublicKey, digest, raw []byte) bool {
	r := new(big.Int).SetBytes(raw[:p256FieldSize])
	s := new(big.Int).SetBytes(raw[p256FieldSize:])
	return ecdsa.Verify(pub, digest, r, s)
}

type rs256 struct{}

func (rs256) matches(alg Algorithm) bool { return alg == RS256 }

func (rs256) verify(pub crypto.PublicKey, payload, sig []byte) bool {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig) == nil
}
