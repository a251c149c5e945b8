package core

import "time"

// Challenge is a single-use random value handed to the browser before a
// passkey ceremony. It is stored keyed by a random challenge ID and deleted
// on first successful consumption.
type Challenge struct {
	Challenge string `json:"challenge"` // 32 random bytes, base64url
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// Expired reports whether the challenge is past its TTL at the given time.
func (c Challenge) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.UnixMilli()
}

// StoredCredential binds a passkey public key to an owner. It is keyed by the
// authenticator-chosen credential ID. At most one live credential exists per
// owner token: registering a new one replaces the previous record.
type StoredCredential struct {
	UserToken string `json:"userToken"`
	// StandID is a legacy field: older records were scoped to a single stand
	// instead of an owner token.
	StandID   string `json:"standId,omitempty"`
	PublicKey string `json:"publicKey"` // SPKI DER, base64url
	Alg       *int   `json:"alg,omitempty"`
}

// Session is a short-lived bearer token minted after a successful passkey
// assertion. Expiry is fixed at issuance and never extended.
type Session struct {
	UserToken string `json:"userToken"`
	// StandID is a legacy field mirroring StoredCredential.StandID.
	StandID   string `json:"standId,omitempty"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// Live reports whether the session is still valid at the given time.
func (s Session) Live(now time.Time) bool {
	return s.ExpiresAt > now.UnixMilli()
}

// Owner identifies who controls stands: either the durable owner token shared
// across all of an owner's stands, or, for legacy records, a single stand ID.
type Owner struct {
	Token   string
	StandID string
}

// OwnerOfCredential resolves the owner a credential is bound to, preferring
// the owner token over the legacy stand scope.
func OwnerOfCredential(c StoredCredential) Owner {
	if c.UserToken != "" {
		return Owner{Token: c.UserToken}
	}
	return Owner{StandID: c.StandID}
}

// OwnerOfSession resolves the owner a session was issued for.
func OwnerOfSession(s Session) Owner {
	if s.UserToken != "" {
		return Owner{Token: s.UserToken}
	}
	return Owner{StandID: s.StandID}
}

// Controls reports whether this owner controls the given stand.
func (o Owner) Controls(s Stand) bool {
	if o.Token != "" {
		return o.Token == s.EditSecret
	}
	return o.StandID != "" && o.StandID == s.ID
}

// AuthPayload is the credential material a caller attaches to a mutating
// request: the stand's plain edit secret, a session token, or neither.
type AuthPayload struct {
	EditSecret   string `json:"editSecret,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}
