package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Danny02/garagen-flohmarkt/core"
	"github.com/Danny02/garagen-flohmarkt/ports"
	"github.com/Danny02/garagen-flohmarkt/webauthn"
)

const (
	// DefaultChallengeTTL is how long an issued challenge stays consumable.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultSessionTTL is the fixed lifetime of a session. Sessions are
	// never refreshed or extended.
	DefaultSessionTTL = 30 * time.Minute

	challengeSize = 32
)

// AuthService implements the passwordless ownership-credential flows:
// challenge issuance, credential registration, assertion verification with
// session issuance, and the authorization gate every mutation runs through.
type AuthService struct {
	store  ports.Store
	rp     *webauthn.RelyingParty
	events ports.EventPublisher
	logger *zap.Logger

	challengeTTL time.Duration
	sessionTTL   time.Duration
}

// AuthOption adjusts AuthService construction.
type AuthOption func(*AuthService)

// WithChallengeTTL overrides the challenge lifetime.
func WithChallengeTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.challengeTTL = ttl }
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.sessionTTL = ttl }
}

// NewAuthService creates a new authentication service.
func NewAuthService(store ports.Store, rp *webauthn.RelyingParty, events ports.EventPublisher, logger *zap.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:        store,
		rp:           rp,
		events:       events,
		logger:       logger,
		challengeTTL: DefaultChallengeTTL,
		sessionTTL:   DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChallengeResponse is returned by IssueChallenge.
type ChallengeResponse struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
}

// IssueChallenge mints a single-use, time-boxed random challenge and stores
// it under a random ID.
func (s *AuthService) IssueChallenge(ctx context.Context) (ChallengeResponse, error) {
	value := make([]byte, challengeSize)
	if _, err := rand.Read(value); err != nil {
		return ChallengeResponse{}, fmt.Errorf("failed to generate challenge: %w", err)
	}

	challenge := core.Challenge{
		Challenge: webauthn.Encode(value),
		ExpiresAt: time.Now().Add(s.challengeTTL).UnixMilli(),
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		return ChallengeResponse{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	id := uuid.New().String()
	if err := s.store.Put(ctx, challengeKey(id), string(raw), s.challengeTTL); err != nil {
		return ChallengeResponse{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	return ChallengeResponse{ChallengeID: id, Challenge: challenge.Challenge}, nil
}

// consumeChallenge enforces exactly-once consumption: the record is deleted
// before its value is handed back, so a second consume of the same ID always
// observes ErrChallengeExpired. The store expires keys too, but expiry is
// re-checked here since correctness must not depend on backend GC.
func (s *AuthService) consumeChallenge(ctx context.Context, id string) (string, error) {
	raw, err := s.store.Get(ctx, challengeKey(id))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return "", core.ErrChallengeExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	var challenge core.Challenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return "", fmt.Errorf("%w: corrupt challenge record: %v", core.ErrStoreOperationFailed, err)
	}
	if challenge.Expired(time.Now()) {
		return "", core.ErrChallengeExpired
	}

	if err := s.store.Delete(ctx, challengeKey(id)); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return challenge.Challenge, nil
}

// RegisterCredentialRequest is the payload for binding a passkey to a stand's
// owner. EditSecret must be the raw owner token: this is the act of
// provisioning the stronger credential, so session auth is not accepted.
type RegisterCredentialRequest struct {
	EditSecret     string `json:"editSecret"`
	ChallengeID    string `json:"challengeId"`
	CredentialID   string `json:"credentialId"`
	PublicKey      string `json:"publicKey"` // SPKI DER, base64url
	Alg            *int   `json:"alg,omitempty"`
	ClientDataJSON string `json:"clientDataJSON"` // base64url
}

// RegisterCredential validates a registration ceremony and binds the public
// key to the stand's owner, replacing any previous credential for that owner.
func (s *AuthService) RegisterCredential(ctx context.Context, standID string, req RegisterCredentialRequest) error {
	if req.EditSecret == "" || req.ChallengeID == "" || req.CredentialID == "" ||
		req.PublicKey == "" || req.ClientDataJSON == "" {
		return fmt.Errorf("%w: missing required fields", core.ErrInvalidInput)
	}

	// A missing stand and a wrong secret are indistinguishable to the
	// caller, so stands cannot be probed for existence.
	stand, err := getStand(ctx, s.store, standID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrForbidden
		}
		return err
	}
	if req.EditSecret != stand.EditSecret {
		return core.ErrForbidden
	}

	challenge, err := s.consumeChallenge(ctx, req.ChallengeID)
	if err != nil {
		return err
	}

	clientDataJSON, err := webauthn.Decode(req.ClientDataJSON)
	if err != nil {
		s.logger.Warn("credential registration rejected", zap.String("stand", standID), zap.Error(err))
		return core.ErrVerificationFailed
	}
	if err := s.rp.CheckRegistration(clientDataJSON, challenge); err != nil {
		s.logger.Warn("credential registration rejected", zap.String("stand", standID), zap.Error(err))
		return core.ErrVerificationFailed
	}

	// Single live credential per owner: drop the previous record first. A
	// crash between delete and put leaves the owner with zero credentials,
	// which is the safe failure; the order must not be reversed.
	if err := s.deleteCredentialsOf(ctx, stand); err != nil {
		return err
	}

	cred := core.StoredCredential{
		UserToken: stand.EditSecret,
		PublicKey: req.PublicKey,
		Alg:       req.Alg,
	}
	if err := putJSON(ctx, s.store, credentialKey(req.CredentialID), cred); err != nil {
		return err
	}

	if err := s.events.PublishCredentialRegistered(ctx, req.CredentialID); err != nil {
		s.logger.Warn("failed to publish credential event", zap.Error(err))
	}
	return nil
}

// deleteCredentialsOf removes every stored credential controlled by the
// stand's owner, including legacy stand-scoped records.
func (s *AuthService) deleteCredentialsOf(ctx context.Context, stand core.Stand) error {
	keys, err := s.store.List(ctx, credentialKeyPrefix)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, ports.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
		}
		var cred core.StoredCredential
		if err := json.Unmarshal([]byte(raw), &cred); err != nil {
			continue
		}
		if core.OwnerOfCredential(cred).Controls(stand) {
			if err := s.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
			}
		}
	}
	return nil
}

// AuthenticateRequest is the payload of an authentication assertion. All
// binary fields are base64url.
type AuthenticateRequest struct {
	ChallengeID       string `json:"challengeId"`
	CredentialID      string `json:"credentialId"`
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
}

// AuthenticateResult is returned on successful assertion verification.
type AuthenticateResult struct {
	SessionToken string `json:"sessionToken"`
	CredentialID string `json:"credentialId"`
}

// Authenticate verifies a passkey assertion and, on success, mints a
// short-lived session scoped to the credential's owner. No session is ever
// created through any other path.
func (s *AuthService) Authenticate(ctx context.Context, req AuthenticateRequest) (AuthenticateResult, error) {
	if req.ChallengeID == "" || req.CredentialID == "" || req.AuthenticatorData == "" ||
		req.ClientDataJSON == "" || req.Signature == "" {
		return AuthenticateResult{}, fmt.Errorf("%w: missing required fields", core.ErrInvalidInput)
	}

	challenge, err := s.consumeChallenge(ctx, req.ChallengeID)
	if err != nil {
		return AuthenticateResult{}, err
	}

	raw, err := s.store.Get(ctx, credentialKey(req.CredentialID))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return AuthenticateResult{}, fmt.Errorf("%w: credential not found", core.ErrNotFound)
	}
	if err != nil {
		return AuthenticateResult{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	var cred core.StoredCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return AuthenticateResult{}, fmt.Errorf("%w: corrupt credential record: %v", core.ErrStoreOperationFailed, err)
	}

	assertion, publicKey, err := decodeAssertion(req, cred.PublicKey)
	if err != nil {
		s.logger.Warn("assertion rejected", zap.String("credential", req.CredentialID), zap.Error(err))
		return AuthenticateResult{}, core.ErrVerificationFailed
	}

	var alg *webauthn.Algorithm
	if cred.Alg != nil {
		a := webauthn.Algorithm(*cred.Alg)
		alg = &a
	}
	if err := s.rp.VerifyAssertion(assertion, publicKey, alg, challenge); err != nil {
		// The reason stays server-side; callers only see a uniform failure.
		s.logger.Warn("assertion rejected", zap.String("credential", req.CredentialID), zap.Error(err))
		return AuthenticateResult{}, core.ErrVerificationFailed
	}

	userToken, err := s.resolveOwnerToken(ctx, cred)
	if err != nil {
		return AuthenticateResult{}, err
	}

	session := core.Session{
		UserToken: userToken,
		ExpiresAt: time.Now().Add(s.sessionTTL).UnixMilli(),
	}
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return AuthenticateResult{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	token := uuid.New().String()
	if err := s.store.Put(ctx, sessionKey(token), string(sessionJSON), s.sessionTTL); err != nil {
		return AuthenticateResult{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	if err := s.events.PublishSessionCreated(ctx, token); err != nil {
		s.logger.Warn("failed to publish session event", zap.Error(err))
	}
	return AuthenticateResult{SessionToken: token, CredentialID: req.CredentialID}, nil
}

func decodeAssertion(req AuthenticateRequest, publicKey string) (webauthn.Assertion, []byte, error) {
	authData, err := webauthn.Decode(req.AuthenticatorData)
	if err != nil {
		return webauthn.Assertion{}, nil, fmt.Errorf("decoding authenticator data: %w", err)
	}
	clientDataJSON, err := webauthn.Decode(req.ClientDataJSON)
	if err != nil {
		return webauthn.Assertion{}, nil, fmt.Errorf("decoding client data: %w", err)
	}
	signature, err := webauthn.Decode(req.Signature)
	if err != nil {
		return webauthn.Assertion{}, nil, fmt.Errorf("decoding signature: %w", err)
	}
	spki, err := webauthn.Decode(publicKey)
	if err != nil {
		return webauthn.Assertion{}, nil, fmt.Errorf("decoding stored public key: %w", err)
	}
	return webauthn.Assertion{
		AuthenticatorData: authData,
		ClientDataJSON:    clientDataJSON,
		Signature:         signature,
	}, spki, nil
}

// resolveOwnerToken prefers the credential's owner token; legacy records
// scoped to a single stand resolve through that stand's stored secret.
func (s *AuthService) resolveOwnerToken(ctx context.Context, cred core.StoredCredential) (string, error) {
	owner := core.OwnerOfCredential(cred)
	if owner.Token != "" {
		return owner.Token, nil
	}
	if owner.StandID == "" {
		return "", fmt.Errorf("%w: credential has no owner", core.ErrNotFound)
	}
	stand, err := getStand(ctx, s.store, owner.StandID)
	if err != nil {
		return "", err
	}
	return stand.EditSecret, nil
}

// Authorize is the single gate for every mutating stand operation: access is
// granted for the stand's plain edit secret or for a live session whose
// owner controls the stand. The predicate has no side effects and is safe to
// call speculatively.
func (s *AuthService) Authorize(ctx context.Context, auth core.AuthPayload, stand core.Stand) bool {
	if auth.EditSecret != "" && auth.EditSecret == stand.EditSecret {
		return true
	}
	if auth.SessionToken == "" {
		return false
	}

	session, err := s.getSession(ctx, auth.SessionToken)
	if err != nil {
		return false
	}
	return core.OwnerOfSession(session).Controls(stand)
}

// getSession loads a live session or fails. Expiry is re-checked even though
// the store expires session keys on its own.
func (s *AuthService) getSession(ctx context.Context, token string) (core.Session, error) {
	raw, err := s.store.Get(ctx, sessionKey(token))
	if err != nil {
		return core.Session{}, core.ErrForbidden
	}
	var session core.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return core.Session{}, core.ErrForbidden
	}
	if !session.Live(time.Now()) {
		return core.Session{}, core.ErrForbidden
	}
	return session, nil
}

// ListOwnedStands returns the public view of every stand controlled by the
// session's owner, supporting recovery of all listings from a single passkey.
func (s *AuthService) ListOwnedStands(ctx context.Context, sessionToken string) ([]core.StandPublic, error) {
	session, err := s.getSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	owner := core.OwnerOfSession(session)

	keys, err := s.store.List(ctx, standKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	var owned []core.StandPublic
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, ports.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
		}
		var stand core.Stand
		if err := json.Unmarshal([]byte(raw), &stand); err != nil {
			continue
		}
		if owner.Controls(stand) {
			owned = append(owned, stand.Public())
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	return owned, nil
}
