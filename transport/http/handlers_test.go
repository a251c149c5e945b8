package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danny02/garagen-flohmarkt/adapters/events"
	"github.com/Danny02/garagen-flohmarkt/adapters/store"
	"github.com/Danny02/garagen-flohmarkt/service"
	"github.com/Danny02/garagen-flohmarkt/webauthn"
)

const testAdminToken = "admin-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	st := store.NewMemoryStore()
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })
	publisher := events.NewWatermillPublisher(pubsub)

	rp := &webauthn.RelyingParty{}
	auth := service.NewAuthService(st, rp, publisher, logger)
	stands := service.NewStandService(st, nil, publisher, logger)

	return SetupRouter(NewHandlers(stands, auth, testAdminToken, logger), logger)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type standResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Address    string `json:"address"`
	PLZ        string `json:"plz"`
	Approved   bool   `json:"approved"`
	Open       bool   `json:"open"`
	EditSecret string `json:"editSecret"`
}

func createStand(t *testing.T, router *gin.Engine, body map[string]any) standResponse {
	t.Helper()
	if body == nil {
		body = map[string]any{"address": "Ringstr. 12"}
	}
	rec := doJSON(t, router, http.MethodPost, "/api/stands", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stand := decode[standResponse](t, rec)
	require.NotEmpty(t, stand.EditSecret)
	return stand
}

// authenticator drives passkey ceremonies against the HTTP surface.
type authenticator struct {
	key          *ecdsa.PrivateKey
	credentialID string
	publicKey    string
}

func newAuthenticator(t *testing.T, credentialID string) *authenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return &authenticator{key: key, credentialID: credentialID, publicKey: webauthn.Encode(spki)}
}

func (a *authenticator) clientData(t *testing.T, ceremony, challenge string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":      ceremony,
		"challenge": challenge,
		"origin":    "http://localhost:5173",
	})
	require.NoError(t, err)
	return webauthn.Encode(raw)
}

type challengeResponse struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
}

func issueChallenge(t *testing.T, router *gin.Engine) challengeResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/passkey/challenge", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[challengeResponse](t, rec)
}

func (a *authenticator) register(t *testing.T, router *gin.Engine, standID, editSecret string) *httptest.ResponseRecorder {
	t.Helper()
	challenge := issueChallenge(t, router)
	return doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/stands/%s/passkey/register", standID), map[string]any{
		"editSecret":     editSecret,
		"challengeId":    challenge.ChallengeID,
		"credentialId":   a.credentialID,
		"publicKey":      a.publicKey,
		"alg":            int(webauthn.ES256),
		"clientDataJSON": a.clientData(t, "webauthn.create", challenge.Challenge),
	}, nil)
}

func (a *authenticator) authenticate(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()
	challenge := issueChallenge(t, router)
	cdJSON := a.clientData(t, "webauthn.get", challenge.Challenge)

	rpIDHash := sha256.Sum256([]byte("localhost"))
	authData := append(rpIDHash[:], 0x01, 0x00, 0x00, 0x00, 0x01)

	rawCD, err := webauthn.Decode(cdJSON)
	require.NoError(t, err)
	cdHash := sha256.Sum256(rawCD)
	payload := append(append([]byte{}, authData...), cdHash[:]...)
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	return doJSON(t, router, http.MethodPost, "/api/passkey/authenticate", map[string]any{
		"challengeId":       challenge.ChallengeID,
		"credentialId":      a.credentialID,
		"authenticatorData": webauthn.Encode(authData),
		"clientDataJSON":    cdJSON,
		"signature":         webauthn.Encode(sig),
	}, nil)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStandLifecycle(t *testing.T) {
	router := newTestRouter(t)

	stand := createStand(t, router, map[string]any{"address": "Ringstr. 12", "label": "Garagenstand"})

	// Public reads never expose the edit secret.
	rec := doJSON(t, router, http.MethodGet, "/api/stands/"+stand.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "editSecret")
	assert.NotContains(t, rec.Body.String(), stand.EditSecret)

	rec = doJSON(t, router, http.MethodGet, "/api/stands", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), stand.EditSecret)

	// Update with the edit secret in the body.
	rec = doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{
		"editSecret": stand.EditSecret,
		"label":      "Umbenannt",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Umbenannt", decode[standResponse](t, rec).Label)

	// Delete with the edit secret.
	rec = doJSON(t, router, http.MethodDelete, "/api/stands/"+stand.ID, map[string]any{"editSecret": stand.EditSecret}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/stands/"+stand.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStandMutationForbidden(t *testing.T) {
	router := newTestRouter(t)
	stand := createStand(t, router, nil)

	rec := doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{
		"editSecret": "wrong",
		"label":      "Hijacked",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/stands/"+stand.ID, map[string]any{"editSecret": "wrong"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No credentials at all.
	rec = doJSON(t, router, http.MethodDelete, "/api/stands/"+stand.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasskeyFlow(t *testing.T) {
	router := newTestRouter(t)
	stand := createStand(t, router, nil)
	auth := newAuthenticator(t, "cred-e2e")

	rec := auth.register(t, router, stand.ID, stand.EditSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = auth.authenticate(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[map[string]string](t, rec)
	sessionToken := result["sessionToken"]
	require.NotEmpty(t, sessionToken)

	// The session authorizes mutations on the owned stand.
	rec = doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{
		"sessionToken": sessionToken,
		"label":        "Per Passkey",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Per Passkey", decode[standResponse](t, rec).Label)

	// And lists the owner's stands.
	rec = doJSON(t, router, http.MethodGet, "/api/my/stands", nil, map[string]string{
		"Authorization": "Bearer " + sessionToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	owned := decode[[]standResponse](t, rec)
	require.Len(t, owned, 1)
	assert.Equal(t, stand.ID, owned[0].ID)

	// Query-parameter fallback for older clients.
	rec = doJSON(t, router, http.MethodGet, "/api/my/stands?sessionToken="+sessionToken, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/my/stands", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasskeyRegisterForbidden(t *testing.T) {
	router := newTestRouter(t)
	stand := createStand(t, router, nil)
	auth := newAuthenticator(t, "cred-1")

	rec := auth.register(t, router, stand.ID, "wrong-secret")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing stand reads the same as a wrong secret.
	rec = auth.register(t, router, "no-such-stand", stand.EditSecret)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasskeyAuthenticateFailures(t *testing.T) {
	router := newTestRouter(t)
	stand := createStand(t, router, nil)

	registered := newAuthenticator(t, "cred-1")
	rec := registered.register(t, router, stand.ID, stand.EditSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same credential ID, different private key: uniform 401.
	imposter := newAuthenticator(t, "cred-1")
	rec = imposter.authenticate(t, router)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication failed")

	// Unknown credential.
	unknown := newAuthenticator(t, "cred-unknown")
	rec = unknown.authenticate(t, router)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Consumed challenge.
	challenge := issueChallenge(t, router)
	body := map[string]any{
		"challengeId":       challenge.ChallengeID,
		"credentialId":      "cred-1",
		"authenticatorData": "AA",
		"clientDataJSON":    "AA",
		"signature":         "AA",
	}
	doJSON(t, router, http.MethodPost, "/api/passkey/authenticate", body, nil)
	rec = doJSON(t, router, http.MethodPost, "/api/passkey/authenticate", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Challenge expired")
}

func TestAdminSurface(t *testing.T) {
	router := newTestRouter(t)
	stand := createStand(t, router, nil)
	adminHeader := map[string]string{"Authorization": "Bearer " + testAdminToken}

	// Owners cannot flip the approved flag.
	rec := doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{
		"editSecret": stand.EditSecret,
		"approved":   true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[standResponse](t, rec).Approved)

	// Admins can, without any body auth.
	rec = doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{"approved": true}, adminHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[standResponse](t, rec).Approved)

	// Wrong admin token falls through to the normal gate.
	rec = doJSON(t, router, http.MethodPut, "/api/stands/"+stand.ID, map[string]any{"approved": false}, map[string]string{
		"Authorization": "Bearer nope",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin delete with an empty body.
	rec = doJSON(t, router, http.MethodDelete, "/api/stands/"+stand.ID, nil, adminHeader)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateStandValidationOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/stands", map[string]any{"label": "ohne Adresse"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "address is required")

	rec = doJSON(t, router, http.MethodPost, "/api/stands", map[string]any{
		"address":    "Ringstr. 12",
		"categories": []string{"Raketen"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown categories")
}

func TestCORSHeaders(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/stands", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
