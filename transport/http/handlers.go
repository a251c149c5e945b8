package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Danny02/garagen-flohmarkt/core"
	"github.com/Danny02/garagen-flohmarkt/service"
)

// Handlers contains the HTTP handlers for the stand and passkey endpoints.
type Handlers struct {
	stands     *service.StandService
	auth       *service.AuthService
	adminToken string
	logger     *zap.Logger
}

// NewHandlers creates the handler set. adminToken may be empty, which
// disables the admin surface.
func NewHandlers(stands *service.StandService, auth *service.AuthService, adminToken string, logger *zap.Logger) *Handlers {
	return &Handlers{
		stands:     stands,
		auth:       auth,
		adminToken: adminToken,
		logger:     logger,
	}
}

// writeError maps service errors onto the wire. Messages are deliberately
// generic: verification failures and forbidden responses never reveal which
// check failed.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error()+": ")})
	case errors.Is(err, core.ErrChallengeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge expired"})
	case errors.Is(err, core.ErrVerificationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
	case errors.Is(err, core.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// isAdmin reports whether the request carries the configured admin bearer
// token. With no token configured there is no admin surface.
func (h *Handlers) isAdmin(c *gin.Context) bool {
	if h.adminToken == "" {
		return false
	}
	return c.GetHeader("Authorization") == "Bearer "+h.adminToken
}

// Health handles the health check endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ts": time.Now().UTC().Format(time.RFC3339)})
}

// ListStands handles GET /api/stands.
func (h *Handlers) ListStands(c *gin.Context) {
	stands, err := h.stands.List(c.Request.Context())
	if err != nil {
		h.logger.Error("listing stands", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stands)
}

// CreateStand handles POST /api/stands. The response is the only place the
// edit secret ever appears.
func (h *Handlers) CreateStand(c *gin.Context) {
	var req service.CreateStandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	stand, err := h.stands.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stand)
}

// GetStand handles GET /api/stands/:id.
func (h *Handlers) GetStand(c *gin.Context) {
	stand, err := h.stands.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stand)
}

type updateStandBody struct {
	core.AuthPayload
	service.UpdateStandRequest
}

// UpdateStand handles PUT /api/stands/:id. The body carries both the auth
// payload and the partial update; the gate runs before any write.
func (h *Handlers) UpdateStand(c *gin.Context) {
	var body updateStandBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	ctx := c.Request.Context()
	stand, err := h.stands.Load(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	admin := h.isAdmin(c)
	if !admin && !h.auth.Authorize(ctx, body.AuthPayload, stand) {
		writeError(c, core.ErrForbidden)
		return
	}

	updated, err := h.stands.Update(ctx, stand, body.UpdateStandRequest, admin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated.Public())
}

// DeleteStand handles DELETE /api/stands/:id. Auth rides in the body like
// every other mutation; an empty body is treated as an empty auth payload so
// admin callers can authenticate by header alone.
func (h *Handlers) DeleteStand(c *gin.Context) {
	var auth core.AuthPayload
	if err := c.ShouldBindJSON(&auth); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	ctx := c.Request.Context()
	stand, err := h.stands.Load(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if !h.isAdmin(c) && !h.auth.Authorize(ctx, auth, stand) {
		writeError(c, core.ErrForbidden)
		return
	}

	if err := h.stands.Delete(ctx, stand.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Challenge handles POST /api/passkey/challenge.
func (h *Handlers) Challenge(c *gin.Context) {
	resp, err := h.auth.IssueChallenge(c.Request.Context())
	if err != nil {
		h.logger.Error("issuing challenge", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterCredential handles POST /api/stands/:id/passkey/register.
func (h *Handlers) RegisterCredential(c *gin.Context) {
	var req service.RegisterCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if err := h.auth.RegisterCredential(c.Request.Context(), c.Param("id"), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Authenticate handles POST /api/passkey/authenticate.
func (h *Handlers) Authenticate(c *gin.Context) {
	var req service.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	result, err := h.auth.Authenticate(c.Request.Context(), req)
	if err != nil {
		authOutcomes.WithLabelValues("failure").Inc()
		writeError(c, err)
		return
	}
	authOutcomes.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, result)
}

// MyStands handles GET /api/my/stands. The session token rides in the
// Authorization header or, for older clients, the sessionToken query
// parameter.
func (h *Handlers) MyStands(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" || token == c.GetHeader("Authorization") {
		token = c.Query("sessionToken")
	}
	if token == "" {
		writeError(c, core.ErrForbidden)
		return
	}

	stands, err := h.auth.ListOwnedStands(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stands)
}
