package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	env := h.envelope()

	env.AddData("status", "ok")
	env.AddData("version", h.version)

	c.JSON(env.Package())
}

type authTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateAuthToken handles POST /auth-token. Credentials are checked
// against the configured account and a signed bearer token comes back.
func (h *Handler) CreateAuthToken(c *gin.Context) {
	env := h.envelope()

	if h.tokens == nil {
		c.JSON(env.SetError("Authentication is not configured", http.StatusBadRequest).Package())
		return
	}

	var req authTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(env.SetError(`Missing "username" or "password" in request body`, http.StatusBadRequest).Package())
		return
	}

	if err := h.tokens.VerifyCredentials(req.Username, req.Password); err != nil {
		c.JSON(env.SetError("Invalid credentials", http.StatusUnauthorized).Package())
		return
	}

	token, expires, err := h.tokens.Sign(req.Username)
	if err != nil {
		c.JSON(env.SetError("Failed to issue token", http.StatusInternalServerError).Package())
		return
	}

	env.AddData("token", token)
	env.AddData("expires_at", expires.UTC().Format("2006-01-02T15:04:05Z"))

	c.JSON(env.Package())
}

// ValidateAuthToken handles GET /auth-token/validate, reporting whether
// the presented bearer token is still good.
func (h *Handler) ValidateAuthToken(c *gin.Context) {
	env := h.envelope()

	if h.tokens == nil {
		c.JSON(env.SetError("Authentication is not configured", http.StatusBadRequest).Package())
		return
	}

	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.JSON(env.SetError("Missing bearer token", http.StatusUnauthorized).Package())
		return
	}

	claims, err := h.tokens.Parse(token)
	if err != nil {
		c.JSON(env.SetError("Invalid or expired token", http.StatusUnauthorized).Package())
		return
	}

	env.AddData("valid", true)
	env.AddData("username", claims.Username)

	c.JSON(env.Package())
}
