package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      models.Supervisor `json:"user"`
}

// Login authenticates a supervisor
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, detect.ClientError("Invalid request body", err.Error()))
		return
	}

	sup, err := h.store.FindSupervisor(c.Request.Context(), req.Username)
	if errors.Is(err, database.ErrNotFound) {
		h.fail(c, detect.Unauthorized("Invalid credentials", nil))
		return
	}
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}

	if !credentials.CheckPassword(sup.PasswordHash, req.Password) {
		h.fail(c, detect.Unauthorized("Invalid credentials", nil))
		return
	}

	token, expires, err := h.resolver.Issue(sup.ID, sup.Role, sup.AssignedZones)
	if errors.Is(err, credentials.ErrSigningDisabled) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, failureResponse{
			Error:     "Login is not available: JWT_SECRET is not configured",
			ErrorKind: string(detect.KindConfiguration),
		})
		return
	}
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, ExpiresAt: expires, User: *sup})
}
