// Package handlers exposes the HTTP API
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/natsserver"
	"github.com/sumangalagouda/DEV-HACK/internal/services"
)

// Handlers holds what the routes need
type Handlers struct {
	pipeline *detect.Pipeline
	store    *database.Store
	resolver *credentials.Resolver
	hub      *services.LiveHub
	nats     *natsserver.EmbeddedNATS
	logger   *zap.Logger
	now      func() time.Time
}

// New creates the handler set
func New(pipeline *detect.Pipeline, store *database.Store, resolver *credentials.Resolver, logger *zap.Logger) *Handlers {
	return &Handlers{
		pipeline: pipeline,
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// SetLiveHub enables /ws/live
func (h *Handlers) SetLiveHub(hub *services.LiveHub) {
	h.hub = hub
}

// SetEmbeddedNATS adds the embedded server to /api/feeds/stats
func (h *Handlers) SetEmbeddedNATS(ns *natsserver.EmbeddedNATS) {
	h.nats = ns
}

// failureResponse is the error envelope
type failureResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// fail renders any error as the failure envelope
func (h *Handlers) fail(c *gin.Context, err error) {
	de := detect.AsError(err)
	status := de.HTTPStatus()

	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.String("kind", string(de.Kind)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Warn("Request failed", fields...)
	}

	c.AbortWithStatusJSON(status, failureResponse{
		Success:   false,
		Error:     de.Message,
		ErrorKind: string(de.Kind),
		Code:      de.Code,
		Details:   de.Details,
		Hint:      de.Hint,
	})
}

// credential resolves the caller or renders the failure
func (h *Handlers) credential(c *gin.Context) (credentials.Credential, bool) {
	cred, err := h.resolver.Resolve(c.Request.Header)
	if err != nil {
		h.fail(c, credentialError(err))
		return credentials.Credential{}, false
	}
	return cred, true
}

func credentialError(err error) *detect.Error {
	switch {
	case errors.Is(err, credentials.ErrMissing):
		return detect.ConfigurationError("API key missing")
	case errors.Is(err, credentials.ErrInvalid):
		return detect.Unauthorized("Invalid credentials", err)
	}
	return detect.InternalError(err)
}
