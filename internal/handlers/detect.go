package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sumangalagouda/DEV-HACK/internal/detect"
)

// DetectPPE ingests one frame
// POST /api/detect-ppe
func (h *Handlers) DetectPPE(c *gin.Context) {
	var req detect.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, detect.ClientError("Invalid request body", err.Error()))
		return
	}

	// The image is checked before credentials so a bad request never
	// reports a server configuration problem
	if strings.TrimSpace(req.ImageBase64) == "" {
		h.fail(c, detect.ClientError("No image data provided", "imageBase64 is required"))
		return
	}

	cred, ok := h.credential(c)
	if !ok {
		return
	}

	res, err := h.pipeline.Ingest(c.Request.Context(), req, cred)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Preflight answers CORS preflight requests that carry no Origin header
func Preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
