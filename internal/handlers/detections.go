package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sumangalagouda/DEV-HACK/internal/dashboard"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
)

const maxRecentLimit = 100

// GetRecentViolations returns the newest violation detections
// GET /api/detections/recent?cameraId=&limit=
func (h *Handlers) GetRecentViolations(c *gin.Context) {
	cred, ok := h.credential(c)
	if !ok {
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.fail(c, detect.ClientError("Invalid limit", "limit must be a positive integer"))
			return
		}
		if n > maxRecentLimit {
			n = maxRecentLimit
		}
		limit = n
	}

	dets, err := h.store.RecentViolations(c.Request.Context(), cred, c.Query("cameraId"), limit)
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"detections": dets, "count": len(dets)})
}

// GetLatestDetection returns the newest detection
// GET /api/detections/latest?cameraId=
func (h *Handlers) GetLatestDetection(c *gin.Context) {
	cred, ok := h.credential(c)
	if !ok {
		return
	}

	det, err := h.store.LatestDetection(c.Request.Context(), cred, c.Query("cameraId"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "No detections yet"})
		return
	}
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}
	c.JSON(http.StatusOK, det)
}

// GetDetectionStats returns today's safety score
// GET /api/detections/stats
func (h *Handlers) GetDetectionStats(c *gin.Context) {
	cred, ok := h.credential(c)
	if !ok {
		return
	}

	stats, err := dashboard.Compute(c.Request.Context(), h.store, cred, h.now())
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetCameras lists cameras
// GET /api/cameras
func (h *Handlers) GetCameras(c *gin.Context) {
	cred, ok := h.credential(c)
	if !ok {
		return
	}

	cameras, err := h.store.ListCameras(c.Request.Context(), cred)
	if err != nil {
		h.fail(c, detect.InternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras, "count": len(cameras)})
}
