package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleLiveWebSocket upgrades to the live status stream.
// Browsers cannot set headers here, so ?token= is accepted too.
// GET /ws/live
func (h *Handlers) HandleLiveWebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live status hub not initialized"})
		return
	}

	cred, ok := h.liveCredential(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := services.NewLiveClient(h.hub, conn, cred, c.ClientIP())
	h.hub.Register(client)

	go client.WritePump()
	// The request context ends when this handler returns
	go client.ReadPump(context.WithoutCancel(c.Request.Context()))
}

func (h *Handlers) liveCredential(c *gin.Context) (credentials.Credential, bool) {
	if token := c.Query("token"); token != "" {
		cred, err := h.resolver.ResolveToken(token)
		if err != nil {
			h.fail(c, credentialError(err))
			return credentials.Credential{}, false
		}
		return cred, true
	}
	return h.credential(c)
}

// GetFeedStats returns hub and event bus statistics
// GET /api/feeds/stats
func (h *Handlers) GetFeedStats(c *gin.Context) {
	resp := gin.H{"enabled": h.hub != nil}
	if h.hub != nil {
		stats := h.hub.Stats()
		resp["clients"] = stats.Clients
		resp["subscriptions"] = stats.Subscriptions
		resp["activeCameras"] = stats.ActiveCameras
		resp["states"] = stats.States
	}
	if h.nats != nil {
		resp["nats"] = h.nats.GetStats()
	}
	c.JSON(http.StatusOK, resp)
}
