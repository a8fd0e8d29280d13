package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/detect"
)

// RouterOptions controls the optional parts of the router
type RouterOptions struct {
	// UploadDir is served under /uploads when set
	UploadDir string
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// AllowedHeaders are the request headers browsers may send cross origin
var AllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// NewRouter builds the gin engine with every route
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(h.logger))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		h.fail(c, detect.InternalError(fmt.Errorf("panic: %v", recovered)))
	}))

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = AllowedHeaders
	router.Use(cors.New(config))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.UploadDir != "" {
		router.Static("/uploads", opts.UploadDir)
	}

	// Edge function path kept for existing camera clients
	for _, path := range []string{"/api/detect-ppe", "/functions/v1/detect-ppe"} {
		router.POST(path, h.DetectPPE)
		router.OPTIONS(path, Preflight)
	}

	router.GET("/ws/live", h.HandleLiveWebSocket)

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.Login)
		api.GET("/cameras", h.GetCameras)
		api.GET("/feeds/stats", h.GetFeedStats)

		detections := api.Group("/detections")
		{
			detections.GET("/recent", h.GetRecentViolations)
			detections.GET("/latest", h.GetLatestDetection)
			detections.GET("/stats", h.GetDetectionStats)
		}
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}
