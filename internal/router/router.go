package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/handler"
	"github.com/provexam/provex-backend/internal/middleware"
	"github.com/provexam/provex-backend/internal/response"
	"github.com/provexam/provex-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Portal    *handler.PortalHandler
	Media     *handler.MediaHandler
	Reporting *handler.ReportingHandler
	WS        *handler.WSHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	admission *service.AdmissionService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID",
		middleware.HeaderSessionToken, middleware.HeaderDeviceFingerprint}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for admission (30 requests per minute per IP). Admission
	// does a bcrypt compare in PER_STUDENT mode, so it must not be free to hammer.
	admissionLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Admission (Public, Rate Limited) ───────────────────────────
	sessionAPI := router.Group("/api/v1/exams")
	sessionAPI.Use(admissionLimiter.Middleware())
	{
		sessionAPI.POST("/:exam_id/session", handlers.Portal.CreateOrResumeSession)
	}

	// ─── 2. Attempt Plane (Session Token + Device Fingerprint) ─────────
	attemptAPI := router.Group("/api/v1/attempt")
	attemptAPI.Use(middleware.RequireSession(admission))
	{
		attemptAPI.POST("", handlers.Portal.StartOrResumeAttempt)
		attemptAPI.GET("/state", handlers.Portal.GetState)
		attemptAPI.POST("/heartbeat", handlers.Portal.Heartbeat)
		attemptAPI.DELETE("/session", handlers.Portal.EndSession)
		attemptAPI.PUT("/answers/:question_id", handlers.Portal.SaveAnswer)
		attemptAPI.POST("/violations", handlers.Portal.RecordViolation)
		attemptAPI.POST("/slots", handlers.Portal.RequestSlots)
		attemptAPI.POST("/uploads/:slot_id", handlers.Media.UploadFrame)
		attemptAPI.POST("/submit", handlers.Portal.SubmitAttempt)
		attemptAPI.GET("/result", handlers.Portal.GetResult)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/attempt/stream",
			middleware.RequireSession(admission),
			handlers.WS.AttemptStream,
		)
		ws.GET("/reporting/exams/:exam_id/monitor",
			middleware.RequireReportingKey(cfg),
			handlers.WS.MonitorStream,
		)
	}

	// ─── 4. Reporting Plane (Static Bearer Key) ────────────────────────
	reportingAPI := router.Group("/api/v1/reporting")
	reportingAPI.Use(middleware.RequireReportingKey(cfg))
	{
		reportingAPI.GET("/exams/:exam_id/attempts", handlers.Reporting.ListAttempts)
		reportingAPI.GET("/attempts/:attempt_id", handlers.Reporting.GetAttemptDetail)
		reportingAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
