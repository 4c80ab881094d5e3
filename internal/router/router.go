package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Test      *handler.TestHandler
	StaffTest *handler.StaffTestHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
}

func perm(p model.Permission) gin.HandlerFunc {
	return middleware.RequirePermission(string(p))
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as rate limiter cleanup.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	middleware.RegisterMetrics()
	router.Use(middleware.Metrics())

	// Apply brotli middleware globally. Papers and answer files pass through.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", middleware.PrometheusHandler())

	authLimiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit, cfg.AuthRateBurst)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", authLimiter.Middleware(), handlers.Auth.StudentLogin)
		auth.POST("/staff/login", authLimiter.Middleware(), handlers.Auth.StaffLogin)

		// Authenticated profile routes
		auth.POST("/student/logout",
			middleware.RequireStudentJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Auth.StudentLogout,
		)
		auth.GET("/student/me",
			middleware.RequireStudentJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			handlers.Auth.GetStudentProfile,
		)
		auth.GET("/staff/me", middleware.RequireStaffJWT(authService), handlers.Auth.GetStaffProfile)
	}

	// ─── 2. Student Tests (JWT + Single Device) ────────────────────────
	studentJWT := []gin.HandlerFunc{
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	}
	tests := router.Group("/api/v1/tests")
	{
		tests.GET("/available", append(studentJWT, handlers.Test.Available)...)
		tests.GET("/:test_id/content", append(studentJWT, middleware.NoStore(), handlers.Test.Content)...)
		tests.POST("/submit", append(studentJWT, handlers.Test.Submit)...)
		tests.POST("/:test_id/compromise", append(studentJWT, handlers.Test.ReportCompromise)...)

		// Staff action living under the tests path.
		tests.POST("/:test_id/reset-compromise/:student_id",
			middleware.RequireStaffJWT(authService),
			perm(model.PermissionProctoringReset),
			handlers.StaffTest.ResetCompromise,
		)
	}

	// ─── 3. Staff Group (JWT + RBAC) ───────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.GET("/tests", perm(model.PermissionTestsRead), handlers.StaffTest.ListTests)
		staffAPI.POST("/tests", perm(model.PermissionTestsWrite), handlers.StaffTest.CreateTest)
		staffAPI.GET("/tests/:test_id", perm(model.PermissionTestsRead), handlers.StaffTest.GetTest)
		staffAPI.PUT("/tests/:test_id/paper", perm(model.PermissionTestsWrite), handlers.StaffTest.UploadPaper)
		staffAPI.GET("/tests/:test_id/submissions", perm(model.PermissionTestsRead), handlers.StaffTest.ListSubmissions)
		staffAPI.GET("/tests/:test_id/compromise-events",
			perm(model.PermissionProctoringMonitor),
			handlers.StaffTest.ListCompromiseEvents,
		)

		staffAPI.PATCH("/submissions/:submission_id/grade",
			perm(model.PermissionSubmissionsGrade),
			handlers.StaffTest.GradeSubmission,
		)
		staffAPI.GET("/submissions/:submission_id/file",
			perm(model.PermissionTestsRead),
			middleware.NoStore(),
			handlers.StaffTest.DownloadSubmission,
		)

		staffAPI.POST("/students/:student_id/reset-session",
			perm(model.PermissionProctoringReset),
			handlers.Auth.ResetStudentSession,
		)

		// System status (open to all staff)
		staffAPI.GET("/system/status", handlers.System.Status)
	}

	// ─── 4. WebSocket Group (Staff WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStaffWSAuth(authService))
	{
		ws.GET("/staff/tests/:test_id/monitor",
			perm(model.PermissionProctoringMonitor),
			handlers.Monitor.MonitorTest,
		)
	}

	return router
}
