package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kimshangyup/neulbom/internal/model"
)

// SetupRoutes wires the HTTP surface. Everything except the health
// check sits behind JWT auth; the failed-space admin endpoints further
// require the admin role.
func SetupRoutes(router *gin.Engine, handler *Handler, jwtSecret string) {
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(RecoveryMiddleware())

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(AuthRequired(jwtSecret))
	{
		rosterGroup := v1.Group("/roster")
		rosterGroup.Use(RequireRole(model.RoleInstructor, model.RoleAdmin))
		{
			rosterGroup.GET("/template", handler.DownloadTemplate)
			rosterGroup.POST("/upload", handler.UploadRoster)
			rosterGroup.POST("/confirm", handler.ConfirmRoster)
			rosterGroup.GET("/credentials/:session_id", handler.GetCredentials)
			rosterGroup.GET("/credentials/:session_id/download", handler.DownloadCredentials)
		}

		students := v1.Group("/students")
		students.Use(RequireRole(model.RoleInstructor, model.RoleAdmin))
		{
			students.GET("", handler.ListStudents)
			students.PUT("/:id/space", handler.UpdateStudentSpace)
		}

		admin := v1.Group("/spaces")
		admin.Use(RequireRole(model.RoleAdmin))
		{
			admin.GET("/failed", handler.ListFailedAttempts)
			admin.POST("/failed/:id/retry", handler.RetryFailedAttempt)
		}
	}
}
