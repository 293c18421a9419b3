package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/journals", handler.OpenJournal)

		j := v1.Group("/journals/:id")
		j.GET("", handler.GetJournal)
		j.DELETE("", handler.CloseJournal)
		j.POST("/reload", handler.ReloadJournal)
		j.PUT("/attendance", handler.UpdateAttendance)
		j.POST("/attendance/cycle", handler.CycleAttendance)
		j.PUT("/grades", handler.UpdateGrade)
		j.PUT("/attestation", handler.SetAttestationPeriod)
		j.GET("/attestation/archive", handler.GetAttestationArchive)
		j.GET("/stats", handler.GetStats)
		j.GET("/notifications", handler.ListNotifications)
		j.DELETE("/notifications/:nid", handler.DismissNotification)
		j.GET("/audit", handler.GetAudit)
	}
}
