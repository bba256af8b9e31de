package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/middleware"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Availability *AvailabilityHandler
	Slots        *SlotHandler
	Occurrences  *OccurrenceHandler
	DST          *DSTHandler
	Search       *SearchHandler
}

// RegisterRoutes mounts the API under api and protects it with bearer tokens.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	admin := string(models.RoleAdmin)
	self := middleware.SelfRole

	api.Use(middleware.JWT(tokens))

	teachers := api.Group("/teachers/:id")
	{
		anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
		teachers.GET("/availability", anyone, h.Availability.Check)
		teachers.GET("/free-segments", anyone, h.Availability.FreeSegments)
		teachers.GET("/free-summary", anyone, h.Availability.FreeSummary)
		teachers.GET("/free-summary.csv", anyone, h.Availability.FreeSummaryCSV)
		teachers.GET("/free-summary.pdf", anyone, h.Availability.FreeSummaryPDF)

		owner := middleware.RBAC(admin, self)
		teachers.GET("/calendar.ics", owner, h.Availability.Calendar)
		teachers.GET("/slots", owner, h.Slots.ListSlots)
		teachers.POST("/slots", owner, h.Slots.CreateSlot)
		teachers.PUT("/slots/:slotId", owner, h.Slots.UpdateSlot)
		teachers.DELETE("/slots/:slotId", owner, h.Slots.DeleteSlot)
		teachers.GET("/unavailability", owner, h.Slots.ListUnavailability)
		teachers.POST("/unavailability", owner, h.Slots.CreateUnavailability)
		teachers.DELETE("/unavailability/:periodId", owner, h.Slots.DeleteUnavailability)
		teachers.POST("/unavailability/:periodId/approve", middleware.RBAC(admin), h.Slots.ApproveUnavailability)
		teachers.POST("/unavailability/:periodId/reject", middleware.RBAC(admin), h.Slots.RejectUnavailability)
	}

	occurrences := api.Group("/occurrences", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent))
	{
		occurrences.POST("", h.Occurrences.Book)
		occurrences.PUT("/:id/reschedule", h.Occurrences.Reschedule)
		occurrences.POST("/:id/cancel", h.Occurrences.Cancel)
	}

	api.POST("/patterns/:id/generate", middleware.RBAC(admin), h.Occurrences.Generate)

	dst := api.Group("/dst", middleware.RBAC(admin))
	{
		dst.GET("/transitions", h.DST.Transitions)
		dst.POST("/reanchor", h.DST.Reanchor)
	}
	tasks := api.Group("/tasks", middleware.RBAC(admin))
	{
		tasks.GET("", h.DST.Tasks)
		tasks.POST("/:name/run", h.DST.RunTask)
	}

	api.POST("/search/teachers", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), h.Search.Search)
}
