package routes

import (
	"civicbounty-be/controllers"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the public board and the issue lifecycle routes
func IssueRoutes(r *gin.Engine, ctl *controllers.Controller, auth, reportLimit gin.HandlerFunc) {
	api := r.Group("/api")
	{
		api.GET("/home", ctl.Home)
		api.GET("/categories", ctl.ListCategories)
	}

	issue := r.Group("/api/issues")
	{
		issue.GET("/board", ctl.PublicBoard)
		issue.POST("/report", auth, reportLimit, ctl.ReportIssue)
		issue.POST("/:id/accept", auth, ctl.AcceptIssue)
		issue.POST("/:id/resolve", auth, ctl.ResolveIssue)
	}
}
