package routes

import (
	"civicbounty-be/controllers"

	"github.com/gin-gonic/gin"
)

// StaffRoutes sets up triage and reward management. Role checks happen in
// the services so the error carries a redirect.
func StaffRoutes(r *gin.Engine, ctl *controllers.Controller, auth gin.HandlerFunc) {
	staff := r.Group("/api/staff", auth)
	{
		staff.GET("/dashboard", ctl.StaffDashboard)
		staff.POST("/issues/:id/status", ctl.UpdateIssueStatus)
		staff.POST("/issues/:id/publish", ctl.PublishIssue)
		staff.GET("/rewards", ctl.ManageRewards)
		staff.POST("/rewards", ctl.AllotReward)
		staff.POST("/rewards/:id/status", ctl.UpdateRewardStatus)
		staff.POST("/users/:id/reconcile", ctl.ReconcileRewards)
	}
}
