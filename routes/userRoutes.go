package routes

import (
	"civicbounty-be/controllers"

	"github.com/gin-gonic/gin"
)

func UserRoutes(r *gin.Engine, ctl *controllers.Controller, auth gin.HandlerFunc) {
	r.GET("/api/leaderboard", ctl.Leaderboard)

	citizen := r.Group("/api/citizen", auth)
	{
		citizen.GET("/dashboard", ctl.CitizenDashboard)
		citizen.GET("/profile", ctl.GetProfile)
	}
}
