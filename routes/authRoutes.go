package routes

import (
	"civicbounty-be/controllers"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine, ctl *controllers.Controller, auth gin.HandlerFunc) {
	group := r.Group("/api/auth")
	{
		group.POST("/register", ctl.RegisterUser)
		group.POST("/citizen/login", ctl.CitizenLogin)
		group.POST("/staff/login", ctl.StaffLogin)
		group.POST("/logout", ctl.LogoutUser)
		group.GET("/me", auth, ctl.GetMe)
	}
}
