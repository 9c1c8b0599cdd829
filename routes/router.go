package routes

import (
	"net/http"

	"civicbounty-be/controllers"
	"civicbounty-be/metrics"
	"civicbounty-be/middlewares"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Options struct {
	JWTSecret        string
	CORSOrigin       string
	UploadDir        string
	Redis            *redis.Client
	IssueLimitPrefix string
	IssueDailyLimit  int
	Log              logrus.FieldLogger
}

// NewRouter builds the engine with the shared middleware and every route
// group.
func NewRouter(ctl *controllers.Controller, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestLogger(opts.Log))
	r.Use(middlewares.Metrics())
	if opts.CORSOrigin != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{opts.CORSOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
			ExposeHeaders:    []string{middlewares.RequestIDHeader},
			AllowCredentials: true,
		}))
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}

	auth := middlewares.AuthMiddleware(opts.JWTSecret, opts.Log)
	reportLimit := middlewares.IssueRateLimiter(opts.Redis, opts.IssueLimitPrefix, opts.IssueDailyLimit, opts.Log)

	AuthRoutes(r, ctl, auth)
	IssueRoutes(r, ctl, auth, reportLimit)
	UserRoutes(r, ctl, auth)
	StaffRoutes(r, ctl, auth)
	return r
}
