package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"civicbounty-be/middlewares"
	"civicbounty-be/models"
	"civicbounty-be/services"
	"civicbounty-be/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 10 * time.Second

// AuthConfig controls token lifetime and the auth cookie.
type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	Domain     string
	Production bool
}

// Controller holds the services the handlers call.
type Controller struct {
	Accounts   *services.Accounts
	Categories *services.Categories
	Issues     *services.IssueService
	Ledger     *services.Ledger
	Auth       AuthConfig
	Log        logrus.FieldLogger
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// currentUser loads the user the auth middleware identified. It writes
// the error response itself and returns nil on failure.
func (ctl *Controller) currentUser(ctx context.Context, c *gin.Context) *models.User {
	userID := c.GetString(middlewares.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil
	}
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return nil
	}
	user, err := ctl.Accounts.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return nil
	}
	if err != nil {
		ctl.respondError(c, err)
		return nil
	}
	return user
}

// objectIDParam parses a hex id path parameter, answering 400 when it is
// malformed.
func objectIDParam(c *gin.Context, name, label string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label + " ID"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps service and store errors to HTTP responses.
func (ctl *Controller) respondError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		authErr       *services.AuthorizationError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message, "field": validationErr.Field})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": authErr.Message, "redirect": authErr.Redirect})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password."})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "The record was changed by another request, reload and try again."})
	case errors.Is(err, context.DeadlineExceeded):
		ctl.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("request timed out")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out"})
	default:
		ctl.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}
