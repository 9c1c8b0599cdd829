package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMe returns the authenticated user.
func (ctl *Controller) GetMe(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// GetProfile returns the user's points history, rewards and both the
// cached and recomputed reward totals.
func (ctl *Controller) GetProfile(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	view, err := ctl.Ledger.Profile(ctx, user)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":                userResponse(view.User),
		"derivedTotalRewards": view.DerivedTotalRewards,
		"pointsHistory":       view.PointsHistory,
		"rewards":             view.Rewards,
	})
}

func (ctl *Controller) CitizenDashboard(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	issues, err := ctl.Issues.CitizenDashboard(ctx, user)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

func (ctl *Controller) Leaderboard(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := ctl.Issues.Leaderboard(ctx)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
