package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StaffDashboard lists issues with optional ?category= and ?status=
// filters plus the per-status and per-category counts.
func (ctl *Controller) StaffDashboard(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	dash, err := ctl.Issues.StaffDashboard(ctx, user, c.Query("category"), c.Query("status"))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (ctl *Controller) UpdateIssueStatus(c *gin.Context) {
	issueID, ok := objectIDParam(c, "id", "issue")
	if !ok {
		return
	}
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	issue, err := ctl.Issues.UpdateStatus(ctx, user, issueID, input.Status)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated successfully!", "issue": issue})
}

// PublishIssue puts an issue on the public board with an optional bounty.
func (ctl *Controller) PublishIssue(c *gin.Context) {
	issueID, ok := objectIDParam(c, "id", "issue")
	if !ok {
		return
	}
	var input struct {
		BountyAmount decimal.Decimal `json:"bounty_amount"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "bounty_amount"})
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	issue, err := ctl.Issues.Publish(ctx, user, issueID, input.BountyAmount)
	if err != nil {
		ctl.respondError(c, err)
		return
	}

	message := "Issue published to public!"
	if issue.HasBounty() {
		message = fmt.Sprintf("Issue published to public with ₹%s bounty!", issue.BountyAmount.StringFixed(2))
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "issue": issue})
}

func (ctl *Controller) ManageRewards(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	overview, err := ctl.Ledger.ManageRewards(ctx, user)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// AllotReward grants a manual, approved reward to a citizen.
func (ctl *Controller) AllotReward(c *gin.Context) {
	var input struct {
		User   string          `json:"user" binding:"required"`
		Issue  string          `json:"issue"`
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := primitive.ObjectIDFromHex(input.User)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID", "field": "user"})
		return
	}
	var issueID *primitive.ObjectID
	if strings.TrimSpace(input.Issue) != "" {
		id, err := primitive.ObjectIDFromHex(input.Issue)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid issue ID", "field": "issue"})
			return
		}
		issueID = &id
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	actor := ctl.currentUser(ctx, c)
	if actor == nil {
		return
	}
	reward, err := ctl.Ledger.AllotReward(ctx, actor, userID, issueID, input.Amount, input.Reason)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("₹%s reward allotted successfully!", reward.Amount.StringFixed(2)),
		"reward":  reward,
	})
}

func (ctl *Controller) UpdateRewardStatus(c *gin.Context) {
	rewardID, ok := objectIDParam(c, "id", "reward")
	if !ok {
		return
	}
	var input struct {
		Status           string `json:"status" binding:"required"`
		PaymentReference string `json:"payment_reference"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	actor := ctl.currentUser(ctx, c)
	if actor == nil {
		return
	}
	reward, err := ctl.Ledger.UpdateRewardStatus(ctx, actor, rewardID, input.Status, input.PaymentReference)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Reward status updated to %s!", reward.Status),
		"reward":  reward,
	})
}

// ReconcileRewards recomputes a user's cached reward total.
func (ctl *Controller) ReconcileRewards(c *gin.Context) {
	userID, ok := objectIDParam(c, "id", "user")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	actor := ctl.currentUser(ctx, c)
	if actor == nil {
		return
	}
	user, err := ctl.Ledger.ReconcileTotalRewards(ctx, actor, userID)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userResponse(user)})
}
