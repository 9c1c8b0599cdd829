package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"civicbounty-be/models"
	"civicbounty-be/services"

	"github.com/gin-gonic/gin"
)

// formFile returns nil without error when the field is absent.
func formFile(c *gin.Context, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	return fh, err
}

func optionalFloat(c *gin.Context, field string) (*float64, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return &v, nil
}

// checked reads an HTML checkbox, which browsers submit as "on".
func checked(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// resolveMessage names only the credits this resolve paid out; a repeat
// resolve after a staff override pays none.
func resolveMessage(result *services.ResolveResult) string {
	switch {
	case result.PointsAwarded > 0 && result.Reward != nil:
		return fmt.Sprintf("Issue resolved! You earned %d points and ₹%s bounty reward!",
			result.PointsAwarded, result.Reward.Amount.StringFixed(2))
	case result.PointsAwarded > 0:
		return fmt.Sprintf("Issue resolved! You earned %d points.", result.PointsAwarded)
	case result.Reward != nil:
		return fmt.Sprintf("Issue resolved! You earned ₹%s bounty reward!", result.Reward.Amount.StringFixed(2))
	}
	return "Issue resolved!"
}

// Home returns the landing page counters.
func (ctl *Controller) Home(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := ctl.Issues.HomeStats(ctx)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (ctl *Controller) ListCategories(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	categories, err := ctl.Categories.List(ctx)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// PublicBoard lists published issues still open for citizens.
func (ctl *Controller) PublicBoard(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	issues, err := ctl.Issues.PublicBoard(ctx)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

// ReportIssue handles the multipart issue report form.
func (ctl *Controller) ReportIssue(c *gin.Context) {
	var input struct {
		Title              string `form:"title" binding:"max=200"`
		Description        string `form:"description"`
		Category           string `form:"category"`
		Priority           string `form:"priority"`
		UseCurrentLocation string `form:"use_current_location"`
		ManualAddress      string `form:"manual_address" binding:"max=255"`
	}
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lat, err := optionalFloat(c, "latitude")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "latitude"})
		return
	}
	lon, err := optionalFloat(c, "longitude")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "longitude"})
		return
	}
	image, err := formFile(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image upload"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	issue, err := ctl.Issues.Report(ctx, user, services.ReportInput{
		Title:              input.Title,
		Description:        input.Description,
		Category:           input.Category,
		Priority:           input.Priority,
		UseCurrentLocation: checked(input.UseCurrentLocation),
		Latitude:           lat,
		Longitude:          lon,
		ManualAddress:      input.ManualAddress,
		Image:              image,
	})
	if err != nil {
		ctl.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Issue reported successfully! Priority: %s", issue.Priority),
		"issue":   issue,
	})
}

// AcceptIssue claims a published issue for the current user.
func (ctl *Controller) AcceptIssue(c *gin.Context) {
	issueID, ok := objectIDParam(c, "id", "issue")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	issue, accepted, err := ctl.Issues.Accept(ctx, user, issueID)
	if err != nil {
		ctl.respondError(c, err)
		return
	}

	message := fmt.Sprintf("Issue is already %s.", issue.Status)
	if accepted {
		message = "Issue accepted!"
		if issue.HasBounty() {
			message = fmt.Sprintf("Issue accepted! You can earn ₹%s by solving it.", issue.BountyAmount.StringFixed(2))
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  message,
		"accepted": accepted,
		"issue":    issue,
	})
}

// ResolveIssue closes an accepted issue with a proof photo.
func (ctl *Controller) ResolveIssue(c *gin.Context) {
	issueID, ok := objectIDParam(c, "id", "issue")
	if !ok {
		return
	}
	proof, err := formFile(c, "proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid proof upload"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user := ctl.currentUser(ctx, c)
	if user == nil {
		return
	}
	result, err := ctl.Issues.Resolve(ctx, user, issueID, proof)
	if err != nil {
		ctl.respondError(c, err)
		return
	}

	message := resolveMessage(result)
	c.JSON(http.StatusOK, gin.H{
		"message":       message,
		"issue":         result.Issue,
		"pointsAwarded": result.PointsAwarded,
		"reward":        result.Reward,
		"profile":       result.User.Profile,
	})
}
