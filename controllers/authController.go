package controllers

import (
	"net/http"

	"civicbounty-be/models"
	"civicbounty-be/services"
	authUtils "civicbounty-be/utils"

	"github.com/gin-gonic/gin"
)

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"role":      user.Role,
		"profile":   user.Profile,
		"createdAt": user.CreatedAt,
	}
}

// setAuthCookie issues a token for the user, sets it as a cookie and
// returns it for header-based clients.
func (ctl *Controller) setAuthCookie(c *gin.Context, user *models.User) (string, bool) {
	token, err := authUtils.GenerateToken(ctl.Auth.Secret, user.ID.Hex(), ctl.Auth.TokenTTL)
	if err != nil {
		ctl.Log.WithError(err).Error("error generating token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return "", false
	}

	// For production, don't set domain to allow cross-origin cookies
	domain := ctl.Auth.Domain
	if ctl.Auth.Production {
		domain = ""
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     authUtils.CookieName,
		Value:    token,
		MaxAge:   int(ctl.Auth.TokenTTL.Seconds()),
		Path:     "/",
		Domain:   domain,
		Secure:   ctl.Auth.Production,
		HttpOnly: true,
		SameSite: ctl.cookieSameSite(),
	})
	return token, true
}

// cookieSameSite is None only for the Secure production cookie.
func (ctl *Controller) cookieSameSite() http.SameSite {
	if ctl.Auth.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// RegisterUser creates a citizen and logs them in.
func (ctl *Controller) RegisterUser(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required,max=150"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := ctl.Accounts.Register(ctx, services.Registration{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	token, ok := ctl.setAuthCookie(c, user)
	if !ok {
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Registration successful!",
		"user":     userResponse(user),
		"token":    token,
		"redirect": services.LandingPage(user.Role),
	})
}

func (ctl *Controller) login(c *gin.Context, portal services.Portal) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := ctl.Accounts.Authenticate(ctx, input.Username, input.Password, portal)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	token, ok := ctl.setAuthCookie(c, user)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":     userResponse(user),
		"token":    token,
		"redirect": services.LandingPage(user.Role),
	})
}

func (ctl *Controller) CitizenLogin(c *gin.Context) {
	ctl.login(c, services.CitizenPortal)
}

func (ctl *Controller) StaffLogin(c *gin.Context) {
	ctl.login(c, services.StaffPortal)
}

// LogoutUser clears the auth cookie.
func (ctl *Controller) LogoutUser(c *gin.Context) {
	c.SetSameSite(ctl.cookieSameSite())
	c.SetCookie(authUtils.CookieName, "", -1, "/", ctl.Auth.Domain, ctl.Auth.Production, true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}
