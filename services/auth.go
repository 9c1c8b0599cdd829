package services

import (
	"slices"

	"civicbounty-be/models"
)

// Client pages an AuthorizationError can redirect to.
const (
	LoginPage            = "/citizen/login"
	StaffLoginPage       = "/staff/login"
	CitizenDashboardPage = "/citizen/dashboard"
	StaffDashboardPage   = "/staff/dashboard"
	PublicBoardPage      = "/public-board"
)

// LandingPage is where a user of the role goes after login.
func LandingPage(role models.Role) string {
	if role.IsStaff() {
		return StaffDashboardPage
	}
	return CitizenDashboardPage
}

// Authorize checks that actor is logged in and holds one of roles. With no
// roles any authenticated actor passes.
func Authorize(actor *models.User, roles ...models.Role) error {
	if actor == nil {
		return &AuthorizationError{Message: "Please login to continue.", Redirect: LoginPage}
	}
	if len(roles) == 0 || slices.Contains(roles, actor.Role) {
		return nil
	}
	return &AuthorizationError{
		Message:  "You do not have permission to perform this action.",
		Redirect: LandingPage(actor.Role),
	}
}

func authorizeStaff(actor *models.User) error {
	return Authorize(actor, models.RoleStaff, models.RoleAdmin)
}
