package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicbounty-be/models"
	"civicbounty-be/store"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const minPasswordLength = 6

// Portal is a login entry point and the roles it admits.
type Portal struct {
	Name  string
	Roles []models.Role
	Page  string
}

var (
	CitizenPortal = Portal{Name: "Citizen", Roles: []models.Role{models.RoleCitizen}, Page: LoginPage}
	StaffPortal   = Portal{Name: "Staff", Roles: []models.Role{models.RoleStaff, models.RoleAdmin}, Page: StaffLoginPage}
)

type Registration struct {
	Username string
	Email    string
	Password string
}

type Accounts struct {
	users store.UserStore
	log   logrus.FieldLogger
	Clock func() time.Time
}

func NewAccounts(users store.UserStore, log logrus.FieldLogger) *Accounts {
	return &Accounts{users: users, log: log, Clock: time.Now}
}

// Register creates a Citizen together with an empty profile.
func (a *Accounts) Register(ctx context.Context, r Registration) (*models.User, error) {
	username := strings.TrimSpace(r.Username)
	email := strings.TrimSpace(r.Email)
	switch {
	case username == "":
		return nil, invalid("username", "Username is required.")
	case email == "" || !strings.Contains(email, "@"):
		return nil, invalid("email", "Enter a valid email address.")
	case len(r.Password) < minPasswordLength:
		return nil, invalid("password", fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}

	user := models.NewUser(username, email, r.Password, models.RoleCitizen, a.Clock())
	if err := user.HashPassword(); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("username", "A user with that username already exists.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	a.log.WithField("user_id", user.ID.Hex()).
		WithField("username", user.Username).
		Info("citizen registered")
	return user, nil
}

// Authenticate checks the credentials and that the user's role may use the
// portal.
func (a *Accounts) Authenticate(ctx context.Context, username, password string, portal Portal) (*models.User, error) {
	user, err := a.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.ComparePassword(password) {
		return nil, ErrInvalidCredentials
	}
	if err := Authorize(user, portal.Roles...); err != nil {
		return nil, &AuthorizationError{
			Message:  fmt.Sprintf("Invalid credentials for %s login.", portal.Name),
			Redirect: portal.Page,
		}
	}
	return user, nil
}

func (a *Accounts) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return a.users.GetUser(ctx, id)
}

// EnsureStaff creates the account if missing, otherwise sets its role.
// The password of an existing account is left unchanged.
func (a *Accounts) EnsureStaff(ctx context.Context, r Registration, role models.Role) (*models.User, bool, error) {
	if !role.IsStaff() {
		return nil, false, invalid("role", fmt.Sprintf("%s is not a staff role.", role))
	}

	existing, err := a.users.GetUserByUsername(ctx, r.Username)
	switch {
	case err == nil:
		if existing.Role != role {
			if err := a.users.SetRole(ctx, existing.ID, role); err != nil {
				return nil, false, fmt.Errorf("set role: %w", err)
			}
			existing.Role = role
		}
		return existing, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	user := models.NewUser(r.Username, r.Email, r.Password, role, a.Clock())
	if err := user.HashPassword(); err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	a.log.WithField("username", user.Username).
		WithField("role", string(role)).
		Info("staff account created")
	return user, true, nil
}
