package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleCitizen Role = "Citizen"
	RoleStaff   Role = "Staff"
	RoleAdmin   Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for roles that may triage issues and manage rewards.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Profile holds the gamification state of a user. It is always written
// together with its user.
type Profile struct {
	Points       int             `bson:"points" json:"points"`
	TotalRewards decimal.Decimal `bson:"totalRewards" json:"totalRewards"`
	Badges       []string        `bson:"badges" json:"badges"`
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string             `bson:"username" json:"username"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Role      Role               `bson:"role" json:"role"`
	Profile   Profile            `bson:"profile" json:"profile"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewUser builds a user with an empty profile.
func NewUser(username, email, password string, role Role, now time.Time) *User {
	return &User{
		ID:       primitive.NewObjectID(),
		Username: username,
		Email:    email,
		Password: password,
		Role:     role,
		Profile: Profile{
			TotalRewards: decimal.Zero,
			Badges:       []string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}

// HasBadge reports whether the profile already carries the named badge.
func (p Profile) HasBadge(name string) bool {
	for _, b := range p.Badges {
		if b == name {
			return true
		}
	}
	return false
}
