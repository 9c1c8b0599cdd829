// Package store persists users, categories, issues and rewards. Every
// guarded transition is a single conditional write so concurrent requests
// cannot both pass the same guard.
package store

import (
	"context"
	"errors"
	"time"

	"civicbounty-be/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrConflict means the row exists but no longer satisfies the guard.
	ErrConflict = errors.New("store: guard not satisfied")
)

// IssueFilter narrows ListIssues and CountIssues. Zero values match everything.
type IssueFilter struct {
	ReportedBy    *primitive.ObjectID
	Category      string
	Statuses      []models.IssueStatus
	PublishedOnly bool
}

// IssueGuard is the precondition checked atomically by UpdateIssue.
type IssueGuard struct {
	Statuses   []models.IssueStatus
	Published  bool
	AcceptedBy *primitive.ObjectID
	ResolvedBy *primitive.ObjectID
}

// IssueUpdate lists the fields UpdateIssue sets. Nil fields are left alone.
type IssueUpdate struct {
	Status       *models.IssueStatus
	Published    *bool
	BountyAmount *decimal.Decimal
	AcceptedBy   *primitive.ObjectID
	ResolvedBy   *primitive.ObjectID
	// ImageURL replaces the image; an empty URL removes it.
	ImageURL  *string
	UpdatedAt time.Time

	// ClearResolvedBy unsets resolved_by when ResolvedBy is nil.
	ClearResolvedBy bool
}

// RewardFilter narrows ListRewards.
type RewardFilter struct {
	User  *primitive.ObjectID
	Issue *primitive.ObjectID
	// SystemOnly keeps rewards with no allotting staff member.
	SystemOnly bool
}

// RewardStatusUpdate is applied by SwapRewardStatus.
type RewardStatusUpdate struct {
	Status           models.RewardStatus
	PaidAt           *time.Time
	PaymentReference *string
}

type UserStore interface {
	// CreateUser writes the user and its profile together.
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// ListUsers returns users with the given role, or everyone for "".
	ListUsers(ctx context.Context, role models.Role) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error
	IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int) (*models.User, error)
	// AddBadges appends the badges the profile does not hold yet, in order.
	AddBadges(ctx context.Context, id primitive.ObjectID, badges []string) error
	AdjustTotalRewards(ctx context.Context, id primitive.ObjectID, delta decimal.Decimal) error
	SetTotalRewards(ctx context.Context, id primitive.ObjectID, total decimal.Decimal) error
	TopByPoints(ctx context.Context, limit int) ([]models.User, error)
	// InsertPointsAward returns ErrDuplicate for a second award to the same
	// user for the same issue.
	InsertPointsAward(ctx context.Context, award *models.PointsAward) error
	ListPointsAwards(ctx context.Context, user primitive.ObjectID) ([]models.PointsAward, error)
}

type CategoryStore interface {
	UpsertCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
}

type IssueStore interface {
	InsertIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	// ListIssues returns matching issues, newest first.
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	CountIssues(ctx context.Context, filter IssueFilter) (int64, error)
	CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error)
	CountIssuesByCategory(ctx context.Context) (map[string]int64, error)
	// UpdateIssue applies update only if the stored issue satisfies guard.
	// It returns ErrNotFound for a missing issue and ErrConflict when the
	// guard fails.
	UpdateIssue(ctx context.Context, id primitive.ObjectID, guard IssueGuard, update IssueUpdate) (*models.Issue, error)
}

type RewardStore interface {
	// InsertReward returns ErrDuplicate for a second system grant on the
	// same issue.
	InsertReward(ctx context.Context, reward *models.MonetaryReward) error
	GetReward(ctx context.Context, id primitive.ObjectID) (*models.MonetaryReward, error)
	// ListRewards returns rewards, most recently allotted first.
	ListRewards(ctx context.Context, filter RewardFilter) ([]models.MonetaryReward, error)
	// SwapRewardStatus moves the reward from status `from` to update.Status.
	// ErrConflict is returned when the stored status is no longer `from`.
	SwapRewardStatus(ctx context.Context, id primitive.ObjectID, from models.RewardStatus, update RewardStatusUpdate) (*models.MonetaryReward, error)
	SumRewards(ctx context.Context, user primitive.ObjectID, statuses []models.RewardStatus) (decimal.Decimal, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserStore
	CategoryStore
	IssueStore
	RewardStore
	Close(ctx context.Context) error
}

func statusIn(s models.IssueStatus, set []models.IssueStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Satisfies reports whether the issue passes the guard.
func (g IssueGuard) Satisfies(issue *models.Issue) bool {
	if !statusIn(issue.Status, g.Statuses) {
		return false
	}
	if g.Published && !issue.Published {
		return false
	}
	if g.AcceptedBy != nil && !issue.IsAcceptedBy(*g.AcceptedBy) {
		return false
	}
	if g.ResolvedBy != nil && (issue.ResolvedBy == nil || *issue.ResolvedBy != *g.ResolvedBy) {
		return false
	}
	return true
}

// Matches reports whether the reward passes the filter.
func (f RewardFilter) Matches(r *models.MonetaryReward) bool {
	if f.User != nil && r.User != *f.User {
		return false
	}
	if f.Issue != nil && (r.Issue == nil || *r.Issue != *f.Issue) {
		return false
	}
	if f.SystemOnly && !r.SystemGranted() {
		return false
	}
	return true
}

// sameIssueAward reports whether a and b credit the same user for the same issue.
func sameIssueAward(a, b *models.PointsAward) bool {
	return a.Issue != nil && b.Issue != nil && a.User == b.User && *a.Issue == *b.Issue
}

// sameIssueGrant reports whether a and b are both system grants for the same issue.
func sameIssueGrant(a, b *models.MonetaryReward) bool {
	return a.SystemGranted() && b.SystemGranted() &&
		a.Issue != nil && b.Issue != nil && *a.Issue == *b.Issue
}

// Matches reports whether the issue passes the filter.
func (f IssueFilter) Matches(issue *models.Issue) bool {
	if f.ReportedBy != nil && issue.ReportedBy != *f.ReportedBy {
		return false
	}
	if f.Category != "" && issue.Category != f.Category {
		return false
	}
	if f.PublishedOnly && !issue.Published {
		return false
	}
	return statusIn(issue.Status, f.Statuses)
}

// Apply copies the set fields of the update onto issue.
func (u IssueUpdate) Apply(issue *models.Issue) {
	if u.Status != nil {
		issue.Status = *u.Status
	}
	if u.Published != nil {
		issue.Published = *u.Published
	}
	if u.BountyAmount != nil {
		issue.BountyAmount = *u.BountyAmount
	}
	if u.AcceptedBy != nil {
		id := *u.AcceptedBy
		issue.AcceptedBy = &id
	}
	if u.ResolvedBy != nil {
		id := *u.ResolvedBy
		issue.ResolvedBy = &id
	} else if u.ClearResolvedBy {
		issue.ResolvedBy = nil
	}
	if u.ImageURL != nil {
		url := *u.ImageURL
		issue.ImageURL = &url
		if url == "" {
			issue.ImageURL = nil
		}
	}
	if !u.UpdatedAt.IsZero() {
		issue.UpdatedAt = u.UpdatedAt
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
