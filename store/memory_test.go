package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"civicbounty-be/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newUser(t *testing.T, s *MemoryStore, username string) *models.User {
	t.Helper()
	u := models.NewUser(username, username+"@example.com", "hash", models.RoleCitizen, epoch)
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newIssue(t *testing.T, s *MemoryStore, reporter primitive.ObjectID, created time.Time) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		Title:        "Overflowing drain",
		Description:  "drain overflowing after rain",
		Category:     "Water",
		Location:     "Main St",
		Status:       models.Pending,
		Priority:     models.PriorityMedium,
		ReportedBy:   reporter,
		BountyAmount: decimal.Zero,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	require.NoError(t, s.InsertIssue(context.Background(), issue))
	return issue
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "asha")

	dup := models.NewUser("asha", "x@example.com", "hash", models.RoleCitizen, epoch)
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrDuplicate)

	got, err := s.GetUserByUsername(ctx, "asha")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []string{}, got.Profile.Badges)

	_, err = s.GetUser(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := s.IncrementPoints(ctx, u.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.Profile.Points)

	require.NoError(t, s.AddBadges(ctx, u.ID, []string{"First Fix"}))
	require.NoError(t, s.AddBadges(ctx, u.ID, []string{"First Fix", "Hero"}))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"First Fix", "Hero"}, got.Profile.Badges)

	require.NoError(t, s.AdjustTotalRewards(ctx, u.ID, decimal.RequireFromString("12.50")))
	require.NoError(t, s.AdjustTotalRewards(ctx, u.ID, decimal.RequireFromString("-2.50")))
	got, _ = s.GetUser(ctx, u.ID)
	assert.True(t, got.Profile.TotalRewards.Equal(decimal.NewFromInt(10)))

	require.NoError(t, s.SetRole(ctx, u.ID, models.RoleStaff))
	staff, err := s.ListUsers(ctx, models.RoleStaff)
	require.NoError(t, err)
	assert.Len(t, staff, 1)

	assert.ErrorIs(t, s.SetRole(ctx, primitive.NewObjectID(), models.RoleStaff), ErrNotFound)
}

func TestMemoryStore_ReturnedUserIsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "asha")
	require.NoError(t, s.AddBadges(ctx, u.ID, []string{"First Fix"}))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	got.Profile.Badges[0] = "mutated"

	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "First Fix", again.Profile.Badges[0])
}

func TestMemoryStore_TopByPoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newUser(t, s, "a")
	b := newUser(t, s, "b")
	c := newUser(t, s, "c")
	_, _ = s.IncrementPoints(ctx, a.ID, 5)
	_, _ = s.IncrementPoints(ctx, b.ID, 20)
	_, _ = s.IncrementPoints(ctx, c.ID, 10)

	top, err := s.TopByPoints(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Username)
	assert.Equal(t, "c", top[1].Username)
}

func TestMemoryStore_Categories(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertCategory(ctx, &models.Category{Name: "Water", Icon: "drop"}))
	require.NoError(t, s.UpsertCategory(ctx, &models.Category{Name: "Road", Icon: "road"}))
	require.NoError(t, s.UpsertCategory(ctx, &models.Category{Name: "Water", Icon: "droplet"}))

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Road", cats[0].Name)
	assert.Equal(t, "droplet", cats[1].Icon)

	_, err = s.GetCategoryByName(ctx, "Parks")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListIssuesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser(t, s, "asha")
	older := newIssue(t, s, u.ID, epoch)
	newer := newIssue(t, s, u.ID, epoch.Add(time.Hour))
	other := newIssue(t, s, primitive.NewObjectID(), epoch.Add(2*time.Hour))

	issues, err := s.ListIssues(ctx, IssueFilter{ReportedBy: &u.ID})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, newer.ID, issues[0].ID)
	assert.Equal(t, older.ID, issues[1].ID)

	published := true
	_, err = s.UpdateIssue(ctx, other.ID, IssueGuard{}, IssueUpdate{Published: &published})
	require.NoError(t, err)
	n, err := s.CountIssues(ctx, IssueFilter{PublishedOnly: true, Statuses: []models.IssueStatus{models.Pending}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	byStatus, err := s.CountIssuesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), byStatus[models.Pending])
	byCategory, err := s.CountIssuesByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), byCategory["Water"])
}

func TestMemoryStore_UpdateIssueGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issue := newIssue(t, s, primitive.NewObjectID(), epoch)
	fixer := primitive.NewObjectID()
	inProgress := models.InProgress

	_, err := s.UpdateIssue(ctx, issue.ID,
		IssueGuard{Statuses: []models.IssueStatus{models.Pending}, Published: true},
		IssueUpdate{Status: &inProgress, AcceptedBy: &fixer})
	assert.ErrorIs(t, err, ErrConflict, "unpublished issue fails the guard")

	_, err = s.UpdateIssue(ctx, primitive.NewObjectID(), IssueGuard{}, IssueUpdate{Status: &inProgress})
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := s.UpdateIssue(ctx, issue.ID,
		IssueGuard{Statuses: []models.IssueStatus{models.Pending}},
		IssueUpdate{Status: &inProgress, AcceptedBy: &fixer, UpdatedAt: epoch.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, models.InProgress, updated.Status)
	assert.True(t, updated.IsAcceptedBy(fixer))
	assert.Equal(t, epoch.Add(time.Minute), updated.UpdatedAt)
}

func TestMemoryStore_UpdateIssueSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issue := newIssue(t, s, primitive.NewObjectID(), epoch)
	inProgress := models.InProgress

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fixer := primitive.NewObjectID()
			_, err := s.UpdateIssue(ctx, issue.ID,
				IssueGuard{Statuses: []models.IssueStatus{models.Pending}},
				IssueUpdate{Status: &inProgress, AcceptedBy: &fixer})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_Rewards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	user := primitive.NewObjectID()

	first := &models.MonetaryReward{User: user, Amount: decimal.NewFromInt(100), Reason: "a", Status: models.RewardApproved, AllottedAt: epoch}
	second := &models.MonetaryReward{User: user, Amount: decimal.RequireFromString("25.50"), Reason: "b", Status: models.RewardPending, AllottedAt: epoch.Add(time.Hour)}
	require.NoError(t, s.InsertReward(ctx, first))
	require.NoError(t, s.InsertReward(ctx, second))
	require.NoError(t, s.InsertReward(ctx, &models.MonetaryReward{User: primitive.NewObjectID(), Amount: decimal.NewFromInt(7), Status: models.RewardApproved, AllottedAt: epoch}))

	list, err := s.ListRewards(ctx, RewardFilter{User: &user})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	sum, err := s.SumRewards(ctx, user, []models.RewardStatus{models.RewardApproved, models.RewardPaid})
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(100)))

	_, err = s.SwapRewardStatus(ctx, second.ID, models.RewardApproved, RewardStatusUpdate{Status: models.RewardPaid})
	assert.ErrorIs(t, err, ErrConflict)

	paidAt := epoch.Add(2 * time.Hour)
	ref := "UTR-1"
	paid, err := s.SwapRewardStatus(ctx, first.ID, models.RewardApproved, RewardStatusUpdate{Status: models.RewardPaid, PaidAt: &paidAt, PaymentReference: &ref})
	require.NoError(t, err)
	assert.Equal(t, models.RewardPaid, paid.Status)
	assert.Equal(t, "UTR-1", paid.PaymentReference)
	require.NotNil(t, paid.PaidAt)

	_, err = s.SwapRewardStatus(ctx, primitive.NewObjectID(), models.RewardPending, RewardStatusUpdate{Status: models.RewardApproved})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PointsAwardsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	user := primitive.NewObjectID()
	first := &models.PointsAward{User: user, Points: 10, EarnedAt: epoch}
	second := &models.PointsAward{User: user, Points: 10, EarnedAt: epoch.Add(time.Hour)}
	require.NoError(t, s.InsertPointsAward(ctx, first))
	require.NoError(t, s.InsertPointsAward(ctx, second))

	awards, err := s.ListPointsAwards(ctx, user)
	require.NoError(t, err)
	require.Len(t, awards, 2)
	assert.Equal(t, second.ID, awards[0].ID)
}

func TestMemoryStore_IssueCreditsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	user := primitive.NewObjectID()
	issue := primitive.NewObjectID()
	staff := primitive.NewObjectID()

	require.NoError(t, s.InsertPointsAward(ctx, &models.PointsAward{User: user, Issue: &issue, Points: 10, EarnedAt: epoch}))
	err := s.InsertPointsAward(ctx, &models.PointsAward{User: user, Issue: &issue, Points: 10, EarnedAt: epoch})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, s.InsertPointsAward(ctx, &models.PointsAward{User: user, Points: 10, EarnedAt: epoch}))

	grant := func(allottedBy *primitive.ObjectID) *models.MonetaryReward {
		return &models.MonetaryReward{User: user, Issue: &issue, Amount: decimal.NewFromInt(50), Reason: "bounty",
			Status: models.RewardApproved, AllottedBy: allottedBy, AllottedAt: epoch}
	}
	require.NoError(t, s.InsertReward(ctx, grant(nil)))
	assert.ErrorIs(t, s.InsertReward(ctx, grant(nil)), ErrDuplicate)
	require.NoError(t, s.InsertReward(ctx, grant(&staff)))

	system, err := s.ListRewards(ctx, RewardFilter{Issue: &issue, SystemOnly: true})
	require.NoError(t, err)
	require.Len(t, system, 1)
	assert.Nil(t, system[0].AllottedBy)

	all, err := s.ListRewards(ctx, RewardFilter{Issue: &issue})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_UpdateIssueResolvedByGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixer := primitive.NewObjectID()
	issue := &models.Issue{Title: "Pothole", Status: models.Resolved, Published: true, AcceptedBy: &fixer, ResolvedBy: &fixer}
	require.NoError(t, s.InsertIssue(ctx, issue))

	inProgress := models.InProgress
	other := primitive.NewObjectID()
	_, err := s.UpdateIssue(ctx, issue.ID,
		IssueGuard{Statuses: []models.IssueStatus{models.Resolved}, ResolvedBy: &other},
		IssueUpdate{Status: &inProgress, ClearResolvedBy: true})
	assert.ErrorIs(t, err, ErrConflict)

	reopened, err := s.UpdateIssue(ctx, issue.ID,
		IssueGuard{Statuses: []models.IssueStatus{models.Resolved}, ResolvedBy: &fixer},
		IssueUpdate{Status: &inProgress, ClearResolvedBy: true})
	require.NoError(t, err)
	assert.Equal(t, models.InProgress, reopened.Status)
	assert.Nil(t, reopened.ResolvedBy)
	assert.True(t, reopened.IsAcceptedBy(fixer))
}
