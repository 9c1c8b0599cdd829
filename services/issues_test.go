package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"civicbounty-be/models"
	"civicbounty-be/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/mock/gomock"
)

func ptr[T any](v T) *T { return &v }

func TestIssueService_Report(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")

	issue := f.report(t, citizen)

	assert.Equal(t, models.Pending, issue.Status)
	assert.Equal(t, models.PriorityHigh, issue.Priority)
	assert.Equal(t, "Sanitation", issue.Category)
	assert.Equal(t, "5th Street", issue.Location)
	assert.Equal(t, "Gutter", issue.AICategory)
	assert.Equal(t, citizen.ID, issue.ReportedBy)
	assert.False(t, issue.Published)
	assert.True(t, issue.BountyAmount.IsZero())
	require.NotNil(t, issue.ImageURL)
	assert.Equal(t, "/uploads/issues/drain.jpg", *issue.ImageURL)
	require.NotNil(t, issue.PredictedResolutionTime)
	assert.Equal(t, issue.CreatedAt.Add(3*24*time.Hour), *issue.PredictedResolutionTime)

	stored, err := f.store.GetIssue(f.ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.Title, stored.Title)
}

func TestIssueService_ReportLocation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *ReportInput)
		location string
		hasGPS   bool
	}{
		{
			name: "gps",
			mutate: func(in *ReportInput) {
				in.UseCurrentLocation = true
				in.Latitude = ptr(12.9716)
				in.Longitude = ptr(77.5946)
			},
			location: "GPS: 12.9716, 77.5946",
			hasGPS:   true,
		},
		{
			name: "gps requested without coordinates falls back to address",
			mutate: func(in *ReportInput) {
				in.UseCurrentLocation = true
			},
			location: "5th Street",
		},
		{
			name: "gps requested with nothing",
			mutate: func(in *ReportInput) {
				in.UseCurrentLocation = true
				in.ManualAddress = ""
			},
			location: "Location not provided",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			citizen := f.citizen(t, "asha")
			in := reportInput()
			tt.mutate(&in)

			f.images.EXPECT().Save(gomock.Any(), "issues", in.Image).Return("/uploads/issues/a.jpg", nil)
			issue, err := f.issues.Report(f.ctx, citizen, in)
			require.NoError(t, err)
			assert.Equal(t, tt.location, issue.Location)
			assert.Equal(t, tt.hasGPS, issue.Latitude != nil && issue.Longitude != nil)
		})
	}
}

func TestIssueService_ReportValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *ReportInput)
		field  string
	}{
		{"no location", func(in *ReportInput) { in.ManualAddress = "" }, "location"},
		{"no image", func(in *ReportInput) { in.Image = nil }, "image"},
		{"no title", func(in *ReportInput) { in.Title = "  " }, "title"},
		{"no description", func(in *ReportInput) { in.Description = "" }, "description"},
		{"no category", func(in *ReportInput) { in.Category = "" }, "category"},
		{"unknown category", func(in *ReportInput) { in.Category = "Parks" }, "category"},
		{"bad priority", func(in *ReportInput) { in.Priority = "Urgent" }, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			citizen := f.citizen(t, "asha")
			in := reportInput()
			tt.mutate(&in)

			_, err := f.issues.Report(f.ctx, citizen, in)
			requireValidationError(t, err, tt.field)

			n, err := f.store.CountIssues(f.ctx, store.IssueFilter{})
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestIssueService_ReportMissingLocationMessage(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	in := reportInput()
	in.ManualAddress = ""

	_, err := f.issues.Report(f.ctx, citizen, in)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Please either use your current location or enter an address manually.", vErr.Message)
}

func TestIssueService_ReportDefaultsPriority(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	in := reportInput()
	in.Priority = ""

	f.images.EXPECT().Save(gomock.Any(), "issues", gomock.Any()).Return("/uploads/issues/a.jpg", nil)
	issue, err := f.issues.Report(f.ctx, citizen, in)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, issue.Priority)
	assert.Equal(t, issue.CreatedAt.Add(7*24*time.Hour), *issue.PredictedResolutionTime)
}

func TestIssueService_ReportRequiresCitizen(t *testing.T) {
	f := newFixture(t)
	staff := f.staff(t, "staff1")

	_, err := f.issues.Report(f.ctx, staff, reportInput())
	authErr := requireAuthorizationError(t, err)
	assert.Equal(t, StaffDashboardPage, authErr.Redirect)

	_, err = f.issues.Report(f.ctx, nil, reportInput())
	authErr = requireAuthorizationError(t, err)
	assert.Equal(t, LoginPage, authErr.Redirect)
}

func TestIssueService_ReportRemovesImageWhenInsertFails(t *testing.T) {
	f := newFixtureWithStore(t, &failingInsertStore{MemoryStore: store.NewMemoryStore()})
	citizen := f.citizen(t, "asha")

	f.images.EXPECT().Save(gomock.Any(), "issues", gomock.Any()).Return("/uploads/issues/a.jpg", nil)
	f.images.EXPECT().Delete(gomock.Any(), "/uploads/issues/a.jpg").Return(nil)

	_, err := f.issues.Report(f.ctx, citizen, reportInput())
	assert.Error(t, err)
}

type failingInsertStore struct {
	*store.MemoryStore
}

func (s *failingInsertStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	return errors.New("disk full")
}

func TestIssueService_Publish(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	staff := f.staff(t, "staff1")
	issue := f.report(t, citizen)

	published, err := f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString("500"))
	require.NoError(t, err)
	assert.True(t, published.Published)
	assert.Equal(t, models.Pending, published.Status)
	assertDecimal(t, "500", published.BountyAmount)

	again, err := f.issues.Publish(f.ctx, staff, issue.ID, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, again.Published)
	assert.True(t, again.BountyAmount.IsZero())

	_, err = f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString("-1"))
	requireValidationError(t, err, "bounty_amount")

	_, err = f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString("1.005"))
	requireValidationError(t, err, "bounty_amount")

	_, err = f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString("1000000"))
	requireValidationError(t, err, "bounty_amount")

	capped, err := f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString("999999.99"))
	require.NoError(t, err)
	assertDecimal(t, "999999.99", capped.BountyAmount)

	_, err = f.issues.Publish(f.ctx, staff, primitive.NewObjectID(), decimal.Zero)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIssueService_Accept(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	other := f.citizen(t, "meena")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "0")

	accepted, ok, err := f.issues.Accept(f.ctx, fixer, issue.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.InProgress, accepted.Status)
	assert.True(t, accepted.IsAcceptedBy(fixer.ID))

	again, ok, err := f.issues.Accept(f.ctx, other, issue.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.InProgress, again.Status)
	assert.True(t, again.IsAcceptedBy(fixer.ID))
}

func TestIssueService_AcceptUnpublished(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	issue := f.report(t, reporter)

	_, _, err := f.issues.Accept(f.ctx, reporter, issue.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = f.issues.Accept(f.ctx, nil, issue.ID)
	authErr := requireAuthorizationError(t, err)
	assert.Equal(t, "Please login to accept issues.", authErr.Message)
}

func TestIssueService_AcceptConcurrently(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "0")

	fixers := []*models.User{f.citizen(t, "ravi"), f.citizen(t, "meena"), f.citizen(t, "john")}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, u := range fixers {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			_, ok, err := f.issues.Accept(f.ctx, u, issue.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIssueService_ResolveWithBounty(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "500")

	_, _, err := f.issues.Accept(f.ctx, fixer, issue.ID)
	require.NoError(t, err)

	proof := image("fixed.png")
	f.images.EXPECT().Save(gomock.Any(), "proofs", proof).Return("/uploads/proofs/fixed.png", nil)

	result, err := f.issues.Resolve(f.ctx, fixer, issue.ID, proof)
	require.NoError(t, err)

	assert.Equal(t, models.Resolved, result.Issue.Status)
	require.NotNil(t, result.Issue.ResolvedBy)
	assert.Equal(t, fixer.ID, *result.Issue.ResolvedBy)
	assert.Equal(t, "/uploads/proofs/fixed.png", *result.Issue.ImageURL)
	assert.Equal(t, 10, result.PointsAwarded)

	require.NotNil(t, result.Reward)
	assert.Equal(t, models.RewardApproved, result.Reward.Status)
	assertDecimal(t, "500", result.Reward.Amount)
	assert.True(t, result.Reward.SystemGranted())
	assert.Equal(t, "Automatically awarded for resolving issue: Blocked drain", result.Reward.Reason)
	require.NotNil(t, result.Reward.Issue)
	assert.Equal(t, issue.ID, *result.Reward.Issue)

	profile := f.reload(t, fixer).Profile
	assert.Equal(t, 10, profile.Points)
	assertDecimal(t, "500", profile.TotalRewards)
	assert.Equal(t, []string{"First Fix"}, profile.Badges)

	awards, err := f.store.ListPointsAwards(f.ctx, fixer.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, 10, awards[0].Points)
}

func TestIssueService_ResolveWithoutBounty(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "0")
	_, _, err := f.issues.Accept(f.ctx, fixer, issue.ID)
	require.NoError(t, err)

	f.images.EXPECT().Save(gomock.Any(), "proofs", gomock.Any()).Return("/uploads/proofs/p.jpg", nil)
	result, err := f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	require.NoError(t, err)
	assert.Nil(t, result.Reward)

	rewards, err := f.store.ListRewards(f.ctx, store.RewardFilter{User: &fixer.ID})
	require.NoError(t, err)
	assert.Empty(t, rewards)
	assert.Equal(t, 10, f.reload(t, fixer).Profile.Points)
}

func TestIssueService_ResolveGuards(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	stranger := f.citizen(t, "meena")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "100")

	// not accepted by anyone yet
	_, err := f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	authErr := requireAuthorizationError(t, err)
	assert.Equal(t, PublicBoardPage, authErr.Redirect)

	_, _, err = f.issues.Accept(f.ctx, fixer, issue.ID)
	require.NoError(t, err)

	_, err = f.issues.Resolve(f.ctx, stranger, issue.ID, image("p.jpg"))
	requireAuthorizationError(t, err)

	_, err = f.issues.Resolve(f.ctx, fixer, issue.ID, nil)
	requireValidationError(t, err, "proof")

	_, err = f.issues.Resolve(f.ctx, nil, issue.ID, image("p.jpg"))
	requireAuthorizationError(t, err)

	f.images.EXPECT().Save(gomock.Any(), "proofs", gomock.Any()).Return("/uploads/proofs/p.jpg", nil)
	_, err = f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	require.NoError(t, err)

	// a second resolve must not pay twice
	_, err = f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	profile := f.reload(t, fixer).Profile
	assert.Equal(t, 10, profile.Points)
	assertDecimal(t, "100", profile.TotalRewards)
	assert.Empty(t, f.reload(t, stranger).Profile.Badges)
}

// flakyCreditStore fails point increments or reward inserts while the
// matching flag is set.
type flakyCreditStore struct {
	*store.MemoryStore
	failPoints  bool
	failRewards bool
}

func (s *flakyCreditStore) IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int) (*models.User, error) {
	if s.failPoints {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.IncrementPoints(ctx, id, delta)
}

func (s *flakyCreditStore) InsertReward(ctx context.Context, reward *models.MonetaryReward) error {
	if s.failRewards {
		return errors.New("connection reset")
	}
	return s.MemoryStore.InsertReward(ctx, reward)
}

func TestIssueService_ResolveRollsBackWhenCreditFails(t *testing.T) {
	tests := []struct {
		name           string
		failPoints     bool
		failRewards    bool
		pointsAfterErr int
		retryPoints    int
	}{
		{name: "points", failPoints: true, pointsAfterErr: 0, retryPoints: 10},
		{name: "bounty", failRewards: true, pointsAfterErr: 10, retryPoints: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyCreditStore{MemoryStore: store.NewMemoryStore()}
			f := newFixtureWithStore(t, flaky)
			reporter := f.citizen(t, "asha")
			fixer := f.citizen(t, "ravi")
			staff := f.staff(t, "staff1")
			issue := f.publishedIssue(t, reporter, staff, "500")
			_, _, err := f.issues.Accept(f.ctx, fixer, issue.ID)
			require.NoError(t, err)

			flaky.failPoints, flaky.failRewards = tt.failPoints, tt.failRewards
			f.images.EXPECT().Save(gomock.Any(), "proofs", gomock.Any()).Return("/uploads/proofs/first.jpg", nil)
			f.images.EXPECT().Delete(gomock.Any(), "/uploads/proofs/first.jpg").Return(nil)

			_, err = f.issues.Resolve(f.ctx, fixer, issue.ID, image("first.jpg"))
			require.Error(t, err)

			reopened, err := f.store.GetIssue(f.ctx, issue.ID)
			require.NoError(t, err)
			assert.Equal(t, models.InProgress, reopened.Status)
			assert.Nil(t, reopened.ResolvedBy)
			assert.True(t, reopened.IsAcceptedBy(fixer.ID))
			require.NotNil(t, reopened.ImageURL)
			assert.Equal(t, "/uploads/issues/drain.jpg", *reopened.ImageURL)

			rewards, err := f.store.ListRewards(f.ctx, store.RewardFilter{User: &fixer.ID})
			require.NoError(t, err)
			assert.Empty(t, rewards)
			assert.Equal(t, tt.pointsAfterErr, f.reload(t, fixer).Profile.Points)

			flaky.failPoints, flaky.failRewards = false, false
			f.images.EXPECT().Save(gomock.Any(), "proofs", gomock.Any()).Return("/uploads/proofs/second.jpg", nil)

			result, err := f.issues.Resolve(f.ctx, fixer, issue.ID, image("second.jpg"))
			require.NoError(t, err)
			assert.Equal(t, models.Resolved, result.Issue.Status)
			assert.Equal(t, tt.retryPoints, result.PointsAwarded)
			require.NotNil(t, result.Reward)

			profile := f.reload(t, fixer).Profile
			assert.Equal(t, 10, profile.Points)
			assertDecimal(t, "500", profile.TotalRewards)
			assert.Equal(t, []string{"First Fix"}, profile.Badges)

			rewards, err = f.store.ListRewards(f.ctx, store.RewardFilter{User: &fixer.ID})
			require.NoError(t, err)
			assert.Len(t, rewards, 1)
		})
	}
}

func TestIssueService_ResolveAgainAfterOverridePaysOnce(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	staff := f.staff(t, "staff1")
	issue := f.publishedIssue(t, reporter, staff, "500")
	_, _, err := f.issues.Accept(f.ctx, fixer, issue.ID)
	require.NoError(t, err)

	f.images.EXPECT().Save(gomock.Any(), "proofs", gomock.Any()).Return("/uploads/proofs/p.jpg", nil).Times(2)
	_, err = f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	require.NoError(t, err)

	reopened, err := f.issues.UpdateStatus(f.ctx, staff, issue.ID, "In Progress")
	require.NoError(t, err)
	assert.True(t, reopened.IsAcceptedBy(fixer.ID))

	again, err := f.issues.Resolve(f.ctx, fixer, issue.ID, image("p.jpg"))
	require.NoError(t, err)
	assert.Equal(t, models.Resolved, again.Issue.Status)
	assert.Zero(t, again.PointsAwarded)
	assert.Nil(t, again.Reward)

	profile := f.reload(t, fixer).Profile
	assert.Equal(t, 10, profile.Points)
	assertDecimal(t, "500", profile.TotalRewards)

	rewards, err := f.store.ListRewards(f.ctx, store.RewardFilter{User: &fixer.ID})
	require.NoError(t, err)
	assert.Len(t, rewards, 1)
	awards, err := f.store.ListPointsAwards(f.ctx, fixer.ID)
	require.NoError(t, err)
	assert.Len(t, awards, 1)
}

func TestIssueService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	staff := f.staff(t, "staff1")
	issue := f.report(t, citizen)

	updated, err := f.issues.UpdateStatus(f.ctx, staff, issue.ID, "Resolved")
	require.NoError(t, err)
	assert.Equal(t, models.Resolved, updated.Status)
	require.NotNil(t, updated.ResolvedBy)
	assert.Equal(t, staff.ID, *updated.ResolvedBy)

	// the override may move backwards
	updated, err = f.issues.UpdateStatus(f.ctx, staff, issue.ID, "Pending")
	require.NoError(t, err)
	assert.Equal(t, models.Pending, updated.Status)

	_, err = f.issues.UpdateStatus(f.ctx, staff, issue.ID, "Closed")
	requireValidationError(t, err, "status")

	assert.Zero(t, f.reload(t, staff).Profile.Points)
}

func TestIssueService_StaffOperationsRejectCitizens(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	staff := f.staff(t, "staff1")
	issue := f.report(t, citizen)

	_, err := f.issues.UpdateStatus(f.ctx, citizen, issue.ID, "Resolved")
	authErr := requireAuthorizationError(t, err)
	assert.Equal(t, CitizenDashboardPage, authErr.Redirect)

	_, err = f.issues.Publish(f.ctx, citizen, issue.ID, decimal.NewFromInt(100))
	requireAuthorizationError(t, err)

	_, err = f.ledger.AllotReward(f.ctx, citizen, citizen.ID, nil, decimal.NewFromInt(50), "self reward")
	requireAuthorizationError(t, err)

	reward, err := f.ledger.AllotReward(f.ctx, staff, citizen.ID, nil, decimal.NewFromInt(50), "cleanup drive")
	require.NoError(t, err)
	_, err = f.ledger.UpdateRewardStatus(f.ctx, citizen, reward.ID, "Rejected", "")
	requireAuthorizationError(t, err)

	stored, err := f.store.GetIssue(f.ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Pending, stored.Status)
	assert.False(t, stored.Published)
	assert.True(t, stored.BountyAmount.IsZero())

	storedReward, err := f.store.GetReward(f.ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RewardApproved, storedReward.Status)

	rewards, err := f.store.ListRewards(f.ctx, store.RewardFilter{})
	require.NoError(t, err)
	assert.Len(t, rewards, 1)
	assertDecimal(t, "50", f.reload(t, citizen).Profile.TotalRewards)
}

func TestIssueService_Boards(t *testing.T) {
	f := newFixture(t)
	reporter := f.citizen(t, "asha")
	fixer := f.citizen(t, "ravi")
	staff := f.staff(t, "staff1")

	hidden := f.report(t, reporter)
	open := f.publishedIssue(t, reporter, staff, "0")
	taken := f.publishedIssue(t, reporter, staff, "0")
	done := f.publishedIssue(t, reporter, staff, "0")

	_, _, err := f.issues.Accept(f.ctx, fixer, taken.ID)
	require.NoError(t, err)
	_, err = f.issues.UpdateStatus(f.ctx, staff, done.ID, "Resolved")
	require.NoError(t, err)

	board, err := f.issues.PublicBoard(f.ctx)
	require.NoError(t, err)
	var ids []primitive.ObjectID
	for _, i := range board {
		ids = append(ids, i.ID)
	}
	assert.ElementsMatch(t, []primitive.ObjectID{open.ID, taken.ID}, ids)

	mine, err := f.issues.CitizenDashboard(f.ctx, reporter)
	require.NoError(t, err)
	require.Len(t, mine, 4)
	assert.Equal(t, done.ID, mine[0].ID)
	assert.Equal(t, hidden.ID, mine[3].ID)

	theirs, err := f.issues.CitizenDashboard(f.ctx, fixer)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.issues.CitizenDashboard(f.ctx, staff)
	requireAuthorizationError(t, err)

	stats, err := f.issues.HomeStats(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalIssues)
	assert.Equal(t, int64(1), stats.ResolvedIssues)
	assert.Equal(t, int64(3), stats.ActiveUsers)
}

func TestIssueService_StaffDashboard(t *testing.T) {
	f := newFixture(t)
	citizen := f.citizen(t, "asha")
	staff := f.staff(t, "staff1")
	first := f.report(t, citizen)
	f.report(t, citizen)
	_, err := f.issues.UpdateStatus(f.ctx, staff, first.ID, "In Progress")
	require.NoError(t, err)

	dash, err := f.issues.StaffDashboard(f.ctx, staff, "", "")
	require.NoError(t, err)
	assert.Len(t, dash.Issues, 2)
	assert.Equal(t, int64(2), dash.TotalIssues)
	assert.Equal(t, map[models.IssueStatus]int64{
		models.Pending:    1,
		models.InProgress: 1,
		models.Resolved:   0,
	}, dash.StatusCounts)
	require.Len(t, dash.CategoryCounts, len(models.DefaultCategories))
	for _, c := range dash.CategoryCounts {
		if c.Name == "Sanitation" {
			assert.Equal(t, int64(2), c.Count)
		} else {
			assert.Zero(t, c.Count, c.Name)
		}
	}

	filtered, err := f.issues.StaffDashboard(f.ctx, staff, "Sanitation", "In Progress")
	require.NoError(t, err)
	require.Len(t, filtered.Issues, 1)
	assert.Equal(t, first.ID, filtered.Issues[0].ID)
	assert.Equal(t, int64(2), filtered.TotalIssues)

	empty, err := f.issues.StaffDashboard(f.ctx, staff, "Road", "")
	require.NoError(t, err)
	assert.Empty(t, empty.Issues)

	_, err = f.issues.StaffDashboard(f.ctx, staff, "", "Closed")
	requireValidationError(t, err, "status")

	_, err = f.issues.StaffDashboard(f.ctx, citizen, "", "")
	requireAuthorizationError(t, err)
}

func TestIssueService_Leaderboard(t *testing.T) {
	f := newFixture(t)
	var users []*models.User
	for i, name := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11", "a12"} {
		u := f.citizen(t, name)
		_, err := f.store.IncrementPoints(f.ctx, u.ID, (i+1)*5)
		require.NoError(t, err)
		users = append(users, u)
	}

	board, err := f.issues.Leaderboard(f.ctx)
	require.NoError(t, err)
	require.Len(t, board, 10)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "a12", board[0].Username)
	assert.Equal(t, 60, board[0].Points)
	for i := 1; i < len(board); i++ {
		assert.GreaterOrEqual(t, board[i-1].Points, board[i].Points)
	}
	assert.Equal(t, users[2].ID, board[9].UserID)
}
