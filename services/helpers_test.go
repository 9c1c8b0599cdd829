package services

import (
	"context"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"civicbounty-be/logger"
	"civicbounty-be/models"
	"civicbounty-be/storage/mocks"
	"civicbounty-be/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	ctx        context.Context
	store      store.Store
	images     *mocks.MockImageStore
	accounts   *Accounts
	categories *Categories
	ledger     *Ledger
	issues     *IssueService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, store.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	images := mocks.NewMockImageStore(ctrl)
	log := logger.Discard()
	rules := DefaultRules()
	clock := stepClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	accounts := NewAccounts(s, log)
	accounts.Clock = clock
	categories := NewCategories(s)
	ledger := NewLedger(s, rules, log)
	ledger.Clock = clock
	issues := NewIssueService(s, categories, ledger, images, rules, log)
	issues.Clock = clock

	f := &fixture{
		ctx:        context.Background(),
		store:      s,
		images:     images,
		accounts:   accounts,
		categories: categories,
		ledger:     ledger,
		issues:     issues,
	}
	require.NoError(t, categories.Seed(f.ctx, models.DefaultCategories))
	return f
}

func (f *fixture) citizen(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.accounts.Register(f.ctx, Registration{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) staff(t *testing.T, username string) *models.User {
	t.Helper()
	u, _, err := f.accounts.EnsureStaff(f.ctx, Registration{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	}, models.RoleStaff)
	require.NoError(t, err)
	return u
}

func image(name string) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name}
}

func reportInput() ReportInput {
	return ReportInput{
		Title:         "Blocked drain",
		Description:   "The drain on 5th street overflows when it rains",
		Category:      "Sanitation",
		Priority:      "High",
		ManualAddress: "5th Street",
		Image:         image("drain.jpg"),
	}
}

func (f *fixture) report(t *testing.T, reporter *models.User) *models.Issue {
	t.Helper()
	f.images.EXPECT().Save(gomock.Any(), "issues", gomock.Any()).Return("/uploads/issues/drain.jpg", nil)
	issue, err := f.issues.Report(f.ctx, reporter, reportInput())
	require.NoError(t, err)
	return issue
}

func (f *fixture) publishedIssue(t *testing.T, reporter, staff *models.User, bounty string) *models.Issue {
	t.Helper()
	issue := f.report(t, reporter)
	published, err := f.issues.Publish(f.ctx, staff, issue.ID, decimal.RequireFromString(bounty))
	require.NoError(t, err)
	return published
}

func (f *fixture) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	fresh, err := f.store.GetUser(f.ctx, u.ID)
	require.NoError(t, err)
	return fresh
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func requireAuthorizationError(t *testing.T, err error) *AuthorizationError {
	t.Helper()
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	return authErr
}

func requireValidationError(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, field, vErr.Field)
}
