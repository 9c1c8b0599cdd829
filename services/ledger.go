package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicbounty-be/metrics"
	"civicbounty-be/models"
	"civicbounty-be/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxAmount is the largest bounty or reward a NUMERIC(8,2) column holds.
var MaxAmount = decimal.RequireFromString("999999.99")

// earningStatuses are the reward statuses counted in a user's total.
var earningStatuses = []models.RewardStatus{models.RewardApproved, models.RewardPaid}

// Ledger credits points and manages monetary rewards.
type Ledger struct {
	store store.Store
	rules Rules
	log   logrus.FieldLogger
	Clock func() time.Time
}

func NewLedger(s store.Store, rules Rules, log logrus.FieldLogger) *Ledger {
	return &Ledger{store: s, rules: rules, log: log, Clock: time.Now}
}

// AwardPoints adds points to the user's profile, records the accrual and
// grants any badge whose threshold is now met.
func (l *Ledger) AwardPoints(ctx context.Context, userID primitive.ObjectID, points int, issue *primitive.ObjectID) (*models.User, error) {
	if points <= 0 {
		return nil, invalid("points", "Points must be positive.")
	}
	user, err := l.store.IncrementPoints(ctx, userID, points)
	if err != nil {
		return nil, fmt.Errorf("increment points: %w", err)
	}
	award := &models.PointsAward{
		User:     userID,
		Issue:    issue,
		Points:   points,
		EarnedAt: l.Clock(),
	}
	if err := l.store.InsertPointsAward(ctx, award); err != nil {
		l.revokePoints(ctx, userID, points)
		return nil, fmt.Errorf("record points award: %w", err)
	}
	if err := l.grantBadges(ctx, user); err != nil {
		return nil, err
	}

	metrics.RecordPointsAwarded(points)
	l.log.WithField("user_id", userID.Hex()).
		WithField("points", points).
		WithField("total_points", user.Profile.Points).
		Info("points awarded")
	return user, nil
}

// AwardIssuePoints credits points for an issue at most once per user. The
// bool is false when the issue had already been credited.
func (l *Ledger) AwardIssuePoints(ctx context.Context, userID, issueID primitive.ObjectID, points int) (*models.User, bool, error) {
	awards, err := l.store.ListPointsAwards(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("list points awards: %w", err)
	}
	for _, a := range awards {
		if a.Issue != nil && *a.Issue == issueID {
			return l.alreadyAwarded(ctx, userID)
		}
	}
	user, err := l.AwardPoints(ctx, userID, points, &issueID)
	if errors.Is(err, store.ErrDuplicate) {
		return l.alreadyAwarded(ctx, userID)
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// alreadyAwarded catches up on badges a failed earlier attempt may have missed.
func (l *Ledger) alreadyAwarded(ctx context.Context, userID primitive.ObjectID) (*models.User, bool, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if err := l.grantBadges(ctx, user); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (l *Ledger) grantBadges(ctx context.Context, user *models.User) error {
	var fresh []string
	for _, b := range l.rules.BadgesFor(user.Profile.Points) {
		if !user.Profile.HasBadge(b) {
			fresh = append(fresh, b)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := l.store.AddBadges(ctx, user.ID, fresh); err != nil {
		return fmt.Errorf("add badges: %w", err)
	}
	user.Profile.Badges = append(user.Profile.Badges, fresh...)
	return nil
}

// revokePoints takes back an increment whose award row was not written.
func (l *Ledger) revokePoints(ctx context.Context, userID primitive.ObjectID, points int) {
	if _, err := l.store.IncrementPoints(context.WithoutCancel(ctx), userID, -points); err != nil {
		l.log.WithError(err).
			WithField("user_id", userID.Hex()).
			WithField("points", points).
			Error("points increment not reverted")
	}
}

// GrantIssueBounty pays the issue's bounty to its resolver as an approved
// system reward, at most once per issue. The bool is false when the bounty
// had already been granted.
func (l *Ledger) GrantIssueBounty(ctx context.Context, userID primitive.ObjectID, issue *models.Issue) (*models.MonetaryReward, bool, error) {
	existing, err := l.issueBounty(ctx, issue.ID)
	if err != nil || existing != nil {
		return existing, false, err
	}
	reward, err := l.GrantReward(ctx, Grant{
		User:   userID,
		Issue:  &issue.ID,
		Amount: issue.BountyAmount,
		Reason: "Automatically awarded for resolving issue: " + issue.Title,
		Status: models.RewardApproved,
	})
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := l.issueBounty(ctx, issue.ID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return reward, true, nil
}

func (l *Ledger) issueBounty(ctx context.Context, issueID primitive.ObjectID) (*models.MonetaryReward, error) {
	rewards, err := l.store.ListRewards(ctx, store.RewardFilter{Issue: &issueID, SystemOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list issue rewards: %w", err)
	}
	if len(rewards) == 0 {
		return nil, nil
	}
	return &rewards[0], nil
}

// Grant describes a new monetary reward. A nil AllottedBy marks a system
// grant; an empty Status means Pending.
type Grant struct {
	User       primitive.ObjectID
	Issue      *primitive.ObjectID
	Amount     decimal.Decimal
	Reason     string
	AllottedBy *primitive.ObjectID
	Status     models.RewardStatus
}

// GrantReward stores the reward. A reward created Approved is added to the
// beneficiary's cached total.
func (l *Ledger) GrantReward(ctx context.Context, g Grant) (*models.MonetaryReward, error) {
	if !g.Amount.IsPositive() {
		return nil, invalid("amount", "Amount must be greater than zero.")
	}
	if !g.Amount.Equal(g.Amount.Round(2)) {
		return nil, invalid("amount", "Amount can have at most 2 decimal places.")
	}
	if g.Amount.GreaterThan(MaxAmount) {
		return nil, invalid("amount", "Amount cannot exceed "+MaxAmount.StringFixed(2)+".")
	}
	reason := strings.TrimSpace(g.Reason)
	if reason == "" {
		return nil, invalid("reason", "Reason is required.")
	}
	status := g.Status
	if status == "" {
		status = models.RewardPending
	}
	if !status.Valid() {
		return nil, invalid("status", "Invalid reward status.")
	}

	reward := &models.MonetaryReward{
		User:       g.User,
		Issue:      g.Issue,
		Amount:     g.Amount,
		Reason:     reason,
		Status:     status,
		AllottedBy: g.AllottedBy,
		AllottedAt: l.Clock(),
	}
	if err := l.store.InsertReward(ctx, reward); err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	if status == models.RewardApproved {
		l.adjustTotal(ctx, g.User, g.Amount)
	}

	source := "staff"
	if reward.SystemGranted() {
		source = "system"
	}
	metrics.RecordRewardStatus(string(status), source)
	l.log.WithField("reward_id", reward.ID.Hex()).
		WithField("user_id", g.User.Hex()).
		WithField("amount", g.Amount.StringFixed(2)).
		WithField("source", source).
		Info("reward granted")
	return reward, nil
}

// adjustTotal moves the cached total. A failure is logged and counted but
// never returned, so the reward write that triggered it stands.
func (l *Ledger) adjustTotal(ctx context.Context, userID primitive.ObjectID, delta decimal.Decimal) {
	if err := l.store.AdjustTotalRewards(ctx, userID, delta); err != nil {
		aggErr := &AggregateUpdateError{UserID: userID, Delta: delta, Err: err}
		metrics.RecordAggregateFailure()
		l.log.WithError(aggErr).
			WithField("user_id", userID.Hex()).
			Error("cached reward total not updated")
	}
}

// AllotReward is a manual, always-approved reward made by staff.
func (l *Ledger) AllotReward(ctx context.Context, actor *models.User, userID primitive.ObjectID, issueID *primitive.ObjectID, amount decimal.Decimal, reason string) (*models.MonetaryReward, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, invalid("amount", "Amount must be greater than zero.")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "Reason is required.")
	}
	if _, err := l.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("user", "Selected user does not exist.")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if issueID != nil {
		if _, err := l.store.GetIssue(ctx, *issueID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("issue", "Selected issue does not exist.")
			}
			return nil, fmt.Errorf("find issue: %w", err)
		}
	}

	allottedBy := actor.ID
	return l.GrantReward(ctx, Grant{
		User:       userID,
		Issue:      issueID,
		Amount:     amount,
		Reason:     reason,
		AllottedBy: &allottedBy,
		Status:     models.RewardApproved,
	})
}

// totalDelta is the change to the cached total when a reward of amount
// moves from prev to next.
func totalDelta(prev, next models.RewardStatus, amount decimal.Decimal) decimal.Decimal {
	switch {
	case next == models.RewardApproved && prev != models.RewardApproved:
		return amount
	case next == models.RewardRejected && prev == models.RewardApproved:
		return amount.Neg()
	}
	return decimal.Zero
}

// UpdateRewardStatus moves a reward to status. The move is a swap from the
// status read here, so a concurrent change yields store.ErrConflict.
// Paid is only reachable from Approved and is final.
func (l *Ledger) UpdateRewardStatus(ctx context.Context, actor *models.User, rewardID primitive.ObjectID, status, paymentReference string) (*models.MonetaryReward, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	next, err := models.ParseRewardStatus(status)
	if err != nil {
		return nil, invalid("status", "Invalid reward status.")
	}

	current, err := l.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	prev := current.Status
	if prev == models.RewardPaid {
		return nil, fmt.Errorf("reward already paid: %w", ErrInvalidTransition)
	}
	if next == models.RewardPaid && prev != models.RewardApproved {
		return nil, fmt.Errorf("only approved rewards can be paid, reward is %s: %w", prev, ErrInvalidTransition)
	}

	update := store.RewardStatusUpdate{Status: next}
	if next == models.RewardPaid {
		now := l.Clock()
		ref := strings.TrimSpace(paymentReference)
		update.PaidAt = &now
		update.PaymentReference = &ref
	}
	updated, err := l.store.SwapRewardStatus(ctx, rewardID, prev, update)
	if err != nil {
		return nil, err
	}

	if delta := totalDelta(prev, next, updated.Amount); !delta.IsZero() {
		l.adjustTotal(ctx, updated.User, delta)
	}
	metrics.RecordRewardStatus(string(next), "staff")
	l.log.WithField("reward_id", rewardID.Hex()).
		WithField("from", string(prev)).
		WithField("to", string(next)).
		WithField("actor", actor.Username).
		Info("reward status updated")
	return updated, nil
}

// RewardsOverview is the staff view of all rewards.
type RewardsOverview struct {
	Rewards       []models.MonetaryReward `json:"rewards"`
	Citizens      []models.User           `json:"citizens"`
	Issues        []models.Issue          `json:"issues"`
	TotalValue    decimal.Decimal         `json:"totalRewardValue"`
	AverageReward decimal.Decimal         `json:"averageReward"`
}

func (l *Ledger) ManageRewards(ctx context.Context, actor *models.User) (*RewardsOverview, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	rewards, err := l.store.ListRewards(ctx, store.RewardFilter{})
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	citizens, err := l.store.ListUsers(ctx, models.RoleCitizen)
	if err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}
	issues, err := l.store.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	total := decimal.Zero
	for _, r := range rewards {
		total = total.Add(r.Amount)
	}
	average := decimal.Zero
	if len(rewards) > 0 {
		average = total.Div(decimal.NewFromInt(int64(len(rewards)))).Round(2)
	}
	return &RewardsOverview{
		Rewards:       nonNil(rewards),
		Citizens:      nonNil(citizens),
		Issues:        nonNil(issues),
		TotalValue:    total,
		AverageReward: average,
	}, nil
}

// DerivedTotalRewards sums the user's Approved and Paid rewards.
func (l *Ledger) DerivedTotalRewards(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	return l.store.SumRewards(ctx, userID, earningStatuses)
}

// ReconcileTotalRewards overwrites the cached total with the derived sum.
func (l *Ledger) ReconcileTotalRewards(ctx context.Context, actor *models.User, userID primitive.ObjectID) (*models.User, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	derived, err := l.DerivedTotalRewards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum rewards: %w", err)
	}
	if err := l.store.SetTotalRewards(ctx, userID, derived); err != nil {
		return nil, fmt.Errorf("set total rewards: %w", err)
	}

	l.log.WithField("user_id", userID.Hex()).
		WithField("cached", user.Profile.TotalRewards.StringFixed(2)).
		WithField("derived", derived.StringFixed(2)).
		Info("reward total reconciled")
	user.Profile.TotalRewards = derived
	return user, nil
}

type ProfileView struct {
	User                *models.User            `json:"user"`
	DerivedTotalRewards decimal.Decimal         `json:"derivedTotalRewards"`
	PointsHistory       []models.PointsAward    `json:"pointsHistory"`
	Rewards             []models.MonetaryReward `json:"rewards"`
}

// Profile returns the actor's own profile with its history.
func (l *Ledger) Profile(ctx context.Context, actor *models.User) (*ProfileView, error) {
	if err := Authorize(actor); err != nil {
		return nil, err
	}
	user, err := l.store.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	derived, err := l.DerivedTotalRewards(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("sum rewards: %w", err)
	}
	history, err := l.store.ListPointsAwards(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	rewards, err := l.store.ListRewards(ctx, store.RewardFilter{User: &actor.ID})
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return &ProfileView{
		User:                user,
		DerivedTotalRewards: derived,
		PointsHistory:       nonNil(history),
		Rewards:             nonNil(rewards),
	}, nil
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
