package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"civicbounty-be/metrics"
	"civicbounty-be/models"
	"civicbounty-be/storage"
	"civicbounty-be/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	issueImageFolder = "issues"
	proofImageFolder = "proofs"
	locationMissing  = "Location not provided"
)

// IssueService runs the issue lifecycle: report, publish, accept, resolve
// and staff overrides.
type IssueService struct {
	store      store.Store
	categories *Categories
	ledger     *Ledger
	images     storage.ImageStore
	rules      Rules
	log        logrus.FieldLogger
	Clock      func() time.Time
}

func NewIssueService(s store.Store, categories *Categories, ledger *Ledger, images storage.ImageStore, rules Rules, log logrus.FieldLogger) *IssueService {
	return &IssueService{
		store:      s,
		categories: categories,
		ledger:     ledger,
		images:     images,
		rules:      rules,
		log:        log,
		Clock:      time.Now,
	}
}

type ReportInput struct {
	Title              string
	Description        string
	Category           string
	Priority           string
	UseCurrentLocation bool
	Latitude           *float64
	Longitude          *float64
	ManualAddress      string
	Image              *multipart.FileHeader
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// resolveLocation picks the stored location text and coordinates.
func resolveLocation(in ReportInput) (string, *float64, *float64, error) {
	address := strings.TrimSpace(in.ManualAddress)
	if !in.UseCurrentLocation {
		if address == "" {
			return "", nil, nil, invalid("location", "Please either use your current location or enter an address manually.")
		}
		return address, nil, nil, nil
	}
	if in.Latitude != nil && in.Longitude != nil {
		return fmt.Sprintf("GPS: %s, %s", formatCoord(*in.Latitude), formatCoord(*in.Longitude)), in.Latitude, in.Longitude, nil
	}
	if address != "" {
		return address, nil, nil, nil
	}
	return locationMissing, nil, nil, nil
}

// Report creates a Pending issue for a citizen.
func (s *IssueService) Report(ctx context.Context, actor *models.User, in ReportInput) (*models.Issue, error) {
	if err := Authorize(actor, models.RoleCitizen); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" {
		return nil, invalid("title", "Title is required.")
	}
	if description == "" {
		return nil, invalid("description", "Description is required.")
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return nil, invalid("priority", "Invalid priority.")
	}
	category, err := s.categories.Lookup(ctx, in.Category)
	if err != nil {
		return nil, err
	}
	location, lat, lon, err := resolveLocation(in)
	if err != nil {
		return nil, err
	}
	if in.Image == nil {
		return nil, invalid("image", "Please upload an image of the issue.")
	}

	imageURL, err := s.images.Save(ctx, issueImageFolder, in.Image)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return nil, invalid("image", "Unsupported image type.")
		}
		return nil, fmt.Errorf("save image: %w", err)
	}

	now := s.Clock()
	predicted := s.rules.PredictResolution(now, priority)
	issue := &models.Issue{
		ID:                      primitive.NewObjectID(),
		Title:                   title,
		Description:             description,
		Category:                category.Name,
		Location:                location,
		Latitude:                lat,
		Longitude:               lon,
		ImageURL:                &imageURL,
		Status:                  models.Pending,
		Priority:                priority,
		ReportedBy:              actor.ID,
		BountyAmount:            decimal.Zero,
		AICategory:              s.rules.Classify(description),
		PredictedResolutionTime: &predicted,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.store.InsertIssue(ctx, issue); err != nil {
		if delErr := s.images.Delete(ctx, imageURL); delErr != nil {
			s.log.WithError(delErr).WithField("path", imageURL).Warn("orphaned upload not removed")
		}
		return nil, fmt.Errorf("insert issue: %w", err)
	}

	metrics.RecordIssueTransition("report", string(issue.Status))
	s.log.WithField("issue_id", issue.ID.Hex()).
		WithField("reported_by", actor.Username).
		WithField("priority", string(priority)).
		WithField("ai_category", issue.AICategory).
		Info("issue reported")
	return issue, nil
}

// Publish shows the issue on the public board with the given bounty.
// Publishing again only replaces the bounty.
func (s *IssueService) Publish(ctx context.Context, actor *models.User, issueID primitive.ObjectID, bounty decimal.Decimal) (*models.Issue, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	if bounty.IsNegative() {
		return nil, invalid("bounty_amount", "Bounty amount cannot be negative.")
	}
	if !bounty.Equal(bounty.Round(2)) {
		return nil, invalid("bounty_amount", "Bounty amount can have at most two decimal places.")
	}
	if bounty.GreaterThan(MaxAmount) {
		return nil, invalid("bounty_amount", "Bounty amount cannot exceed "+MaxAmount.StringFixed(2)+".")
	}

	published := true
	issue, err := s.store.UpdateIssue(ctx, issueID, store.IssueGuard{}, store.IssueUpdate{
		Published:    &published,
		BountyAmount: &bounty,
		UpdatedAt:    s.Clock(),
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordIssueTransition("publish", string(issue.Status))
	s.log.WithField("issue_id", issueID.Hex()).
		WithField("bounty", bounty.StringFixed(2)).
		WithField("actor", actor.Username).
		Info("issue published")
	return issue, nil
}

// getPublished hides unpublished issues behind store.ErrNotFound.
func (s *IssueService) getPublished(ctx context.Context, issueID primitive.ObjectID) (*models.Issue, error) {
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !issue.Published {
		return nil, store.ErrNotFound
	}
	return issue, nil
}

// Accept claims a published Pending issue for actor. For any other status
// it returns the issue unchanged and false.
func (s *IssueService) Accept(ctx context.Context, actor *models.User, issueID primitive.ObjectID) (*models.Issue, bool, error) {
	if actor == nil {
		return nil, false, &AuthorizationError{Message: "Please login to accept issues.", Redirect: LoginPage}
	}
	issue, err := s.getPublished(ctx, issueID)
	if err != nil {
		return nil, false, err
	}
	if issue.Status != models.Pending {
		return issue, false, nil
	}

	inProgress := models.InProgress
	updated, err := s.store.UpdateIssue(ctx, issueID,
		store.IssueGuard{Statuses: []models.IssueStatus{models.Pending}, Published: true},
		store.IssueUpdate{Status: &inProgress, AcceptedBy: &actor.ID, UpdatedAt: s.Clock()},
	)
	if errors.Is(err, store.ErrConflict) {
		// someone else accepted first
		current, getErr := s.store.GetIssue(ctx, issueID)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	metrics.RecordIssueTransition("accept", string(updated.Status))
	s.log.WithField("issue_id", issueID.Hex()).
		WithField("accepted_by", actor.Username).
		Info("issue accepted")
	return updated, true, nil
}

type ResolveResult struct {
	Issue         *models.Issue          `json:"issue"`
	PointsAwarded int                    `json:"pointsAwarded"`
	Reward        *models.MonetaryReward `json:"reward,omitempty"`
	User          *models.User           `json:"user"`
}

// Resolve closes an In Progress issue accepted by actor, credits the
// resolve points and, for a bounty, grants an approved reward.
func (s *IssueService) Resolve(ctx context.Context, actor *models.User, issueID primitive.ObjectID, proof *multipart.FileHeader) (*ResolveResult, error) {
	if actor == nil {
		return nil, &AuthorizationError{Message: "Please login to resolve issues.", Redirect: LoginPage}
	}
	issue, err := s.getPublished(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !issue.IsAcceptedBy(actor.ID) {
		return nil, &AuthorizationError{Message: "You can only resolve issues you have accepted.", Redirect: PublicBoardPage}
	}
	if proof == nil {
		return nil, invalid("proof", "Please upload a photo proving the issue is fixed.")
	}
	if issue.Status != models.InProgress {
		return nil, fmt.Errorf("issue is %s: %w", issue.Status, ErrInvalidTransition)
	}

	proofURL, err := s.images.Save(ctx, proofImageFolder, proof)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return nil, invalid("proof", "Unsupported image type.")
		}
		return nil, fmt.Errorf("save proof: %w", err)
	}

	resolved := models.Resolved
	updated, err := s.store.UpdateIssue(ctx, issueID,
		store.IssueGuard{Statuses: []models.IssueStatus{models.InProgress}, Published: true, AcceptedBy: &actor.ID},
		store.IssueUpdate{Status: &resolved, ResolvedBy: &actor.ID, ImageURL: &proofURL, UpdatedAt: s.Clock()},
	)
	if err != nil {
		if delErr := s.images.Delete(ctx, proofURL); delErr != nil {
			s.log.WithError(delErr).WithField("path", proofURL).Warn("orphaned upload not removed")
		}
		return nil, err
	}
	result, err := s.creditResolver(ctx, actor, updated)
	if err != nil {
		s.reopen(ctx, actor, issue, proofURL)
		return nil, err
	}
	metrics.RecordIssueTransition("resolve", string(updated.Status))

	s.log.WithField("issue_id", issueID.Hex()).
		WithField("resolved_by", actor.Username).
		WithField("points", result.PointsAwarded).
		WithField("bounty", updated.BountyAmount.StringFixed(2)).
		Info("issue resolved")
	return result, nil
}

// creditResolver awards the resolve points and any bounty. Both are keyed on
// the issue, so an issue resolved again after a staff override pays nothing
// twice.
func (s *IssueService) creditResolver(ctx context.Context, actor *models.User, issue *models.Issue) (*ResolveResult, error) {
	user, awarded, err := s.ledger.AwardIssuePoints(ctx, actor.ID, issue.ID, s.rules.ResolvePoints)
	if err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}
	result := &ResolveResult{Issue: issue, User: user}
	if awarded {
		result.PointsAwarded = s.rules.ResolvePoints
	}
	if !issue.HasBounty() {
		return result, nil
	}

	reward, granted, err := s.ledger.GrantIssueBounty(ctx, actor.ID, issue)
	if err != nil {
		return nil, fmt.Errorf("grant bounty: %w", err)
	}
	if granted {
		result.Reward = reward
		if fresh, err := s.store.GetUser(ctx, actor.ID); err == nil {
			result.User = fresh
		}
	}
	return result, nil
}

// reopen puts a resolve whose credits failed back to In Progress so the
// resolver can retry. before is the issue as read ahead of the resolve.
func (s *IssueService) reopen(ctx context.Context, actor *models.User, before *models.Issue, proofURL string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	inProgress := models.InProgress
	var imageURL string
	if before.ImageURL != nil {
		imageURL = *before.ImageURL
	}
	_, err := s.store.UpdateIssue(ctx, before.ID,
		store.IssueGuard{Statuses: []models.IssueStatus{models.Resolved}, AcceptedBy: &actor.ID, ResolvedBy: &actor.ID},
		store.IssueUpdate{
			Status:          &inProgress,
			ImageURL:        &imageURL,
			ResolvedBy:      before.ResolvedBy,
			ClearResolvedBy: before.ResolvedBy == nil,
			UpdatedAt:       s.Clock(),
		},
	)
	log := s.log.WithField("issue_id", before.ID.Hex()).WithField("resolved_by", actor.Username)
	if err != nil {
		log.WithError(err).Error("resolve left without credits")
		return
	}
	if err := s.images.Delete(ctx, proofURL); err != nil {
		log.WithError(err).WithField("path", proofURL).Warn("orphaned upload not removed")
	}
	log.Warn("resolve rolled back")
}

// UpdateStatus is the staff override. It bypasses the workflow guards and
// never credits points or rewards.
func (s *IssueService) UpdateStatus(ctx context.Context, actor *models.User, issueID primitive.ObjectID, status string) (*models.Issue, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	next, err := models.ParseIssueStatus(status)
	if err != nil {
		return nil, invalid("status", "Invalid status.")
	}

	update := store.IssueUpdate{Status: &next, UpdatedAt: s.Clock()}
	if next == models.Resolved {
		update.ResolvedBy = &actor.ID
	}
	issue, err := s.store.UpdateIssue(ctx, issueID, store.IssueGuard{}, update)
	if err != nil {
		return nil, err
	}

	metrics.RecordIssueTransition("update_status", string(next))
	s.log.WithField("issue_id", issueID.Hex()).
		WithField("status", string(next)).
		WithField("actor", actor.Username).
		Info("issue status updated")
	return issue, nil
}

// CitizenDashboard lists the actor's own reports, newest first.
func (s *IssueService) CitizenDashboard(ctx context.Context, actor *models.User) ([]models.Issue, error) {
	if err := Authorize(actor, models.RoleCitizen); err != nil {
		return nil, err
	}
	issues, err := s.store.ListIssues(ctx, store.IssueFilter{ReportedBy: &actor.ID})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return nonNil(issues), nil
}

// PublicBoard lists published issues that are still open.
func (s *IssueService) PublicBoard(ctx context.Context) ([]models.Issue, error) {
	issues, err := s.store.ListIssues(ctx, store.IssueFilter{
		PublishedOnly: true,
		Statuses:      []models.IssueStatus{models.Pending, models.InProgress},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return nonNil(issues), nil
}

type LeaderboardEntry struct {
	Rank     int                `json:"rank"`
	UserID   primitive.ObjectID `json:"userId"`
	Username string             `json:"username"`
	Points   int                `json:"points"`
	Badges   []string           `json:"badges"`
}

func (s *IssueService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	users, err := s.store.TopByPoints(ctx, s.rules.LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.ID,
			Username: u.Username,
			Points:   u.Profile.Points,
			Badges:   nonNil(u.Profile.Badges),
		})
	}
	return entries, nil
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type StaffDashboard struct {
	Issues         []models.Issue               `json:"issues"`
	Categories     []models.Category            `json:"categories"`
	TotalIssues    int64                        `json:"totalIssues"`
	StatusCounts   map[models.IssueStatus]int64 `json:"statusCounts"`
	CategoryCounts []CategoryCount              `json:"categoryCounts"`
}

// StaffDashboard lists issues matching the optional filters, with counts
// over all issues. Every status and registered category is counted, zeros
// included.
func (s *IssueService) StaffDashboard(ctx context.Context, actor *models.User, category, status string) (*StaffDashboard, error) {
	if err := authorizeStaff(actor); err != nil {
		return nil, err
	}
	filter := store.IssueFilter{Category: strings.TrimSpace(category)}
	if status != "" {
		st, err := models.ParseIssueStatus(status)
		if err != nil {
			return nil, invalid("status", "Invalid status.")
		}
		filter.Statuses = []models.IssueStatus{st}
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	total, err := s.store.CountIssues(ctx, store.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	byStatus, err := s.store.CountIssuesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	byCategory, err := s.store.CountIssuesByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}

	statusCounts := make(map[models.IssueStatus]int64, len(models.IssueStatuses))
	for _, st := range models.IssueStatuses {
		statusCounts[st] = byStatus[st]
	}
	categoryCounts := make([]CategoryCount, 0, len(categories))
	for _, c := range categories {
		categoryCounts = append(categoryCounts, CategoryCount{Name: c.Name, Count: byCategory[c.Name]})
	}

	return &StaffDashboard{
		Issues:         nonNil(issues),
		Categories:     nonNil(categories),
		TotalIssues:    total,
		StatusCounts:   statusCounts,
		CategoryCounts: categoryCounts,
	}, nil
}

type HomeStats struct {
	TotalIssues    int64 `json:"totalIssues"`
	ResolvedIssues int64 `json:"resolvedIssues"`
	ActiveUsers    int64 `json:"activeUsers"`
}

func (s *IssueService) HomeStats(ctx context.Context) (*HomeStats, error) {
	total, err := s.store.CountIssues(ctx, store.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	resolved, err := s.store.CountIssues(ctx, store.IssueFilter{Statuses: []models.IssueStatus{models.Resolved}})
	if err != nil {
		return nil, fmt.Errorf("count resolved: %w", err)
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &HomeStats{TotalIssues: total, ResolvedIssues: resolved, ActiveUsers: users}, nil
}
