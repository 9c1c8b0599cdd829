package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicbounty-be/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostgresStore persists to PostgreSQL. Guarded transitions lock the row
// with SELECT ... FOR UPDATE inside a transaction.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func oid(s string) primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(s)
	return id
}

func optOID(s *string) *primitive.ObjectID {
	if s == nil {
		return nil
	}
	id := oid(*s)
	return &id
}

func optHex(id *primitive.ObjectID) *string {
	if id == nil {
		return nil
	}
	h := id.Hex()
	return &h
}

// withTx runs fn in a transaction, rolling back on error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type userRow struct {
	ID           string          `db:"id"`
	Username     string          `db:"username"`
	Email        string          `db:"email"`
	Password     string          `db:"password"`
	Role         string          `db:"role"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	Points       int             `db:"points"`
	TotalRewards decimal.Decimal `db:"total_rewards"`
	Badges       pq.StringArray  `db:"badges"`
}

func (r userRow) model() models.User {
	badges := []string(r.Badges)
	if badges == nil {
		badges = []string{}
	}
	return models.User{
		ID:       oid(r.ID),
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
		Role:     models.Role(r.Role),
		Profile: models.Profile{
			Points:       r.Points,
			TotalRewards: r.TotalRewards,
			Badges:       badges,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const userSelect = `
SELECT u.id, u.username, u.email, u.password, u.role, u.created_at, u.updated_at,
       p.points, p.total_rewards, p.badges
FROM users u
JOIN profiles p ON p.user_id = u.id`

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	badges := user.Profile.Badges
	if badges == nil {
		badges = []string{}
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, email, password, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, user.ID.Hex(), user.Username, user.Email, user.Password, string(user.Role), user.CreatedAt, user.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, points, total_rewards, badges)
			VALUES ($1, $2, $3, $4)
		`, user.ID.Hex(), user.Profile.Points, user.Profile.TotalRewards, pq.StringArray(badges))
		return err
	})
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, userSelect+" WHERE "+where, arg); err != nil {
		return nil, noRows(err)
	}
	u := row.model()
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.getUser(ctx, "u.id = $1", id.Hex())
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "u.username = $1", username)
}

func (s *PostgresStore) selectUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.model())
	}
	return users, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	if role == "" {
		return s.selectUsers(ctx, userSelect+" ORDER BY u.username")
	}
	return s.selectUsers(ctx, userSelect+" WHERE u.role = $1 ORDER BY u.username", string(role))
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	return s.execOne(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id.Hex(), string(role))
}

func (s *PostgresStore) IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int) (*models.User, error) {
	if err := s.execOne(ctx, `UPDATE profiles SET points = points + $2 WHERE user_id = $1`, id.Hex(), delta); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *PostgresStore) AddBadges(ctx context.Context, id primitive.ObjectID, badges []string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current pq.StringArray
		err := tx.GetContext(ctx, &current, `SELECT badges FROM profiles WHERE user_id = $1 FOR UPDATE`, id.Hex())
		if err != nil {
			return noRows(err)
		}
		p := models.Profile{Badges: current}
		for _, b := range badges {
			if !p.HasBadge(b) {
				p.Badges = append(p.Badges, b)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE profiles SET badges = $2 WHERE user_id = $1`, id.Hex(), pq.StringArray(p.Badges))
		return err
	})
}

func (s *PostgresStore) AdjustTotalRewards(ctx context.Context, id primitive.ObjectID, delta decimal.Decimal) error {
	return s.execOne(ctx, `UPDATE profiles SET total_rewards = total_rewards + $2 WHERE user_id = $1`, id.Hex(), delta)
}

func (s *PostgresStore) SetTotalRewards(ctx context.Context, id primitive.ObjectID, total decimal.Decimal) error {
	return s.execOne(ctx, `UPDATE profiles SET total_rewards = $2 WHERE user_id = $1`, id.Hex(), total)
}

func (s *PostgresStore) TopByPoints(ctx context.Context, limit int) ([]models.User, error) {
	return s.selectUsers(ctx, userSelect+" ORDER BY p.points DESC LIMIT $1", limit)
}

type pointsAwardRow struct {
	ID       string    `db:"id"`
	UserID   string    `db:"user_id"`
	IssueID  *string   `db:"issue_id"`
	Points   int       `db:"points"`
	EarnedAt time.Time `db:"earned_at"`
}

func (s *PostgresStore) InsertPointsAward(ctx context.Context, award *models.PointsAward) error {
	if award.ID.IsZero() {
		award.ID = primitive.NewObjectID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points_awards (id, user_id, issue_id, points, earned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, award.ID.Hex(), award.User.Hex(), optHex(award.Issue), award.Points, award.EarnedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) ListPointsAwards(ctx context.Context, user primitive.ObjectID) ([]models.PointsAward, error) {
	var rows []pointsAwardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, issue_id, points, earned_at
		FROM points_awards WHERE user_id = $1
		ORDER BY earned_at DESC
	`, user.Hex())
	if err != nil {
		return nil, err
	}
	awards := make([]models.PointsAward, 0, len(rows))
	for _, r := range rows {
		awards = append(awards, models.PointsAward{
			ID:       oid(r.ID),
			User:     oid(r.UserID),
			Issue:    optOID(r.IssueID),
			Points:   r.Points,
			EarnedAt: r.EarnedAt,
		})
	}
	return awards, nil
}

type categoryRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	Icon string `db:"icon"`
}

func (r categoryRow) model() models.Category {
	return models.Category{ID: oid(r.ID), Name: r.Name, Icon: r.Icon}
}

func (s *PostgresStore) UpsertCategory(ctx context.Context, category *models.Category) error {
	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	var id string
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO categories (id, name, icon) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET icon = EXCLUDED.icon
		RETURNING id
	`, category.ID.Hex(), category.Name, category.Icon)
	if err != nil {
		return err
	}
	category.ID = oid(id)
	return nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, icon FROM categories ORDER BY name`); err != nil {
		return nil, err
	}
	categories := make([]models.Category, 0, len(rows))
	for _, r := range rows {
		categories = append(categories, r.model())
	}
	return categories, nil
}

func (s *PostgresStore) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var row categoryRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, name, icon FROM categories WHERE name = $1`, name); err != nil {
		return nil, noRows(err)
	}
	c := row.model()
	return &c, nil
}

type issueRow struct {
	ID                      string          `db:"id"`
	Title                   string          `db:"title"`
	Description             string          `db:"description"`
	Category                string          `db:"category"`
	Location                string          `db:"location"`
	Latitude                *float64        `db:"latitude"`
	Longitude               *float64        `db:"longitude"`
	ImageURL                *string         `db:"image_url"`
	Status                  string          `db:"status"`
	Priority                string          `db:"priority"`
	ReportedBy              string          `db:"reported_by"`
	Published               bool            `db:"published"`
	BountyAmount            decimal.Decimal `db:"bounty_amount"`
	AcceptedBy              *string         `db:"accepted_by"`
	ResolvedBy              *string         `db:"resolved_by"`
	AICategory              string          `db:"ai_category"`
	PredictedResolutionTime *time.Time      `db:"predicted_resolution_time"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

func (r issueRow) model() models.Issue {
	return models.Issue{
		ID:                      oid(r.ID),
		Title:                   r.Title,
		Description:             r.Description,
		Category:                r.Category,
		Location:                r.Location,
		Latitude:                r.Latitude,
		Longitude:               r.Longitude,
		ImageURL:                r.ImageURL,
		Status:                  models.IssueStatus(r.Status),
		Priority:                models.Priority(r.Priority),
		ReportedBy:              oid(r.ReportedBy),
		Published:               r.Published,
		BountyAmount:            r.BountyAmount,
		AcceptedBy:              optOID(r.AcceptedBy),
		ResolvedBy:              optOID(r.ResolvedBy),
		AICategory:              r.AICategory,
		PredictedResolutionTime: r.PredictedResolutionTime,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

const issueColumns = `id, title, description, category, location, latitude, longitude, image_url,
status, priority, reported_by, published, bounty_amount, accepted_by, resolved_by,
ai_category, predicted_resolution_time, created_at, updated_at`

func (s *PostgresStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO issues (`+issueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		issue.ID.Hex(), issue.Title, issue.Description, issue.Category, issue.Location,
		issue.Latitude, issue.Longitude, issue.ImageURL,
		string(issue.Status), string(issue.Priority), issue.ReportedBy.Hex(),
		issue.Published, issue.BountyAmount, optHex(issue.AcceptedBy), optHex(issue.ResolvedBy),
		issue.AICategory, issue.PredictedResolutionTime, issue.CreatedAt, issue.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var row issueRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id.Hex()); err != nil {
		return nil, noRows(err)
	}
	issue := row.model()
	return &issue, nil
}

func issueWhere(f IssueFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ReportedBy != nil {
		add("reported_by = $%d", f.ReportedBy.Hex())
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", pq.StringArray(statuses))
	}
	if f.PublishedOnly {
		conds = append(conds, "published")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	where, args := issueWhere(f)
	var rows []issueRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+issueColumns+` FROM issues`+where+` ORDER BY created_at DESC`, args...); err != nil {
		return nil, err
	}
	issues := make([]models.Issue, 0, len(rows))
	for _, r := range rows {
		issues = append(issues, r.model())
	}
	return issues, nil
}

func (s *PostgresStore) CountIssues(ctx context.Context, f IssueFilter) (int64, error) {
	where, args := issueWhere(f)
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM issues`+where, args...)
	return n, err
}

type keyCount struct {
	Key   string `db:"key"`
	Count int64  `db:"count"`
}

func (s *PostgresStore) countBy(ctx context.Context, column string) ([]keyCount, error) {
	var rows []keyCount
	err := s.db.SelectContext(ctx, &rows, `SELECT `+column+` AS key, COUNT(*) AS count FROM issues GROUP BY `+column)
	return rows, err
}

func (s *PostgresStore) CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	rows, err := s.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	counts := make(map[models.IssueStatus]int64, len(rows))
	for _, r := range rows {
		counts[models.IssueStatus(r.Key)] = r.Count
	}
	return counts, nil
}

func (s *PostgresStore) CountIssuesByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := s.countBy(ctx, "category")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, id primitive.ObjectID, guard IssueGuard, update IssueUpdate) (*models.Issue, error) {
	var issue models.Issue
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row issueRow
		if err := tx.GetContext(ctx, &row, `SELECT `+issueColumns+` FROM issues WHERE id = $1 FOR UPDATE`, id.Hex()); err != nil {
			return noRows(err)
		}
		issue = row.model()
		if !guard.Satisfies(&issue) {
			return ErrConflict
		}
		update.Apply(&issue)
		_, err := tx.ExecContext(ctx, `
			UPDATE issues
			SET status = $2, published = $3, bounty_amount = $4, accepted_by = $5,
			    resolved_by = $6, image_url = $7, updated_at = $8
			WHERE id = $1
		`, id.Hex(), string(issue.Status), issue.Published, issue.BountyAmount,
			optHex(issue.AcceptedBy), optHex(issue.ResolvedBy), issue.ImageURL, issue.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

type rewardRow struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	IssueID          *string         `db:"issue_id"`
	Amount           decimal.Decimal `db:"amount"`
	Reason           string          `db:"reason"`
	Status           string          `db:"status"`
	AllottedBy       *string         `db:"allotted_by"`
	AllottedAt       time.Time       `db:"allotted_at"`
	PaidAt           *time.Time      `db:"paid_at"`
	PaymentReference string          `db:"payment_reference"`
}

func (r rewardRow) model() models.MonetaryReward {
	return models.MonetaryReward{
		ID:               oid(r.ID),
		User:             oid(r.UserID),
		Issue:            optOID(r.IssueID),
		Amount:           r.Amount,
		Reason:           r.Reason,
		Status:           models.RewardStatus(r.Status),
		AllottedBy:       optOID(r.AllottedBy),
		AllottedAt:       r.AllottedAt,
		PaidAt:           r.PaidAt,
		PaymentReference: r.PaymentReference,
	}
}

const rewardColumns = `id, user_id, issue_id, amount, reason, status, allotted_by, allotted_at, paid_at, payment_reference`

func (s *PostgresStore) InsertReward(ctx context.Context, reward *models.MonetaryReward) error {
	if reward.ID.IsZero() {
		reward.ID = primitive.NewObjectID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO monetary_rewards (`+rewardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reward.ID.Hex(), reward.User.Hex(), optHex(reward.Issue), reward.Amount, reward.Reason,
		string(reward.Status), optHex(reward.AllottedBy), reward.AllottedAt, reward.PaidAt, reward.PaymentReference,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) GetReward(ctx context.Context, id primitive.ObjectID) (*models.MonetaryReward, error) {
	var row rewardRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+rewardColumns+` FROM monetary_rewards WHERE id = $1`, id.Hex()); err != nil {
		return nil, noRows(err)
	}
	r := row.model()
	return &r, nil
}

func (s *PostgresStore) ListRewards(ctx context.Context, f RewardFilter) ([]models.MonetaryReward, error) {
	query := `SELECT ` + rewardColumns + ` FROM monetary_rewards`
	var (
		conds []string
		args  []any
	)
	if f.User != nil {
		args = append(args, f.User.Hex())
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Issue != nil {
		args = append(args, f.Issue.Hex())
		conds = append(conds, fmt.Sprintf("issue_id = $%d", len(args)))
	}
	if f.SystemOnly {
		conds = append(conds, "allotted_by IS NULL")
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY allotted_at DESC`

	var rows []rewardRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	rewards := make([]models.MonetaryReward, 0, len(rows))
	for _, r := range rows {
		rewards = append(rewards, r.model())
	}
	return rewards, nil
}

func (s *PostgresStore) SwapRewardStatus(ctx context.Context, id primitive.ObjectID, from models.RewardStatus, update RewardStatusUpdate) (*models.MonetaryReward, error) {
	var row rewardRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE monetary_rewards
		SET status = $3,
		    paid_at = COALESCE($4, paid_at),
		    payment_reference = COALESCE($5, payment_reference)
		WHERE id = $1 AND status = $2
		RETURNING `+rewardColumns,
		id.Hex(), string(from), string(update.Status), update.PaidAt, update.PaymentReference,
	)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM monetary_rewards WHERE id = $1)`, id.Hex()); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	r := row.model()
	return &r, nil
}

func (s *PostgresStore) SumRewards(ctx context.Context, user primitive.ObjectID, statuses []models.RewardStatus) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM monetary_rewards
		WHERE user_id = $1 AND status = ANY($2)
	`, user.Hex(), pq.StringArray(names))
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
