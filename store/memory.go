package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"civicbounty-be/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// table keeps rows in insertion order.
type table[T any] struct {
	items map[primitive.ObjectID]T
	order []primitive.ObjectID
}

func newTable[T any]() *table[T] {
	return &table[T]{items: make(map[primitive.ObjectID]T)}
}

func (t *table[T]) set(id primitive.ObjectID, item T) {
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = item
}

func (t *table[T]) get(id primitive.ObjectID) (T, bool) {
	item, ok := t.items[id]
	return item, ok
}

func (t *table[T]) all() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

// MemoryStore is a Store held entirely in process memory. It backs the
// "memory" STORE_BACKEND and the test suites.
type MemoryStore struct {
	mu         sync.RWMutex
	users      *table[models.User]
	categories *table[models.Category]
	issues     *table[models.Issue]
	rewards    *table[models.MonetaryReward]
	points     *table[models.PointsAward]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      newTable[models.User](),
		categories: newTable[models.Category](),
		issues:     newTable[models.Issue](),
		rewards:    newTable[models.MonetaryReward](),
		points:     newTable[models.PointsAward](),
	}
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func cloneUser(u models.User) models.User {
	u.Profile.Badges = slices.Clone(u.Profile.Badges)
	if u.Profile.Badges == nil {
		u.Profile.Badges = []string{}
	}
	return u
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users.items {
		if u.Username == user.Username {
			return ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users.set(user.ID, cloneUser(*user))
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users.all() {
		if u.Username == username {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users.all() {
		if role == "" || u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s *MemoryStore) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users.items)), nil
}

// mutateUser runs fn on the stored user under the write lock.
func (s *MemoryStore) mutateUser(id primitive.ObjectID, fn func(u *models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	u = cloneUser(u)
	fn(&u)
	s.users.set(id, u)
	out := cloneUser(u)
	return &out, nil
}

func (s *MemoryStore) SetRole(_ context.Context, id primitive.ObjectID, role models.Role) error {
	_, err := s.mutateUser(id, func(u *models.User) { u.Role = role })
	return err
}

func (s *MemoryStore) IncrementPoints(_ context.Context, id primitive.ObjectID, delta int) (*models.User, error) {
	return s.mutateUser(id, func(u *models.User) { u.Profile.Points += delta })
}

func (s *MemoryStore) AddBadges(_ context.Context, id primitive.ObjectID, badges []string) error {
	_, err := s.mutateUser(id, func(u *models.User) {
		for _, b := range badges {
			if !u.Profile.HasBadge(b) {
				u.Profile.Badges = append(u.Profile.Badges, b)
			}
		}
	})
	return err
}

func (s *MemoryStore) AdjustTotalRewards(_ context.Context, id primitive.ObjectID, delta decimal.Decimal) error {
	_, err := s.mutateUser(id, func(u *models.User) {
		u.Profile.TotalRewards = u.Profile.TotalRewards.Add(delta)
	})
	return err
}

func (s *MemoryStore) SetTotalRewards(_ context.Context, id primitive.ObjectID, total decimal.Decimal) error {
	_, err := s.mutateUser(id, func(u *models.User) { u.Profile.TotalRewards = total })
	return err
}

func (s *MemoryStore) TopByPoints(_ context.Context, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := s.users.all()
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Profile.Points > users[j].Profile.Points
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	for i := range users {
		users[i] = cloneUser(users[i])
	}
	return users, nil
}

func (s *MemoryStore) InsertPointsAward(_ context.Context, award *models.PointsAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.points.items {
		if sameIssueAward(&existing, award) {
			return ErrDuplicate
		}
	}
	if award.ID.IsZero() {
		award.ID = primitive.NewObjectID()
	}
	s.points.set(award.ID, *award)
	return nil
}

func (s *MemoryStore) ListPointsAwards(_ context.Context, user primitive.ObjectID) ([]models.PointsAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PointsAward
	for _, a := range s.points.all() {
		if a.User == user {
			out = append(out, a)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *MemoryStore) UpsertCategory(_ context.Context, category *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.categories.items {
		if c.Name == category.Name {
			category.ID = id
			s.categories.set(id, *category)
			return nil
		}
	}
	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	s.categories.set(category.ID, *category)
	return nil
}

func (s *MemoryStore) ListCategories(context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cats := s.categories.all()
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (s *MemoryStore) GetCategoryByName(_ context.Context, name string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories.all() {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) InsertIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	s.issues.set(issue.ID, *issue)
	return nil
}

func (s *MemoryStore) GetIssue(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &issue, nil
}

func (s *MemoryStore) ListIssues(_ context.Context, filter IssueFilter) ([]models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Issue
	for _, issue := range s.issues.all() {
		if filter.Matches(&issue) {
			out = append(out, issue)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountIssues(ctx context.Context, filter IssueFilter) (int64, error) {
	issues, err := s.ListIssues(ctx, filter)
	return int64(len(issues)), err
}

func (s *MemoryStore) CountIssuesByStatus(context.Context) (map[models.IssueStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.IssueStatus]int64)
	for _, issue := range s.issues.items {
		counts[issue.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) CountIssuesByCategory(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, issue := range s.issues.items {
		counts[issue.Category]++
	}
	return counts, nil
}

func (s *MemoryStore) UpdateIssue(_ context.Context, id primitive.ObjectID, guard IssueGuard, update IssueUpdate) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if !guard.Satisfies(&issue) {
		return nil, ErrConflict
	}
	update.Apply(&issue)
	s.issues.set(id, issue)
	return &issue, nil
}

func (s *MemoryStore) InsertReward(_ context.Context, reward *models.MonetaryReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rewards.items {
		if sameIssueGrant(&existing, reward) {
			return ErrDuplicate
		}
	}
	if reward.ID.IsZero() {
		reward.ID = primitive.NewObjectID()
	}
	s.rewards.set(reward.ID, *reward)
	return nil
}

func (s *MemoryStore) GetReward(_ context.Context, id primitive.ObjectID) (*models.MonetaryReward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rewards.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListRewards(_ context.Context, filter RewardFilter) ([]models.MonetaryReward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MonetaryReward
	for _, r := range s.rewards.all() {
		if filter.Matches(&r) {
			out = append(out, r)
		}
	}
	// newest first; ties keep reverse insertion order
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AllottedAt.After(out[j].AllottedAt) })
	return out, nil
}

func (s *MemoryStore) SwapRewardStatus(_ context.Context, id primitive.ObjectID, from models.RewardStatus, update RewardStatusUpdate) (*models.MonetaryReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != from {
		return nil, ErrConflict
	}
	r.Status = update.Status
	if update.PaidAt != nil {
		t := *update.PaidAt
		r.PaidAt = &t
	}
	if update.PaymentReference != nil {
		r.PaymentReference = *update.PaymentReference
	}
	s.rewards.set(id, r)
	return &r, nil
}

func (s *MemoryStore) SumRewards(_ context.Context, user primitive.ObjectID, statuses []models.RewardStatus) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, r := range s.rewards.items {
		if r.User == user && slices.Contains(statuses, r.Status) {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}
