package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicbounty-be/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection        = "users"
	categoriesCollection   = "categories"
	issuesCollection       = "issues"
	rewardsCollection      = "rewards"
	pointsAwardsCollection = "pointsAwards"
)

// MongoStore persists to MongoDB. The profile lives inside the user
// document so the pair is always written in one operation.
type MongoStore struct {
	db           *mongo.Database
	users        *mongo.Collection
	categories   *mongo.Collection
	issues       *mongo.Collection
	rewards      *mongo.Collection
	pointsAwards *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:           db,
		users:        db.Collection(usersCollection),
		categories:   db.Collection(categoriesCollection),
		issues:       db.Collection(issuesCollection),
		rewards:      db.Collection(rewardsCollection),
		pointsAwards: db.Collection(pointsAwardsCollection),
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "profile.points", Value: -1}}},
		},
		s.categories: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.issues: {
			{Keys: bson.D{{Key: "reportedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "status", Value: 1}}},
		},
		s.rewards: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "allottedAt", Value: -1}}},
			{Keys: bson.D{{Key: "issue", Value: 1}, {Key: "allottedBy", Value: 1}}},
		},
		s.pointsAwards: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "earnedAt", Value: -1}}},
			{
				Keys: bson.D{{Key: "user", Value: 1}, {Key: "issue", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"issue": bson.M{"$exists": true}}),
			},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// guardFailure tells a missing document apart from one that failed the guard.
func guardFailure(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) error {
	count, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Profile.Badges == nil {
		user.Profile.Badges = []string{}
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *MongoStore) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) findUsers(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	return s.findUsers(ctx, filter, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
}

func (s *MongoStore) CountUsers(ctx context.Context) (int64, error) {
	return s.users.CountDocuments(ctx, bson.M{})
}

func (s *MongoStore) updateUser(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error {
	return s.updateUser(ctx, id, bson.M{"$set": bson.M{"role": role, "updatedAt": time.Now()}})
}

func (s *MongoStore) IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"profile.points": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}, opts).Decode(&user)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *MongoStore) AddBadges(ctx context.Context, id primitive.ObjectID, badges []string) error {
	return s.updateUser(ctx, id, bson.M{
		"$addToSet": bson.M{"profile.badges": bson.M{"$each": badges}},
	})
}

func (s *MongoStore) AdjustTotalRewards(ctx context.Context, id primitive.ObjectID, delta decimal.Decimal) error {
	return s.updateUser(ctx, id, bson.M{"$inc": bson.M{"profile.totalRewards": delta}})
}

func (s *MongoStore) SetTotalRewards(ctx context.Context, id primitive.ObjectID, total decimal.Decimal) error {
	return s.updateUser(ctx, id, bson.M{"$set": bson.M{"profile.totalRewards": total}})
}

func (s *MongoStore) TopByPoints(ctx context.Context, limit int) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "profile.points", Value: -1}}).
		SetLimit(int64(limit))
	return s.findUsers(ctx, bson.M{}, opts)
}

func (s *MongoStore) InsertPointsAward(ctx context.Context, award *models.PointsAward) error {
	if award.ID.IsZero() {
		award.ID = primitive.NewObjectID()
	}
	if _, err := s.pointsAwards.InsertOne(ctx, award); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *MongoStore) ListPointsAwards(ctx context.Context, user primitive.ObjectID) ([]models.PointsAward, error) {
	opts := options.Find().SetSort(bson.D{{Key: "earnedAt", Value: -1}})
	cursor, err := s.pointsAwards.Find(ctx, bson.M{"user": user}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var awards []models.PointsAward
	if err := cursor.All(ctx, &awards); err != nil {
		return nil, err
	}
	return awards, nil
}

func (s *MongoStore) UpsertCategory(ctx context.Context, category *models.Category) error {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var stored models.Category
	err := s.categories.FindOneAndUpdate(ctx,
		bson.M{"name": category.Name},
		bson.M{"$set": bson.M{"icon": category.Icon}},
		opts,
	).Decode(&stored)
	if err != nil {
		return err
	}
	category.ID = stored.ID
	return nil
}

func (s *MongoStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *MongoStore) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var category models.Category
	if err := s.categories.FindOne(ctx, bson.M{"name": name}).Decode(&category); err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

func (s *MongoStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	_, err := s.issues.InsertOne(ctx, issue)
	return err
}

func (s *MongoStore) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	if err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue); err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}

func issueFilterDoc(f IssueFilter) bson.M {
	filter := bson.M{}
	if f.ReportedBy != nil {
		filter["reportedBy"] = *f.ReportedBy
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.PublishedOnly {
		filter["published"] = true
	}
	return filter
}

func (s *MongoStore) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.issues.Find(ctx, issueFilterDoc(f), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *MongoStore) CountIssues(ctx context.Context, f IssueFilter) (int64, error) {
	return s.issues.CountDocuments(ctx, issueFilterDoc(f))
}

type groupCount struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (s *MongoStore) countBy(ctx context.Context, field string) ([]groupCount, error) {
	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":   "$" + field,
				"count": bson.M{"$sum": 1},
			},
		},
	}
	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []groupCount
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *MongoStore) CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error) {
	groups, err := s.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	counts := make(map[models.IssueStatus]int64, len(groups))
	for _, g := range groups {
		counts[models.IssueStatus(g.Key)] = g.Count
	}
	return counts, nil
}

func (s *MongoStore) CountIssuesByCategory(ctx context.Context) (map[string]int64, error) {
	groups, err := s.countBy(ctx, "category")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(groups))
	for _, g := range groups {
		counts[g.Key] = g.Count
	}
	return counts, nil
}

func (s *MongoStore) UpdateIssue(ctx context.Context, id primitive.ObjectID, guard IssueGuard, update IssueUpdate) (*models.Issue, error) {
	filter := bson.M{"_id": id}
	if len(guard.Statuses) > 0 {
		filter["status"] = bson.M{"$in": guard.Statuses}
	}
	if guard.Published {
		filter["published"] = true
	}
	if guard.AcceptedBy != nil {
		filter["acceptedBy"] = *guard.AcceptedBy
	}
	if guard.ResolvedBy != nil {
		filter["resolvedBy"] = *guard.ResolvedBy
	}

	set := bson.M{}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.Published != nil {
		set["published"] = *update.Published
	}
	if update.BountyAmount != nil {
		set["bountyAmount"] = *update.BountyAmount
	}
	if update.AcceptedBy != nil {
		set["acceptedBy"] = *update.AcceptedBy
	}
	if update.ResolvedBy != nil {
		set["resolvedBy"] = *update.ResolvedBy
	}
	unset := bson.M{}
	if update.ImageURL != nil {
		if *update.ImageURL == "" {
			unset["imageUrl"] = ""
		} else {
			set["imageUrl"] = *update.ImageURL
		}
	}
	if update.ResolvedBy == nil && update.ClearResolvedBy {
		unset["resolvedBy"] = ""
	}
	if !update.UpdatedAt.IsZero() {
		set["updatedAt"] = update.UpdatedAt
	}

	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var issue models.Issue
	err := s.issues.FindOneAndUpdate(ctx, filter, change, opts).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, guardFailure(ctx, s.issues, id)
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *MongoStore) InsertReward(ctx context.Context, reward *models.MonetaryReward) error {
	if reward.ID.IsZero() {
		reward.ID = primitive.NewObjectID()
	}
	if reward.SystemGranted() && reward.Issue != nil {
		// partial indexes cannot match a missing allottedBy, so system grants
		// are checked before insert
		count, err := s.rewards.CountDocuments(ctx, bson.M{
			"issue":      *reward.Issue,
			"allottedBy": bson.M{"$exists": false},
		})
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
	}
	_, err := s.rewards.InsertOne(ctx, reward)
	return err
}

func (s *MongoStore) GetReward(ctx context.Context, id primitive.ObjectID) (*models.MonetaryReward, error) {
	var reward models.MonetaryReward
	if err := s.rewards.FindOne(ctx, bson.M{"_id": id}).Decode(&reward); err != nil {
		return nil, notFound(err)
	}
	return &reward, nil
}

func (s *MongoStore) ListRewards(ctx context.Context, f RewardFilter) ([]models.MonetaryReward, error) {
	filter := bson.M{}
	if f.User != nil {
		filter["user"] = *f.User
	}
	if f.Issue != nil {
		filter["issue"] = *f.Issue
	}
	if f.SystemOnly {
		filter["allottedBy"] = bson.M{"$exists": false}
	}
	opts := options.Find().SetSort(bson.D{{Key: "allottedAt", Value: -1}})
	cursor, err := s.rewards.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rewards []models.MonetaryReward
	if err := cursor.All(ctx, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (s *MongoStore) SwapRewardStatus(ctx context.Context, id primitive.ObjectID, from models.RewardStatus, update RewardStatusUpdate) (*models.MonetaryReward, error) {
	set := bson.M{"status": update.Status}
	if update.PaidAt != nil {
		set["paidAt"] = *update.PaidAt
	}
	if update.PaymentReference != nil {
		set["paymentReference"] = *update.PaymentReference
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var reward models.MonetaryReward
	err := s.rewards.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
		opts,
	).Decode(&reward)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, guardFailure(ctx, s.rewards, id)
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (s *MongoStore) SumRewards(ctx context.Context, user primitive.ObjectID, statuses []models.RewardStatus) (decimal.Decimal, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"user": user, "status": bson.M{"$in": statuses}}},
		{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}},
	}
	cursor, err := s.rewards.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, err
	}
	defer cursor.Close(ctx)

	var result []struct {
		Total decimal.Decimal `bson:"total"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result) == 0 {
		return decimal.Zero, nil
	}
	return result[0].Total, nil
}
