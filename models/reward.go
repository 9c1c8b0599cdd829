package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RewardStatus enum
type RewardStatus string

const (
	RewardPending  RewardStatus = "Pending"
	RewardApproved RewardStatus = "Approved"
	RewardPaid     RewardStatus = "Paid"
	RewardRejected RewardStatus = "Rejected"
)

func (s RewardStatus) Valid() bool {
	switch s {
	case RewardPending, RewardApproved, RewardPaid, RewardRejected:
		return true
	}
	return false
}

func ParseRewardStatus(s string) (RewardStatus, error) {
	st := RewardStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid reward status %q", s)
	}
	return st, nil
}

// MonetaryReward is a bounty or manual payout owed to a user. A nil
// AllottedBy marks a grant made by the system.
type MonetaryReward struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User             primitive.ObjectID  `bson:"user" json:"user"`
	Issue            *primitive.ObjectID `bson:"issue,omitempty" json:"issue,omitempty"`
	Amount           decimal.Decimal     `bson:"amount" json:"amount"`
	Reason           string              `bson:"reason" json:"reason"`
	Status           RewardStatus        `bson:"status" json:"status"`
	AllottedBy       *primitive.ObjectID `bson:"allottedBy,omitempty" json:"allottedBy,omitempty"`
	AllottedAt       time.Time           `bson:"allottedAt" json:"allottedAt"`
	PaidAt           *time.Time          `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	PaymentReference string              `bson:"paymentReference" json:"paymentReference"`
}

func (r *MonetaryReward) SystemGranted() bool {
	return r.AllottedBy == nil
}

// PointsAward records a single accrual of points.
type PointsAward struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User     primitive.ObjectID  `bson:"user" json:"user"`
	Issue    *primitive.ObjectID `bson:"issue,omitempty" json:"issue,omitempty"`
	Points   int                 `bson:"points" json:"points"`
	EarnedAt time.Time           `bson:"earnedAt" json:"earnedAt"`
}
