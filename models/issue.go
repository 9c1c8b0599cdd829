package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueStatus enum
type IssueStatus string

const (
	Pending    IssueStatus = "Pending"
	InProgress IssueStatus = "In Progress"
	Resolved   IssueStatus = "Resolved"
)

// IssueStatuses lists the statuses in workflow order.
var IssueStatuses = []IssueStatus{Pending, InProgress, Resolved}

func (s IssueStatus) Valid() bool {
	switch s {
	case Pending, InProgress, Resolved:
		return true
	}
	return false
}

func ParseIssueStatus(s string) (IssueStatus, error) {
	st := IssueStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Priority enum
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority maps an empty value to Medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID                      primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title                   string              `bson:"title" json:"title"`
	Description             string              `bson:"description" json:"description"`
	Category                string              `bson:"category" json:"category"`
	Location                string              `bson:"location" json:"location"`
	Latitude                *float64            `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude               *float64            `bson:"longitude,omitempty" json:"longitude,omitempty"`
	ImageURL                *string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Status                  IssueStatus         `bson:"status" json:"status"`
	Priority                Priority            `bson:"priority" json:"priority"`
	ReportedBy              primitive.ObjectID  `bson:"reportedBy" json:"reportedBy"`
	Published               bool                `bson:"published" json:"published"`
	BountyAmount            decimal.Decimal     `bson:"bountyAmount" json:"bountyAmount"`
	AcceptedBy              *primitive.ObjectID `bson:"acceptedBy,omitempty" json:"acceptedBy,omitempty"`
	ResolvedBy              *primitive.ObjectID `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
	AICategory              string              `bson:"aiCategory" json:"aiCategory"`
	PredictedResolutionTime *time.Time          `bson:"predictedResolutionTime,omitempty" json:"predictedResolutionTime,omitempty"`
	CreatedAt               time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// HasBounty is true when resolving the issue pays out money.
func (i *Issue) HasBounty() bool {
	return i.BountyAmount.IsPositive()
}

// IsAcceptedBy reports whether userID accepted the issue.
func (i *Issue) IsAcceptedBy(userID primitive.ObjectID) bool {
	return i.AcceptedBy != nil && *i.AcceptedBy == userID
}
