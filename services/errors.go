package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidTransition is returned for a status change the workflow
	// does not allow, such as resolving an issue twice.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports bad input on a single field. No state is changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError rejects an actor. Redirect names the page the client
// should send the user to.
type AuthorizationError struct {
	Message  string
	Redirect string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// AggregateUpdateError wraps a failed write to a profile's cached reward
// total. It is logged and never returned to callers.
type AggregateUpdateError struct {
	UserID primitive.ObjectID
	Delta  decimal.Decimal
	Err    error
}

func (e *AggregateUpdateError) Error() string {
	return fmt.Sprintf("adjust total rewards of %s by %s: %v", e.UserID.Hex(), e.Delta, e.Err)
}

func (e *AggregateUpdateError) Unwrap() error {
	return e.Err
}
