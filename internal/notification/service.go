package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoRecipients  = errors.New("no users found for target role")
	ErrInvalidTarget = errors.New("invalid target role")
)

// Recipient is the audience slice the fan-out needs per user.
type Recipient struct {
	UserID string
	Email  string
}

// Store is what the service needs from persistence.
type Store interface {
	Broadcast(ctx context.Context, n Notification, fanOut []UserNotification) (Notification, error)
	ByUser(ctx context.Context, userID string, limit int) ([]UserNotification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// Audience resolves a target role to its recipients; role "all" means every
// user.
type Audience interface {
	Recipients(ctx context.Context, role string) ([]Recipient, error)
}

// Service fans broadcasts out to per-user rows and serves read state.
type Service struct {
	store    Store
	audience Audience
	now      func() time.Time
}

// NewService creates a notification service.
func NewService(store Store, audience Audience) *Service {
	return &Service{store: store, audience: audience, now: time.Now}
}

var validTargets = map[string]bool{"all": true, "teacher": true, "student": true, "guard": true}

// Broadcast validates the target, resolves its audience, and writes the
// notification plus one row per recipient. Returns the notification and the
// recipient count.
func (s *Service) Broadcast(ctx context.Context, title, message, targetRole string) (Notification, int, error) {
	if title == "" || message == "" || targetRole == "" {
		return Notification{}, 0, fmt.Errorf("%w: title, message, and target role are required", ErrInvalidInput)
	}
	target := strings.ToLower(targetRole)
	if !validTargets[target] {
		return Notification{}, 0, fmt.Errorf("%w: %q", ErrInvalidTarget, targetRole)
	}

	recipients, err := s.audience.Recipients(ctx, target)
	if err != nil {
		return Notification{}, 0, err
	}
	if len(recipients) == 0 {
		return Notification{}, 0, fmt.Errorf("%w: %s", ErrNoRecipients, target)
	}

	fanOut := make([]UserNotification, 0, len(recipients))
	for _, rcpt := range recipients {
		fanOut = append(fanOut, UserNotification{UserID: rcpt.UserID, UserEmail: rcpt.Email})
	}
	n, err := s.store.Broadcast(ctx, Notification{
		Title:      title,
		Message:    message,
		TargetRole: target,
		CreatedBy:  "admin",
		IsActive:   true,
	}, fanOut)
	if err != nil {
		return Notification{}, 0, err
	}
	return n, len(recipients), nil
}

// ForUser lists a user's notifications, newest first.
func (s *Service) ForUser(ctx context.Context, userID string, limit int) ([]UserNotification, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ByUser(ctx, userID, limit)
}

// MarkRead flags a notification row as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: notification id is required", ErrInvalidInput)
	}
	return s.store.MarkRead(ctx, id, s.now().UTC())
}
