package notification

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Notification is a broadcast sent to a role audience.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TargetRole string    `json:"targetRole"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy"`
	IsActive   bool      `json:"isActive"`
}

// UserNotification is the per-recipient fan-out row with its read state.
type UserNotification struct {
	ID             string     `json:"id"`
	NotificationID string     `json:"notificationId"`
	UserID         string     `json:"userId"`
	UserEmail      string     `json:"userEmail"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	TargetRole     string     `json:"targetRole"`
	IsRead         bool       `json:"isRead"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// Repository persists notifications in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a notification repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Broadcast writes the notification and all of its per-user rows in one
// transaction, so a partial fan-out is never visible.
func (r *Repository) Broadcast(ctx context.Context, n Notification, fanOut []UserNotification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Notification{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO notifications (id, title, message, target_role, created_by, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, n.ID, n.Title, n.Message, n.TargetRole, n.CreatedBy, n.IsActive)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return Notification{}, err
	}

	for _, un := range fanOut {
		if un.ID == "" {
			un.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_notifications (id, notification_id, user_id, user_email, title, message, target_role, is_read)
			VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE)
		`, un.ID, n.ID, un.UserID, un.UserEmail, n.Title, n.Message, n.TargetRole)
		if err != nil {
			return Notification{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ByUser lists a user's notifications, newest first. An ordered-query
// failure degrades to an unordered fetch sorted in memory.
func (r *Repository) ByUser(ctx context.Context, userID string, limit int) ([]UserNotification, error) {
	if limit <= 0 {
		limit = 20
	}
	items, err := r.scan(ctx, `
		SELECT id, notification_id, user_id, user_email, title, message, target_role, is_read, created_at, read_at
		FROM user_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		log.Printf("ordered notification query failed, falling back to unordered: %v", err)
		items, err = r.scan(ctx, `
			SELECT id, notification_id, user_id, user_email, title, message, target_role, is_read, created_at, read_at
			FROM user_notifications
			WHERE user_id = $1
			LIMIT $2
		`, userID, limit)
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// MarkRead flags a single per-user row as read.
func (r *Repository) MarkRead(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_notifications SET is_read = TRUE, read_at = $2 WHERE id = $1
	`, id, at)
	return err
}

func (r *Repository) scan(ctx context.Context, query string, args ...any) ([]UserNotification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []UserNotification
	for rows.Next() {
		var un UserNotification
		if err := rows.Scan(&un.ID, &un.NotificationID, &un.UserID, &un.UserEmail, &un.Title, &un.Message, &un.TargetRole, &un.IsRead, &un.CreatedAt, &un.ReadAt); err != nil {
			return nil, err
		}
		res = append(res, un)
	}
	return res, rows.Err()
}
