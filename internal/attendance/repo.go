package attendance

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Repository persists the attendance ledger in Postgres. It only knows how
// to insert and read; there is no update or delete path for records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a ledger repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append writes a new record, assigning an id and createdAt if absent.
func (r *Repository) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Date == "" {
		rec.Date = rec.Timestamp.Format("2006-01-02")
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, type, date, occurred_at, location)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, rec.ID, rec.UserID, rec.Type, rec.Date, rec.Timestamp, rec.Location)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ByUser returns all of a user's records, newest first. If the ordered query
// fails, it falls back to an unordered fetch sorted in memory rather than
// surfacing the error.
func (r *Repository) ByUser(ctx context.Context, userID string) ([]Record, error) {
	records, err := r.scan(ctx, `
		SELECT id, user_id, type, date, occurred_at, location, created_at
		FROM attendance_records
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Printf("ordered attendance query failed, falling back to unordered: %v", err)
		records, err = r.scan(ctx, `
			SELECT id, user_id, type, date, occurred_at, location, created_at
			FROM attendance_records
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return nil, err
		}
		sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	}
	return records, nil
}

// ByDate returns all records for a calendar day, oldest first.
func (r *Repository) ByDate(ctx context.Context, date string) ([]Record, error) {
	return r.scan(ctx, `
		SELECT id, user_id, type, date, occurred_at, location, created_at
		FROM attendance_records
		WHERE date = $1
		ORDER BY occurred_at ASC
	`, date)
}

// Recent returns the newest records across all users.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.scan(ctx, `
		SELECT id, user_id, type, date, occurred_at, location, created_at
		FROM attendance_records
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

func (r *Repository) scan(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Date, &rec.Timestamp, &rec.Location, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
