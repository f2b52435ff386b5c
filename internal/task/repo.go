package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Task is an assignment created by a teacher. AssignedTo is empty for
// class-wide (global) tasks.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ClassName   string    `json:"className"`
	AssignedTo  *string   `json:"assignedTo,omitempty"`
	TeacherID   *string   `json:"teacherId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository persists tasks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a task repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new task.
func (r *Repository) Create(ctx context.Context, t Task) (Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, title, description, class_name, assigned_to, teacher_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, t.ID, t.Title, t.Description, t.ClassName, t.AssignedTo, t.TeacherID)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return Task{}, err
	}
	return t, nil
}

// All returns every task, newest first.
func (r *Repository) All(ctx context.Context) ([]Task, error) {
	return r.scan(ctx, `
		SELECT id, title, description, class_name, assigned_to, teacher_id, created_at
		FROM tasks ORDER BY created_at DESC
	`)
}

// ByTeacher returns tasks created by a teacher.
func (r *Repository) ByTeacher(ctx context.Context, teacherID string) ([]Task, error) {
	return r.scan(ctx, `
		SELECT id, title, description, class_name, assigned_to, teacher_id, created_at
		FROM tasks WHERE teacher_id = $1 ORDER BY created_at DESC
	`, teacherID)
}

// ByAssignee returns tasks assigned directly to a student.
func (r *Repository) ByAssignee(ctx context.Context, userID string) ([]Task, error) {
	return r.scan(ctx, `
		SELECT id, title, description, class_name, assigned_to, teacher_id, created_at
		FROM tasks WHERE assigned_to = $1 ORDER BY created_at DESC
	`, userID)
}

// Unassigned returns class-wide tasks with no direct assignee.
func (r *Repository) Unassigned(ctx context.Context) ([]Task, error) {
	return r.scan(ctx, `
		SELECT id, title, description, class_name, assigned_to, teacher_id, created_at
		FROM tasks WHERE assigned_to IS NULL ORDER BY created_at DESC
	`)
}

func (r *Repository) scan(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.ClassName, &t.AssignedTo, &t.TeacherID, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
