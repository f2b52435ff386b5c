package task

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid input")

// Store is what the service needs from persistence.
type Store interface {
	Create(ctx context.Context, t Task) (Task, error)
	All(ctx context.Context) ([]Task, error)
	ByTeacher(ctx context.Context, teacherID string) ([]Task, error)
	ByAssignee(ctx context.Context, userID string) ([]Task, error)
	Unassigned(ctx context.Context) ([]Task, error)
}

// Service owns task assignment and the student task view.
type Service struct {
	store Store
}

// NewService creates a task service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates and stores a new task.
func (s *Service) Create(ctx context.Context, title, description, className, assignedTo, teacherID string) (Task, error) {
	if title == "" || description == "" || className == "" {
		return Task{}, fmt.Errorf("%w: title, description, and class name are required", ErrInvalidInput)
	}
	t := Task{Title: title, Description: description, ClassName: className}
	if assignedTo != "" {
		t.AssignedTo = &assignedTo
	}
	if teacherID != "" {
		t.TeacherID = &teacherID
	}
	return s.store.Create(ctx, t)
}

// List returns all tasks, or only a teacher's when teacherID is set.
func (s *Service) List(ctx context.Context, teacherID string) ([]Task, error) {
	if teacherID != "" {
		return s.store.ByTeacher(ctx, teacherID)
	}
	return s.store.All(ctx)
}

// StudentTask carries the assignment scope for a student's merged view.
type StudentTask struct {
	Task
	AssignedScope string `json:"assignedScope"` // "direct" or "global"
}

// StudentCounts reports the merged view's composition.
type StudentCounts struct {
	Direct int `json:"direct"`
	Global int `json:"global"`
	Total  int `json:"total"`
}

// ForStudent merges tasks assigned directly to the student with class-wide
// tasks. Direct tasks take precedence when an id appears in both.
func (s *Service) ForStudent(ctx context.Context, userID string) ([]StudentTask, StudentCounts, error) {
	if userID == "" {
		return nil, StudentCounts{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	direct, err := s.store.ByAssignee(ctx, userID)
	if err != nil {
		return nil, StudentCounts{}, err
	}
	global, err := s.store.Unassigned(ctx)
	if err != nil {
		return nil, StudentCounts{}, err
	}

	merged := map[string]StudentTask{}
	var order []string
	for _, t := range global {
		merged[t.ID] = StudentTask{Task: t, AssignedScope: "global"}
		order = append(order, t.ID)
	}
	for _, t := range direct {
		if _, ok := merged[t.ID]; !ok {
			order = append(order, t.ID)
		}
		merged[t.ID] = StudentTask{Task: t, AssignedScope: "direct"}
	}

	out := make([]StudentTask, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	counts := StudentCounts{Direct: len(direct), Global: len(global), Total: len(out)}
	return out, counts, nil
}
