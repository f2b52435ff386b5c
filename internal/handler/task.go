package handler

import (
	"errors"
	"log"
	"net/http"

	"campusaccess/internal/task"
	"campusaccess/internal/user"

	"github.com/gin-gonic/gin"
)

// AddTask creates an assignment, optionally targeted at one student.
func (h *Handler) AddTask(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ClassName   string `json:"className"`
		AssignedTo  string `json:"assignedTo"`
		TeacherID   string `json:"teacherId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}
	created, err := h.tasks.Create(c.Request.Context(), req.Title, req.Description, req.ClassName, req.AssignedTo, req.TeacherID)
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	case err != nil:
		log.Printf("add task failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to assign task")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task assigned successfully",
		"task":    created,
	})
}

// ListTasks returns all tasks, or a teacher's own when teacherId is set.
func (h *Handler) ListTasks(c *gin.Context) {
	teacherID := c.Query("teacherId")
	tasks, err := h.tasks.List(c.Request.Context(), teacherID)
	if err != nil {
		log.Printf("list tasks failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Tasks fetched successfully",
		"tasks":    tasks,
		"filtered": teacherID != "",
	})
}

// TeacherStudents lists all student accounts for assignment pickers.
func (h *Handler) TeacherStudents(c *gin.Context) {
	users, err := h.users.All(c.Request.Context())
	if err != nil {
		log.Printf("list students failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to fetch students")
		return
	}
	students := []user.User{}
	for _, u := range users {
		if u.Role == "student" {
			students = append(students, u)
		}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Students fetched successfully",
		"students": students,
	})
}

// StudentTasks merges a student's direct assignments with class-wide tasks.
func (h *Handler) StudentTasks(c *gin.Context) {
	userID := c.Param("userId")
	tasks, counts, err := h.tasks.ForStudent(c.Request.Context(), userID)
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "userId is required")
		return
	case err != nil:
		log.Printf("student tasks for %s failed: %v", userID, err)
		fail(c, http.StatusInternalServerError, "Failed to fetch student tasks")
		return
	}
	if tasks == nil {
		tasks = []task.StudentTask{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Student tasks fetched",
		"tasks":   tasks,
		"counts":  counts,
	})
}
