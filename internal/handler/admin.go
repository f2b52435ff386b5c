package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"campusaccess/internal/attendance"
	"campusaccess/internal/metrics"
	"campusaccess/internal/user"

	"github.com/gin-gonic/gin"
)

type dashboardStats struct {
	TotalUsers        int `json:"totalUsers"`
	TotalEntriesToday int `json:"totalEntriesToday"`
	TotalExitsToday   int `json:"totalExitsToday"`
	ActiveUsers       int `json:"activeUsers"`
	Teachers          int `json:"teachers"`
	Students          int `json:"students"`
	Guards            int `json:"guards"`
	Admins            int `json:"admins"`
}

// stats degrades gracefully: an aggregate failure yields zero counts plus a
// warning instead of failing the whole dashboard request.
func (h *Handler) stats(ctx context.Context) (dashboardStats, string) {
	var warning string
	var stats dashboardStats

	users, err := h.users.All(ctx)
	if err != nil {
		log.Printf("dashboard user query failed: %v", err)
		warning = "user stats unavailable"
	} else {
		counts := user.RoleCounts(users)
		stats.TotalUsers = len(users)
		stats.Teachers = counts["teacher"]
		stats.Students = counts["student"]
		stats.Guards = counts["guard"]
		stats.Admins = counts["admin"]
	}

	summary, err := h.attendance.Summary(ctx, h.attendance.Today())
	if err != nil {
		log.Printf("dashboard attendance query failed: %v", err)
		warning = "attendance stats unavailable"
	} else {
		stats.TotalEntriesToday = summary.TotalEntries
		stats.TotalExitsToday = summary.TotalExits
		stats.ActiveUsers = len(summary.ActiveUserIDs)
	}
	return stats, warning
}

// Dashboard returns user totals, role counts, and today's attendance
// aggregate.
func (h *Handler) Dashboard(c *gin.Context) {
	stats, warning := h.stats(c.Request.Context())
	c.Header("Cache-Control", "no-store")
	resp := gin.H{
		"success": true,
		"message": "Dashboard data fetched successfully",
		"stats":   stats,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	c.JSON(http.StatusOK, resp)
}

// DashboardWithActivity combines the dashboard stats with the recent
// activity feed in a single response.
func (h *Handler) DashboardWithActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	stats, warning := h.stats(c.Request.Context())

	recent, err := h.attendance.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("dashboard activity query failed: %v", err)
		warning = "recent activity unavailable"
		recent = []attendance.EnrichedRecord{}
	}
	if recent == nil {
		recent = []attendance.EnrichedRecord{}
	}

	c.Header("Cache-Control", "no-store")
	resp := gin.H{
		"success":        true,
		"message":        "Dashboard data with activity fetched successfully",
		"stats":          stats,
		"recentActivity": recent,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	c.JSON(http.StatusOK, resp)
}

// Users lists every account.
func (h *Handler) Users(c *gin.Context) {
	users, err := h.users.All(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []user.User{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Users fetched successfully",
		"users":   users,
	})
}

// CreateUser registers an account and mails generated credentials to the
// personal address. Mail failure is reported as a flag, not an error.
func (h *Handler) CreateUser(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}
	res, err := h.users.Create(c.Request.Context(), req.FullName, req.Email, req.Role)
	switch {
	case errors.Is(err, user.ErrDuplicateEmail):
		fail(c, http.StatusBadRequest, "User with this email already exists.")
		return
	case errors.Is(err, user.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("create user failed: %v", err)
		fail(c, http.StatusInternalServerError, "Server error while creating user")
		return
	}
	if res.EmailSent {
		metrics.Emails.WithLabelValues("queued").Inc()
	} else {
		metrics.Emails.WithLabelValues("failed").Inc()
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "User created successfully and credentials sent to email!",
		"user":      res.User,
		"emailSent": res.EmailSent,
	})
}

// TestEmail sends a probe message to verify SMTP configuration.
func (h *Handler) TestEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "Email address is required for testing")
		return
	}
	if h.mail == nil || !h.mail.Configured() {
		fail(c, http.StatusInternalServerError, "Email service not configured")
		return
	}
	body := "This is a test email from the College Access Management System.\n\nIf you received this, the email configuration is working."
	if err := h.mail.Send(req.Email, "College Access Management - Email Test", body); err != nil {
		metrics.Emails.WithLabelValues("failed").Inc()
		fail(c, http.StatusInternalServerError, "Failed to send test email")
		return
	}
	metrics.Emails.WithLabelValues("sent").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test email sent successfully!"})
}
