package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"campusaccess/internal/notification"

	"github.com/gin-gonic/gin"
)

// SendNotification broadcasts to a role audience, fanning out one row per
// recipient.
func (h *Handler) SendNotification(c *gin.Context) {
	var req struct {
		Title      string `json:"title"`
		Message    string `json:"message"`
		TargetRole string `json:"targetRole"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Title, message, and target role are required")
		return
	}
	n, count, err := h.notifications.Broadcast(c.Request.Context(), req.Title, req.Message, req.TargetRole)
	switch {
	case errors.Is(err, notification.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "Title, message, and target role are required")
		return
	case errors.Is(err, notification.ErrInvalidTarget):
		fail(c, http.StatusBadRequest, "Invalid target role. Must be all, teacher, student, or guard.")
		return
	case errors.Is(err, notification.ErrNoRecipients):
		fail(c, http.StatusNotFound, fmt.Sprintf("No users found for role: %s", req.TargetRole))
		return
	case err != nil:
		log.Printf("notification broadcast failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to send notification")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": fmt.Sprintf("Notification sent successfully to %d users", count),
		"notification": gin.H{
			"id":             n.ID,
			"title":          n.Title,
			"message":        n.Message,
			"targetRole":     n.TargetRole,
			"createdAt":      n.CreatedAt,
			"recipientCount": count,
		},
	})
}

// UserNotifications lists a user's notifications, newest first.
func (h *Handler) UserNotifications(c *gin.Context) {
	userID := c.Param("userId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	items, err := h.notifications.ForUser(c.Request.Context(), userID, limit)
	switch {
	case errors.Is(err, notification.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "User ID is required")
		return
	case err != nil:
		log.Printf("notification query for %s failed: %v", userID, err)
		fail(c, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if items == nil {
		items = []notification.UserNotification{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Notifications fetched successfully",
		"notifications": items,
		"count":         len(items),
	})
}

// MarkNotificationRead flags one per-user notification row as read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id := c.Param("notificationId")
	if err := h.notifications.MarkRead(c.Request.Context(), id); err != nil {
		if errors.Is(err, notification.ErrInvalidInput) {
			fail(c, http.StatusBadRequest, "Notification ID is required")
			return
		}
		log.Printf("mark notification %s read failed: %v", id, err)
		fail(c, http.StatusInternalServerError, "Failed to mark notification as read")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification marked as read"})
}
