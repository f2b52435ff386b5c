package handler

import (
	"time"

	"campusaccess/internal/attendance"
	"campusaccess/internal/mailer"
	"campusaccess/internal/notification"
	"campusaccess/internal/qrtoken"
	"campusaccess/internal/task"
	"campusaccess/internal/user"

	"github.com/gin-gonic/gin"
)

// SessionConfig carries what login needs to mint JWT session tokens.
type SessionConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler serves the HTTP API. Fields left nil disable their endpoints
// (tests wire only what they exercise).
type Handler struct {
	issuer        *qrtoken.Issuer
	attendance    *attendance.Service
	users         *user.Service
	notifications *notification.Service
	tasks         *task.Service
	mail          *mailer.Mailer
	scanBaseURL   string
	session       SessionConfig
}

// New wires the handler.
func New(issuer *qrtoken.Issuer, att *attendance.Service, users *user.Service, notifications *notification.Service, tasks *task.Service, mail *mailer.Mailer, scanBaseURL string, session SessionConfig) *Handler {
	return &Handler{
		issuer:        issuer,
		attendance:    att,
		users:         users,
		notifications: notifications,
		tasks:         tasks,
		mail:          mail,
		scanBaseURL:   scanBaseURL,
		session:       session,
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
