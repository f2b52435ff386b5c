package handler

import (
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusaccess/internal/attendance"
	"campusaccess/internal/metrics"
	"campusaccess/internal/qrtoken"

	"github.com/gin-gonic/gin"
)

// GenerateQR mints a signed attendance token for a user. Issuance never
// touches the ledger.
func (h *Handler) GenerateQR(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
		Type   string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "userId, role and type are required")
		return
	}
	if req.UserID == "" || req.Role == "" || req.Type == "" {
		fail(c, http.StatusBadRequest, "userId, role and type are required")
		return
	}
	token, payload, err := h.issuer.Issue(req.UserID, req.Role, req.Type)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	metrics.TokensIssued.Inc()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"scanUrl":   qrtoken.ScanURL(h.scanBaseURL, token),
		"expiresAt": payload.ExpiresAt,
	})
}

// QRImage renders a token's scan URL as a PNG QR code for display on the
// requesting device.
func (h *Handler) QRImage(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusBadRequest, "token query parameter is required")
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := qrtoken.PNG(qrtoken.ScanURL(h.scanBaseURL, token), size)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to render QR code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// RecordAttendance redeems a token (or a trusted direct userId+type pair)
// into one ledger record.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		UserID   string `json:"userId"`
		Type     string `json:"type"`
		Location string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.attendance.Redeem(c.Request.Context(), attendance.RedeemRequest{
		Token:    req.Token,
		UserID:   req.UserID,
		Type:     req.Type,
		Location: req.Location,
	}, "Main Gate")
	if err != nil {
		status, message, outcome := redeemError(err)
		metrics.Redemptions.WithLabelValues(outcome).Inc()
		fail(c, status, message)
		return
	}
	metrics.Redemptions.WithLabelValues("success").Inc()
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      capitalized(string(rec.Type)) + " recorded successfully",
		"attendanceId": rec.ID,
	})
}

// ScanAttendance is the browser-GET redemption path for a bare phone camera
// opening the QR URL. Responses are small HTML pages, not JSON.
func (h *Handler) ScanAttendance(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		scanError(c, "Missing token")
		return
	}
	rec, err := h.attendance.Redeem(c.Request.Context(), attendance.RedeemRequest{Token: token}, "QR Scan")
	if err != nil {
		_, message, outcome := redeemError(err)
		metrics.Redemptions.WithLabelValues(outcome).Inc()
		scanError(c, message)
		return
	}
	metrics.Redemptions.WithLabelValues("success").Inc()

	// Name lookup is cosmetic; the write above already happened.
	userName := h.attendance.UserName(c.Request.Context(), rec.UserID)

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(
		`<html><body style="font-family:Arial;padding:20px;">
<h2>Attendance Recorded</h2>
<p><strong>Name:</strong> %s</p>
<p><strong>Type:</strong> %s</p>
<p><strong>Time:</strong> %s</p>
<p style="color:green;font-weight:bold;">Success!</p>
</body></html>`,
		html.EscapeString(userName), rec.Type, rec.Timestamp.Format(time.RFC1123))))
}

// RecentAttendance returns the newest records across all users with joined
// user identities.
func (h *Handler) RecentAttendance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	records, err := h.attendance.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("recent attendance query failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to fetch recent attendance")
		return
	}
	if records == nil {
		records = []attendance.EnrichedRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Recent attendance fetched successfully",
		"attendance": records,
	})
}

// UserAttendance returns one user's full history, newest first.
func (h *Handler) UserAttendance(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		fail(c, http.StatusBadRequest, "User ID required")
		return
	}
	records, err := h.attendance.History(c.Request.Context(), userID)
	if err != nil {
		log.Printf("attendance history for %s failed: %v", userID, err)
		fail(c, http.StatusInternalServerError, "Failed to fetch attendance")
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"attendance": records,
		"count":      len(records),
	})
}

func redeemError(err error) (status int, message, outcome string) {
	switch {
	case errors.Is(err, attendance.ErrTokenExpired):
		return http.StatusBadRequest, "Token expired", "expired"
	case errors.Is(err, attendance.ErrTokenReplayed):
		return http.StatusBadRequest, "Token already used", "replayed"
	case errors.Is(err, attendance.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid or expired token", "invalid"
	case errors.Is(err, attendance.ErrMissingFields):
		return http.StatusBadRequest, "User ID and type are required", "invalid"
	default:
		return http.StatusInternalServerError, "Failed to record attendance", "error"
	}
}

func scanError(c *gin.Context, message string) {
	c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
		[]byte("<h3>"+html.EscapeString(message)+"</h3>"))
}

func capitalized(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
