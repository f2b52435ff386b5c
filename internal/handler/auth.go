package handler

import (
	"errors"
	"log"
	"net/http"

	"campusaccess/internal/auth"
	"campusaccess/internal/user"

	"github.com/gin-gonic/gin"
)

// Login checks credentials and returns the user plus a JWT session pair.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, user.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	case errors.Is(err, user.ErrNotFound):
		fail(c, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, user.ErrAccountDeactivated):
		fail(c, http.StatusForbidden, "Account is deactivated. Please contact administration.")
		return
	case errors.Is(err, user.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid password")
		return
	case err != nil:
		log.Printf("login failed: %v", err)
		fail(c, http.StatusInternalServerError, "Login failed")
		return
	}

	tokens, err := auth.Issue(u.ID, u.Role, h.session.Issuer, h.session.SigningKey, h.session.AccessTTL, h.session.RefreshTTL)
	if err != nil {
		log.Printf("session token issue failed: %v", err)
		fail(c, http.StatusInternalServerError, "token issue failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Login successful",
		"user":         u,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresAt":    tokens.AccessExp.Unix(),
	})
}

// Register creates an account with a caller-chosen password.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.FullName, req.Email, req.Role, req.Password)
	switch {
	case errors.Is(err, user.ErrDuplicateEmail):
		fail(c, http.StatusBadRequest, "User already exists")
		return
	case errors.Is(err, user.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("register failed: %v", err)
		fail(c, http.StatusInternalServerError, "Registration failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"user":    u,
	})
}

// ChangePassword verifies the old password and stores a new hash.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email, old password, and new password are required")
		return
	}
	err := h.users.ChangePassword(c.Request.Context(), req.Email, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid password")
		return
	case errors.Is(err, user.ErrNotFound):
		fail(c, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, user.ErrInvalidInput), errors.Is(err, user.ErrAccountDeactivated):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("change password failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully"})
}
