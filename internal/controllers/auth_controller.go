package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/services"
)

type AuthController struct {
	users  *services.UserService
	secret string
	expiry time.Duration
}

func NewAuthController(users *services.UserService, cfg config.AuthConfig) *AuthController {
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthController{users: users, secret: cfg.JWTSecret, expiry: expiry}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

type AuthResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := ac.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	case errors.Is(err, services.ErrUserInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	case err != nil:
		logger.WithError(err, "auth_controller").Error("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	ac.respondWithToken(c, http.StatusOK, "Login successful", user)
}

func (ac *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := ac.users.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if errors.Is(err, services.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	if err != nil {
		logger.WithError(err, "auth_controller").Error("Registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	ac.respondWithToken(c, http.StatusCreated, "Registration successful", user)
}

func (ac *AuthController) RefreshToken(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	user, err := ac.users.Get(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	token, expiresAt, err := middleware.GenerateToken(ac.secret, user.ID, user.Email, string(user.Role), ac.expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := ac.users.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, services.ErrWrongPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password changed successfully",
	})
}

func (ac *AuthController) respondWithToken(c *gin.Context, status int, message string, user *models.User) {
	token, expiresAt, err := middleware.GenerateToken(ac.secret, user.ID, user.Email, string(user.Role), ac.expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(status, AuthResponse{
		Success:   true,
		Message:   message,
		Token:     token,
		User:      user,
		ExpiresAt: expiresAt,
	})
}
