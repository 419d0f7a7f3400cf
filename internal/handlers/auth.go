package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/middleware"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/utils"
)

// PasswordResetSender delivers reset links.
type PasswordResetSender interface {
	SendPasswordReset(ctx context.Context, to, resetURL string, expiry time.Duration) error
}

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Mailer PasswordResetSender
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, mailer PasswordResetSender) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Mailer: mailer}
}

// RegisterRequest represents the request body for doctor self-registration.
// Patients are created by their doctor, admins through the users API.
type RegisterRequest struct {
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Role        string `json:"role" binding:"required,oneof=doctor"`
	Specialty   string `json:"specialty"`
	PhoneNumber string `json:"phoneNumber"`
}

// Signup handles doctor registration.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return // Error response handled by BindAndValidate
	}

	email := normalizeEmail(req.Email)
	if taken, err := emailTaken(h.DB, email, ""); err != nil {
		log.Printf("signup: email lookup: %v", err)
		utils.InternalServerError(c, "Database error")
		return
	} else if taken {
		utils.BadRequest(c, "User with this email already exists")
		return
	}

	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       email,
		Role:        models.Role(req.Role),
		Specialty:   req.Specialty,
		PhoneNumber: req.PhoneNumber,
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		log.Printf("signup: create user: %v", err)
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken string               `json:"accessToken"`
	User        models.UserSanitized `json:"user"`
}

// Login handles login for every role.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			log.Printf("login: %v", err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	accessToken, err := utils.GenerateToken(&user, h.Cfg.JWTSecret, time.Duration(h.Cfg.JWTExpirationMinutes)*time.Minute)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate token")
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken: accessToken,
		User:        user.Sanitize(),
	})
}

// PasswordResetRequest represents the request body for starting a reset.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordReset emails a one-time reset link.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			log.Printf("reset: %v", err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if err := sendResetLink(c.Request.Context(), h.DB, h.Cfg, h.Mailer, &user); err != nil {
		log.Printf("reset: user %s: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to send password reset email")
		return
	}

	utils.Success(c, "Password reset email sent", nil)
}

// ConfirmPasswordResetRequest represents the request body for completing a reset.
type ConfirmPasswordResetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// ConfirmPasswordReset sets a new password using a reset token.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req ConfirmPasswordResetRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	err := h.DB.Where("reset_token = ? AND reset_token_expiry > ?", models.HashResetToken(req.Token), time.Now().UTC()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BadRequest(c, "Invalid or expired reset token")
		} else {
			log.Printf("reset confirm: %v", err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}
	user.ClearResetToken()

	if err := h.DB.Model(&user).Select("password", "reset_token", "reset_token_expiry").Updates(&user).Error; err != nil {
		log.Printf("reset confirm: save user %s: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to update password")
		return
	}

	utils.Success(c, "Password has been reset", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			log.Printf("get profile %s: %v", userID, err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	Specialty   string `json:"specialty"`
	// Email cannot be changed via this endpoint for simplicity, handle separately if needed
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			log.Printf("update profile %s: %v", userID, err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.PhoneNumber != "" {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.Address != "" {
		user.Address = req.Address
	}
	if req.Specialty != "" && user.Role == models.RoleDoctor {
		user.Specialty = req.Specialty
	}

	if err := h.DB.Save(&user).Error; err != nil {
		log.Printf("update profile %s: %v", userID, err)
		utils.InternalServerError(c, "Failed to update profile")
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

// sendResetLink stores a fresh reset token on user and emails the link.
func sendResetLink(ctx context.Context, db *gorm.DB, cfg *config.Config, mailer PasswordResetSender, user *models.User) error {
	ttl := time.Duration(cfg.PasswordResetTokenExpiry) * time.Minute
	token, err := user.IssueResetToken(ttl)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	if err := db.WithContext(ctx).Model(user).Select("reset_token", "reset_token_expiry").Updates(user).Error; err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(cfg.AppURL, "/"), url.QueryEscape(token))
	return mailer.SendPasswordReset(ctx, user.Email, link, ttl)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailTaken reports whether another account (not exceptID) uses email.
func emailTaken(db *gorm.DB, email, exceptID string) (bool, error) {
	var count int64
	q := db.Model(&models.User{}).Where("email = ?", email)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
