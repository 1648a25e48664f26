package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tobyv/vidrelay/internal/auth"
	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/store"
)

type AuthHandler struct {
	users  *store.UserRepository
	tokens *auth.TokenIssuer
	log    *slog.Logger
}

func NewAuthHandler(users *store.UserRepository, tokens *auth.TokenIssuer, log *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

type authResponse struct {
	Token  string     `json:"token"`
	UserID string     `json:"user_id"`
	User   store.User `json:"user"`
}

// Signup registers a new user and returns a session token.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req auth.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := auth.ValidateSignup(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	user, err := h.users.Create(req.Email, req.FullName, hash)
	if errors.Is(err, errs.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
		return
	}
	if err != nil {
		h.log.Error("user creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.log.Error("token generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: token, UserID: user.ID, User: user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errs.ErrInvalidLogin.Error()})
		return
	}
	if err != nil {
		h.log.Error("user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errs.ErrInvalidLogin.Error()})
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.log.Error("token generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token, UserID: user.ID, User: user})
}
