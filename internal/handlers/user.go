package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/models"
	"lostfound-chat/internal/repositories"
	"lostfound-chat/internal/telemetry"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	users  repositories.UserRepository
	audit  *telemetry.AuditEmitter
	logger *zap.Logger
}

func NewUserHandler(users repositories.UserRepository, audit *telemetry.AuditEmitter, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, audit: audit, logger: logger}
}

// GetMe returns the caller's profile.
func (h *UserHandler) GetMe(c *gin.Context) {
	profile, found, err := h.users.GetProfile(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to load profile", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// PutMe creates or replaces the caller's profile.
func (h *UserHandler) PutMe(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		PhotoURL    string `json:"photo_url"`
		Email       string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.users.UpsertProfile(c.Request.Context(), models.UserProfile{
		UID:         c.GetString(middleware.UserIDKey),
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
		Email:       req.Email,
	})
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to save profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
