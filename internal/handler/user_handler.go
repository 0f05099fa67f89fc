package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/middleware"
	"github.com/larexx40/gowagr-test/internal/users"
	"github.com/shopspring/decimal"
)

// UserService is the contract used by UserHandler.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.MiniProfile, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	UpdateProfile(ctx context.Context, userID string, in users.UpdateProfileInput) (*domain.User, error)
}

type UserHandler struct {
	service UserService
}

func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{service: service}
}

type UpdateProfileRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username" validate:"omitempty,min=3"`
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	user, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err, "Failed to get profile")
		return
	}
	respond(c, http.StatusOK, "Profile retrieved successfully", user)
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	balance, err := h.service.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err, "Failed to get balance")
		return
	}
	respond(c, http.StatusOK, "Balance retrieved successfully", gin.H{
		"balance": balance.StringFixed(2),
	})
}

// GetByUsername exposes the public mini profile used to confirm a transfer
// recipient before sending money.
func (h *UserHandler) GetByUsername(c *gin.Context) {
	profile, err := h.service.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondDomainError(c, err, "Failed to get user")
		return
	}
	respond(c, http.StatusOK, "User retrieved successfully", profile)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), userID, users.UpdateProfileInput{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Username:  req.Username,
	})
	if err != nil {
		respondDomainError(c, err, "Failed to update profile")
		return
	}
	respond(c, http.StatusOK, "Profile updated successfully", user)
}
