package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/larexx40/gowagr-test/internal/auth"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/middleware"
)

// AuthService is the contract used by AuthHandler.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*domain.User, error)
	VerifyAccount(ctx context.Context, email, otp string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, otp string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
}

type AuthHandler struct {
	service AuthService
}

func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Firstname string `json:"firstname" validate:"required"`
	Lastname  string `json:"lastname" validate:"required"`
	Username  string `json:"username" validate:"required,min=3"`
	Password  string `json:"password" validate:"required,min=8"`
}

type VerifyAccountRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.Signup(c.Request.Context(), auth.SignupInput{
		Email:     req.Email,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Username:  req.Username,
		Password:  req.Password,
	})
	if err != nil {
		respondDomainError(c, err, "Failed to sign up")
		return
	}
	respond(c, http.StatusCreated, "Account created, verification OTP sent", user)
}

func (h *AuthHandler) VerifyAccount(c *gin.Context) {
	var req VerifyAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.service.VerifyAccount(c.Request.Context(), req.Email, req.OTP); err != nil {
		respondDomainError(c, err, "Failed to verify account")
		return
	}
	respond(c, http.StatusOK, "Account verified successfully", nil)
}

func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req EmailRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.service.ResendOTP(c.Request.Context(), req.Email); err != nil {
		respondDomainError(c, err, "Failed to resend OTP")
		return
	}
	respond(c, http.StatusOK, "OTP sent", nil)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondDomainError(c, err, "Failed to log in")
		return
	}
	respond(c, http.StatusOK, "Login successful", pair)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}
	accessToken, err := h.service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondDomainError(c, err, "Failed to refresh token")
		return
	}
	respond(c, http.StatusOK, "Token refreshed", gin.H{"accessToken": accessToken})
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondDomainError(c, err, "Failed to send reset OTP")
		return
	}
	respond(c, http.StatusOK, "Password reset OTP sent", nil)
}

func (h *AuthHandler) VerifyResetOTP(c *gin.Context) {
	var req VerifyAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.service.VerifyResetOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		respondDomainError(c, err, "Failed to verify OTP")
		return
	}
	respond(c, http.StatusOK, "OTP verified", nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		respondDomainError(c, err, "Failed to reset password")
		return
	}
	respond(c, http.StatusOK, "Password reset successfully", nil)
}

// bindAndValidate unmarshals the body and runs struct validation, writing the
// error response itself on failure.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}
