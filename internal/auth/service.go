// Package auth implements signup with OTP-based email verification, login
// with JWT access/refresh tokens, and the password reset flow.
package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/events"
	"github.com/larexx40/gowagr-test/internal/utils"
	"github.com/shopspring/decimal"
)

// UserStore is the persistence contract for the auth flows.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
}

// Mailer delivers one-time passcodes. Real email delivery is out of scope;
// the default implementation just logs.
type Mailer interface {
	SendOTP(ctx context.Context, email, otp string) error
}

// LogMailer is the development Mailer: it logs the passcode instead of
// sending mail.
type LogMailer struct{}

func (LogMailer) SendOTP(ctx context.Context, email, otp string) error {
	log.Printf("OTP for %s: %s", email, otp)
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

type SignupInput struct {
	Email     string
	Firstname string
	Lastname  string
	Username  string
	Password  string
}

type Service struct {
	store     UserStore
	mailer    Mailer
	publisher Publisher
	tokens    *TokenIssuer
	otpTTL    time.Duration
}

func NewService(store UserStore, mailer Mailer, publisher Publisher, tokens *TokenIssuer, otpTTL time.Duration) *Service {
	return &Service{
		store:     store,
		mailer:    mailer,
		publisher: publisher,
		tokens:    tokens,
		otpTTL:    otpTTL,
	}
}

// Signup creates an unverified user with a zero balance and sends a
// verification OTP. An existing email or username is a conflict.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if existing, err := s.store.FindUserByEmailOrUsername(ctx, in.Email, in.Username); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email or username taken", domain.ErrConflict)
	}

	passwordHash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	otp := utils.GenerateOTP()
	otpHash, err := utils.HashPassword(otp)
	if err != nil {
		return nil, fmt.Errorf("failed to hash otp: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           in.Email,
		Firstname:       in.Firstname,
		Lastname:        in.Lastname,
		Username:        in.Username,
		PasswordHash:    passwordHash,
		Balance:         decimal.Zero,
		VerificationOTP: otpHash,
		OTPExpiresAt:    now.Add(s.otpTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.mailer.SendOTP(ctx, user.Email, otp); err != nil {
		log.Printf("failed to send verification OTP to %s: %v", user.Email, err)
	}
	if err := s.publisher.Publish(ctx, events.UserEventsStream, events.UserCreated, events.UserCreatedEvent{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
	}); err != nil {
		log.Printf("failed to publish %s event: %v", events.UserCreated, err)
	}
	return user, nil
}

// VerifyAccount checks the signup OTP and marks the user verified.
func (s *Service) VerifyAccount(ctx context.Context, email, otp string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}
	if err := s.checkOTP(user, otp); err != nil {
		return err
	}

	user.IsVerified = true
	user.VerificationOTP = ""
	user.OTPExpiresAt = time.Time{}
	return s.store.UpdateUser(ctx, user)
}

// ResendOTP issues a fresh verification OTP for an unverified account.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return fmt.Errorf("%w: account already verified", domain.ErrInvalidOperation)
	}
	return s.issueOTP(ctx, user)
}

// Login checks credentials and returns an access/refresh token pair. The
// refresh token is persisted so it can be revoked by a password reset.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil || !utils.CheckPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, domain.ErrAccountNotVerified
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}
	user.RefreshToken = pair.RefreshToken
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return pair, nil
}

// RefreshToken exchanges a valid, still-current refresh token for a new
// access token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return "", domain.ErrInvalidToken
	}
	return s.tokens.IssueAccess(user)
}

// ForgotPassword sends a password reset OTP.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.issueOTP(ctx, user)
}

// VerifyResetOTP checks a reset OTP without consuming it.
func (s *Service) VerifyResetOTP(ctx context.Context, email, otp string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.checkOTP(user, otp)
}

// ResetPassword sets a new password after OTP verification and revokes the
// stored refresh token.
func (s *Service) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(user, otp); err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = passwordHash
	user.VerificationOTP = ""
	user.OTPExpiresAt = time.Time{}
	user.RefreshToken = ""
	return s.store.UpdateUser(ctx, user)
}

func (s *Service) issueOTP(ctx context.Context, user *domain.User) error {
	otp := utils.GenerateOTP()
	otpHash, err := utils.HashPassword(otp)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}
	user.VerificationOTP = otpHash
	user.OTPExpiresAt = time.Now().UTC().Add(s.otpTTL)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	if err := s.mailer.SendOTP(ctx, user.Email, otp); err != nil {
		log.Printf("failed to send OTP to %s: %v", user.Email, err)
	}
	return nil
}

func (s *Service) checkOTP(user *domain.User, otp string) error {
	if user.VerificationOTP == "" {
		return domain.ErrInvalidOTP
	}
	if !user.OTPExpiresAt.IsZero() && time.Now().UTC().After(user.OTPExpiresAt) {
		return domain.ErrExpiredOTP
	}
	if !utils.CheckPassword(otp, user.VerificationOTP) {
		return domain.ErrInvalidOTP
	}
	return nil
}
