package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/storage/memory"
)

// captureMailer records the last OTP instead of sending mail, so tests can
// replay it through the verification flows.
type captureMailer struct {
	mu      sync.Mutex
	lastOTP string
	sent    int
}

func (m *captureMailer) SendOTP(ctx context.Context, email, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOTP = otp
	m.sent++
	return nil
}

func (m *captureMailer) otp() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOTP
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	return nil
}

func newTestService(t *testing.T, otpTTL time.Duration) (*Service, *memory.Store, *captureMailer) {
	t.Helper()
	store := memory.NewStore()
	mailer := &captureMailer{}
	tokens := NewTokenIssuer([]byte("test-secret"), 15*time.Minute, 7*24*time.Hour)
	return NewService(store, mailer, nopPublisher{}, tokens, otpTTL), store, mailer
}

func signupInput(username string) SignupInput {
	return SignupInput{
		Email:     username + "@example.com",
		Firstname: "Test",
		Lastname:  "User",
		Username:  username,
		Password:  "s3cret-pass",
	}
}

func TestSignupCreatesUnverifiedUser(t *testing.T) {
	svc, store, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	user, err := svc.Signup(ctx, signupInput("alice"))
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.IsVerified {
		t.Error("new account must start unverified")
	}
	if !user.Balance.IsZero() {
		t.Errorf("new account must start with zero balance, got %s", user.Balance)
	}
	if user.PasswordHash == "s3cret-pass" {
		t.Error("password stored in plaintext")
	}
	if mailer.otp() == "" {
		t.Fatal("no OTP was sent")
	}
	if len(mailer.otp()) != 6 {
		t.Errorf("expected a 6-digit OTP, got %q", mailer.otp())
	}

	stored, err := store.FindUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if stored.VerificationOTP == mailer.otp() {
		t.Error("OTP stored in plaintext")
	}
}

func TestSignupConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupInput("bob")); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	sameEmail := signupInput("bobby")
	sameEmail.Email = "bob@example.com"
	if _, err := svc.Signup(ctx, sameEmail); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict for duplicate email, got %v", err)
	}

	if _, err := svc.Signup(ctx, signupInput("bob")); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict for duplicate username, got %v", err)
	}
}

func TestVerifyAccount(t *testing.T) {
	svc, store, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupInput("carol")); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	if err := svc.VerifyAccount(ctx, "carol@example.com", "000000"); !errors.Is(err, domain.ErrInvalidOTP) {
		t.Errorf("expected invalid OTP error, got %v", err)
	}

	if err := svc.VerifyAccount(ctx, "carol@example.com", mailer.otp()); err != nil {
		t.Fatalf("verification failed: %v", err)
	}

	user, err := store.FindUserByEmail(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !user.IsVerified {
		t.Error("account not marked verified")
	}
	if user.VerificationOTP != "" {
		t.Error("OTP not cleared after verification")
	}

	// Verifying an already verified account is a no-op.
	if err := svc.VerifyAccount(ctx, "carol@example.com", "garbage"); err != nil {
		t.Errorf("re-verification must be a no-op, got %v", err)
	}
}

func TestVerifyAccountExpiredOTP(t *testing.T) {
	// A negative TTL makes every issued OTP already expired.
	svc, _, mailer := newTestService(t, -time.Minute)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupInput("dave")); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if err := svc.VerifyAccount(ctx, "dave@example.com", mailer.otp()); !errors.Is(err, domain.ErrExpiredOTP) {
		t.Errorf("expected expired OTP error, got %v", err)
	}
}

func TestResendOTP(t *testing.T) {
	svc, _, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupInput("erin")); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	first := mailer.otp()

	if err := svc.ResendOTP(ctx, "erin@example.com"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if mailer.sent != 2 {
		t.Errorf("expected 2 OTP mails, got %d", mailer.sent)
	}

	// The old passcode no longer works, the new one does.
	if first != mailer.otp() {
		if err := svc.VerifyAccount(ctx, "erin@example.com", first); !errors.Is(err, domain.ErrInvalidOTP) {
			t.Errorf("stale OTP must be rejected, got %v", err)
		}
	}
	if err := svc.VerifyAccount(ctx, "erin@example.com", mailer.otp()); err != nil {
		t.Fatalf("verification with fresh OTP failed: %v", err)
	}

	if err := svc.ResendOTP(ctx, "erin@example.com"); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("resend for a verified account must fail, got %v", err)
	}
}

func verifiedUser(t *testing.T, svc *Service, mailer *captureMailer, username string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Signup(ctx, signupInput(username)); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if err := svc.VerifyAccount(ctx, username+"@example.com", mailer.otp()); err != nil {
		t.Fatalf("verification failed: %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()
	verifiedUser(t, svc, mailer, "frank")

	pair, err := svc.Login(ctx, "frank@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected both tokens")
	}

	if _, err := svc.Login(ctx, "frank@example.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unknown email must look like bad credentials, got %v", err)
	}
}

func TestLoginUnverified(t *testing.T) {
	svc, _, _ := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupInput("grace")); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if _, err := svc.Login(ctx, "grace@example.com", "s3cret-pass"); !errors.Is(err, domain.ErrAccountNotVerified) {
		t.Errorf("expected not-verified error, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	svc, _, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()
	verifiedUser(t, svc, mailer, "heidi")

	pair, err := svc.Login(ctx, "heidi@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	access, err := svc.RefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if access == "" {
		t.Error("expected a new access token")
	}

	if _, err := svc.RefreshToken(ctx, "not-a-token"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}

	// An access token is not a refresh token once compared against the
	// stored credential.
	if _, err := svc.RefreshToken(ctx, pair.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("access token must not refresh, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	svc, _, mailer := newTestService(t, 15*time.Minute)
	ctx := context.Background()
	verifiedUser(t, svc, mailer, "ivan")

	pair, err := svc.Login(ctx, "ivan@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "ivan@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	otp := mailer.otp()

	if err := svc.VerifyResetOTP(ctx, "ivan@example.com", "999999"); !errors.Is(err, domain.ErrInvalidOTP) {
		t.Errorf("expected invalid OTP, got %v", err)
	}
	if err := svc.VerifyResetOTP(ctx, "ivan@example.com", otp); err != nil {
		t.Fatalf("verify reset OTP failed: %v", err)
	}

	if err := svc.ResetPassword(ctx, "ivan@example.com", otp, "new-pass-123"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if _, err := svc.Login(ctx, "ivan@example.com", "s3cret-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("old password must stop working, got %v", err)
	}
	if _, err := svc.Login(ctx, "ivan@example.com", "new-pass-123"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// The reset revoked the refresh token issued before it.
	if _, err := svc.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("pre-reset refresh token must be revoked, got %v", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t, 15*time.Minute)
	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
