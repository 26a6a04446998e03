// Package account implements hosting-account registration, login, and the
// e-mailed split-token flows for password reset and address change.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/hostdesk/internal/clock"
	"github.com/kuitang/hostdesk/internal/db"
	"github.com/kuitang/hostdesk/internal/email"
	"github.com/kuitang/hostdesk/internal/errs"
	"github.com/kuitang/hostdesk/internal/logutil"
	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/splittoken"
)

var (
	ErrAccountExists      = errs.New(errs.FailedPrecondition, "account already exists")
	ErrAccountNotFound    = errs.New(errs.NotFound, "account not found")
	ErrInvalidCredentials = errs.New(errs.Unauthenticated, "invalid credentials")
	ErrWeakPassword       = errs.New(errs.InvalidArgument, "password must be at least 8 characters")
	ErrInvalidEmail       = errs.New(errs.InvalidArgument, "invalid email address")
	ErrEmailTaken         = errs.New(errs.FailedPrecondition, "email address is already in use")
	ErrInvalidToken       = errs.New(errs.PermissionDenied, "invalid or expired token")
)

const MinPasswordLength = 8

// Default token lifetimes.
const (
	DefaultResetTTL       = time.Hour
	DefaultEmailChangeTTL = 24 * time.Hour
)

// Account is a registered hosting customer.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config holds the settings the flows need.
type Config struct {
	BaseURL        string
	ResetTTL       time.Duration
	EmailChangeTTL time.Duration
}

// Service handles account management.
type Service struct {
	db        *db.DB
	tokens    *splittoken.Factory
	passwords splittoken.Hasher
	email     email.EmailService
	cfg       Config
	clock     clock.Clock
}

// NewService creates an account service. tokens hashes split-token verifiers,
// passwords hashes account passwords.
func NewService(database *db.DB, tokens *splittoken.Factory, passwords splittoken.Hasher, emailSvc email.EmailService, cfg Config) *Service {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.EmailChangeTTL <= 0 {
		cfg.EmailChangeTTL = DefaultEmailChangeTTL
	}
	return &Service{
		db:        database,
		tokens:    tokens,
		passwords: passwords,
		email:     emailSvc,
		cfg:       cfg,
		clock:     clock.Real{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
// The token factory keeps its own clock; tests pass the same one to both.
func (s *Service) SetClock(c clock.Clock) {
	s.clock = c
}

// Register creates an account with email/password.
func (s *Service) Register(ctx context.Context, emailAddr, password string) (*Account, error) {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	passwordHash, err := s.passwords.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	id := uuid.NewString()
	err = s.db.Queries().CreateAccount(ctx, db.CreateAccountParams{
		ID:           id,
		Email:        addr,
		PasswordHash: passwordHash,
		CreatedAt:    now.UnixMilli(),
	})
	if db.IsUniqueViolation(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger := obs.From(obs.WithAccountID(ctx, id)).With("pkg", "account")
	logger.Info("account_registered", "email", logutil.MaskEmail(addr))

	if err := s.email.Send(addr, email.TemplateWelcome, email.WelcomeData{Email: addr}); err != nil {
		logger.Warn("welcome_email_failed", "error", err)
	}

	ts := time.UnixMilli(now.UnixMilli()).UTC()
	return &Account{ID: id, Email: addr, CreatedAt: ts, UpdatedAt: ts}, nil
}

// VerifyLogin checks email/password credentials. Unknown addresses and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) VerifyLogin(ctx context.Context, emailAddr, password string) (*Account, error) {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	row, err := s.db.Queries().GetAccountByEmail(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if row.PasswordHash == "" || !s.passwords.Verify([]byte(password), row.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return accountFromRow(row), nil
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	row, err := s.db.Queries().GetAccountByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return accountFromRow(row), nil
}

// ValidatePasswordStrength checks if a password meets minimum requirements.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// NormalizeEmail trims and lower-cases addr and checks it is a bare address.
func NormalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

func accountFromRow(row db.Account) *Account {
	return &Account{
		ID:        row.ID,
		Email:     row.Email,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
	}
}
