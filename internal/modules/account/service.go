// README: Account service: registration with a points account, login with session tokens.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"rideshare/internal/logging"
	"rideshare/internal/types"
)

// PointsOpener gives a new user their starting balance. It must tolerate repeats.
type PointsOpener interface {
	OpenAccount(ctx context.Context, userID types.ID) error
}

type Service struct {
	store    Store
	points   PointsOpener
	tokens   *TokenService
	validate *validator.Validate
	log      *logrus.Entry
	now      func() time.Time
}

func NewService(store Store, points PointsOpener, tokens *TokenService) *Service {
	return &Service{
		store:    store,
		points:   points,
		tokens:   tokens,
		validate: validator.New(),
		log:      logging.Module(nil, "account"),
		now:      time.Now,
	}
}

func (s *Service) WithLogger(logger *logrus.Logger) *Service {
	s.log = logging.Module(logger, "account")
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a := &Account{
		ID:           types.NewID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	if err := s.points.OpenAccount(ctx, a.ID); err != nil {
		// Login opens the balance again.
		s.log.WithError(err).WithField("user_id", a.ID).Warn("opening points account failed, deferring to login")
	}
	s.log.WithField("user_id", a.ID).Info("account registered")
	return a, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.points.OpenAccount(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("open points account: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}
	a.PasswordHash = ""
	return &Session{Token: token, ExpiresAt: expiresAt, Account: a}, nil
}
