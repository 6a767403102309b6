package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shop-auth/internal/auth"
	"shop-auth/internal/domain"
	"shop-auth/internal/repository"
)

// invalidCredentials is shared by every credential failure so callers cannot
// tell an unknown email from a wrong password.
const (
	invalidCredentials = "Invalid email or password."
	minPasswordLen     = 8
	// bcrypt refuses longer inputs
	maxPasswordBytes = 72
)

var (
	// ErrUserAlreadyExists is returned when attempting to register an email twice.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidInput wraps validation failures on user supplied fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Registration is the payload accepted by Register.
type Registration struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Age        string
	BirthDate  string
	Profession string
	Engaged    bool
}

// ProfileUpdate holds optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName  *string
	LastName   *string
	Age        *string
	BirthDate  *string
	Profession *string
	Engaged    *bool
}

// UserService describes user lifecycle and credential operations.
type UserService interface {
	Register(ctx context.Context, reg Registration) (*domain.User, error)
	VerifyCredentials(ctx context.Context, creds domain.Credentials) (*domain.User, error)
	ConvertToUserProfile(user *domain.User) domain.UserProfile
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

type userService struct {
	users  repository.UserRepository
	hasher auth.PasswordHasher
	logger logrus.FieldLogger
}

func NewUserService(users repository.UserRepository, hasher auth.PasswordHasher, logger logrus.FieldLogger) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:  users,
		hasher: hasher,
		logger: logger.WithField("component", "users"),
	}
}

func (s *userService) Register(ctx context.Context, reg Registration) (*domain.User, error) {
	email := domain.NormalizeEmail(reg.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	if strings.TrimSpace(reg.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(reg.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(reg.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Age:          strings.TrimSpace(reg.Age),
		BirthDate:    strings.TrimSpace(reg.BirthDate),
		Profession:   strings.TrimSpace(reg.Profession),
		Engaged:      reg.Engaged,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *userService) VerifyCredentials(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	email := domain.NormalizeEmail(creds.Email)
	log := s.logger.WithField("email", email)

	found, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.WithField("reason", "unknown_email").Debug("credential check failed")
			return nil, auth.Unauthorized(invalidCredentials)
		}
		log.WithError(err).Error("lookup by email")
		return nil, auth.Unauthorizedf(err, "Error verifying credentials : %v", err)
	}

	stored, err := s.users.FindByID(ctx, found.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.WithField("reason", "inconsistent_read").Warn("credential check failed")
			return nil, auth.Unauthorized(invalidCredentials)
		}
		log.WithError(err).Error("lookup by id")
		return nil, auth.Unauthorizedf(err, "Error verifying credentials : %v", err)
	}
	if stored.ID != found.ID || domain.NormalizeEmail(stored.Email) != domain.NormalizeEmail(found.Email) {
		log.WithField("reason", "inconsistent_read").Warn("credential check failed")
		return nil, auth.Unauthorized(invalidCredentials)
	}

	if !s.hasher.Compare(creds.Password, stored.PasswordHash) {
		log.WithField("reason", "password_mismatch").Debug("credential check failed")
		return nil, auth.Unauthorized(invalidCredentials)
	}

	return sanitizeUser(stored), nil
}

func (s *userService) ConvertToUserProfile(user *domain.User) domain.UserProfile {
	return domain.UserProfile{
		ID:   user.ID,
		Name: user.DisplayName(),
		Role: domain.RoleClient,
	}
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&user.FirstName, update.FirstName)
	apply(&user.LastName, update.LastName)
	apply(&user.Age, update.Age)
	apply(&user.BirthDate, update.BirthDate)
	apply(&user.Profession, update.Profession)
	if update.Engaged != nil {
		user.Engaged = *update.Engaged
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
