package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"shop-auth/internal/domain"
	"shop-auth/internal/repository"
)

// TokenConfig carries the signing secret and token lifetime. ExpiresIn is the
// raw configured value in seconds and is parsed on every Generate call.
type TokenConfig struct {
	Secret    string
	ExpiresIn string
}

// TokenService issues and verifies signed, time-limited user tokens.
type TokenService interface {
	Generate(profile *domain.UserProfile) (string, error)
	// VerifyProfile decodes a token into the profile it was issued for.
	VerifyProfile(token string) (domain.UserProfile, error)
	// VerifyUser resolves the token subject against the store and returns the
	// current record. repository.ErrUserNotFound is returned when the subject no
	// longer exists.
	VerifyUser(ctx context.Context, token, instance string) (*domain.User, error)
}

// Option customises a TokenService.
type Option func(*jwtService)

// WithClock overrides the time source used for signing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *jwtService) {
		if now != nil {
			s.now = now
		}
	}
}

// MaxLifetimeSeconds is the longest lifetime that still fits in a time.Duration.
const MaxLifetimeSeconds = math.MaxInt64 / int64(time.Second)

// ParseLifetime converts a lifetime configured in whole seconds into a duration.
func ParseLifetime(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %d", seconds)
	}
	if seconds > MaxLifetimeSeconds {
		return 0, fmt.Errorf("expiry must be at most %d seconds, got %d", MaxLifetimeSeconds, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

type tokenClaims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Roles  string `json:"roles"`
	jwt.RegisteredClaims
}

type jwtService struct {
	secret    []byte
	expiresIn string
	users     repository.UserRepository
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewTokenService(cfg TokenConfig, users repository.UserRepository, logger logrus.FieldLogger, opts ...Option) TokenService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &jwtService{
		secret:    []byte(cfg.Secret),
		expiresIn: cfg.ExpiresIn,
		users:     users,
		logger:    logger.WithField("component", "token"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *jwtService) Generate(profile *domain.UserProfile) (string, error) {
	if profile == nil {
		return "", Unauthorized("Error generating token : userProfile is null")
	}

	lifetime, err := ParseLifetime(s.expiresIn)
	if err != nil {
		return "", Unauthorizedf(err, "Error encoding token : %v", err)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: profile.ID,
		Name:   profile.Name,
		Roles:  profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Unauthorizedf(err, "Error encoding token : %v", err)
	}
	return signed, nil
}

func (s *jwtService) VerifyProfile(token string) (domain.UserProfile, error) {
	if token == "" {
		return domain.UserProfile{}, Unauthorized("Error verifying token : 'token' is null")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.WithError(err).Debug("token rejected")
		return domain.UserProfile{}, Unauthorizedf(err, "Error verifying token : %v", err)
	}

	profile, err := profileFromClaims(claims)
	if err != nil {
		return domain.UserProfile{}, Unauthorizedf(err, "Error verifying token : %v", err)
	}
	return profile, nil
}

func (s *jwtService) VerifyUser(ctx context.Context, token, instance string) (*domain.User, error) {
	profile, err := s.VerifyProfile(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.WithFields(logrus.Fields{
				"user_id":  profile.ID,
				"instance": instance,
			}).Info("token subject no longer exists")
			return nil, err
		}
		return nil, Unauthorizedf(err, "Error verifying token : %v", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *jwtService) keyFunc(*jwt.Token) (interface{}, error) {
	return s.secret, nil
}

var errMissingSubject = errors.New("token has no subject id")

// profileFromClaims copies the recognised claims and drops everything else.
func profileFromClaims(claims jwt.MapClaims) (domain.UserProfile, error) {
	id, _ := claims["id"].(string)
	if id == "" {
		return domain.UserProfile{}, errMissingSubject
	}
	name, _ := claims["name"].(string)
	role, _ := claims["roles"].(string)
	return domain.UserProfile{ID: id, Name: name, Role: role}, nil
}
