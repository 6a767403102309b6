package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-auth/internal/domain"
	"shop-auth/internal/repository"
)

type fakeUsers struct {
	repository.UserRepository
	byID map[string]*domain.User
	err  error
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, expiresIn string, users repository.UserRepository, clock *fakeClock) TokenService {
	t.Helper()
	logger, _ := test.NewNullLogger()
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	return NewTokenService(TokenConfig{Secret: "myjwts3cr3t", ExpiresIn: expiresIn}, users, logger, opts...)
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	svc := newTestService(t, "604800", nil, nil)
	profile := &domain.UserProfile{ID: "u1", Name: "Ada Lovelace", Role: domain.RoleClient}

	token, err := svc.Generate(profile)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	got, err := svc.VerifyProfile(token)
	require.NoError(t, err)
	assert.Equal(t, *profile, got)
}

func TestGenerate_NilProfile(t *testing.T) {
	svc := newTestService(t, "60", nil, nil)

	_, err := svc.Generate(nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Error generating token : userProfile is null", err.Error())
}

func TestGenerate_InvalidExpiry(t *testing.T) {
	tooLong := strconv.FormatInt(MaxLifetimeSeconds+1, 10)
	for _, expiresIn := range []string{"", "abc", "7d", "0", "-5", "1.5", "10000000000", tooLong} {
		t.Run(expiresIn, func(t *testing.T) {
			svc := newTestService(t, expiresIn, nil, nil)
			_, err := svc.Generate(&domain.UserProfile{ID: "u1"})
			require.Error(t, err)
			assert.True(t, IsUnauthorized(err))
			assert.Contains(t, err.Error(), "Error encoding token")
		})
	}
}

func TestGenerate_LongestLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, strconv.FormatInt(MaxLifetimeSeconds, 10), nil, clock)

	token, err := svc.Generate(&domain.UserProfile{ID: "u1"})
	require.NoError(t, err)

	profile, err := svc.VerifyProfile(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.ID)
}

func TestParseLifetime(t *testing.T) {
	d, err := ParseLifetime(" 3600 ")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = ParseLifetime(strconv.FormatInt(MaxLifetimeSeconds+1, 10))
	assert.ErrorContains(t, err, "at most")
}

func TestVerifyProfile_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, "1", nil, clock)

	token, err := svc.Generate(&domain.UserProfile{ID: "u1", Name: "Ada", Role: domain.RoleClient})
	require.NoError(t, err)

	_, err = svc.VerifyProfile(token)
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Second)
	_, err = svc.VerifyProfile(token)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
	assert.True(t, strings.HasPrefix(err.Error(), "Error verifying token : "))
}

func TestVerifyProfile_Rejects(t *testing.T) {
	svc := newTestService(t, "60", nil, nil)
	token, err := svc.Generate(&domain.UserProfile{ID: "u1", Name: "Ada", Role: domain.RoleClient})
	require.NoError(t, err)

	parts := strings.Split(token, ".")

	other := newTestService(t, "60", nil, nil).(*jwtService)
	other.secret = []byte("another-secret")
	foreign, err := other.Generate(&domain.UserProfile{ID: "u1"})
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":  "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1"}).
		SignedString([]byte("myjwts3cr3t"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": "Ada",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("myjwts3cr3t"))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"wrong secret": foreign,
		"alg none":     noneAlg,
		"malformed":    "not.a.jwt",
		"missing exp":  noExp,
		"missing id":   noSubject,
		"garbage":      "garbage",
		"two segments": parts[0] + "." + parts[1],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.VerifyProfile(tok)
			require.Error(t, err)
			assert.True(t, IsUnauthorized(err))
			assert.True(t, strings.HasPrefix(err.Error(), "Error verifying token : "), err.Error())
		})
	}
}

func TestVerifyProfile_RejectsAnySignatureEdit(t *testing.T) {
	svc := newTestService(t, "60", nil, nil)
	token, err := svc.Generate(&domain.UserProfile{ID: "u1", Name: "Ada", Role: domain.RoleClient})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for i := range parts[2] {
		sig := []byte(parts[2])
		// the neighbour differs only in the lowest bit, which is padding in the final character
		sig[i] = alphabet[strings.IndexByte(alphabet, sig[i])^1]
		tampered := parts[0] + "." + parts[1] + "." + string(sig)

		_, err := svc.VerifyProfile(tampered)
		require.Error(t, err, "signature edited at %d", i)
		assert.True(t, IsUnauthorized(err))
	}
}

func TestVerifyProfile_DropsTokenBookkeeping(t *testing.T) {
	svc := newTestService(t, "60", nil, nil)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    "u1",
		"name":  "Ada",
		"roles": "client",
		"email": "a@b.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"extra": "ignored",
	}).SignedString([]byte("myjwts3cr3t"))
	require.NoError(t, err)

	got, err := svc.VerifyProfile(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserProfile{ID: "u1", Name: "Ada", Role: "client"}, got)
}

func TestVerifyUser(t *testing.T) {
	users := &fakeUsers{byID: map[string]*domain.User{
		"u1": {ID: "u1", Email: "a@b.com", PasswordHash: "secret-hash", FirstName: "Ada"},
	}}
	svc := newTestService(t, "60", users, nil)

	token, err := svc.Generate(&domain.UserProfile{ID: "u1", Name: "stale name", Role: domain.RoleClient})
	require.NoError(t, err)

	user, err := svc.VerifyUser(context.Background(), token, "test")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Empty(t, user.PasswordHash)

	delete(users.byID, "u1")
	user, err = svc.VerifyUser(context.Background(), token, "test")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.False(t, IsUnauthorized(err))
}

func TestVerifyUser_StoreFailureIsUnauthorized(t *testing.T) {
	users := &fakeUsers{err: errors.New("disk I/O error")}
	svc := newTestService(t, "60", users, nil)

	token, err := svc.Generate(&domain.UserProfile{ID: "u1"})
	require.NoError(t, err)

	_, err = svc.VerifyUser(context.Background(), token, "test")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestVerifyUser_InvalidToken(t *testing.T) {
	svc := newTestService(t, "60", &fakeUsers{}, nil)

	_, err := svc.VerifyUser(context.Background(), "", "test")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestNewTokenService_NilLogger(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "k", ExpiresIn: "60"}, nil, nil)
	require.NotNil(t, svc)
	_, ok := svc.(*jwtService).logger.(*logrus.Entry)
	assert.True(t, ok)
}
