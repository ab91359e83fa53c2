package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotocryptodev/gateway/internal/models"
)

type memoryUserStore struct {
	users map[string]*models.User
}

func (s *memoryUserStore) Create(_ context.Context, user *models.User) error {
	user.ID = uuid.New()
	s.users[user.Email] = user
	return nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.users[email], nil
}

func (s *memoryUserStore) FindById(_ context.Context, id string) (*models.User, error) {
	for _, u := range s.users {
		if u.ID.String() == id {
			return u, nil
		}
	}
	return nil, nil
}

func newTestAuthService() *AuthService {
	store := &memoryUserStore{users: map[string]*models.User{}}
	return NewAuthService(store, "test-secret", 1, func(email string) bool {
		return strings.EqualFold(email, "admin@example.com")
	})
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	user, err := svc.Register(ctx, " Dev@Example.com ", "correct-horse", "Dev")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	_, err = svc.Register(ctx, "dev@example.com", "another-pass", "Dev")
	assert.ErrorIs(t, err, ErrUserExists)

	token, err := svc.Login(ctx, "DEV@example.com", "correct-horse")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims["user_id"])
	assert.Equal(t, "dev@example.com", claims["email"])
	assert.Equal(t, models.RoleUser, claims["role"])

	_, err = svc.Login(ctx, "dev@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_AdminAllowList(t *testing.T) {
	svc := newTestAuthService()

	user, err := svc.Register(context.Background(), "Admin@Example.com", "correct-horse", "Admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)

	assert.True(t, svc.IsAdmin("admin@example.com"))
	assert.False(t, svc.IsAdmin("dev@example.com"))
}

func TestAuthService_ValidateToken(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "x",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_, err = svc.Register(context.Background(), "old@example.com", "correct-horse", "Old")
	require.NoError(t, err)
	expired, err := svc.Login(context.Background(), "old@example.com", "correct-horse")
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
