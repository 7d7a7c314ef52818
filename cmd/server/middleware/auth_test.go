package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mediavault/mediavault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockAuthService mocks the auth service for testing
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*types.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockAuthService) ValidateAPIKey(ctx context.Context, apiKey string) (*types.User, *types.APIKey, error) {
	args := m.Called(ctx, apiKey)
	var user *types.User
	var key *types.APIKey

	if args.Get(0) != nil {
		user = args.Get(0).(*types.User)
	}
	if args.Get(1) != nil {
		key = args.Get(1).(*types.APIKey)
	}

	return user, key, args.Error(2)
}

func protectedRouter(authService AuthValidator, adminOnly bool) (*gin.Engine, *types.User) {
	gin.SetMode(gin.TestMode)

	var captured *types.User
	router := gin.New()
	router.Use(AuthMiddleware(authService))
	if adminOnly {
		router.Use(AdminOnlyMiddleware())
	}
	router.GET("/test", func(c *gin.Context) {
		if user, ok := GetUserFromContext(c); ok {
			*captured = *user
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	captured = &types.User{}
	return router, captured
}

func TestAuthMiddleware_ValidBearerToken(t *testing.T) {
	mockAuth := new(MockAuthService)
	user := &types.User{
		ID:       uuid.New(),
		Username: "testuser",
		Email:    "test@example.com",
	}
	mockAuth.On("ValidateToken", mock.Anything, "valid-token").Return(user, nil)

	router, captured := protectedRouter(mockAuth, false)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, captured.ID)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_ValidAPIKey(t *testing.T) {
	mockAuth := new(MockAuthService)
	user := &types.User{
		ID:       uuid.New(),
		Username: "testuser",
	}
	mockAuth.On("ValidateAPIKey", mock.Anything, "mv_somekey").Return(user, &types.APIKey{}, nil)

	router, captured := protectedRouter(mockAuth, false)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "mv_somekey")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, captured.ID)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockAuth.On("ValidateToken", mock.Anything, "invalid-token").Return(nil, errors.New("invalid token"))

	router, _ := protectedRouter(mockAuth, false)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MissingCredentials(t *testing.T) {
	mockAuth := new(MockAuthService)

	router, _ := protectedRouter(mockAuth, false)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockAuth.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	mockAuth.AssertNotCalled(t, "ValidateAPIKey", mock.Anything, mock.Anything)
}

func TestAdminOnlyMiddleware_NonAdmin(t *testing.T) {
	mockAuth := new(MockAuthService)
	user := &types.User{ID: uuid.New(), Username: "testuser", IsAdmin: false}
	mockAuth.On("ValidateToken", mock.Anything, "valid-token").Return(user, nil)

	router, _ := protectedRouter(mockAuth, true)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminOnlyMiddleware_Admin(t *testing.T) {
	mockAuth := new(MockAuthService)
	user := &types.User{ID: uuid.New(), Username: "admin", IsAdmin: true}
	mockAuth.On("ValidateToken", mock.Anything, "valid-token").Return(user, nil)

	router, _ := protectedRouter(mockAuth, true)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
