package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/rfpflow/rfpflow/internal/api/v1"
	"github.com/rfpflow/rfpflow/internal/auth"
	"github.com/rfpflow/rfpflow/internal/domain"
)

// ---------------------------------------------------------------------------
// POST /auth/register
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	t.Parallel()

	fixtureUser := &domain.User{
		ID:    uuid.New(),
		Email: "alice@oem.io",
		Name:  "Alice",
		Role:  domain.RoleSales,
	}

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			registerFunc: func(_ context.Context, email, password, name string, role domain.UserRole) (*domain.User, error) {
				assert.Equal(t, "alice@oem.io", email)
				assert.Equal(t, "secretpw1", password)
				assert.Equal(t, "Alice", name)
				assert.Equal(t, domain.RoleSales, role)
				return fixtureUser, nil
			},
			loginFunc: func(_ context.Context, email, _ string) (string, string, error) {
				assert.Equal(t, "alice@oem.io", email)
				return "access-tok", "refresh-tok", nil
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/register", map[string]any{
			"email":    "alice@oem.io",
			"password": "secretpw1",
			"name":     "Alice",
			"role":     "sales",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			User         *domain.User `json:"user"`
			AccessToken  string       `json:"access_token"`
			RefreshToken string       `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, fixtureUser.Email, body.User.Email)
		assert.Empty(t, body.User.PasswordHash, "password hash must be stripped")
		assert.Equal(t, "access-tok", body.AccessToken)
		assert.Equal(t, "refresh-tok", body.RefreshToken)
	})

	t.Run("user_already_exists", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			registerFunc: func(_ context.Context, _, _, _ string, _ domain.UserRole) (*domain.User, error) {
				return nil, fmt.Errorf("auth.Register: %w", auth.ErrUserAlreadyExists)
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/register", map[string]any{
			"email":    "alice@oem.io",
			"password": "password123",
			"name":     "Alice",
		})

		assert.Equal(t, http.StatusConflict, resp.Code)

		var errBody map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
		assert.EqualValues(t, http.StatusConflict, errBody["status"])
	})

	t.Run("login_after_register_fails", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			registerFunc: func(_ context.Context, _, _, _ string, _ domain.UserRole) (*domain.User, error) {
				return fixtureUser, nil
			},
			loginFunc: func(_ context.Context, _, _ string) (string, string, error) {
				return "", "", errors.New("auth.Login: token issuance failed")
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/register", map[string]any{
			"email":    "alice@oem.io",
			"password": "password123",
			"name":     "Alice",
		})

		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("short_password_rejected", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/register", map[string]any{
			"email":    "alice@oem.io",
			"password": "short",
			"name":     "Alice",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /auth/login
// ---------------------------------------------------------------------------

func TestLoginRoute(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			loginFunc: func(_ context.Context, email, password string) (string, string, error) {
				assert.Equal(t, "alice@oem.io", email)
				assert.Equal(t, "secretpw1", password)
				return "access-tok", "refresh-tok", nil
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/login", map[string]any{
			"email":    "alice@oem.io",
			"password": "secretpw1",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "access-tok", body.AccessToken)
		assert.Equal(t, "refresh-tok", body.RefreshToken)
	})

	t.Run("invalid_credentials", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			loginFunc: func(_ context.Context, _, _ string) (string, string, error) {
				return "", "", fmt.Errorf("auth.Login: %w", auth.ErrInvalidCredentials)
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/login", map[string]any{
			"email":    "alice@oem.io",
			"password": "wrong-pw",
		})

		assert.Equal(t, http.StatusUnauthorized, resp.Code)

		var errBody map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
		assert.EqualValues(t, http.StatusUnauthorized, errBody["status"])
	})
}

// ---------------------------------------------------------------------------
// POST /auth/refresh
// ---------------------------------------------------------------------------

func TestRefreshRoute(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			refreshTokenFunc: func(_ context.Context, rt string) (string, error) {
				require.Equal(t, "valid-refresh-tok", rt)
				return "new-access-tok", nil
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/refresh", map[string]any{
			"refresh_token": "valid-refresh-tok",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			AccessToken string `json:"access_token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "new-access-tok", body.AccessToken)
	})

	t.Run("invalid_token", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			refreshTokenFunc: func(_ context.Context, _ string) (string, error) {
				return "", errors.New("auth.RefreshToken: token expired")
			},
		}

		v1.RegisterAuthRoutes(api, authSvc)

		resp := api.Post("/auth/refresh", map[string]any{
			"refresh_token": "expired-tok",
		})

		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /auth/me
// ---------------------------------------------------------------------------

func TestMe(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			getUserFunc: func(_ context.Context, id uuid.UUID) (*domain.User, error) {
				require.Equal(t, userID, id)
				return &domain.User{ID: userID, Email: "alice@oem.io", Name: "Alice", Role: domain.RoleManager}, nil
			},
		}

		v1.RegisterMeRoute(api, authSvc)

		resp := api.GetCtx(userCtx(userID, "manager"), "/auth/me")

		require.Equal(t, http.StatusOK, resp.Code)

		var body domain.User
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, userID, body.ID)
		assert.Equal(t, "alice@oem.io", body.Email)
		assert.Empty(t, body.PasswordHash)
	})

	t.Run("no_identity_in_context", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{}

		v1.RegisterMeRoute(api, authSvc)

		resp := api.Get("/auth/me")

		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("user_deleted", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		authSvc := &mockAuthService{
			getUserFunc: func(_ context.Context, _ uuid.UUID) (*domain.User, error) {
				return nil, fmt.Errorf("repo.GetByID: %w", domain.ErrNotFound)
			},
		}

		v1.RegisterMeRoute(api, authSvc)

		resp := api.GetCtx(salesCtx(), "/auth/me")

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
