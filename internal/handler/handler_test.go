package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"token_auth_service/internal/auth"
	"token_auth_service/internal/models"
	"token_auth_service/internal/service"
	"token_auth_service/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newRouter(t *testing.T, svc service.Service) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.Use(RequestID(), Logger(lgr), Recovery(lgr))
	NewHandler(svc, lgr, nil).InitRoutes(router)
	return router
}

func newService(t *testing.T) service.Service {
	t.Helper()

	keys := auth.Keys{AccessSecret: []byte("access"), RefreshSecret: []byte("refresh")}
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewAuthService(
		storage.NewMemoryStorage(),
		auth.NewHasher(bcrypt.MinCost),
		auth.NewIssuer(keys, nil),
		auth.NewVerifier(keys, nil),
		lgr,
		nil,
	)
}

func doRequest(router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func register(t *testing.T, router http.Handler, email string) models.AuthResult {
	t.Helper()
	rec := doRequest(router, http.MethodPost, "/api/auth/register", credentialsRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.AuthResult](t, rec)
}

func TestRegisterAndLogin(t *testing.T) {
	router := newRouter(t, newService(t))

	reg := register(t, router, "a@example.com")
	assert.Equal(t, "User created successfully", reg.Message)
	assert.Equal(t, "a@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)

	rec := doRequest(router, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "a@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[models.AuthResult](t, rec)
	assert.Equal(t, "Login successful", login.Message)
	assert.Equal(t, reg.User.ID, login.User.ID)
}

func TestRegister_NoHashesInResponse(t *testing.T) {
	router := newRouter(t, newService(t))

	rec := doRequest(router, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "a@example.com", Password: "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "secret1")
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "$2a$")
}

func TestRegister_Conflict(t *testing.T) {
	router := newRouter(t, newService(t))
	register(t, router, "a@example.com")

	rec := doRequest(router, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "a@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"User already exists"}`, rec.Body.String())
}

func TestRegister_Validation(t *testing.T) {
	router := newRouter(t, newService(t))

	rec := doRequest(router, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "nope", Password: "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decode[errorResponse](t, rec)
	assert.Len(t, out.Errors, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogin_SameErrorForUnknownAndWrong(t *testing.T) {
	router := newRouter(t, newService(t))
	register(t, router, "a@example.com")

	wrong := doRequest(router, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "a@example.com", Password: "bad-pass"})
	unknown := doRequest(router, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "ghost@example.com", Password: "secret1"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, wrong.Body.String())
}

func TestValidateToken(t *testing.T) {
	router := newRouter(t, newService(t))
	reg := register(t, router, "a@example.com")

	rec := doRequest(router, http.MethodPost, "/api/auth/validate", tokenRequest{Token: reg.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[models.ValidateResult](t, rec)
	assert.True(t, res.Valid)
	require.NotNil(t, res.User)
	assert.Equal(t, reg.User.ID, res.User.ID)

	rec = doRequest(router, http.MethodPost, "/api/auth/validate", tokenRequest{Token: "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/api/auth/validate", tokenRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateUserExists(t *testing.T) {
	router := newRouter(t, newService(t))
	reg := register(t, router, "a@example.com")

	rec := doRequest(router, http.MethodGet, "/api/auth/validate?userId="+reg.User.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[models.ExistsResult](t, rec)
	assert.True(t, res.Exists)
	require.NotNil(t, res.User)
	assert.Equal(t, "a@example.com", res.User.Email)

	rec = doRequest(router, http.MethodGet, "/api/auth/validate?userId="+uuid.Must(uuid.NewV4()).String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":false}`, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/api/auth/validate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User ID is required")
}

func TestRefreshAndLogout(t *testing.T) {
	router := newRouter(t, newService(t))
	reg := register(t, router, "a@example.com")

	rec := doRequest(router, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decode[models.AuthResult](t, rec)

	rec = doRequest(router, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/auth/logout", nil, "Authorization", "Bearer "+refreshed.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: refreshed.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile(t *testing.T) {
	router := newRouter(t, newService(t))
	reg := register(t, router, "a@example.com")

	rec := doRequest(router, http.MethodGet, "/api/auth/profile", nil, "Authorization", "Bearer "+reg.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode[models.User](t, rec)
	assert.Equal(t, reg.User.ID, user.ID)

	rec = doRequest(router, http.MethodGet, "/api/auth/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/auth/profile", nil, "Authorization", "Bearer "+reg.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/auth/profile", nil, "Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "", ok: false},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(req)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestCustomTokenExtractor(t *testing.T) {
	svc := newService(t)
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	fromCookie := func(r *http.Request) (string, bool) {
		c, err := r.Cookie("access_token")
		if err != nil {
			return "", false
		}
		return c.Value, true
	}
	NewHandler(svc, lgr, fromCookie).InitRoutes(router)

	reg := register(t, router, "a@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: reg.AccessToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// failingService fails every call with a storage-style error.
type failingService struct {
	service.Service
}

var errDown = errors.New("db down")

func (failingService) Login(context.Context, string, string) (models.AuthResult, error) {
	return models.AuthResult{}, errDown
}

func (failingService) ValidateToken(context.Context, string) (models.ValidateResult, error) {
	return models.ValidateResult{}, errDown
}

func TestInternalErrorsHideDetail(t *testing.T) {
	router := newRouter(t, failingService{})

	rec := doRequest(router, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "a@example.com", Password: "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")

	rec = doRequest(router, http.MethodGet, "/api/auth/profile", nil, "Authorization", "Bearer abc")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	router := newRouter(t, newService(t))

	rec := doRequest(router, http.MethodGet, "/api/auth/validate", nil, requestIDHeader, "req-1")
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	rec = doRequest(router, http.MethodGet, "/api/auth/validate", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRefreshAfterExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	keys := auth.Keys{AccessSecret: []byte("access"), RefreshSecret: []byte("refresh")}
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewAuthService(
		storage.NewMemoryStorage(),
		auth.NewHasher(bcrypt.MinCost),
		auth.NewIssuer(keys, clock),
		auth.NewVerifier(keys, clock),
		lgr,
		nil,
	)
	router := newRouter(t, svc)
	reg := register(t, router, "a@example.com")

	now = now.Add(auth.DefaultAccessTTL + time.Minute)

	rec := doRequest(router, http.MethodGet, "/api/auth/profile", nil, "Authorization", "Bearer "+reg.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
}
