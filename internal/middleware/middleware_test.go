package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/internal/service"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	token  string
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != s.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type stubAccounts struct {
	account *models.ClientAccount
	calls   int
}

func (s *stubAccounts) ClientAccount(_ context.Context, clientID string, _ models.Principal) (*models.ClientAccount, error) {
	s.calls++
	if s.account == nil {
		return &models.ClientAccount{ID: clientID}, nil
	}
	return s.account, nil
}

func newRouter(role models.UserRole, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	validator := stubValidator{token: "good", claims: &models.JWTClaims{UserID: "user-1", Role: role}}
	chain := append([]gin.HandlerFunc{JWT(validator)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		principal, _ := PrincipalFrom(c)
		c.String(http.StatusOK, principal.UserID)
	})
	router.GET("/", chain...)
	return router
}

func do(router *gin.Engine, header string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWT(t *testing.T) {
	router := newRouter(models.RoleClient)

	rec := do(router, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, "Basic good")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, "bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRequireRoles(t *testing.T) {
	rec := do(newRouter(models.RoleClient, RequireRoles(models.RolePhotographer)), "Bearer good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = do(newRouter(models.RoleAdmin, RequireRoles(models.RolePhotographer, models.RoleAdmin)), "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesWithoutPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RequireRoles(models.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireActiveClient(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	until := now.Add(48 * time.Hour)

	suspended := &stubAccounts{account: &models.ClientAccount{ID: "user-1", CancellationCount: 3, SuspendedUntil: &until}}
	rec := do(newRouter(models.RoleClient, RequireActiveClient(suspended, clock)), "Bearer good")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_SUSPENDED", errorCode(t, rec))

	expired := now.Add(-time.Minute)
	lifted := &stubAccounts{account: &models.ClientAccount{ID: "user-1", CancellationCount: 3, SuspendedUntil: &expired}}
	rec = do(newRouter(models.RoleClient, RequireActiveClient(lifted, clock)), "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)

	photographers := &stubAccounts{}
	rec = do(newRouter(models.RolePhotographer, RequireActiveClient(photographers, clock)), "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, photographers.calls)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetMeta(c, "cache", "hit")
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "hit", meta["cache"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/reservations/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reservations/r-1", nil))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/reservations/:id",status="204"} 1`)
}
