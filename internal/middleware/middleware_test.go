package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/config"
	"github.com/iliyamo/trainer-seat-allocation/internal/utils"
)

const secret = "test-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	g := e.Group("", RequestLogger(), JWTAuth(secret), RequireRole(utils.RoleTrainer))
	g.GET("/whoami", func(c echo.Context) error {
		id, _ := TrainerID(c)
		return c.JSON(http.StatusOK, echo.Map{"trainer_id": id, "role": Role(c)})
	})
	return e
}

func call(e *echo.Echo, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := newEcho()

	tok, err := utils.NewAccessToken(secret, 11, utils.RoleTrainer, time.Hour)
	require.NoError(t, err)
	rec := call(e, tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trainer_id":11,"role":"TRAINER"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = call(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(e, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	student, err := utils.NewAccessToken(secret, 12, "STUDENT", time.Hour)
	require.NoError(t, err)
	rec = call(e, student.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/plan-transitions", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/plan-transitions")
	c.Set(ctxTrainerID, uint64(5))

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "trainer_route"}
	assert.Equal(t, "rl:trainer:5:route:POST /v1/plan-transitions", rateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.9", rateKey(cfg, c))
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	called := false
	h := func(echo.Context) error { called = true; return nil }
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	require.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)(h)(c))
	assert.True(t, called)
	called = false
	require.NoError(t, NewRedisCache(config.CacheConfig{Enabled: true}, nil)(h)(c))
	assert.True(t, called)
}
