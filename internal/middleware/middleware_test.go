package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/logger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

const secret = "test-secret"

func serve(t *testing.T, mw []echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	var seen echo.Context
	e.GET("/x", func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	}, mw...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuth(t *testing.T) {
	tok, err := utils.NewAccessToken(secret, 42, model.RoleDriver, 5)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec, c := serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), c.Get("user_id"))
	assert.Equal(t, model.RoleDriver, c.Get("role"))

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"bad token":    "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			rec, c := serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, c)
		})
	}

	other, err := utils.NewAccessToken("other-secret", 42, model.RoleDriver, 5)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+other.Token)
	rec, _ = serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	admin, _ := utils.NewAccessToken(secret, 1, model.RoleAdmin, 5)
	driver, _ := utils.NewAccessToken(secret, 2, model.RoleDriver, 5)
	chain := []echo.MiddlewareFunc{JWTAuth(secret), RequireRole(model.RoleAdmin)}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+admin.Token)
	rec, _ := serve(t, chain, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+driver.Token)
	rec, _ = serve(t, chain, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{RequireRole(model.RoleAdmin)}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeviceKey(t *testing.T) {
	rec, _ := serve(t, []echo.MiddlewareFunc{DeviceKey("")}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, []echo.MiddlewareFunc{DeviceKey("k1")}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(DeviceKeyHeader, "k2")
	rec, _ = serve(t, []echo.MiddlewareFunc{DeviceKey("k1")}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(DeviceKeyHeader, "k1")
	rec, _ = serve(t, []echo.MiddlewareFunc{DeviceKey("k1")}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, logger.Discard())
	cache := NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil)
	rec, c := serve(t, []echo.MiddlewareFunc{rl, cache}, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, c)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:anon", buildRateKey(cfg, c))

	c.Set("user_id", uint64(9))
	assert.Equal(t, "rl:ip:10.0.0.1:user:9", buildRateKey(cfg, c))

	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:10.0.0.1:user:9:route:POST /v1/reservations", buildRateKey(cfg, c))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(-5))
	assert.Equal(t, 0, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(1))
	assert.Equal(t, 2, retryAfterSeconds(1001))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"items":[]}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"items":[]}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestCacheKeyVariesByQuery(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", TTL: time.Second}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/spaces")
		return cacheKey(cfg, c)
	}
	assert.Equal(t, key("/v1/spaces"), key("/v1/spaces"))
	assert.NotEqual(t, key("/v1/spaces"), key("/v1/spaces?page=2"))
	assert.Contains(t, key("/v1/spaces"), "cache:")
}
