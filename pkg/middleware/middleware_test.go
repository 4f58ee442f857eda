package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory RedisClient
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func setupIdempotentRouter(rdb RedisClient, status int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/bookings", Idempotency(DefaultIdempotencyConfig(rdb)), func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	})
	return r
}

func doPost(r *gin.Engine, key, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	req.Header.Set(UserIDHeader, user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	calls := 0
	r := setupIdempotentRouter(newFakeRedis(), http.StatusCreated, &calls)

	first := doPost(r, "k1", "7", `{"propertyId":1}`)
	second := doPost(r, "k1", "7", `{"propertyId":1}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	calls := 0
	r := setupIdempotentRouter(newFakeRedis(), http.StatusCreated, &calls)

	doPost(r, "k1", "7", `{}`)
	doPost(r, "k1", "8", `{}`)

	assert.Equal(t, 2, calls)
}

func TestIdempotency_RejectsReusedKeyWithDifferentBody(t *testing.T) {
	calls := 0
	r := setupIdempotentRouter(newFakeRedis(), http.StatusCreated, &calls)

	doPost(r, "k1", "7", `{"propertyId":1}`)
	w := doPost(r, "k1", "7", `{"propertyId":2}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REUSED")
	assert.Equal(t, 1, calls)
}

func TestIdempotency_InProgressConflict(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	r := setupIdempotentRouter(rdb, http.StatusCreated, &calls)

	hashReq := httptest.NewRequest(http.MethodPost, "/bookings", nil)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = hashReq
	record := &IdempotencyRecord{Key: "k1", Status: StatusProcessing, RequestHash: hashRequest(c, []byte(`{}`))}
	require.NoError(t, saveRecord(context.Background(), rdb, IdempotencyKeyPrefix+"7:k1", record, time.Minute))

	w := doPost(r, "k1", "7", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	calls := 0
	r := setupIdempotentRouter(newFakeRedis(), http.StatusServiceUnavailable, &calls)

	doPost(r, "k1", "7", `{}`)
	doPost(r, "k1", "7", `{}`)

	assert.Equal(t, 2, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	calls := 0
	r := setupIdempotentRouter(newFakeRedis(), http.StatusCreated, &calls)

	doPost(r, "", "7", `{}`)
	doPost(r, "", "7", `{}`)

	assert.Equal(t, 2, calls)
}

func testServiceAuthConfig() *ServiceAuthConfig {
	return &ServiceAuthConfig{Secret: "test-secret", Issuer: "rental", Audience: "rental-internal", TTL: time.Minute}
}

func setupInternalRouter(cfg *ServiceAuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/internal/ping", ServiceAuth(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyService))
	})
	return r
}

func TestServiceAuth_AcceptsMintedToken(t *testing.T) {
	cfg := testServiceAuthConfig()
	token, err := NewServiceTokenSource(cfg, "payment-service").Token()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	setupInternalRouter(cfg).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payment-service", w.Body.String())
}

func TestServiceAuth_Rejects(t *testing.T) {
	cfg := testServiceAuthConfig()
	other := &ServiceAuthConfig{Secret: "other-secret", Issuer: "rental", Audience: "rental-internal", TTL: time.Minute}
	forged, err := NewServiceTokenSource(other, "payment-service").Token()
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			setupInternalRouter(cfg).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestServiceTokenSource_CachesUntilNearExpiry(t *testing.T) {
	cfg := testServiceAuthConfig()
	src := NewServiceTokenSource(cfg, "booking-service")
	now := time.Now()
	src.now = func() time.Time { return now }

	first, err := src.Token()
	require.NoError(t, err)
	again, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	now = now.Add(55 * time.Second)
	renewed, err := src.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed)

	claims, err := ParseServiceToken(cfg, renewed)
	require.NoError(t, err)
	assert.Equal(t, "booking-service", claims.Service)
}
