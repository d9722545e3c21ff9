package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/loyalty-backend/api/controllers"
	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	pkgauth "github.com/angelmondragon/loyalty-backend/pkg/auth"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

type stubLoyalty struct{}

func (stubLoyalty) Earn(context.Context, loyalty.EarnInput) (*loyalty.EarnResult, error) {
	return &loyalty.EarnResult{Balance: 100}, nil
}

func (stubLoyalty) Redeem(context.Context, loyalty.RedeemInput) (*loyalty.RedeemResult, error) {
	return &loyalty.RedeemResult{Balance: 0}, nil
}

func (stubLoyalty) GetSummary(context.Context, uuid.UUID) (*loyalty.Summary, error) {
	return &loyalty.Summary{Tier: "Bronze"}, nil
}

func (stubLoyalty) GetHistory(context.Context, loyalty.HistoryInput) (*loyalty.HistoryPage, error) {
	return &loyalty.HistoryPage{Entries: []loyalty.EntryDTO{}}, nil
}

func (stubLoyalty) ListRewards(context.Context, uuid.UUID) ([]loyalty.RewardOffer, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "loyalty-backend",
			ExpirationMinutes: 15,
		},
		InternalAPI: config.InternalAPIConfig{SharedSecret: "internal-secret"},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})

	return NewRouter(RouterParams{
		Config:       cfg,
		Logger:       logg,
		Loyalty:      stubLoyalty{},
		Redis:        newMemoryStore(),
		Dependencies: map[string]controllers.Pinger{"database": stubPinger{}, "redis": stubPinger{}},
	})
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig())

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestLoyaltyRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, testConfig())

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/loyalty/summary"},
		{http.MethodGet, "/api/v1/loyalty/history"},
		{http.MethodGet, "/api/v1/loyalty/rewards"},
		{http.MethodPost, "/api/v1/loyalty/redeem"},
	}
	for _, tc := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestLoyaltyRoutesWithToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), uuid.New())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loyalty/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedeemRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), uuid.New())
	require.NoError(t, err)

	body := `{"reward_id":"discount-10"}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loyalty/redeem", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/loyalty/redeem", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalEarnRequiresSharedSecret(t *testing.T) {
	router := newTestRouter(t, testConfig())
	body := `{"account_id":"` + uuid.NewString() + `","source_type":"booking","source_id":"b-1","points":10}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", strings.NewReader(body))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", "internal-secret")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
