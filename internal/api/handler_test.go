package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"coinsub.com/internal/core/service"
	"coinsub.com/internal/domain"
	"coinsub.com/internal/infra/persistence"
	"coinsub.com/pkg/common"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/ratelimit"
)

type fakePrice struct{}

func (fakePrice) GetPrice(context.Context) (decimal.Decimal, string) {
	return decimal.RequireFromString("50000"), "test"
}

type fakeBalance struct{}

func (fakeBalance) GetBalance(context.Context, string) domain.BalanceResult {
	return domain.BalanceResult{State: domain.BalanceZero, Amount: decimal.Zero}
}

type noopNotifier struct{}

func (noopNotifier) PaymentConfirmed(context.Context, *domain.Transaction, *domain.Subscription) {}
func (noopNotifier) PartialPayment(context.Context, *domain.Transaction, decimal.Decimal)        {}
func (noopNotifier) PaymentExpired(context.Context, *domain.Transaction)                         {}
func (noopNotifier) DoubleSpendAlert(context.Context, *domain.Transaction)                       {}
func (noopNotifier) UnpaidUserNudge(context.Context, []*domain.User)                             {}
func (noopNotifier) DoubleSpendReminder(context.Context, *domain.Transaction)                    {}

var (
	testRouter *gin.Engine
	testRepo   *persistence.Repo
)

// ginprometheus 往默认 registry 注册指标，路由只能建一次
func TestMain(m *testing.M) {
	logger.InitWithFile("api-test", "error", filepath.Join(os.TempDir(), "api_test.log"))
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic(err)
	}
	testRepo = persistence.New(db)
	if err := testRepo.AutoMigrate(); err != nil {
		panic(err)
	}

	plans := domain.NewPlanBook([]domain.Plan{
		{ID: "VIP1", Name: "Bronze", PriceUSD: decimal.RequireFromString("50"), DurationDays: 30},
	})
	svc := service.NewPaymentService(testRepo, fakePrice{}, fakeBalance{}, noopNotifier{}, plans, 3*time.Hour)

	handler := NewHandler(svc, fakePrice{}, fakeBalance{})
	// 限流阈值放宽，测试不该撞上它
	limiter := ratelimit.NewStore(rate.Limit(1000), 1000, time.Minute)
	testRouter = NewRouter(handler, limiter, "secret-token")

	os.Exit(m.Run())
}

func doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, common.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	testRouter.ServeHTTP(w, req)

	var resp common.Response
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestCreatePaymentEndpoint(t *testing.T) {
	_, err := testRepo.SeedAddresses(context.Background(), []string{
		"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
	})
	require.NoError(t, err)

	t.Run("建单成功", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodPost, "/api/payments", gin.H{
			"user_id":    int64(1),
			"username":   "alice",
			"first_name": "Alice",
			"plan":       "VIP1",
		}, nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "0.001", data["btc_amount"])
		assert.Equal(t, "pending", data["status"])
		assert.NotEmpty(t, data["btc_address"])
	})

	t.Run("同档位重试返回同一笔单", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodPost, "/api/payments", gin.H{
			"user_id": int64(1), "plan": "VIP1",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "pending", data["status"])
	})

	t.Run("地址池空了返回 409", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodPost, "/api/payments", gin.H{
			"user_id": int64(2), "plan": "VIP1",
		}, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("缺字段返回 400", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodPost, "/api/payments", gin.H{"user_id": int64(3)}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQueryEndpoints(t *testing.T) {
	t.Run("价格接口", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodGet, "/api/price", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "50000", data["btc_usd"])
		assert.Equal(t, "test", data["source"])
	})

	t.Run("档位列表", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodGet, "/api/plans", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, resp.Data.([]any), 1)
	})

	t.Run("查不存在的单返回 404", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodGet, "/api/payments/99999", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("非法 id 返回 400", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodGet, "/api/payments/abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("没有活跃订阅返回 404", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodGet, "/api/users/1/subscription", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	adminHeaders := map[string]string{"X-Admin-Token": "secret-token"}

	t.Run("没带口令拒绝", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodGet, "/admin/stats", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("口令不对拒绝", func(t *testing.T) {
		w, _ := doJSON(t, http.MethodGet, "/admin/stats", nil, map[string]string{"X-Admin-Token": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("收入统计", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodGet, "/admin/stats", nil, adminHeaders)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Contains(t, data, "confirmed_count")
		assert.Contains(t, data, "total_btc")
	})

	t.Run("强制作废不存在的单是 no-op", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodPost, "/admin/payments/99999/reject", nil, adminHeaders)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, false, data["rejected"])
	})

	t.Run("地址余额探测", func(t *testing.T) {
		w, resp := doJSON(t, http.MethodGet, "/admin/addresses/bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq/balance", nil, adminHeaders)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "zero", data["state"])
	})
}

func TestHealthAndMetrics(t *testing.T) {
	w, _ := doJSON(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
