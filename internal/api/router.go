package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"coinsub.com/pkg/common"
	"coinsub.com/pkg/middleware"
	"coinsub.com/pkg/ratelimit"
	"coinsub.com/pkg/xerr"
)

// NewRouter 组装 HTTP 服务
// 业务接口在 /api 下，运营接口在 /admin 下 (口令保护)，/metrics 归 Prometheus
func NewRouter(h *Handler, limiter *ratelimit.Store, adminToken string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ReqId(), middleware.Recover(), cors.Default())

	// /metrics + 按 handler 维度的请求指标
	prom := ginprometheus.NewPrometheus("gin")
	prom.Use(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", middleware.RateLimit(limiter))
	{
		api.GET("/plans", h.ListPlans)
		api.GET("/price", h.GetPrice)

		api.POST("/payments", h.CreatePayment)
		api.GET("/payments/:id", h.GetPayment)
		api.POST("/payments/:id/cancel", h.CancelPayment)

		api.GET("/users/:id/payments", h.ListUserPayments)
		api.GET("/users/:id/subscription", h.GetSubscription)
	}

	admin := r.Group("/admin", adminAuth(adminToken))
	{
		admin.POST("/payments/:id/approve", h.ForceApprove)
		admin.POST("/payments/:id/reject", h.ForceReject)
		admin.GET("/stats", h.RevenueStats)
		admin.GET("/addresses/:addr/balance", h.GetAddressBalance)
	}

	return r
}

func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			common.Fail(c, http.StatusUnauthorized, xerr.RequestParamsError, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}
