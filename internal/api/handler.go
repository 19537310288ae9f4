package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coinsub.com/internal/core/service"
	"coinsub.com/internal/domain"
	"coinsub.com/pkg/common"
	"coinsub.com/pkg/xerr"
)

type Handler struct {
	svc     *service.PaymentService
	price   domain.PriceOracle
	balance domain.BalanceOracle
}

func NewHandler(svc *service.PaymentService, price domain.PriceOracle, balance domain.BalanceOracle) *Handler {
	return &Handler{svc: svc, price: price, balance: balance}
}

// ---- 视图对象：金额字段统一出字符串，前端别碰浮点 ----

type paymentView struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Plan        string  `json:"plan"`
	BtcAddress  string  `json:"btc_address"`
	BtcAmount   string  `json:"btc_amount"`
	UsdAmount   string  `json:"usd_amount"`
	BtcRate     string  `json:"btc_rate"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   string  `json:"expires_at"`
	ConfirmedAt *string `json:"confirmed_at,omitempty"`
}

func toPaymentView(tx *domain.Transaction) paymentView {
	v := paymentView{
		ID:         tx.ID,
		UserID:     tx.UserID,
		Plan:       tx.Plan,
		BtcAddress: tx.BtcAddress,
		BtcAmount:  tx.BtcAmount.String(),
		UsdAmount:  tx.UsdAmount.String(),
		BtcRate:    tx.BtcRate.String(),
		Status:     string(tx.Status),
		CreatedAt:  tx.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  tx.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if tx.ConfirmedAt != nil {
		s := tx.ConfirmedAt.UTC().Format(time.RFC3339)
		v.ConfirmedAt = &s
	}
	return v
}

type planView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PriceUSD     string `json:"price_usd"`
	DurationDays int    `json:"duration_days"`
}

// ---- 业务接口 ----

func (h *Handler) ListPlans(c *gin.Context) {
	plans := h.svc.Plans()
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, planView{
			ID:           p.ID,
			Name:         p.Name,
			PriceUSD:     p.PriceUSD.String(),
			DurationDays: p.DurationDays,
		})
	}
	common.Success(c, out)
}

func (h *Handler) GetPrice(c *gin.Context) {
	price, source := h.price.GetPrice(c.Request.Context())
	common.Success(c, gin.H{
		"btc_usd": price.String(),
		"source":  source,
	})
}

type createPaymentReq struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Plan      string `json:"plan" binding:"required"`
}

func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.RegisterUser(ctx, req.UserID, req.Username, req.FirstName); err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.DbError, "register user failed", err)
		return
	}

	tx, err := h.svc.CreatePayment(ctx, req.UserID, req.Plan)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "create payment failed", err)
		return
	}
	if tx == nil {
		// 已有活跃订阅，或地址池空了
		common.Fail(c, http.StatusConflict, xerr.ServerCommonError, "payment unavailable for this user right now")
		return
	}
	common.Success(c, toPaymentView(tx))
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.svc.GetPayment(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.DbError, "query payment failed", err)
		return
	}
	if tx == nil {
		common.Fail(c, http.StatusNotFound, xerr.RecordNotFound, "payment not found")
		return
	}
	common.Success(c, toPaymentView(tx))
}

func (h *Handler) CancelPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cancelled, err := h.svc.CancelPayment(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "cancel payment failed", err)
		return
	}
	common.Success(c, gin.H{"cancelled": cancelled})
}

func (h *Handler) ListUserPayments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txs, err := h.svc.ListUserPayments(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.DbError, "query payments failed", err)
		return
	}
	out := make([]paymentView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toPaymentView(tx))
	}
	common.Success(c, out)
}

func (h *Handler) GetSubscription(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sub, err := h.svc.ActiveSubscription(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.DbError, "query subscription failed", err)
		return
	}
	if sub == nil {
		common.Fail(c, http.StatusNotFound, xerr.RecordNotFound, "no active subscription")
		return
	}

	view := gin.H{
		"plan":      sub.Plan,
		"status":    string(sub.Status),
		"starts_at": sub.StartsAt.UTC().Format(time.RFC3339),
	}
	if sub.ExpiresAt != nil {
		view["expires_at"] = sub.ExpiresAt.UTC().Format(time.RFC3339)
	} else {
		view["lifetime"] = true
	}
	common.Success(c, view)
}

// ---- 运营接口 ----

func (h *Handler) ForceApprove(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	approved, err := h.svc.ForceApprove(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "force approve failed", err)
		return
	}
	common.Success(c, gin.H{"approved": approved})
}

func (h *Handler) ForceReject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rejected, err := h.svc.ForceReject(c.Request.Context(), id)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "force reject failed", err)
		return
	}
	common.Success(c, gin.H{"rejected": rejected})
}

func (h *Handler) RevenueStats(c *gin.Context) {
	count, btc, usd, err := h.svc.RevenueStats(c.Request.Context())
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.DbError, "query stats failed", err)
		return
	}
	common.Success(c, gin.H{
		"confirmed_count": count,
		"total_btc":       btc.String(),
		"total_usd":       usd.String(),
	})
}

func (h *Handler) GetAddressBalance(c *gin.Context) {
	addr := c.Param("addr")
	res := h.balance.GetBalance(c.Request.Context(), addr)

	state := "unknown"
	switch res.State {
	case domain.BalanceZero:
		state = "zero"
	case domain.BalanceNonZero:
		state = "non_zero"
	}
	common.Success(c, gin.H{
		"state":   state,
		"balance": res.Amount.String(),
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "invalid id")
		return 0, false
	}
	return id, true
}
