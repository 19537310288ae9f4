package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinsub.com/internal/domain"
	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/metrics"
)

// Store 引擎需要的持久化操作全集
// persistence.Repo 实现了所有子接口，这里聚合一下方便注入
type Store interface {
	domain.UserRepo
	domain.AddressRepo
	domain.TransactionRepo
	domain.SubscriptionRepo
	// Transaction 在一个数据库事务里执行 fn
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// 分配地址时 pick 和 assign 之间可能被并发抢走，重试几次
const allocateRetries = 5

// PaymentService 支付业务
// 创建对账记录的唯一入口；也承载确认/取消这两类状态迁移，
// 对账循环和管理端的强制操作走的都是这里的同一条路径
type PaymentService struct {
	store    Store
	price    domain.PriceOracle
	balance  domain.BalanceOracle
	notifier domain.Notifier
	plans    *domain.PlanBook
	timeout  time.Duration // 付款窗口

	// 每个用户一把锁：检查-建单不是一条原子语句，
	// 同一个用户的两个并发请求不串行化会建出两笔 Pending
	userLocks sync.Map // userID -> *sync.Mutex
}

func NewPaymentService(store Store, price domain.PriceOracle, balance domain.BalanceOracle,
	notifier domain.Notifier, plans *domain.PlanBook, timeout time.Duration) *PaymentService {
	return &PaymentService{
		store:    store,
		price:    price,
		balance:  balance,
		notifier: notifier,
		plans:    plans,
		timeout:  timeout,
	}
}

// lockUser 拿某个用户的锁，返回解锁函数
func (s *PaymentService) lockUser(userID int64) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Plans 档位目录 (给外层展示用)
func (s *PaymentService) Plans() []domain.Plan {
	return s.plans.All()
}

// CreatePayment 为用户创建一笔待付款交易
// 返回 (nil, nil) 表示"现在办不了"：已有活跃订阅，或地址池空了
// 同档位重复请求幂等返回已有的待付款交易；换档位会先作废旧的
func (s *PaymentService) CreatePayment(ctx context.Context, userID int64, planID string) (*domain.Transaction, error) {
	plan, ok := s.plans.Get(planID)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planID)
	}

	// 单用户串行化：订阅检查/Pending 检查/建单之间不许插队
	defer s.lockUser(userID)()

	// 1. 已有活跃订阅的用户不能再买
	activeSub, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if activeSub != nil {
		logger.Info(ctx, "用户已有活跃订阅，拒绝创建",
			zap.Int64("user_id", userID), zap.String("plan", planID))
		return nil, nil
	}

	// 2. 单用户同时只能有一笔待付款交易
	pending, err := s.store.GetPendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if pending.Plan == planID {
			// 同档位重试：把现成的还给他，不再占第二个地址
			return pending, nil
		}
		// 换档位：先作废旧的 (地址回收有零余额门槛)
		logger.Info(ctx, "用户换档位，作废旧的待付款交易",
			zap.Int64("user_id", userID),
			zap.Int64("old_tx", pending.ID),
			zap.String("old_plan", pending.Plan),
			zap.String("new_plan", planID))
		if _, err := s.CancelPayment(ctx, pending.ID); err != nil {
			return nil, err
		}
	}

	// 3. 汇率快照
	price, source := s.price.GetPrice(ctx)

	// 4. 从池子里抢一个地址
	address, err := s.allocateAddress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if address == "" {
		logger.Warn(ctx, "地址池已空，无法创建支付", zap.Int64("user_id", userID))
		return nil, nil
	}

	// 5. 金额按快照定死，之后永不再变
	btcAmount := plan.PriceUSD.Div(price).Round(8)
	now := time.Now().UTC()

	tx := &domain.Transaction{
		UserID:     userID,
		Plan:       plan.ID,
		BtcAddress: address,
		BtcAmount:  btcAmount,
		UsdAmount:  plan.PriceUSD,
		BtcRate:    price,
		Status:     domain.TxStatusPending,
		ExpiresAt:  now.Add(s.timeout),
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		// 建单失败要把地址还回去，不然池子会漏
		_ = s.store.ReleaseAddress(ctx, address)
		return nil, err
	}

	logger.Info(ctx, "💳 支付创建成功",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", userID),
		zap.String("plan", plan.ID),
		zap.String("btc_amount", btcAmount.String()),
		zap.String("rate_source", source),
		logger.Address("addr", address))
	return tx, nil
}

// allocateAddress pick + 条件占用，被抢就重试
func (s *PaymentService) allocateAddress(ctx context.Context, userID int64) (string, error) {
	for i := 0; i < allocateRetries; i++ {
		address, err := s.store.PickAvailable(ctx)
		if err != nil {
			return "", err
		}
		if address == "" {
			return "", nil // 池子空了
		}
		ok, err := s.store.AssignAddress(ctx, address, userID)
		if err != nil {
			return "", err
		}
		if ok {
			if n, err := s.store.CountAvailable(ctx); err == nil {
				metrics.AddressPoolAvailable.Set(float64(n))
			}
			return address, nil
		}
		// 被并发抢走了，换一个再试
	}
	return "", nil
}

// Confirm 确认付款：Pending -> Confirmed + 开通订阅，一个事务
// 地址保持 Assigned 永久退役——确认过付款的地址绝不回池，
// 防止新买家和已结算付款共用地址
// 返回 false 表示交易已被别处处理 (幂等)
func (s *PaymentService) Confirm(ctx context.Context, tx *domain.Transaction) (bool, error) {
	plan, ok := s.plans.Get(tx.Plan)
	if !ok {
		return false, fmt.Errorf("transaction %d references unknown plan %q", tx.ID, tx.Plan)
	}

	now := time.Now().UTC()
	sub := &domain.Subscription{
		UserID:        tx.UserID,
		Plan:          tx.Plan,
		TransactionID: tx.ID,
		Status:        domain.SubStatusActive,
		StartsAt:      now,
		ExpiresAt:     plan.SubscriptionExpiry(now),
	}

	won := false
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		ok, err := s.store.UpdateStatus(txCtx, tx.ID, domain.TxStatusPending, domain.TxStatusConfirmed, &now)
		if err != nil {
			return err
		}
		if !ok {
			// 已经被别的线程处理过了，整个事务按无事发生处理
			return nil
		}
		won = true
		return s.store.CreateSubscription(txCtx, sub)
	})
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	tx.Status = domain.TxStatusConfirmed
	tx.ConfirmedAt = &now
	s.notifier.PaymentConfirmed(ctx, tx, sub)
	logger.Info(ctx, "✅ 付款确认，订阅开通",
		zap.Int64("tx_id", tx.ID),
		zap.Int64("user_id", tx.UserID),
		zap.String("plan", tx.Plan))
	return true, nil
}

// CancelPayment 作废一笔待付款交易：Pending -> Cancelled
// 地址只有在确认零余额时才回池；收过钱 (或余额不明) 的地址保持占用
// 返回 false 表示交易不存在或已不是 Pending (幂等)
func (s *PaymentService) CancelPayment(ctx context.Context, txID int64) (bool, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx == nil || tx.Status != domain.TxStatusPending {
		return false, nil
	}

	ok, err := s.store.UpdateStatus(ctx, tx.ID, domain.TxStatusPending, domain.TxStatusCancelled, nil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	s.ReleaseIfVerifiedZero(ctx, tx.BtcAddress)
	logger.Info(ctx, "付款已取消",
		zap.Int64("tx_id", tx.ID), zap.Int64("user_id", tx.UserID))
	return true, nil
}

// ForceApprove 管理端强制确认：跳过余额检查，直接走确认路径
func (s *PaymentService) ForceApprove(ctx context.Context, txID int64) (bool, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return false, err
	}
	if tx == nil || tx.Status != domain.TxStatusPending {
		return false, nil
	}
	logger.Warn(ctx, "🔧 管理端强制确认付款", zap.Int64("tx_id", txID))
	return s.Confirm(ctx, tx)
}

// ForceReject 管理端强制作废，和普通取消走同一条路径
func (s *PaymentService) ForceReject(ctx context.Context, txID int64) (bool, error) {
	logger.Warn(ctx, "🔧 管理端强制作废付款", zap.Int64("tx_id", txID))
	return s.CancelPayment(ctx, txID)
}

// ReleaseIfVerifiedZero 零余额门槛回收
// 收过一部分钱、或者所有数据源都联系不上的地址绝不能悄悄回池
func (s *PaymentService) ReleaseIfVerifiedZero(ctx context.Context, address string) {
	res := s.balance.GetBalance(ctx, address)
	if !res.VerifiedZero() {
		logger.Warn(ctx, "地址余额非零或不明，保持占用不回池",
			logger.Address("addr", address),
			zap.Uint8("state", uint8(res.State)),
			zap.String("amount", res.Amount.String()))
		return
	}
	if err := s.store.ReleaseAddress(ctx, address); err != nil {
		logger.Error(ctx, "地址回池失败", logger.Address("addr", address), zap.Error(err))
		return
	}
	if n, err := s.store.CountAvailable(ctx); err == nil {
		metrics.AddressPoolAvailable.Set(float64(n))
	}
}

// RegisterUser 落库/刷新用户资料
func (s *PaymentService) RegisterUser(ctx context.Context, userID int64, username, firstName string) error {
	return s.store.UpsertUser(ctx, &domain.User{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
	})
}

// GetPayment 查询单笔交易
func (s *PaymentService) GetPayment(ctx context.Context, txID int64) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, txID)
}

// ListUserPayments 用户全部交易
func (s *PaymentService) ListUserPayments(ctx context.Context, userID int64) ([]*domain.Transaction, error) {
	return s.store.ListByUser(ctx, userID)
}

// ActiveSubscription 用户当前活跃订阅，没有返回 nil
func (s *PaymentService) ActiveSubscription(ctx context.Context, userID int64) (*domain.Subscription, error) {
	return s.store.GetActiveByUser(ctx, userID)
}

// RevenueStats 已确认交易合计
func (s *PaymentService) RevenueStats(ctx context.Context) (int64, decimal.Decimal, decimal.Decimal, error) {
	return s.store.RevenueStats(ctx)
}
