package service

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"coinsub.com/pkg/logger"
	"coinsub.com/pkg/metrics"
)

// AddressSeeder 地址池播种
// 地址由外部钱包批量生成后以文本文件交付，一行一个；
// 入库前逐个做链上格式校验，坏地址一旦进池就会变成黑洞
type AddressSeeder struct {
	store  Store
	params *chaincfg.Params
}

func NewAddressSeeder(store Store, network string) *AddressSeeder {
	return &AddressSeeder{
		store:  store,
		params: chainParams(network),
	}
}

func chainParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// SeedFromFile 从文件导入地址，返回实际新增条数
// 重复导入同一个文件是 no-op (冲突忽略)，所以可以放在启动路径上
func (s *AddressSeeder) SeedFromFile(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var valid []string
	var skipped int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// base58 / bech32 校验，顺带确认网络前缀对得上
		if _, err := btcutil.DecodeAddress(line, s.params); err != nil {
			skipped++
			logger.Warn(ctx, "地址格式非法，跳过",
				logger.Address("addr", line), zap.Error(err))
			continue
		}
		valid = append(valid, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	if skipped > 0 {
		logger.Warn(ctx, "⚠️ 地址文件里有非法行", zap.Int("skipped", skipped))
	}
	if len(valid) == 0 {
		logger.Info(ctx, "地址文件为空，跳过播种")
		return 0, nil
	}

	added, err := s.store.SeedAddresses(ctx, valid)
	if err != nil {
		return 0, err
	}

	if avail, err := s.store.CountAvailable(ctx); err == nil {
		metrics.AddressPoolAvailable.Set(float64(avail))
	}

	logger.Info(ctx, "💳 地址池播种完成",
		zap.Int("total", len(valid)), zap.Int64("added", added))
	return added, nil
}
