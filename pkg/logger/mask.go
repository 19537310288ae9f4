package logger

import "go.uber.org/zap"

// MaskAddress 脱敏 BTC 地址，日志里不能出现完整收款地址
// 保留前 8 位 + 后 4 位，中间打码
func MaskAddress(address string) string {
	if len(address) > 16 {
		return address[:8] + "***" + address[len(address)-4:]
	}
	return "***"
}

// Address 生成脱敏后的地址字段
func Address(key, address string) zap.Field {
	return zap.String(key, MaskAddress(address))
}
