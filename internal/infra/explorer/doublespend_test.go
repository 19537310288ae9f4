package explorer

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// historyDetector 把 httptest 服务器伪装成 mempool.space 形态的历史源
func historyDetector(url string) *DoubleSpendDetector {
	r := BuildRegistry(nil, []string{url + "/mempool.space"})
	return NewDoubleSpendDetector(r, NewClient())
}

func TestDoubleSpend_TwoMatchingOutputs(t *testing.T) {
	// 同一地址两笔恰好等于应付金额的输出 → 挂起
	expected := decimal.RequireFromString("0.002") // 200000 sat
	body := `[
		{"txid":"a","vout":[{"scriptpubkey_address":"` + testAddr + `","value":200000}]},
		{"txid":"b","vout":[{"scriptpubkey_address":"` + testAddr + `","value":200000}]}
	]`
	d := historyDetector(jsonServer(t, http.StatusOK, body).URL)

	assert.True(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
}

func TestDoubleSpend_SingleMatchIsClean(t *testing.T) {
	expected := decimal.RequireFromString("0.002")
	body := `[
		{"txid":"a","vout":[
			{"scriptpubkey_address":"` + testAddr + `","value":200000},
			{"scriptpubkey_address":"someoneelse","value":200000}
		]},
		{"txid":"b","vout":[{"scriptpubkey_address":"` + testAddr + `","value":999999}]}
	]`
	d := historyDetector(jsonServer(t, http.StatusOK, body).URL)

	assert.False(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
}

func TestDoubleSpend_ToleranceBoundary(t *testing.T) {
	// 容差 0.00001 BTC = 1000 sat，差 999 sat 算命中，差 1000 sat 不算
	expected := decimal.RequireFromString("0.002")

	t.Run("容差以内的两笔 → 可疑", func(t *testing.T) {
		body := `[
			{"vout":[{"scriptpubkey_address":"` + testAddr + `","value":200999}]},
			{"vout":[{"scriptpubkey_address":"` + testAddr + `","value":199001}]}
		]`
		d := historyDetector(jsonServer(t, http.StatusOK, body).URL)
		assert.True(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})

	t.Run("刚好差出容差 → 不算命中", func(t *testing.T) {
		body := `[
			{"vout":[{"scriptpubkey_address":"` + testAddr + `","value":200000}]},
			{"vout":[{"scriptpubkey_address":"` + testAddr + `","value":201000}]}
		]`
		d := historyDetector(jsonServer(t, http.StatusOK, body).URL)
		assert.False(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})
}

func TestDoubleSpend_FailClosed(t *testing.T) {
	expected := decimal.RequireFromString("0.002")

	t.Run("历史查询 5xx → 可疑", func(t *testing.T) {
		d := historyDetector(jsonServer(t, http.StatusInternalServerError, ``).URL)
		assert.True(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})

	t.Run("响应解析失败 → 可疑", func(t *testing.T) {
		d := historyDetector(jsonServer(t, http.StatusOK, `{"not":"an array"}`).URL)
		assert.True(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})

	t.Run("没配历史源 → 可疑", func(t *testing.T) {
		d := NewDoubleSpendDetector(BuildRegistry(nil, nil), NewClient())
		assert.True(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})
}

func TestDoubleSpend_NoHistoryIsClean(t *testing.T) {
	expected := decimal.RequireFromString("0.002")

	t.Run("404 地址无交易 → 干净", func(t *testing.T) {
		d := historyDetector(jsonServer(t, http.StatusNotFound, ``).URL)
		assert.False(t, d.LooksLikeDoubleSpend(context.Background(), testAddr, expected))
	})

	t.Run("空地址 → 干净", func(t *testing.T) {
		d := historyDetector(jsonServer(t, http.StatusOK, `[]`).URL)
		assert.False(t, d.LooksLikeDoubleSpend(context.Background(), "", expected))
	})
}
