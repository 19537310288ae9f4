package explorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegistry_PriceVendorBinding(t *testing.T) {
	r := BuildRegistry([]string{
		"https://api.coindesk.com/v1/bpi/currentprice.json",
		"https://api.kraken.com/0/public/Ticker?pair=XBTUSD",
		"https://api.phemex.com/md/ticker/24hr?symbol=BTCUSD",
		"https://ticker.example.com/btcusd", // 不认识的源
		"  ",                                // 空白行要剔掉
	}, nil)

	require.Len(t, r.Prices, 4)
	assert.Equal(t, "coindesk", r.Prices[0].Vendor)
	assert.Equal(t, "kraken", r.Prices[1].Vendor)
	assert.Equal(t, "phemex", r.Prices[2].Vendor)
	// 不认识的源绑兜底解析器，照样参与轮询
	assert.Equal(t, "generic", r.Prices[3].Vendor)

	// 名字按配置顺序编号，日志和指标靠它定位
	assert.Equal(t, "price_1", r.Prices[0].Name)
}

func TestBuildRegistry_BalanceVendorBinding(t *testing.T) {
	r := BuildRegistry(nil, []string{
		"https://blockstream.info/api/", // 尾巴上的斜杠要去掉
		"https://api.blockcypher.com/v1/btc/main",
		"https://explorer.example.com", // 不认识的源
	})

	require.Len(t, r.Balances, 3)

	bs := r.Balances[0]
	assert.Equal(t, "blockstream", bs.Vendor)
	assert.True(t, bs.History)
	require.NotNil(t, bs.ShapeURL)
	assert.Equal(t,
		"https://blockstream.info/api/address/addr1/utxo",
		bs.ShapeURL(bs.BaseURL, "addr1"))

	bc := r.Balances[1]
	assert.Equal(t, "blockcypher", bc.Vendor)
	assert.False(t, bc.History)
	assert.Equal(t,
		"https://api.blockcypher.com/v1/btc/main/addrs/addr1/balance",
		bc.ShapeURL(bc.BaseURL, "addr1"))

	// 不认识的厂商拼不出 URL，Oracle 查询时会跳过它
	assert.Equal(t, "generic", r.Balances[2].Vendor)
	assert.Nil(t, r.Balances[2].ShapeURL)
}

func TestHistorySource(t *testing.T) {
	t.Run("取第一个带历史接口的源", func(t *testing.T) {
		r := BuildRegistry(nil, []string{
			"https://api.blockcypher.com/v1/btc/main",
			"https://mempool.space/api",
			"https://blockstream.info/api",
		})
		src := r.HistorySource()
		require.NotNil(t, src)
		assert.Equal(t, "mempool.space", src.Vendor)
	})

	t.Run("没有任何带历史接口的源", func(t *testing.T) {
		r := BuildRegistry(nil, []string{"https://api.blockcypher.com/v1/btc/main"})
		assert.Nil(t, r.HistorySource())
	})

	t.Run("空注册表合法", func(t *testing.T) {
		r := BuildRegistry(nil, nil)
		assert.Nil(t, r.HistorySource())
		assert.Empty(t, r.Prices)
	})
}
