package explorer

import (
	"fmt"
	"strings"
)

// PriceSource 一个配置好的行情源，解析策略在建表时定死
type PriceSource struct {
	Name   string
	URL    string
	Parse  PriceParser
	Vendor string // 命中的厂商关键字，"generic" 表示兜底
}

// BalanceSource 一个配置好的区块浏览器源
// 余额查询没有统一的 URL 形态，每家的路径都要单独拼
type BalanceSource struct {
	Name     string
	BaseURL  string
	Vendor   string
	ShapeURL func(base, address string) string
	Parse    BalanceParser
	// History 是否提供交易历史接口 (double-spend 检测要用)
	History bool
}

// Registry 数据源注册表
// 启动时构建一次，之后只读；迭代顺序就是回退优先级
// 空注册表合法，调用方会得到"全部源耗尽"
type Registry struct {
	Prices   []PriceSource
	Balances []BalanceSource
}

// priceVendors 行情源厂商表，按 URL 关键字命中
// 顺序有讲究：先具体后泛化
var priceVendors = []struct {
	key   string
	parse PriceParser
}{
	{"coingecko", pathPrice("bitcoin", "usd")},
	{"binance", pathPrice("price")},
	{"coincap", pathPrice("data", "priceUsd")},
	{"cryptocompare", pathPrice("USD")},
	{"coindesk", pathPrice("bpi", "USD", "rate_float")},
	{"coinbase", pathPrice("data", "amount")},
	{"blockchain.info", pathPrice("USD", "last")},
	{"bitfinex", pathPrice("last_price")},
	{"kraken", krakenPrice},
	{"bitstamp", pathPrice("last")},
	{"gemini", pathPrice("last")},
	{"bittrex", pathPrice("lastTradeRate")},
	{"huobi", pathPrice("tick", "close")},
	{"kucoin", pathPrice("data", "price")},
	{"gate.io", pathPrice("last")},
	{"okx", okxPrice},
	{"mexc", pathPrice("price")},
	{"bybit", bybitPrice},
	{"crypto.com", cryptoComPrice},
	{"bitget", pathPrice("data", "close")},
	{"phemex", phemexPrice},
}

// balanceVendors 浏览器源厂商表
var balanceVendors = []struct {
	key     string
	shape   func(base, address string) string
	parse   BalanceParser
	history bool
}{
	{
		key:     "blockstream",
		shape:   func(base, addr string) string { return fmt.Sprintf("%s/address/%s/utxo", base, addr) },
		parse:   utxoSumBalance,
		history: true,
	},
	{
		key:     "mempool.space",
		shape:   func(base, addr string) string { return fmt.Sprintf("%s/address/%s/utxo", base, addr) },
		parse:   utxoSumBalance,
		history: true,
	},
	{
		key:   "blockcypher",
		shape: func(base, addr string) string { return fmt.Sprintf("%s/addrs/%s/balance", base, addr) },
		parse: satFieldBalance("balance"),
	},
	{
		key:   "blockchain.info",
		shape: func(base, addr string) string { return fmt.Sprintf("%s/rawaddr/%s", base, addr) },
		parse: satFieldBalance("final_balance"),
	},
	{
		key:   "blockchair",
		shape: func(base, addr string) string { return fmt.Sprintf("%s/dashboards/address/%s", base, addr) },
		parse: blockchairBalance,
	},
}

// BuildRegistry 从配置的 URL 列表构建注册表
// 解析策略在这里一次性绑定，不在每次调用时重新分发
func BuildRegistry(priceURLs, balanceURLs []string) *Registry {
	r := &Registry{}

	for i, rawURL := range priceURLs {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			continue
		}
		src := PriceSource{
			Name:   fmt.Sprintf("price_%d", i+1),
			URL:    rawURL,
			Vendor: "generic",
			Parse:  genericPrice,
		}
		for _, v := range priceVendors {
			if strings.Contains(rawURL, v.key) {
				src.Vendor = v.key
				src.Parse = v.parse
				break
			}
		}
		r.Prices = append(r.Prices, src)
	}

	for i, rawURL := range balanceURLs {
		rawURL = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rawURL), "/"))
		if rawURL == "" {
			continue
		}
		src := BalanceSource{
			Name:    fmt.Sprintf("balance_%d", i+1),
			BaseURL: rawURL,
		}
		// 不认识的源给兜底解析器，但拼不出 URL (ShapeURL 为 nil)，
		// Oracle 查询时会跳过它
		src.Vendor = "generic"
		src.Parse = satFieldBalance("balance")
		for _, v := range balanceVendors {
			if strings.Contains(rawURL, v.key) {
				src.Vendor = v.key
				src.ShapeURL = v.shape
				src.Parse = v.parse
				src.History = v.history
				break
			}
		}
		r.Balances = append(r.Balances, src)
	}

	return r
}

// HistorySource 第一个提供交易历史接口的源，没有返回 nil
func (r *Registry) HistorySource() *BalanceSource {
	for i := range r.Balances {
		if r.Balances[i].History {
			return &r.Balances[i]
		}
	}
	return nil
}
