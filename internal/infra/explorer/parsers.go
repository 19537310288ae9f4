package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// satoshiFactor 链上最小单位换算：1 BTC = 1e8 sat
var satoshiFactor = decimal.New(1, 8)

// PriceParser 把一个行情源的响应体解析成 USD 价格
type PriceParser func(body []byte) (decimal.Decimal, error)

// BalanceParser 把一个浏览器源的响应体解析成整币余额
type BalanceParser func(body []byte, address string) (decimal.Decimal, error)

// decode JSON 统一用 Number 模式解，避免大额 sat 值走 float64 丢精度
func decode(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// dig 沿着 key 路径往下走
func dig(v interface{}, keys ...string) (interface{}, bool) {
	cur := v
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// at 取数组第 i 个元素
func at(v interface{}, i int) (interface{}, bool) {
	arr, ok := v.([]interface{})
	if !ok || i >= len(arr) {
		return nil, false
	}
	return arr[i], true
}

// num 把 json.Number / string / float64 转成 decimal
func num(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %T", v)
	}
}

// digNum dig + num 一步到位
func digNum(v interface{}, keys ...string) (decimal.Decimal, error) {
	got, ok := dig(v, keys...)
	if !ok {
		return decimal.Zero, fmt.Errorf("missing field %v", keys)
	}
	return num(got)
}

// pathPrice 生成"解 JSON 后沿固定路径取数"的价格解析器
func pathPrice(keys ...string) PriceParser {
	return func(body []byte) (decimal.Decimal, error) {
		v, err := decode(body)
		if err != nil {
			return decimal.Zero, err
		}
		return digNum(v, keys...)
	}
}

// ---------------------------------------------------------
// 行情源解析表
// 每家交易所/行情站的响应结构都不一样，按 host 关键字建表
// ---------------------------------------------------------

// krakenPrice {"result":{"XXBTZUSD":{"c":["price", ...]}}}
// pair 名不固定，取 result 下第一个值
func krakenPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	result, ok := dig(v, "result")
	if !ok {
		return decimal.Zero, fmt.Errorf("missing result")
	}
	m, ok := result.(map[string]interface{})
	if !ok || len(m) == 0 {
		return decimal.Zero, fmt.Errorf("empty result")
	}
	for _, pair := range m {
		c, ok := dig(pair, "c")
		if !ok {
			continue
		}
		first, ok := at(c, 0)
		if !ok {
			continue
		}
		return num(first)
	}
	return decimal.Zero, fmt.Errorf("no ticker pair in result")
}

// okxPrice {"data":[{"last":"..."}]}
func okxPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	data, ok := dig(v, "data")
	if !ok {
		return decimal.Zero, fmt.Errorf("missing data")
	}
	first, ok := at(data, 0)
	if !ok {
		return decimal.Zero, fmt.Errorf("empty data")
	}
	return digNum(first, "last")
}

// bybitPrice {"result":[{"last_price":"..."}]}
func bybitPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	result, ok := dig(v, "result")
	if !ok {
		return decimal.Zero, fmt.Errorf("missing result")
	}
	first, ok := at(result, 0)
	if !ok {
		return decimal.Zero, fmt.Errorf("empty result")
	}
	return digNum(first, "last_price")
}

// cryptoComPrice {"result":{"data":[{"a":"..."}]}}
func cryptoComPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	data, ok := dig(v, "result", "data")
	if !ok {
		return decimal.Zero, fmt.Errorf("missing result.data")
	}
	first, ok := at(data, 0)
	if !ok {
		return decimal.Zero, fmt.Errorf("empty result.data")
	}
	return digNum(first, "a")
}

// phemexPrice phemex 的价格带 1e4 缩放
func phemexPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	scaled, err := digNum(v, "result", "close")
	if err != nil {
		return decimal.Zero, err
	}
	return scaled.Div(decimal.New(1, 4)), nil
}

// genericPrice 未知格式兜底：挨个试常见字段名
func genericPrice(body []byte) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	for _, key := range []string{"price", "last", "rate"} {
		if got, ok := dig(v, key); ok {
			return num(got)
		}
	}
	return decimal.Zero, fmt.Errorf("no recognizable price field")
}

// ---------------------------------------------------------
// 浏览器源余额解析表
// 有的源直接给余额字段，有的只给 UTXO 列表要自己加
// 一律从 sat 归一化到整币
// ---------------------------------------------------------

// utxoSumBalance blockstream / mempool.space：UTXO 数组求和
func utxoSumBalance(body []byte, _ string) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return decimal.Zero, fmt.Errorf("expected utxo array")
	}
	total := decimal.Zero
	for _, item := range arr {
		val, ok := dig(item, "value")
		if !ok {
			continue
		}
		sat, err := num(val)
		if err != nil {
			continue
		}
		total = total.Add(sat)
	}
	return total.Div(satoshiFactor), nil
}

// satFieldBalance 响应里某个字段直接就是 sat 余额
func satFieldBalance(keys ...string) BalanceParser {
	return func(body []byte, _ string) (decimal.Decimal, error) {
		v, err := decode(body)
		if err != nil {
			return decimal.Zero, err
		}
		sat, err := digNum(v, keys...)
		if err != nil {
			return decimal.Zero, err
		}
		return sat.Div(satoshiFactor), nil
	}
}

// blockchairBalance {"data":{"<addr>":{"address":{"balance":sat}}}}
func blockchairBalance(body []byte, address string) (decimal.Decimal, error) {
	v, err := decode(body)
	if err != nil {
		return decimal.Zero, err
	}
	sat, err := digNum(v, "data", address, "address", "balance")
	if err != nil {
		return decimal.Zero, err
	}
	return sat.Div(satoshiFactor), nil
}
