package market

import "github.com/shopspring/decimal"

// PlainString 输出不带指数的十进制串，并保留原有小数位（86.960 不会变成 86.96）。
func PlainString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// ParsePrice 解析分钟索引 member 中的价格文本。
func ParsePrice(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
