package utils

import (
	"github.com/shopspring/decimal"
)

// 金额精度
const (
	MoneyPlaces int32 = 2
	RatioPlaces int32 = 4
)

var hundred = decimal.NewFromInt(100)

// CentsToYuan 分转元并四舍五入到指定小数位
func CentsToYuan(cents int64, places int32) decimal.Decimal {
	return decimal.NewFromInt(cents).DivRound(hundred, places)
}

// RoundMoney 四舍五入到分
//
// decimal.Round 为远离零方向的四舍五入，对非负金额等同于 HALF_UP。
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MulRatio 金额乘以比例并四舍五入到分
func MulRatio(amount, ratio decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(ratio))
}

// FloorUnits 按单位向下取整，如按 100 分折算积分
func FloorUnits(cents, unit int64) int64 {
	if unit <= 0 || cents <= 0 {
		return 0
	}
	return cents / unit
}

// MoneyFromFloat 将配置中的浮点金额转换为两位小数的 decimal
func MoneyFromFloat(f float64) decimal.Decimal {
	return RoundMoney(decimal.NewFromFloat(f))
}
