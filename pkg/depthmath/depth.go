package depthmath

import (
	"math/big"
)

// DecimalValue 定点数：整数 Value 带 Precision 位隐含小数。
// 例如 {Value: 100, Precision: 2} 表示 1.00。
type DecimalValue struct {
	Value     *big.Int `json:"value"`
	Precision int      `json:"precision"`
}

// DepthLevel 订单簿的一档：价格 + 数量。
// 由订单簿快照提供，核心从不修改。
type DepthLevel struct {
	Price    DecimalValue `json:"price"`
	Quantity DecimalValue `json:"quantity"`
}

// OrderBook 单边订单簿（卖方，价格从优到劣升序）。
// 每次轮询整体重建并替换引用，核心不跨轮询持有增量状态。
type OrderBook struct {
	// Levels 按价格升序排列的档位
	Levels []DepthLevel

	// PrimaryDecimals 主资产代币精度
	PrimaryDecimals int

	// SecondaryDecimals 次级资产代币精度（价格归一化的目标刻度）
	SecondaryDecimals int
}

// Empty 判断订单簿是否为空或缺失。
func (b *OrderBook) Empty() bool {
	return b == nil || len(b.Levels) == 0
}

// levelLegs 计算一档在两条腿上的可成交数量（均为最小单位）。
//
// primaryAmount 直接取档位数量换算到主资产最小单位；
// secondaryAmount = primaryAmount * normalizedPrice / 10^quantityPrecision，
// 其中 normalizedPrice 是把价格归一到次级资产刻度后的值。
// 为避免中间截断，这里把分子分母合并成一次整除。
func (b *OrderBook) levelLegs(level DepthLevel) (primary, secondary *big.Int) {
	ten := big.NewInt(10)

	primary = new(big.Int).Set(level.Quantity.Value)
	if d := b.PrimaryDecimals - level.Quantity.Precision; d > 0 {
		primary.Mul(primary, new(big.Int).Exp(ten, big.NewInt(int64(d)), nil))
	} else if d < 0 {
		primary.Div(primary, new(big.Int).Exp(ten, big.NewInt(int64(-d)), nil))
	}

	// secondary = quantity * price * 10^secondaryDecimals
	//           / (10^pricePrecision * 10^quantityPrecision)
	num := new(big.Int).Mul(level.Quantity.Value, level.Price.Value)
	num.Mul(num, new(big.Int).Exp(ten, big.NewInt(int64(b.SecondaryDecimals)), nil))
	den := new(big.Int).Exp(ten, big.NewInt(int64(level.Price.Precision+level.Quantity.Precision)), nil)
	secondary = num.Div(num, den)
	return primary, secondary
}
