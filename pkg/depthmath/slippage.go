package depthmath

import (
	"math/big"
)

const (
	// DefaultSlippageBps 同类资产交易的默认滑点容忍（基点）
	DefaultSlippageBps int64 = 50
	// DefaultTokenSlippageBps 跨类资产交易的默认滑点容忍（基点）
	DefaultTokenSlippageBps int64 = 50

	// MaxSlippageBps 滑点上限：50%
	MaxSlippageBps int64 = 5000
	// riskyLowBps / riskyHighBps 之外的自定义滑点标记为 risky（不阻断）
	riskyLowBps  int64 = 10
	riskyHighBps int64 = 500
)

// MaxUint256 数量的最大可表示值。
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Bounds 滑点容忍窗口 [Minimum, Maximum]。
type Bounds struct {
	Minimum *big.Int
	Maximum *big.Int
}

// SlippageBounds 围绕 value 推导滑点窗口。
// offset = value*bps/10000（整除）；下界不低于 0，上界不超过 MaxUint256。
func SlippageBounds(value *big.Int, bps int64) Bounds {
	offset := new(big.Int).Mul(value, big.NewInt(bps))
	offset.Div(offset, big.NewInt(10000))

	minimum := new(big.Int).Sub(value, offset)
	if minimum.Sign() < 0 {
		minimum.SetInt64(0)
	}
	maximum := new(big.Int).Add(value, offset)
	if maximum.Cmp(MaxUint256) > 0 {
		maximum.Set(MaxUint256)
	}
	return Bounds{Minimum: minimum, Maximum: maximum}
}

// ValidateSlippageBps 校验用户自定义滑点。
// 超出 [0, MaxSlippageBps] 返回 ok=false；
// 合法但在 [0.1%, 5%] 之外时 risky=true，仅作提示不阻断。
func ValidateSlippageBps(bps int64) (ok bool, risky bool) {
	if bps < 0 || bps > MaxSlippageBps {
		return false, false
	}
	return true, bps < riskyLowBps || bps > riskyHighBps
}
