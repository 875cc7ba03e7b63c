package depthmath

import (
	"math/big"
)

// rateFactor 汇率的定点刻度（1e18）。
var rateFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ExchangeRate 计算两腿之间的汇率，1e18 定点：
// rate = outputValue * 1e18 * 10^inputDecimals / (10^outputDecimals * inputValue)。
// invert 为 true 时返回反向汇率。任一值缺失或为零返回 nil。
func ExchangeRate(inputValue *big.Int, inputDecimals int, outputValue *big.Int, outputDecimals int, invert bool) *big.Int {
	if inputValue == nil || outputValue == nil || inputValue.Sign() == 0 || outputValue.Sign() == 0 {
		return nil
	}
	ten := big.NewInt(10)

	if invert {
		rate := new(big.Int).Mul(inputValue, rateFactor)
		rate.Mul(rate, new(big.Int).Exp(ten, big.NewInt(int64(outputDecimals)), nil))
		rate.Div(rate, new(big.Int).Exp(ten, big.NewInt(int64(inputDecimals)), nil))
		return rate.Div(rate, outputValue)
	}

	rate := new(big.Int).Mul(outputValue, rateFactor)
	rate.Mul(rate, new(big.Int).Exp(ten, big.NewInt(int64(inputDecimals)), nil))
	rate.Div(rate, new(big.Int).Exp(ten, big.NewInt(int64(outputDecimals)), nil))
	return rate.Div(rate, inputValue)
}
