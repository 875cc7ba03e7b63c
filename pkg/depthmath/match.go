package depthmath

import (
	"math/big"

	"github.com/swapbot/goswap/internal/domain"
)

// Direction 指明 MatchFill 的 amount 落在哪条腿上。
type Direction int

const (
	// DirectionSell amount 是卖出的次级资产数量，累加可得到的主资产
	DirectionSell Direction = iota
	// DirectionBuy amount 是买入的主资产数量，累加需要付出的次级资产
	DirectionBuy
)

// MatchFill 沿订单簿从优到劣累计撮合，把一条腿的数量换算成另一条腿。
//
// amount 必须为正，单位是被指定一侧的最小单位。
// 订单簿缺失或为空返回 ErrBookUnavailable；深度耗尽仍未满足 amount
// 返回 ErrInsufficientLiquidity。纯函数，相同输入恒等输出。
//
// 尾档按比例换算 remainder*levelOut/levelIn，整除向零截断，
// 最多欠一个最小单位（对吃单方保守）。
func MatchFill(amount *big.Int, book *OrderBook, direction Direction) (*big.Int, error) {
	if book.Empty() {
		return nil, domain.ErrBookUnavailable
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	filled := new(big.Int)
	counter := new(big.Int)
	sum := new(big.Int)

	for _, level := range book.Levels {
		primary, secondary := book.levelLegs(level)

		levelIn, levelOut := primary, secondary
		if direction == DirectionSell {
			levelIn, levelOut = secondary, primary
		}
		if levelIn.Sign() <= 0 {
			continue
		}

		if sum.Add(filled, levelIn); sum.Cmp(amount) < 0 {
			// 整档吃掉，继续走下一档
			filled.Set(sum)
			counter.Add(counter, levelOut)
			continue
		}

		// 本档满足剩余需求：按比例换算后立即返回
		remainder := new(big.Int).Sub(amount, filled)
		part := new(big.Int).Mul(remainder, levelOut)
		part.Div(part, levelIn)
		return counter.Add(counter, part), nil
	}

	return nil, domain.ErrInsufficientLiquidity
}
