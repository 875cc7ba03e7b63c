package negotiation

import (
	"math/big"

	"github.com/swapbot/goswap/dex/types"
)

// State 每个交易会话的协商状态。
// 转移是纯函数：旧状态 + 动作 → 新状态（见 Reduce）。
type State struct {
	IndependentField types.Field // 用户正在编辑的字段
	IndependentValue string      // 用户输入的原始字符串
	DependentValue   *big.Int    // 计算出的依赖值（nil = 未计算）
	InputAsset       string      // 卖出资产地址
	OutputAsset      string      // 买入资产地址
}

// Action 协商动作（带标签的联合类型）。
type Action interface {
	isAction()
}

// FlipIndependent 交换输入/输出资产以及独立字段，并清空依赖值。
type FlipIndependent struct{}

// SelectCurrency 为 Field 设置资产；和另一字段的资产冲突时清空那一字段。
type SelectCurrency struct {
	Field types.Field
	Asset string
}

// UpdateIndependent 更新独立字段及其值；值变化时清空依赖值。
type UpdateIndependent struct {
	Field types.Field
	Value string
}

// UpdateDependent 只写依赖值。
type UpdateDependent struct {
	Value *big.Int
}

func (FlipIndependent) isAction()   {}
func (SelectCurrency) isAction()    {}
func (UpdateIndependent) isAction() {}
func (UpdateDependent) isAction()   {}

// Reduce 纯转移函数。未知动作原样返回旧状态。
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case FlipIndependent:
		return State{
			IndependentField: state.IndependentField.Other(),
			IndependentValue: state.IndependentValue,
			DependentValue:   nil,
			InputAsset:       state.OutputAsset,
			OutputAsset:      state.InputAsset,
		}

	case SelectCurrency:
		next := state
		if a.Field == types.FieldInput {
			next.InputAsset = a.Asset
			if next.OutputAsset == a.Asset {
				// 两个字段不允许持有同一资产
				next.OutputAsset = ""
			}
		} else {
			next.OutputAsset = a.Asset
			if next.InputAsset == a.Asset {
				next.InputAsset = ""
			}
		}
		return next

	case UpdateIndependent:
		next := state
		// 只看值是否变化；字段翻转而值不变时保留依赖值
		if a.Value != state.IndependentValue {
			next.DependentValue = nil
		}
		next.IndependentField = a.Field
		next.IndependentValue = a.Value
		return next

	case UpdateDependent:
		next := state
		next.DependentValue = a.Value
		return next
	}
	return state
}
