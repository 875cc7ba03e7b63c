package builder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/negotiation"
)

// Config 订单构建所需的静态协议常量，显式注入且不可变。
type Config struct {
	FeeWallet    string // 手续费归集钱包
	DualAuthAddr string // 双重授权地址
	Broker       string // 经纪人地址
	FeeToken     string // 手续费代币地址

	// ValidSinceSlack 生效时间相对当前时间的回退秒数（默认 300）
	ValidSinceSlack int64
	// ValidityWindow 有效期秒数，0 表示不设过期上限
	ValidityWindow int64
}

// Builder 订单构建器：协商结果 + 市场精度规则 → 未签名订单。
type Builder struct {
	cfg Config
}

// New 创建订单构建器。
func New(cfg Config) *Builder {
	if cfg.ValidSinceSlack == 0 {
		cfg.ValidSinceSlack = 300
	}
	// 地址字段全部兜底成零地址：EIP712 编码拒绝空字符串
	if cfg.FeeWallet == "" {
		cfg.FeeWallet = types.ZeroAddress
	}
	if cfg.DualAuthAddr == "" {
		cfg.DualAuthAddr = types.ZeroAddress
	}
	if cfg.Broker == "" {
		cfg.Broker = types.ZeroAddress
	}
	if cfg.FeeToken == "" {
		cfg.FeeToken = types.ZeroAddress
	}
	return &Builder{cfg: cfg}
}

// premium 把隐含价格乘 11 除 10：对结算前价格波动的安全边际，不是手续费。
func premium(price *big.Int) *big.Int {
	p := new(big.Int).Mul(price, big.NewInt(11))
	return p.Div(p, big.NewInt(10))
}

// truncate 把 value 向下截断到 factor 的整数倍。
func truncate(value, factor *big.Int) *big.Int {
	t := new(big.Int).Div(value, factor)
	return t.Mul(t, factor)
}

// Build 组装完整的未签名订单。
//
// 价格网格截断带溢价：主资产腿先截断到主资产网格；
// 由两腿推出原始隐含价格（次级最小单位 / 1.0 主资产），加 +10% 溢价，
// 再把溢价价格截断到次级网格；最后用截断后的价格反推次级腿数量。
// 远端撮合服务只接受网格对齐的价格。
func (b *Builder) Build(n *negotiation.Negotiated, market *domain.Market, owner string, now time.Time) (*types.UnsignedOrder, error) {
	if n == nil || n.IndependentAmount == nil || n.DependentAmount == nil {
		return nil, domain.ErrIncompleteNegotiation
	}
	if n.IndependentAmount.Sign() <= 0 || n.DependentAmount.Sign() <= 0 {
		return nil, domain.ErrIncompleteNegotiation
	}

	// 独立值落在独立字段对应的资产上
	inputAmount := n.IndependentAmount
	outputAmount := n.DependentAmount
	if n.IndependentField == types.FieldOutput {
		inputAmount, outputAmount = n.DependentAmount, n.IndependentAmount
	}

	// 按主/次资产归位两腿
	primaryAmount, secondaryAmount := outputAmount, inputAmount
	inputIsPrimary := market.IsPrimary(n.InputAsset)
	if inputIsPrimary {
		primaryAmount, secondaryAmount = inputAmount, outputAmount
	}

	primaryFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(market.PrimaryDecimals)), nil)

	primaryTrunc := truncate(primaryAmount, market.TruncationFactor(market.PrimaryAsset))
	if primaryTrunc.Sign() <= 0 {
		return nil, fmt.Errorf("%w: primary leg truncates to zero", domain.ErrInvalidAmount)
	}

	// rawPrice: 每 1.0 主资产的次级最小单位数
	rawPrice := new(big.Int).Mul(secondaryAmount, primaryFactor)
	rawPrice.Div(rawPrice, primaryTrunc)

	priceTrunc := truncate(premium(rawPrice), market.TruncationFactor(market.SecondaryAsset))
	if priceTrunc.Sign() <= 0 {
		return nil, fmt.Errorf("%w: premium price truncates to zero", domain.ErrInvalidAmount)
	}

	secondaryFinal := new(big.Int).Mul(priceTrunc, primaryTrunc)
	secondaryFinal.Div(secondaryFinal, primaryFactor)

	amountS, amountB := secondaryFinal, primaryTrunc
	if inputIsPrimary {
		amountS, amountB = primaryTrunc, secondaryFinal
	}

	validSince := now.Unix() - b.cfg.ValidSinceSlack
	var validUntil int64
	if b.cfg.ValidityWindow > 0 {
		validUntil = now.Unix() + b.cfg.ValidityWindow
	}

	return &types.UnsignedOrder{
		Owner:          owner,
		TokenS:         n.InputAsset,
		TokenB:         n.OutputAsset,
		AmountS:        amountS,
		AmountB:        amountB,
		ValidSince:     validSince,
		ValidUntil:     validUntil,
		DualAuthAddr:   b.cfg.DualAuthAddr,
		Broker:         b.cfg.Broker,
		Wallet:         b.cfg.FeeWallet,
		TokenRecipient: owner,
		FeeToken:       b.cfg.FeeToken,
		FeeAmount:      big.NewInt(0),
		WalletSplitPercentage: 0,
		AllOrNone:             false,
		TokenTypeS:            types.TokenTypeFungible,
		TokenTypeB:            types.TokenTypeFungible,
		TokenTypeFee:          types.TokenTypeFungible,
		TrancheS:              types.ZeroTranche,
		TrancheB:              types.ZeroTranche,
	}, nil
}
