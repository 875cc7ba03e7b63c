package domain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// TotalPriceDecimals 一个市场的价格小数位总数。
// 主资产与次级资产各占一部分：次级资产占 PriceDecimals 位，
// 主资产占 TotalPriceDecimals - PriceDecimals 位。
const TotalPriceDecimals = 8

// Market 描述一个交易对的固定精度规则。
// 每个协商中的交易恰好有一个资产是主资产（primary）。
type Market struct {
	PrimaryAsset      string // 主资产地址（小写十六进制）
	SecondaryAsset    string // 次级资产地址
	PrimarySymbol     string // 主资产符号（行情源查询用）
	SecondarySymbol   string // 次级资产符号
	PrimaryDecimals   int    // 主资产代币精度
	SecondaryDecimals int    // 次级资产代币精度
	PriceDecimals     int    // 次级资产的价格小数位
}

// IsPrimary 判断 asset 是否为该市场的主资产。
func (m *Market) IsPrimary(asset string) bool {
	return strings.EqualFold(asset, m.PrimaryAsset)
}

// AssetDecimals 返回 asset 的代币精度。
func (m *Market) AssetDecimals(asset string) int {
	if m.IsPrimary(asset) {
		return m.PrimaryDecimals
	}
	return m.SecondaryDecimals
}

// AssetPriceDecimals 返回 asset 在价格网格上占用的小数位。
func (m *Market) AssetPriceDecimals(asset string) int {
	if m.IsPrimary(asset) {
		return TotalPriceDecimals - m.PriceDecimals
	}
	return m.PriceDecimals
}

// TruncationFactor 返回把 asset 的数量截断到价格网格所需的因子，
// 即 10^(assetDecimals - assetPriceDecimals)。
func (m *Market) TruncationFactor(asset string) *big.Int {
	exp := m.AssetDecimals(asset) - m.AssetPriceDecimals(asset)
	if exp < 0 {
		exp = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// MinIncrement 返回 asset 的最小可交易增量。
// 非该增量整数倍、或低于该增量的数量会被拒绝为 ErrInvalidAmount。
func (m *Market) MinIncrement(asset string) *big.Int {
	return m.TruncationFactor(asset)
}

// Registry 市场注册表：按链 ID + 无序资产地址对索引。
// 条目在启动时从配置注册，之后只读。
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewRegistry 创建空的市场注册表。
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register 注册一个市场。精度非法时返回错误。
func (r *Registry) Register(chainID int64, m Market) error {
	if m.PriceDecimals < 0 || m.PriceDecimals > TotalPriceDecimals {
		return fmt.Errorf("market %s/%s: price decimals %d out of [0,%d]",
			m.PrimarySymbol, m.SecondarySymbol, m.PriceDecimals, TotalPriceDecimals)
	}
	if m.PrimaryDecimals < 0 || m.SecondaryDecimals < 0 {
		return fmt.Errorf("market %s/%s: negative token decimals", m.PrimarySymbol, m.SecondarySymbol)
	}
	m.PrimaryAsset = strings.ToLower(m.PrimaryAsset)
	m.SecondaryAsset = strings.ToLower(m.SecondaryAsset)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[pairKey(chainID, m.PrimaryAsset, m.SecondaryAsset)] = &m
	return nil
}

// Resolve 按无序资产对查找市场。
// 没有条目时返回 ErrUnknownMarket（致命，阻塞协商）。
func (r *Registry) Resolve(chainID int64, assetA, assetB string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[pairKey(chainID, assetA, assetB)]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d pair %s/%s", ErrUnknownMarket, chainID, assetA, assetB)
	}
	return m, nil
}

// pairKey 无序地址对的索引键：地址排序后拼接。
func pairKey(chainID int64, a, b string) string {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%s", chainID, a, b)
}
