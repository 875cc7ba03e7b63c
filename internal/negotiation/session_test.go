package negotiation

import (
	"errors"
	"math/big"
	"testing"

	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/depthmath"
)

const testChainID int64 = 1

// 主/次资产各 6 位代币精度，价格网格 4 位给次级、4 位给主资产。
// 最小增量两边都是 10^(6-4) = 100。
func newTestRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	registry := domain.NewRegistry()
	err := registry.Register(testChainID, domain.Market{
		PrimaryAsset:      assetX,
		SecondaryAsset:    assetY,
		PrimarySymbol:     "PRI",
		SecondarySymbol:   "SEC",
		PrimaryDecimals:   6,
		SecondaryDecimals: 6,
		PriceDecimals:     4,
	})
	if err != nil {
		t.Fatalf("register market: %v", err)
	}
	return registry
}

// 一档，价格 1.00，50 个主资产
func unitBook() *depthmath.OrderBook {
	return &depthmath.OrderBook{
		Levels: []depthmath.DepthLevel{{
			Price:    depthmath.DecimalValue{Value: big.NewInt(100), Precision: 2},
			Quantity: depthmath.DecimalValue{Value: big.NewInt(50), Precision: 0},
		}},
		PrimaryDecimals:   6,
		SecondaryDecimals: 6,
	}
}

func newReadySession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(newTestRegistry(t), testChainID)
	s.Dispatch(SelectCurrency{Field: types.FieldInput, Asset: assetY})
	s.Dispatch(SelectCurrency{Field: types.FieldOutput, Asset: assetX})
	s.SetBook(unitBook())
	return s
}

func TestSession_SellQuote(t *testing.T) {
	s := newReadySession(t)

	// 卖 1.0 次级资产，价格 1.00 → 换回 1.0 主资产
	s.Dispatch(UpdateIndependent{Field: types.FieldInput, Value: "1.0"})
	if err := s.Condition(); err != nil {
		t.Fatalf("condition: %v", err)
	}

	n, err := s.Negotiated()
	if err != nil {
		t.Fatalf("negotiated: %v", err)
	}
	if n.IndependentAmount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("independent got=%s want=1000000", n.IndependentAmount)
	}
	if n.DependentAmount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("dependent got=%s want=1000000", n.DependentAmount)
	}
	if n.InputAsset != assetY || n.OutputAsset != assetX {
		t.Fatalf("assets: input=%s output=%s", n.InputAsset, n.OutputAsset)
	}
}

func TestSession_BuyQuote(t *testing.T) {
	s := newReadySession(t)

	// 指定买入 2.0 主资产 → 需要 2.0 次级
	s.Dispatch(UpdateIndependent{Field: types.FieldOutput, Value: "2.0"})
	if err := s.Condition(); err != nil {
		t.Fatalf("condition: %v", err)
	}
	n, err := s.Negotiated()
	if err != nil {
		t.Fatalf("negotiated: %v", err)
	}
	if n.IndependentField != types.FieldOutput {
		t.Fatalf("independent field got=%v", n.IndependentField)
	}
	if n.DependentAmount.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("dependent got=%s want=2000000", n.DependentAmount)
	}
}

func TestSession_InvalidAmounts(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"zero", "0"},
		{"negative", "-1"},
		{"below minimum increment", "0.000001"},
		{"not a multiple of increment", "0.000150"},
		{"too many fractional digits", "0.0000001"},
		{"not a number", "abc"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newReadySession(t)
			s.Dispatch(UpdateIndependent{Field: types.FieldInput, Value: c.value})
			if err := s.Condition(); !errors.Is(err, domain.ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if _, err := s.Negotiated(); !errors.Is(err, domain.ErrIncompleteNegotiation) {
				t.Fatalf("expected ErrIncompleteNegotiation, got %v", err)
			}
		})
	}
}

func TestSession_InsufficientLiquidity(t *testing.T) {
	s := newReadySession(t)
	// 深度只有 50，买 60 耗尽
	s.Dispatch(UpdateIndependent{Field: types.FieldOutput, Value: "60"})
	if err := s.Condition(); !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestSession_BookRefreshRecomputes(t *testing.T) {
	s := newReadySession(t)
	s.Dispatch(UpdateIndependent{Field: types.FieldInput, Value: "60"})
	if err := s.Condition(); !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}

	// 更深的订单簿进来后同一输入变为可成交
	deeper := unitBook()
	deeper.Levels[0].Quantity = depthmath.DecimalValue{Value: big.NewInt(500), Precision: 0}
	s.SetBook(deeper)

	if err := s.Condition(); err != nil {
		t.Fatalf("condition after refresh: %v", err)
	}
	n, err := s.Negotiated()
	if err != nil {
		t.Fatalf("negotiated: %v", err)
	}
	if n.DependentAmount.Cmp(big.NewInt(60_000_000)) != 0 {
		t.Fatalf("dependent got=%s want=60000000", n.DependentAmount)
	}
}

func TestSession_MissingBook(t *testing.T) {
	s := NewSession(newTestRegistry(t), testChainID)
	s.Dispatch(SelectCurrency{Field: types.FieldInput, Asset: assetY})
	s.Dispatch(SelectCurrency{Field: types.FieldOutput, Asset: assetX})
	s.Dispatch(UpdateIndependent{Field: types.FieldInput, Value: "1.0"})
	if err := s.Condition(); !errors.Is(err, domain.ErrBookUnavailable) {
		t.Fatalf("expected ErrBookUnavailable, got %v", err)
	}
}

func TestSession_UnknownMarket(t *testing.T) {
	s := NewSession(newTestRegistry(t), testChainID)
	s.Dispatch(SelectCurrency{Field: types.FieldInput, Asset: assetY})
	s.Dispatch(SelectCurrency{Field: types.FieldOutput, Asset: "0x00000000000000000000000000000000000000cc"})
	if err := s.Condition(); !errors.Is(err, domain.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
	if s.Market() != nil {
		t.Fatalf("market should be nil")
	}
}

func TestSession_FlipKeepsValue(t *testing.T) {
	s := newReadySession(t)
	s.Dispatch(UpdateIndependent{Field: types.FieldInput, Value: "1.0"})
	s.Dispatch(FlipIndependent{})

	state := s.State()
	if state.InputAsset != assetX || state.OutputAsset != assetY {
		t.Fatalf("assets not flipped: input=%s output=%s", state.InputAsset, state.OutputAsset)
	}
	if state.IndependentField != types.FieldOutput {
		t.Fatalf("independent field got=%v want=%v", state.IndependentField, types.FieldOutput)
	}
	// 翻转后独立值仍在，会按新方向重算
	if state.IndependentValue != "1.0" {
		t.Fatalf("independent value got=%q", state.IndependentValue)
	}
}
