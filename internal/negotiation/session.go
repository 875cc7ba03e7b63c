package negotiation

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/amount"
	"github.com/swapbot/goswap/pkg/depthmath"
	"github.com/swapbot/goswap/pkg/logger"
)

// Negotiated 协商完成后交给订单构建器的数量。
type Negotiated struct {
	IndependentField  types.Field
	IndependentAmount *big.Int
	DependentAmount   *big.Int
	InputAsset        string
	OutputAsset       string
}

// Session 单个交易会话的协商驱动器。
// 持有 reducer 状态、已解析的市场和最近一次订单簿快照；
// 独立值、市场或订单簿任一变化都会触发依赖值重算。
type Session struct {
	mu       sync.Mutex
	registry *domain.Registry
	chainID  int64

	state  State
	market *domain.Market
	book   *depthmath.OrderBook

	// parsed 最近一次成功解析的独立值（最小单位）
	parsed *big.Int
	// condition 当前对外暴露的错误条件（nil = 正常）
	condition error

	log *logrus.Entry
}

// NewSession 创建新会话。每个交易会话新建一个，不跨会话复用。
func NewSession(registry *domain.Registry, chainID int64) *Session {
	return &Session{
		registry: registry,
		chainID:  chainID,
		log:      logger.WithField("component", "negotiation"),
	}
}

// Dispatch 应用动作并在需要时重算依赖值。
func (s *Session) Dispatch(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Reduce(s.state, action)

	switch action.(type) {
	case SelectCurrency, FlipIndependent:
		s.resolveMarketLocked()
		s.recomputeLocked()
	case UpdateIndependent:
		s.recomputeLocked()
	}
}

// SetBook 替换订单簿快照并重算。快照整体替换，从不原地修改。
func (s *Session) SetBook(book *depthmath.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = book
	s.recomputeLocked()
}

// State 返回当前协商状态的副本。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Market 返回已解析的市场（可能为 nil）。
func (s *Session) Market() *domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market
}

// Condition 返回当前对外暴露的错误条件。
// 可能是 ErrUnknownMarket / ErrInvalidAmount / ErrInsufficientLiquidity / ErrBookUnavailable。
func (s *Session) Condition() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.condition
}

// Negotiated 导出协商结果。任一腿缺失时返回 ErrIncompleteNegotiation。
func (s *Session) Negotiated() (*Negotiated, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.parsed == nil || s.state.DependentValue == nil {
		return nil, domain.ErrIncompleteNegotiation
	}
	return &Negotiated{
		IndependentField:  s.state.IndependentField,
		IndependentAmount: new(big.Int).Set(s.parsed),
		DependentAmount:   new(big.Int).Set(s.state.DependentValue),
		InputAsset:        s.state.InputAsset,
		OutputAsset:       s.state.OutputAsset,
	}, nil
}

// resolveMarketLocked 双资产齐备时解析市场；失败时暴露 ErrUnknownMarket。
func (s *Session) resolveMarketLocked() {
	s.market = nil
	if s.state.InputAsset == "" || s.state.OutputAsset == "" {
		return
	}
	m, err := s.registry.Resolve(s.chainID, s.state.InputAsset, s.state.OutputAsset)
	if err != nil {
		s.condition = err
		s.log.WithError(err).Warn("市场解析失败")
		return
	}
	s.market = m
	s.condition = nil
}

// recomputeLocked 解析校验独立值并调用撮合器重算依赖值。
func (s *Session) recomputeLocked() {
	s.parsed = nil
	s.state = Reduce(s.state, UpdateDependent{Value: nil})

	if s.state.IndependentValue == "" || s.market == nil {
		if s.market != nil {
			s.condition = nil
		}
		return
	}

	independentAsset := s.state.InputAsset
	if s.state.IndependentField == types.FieldOutput {
		independentAsset = s.state.OutputAsset
	}

	parsed, err := s.parseIndependent(independentAsset)
	if err != nil {
		s.condition = err
		return
	}
	s.parsed = parsed

	direction := depthmath.DirectionSell
	if s.state.IndependentField == types.FieldOutput {
		direction = depthmath.DirectionBuy
	}

	dependent, err := depthmath.MatchFill(parsed, s.book, direction)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			s.condition = domain.ErrInsufficientLiquidity
		} else {
			// 其它撮合失败一律归为订单簿不可用（瞬态）
			s.condition = domain.ErrBookUnavailable
		}
		return
	}
	if dependent.Sign() <= 0 {
		s.condition = domain.ErrBookUnavailable
		return
	}

	s.condition = nil
	s.state = Reduce(s.state, UpdateDependent{Value: dependent})
}

// parseIndependent 把用户输入解析成最小单位并按市场规则校验。
func (s *Session) parseIndependent(asset string) (*big.Int, error) {
	decimals := s.market.AssetDecimals(asset)

	parsed, err := amount.Parse(s.state.IndependentValue, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
	}
	if parsed.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if parsed.Cmp(depthmath.MaxUint256) >= 0 {
		return nil, fmt.Errorf("%w: amount overflows", domain.ErrInvalidAmount)
	}

	increment := s.market.MinIncrement(asset)
	if parsed.Cmp(increment) < 0 {
		return nil, fmt.Errorf("%w: amount below minimum increment %s", domain.ErrInvalidAmount, increment)
	}
	if new(big.Int).Mod(parsed, increment).Sign() != 0 {
		return nil, fmt.Errorf("%w: amount not a multiple of increment %s", domain.ErrInvalidAmount, increment)
	}
	return parsed, nil
}
