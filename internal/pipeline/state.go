package pipeline

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
)

// State 提交流水线的状态。
type State string

const (
	StateIdle              State = "IDLE"
	StateWrapping          State = "WRAPPING"
	StateAwaitingSignature State = "AWAITING_SIGNATURE"
	StateSubmitting        State = "SUBMITTING"
	StatePendingFill       State = "PENDING_FILL"
	StateFilled            State = "FILLED"
	StateFailed            State = "FAILED"
	StateCancelled         State = "CANCELLED"
)

// Terminal 是否为终态。终态的提交记录不再被流水线驱动。
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Submission 单笔在途交易的状态记录。
// 同一笔提交的各步骤严格串行；并发的独立提交各自持有一条记录，
// 流水线不做去重。
type Submission struct {
	ID string // 本地 ID，创建时分配

	Order  *types.UnsignedOrder
	Market *domain.Market
	Hash   string // 订单身份哈希，创建时即计算

	// NeedsWrap 卖出资产为原生资产且需要先包装时为 true
	NeedsWrap  bool
	WrapAmount *big.Int

	Signed *types.SignedOrder

	// RemoteID 服务端分配的订单 ID；成交确认后清空（不再跟踪）
	RemoteID               string
	EffectivePrice         string
	PrimaryConsideration   string
	SecondaryConsideration string

	State State
	Cause error // 进入 FAILED 时保留的原始失败原因
}

// NewSubmission 创建处于 IDLE 的提交记录。
func NewSubmission(order *types.UnsignedOrder, market *domain.Market, hash string) *Submission {
	return &Submission{
		ID:     uuid.NewString(),
		Order:  order,
		Market: market,
		Hash:   hash,
		State:  StateIdle,
	}
}

// RequireWrap 标记该笔提交需要先包装原生资产。
func (s *Submission) RequireWrap(amount *big.Int) *Submission {
	s.NeedsWrap = true
	s.WrapAmount = amount
	return s
}
