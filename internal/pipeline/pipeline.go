package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/journal"
	"github.com/swapbot/goswap/internal/telemetry"
	"github.com/swapbot/goswap/pkg/logger"
)

// estimatedNumberOfFills 提交载荷的固定撮合次数预估。
const estimatedNumberOfFills = 16

// Wrapper 原生资产包装能力：估算费用、发交易并等待确认。
// 用户在钱包里取消时返回 domain.ErrSigningRejected。
type Wrapper interface {
	Wrap(ctx context.Context, amount *big.Int) error
}

// MatchingService 远端撮合服务能力（*client.Client 满足）。
type MatchingService interface {
	SubmitOrder(ctx context.Context, req *types.SubmitOrderRequest) (*types.SubmitOrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*types.OrderStatusResponse, error)
	GetDiagnostics(ctx context.Context, orderHash string) (*types.DiagnosticsResponse, error)
}

// ReportSink 分析/推荐事件接收端能力（*client.ReportClient 满足）。
type ReportSink interface {
	ReportEvent(ctx context.Context, event *types.AnalyticsEvent) error
	ReportReferral(ctx context.Context, event *types.ReferralEvent) error
}

// Deps 流水线的协作方集合。除 Matching 与签名代理外均可为 nil：
// nil 的上报端、流水账、包装器都按"缺席"处理。
type Deps struct {
	// Agent 签名代理，至少实现 MessageSigner；
	// 实现 TypedDataSigner 时优先走结构化数据签名
	Agent interface{}

	Domain   signing.DomainConfig
	Matching MatchingService
	Reports  ReportSink
	Reporter telemetry.Reporter
	Journal  *journal.Journal
	Wrapper  Wrapper

	ReferralCode string

	FillPollInterval time.Duration
	SettleDelay      time.Duration
	WrapSettleDelay  time.Duration

	Now func() time.Time
}

// Effect 状态迁移附带的副作用。BestEffort 的副作用异步执行、
// 失败只记日志，绝不影响流水线结果。
type Effect struct {
	Name       string
	BestEffort bool
	Run        func(ctx context.Context) error
}

// Runner 驱动单笔提交从 IDLE 走到终态。
// 同一笔提交的步骤严格串行；不同提交各自起一个 Run。
type Runner struct {
	deps Deps
	log  *logrus.Entry
}

// NewRunner 创建流水线执行器。
func NewRunner(deps Deps) *Runner {
	if deps.FillPollInterval <= 0 {
		deps.FillPollInterval = 3 * time.Second
	}
	if deps.SettleDelay <= 0 {
		deps.SettleDelay = 2 * time.Second
	}
	if deps.WrapSettleDelay <= 0 {
		deps.WrapSettleDelay = 5 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{
		deps: deps,
		log:  logger.WithField("component", "pipeline"),
	}
}

// Run 驱动提交直到终态或 ctx 取消。
// ctx 取消只是停止本地跟踪：SUBMITTING 之后订单已在远端存活，
// 停止轮询不会撤单。
func (r *Runner) Run(ctx context.Context, sub *Submission) error {
	r.journalRecord(ctx, sub)

	for !sub.State.Terminal() {
		if err := ctx.Err(); err != nil {
			// PENDING_FILL 下的取消只是不再跟踪，不算失败
			if sub.State == StatePendingFill {
				return nil
			}
			return err
		}

		next, effects := r.transition(ctx, sub)
		prev := sub.State
		sub.State = next

		if prev != next {
			r.log.WithFields(logrus.Fields{
				"submission": sub.ID,
				"from":       string(prev),
				"to":         string(next),
			}).Info("流水线状态迁移")
			r.journalUpdate(ctx, sub)
		}
		r.runEffects(ctx, sub, effects)
	}

	if sub.State == StateFailed && sub.Cause != nil {
		return sub.Cause
	}
	return nil
}

// transition 单步迁移：当前状态 → 下一状态 + 副作用列表。
// 每个分支是独立函数，便于单独测试。
func (r *Runner) transition(ctx context.Context, sub *Submission) (State, []Effect) {
	switch sub.State {
	case StateIdle:
		return r.stepIdle(sub)
	case StateWrapping:
		return r.stepWrap(ctx, sub)
	case StateAwaitingSignature:
		return r.stepSign(ctx, sub)
	case StateSubmitting:
		return r.stepSubmit(ctx, sub)
	case StatePendingFill:
		return r.stepAwaitFill(ctx, sub)
	default:
		sub.Cause = fmt.Errorf("非法流水线状态 %q", sub.State)
		return StateFailed, nil
	}
}

// stepIdle 需要包装时先进 WRAPPING，否则直接请求签名。
func (r *Runner) stepIdle(sub *Submission) (State, []Effect) {
	if sub.NeedsWrap {
		return StateWrapping, nil
	}
	return StateAwaitingSignature, nil
}

// stepWrap 包装原生资产并等待固定的落账延时。
// 任何失败都带原因转 FAILED；用户取消转 CANCELLED。
func (r *Runner) stepWrap(ctx context.Context, sub *Submission) (State, []Effect) {
	if r.deps.Wrapper == nil {
		sub.Cause = fmt.Errorf("%w: 未配置包装器", domain.ErrWrapFailed)
		return StateFailed, r.reportEffect(sub, sub.Cause)
	}
	if err := r.deps.Wrapper.Wrap(ctx, sub.WrapAmount); err != nil {
		if errors.Is(err, domain.ErrSigningRejected) {
			return StateCancelled, nil
		}
		if !errors.Is(err, domain.ErrWrapFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrWrapFailed, err)
		}
		sub.Cause = err
		return StateFailed, r.reportEffect(sub, err)
	}
	if err := sleepCtx(ctx, r.deps.WrapSettleDelay); err != nil {
		sub.Cause = err
		return StateFailed, nil
	}
	return StateAwaitingSignature, nil
}

// stepSign 请求签名代理对订单哈希签名并编码。
// 用户拒签转 CANCELLED 且不上报；其余失败转 FAILED 并上报。
func (r *Runner) stepSign(ctx context.Context, sub *Submission) (State, []Effect) {
	signed, err := r.sign(ctx, sub)
	if err != nil {
		if errors.Is(err, domain.ErrSigningRejected) {
			return StateCancelled, nil
		}
		sub.Cause = err
		return StateFailed, r.reportEffect(sub, err)
	}
	sub.Signed = signed
	return StateSubmitting, nil
}

func (r *Runner) sign(ctx context.Context, sub *Submission) (*types.SignedOrder, error) {
	algorithm := signing.PreferredAlgorithm(r.deps.Agent)

	var raw string
	var err error
	switch algorithm {
	case signing.AlgorithmEIP712:
		typed := signing.OrderTypedData(sub.Order, r.deps.Domain)
		raw, err = r.deps.Agent.(signing.TypedDataSigner).SignTypedData(ctx, typed)
	case signing.AlgorithmEthSign:
		msgSigner, ok := r.deps.Agent.(signing.MessageSigner)
		if !ok {
			return nil, fmt.Errorf("%w: 签名代理不具备任何签名能力", domain.ErrUnsupportedSigningMethod)
		}
		raw, err = msgSigner.SignMessage(ctx, []byte(sub.Hash))
	}
	if err != nil {
		return nil, err
	}

	envelope, err := signing.ParseRawSignature(raw, algorithm)
	if err != nil {
		return nil, fmt.Errorf("解析签名失败: %w", err)
	}

	return &types.SignedOrder{
		UnsignedOrder: *sub.Order,
		Hash:          sub.Hash,
		Signature:     envelope.EncodeHex(),
	}, nil
}

// stepSubmit 提交签名订单到远端撮合服务。
// 拒绝时尽力拉取诊断上下文，但诊断自身的失败绝不掩盖原始错误。
func (r *Runner) stepSubmit(ctx context.Context, sub *Submission) (State, []Effect) {
	req := r.buildRequest(sub)

	resp, err := r.deps.Matching.SubmitOrder(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrUnsupportedSigningMethod) {
			r.fetchDiagnostics(ctx, sub)
		}
		sub.Cause = err
		return StateFailed, r.reportEffect(sub, err)
	}

	sub.RemoteID = resp.OrderID
	sub.EffectivePrice = resp.EffectivePrice
	sub.PrimaryConsideration = resp.PrimaryConsideration
	sub.SecondaryConsideration = resp.SecondaryConsideration

	return StatePendingFill, r.reportingEffects(sub)
}

// stepAwaitFill 固定间隔轮询成交状态；观察到成交后等落账延时再收尾。
func (r *Runner) stepAwaitFill(ctx context.Context, sub *Submission) (State, []Effect) {
	ticker := time.NewTicker(r.deps.FillPollInterval)
	defer ticker.Stop()

	for {
		status, err := r.deps.Matching.GetOrderStatus(ctx, sub.RemoteID)
		if err != nil {
			if ctx.Err() != nil {
				// 本地取消只停止跟踪：远端订单仍然存活，状态保持 PENDING_FILL
				return StatePendingFill, nil
			}
			// 查询失败视为瞬时故障，下个周期重试
			r.log.WithError(err).WithField("submission", sub.ID).Warn("查询成交状态失败")
		} else {
			switch status.Status {
			case types.FillStatusFilled:
				// 成交已经观察到，落账延时被取消也照常收尾
				_ = sleepCtx(ctx, r.deps.SettleDelay)
				sub.RemoteID = ""
				return StateFilled, nil
			case types.FillStatusCancelled, types.FillStatusExpired:
				sub.Cause = fmt.Errorf("%w: 远端订单状态 %s", domain.ErrSubmissionRejected, status.Status)
				return StateFailed, r.reportEffect(sub, sub.Cause)
			}
		}

		select {
		case <-ctx.Done():
			return StatePendingFill, nil
		case <-ticker.C:
		}
	}
}

// buildRequest 把签名订单展开成提交载荷。
func (r *Runner) buildRequest(sub *Submission) *types.SubmitOrderRequest {
	order := sub.Signed

	side := "SELL"
	if sub.Market != nil && !sub.Market.IsPrimary(order.TokenS) {
		side = "BUY"
	}

	return &types.SubmitOrderRequest{
		Owner:                     order.Owner,
		TokenS:                    order.TokenS,
		TokenB:                    order.TokenB,
		AmountS:                   order.AmountS.String(),
		AmountB:                   order.AmountB.String(),
		ValidSince:                order.ValidSince,
		ValidUntil:                order.ValidUntil,
		DualAuthAddr:              order.DualAuthAddr,
		Broker:                    order.Broker,
		Wallet:                    order.Wallet,
		TokenRecipient:            order.TokenRecipient,
		FeeToken:                  order.FeeToken,
		FeeAmount:                 order.FeeAmount.String(),
		WalletSplitPercentage:     order.WalletSplitPercentage,
		AllOrNone:                 order.AllOrNone,
		TokenTypeS:                uint8(order.TokenTypeS),
		TokenTypeB:                uint8(order.TokenTypeB),
		TokenTypeFee:              uint8(order.TokenTypeFee),
		TrancheS:                  order.TrancheS,
		TrancheB:                  order.TrancheB,
		TransferDataS:             order.TransferDataS,
		OrderHash:                 order.Hash,
		Signature:                 order.Signature,
		OrderType:                 string(types.OrderClassMarket),
		Side:                      side,
		EstimatedNumberOfFills:    estimatedNumberOfFills,
		ConstantNetworkFeePremium: 0,
		PerMatchNetworkFee:        0,
		ReferralCode:              r.deps.ReferralCode,
	}
}

// fetchDiagnostics 拒绝后尽力拉取诊断上下文，只记日志。
func (r *Runner) fetchDiagnostics(ctx context.Context, sub *Submission) {
	diag, err := r.deps.Matching.GetDiagnostics(ctx, sub.Hash)
	if err != nil {
		r.log.WithError(err).WithField("submission", sub.ID).Debug("拉取诊断上下文失败")
		return
	}
	r.log.WithFields(logrus.Fields{
		"submission": sub.ID,
		"checks":     diag.Checks,
		"message":    diag.Message,
	}).Warn("订单被拒绝的诊断上下文")
}

// reportingEffects 提交成功后的上报副作用：分析事件，
// 以及（带推荐码时）含签名分量的推荐事件。全部 best-effort。
func (r *Runner) reportingEffects(sub *Submission) []Effect {
	if r.deps.Reports == nil {
		return nil
	}

	order := sub.Signed
	remoteID := sub.RemoteID
	now := r.deps.Now().Unix()

	effects := []Effect{{
		Name:       "analytics",
		BestEffort: true,
		Run: func(ctx context.Context) error {
			return r.deps.Reports.ReportEvent(ctx, &types.AnalyticsEvent{
				Name:                   "order_submitted",
				OrderID:                remoteID,
				OrderHash:              sub.Hash,
				TokenS:                 order.TokenS,
				TokenB:                 order.TokenB,
				PrimaryConsideration:   sub.PrimaryConsideration,
				SecondaryConsideration: sub.SecondaryConsideration,
				Timestamp:              now,
			})
		},
	}}

	if r.deps.ReferralCode != "" {
		effects = append(effects, Effect{
			Name:       "referral",
			BestEffort: true,
			Run: func(ctx context.Context) error {
				envelope, err := signing.DecodeSignatureHex(order.Signature)
				if err != nil {
					return err
				}
				return r.deps.Reports.ReportReferral(ctx, &types.ReferralEvent{
					ReferralCode: r.deps.ReferralCode,
					OrderHash:    sub.Hash,
					SignatureV:   envelope.V,
					SignatureR:   envelope.RHex(),
					SignatureS:   envelope.SHex(),
					Timestamp:    now,
				})
			},
		})
	}
	return effects
}

// reportEffect 把失败以 best-effort 方式送往错误跟踪。
func (r *Runner) reportEffect(sub *Submission, cause error) []Effect {
	if r.deps.Reporter == nil {
		return nil
	}
	return []Effect{{
		Name:       "error-report",
		BestEffort: true,
		Run: func(ctx context.Context) error {
			telemetry.Report(ctx, r.deps.Reporter, cause, map[string]string{
				"submission": sub.ID,
				"orderHash":  sub.Hash,
				"state":      string(sub.State),
			})
			return nil
		},
	}}
}

// runEffects best-effort 的副作用异步执行且吞掉失败；
// 其余同步执行（当前所有副作用都是 best-effort）。
func (r *Runner) runEffects(ctx context.Context, sub *Submission, effects []Effect) {
	for _, effect := range effects {
		effect := effect
		if effect.BestEffort {
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.WithField("effect", effect.Name).Warnf("副作用 panic: %v", rec)
					}
				}()
				if err := effect.Run(ctx); err != nil {
					r.log.WithError(err).WithFields(logrus.Fields{
						"submission": sub.ID,
						"effect":     effect.Name,
					}).Debug("best-effort 副作用失败")
				}
			}()
			continue
		}
		if err := effect.Run(ctx); err != nil {
			r.log.WithError(err).WithField("effect", effect.Name).Warn("副作用失败")
		}
	}
}

func (r *Runner) journalRecord(ctx context.Context, sub *Submission) {
	if r.deps.Journal == nil {
		return
	}
	err := r.deps.Journal.Record(ctx, &journal.Entry{
		ID:        sub.ID,
		OrderHash: sub.Hash,
		State:     string(sub.State),
		TokenS:    sub.Order.TokenS,
		TokenB:    sub.Order.TokenB,
		AmountS:   sub.Order.AmountS.String(),
		AmountB:   sub.Order.AmountB.String(),
	})
	if err != nil {
		r.log.WithError(err).WithField("submission", sub.ID).Warn("写入流水账失败")
	}
}

func (r *Runner) journalUpdate(ctx context.Context, sub *Submission) {
	if r.deps.Journal == nil {
		return
	}
	cause := ""
	if sub.Cause != nil {
		cause = sub.Cause.Error()
	}
	err := r.deps.Journal.UpdateState(ctx, sub.ID, string(sub.State), sub.RemoteID, cause)
	if err != nil {
		r.log.WithError(err).WithField("submission", sub.ID).Warn("更新流水账失败")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
