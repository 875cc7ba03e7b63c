package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/journal"
)

const (
	testPrimary   = "0x00000000000000000000000000000000000000aa"
	testSecondary = "0x00000000000000000000000000000000000000bb"
	testOwner     = "0x00000000000000000000000000000000000000ee"
	testKeyHex    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var testDomain = signing.DomainConfig{Name: "Loopring Protocol", Version: "2.0", ChainID: 1}

// stepLog 记录各协作方被调用的顺序。
type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) add(step string) {
	l.mu.Lock()
	l.steps = append(l.steps, step)
	l.mu.Unlock()
}

func (l *stepLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

type fakeWrapper struct {
	log *stepLog
	err error
}

func (w *fakeWrapper) Wrap(_ context.Context, _ *big.Int) error {
	w.log.add("wrap")
	return w.err
}

// loggingAgent 在真实本地签名外记录调用顺序。
type loggingAgent struct {
	*signing.LocalAgent
	log *stepLog
}

func (a loggingAgent) SignTypedData(ctx context.Context, typed apitypes.TypedData) (string, error) {
	a.log.add("sign")
	return a.LocalAgent.SignTypedData(ctx, typed)
}

type fakeMatcher struct {
	log *stepLog

	mu        sync.Mutex
	submitted []*types.SubmitOrderRequest
	submitErr error
	status    types.FillStatus
	onStatus  func()
	diagCalls int
}

func (m *fakeMatcher) SubmitOrder(_ context.Context, req *types.SubmitOrderRequest) (*types.SubmitOrderResponse, error) {
	m.log.add("submit")
	m.mu.Lock()
	m.submitted = append(m.submitted, req)
	m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &types.SubmitOrderResponse{
		OrderID:                "srv-1",
		Status:                 "OPEN",
		EffectivePrice:         "1.05",
		PrimaryConsideration:   "1000000",
		SecondaryConsideration: "1050000",
	}, nil
}

func (m *fakeMatcher) GetOrderStatus(_ context.Context, orderID string) (*types.OrderStatusResponse, error) {
	m.log.add("status")
	if m.onStatus != nil {
		m.onStatus()
	}
	return &types.OrderStatusResponse{OrderID: orderID, Status: m.status}, nil
}

func (m *fakeMatcher) GetDiagnostics(_ context.Context, _ string) (*types.DiagnosticsResponse, error) {
	m.mu.Lock()
	m.diagCalls++
	m.mu.Unlock()
	return &types.DiagnosticsResponse{Message: "insufficient allowance"}, nil
}

func (m *fakeMatcher) diagnostics() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diagCalls
}

type countingReporter struct {
	mu    sync.Mutex
	count int
}

func (r *countingReporter) ReportError(_ context.Context, _ error, _ map[string]string) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func (r *countingReporter) reports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type recordingSink struct {
	events    chan *types.AnalyticsEvent
	referrals chan *types.ReferralEvent
	panics    bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		events:    make(chan *types.AnalyticsEvent, 4),
		referrals: make(chan *types.ReferralEvent, 4),
	}
}

func (s *recordingSink) ReportEvent(_ context.Context, event *types.AnalyticsEvent) error {
	if s.panics {
		panic("sink exploded")
	}
	s.events <- event
	return nil
}

func (s *recordingSink) ReportReferral(_ context.Context, event *types.ReferralEvent) error {
	s.referrals <- event
	return nil
}

func testOrder(t *testing.T) (*types.UnsignedOrder, *domain.Market, string) {
	t.Helper()
	order := &types.UnsignedOrder{
		Owner:          testOwner,
		TokenS:         testSecondary,
		TokenB:         testPrimary,
		AmountS:        big.NewInt(1_100_000),
		AmountB:        big.NewInt(1_000_000),
		ValidSince:     1_600_000_000,
		DualAuthAddr:   types.ZeroAddress,
		Broker:         types.ZeroAddress,
		Wallet:         types.ZeroAddress,
		TokenRecipient: testOwner,
		FeeToken:       types.ZeroAddress,
		FeeAmount:      big.NewInt(0),
		TokenTypeS:     types.TokenTypeFungible,
		TokenTypeB:     types.TokenTypeFungible,
		TokenTypeFee:   types.TokenTypeFungible,
		TrancheS:       types.ZeroTranche,
		TrancheB:       types.ZeroTranche,
	}
	market := &domain.Market{
		PrimaryAsset:      testPrimary,
		SecondaryAsset:    testSecondary,
		PrimaryDecimals:   6,
		SecondaryDecimals: 6,
		PriceDecimals:     4,
	}
	hash, err := signing.OrderHash(order, testDomain)
	if err != nil {
		t.Fatalf("OrderHash error: %v", err)
	}
	return order, market, hash
}

func newTestDeps(t *testing.T, log *stepLog, matcher *fakeMatcher) Deps {
	t.Helper()
	agent, err := signing.NewLocalAgentFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("NewLocalAgentFromHex error: %v", err)
	}
	return Deps{
		Agent:            loggingAgent{LocalAgent: agent, log: log},
		Domain:           testDomain,
		Matching:         matcher,
		Reporter:         &countingReporter{},
		FillPollInterval: time.Millisecond,
		SettleDelay:      time.Millisecond,
		WrapSettleDelay:  time.Millisecond,
	}
}

func TestRun_SkipsWrappingWhenNotNeeded(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	wrapper := &fakeWrapper{log: log}
	deps.Wrapper = wrapper

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sub.State != StateFilled {
		t.Fatalf("state got=%s want=%s", sub.State, StateFilled)
	}
	// 成交确认后不再跟踪远端 ID
	if sub.RemoteID != "" {
		t.Fatalf("remote id should be cleared, got %q", sub.RemoteID)
	}

	steps := log.snapshot()
	if len(steps) == 0 || steps[0] != "sign" {
		t.Fatalf("expected signing first, got %v", steps)
	}
	for _, s := range steps {
		if s == "wrap" {
			t.Fatalf("wrapper must not run without native sale: %v", steps)
		}
	}
}

func TestRun_WrapBeforeSignature(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	deps.Wrapper = &fakeWrapper{log: log}

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash).RequireWrap(order.AmountS)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sub.State != StateFilled {
		t.Fatalf("state got=%s want=%s", sub.State, StateFilled)
	}

	steps := log.snapshot()
	if len(steps) < 2 || steps[0] != "wrap" || steps[1] != "sign" {
		t.Fatalf("expected wrap before sign, got %v", steps)
	}
}

func TestRun_WrapFailureAborts(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	deps.Wrapper = &fakeWrapper{log: log, err: errors.New("node unreachable")}

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash).RequireWrap(order.AmountS)

	err := NewRunner(deps).Run(context.Background(), sub)
	if !errors.Is(err, domain.ErrWrapFailed) {
		t.Fatalf("expected ErrWrapFailed, got %v", err)
	}
	if sub.State != StateFailed {
		t.Fatalf("state got=%s want=%s", sub.State, StateFailed)
	}
	if sub.Cause == nil {
		t.Fatalf("cause must be preserved")
	}
	for _, s := range log.snapshot() {
		if s == "sign" || s == "submit" {
			t.Fatalf("pipeline must abort before signing: %v", log.snapshot())
		}
	}
}

func TestRun_UserRejectionCancels(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	reporter := &countingReporter{}
	deps.Reporter = reporter
	deps.Agent = signing.RejectingAgent{}

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sub.State != StateCancelled {
		t.Fatalf("state got=%s want=%s", sub.State, StateCancelled)
	}

	// 用户取消不上报错误跟踪
	time.Sleep(20 * time.Millisecond)
	if reporter.reports() != 0 {
		t.Fatalf("user rejection must not be reported, got %d reports", reporter.reports())
	}
}

func TestRun_SubmitRejectionFetchesDiagnostics(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{
		log:       log,
		submitErr: domain.ErrSubmissionRejected,
	}
	deps := newTestDeps(t, log, matcher)

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	err := NewRunner(deps).Run(context.Background(), sub)
	if !errors.Is(err, domain.ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
	if sub.State != StateFailed {
		t.Fatalf("state got=%s want=%s", sub.State, StateFailed)
	}
	// 拒绝后尽力拉取诊断上下文；诊断失败也不能掩盖原始错误
	if matcher.diagnostics() != 1 {
		t.Fatalf("diagnostics calls got=%d want=1", matcher.diagnostics())
	}
}

func TestRun_UnsupportedSigningMethodSurfaces(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{
		log:       log,
		submitErr: domain.ErrUnsupportedSigningMethod,
	}
	deps := newTestDeps(t, log, matcher)

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	err := NewRunner(deps).Run(context.Background(), sub)
	if !errors.Is(err, domain.ErrUnsupportedSigningMethod) {
		t.Fatalf("expected ErrUnsupportedSigningMethod, got %v", err)
	}
	// 该错误已自带明确语义，不再拉诊断
	if matcher.diagnostics() != 0 {
		t.Fatalf("diagnostics calls got=%d want=0", matcher.diagnostics())
	}
}

func TestRun_ReportsAnalyticsAndReferral(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	sink := newRecordingSink()
	deps.Reports = sink
	deps.ReferralCode = "FRIEND-42"

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	select {
	case event := <-sink.events:
		if event.OrderHash != hash || event.OrderID != "srv-1" {
			t.Fatalf("analytics event: %+v", event)
		}
		if event.PrimaryConsideration != "1000000" || event.SecondaryConsideration != "1050000" {
			t.Fatalf("considerations: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("analytics event never arrived")
	}

	select {
	case ref := <-sink.referrals:
		if ref.ReferralCode != "FRIEND-42" || ref.OrderHash != hash {
			t.Fatalf("referral event: %+v", ref)
		}
		// 推荐事件携带解码后的签名分量
		if len(ref.SignatureR) != 66 || len(ref.SignatureS) != 66 {
			t.Fatalf("signature components: r=%q s=%q", ref.SignatureR, ref.SignatureS)
		}
	case <-time.After(time.Second):
		t.Fatalf("referral event never arrived")
	}
}

func TestRun_BestEffortReportingNeverGatesOutcome(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	sink := newRecordingSink()
	sink.panics = true
	deps.Reports = sink

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sub.State != StateFilled {
		t.Fatalf("state got=%s want=%s", sub.State, StateFilled)
	}
}

func TestRun_LocalCancelLeavesOrderPending(t *testing.T) {
	jnl, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()

	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusOpen}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	matcher.onStatus = cancel

	deps := newTestDeps(t, log, matcher)
	deps.Journal = jnl

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	// 本地取消只停止跟踪，既不失败也不撤单
	if err := NewRunner(deps).Run(ctx, sub); err != nil {
		t.Fatalf("stop watching must not fail the submission: %v", err)
	}
	if sub.State != StatePendingFill {
		t.Fatalf("state got=%s want=%s", sub.State, StatePendingFill)
	}
	if sub.Cause != nil {
		t.Fatalf("cause must stay empty, got %v", sub.Cause)
	}
	if sub.RemoteID != "srv-1" {
		t.Fatalf("remote id must survive for later reconciliation, got %q", sub.RemoteID)
	}

	entry, err := jnl.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("journal get: %v", err)
	}
	if entry == nil || entry.State != string(StatePendingFill) {
		t.Fatalf("journal state: %+v", entry)
	}
}

func TestRun_RemoteCancellationFails(t *testing.T) {
	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusCancelled}
	deps := newTestDeps(t, log, matcher)

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	err := NewRunner(deps).Run(context.Background(), sub)
	if !errors.Is(err, domain.ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
	if sub.State != StateFailed {
		t.Fatalf("state got=%s want=%s", sub.State, StateFailed)
	}
}

func TestRun_JournalTracksStates(t *testing.T) {
	jnl, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()

	log := &stepLog{}
	matcher := &fakeMatcher{log: log, status: types.FillStatusFilled}
	deps := newTestDeps(t, log, matcher)
	deps.Journal = jnl

	order, market, hash := testOrder(t)
	sub := NewSubmission(order, market, hash)

	if err := NewRunner(deps).Run(context.Background(), sub); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	entry, err := jnl.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("journal get: %v", err)
	}
	if entry == nil {
		t.Fatalf("journal entry missing")
	}
	if entry.State != string(StateFilled) {
		t.Fatalf("journal state got=%s want=%s", entry.State, StateFilled)
	}
	if entry.OrderHash != hash {
		t.Fatalf("journal hash got=%s want=%s", entry.OrderHash, hash)
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateFilled, StateFailed, StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	live := []State{StateIdle, StateWrapping, StateAwaitingSignature, StateSubmitting, StatePendingFill}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
