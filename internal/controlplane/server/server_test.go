package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/builder"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/journal"
	"github.com/swapbot/goswap/internal/pipeline"
	"github.com/swapbot/goswap/pkg/depthmath"
)

const (
	assetPrimary   = "0x00000000000000000000000000000000000000aa"
	assetSecondary = "0x00000000000000000000000000000000000000bb"
	assetNative    = "0x000000000000000000000000000000000000000e"
	signerKeyHex   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var serverDomain = signing.DomainConfig{Name: "Loopring Protocol", Version: "2.0", ChainID: 1}

type staticBook struct {
	book *depthmath.OrderBook
}

func (b *staticBook) Book() *depthmath.OrderBook { return b.book }

func unitBook() *depthmath.OrderBook {
	return &depthmath.OrderBook{
		PrimaryDecimals:   6,
		SecondaryDecimals: 6,
		Levels: []depthmath.DepthLevel{
			{
				Price:    depthmath.DecimalValue{Value: big.NewInt(100), Precision: 2},
				Quantity: depthmath.DecimalValue{Value: big.NewInt(50), Precision: 0},
			},
		},
	}
}

type acceptingMatcher struct {
	mu        sync.Mutex
	submitted int
}

func (m *acceptingMatcher) SubmitOrder(_ context.Context, _ *types.SubmitOrderRequest) (*types.SubmitOrderResponse, error) {
	m.mu.Lock()
	m.submitted++
	m.mu.Unlock()
	return &types.SubmitOrderResponse{OrderID: "srv-1", Status: "OPEN"}, nil
}

func (m *acceptingMatcher) GetOrderStatus(_ context.Context, orderID string) (*types.OrderStatusResponse, error) {
	return &types.OrderStatusResponse{OrderID: orderID, Status: types.FillStatusFilled}, nil
}

func (m *acceptingMatcher) GetDiagnostics(_ context.Context, _ string) (*types.DiagnosticsResponse, error) {
	return &types.DiagnosticsResponse{}, nil
}

type recordingWrapper struct {
	mu    sync.Mutex
	calls int
}

func (w *recordingWrapper) Wrap(_ context.Context, _ *big.Int) error {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return nil
}

func (w *recordingWrapper) wrapped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type testHarness struct {
	server  *Server
	journal *journal.Journal
	matcher *acceptingMatcher
	wrapper *recordingWrapper
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	registry := domain.NewRegistry()
	err := registry.Register(1, domain.Market{
		PrimaryAsset:      assetPrimary,
		SecondaryAsset:    assetSecondary,
		PrimarySymbol:     "WETH",
		SecondarySymbol:   "DAI",
		PrimaryDecimals:   6,
		SecondaryDecimals: 6,
		PriceDecimals:     4,
	})
	if err != nil {
		t.Fatalf("register market: %v", err)
	}

	agent, err := signing.NewLocalAgentFromHex(signerKeyHex)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	jnl, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })

	matcher := &acceptingMatcher{}
	wrapper := &recordingWrapper{}
	runner := pipeline.NewRunner(pipeline.Deps{
		Agent:            agent,
		Domain:           serverDomain,
		Matching:         matcher,
		Journal:          jnl,
		Wrapper:          wrapper,
		FillPollInterval: time.Millisecond,
		SettleDelay:      time.Millisecond,
		WrapSettleDelay:  time.Millisecond,
	})

	srv, err := New(Config{
		ChainID:      1,
		Owner:        agent.Address().Hex(),
		Registry:     registry,
		Builder:      builder.New(builder.Config{}),
		Runner:       runner,
		Journal:      jnl,
		Domain:       serverDomain,
		NativeAsset:  assetNative,
		WrappedAsset: assetSecondary,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	market, err := registry.Resolve(1, assetPrimary, assetSecondary)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	srv.AttachBook(market, &staticBook{book: unitBook()})

	return &testHarness{server: srv, journal: jnl, matcher: matcher, wrapper: wrapper}
}

func (h *testHarness) post(t *testing.T, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	return w
}

func (h *testHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestQuote_SellSecondary(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/api/quote", `{
		"inputAsset": "`+assetSecondary+`",
		"outputAsset": "`+assetPrimary+`",
		"field": "INPUT",
		"value": "1.0"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}

	resp := decodeJSON[quoteResponse](t, w)
	if resp.IndependentAmount != "1000000" {
		t.Fatalf("independent got=%s", resp.IndependentAmount)
	}
	if resp.DependentAmount != "1000000" {
		t.Fatalf("dependent got=%s", resp.DependentAmount)
	}
	if resp.SlippageBps != 50 {
		t.Fatalf("default slippage got=%d", resp.SlippageBps)
	}
	if resp.Minimum != "995000" || resp.Maximum != "1005000" {
		t.Fatalf("bounds got=[%s,%s]", resp.Minimum, resp.Maximum)
	}
	// 1:1 市场 → 汇率恰为 1e18
	if resp.ExchangeRate != "1000000000000000000" {
		t.Fatalf("rate got=%s", resp.ExchangeRate)
	}
}

func TestQuote_ErrorMapping(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name: "unknown market",
			body: `{"inputAsset":"0x00000000000000000000000000000000000000cc","outputAsset":"` +
				assetPrimary + `","field":"INPUT","value":"1.0"}`,
			status: http.StatusNotFound,
			code:   "UNKNOWN_MARKET",
		},
		{
			name: "invalid amount",
			body: `{"inputAsset":"` + assetSecondary + `","outputAsset":"` +
				assetPrimary + `","field":"INPUT","value":"abc"}`,
			status: http.StatusBadRequest,
			code:   "INVALID_AMOUNT",
		},
		{
			name: "insufficient liquidity",
			body: `{"inputAsset":"` + assetSecondary + `","outputAsset":"` +
				assetPrimary + `","field":"OUTPUT","value":"60"}`,
			status: http.StatusConflict,
			code:   "INSUFFICIENT_LIQUIDITY",
		},
		{
			name: "slippage out of range",
			body: `{"inputAsset":"` + assetSecondary + `","outputAsset":"` +
				assetPrimary + `","field":"INPUT","value":"1.0","slippageBps":6000}`,
			status: http.StatusBadRequest,
			code:   "INVALID_AMOUNT",
		},
		{
			name:   "missing fields",
			body:   `{"inputAsset":"` + assetSecondary + `"}`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.post(t, "/api/quote", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status got=%d want=%d body=%s", w.Code, tt.status, w.Body.String())
			}
			resp := decodeJSON[types.ErrorResponse](t, w)
			if resp.Code != tt.code {
				t.Fatalf("code got=%s want=%s", resp.Code, tt.code)
			}
		})
	}
}

func TestQuote_RiskySlippageFlagged(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/api/quote", `{
		"inputAsset": "`+assetSecondary+`",
		"outputAsset": "`+assetPrimary+`",
		"field": "INPUT",
		"value": "1.0",
		"slippageBps": 9
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
	resp := decodeJSON[quoteResponse](t, w)
	if !resp.RiskySlippage {
		t.Fatalf("slippage 9 bps must be flagged risky")
	}
}

func TestQuote_BookUnavailable(t *testing.T) {
	h := newHarness(t)

	// 覆盖成空快照来源
	market, _ := h.server.cfg.Registry.Resolve(1, assetPrimary, assetSecondary)
	h.server.AttachBook(market, &staticBook{})

	w := h.post(t, "/api/quote", `{
		"inputAsset": "`+assetSecondary+`",
		"outputAsset": "`+assetPrimary+`",
		"field": "INPUT",
		"value": "1.0"
	}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
}

func TestDepth(t *testing.T) {
	h := newHarness(t)

	w := h.get(t, "/api/depth?inputAsset="+assetPrimary+"&outputAsset="+assetSecondary)
	if w.Code != http.StatusOK {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
	resp := decodeJSON[types.DepthChartResponse](t, w)
	if resp.Market != "WETH-DAI" {
		t.Fatalf("market got=%s", resp.Market)
	}
	if len(resp.SellDepths) != 1 || resp.SellDepths[0].Price.Value != "100" {
		t.Fatalf("depths: %+v", resp.SellDepths)
	}
}

func waitForState(t *testing.T, jnl *journal.Journal, id, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := jnl.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("journal get: %v", err)
		}
		if entry != nil && entry.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("submission %s never reached %s", id, want)
}

func TestOrderSubmit(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/api/orders/", `{
		"inputAsset": "`+assetSecondary+`",
		"outputAsset": "`+assetPrimary+`",
		"field": "INPUT",
		"value": "1.0"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}

	resp := decodeJSON[submitResponse](t, w)
	if resp.SubmissionID == "" || resp.OrderHash == "" {
		t.Fatalf("response: %+v", resp)
	}

	waitForState(t, h.journal, resp.SubmissionID, "FILLED")
	if h.wrapper.wrapped() != 0 {
		t.Fatalf("token sale must not wrap")
	}

	// 历史记录可查
	gw := h.get(t, "/api/orders/"+resp.SubmissionID)
	if gw.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", gw.Code, gw.Body.String())
	}
}

func TestOrderSubmit_NativeAssetWraps(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/api/orders/", `{
		"inputAsset": "`+assetNative+`",
		"outputAsset": "`+assetPrimary+`",
		"field": "INPUT",
		"value": "1.0"
	}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}

	resp := decodeJSON[submitResponse](t, w)
	waitForState(t, h.journal, resp.SubmissionID, "FILLED")

	if h.wrapper.wrapped() != 1 {
		t.Fatalf("native sale must wrap exactly once, got %d", h.wrapper.wrapped())
	}
}

func TestOrderGet_Unknown(t *testing.T) {
	h := newHarness(t)

	w := h.get(t, "/api/orders/no-such-id")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status got=%d body=%s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	if w := h.get(t, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("status got=%d", w.Code)
	}
}
