package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/negotiation"
	"github.com/swapbot/goswap/internal/pipeline"
	"github.com/swapbot/goswap/pkg/depthmath"
	"github.com/swapbot/goswap/pkg/logger"
)

type quoteRequest struct {
	InputAsset  string `json:"inputAsset" binding:"required"`
	OutputAsset string `json:"outputAsset" binding:"required"`
	Field       string `json:"field" binding:"required"` // INPUT | OUTPUT
	Value       string `json:"value" binding:"required"`
	SlippageBps int64  `json:"slippageBps"`
}

type quoteResponse struct {
	IndependentField  string `json:"independentField"`
	IndependentAmount string `json:"independentAmount"`
	DependentAmount   string `json:"dependentAmount"`
	ExchangeRate      string `json:"exchangeRate,omitempty"` // 1e18 定点，output/input
	Minimum           string `json:"minimum"`
	Maximum           string `json:"maximum"`
	SlippageBps       int64  `json:"slippageBps"`
	RiskySlippage     bool   `json:"riskySlippage,omitempty"`
}

type submitResponse struct {
	SubmissionID string `json:"submissionId"`
	OrderHash    string `json:"orderHash"`
	State        string `json:"state"`
}

// handleDepth 返回某市场的当前订单簿快照。
func (s *Server) handleDepth(c *gin.Context) {
	market, err := s.cfg.Registry.Resolve(s.cfg.ChainID, c.Query("inputAsset"), c.Query("outputAsset"))
	if err != nil {
		abortWith(c, err)
		return
	}
	poller := s.bookFor(market)
	if poller == nil || poller.Book() == nil {
		abortWith(c, domain.ErrBookUnavailable)
		return
	}

	book := poller.Book()
	levels := make([]types.DepthTupleJSON, 0, len(book.Levels))
	for _, l := range book.Levels {
		levels = append(levels, types.DepthTupleJSON{
			Price:    types.DecimalJSON{Value: l.Price.Value.String(), Precision: l.Price.Precision},
			Quantity: types.DecimalJSON{Value: l.Quantity.Value.String(), Precision: l.Quantity.Precision},
		})
	}
	c.JSON(http.StatusOK, types.DepthChartResponse{
		Market:     market.PrimarySymbol + "-" + market.SecondarySymbol,
		SellDepths: levels,
	})
}

// handleQuote 协商一次报价：解析独立值、撮合深度、算滑点窗口。
func (s *Server) handleQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	_, _, resp, err := s.negotiate(&req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleOrderSubmit 报价成立后构单并异步驱动提交流水线。
func (s *Server) handleOrderSubmit(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	// 卖出原生资产：订单落在包装代币上，先走包装步骤
	needsWrap := s.cfg.NativeAsset != "" && strings.EqualFold(req.InputAsset, s.cfg.NativeAsset)
	if needsWrap {
		req.InputAsset = s.cfg.WrappedAsset
	}

	n, market, _, err := s.negotiate(&req)
	if err != nil {
		abortWith(c, err)
		return
	}

	order, err := s.cfg.Builder.Build(n, market, s.cfg.Owner, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}
	hash, err := signing.OrderHash(order, s.cfg.Domain)
	if err != nil {
		abortWith(c, err)
		return
	}

	sub := pipeline.NewSubmission(order, market, hash)
	if needsWrap {
		sub.RequireWrap(order.AmountS)
	}

	// 流水线独立于请求生命周期运行；结果落在流水账里
	go func() {
		if err := s.cfg.Runner.Run(context.Background(), sub); err != nil {
			logger.WithError(err).WithField("submission", sub.ID).Warn("提交流水线以失败收尾")
		}
	}()

	c.JSON(http.StatusAccepted, submitResponse{
		SubmissionID: sub.ID,
		OrderHash:    hash,
		State:        string(sub.State),
	})
}

func (s *Server) handleOrderGet(c *gin.Context) {
	if s.cfg.Journal == nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Code: "NOT_FOUND", Message: "journal disabled"})
		return
	}
	entry, err := s.cfg.Journal.Get(c.Request.Context(), c.Param("submissionID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Code: "NOT_FOUND", Message: "unknown submission"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleOrdersList(c *gin.Context) {
	if s.cfg.Journal == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	entries, err := s.cfg.Journal.List(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// negotiate 跑一轮完整协商：解析字段、挂订单簿、出协商结果与滑点窗口。
func (s *Server) negotiate(req *quoteRequest) (*negotiation.Negotiated, *domain.Market, *quoteResponse, error) {
	field, err := parseField(req.Field)
	if err != nil {
		return nil, nil, nil, err
	}

	sess := negotiation.NewSession(s.cfg.Registry, s.cfg.ChainID)
	sess.Dispatch(negotiation.SelectCurrency{Field: types.FieldInput, Asset: req.InputAsset})
	sess.Dispatch(negotiation.SelectCurrency{Field: types.FieldOutput, Asset: req.OutputAsset})

	market := sess.Market()
	if market == nil {
		return nil, nil, nil, domain.ErrUnknownMarket
	}

	poller := s.bookFor(market)
	if poller == nil || poller.Book() == nil {
		return nil, nil, nil, domain.ErrBookUnavailable
	}
	sess.SetBook(poller.Book())

	sess.Dispatch(negotiation.UpdateIndependent{Field: field, Value: req.Value})
	if err := sess.Condition(); err != nil {
		return nil, nil, nil, err
	}
	n, err := sess.Negotiated()
	if err != nil {
		return nil, nil, nil, err
	}

	bps := req.SlippageBps
	risky := false
	if bps <= 0 {
		bps = s.cfg.DefaultSlippageBps
	} else {
		ok, r := depthmath.ValidateSlippageBps(bps)
		if !ok {
			return nil, nil, nil, domain.ErrInvalidAmount
		}
		risky = r
	}
	bounds := depthmath.SlippageBounds(n.DependentAmount, bps)

	inputAmount, outputAmount := n.IndependentAmount, n.DependentAmount
	if n.IndependentField == types.FieldOutput {
		inputAmount, outputAmount = outputAmount, inputAmount
	}
	rate := depthmath.ExchangeRate(
		inputAmount, market.AssetDecimals(n.InputAsset),
		outputAmount, market.AssetDecimals(n.OutputAsset), false)
	rateStr := ""
	if rate != nil {
		rateStr = rate.String()
	}

	return n, market, &quoteResponse{
		IndependentField:  n.IndependentField.String(),
		IndependentAmount: n.IndependentAmount.String(),
		DependentAmount:   n.DependentAmount.String(),
		ExchangeRate:      rateStr,
		Minimum:           bounds.Minimum.String(),
		Maximum:           bounds.Maximum.String(),
		SlippageBps:       bps,
		RiskySlippage:     risky,
	}, nil
}

func parseField(raw string) (types.Field, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "INPUT":
		return types.FieldInput, nil
	case "OUTPUT":
		return types.FieldOutput, nil
	}
	return 0, domain.ErrInvalidAmount
}

// abortWith 把领域错误映射成 HTTP 状态码。
func abortWith(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrUnknownMarket):
		status, code = http.StatusNotFound, "UNKNOWN_MARKET"
	case errors.Is(err, domain.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		status, code = http.StatusConflict, "INSUFFICIENT_LIQUIDITY"
	case errors.Is(err, domain.ErrBookUnavailable):
		status, code = http.StatusServiceUnavailable, "BOOK_UNAVAILABLE"
	case errors.Is(err, domain.ErrIncompleteNegotiation):
		status, code = http.StatusBadRequest, "INCOMPLETE_NEGOTIATION"
	}
	c.JSON(status, types.ErrorResponse{Code: code, Message: err.Error()})
}
