// Package server 交易控制面：把协商、构单、提交流水线包成一个
// 本地 HTTP API，供上层界面或脚本调用。
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/swapbot/goswap/dex/signing"
	"github.com/swapbot/goswap/internal/builder"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/internal/journal"
	"github.com/swapbot/goswap/internal/pipeline"
	"github.com/swapbot/goswap/pkg/depthmath"
)

// BookSource 订单簿快照来源：轮询器和推送流都满足。
type BookSource interface {
	Book() *depthmath.OrderBook
}

type Config struct {
	ChainID int64
	Owner   string // 签名账户地址

	Registry *domain.Registry
	Builder  *builder.Builder
	Runner   *pipeline.Runner
	Journal  *journal.Journal
	Domain   signing.DomainConfig

	// NativeAsset/WrappedAsset 原生资产占位地址及其包装代币；
	// 卖出原生资产的订单自动替换成包装代币并先走包装步骤
	NativeAsset  string
	WrappedAsset string

	DefaultSlippageBps int64
}

type Server struct {
	cfg Config

	mu    sync.RWMutex
	books map[string]BookSource // key: 小写 primary|secondary
}

func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil || cfg.Builder == nil || cfg.Runner == nil {
		return nil, errors.New("registry/builder/runner are required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner address is required")
	}
	if cfg.DefaultSlippageBps <= 0 {
		cfg.DefaultSlippageBps = 50
	}
	return &Server{
		cfg:   cfg,
		books: make(map[string]BookSource),
	}, nil
}

// AttachBook 把某个市场的订单簿来源挂到控制面。
func (s *Server) AttachBook(market *domain.Market, source BookSource) {
	s.mu.Lock()
	s.books[bookKey(market)] = source
	s.mu.Unlock()
}

func (s *Server) bookFor(market *domain.Market) BookSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[bookKey(market)]
}

func bookKey(m *domain.Market) string {
	return strings.ToLower(fmt.Sprintf("%s|%s", m.PrimaryAsset, m.SecondaryAsset))
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")

	api.GET("/depth", s.handleDepth)
	api.POST("/quote", s.handleQuote)

	orders := api.Group("/orders")
	orders.POST("/", s.handleOrderSubmit)
	orders.GET("/", s.handleOrdersList)
	orders.GET("/:submissionID", s.handleOrderGet)

	return r
}
