package bookfeed

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/common"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/depthmath"
	"github.com/swapbot/goswap/pkg/logger"
)

// Source 订单簿来源能力。
type Source interface {
	GetDepthChart(ctx context.Context, primarySymbol, secondarySymbol string) (*types.DepthChartResponse, error)
}

// Poller 周期性拉取深度快照。
// 每次轮询整体替换快照引用，从不原地修改，因此读取方无需加锁快照内容。
type Poller struct {
	source   Source
	market   *domain.Market
	interval time.Duration
	onBook   func(*depthmath.OrderBook)

	loopOnce sync.Once
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	mu   sync.RWMutex
	book *depthmath.OrderBook

	log      *logrus.Entry
	warnGate *common.Debouncer
}

// NewPoller 创建轮询器。onBook 在每次快照替换后回调（可为 nil）。
func NewPoller(source Source, market *domain.Market, interval time.Duration, onBook func(*depthmath.OrderBook)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:   source,
		market:   market,
		interval: interval,
		onBook:   onBook,
		log: logger.WithFields(logrus.Fields{
			"component": "bookfeed",
			"market":    fmt.Sprintf("%s-%s", market.PrimarySymbol, market.SecondarySymbol),
		}),
		// 行情源不可用时每个周期都会失败，告警限流到 30s 一条
		warnGate: common.NewDebouncer(30 * time.Second),
	}
}

// Start 启动轮询循环（幂等）。
func (p *Poller) Start(ctx context.Context) {
	common.StartLoopOnce(ctx, &p.loopOnce, p.setCancel, p.interval,
		func(loopCtx context.Context, tickC <-chan time.Time) {
			p.fetch(loopCtx)
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-tickC:
					p.fetch(loopCtx)
				}
			}
		})
}

// Stop 停止轮询。只是停止观察，不会撤回任何已提交的订单。
func (p *Poller) Stop() {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) setCancel(cancel context.CancelFunc) {
	p.cancelMu.Lock()
	p.cancel = cancel
	p.cancelMu.Unlock()
}

// Book 返回当前快照（可能为 nil）。
func (p *Poller) Book() *depthmath.OrderBook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.book
}

func (p *Poller) fetch(ctx context.Context) {
	resp, err := p.source.GetDepthChart(ctx, p.market.PrimarySymbol, p.market.SecondarySymbol)
	if err != nil {
		// 瞬态失败：保留上一次快照，等下一轮
		if p.warnGate.ReadyNow() {
			p.log.WithError(err).Warn("拉取深度失败")
			p.warnGate.MarkNow()
		}
		return
	}
	book, err := BookFromResponse(resp, p.market)
	if err != nil {
		p.log.WithError(err).Warn("深度快照解析失败")
		return
	}

	p.warnGate.Reset()

	p.mu.Lock()
	p.book = book
	p.mu.Unlock()

	if p.onBook != nil {
		p.onBook(book)
	}
}

// BookFromResponse 把线格式深度转换成撮合器可用的订单簿。
func BookFromResponse(resp *types.DepthChartResponse, market *domain.Market) (*depthmath.OrderBook, error) {
	book := &depthmath.OrderBook{
		PrimaryDecimals:   market.PrimaryDecimals,
		SecondaryDecimals: market.SecondaryDecimals,
		Levels:            make([]depthmath.DepthLevel, 0, len(resp.SellDepths)),
	}
	for i, t := range resp.SellDepths {
		price, ok := new(big.Int).SetString(t.Price.Value, 10)
		if !ok {
			return nil, fmt.Errorf("level %d: bad price value %q", i, t.Price.Value)
		}
		quantity, ok := new(big.Int).SetString(t.Quantity.Value, 10)
		if !ok {
			return nil, fmt.Errorf("level %d: bad quantity value %q", i, t.Quantity.Value)
		}
		book.Levels = append(book.Levels, depthmath.DepthLevel{
			Price:    depthmath.DecimalValue{Value: price, Precision: t.Price.Precision},
			Quantity: depthmath.DecimalValue{Value: quantity, Precision: t.Quantity.Precision},
		})
	}
	return book, nil
}
