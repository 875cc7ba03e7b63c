package bookfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/depthmath"
	"github.com/swapbot/goswap/pkg/logger"
)

const (
	streamReconnectDelay = 3 * time.Second
	streamReadTimeout    = 30 * time.Second
)

// subscribeMessage 深度频道订阅消息。
type subscribeMessage struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Market  string `json:"market"`
}

// StreamFeed 深度推送客户端：轮询器之外的另一种订单簿来源。
// 每条消息都是完整快照，与轮询路径一样整体替换。
type StreamFeed struct {
	url    string
	market *domain.Market
	onBook func(*depthmath.OrderBook)

	reconnectDelay time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	cancel  context.CancelFunc

	bookMu sync.RWMutex
	book   *depthmath.OrderBook

	log *logrus.Entry
}

// NewStreamFeed 创建深度推送客户端。
func NewStreamFeed(url string, market *domain.Market, onBook func(*depthmath.OrderBook)) *StreamFeed {
	return &StreamFeed{
		url:            url,
		market:         market,
		onBook:         onBook,
		reconnectDelay: streamReconnectDelay,
		log: logger.WithFields(logrus.Fields{
			"component": "bookstream",
			"market":    fmt.Sprintf("%s-%s", market.PrimarySymbol, market.SecondarySymbol),
		}),
	}
}

// Start 启动连接与读取循环（断线固定间隔重连）。
func (f *StreamFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	go func() {
		for {
			if runCtx.Err() != nil {
				return
			}
			if err := f.runOnce(runCtx); err != nil && runCtx.Err() == nil {
				f.log.WithError(err).Warn("深度推送连接断开，准备重连")
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(f.reconnectDelay):
			}
		}
	}()
}

// Stop 断开连接并停止重连。
func (f *StreamFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.running = false
}

func (f *StreamFeed) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("连接深度推送失败: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer conn.Close()

	sub := subscribeMessage{
		Op:      "subscribe",
		Channel: "depth",
		Market:  fmt.Sprintf("%s-%s", f.market.PrimarySymbol, f.market.SecondarySymbol),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("发送订阅消息失败: %w", err)
	}

	// ctx 取消时主动关连接打断阻塞读
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var resp types.DepthChartResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			f.log.WithError(err).Debug("忽略无法解析的深度消息")
			continue
		}
		book, err := BookFromResponse(&resp, f.market)
		if err != nil {
			f.log.WithError(err).Debug("忽略非法深度快照")
			continue
		}
		f.bookMu.Lock()
		f.book = book
		f.bookMu.Unlock()
		if f.onBook != nil {
			f.onBook(book)
		}
	}
}

// Book 返回最近一次收到的快照（可能为 nil）。
func (f *StreamFeed) Book() *depthmath.OrderBook {
	f.bookMu.RLock()
	defer f.bookMu.RUnlock()
	return f.book
}
