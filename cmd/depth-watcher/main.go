package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/swapbot/goswap/dex/client"
	"github.com/swapbot/goswap/internal/bookfeed"
	"github.com/swapbot/goswap/internal/domain"
	"github.com/swapbot/goswap/pkg/amount"
	"github.com/swapbot/goswap/pkg/config"
	"github.com/swapbot/goswap/pkg/depthmath"
)

const displayDepth = 10 // 显示的深度档位数

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色：卖单

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))
)

type tickMsg time.Time

type bookMsg struct {
	book *depthmath.OrderBook
	err  error
}

// model TUI 状态：一个市场的卖盘深度快照。
type model struct {
	source  *client.Client
	market  *domain.Market
	refresh time.Duration

	book    *depthmath.OrderBook
	fetchAt time.Time
	lastErr error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd(m.refresh))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd(m.refresh))
	case bookMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.book = msg.book
			m.lastErr = nil
			m.fetchAt = time.Now()
		}
		return m, nil
	}
	return m, nil
}

func (m model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		resp, err := m.source.GetDepthChart(ctx, m.market.PrimarySymbol, m.market.SecondarySymbol)
		if err != nil {
			return bookMsg{err: err}
		}
		book, err := bookfeed.BookFromResponse(resp, m.market)
		if err != nil {
			return bookMsg{err: err}
		}
		return bookMsg{book: book}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) View() string {
	var b strings.Builder

	pair := fmt.Sprintf("%s-%s", m.market.PrimarySymbol, m.market.SecondarySymbol)
	b.WriteString(headerStyle.Render(fmt.Sprintf(" %s 卖盘深度 ", pair)))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(errStyle.Render("拉取失败: "+m.lastErr.Error()) + "\n\n")
	}

	if m.book == nil {
		b.WriteString(dimStyle.Render("等待首次快照…") + "\n")
	} else {
		b.WriteString(m.renderBook())
	}

	b.WriteString("\n" + dimStyle.Render("q 退出 · r 手动刷新"))
	if !m.fetchAt.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" · 更新于 %s", m.fetchAt.Format("15:04:05"))))
	}
	b.WriteString("\n")
	return b.String()
}

func (m model) renderBook() string {
	var rows []string
	rows = append(rows, fmt.Sprintf("%-14s %-16s %-16s", "价格", "数量", "累计"))

	cumulative := new(big.Int)
	count := len(m.book.Levels)
	if count > displayDepth {
		count = displayDepth
	}
	for i := 0; i < count; i++ {
		l := m.book.Levels[i]
		// 数量换算到主资产最小单位后累计
		qty := scaleTo(l.Quantity.Value, m.market.PrimaryDecimals-l.Quantity.Precision)
		cumulative.Add(cumulative, qty)

		price := amount.Format(scaleTo(l.Price.Value, m.market.SecondaryDecimals-l.Price.Precision), m.market.SecondaryDecimals, 6)
		row := fmt.Sprintf("%-14s %-16s %-16s",
			price,
			amount.Format(qty, m.market.PrimaryDecimals, 6),
			amount.Format(cumulative, m.market.PrimaryDecimals, 6),
		)
		rows = append(rows, askStyle.Render(row))
	}
	if len(m.book.Levels) > displayDepth {
		rows = append(rows, dimStyle.Render(fmt.Sprintf("… 另有 %d 档", len(m.book.Levels)-displayDepth)))
	}
	return borderStyle.Render(strings.Join(rows, "\n"))
}

// scaleTo 按十的幂缩放（负指数时向下整除）。
func scaleTo(v *big.Int, exp int) *big.Int {
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(exp))), nil)
	out := new(big.Int)
	if exp >= 0 {
		return out.Mul(v, factor)
	}
	return out.Div(v, factor)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func main() {
	var (
		configPath = flag.String("config", getenv("GOSWAP_CONFIG", "config.yaml"), "配置文件路径")
		pair       = flag.String("market", "", "市场（PRIMARY-SECONDARY 符号；默认取配置里第一个市场）")
		refresh    = flag.Duration("refresh", 2*time.Second, "刷新间隔")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	mc, err := selectMarket(cfg, *pair)
	if err != nil {
		fatal(err)
	}
	market := &domain.Market{
		PrimaryAsset:      mc.PrimaryAsset,
		SecondaryAsset:    mc.SecondaryAsset,
		PrimarySymbol:     mc.PrimarySymbol,
		SecondarySymbol:   mc.SecondarySymbol,
		PrimaryDecimals:   mc.PrimaryDecimals,
		SecondaryDecimals: mc.SecondaryDecimals,
		PriceDecimals:     mc.PriceDecimals,
	}

	m := model{
		source:  client.New(cfg.Endpoints.MatchingBaseURL),
		market:  market,
		refresh: *refresh,
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fatal(err)
	}
}

func selectMarket(cfg *config.Config, pair string) (*config.MarketConfig, error) {
	if pair == "" {
		return &cfg.Markets[0], nil
	}
	for i, m := range cfg.Markets {
		if strings.EqualFold(pair, m.PrimarySymbol+"-"+m.SecondarySymbol) {
			return &cfg.Markets[i], nil
		}
	}
	return nil, fmt.Errorf("配置里没有市场 %q", pair)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
