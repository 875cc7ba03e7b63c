package domain

import "errors"

// 交易核心的错误分类。
// 哨兵错误用 errors.Is 判断；跨 I/O 边界时再用 pkg/errors 包装堆栈。
var (
	// ErrUnknownMarket 交易对不在市场注册表中（致命，阻塞报价）
	ErrUnknownMarket = errors.New("unknown market")

	// ErrInvalidAmount 用户输入的数量非法（可通过修改输入恢复）
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientLiquidity 订单簿深度不足以撮合请求数量（可重试或减小数量）
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrBookUnavailable 订单簿缺失或为空（瞬态，等下一次轮询）
	ErrBookUnavailable = errors.New("order book unavailable")

	// ErrIncompleteNegotiation 协商状态缺少某一腿的数量（前置条件违反，不应到达用户）
	ErrIncompleteNegotiation = errors.New("incomplete negotiation")

	// ErrSigningRejected 用户在签名代理处拒绝签名（取消，不上报）
	ErrSigningRejected = errors.New("signing rejected by user")

	// ErrUnsupportedSigningMethod 撮合服务不接受该签名算法（换算法前不可重试）
	ErrUnsupportedSigningMethod = errors.New("unsupported signing method")

	// ErrSubmissionRejected 撮合服务拒绝订单（用户可修正后重试）
	ErrSubmissionRejected = errors.New("order submission rejected")

	// ErrWrapFailed 原生资产包装失败（中止流水线，原因原样透出）
	ErrWrapFailed = errors.New("wrap failed")
)

// Reportable 判断错误是否应该进入外部错误追踪。
// 用户取消签名不上报；本地输入校验错误也不上报。
func Reportable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSigningRejected) {
		return false
	}
	if errors.Is(err, ErrInvalidAmount) {
		return false
	}
	return true
}
