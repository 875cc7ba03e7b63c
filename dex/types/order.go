package types

import (
	"math/big"
)

// UnsignedOrder 类型化订单的完整字段集。
// 构建完成后不可变；哈希即订单身份（每次重新计算，从不跨修改缓存）。
type UnsignedOrder struct {
	Owner string // 订单所有者地址

	TokenS  string   // 卖出代币地址
	TokenB  string   // 买入代币地址
	AmountS *big.Int // 卖出数量（最小单位）
	AmountB *big.Int // 买入数量（最小单位）

	ValidSince int64 // 生效时间（Unix 秒）
	ValidUntil int64 // 过期时间，0 表示不设上限

	DualAuthAddr   string // 双重授权地址
	Broker         string // 经纪人地址
	Wallet         string // 手续费归集钱包
	TokenRecipient string // 成交代币接收地址

	FeeToken  string   // 手续费代币地址
	FeeAmount *big.Int // 手续费数量

	WalletSplitPercentage int  // 钱包分成比例（固定 0）
	AllOrNone             bool // 是否要求全部成交（固定 false）

	TokenTypeS   TokenType // 卖出代币类型标签
	TokenTypeB   TokenType // 买入代币类型标签
	TokenTypeFee TokenType // 手续费代币类型标签

	TrancheS      string // 卖出侧 tranche 标记（32 字节十六进制）
	TrancheB      string // 买入侧 tranche 标记
	TransferDataS string // 附加转账数据（十六进制，可为空）
}

// SignedOrder 已签名订单：原始字段 + 身份哈希 + 编码后的签名字节。
type SignedOrder struct {
	UnsignedOrder

	// Hash 类型化订单哈希（身份，用于关联查询）
	Hash string
	// Signature 编码后的紧凑签名（algorithmTag || v || r || s）
	Signature string
}

// SubmitOrderRequest 提交到远端撮合服务的载荷。
type SubmitOrderRequest struct {
	Owner                    string `json:"owner"`
	TokenS                   string `json:"tokenS"`
	TokenB                   string `json:"tokenB"`
	AmountS                  string `json:"amountS"`
	AmountB                  string `json:"amountB"`
	ValidSince               int64  `json:"validSince"`
	ValidUntil               int64  `json:"validUntil,omitempty"`
	DualAuthAddr             string `json:"dualAuthAddr"`
	Broker                   string `json:"broker"`
	Wallet                   string `json:"wallet"`
	TokenRecipient           string `json:"tokenRecipient"`
	FeeToken                 string `json:"feeToken"`
	FeeAmount                string `json:"feeAmount"`
	WalletSplitPercentage    int    `json:"walletSplitPercentage"`
	AllOrNone                bool   `json:"allOrNone"`
	TokenTypeS               uint8  `json:"tokenTypeS"`
	TokenTypeB               uint8  `json:"tokenTypeB"`
	TokenTypeFee             uint8  `json:"tokenTypeFee"`
	TrancheS                 string `json:"trancheS"`
	TrancheB                 string `json:"trancheB"`
	TransferDataS            string `json:"transferDataS,omitempty"`
	OrderHash                string `json:"orderHash"`
	Signature                string `json:"signature"`
	OrderType                string `json:"orderType"`
	Side                     string `json:"side"`
	EstimatedNumberOfFills   int    `json:"estimatedNumberOfFills"`
	ConstantNetworkFeePremium int   `json:"constantNetworkFeePremium"`
	PerMatchNetworkFee       int    `json:"perMatchNetworkFee"`
	ReferralCode             string `json:"referralCode,omitempty"`
}

// SubmitOrderResponse 撮合服务受理订单后的响应。
type SubmitOrderResponse struct {
	OrderID                string `json:"orderId"`
	Status                 string `json:"status"`
	EffectivePrice         string `json:"effectivePrice"`
	PrimaryConsideration   string `json:"primaryConsideration"`
	SecondaryConsideration string `json:"secondaryConsideration"`
}

// OrderStatusResponse 按服务端订单 ID 查询的状态。
type OrderStatusResponse struct {
	OrderID    string     `json:"orderId"`
	Status     FillStatus `json:"status"`
	FilledS    string     `json:"filledAmountS"`
	FilledB    string     `json:"filledAmountB"`
	UpdatedAt  int64      `json:"updatedAt"`
}

// ErrorResponse 撮合服务的错误响应体。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiagnosticsResponse 尽力而为的错误诊断上下文。
type DiagnosticsResponse struct {
	OrderHash string            `json:"orderHash,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// AnalyticsEvent 提交成功后上报的分析事件（fire-and-forget）。
type AnalyticsEvent struct {
	Name                   string `json:"name"`
	OrderID                string `json:"orderId"`
	OrderHash              string `json:"orderHash"`
	TokenS                 string `json:"tokenS"`
	TokenB                 string `json:"tokenB"`
	PrimaryConsideration   string `json:"primaryConsideration"`
	SecondaryConsideration string `json:"secondaryConsideration"`
	Timestamp              int64  `json:"timestamp"`
}

// ReferralEvent 带推荐码时额外上报的事件，含解码后的签名分量。
type ReferralEvent struct {
	ReferralCode string `json:"referralCode"`
	OrderHash    string `json:"orderHash"`
	SignatureV   uint8  `json:"sigV"`
	SignatureR   string `json:"sigR"`
	SignatureS   string `json:"sigS"`
	Timestamp    int64  `json:"timestamp"`
}

// DepthChartResponse 行情源返回的单边深度快照。
type DepthChartResponse struct {
	Market     string           `json:"market"`
	SellDepths []DepthTupleJSON `json:"sellDepths"`
}

// DepthTupleJSON 深度档位的线格式。
type DepthTupleJSON struct {
	Price    DecimalJSON `json:"price"`
	Quantity DecimalJSON `json:"quantity"`
}

// DecimalJSON 定点数的线格式：整数值字符串 + 隐含小数位数。
type DecimalJSON struct {
	Value     string `json:"value"`
	Precision int    `json:"precision"`
}
