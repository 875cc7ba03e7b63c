package types

// Field 用户正在编辑的字段：另一侧为计算出的依赖值。
type Field int

const (
	FieldInput  Field = 0 // 卖出侧
	FieldOutput Field = 1 // 买入侧
)

func (f Field) Other() Field {
	if f == FieldInput {
		return FieldOutput
	}
	return FieldInput
}

func (f Field) String() string {
	if f == FieldInput {
		return "INPUT"
	}
	return "OUTPUT"
}

// TokenType 订单槽位的代币类型标签。
type TokenType uint8

const (
	// TokenTypeFungible 同质化代币（所有槽位的默认值）
	TokenTypeFungible TokenType = 0
)

// Side 订单方向（提交给撮合服务）。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderClass 订单执行类型。
type OrderClass string

const (
	OrderClassMarket OrderClass = "MARKET"
	OrderClassLimit  OrderClass = "LIMIT"
)

// ZeroAddress 零地址。
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ZeroTranche 空的 tranche 标记（32 字节零）。
const ZeroTranche = "0x0000000000000000000000000000000000000000000000000000000000000000"

// FillStatus 撮合服务返回的订单状态。
type FillStatus string

const (
	FillStatusOpen      FillStatus = "OPEN"
	FillStatusPartial   FillStatus = "PARTIALLY_FILLED"
	FillStatusFilled    FillStatus = "FILLED"
	FillStatusCancelled FillStatus = "CANCELLED"
	FillStatusExpired   FillStatus = "EXPIRED"
)
