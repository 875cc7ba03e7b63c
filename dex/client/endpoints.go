package client

// 撮合服务端点。
const (
	EndpointSubmitOrder = "/v1/orders"
	EndpointOrderStatus = "/v1/orders/{orderId}"
	EndpointDepthChart  = "/v1/depth"
	EndpointDiagnostics = "/v1/diagnostics/orders"
)

// 分析/推荐事件接收端点。
const (
	EndpointAnalyticsEvents = "/v1/events"
	EndpointReferralEvents  = "/v1/referrals"
)

// CodeUnsupportedSignature 撮合服务拒绝签名算法时的错误码。
const CodeUnsupportedSignature = "UNSUPPORTED_SIGNATURE_ALGORITHM"
