package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/swapbot/goswap/dex/types"
	"github.com/swapbot/goswap/internal/domain"
)

// Client 远端撮合服务客户端。
type Client struct {
	http *httpClient
}

// New 创建撮合服务客户端。
func New(baseURL string) *Client {
	return &Client{http: newHTTPClient(baseURL, 30 * time.Second)}
}

// SubmitOrder 提交已签名订单。
// 成功时返回服务端分配的订单 ID 与结算字段；
// 服务端以 UNSUPPORTED_SIGNATURE_ALGORITHM 拒绝时返回
// domain.ErrUnsupportedSigningMethod，其它拒绝返回 domain.ErrSubmissionRejected。
func (c *Client) SubmitOrder(ctx context.Context, req *types.SubmitOrderRequest) (*types.SubmitOrderResponse, error) {
	var out types.SubmitOrderResponse
	resp, err := c.http.do(ctx, "POST", EndpointSubmitOrder, &requestOptions{Data: req}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "提交订单请求失败")
	}
	if resp.IsError() {
		var errBody types.ErrorResponse
		if decodeErr := decodeErrorBody(resp, &errBody); decodeErr != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSubmissionRejected, decodeErr)
		}
		if errBody.Code == CodeUnsupportedSignature {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSigningMethod, errBody.Message)
		}
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrSubmissionRejected, errBody.Message, errBody.Code)
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("%w: response missing order id", domain.ErrSubmissionRejected)
	}
	return &out, nil
}

// GetOrderStatus 按服务端订单 ID 查询成交状态。
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderStatusResponse, error) {
	var out types.OrderStatusResponse
	endpoint := strings.Replace(EndpointOrderStatus, "{orderId}", orderID, 1)
	resp, err := c.http.do(ctx, "GET", endpoint, nil, &out)
	if err != nil {
		return nil, errors.Wrap(err, "查询订单状态失败")
	}
	if resp.IsError() {
		return nil, errors.Errorf("查询订单状态失败: http %d", resp.StatusCode())
	}
	return &out, nil
}

// GetDepthChart 拉取一个市场的单边深度快照。
func (c *Client) GetDepthChart(ctx context.Context, primarySymbol, secondarySymbol string) (*types.DepthChartResponse, error) {
	var out types.DepthChartResponse
	opt := &requestOptions{Params: map[string]string{
		"market": fmt.Sprintf("%s-%s", primarySymbol, secondarySymbol),
	}}
	resp, err := c.http.do(ctx, "GET", EndpointDepthChart, opt, &out)
	if err != nil {
		return nil, errors.Wrap(err, "拉取深度失败")
	}
	if resp.IsError() {
		return nil, errors.Errorf("拉取深度失败: http %d", resp.StatusCode())
	}
	return &out, nil
}

// GetDiagnostics 按订单哈希拉取诊断上下文。
// 仅用于错误时的尽力而为补充信息，自身失败不得掩盖原始错误。
func (c *Client) GetDiagnostics(ctx context.Context, orderHash string) (*types.DiagnosticsResponse, error) {
	var out types.DiagnosticsResponse
	opt := &requestOptions{Params: map[string]string{"orderHash": orderHash}}
	resp, err := c.http.do(ctx, "GET", EndpointDiagnostics, opt, &out)
	if err != nil {
		return nil, errors.Wrap(err, "拉取诊断信息失败")
	}
	if resp.IsError() {
		return nil, errors.Errorf("拉取诊断信息失败: http %d", resp.StatusCode())
	}
	return &out, nil
}
