package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/swapbot/goswap/dex/types"
)

// ReportClient 分析/推荐事件接收端客户端（fire-and-forget 语义由调用方保证）。
type ReportClient struct {
	http *httpClient
}

// NewReportClient 创建事件上报客户端。baseURL 为空时返回 nil，调用方按未配置处理。
func NewReportClient(baseURL string) *ReportClient {
	if baseURL == "" {
		return nil
	}
	return &ReportClient{http: newHTTPClient(baseURL, 10 * time.Second)}
}

// ReportEvent 上报分析事件。
func (c *ReportClient) ReportEvent(ctx context.Context, event *types.AnalyticsEvent) error {
	resp, err := c.http.do(ctx, "POST", EndpointAnalyticsEvents, &requestOptions{Data: event}, nil)
	if err != nil {
		return errors.Wrap(err, "上报分析事件失败")
	}
	if resp.IsError() {
		return errors.Errorf("上报分析事件失败: http %d", resp.StatusCode())
	}
	return nil
}

// ReportReferral 上报推荐事件（含解码后的签名分量）。
func (c *ReportClient) ReportReferral(ctx context.Context, event *types.ReferralEvent) error {
	resp, err := c.http.do(ctx, "POST", EndpointReferralEvents, &requestOptions{Data: event}, nil)
	if err != nil {
		return errors.Wrap(err, "上报推荐事件失败")
	}
	if resp.IsError() {
		return errors.Errorf("上报推荐事件失败: http %d", resp.StatusCode())
	}
	return nil
}
