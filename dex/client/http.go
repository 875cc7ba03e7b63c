package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// httpClient resty 包装：基址、超时、限流重试。
type httpClient struct {
	client *resty.Client
}

func newHTTPClient(host string, timeout time.Duration) *httpClient {
	host = strings.TrimRight(host, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// resty 自动读取 HTTP_PROXY / HTTPS_PROXY 环境变量
	c := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时优先使用 Retry-After 头
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &httpClient{client: c}
}

type requestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]string
}

func (c *httpClient) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "goswap/1.0")
	return r
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, opt *requestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParams(opt.Params)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// decodeErrorBody 尽力解出非 2xx 响应的错误体。
func decodeErrorBody(resp *resty.Response, out any) error {
	b := resp.Body()
	if len(b) > 0 {
		if err := json.Unmarshal(b, out); err == nil {
			return nil
		}
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(string(b)))
}
