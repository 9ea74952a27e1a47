package usgs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"QuakeSync/internal/config"
	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/model"
	"QuakeSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL USGS FDSN Event 接口
	DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1"
	// DefaultFormat 默认返回 GeoJSON
	DefaultFormat = "geojson"

	defaultUserAgent = "Earthquake-API-Client/1.0"
	queryEndpoint    = "query"
)

// Client USGS 地震接口客户端
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient 创建 USGS 客户端；extraHeaders 会覆盖默认请求头
func NewClient(cfg *config.USGSConfig, logger *logrus.Logger, extraHeaders map[string]string) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	headers := map[string]string{
		"User-Agent": ua,
		"Accept":     "application/json",
	}
	for k, v := range extraHeaders {
		headers[k] = v
	}
	return &Client{
		baseURL:    baseURL,
		headers:    headers,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

// NewFactory 每次调用返回独立的客户端实例，供入库运行独占使用
func NewFactory(cfg *config.USGSConfig, logger *logrus.Logger) interfaces.FetcherFactory {
	return func() interfaces.EarthquakeFetcher {
		return NewClient(cfg, logger, nil)
	}
}

// QueryEarthquakes 查询时间范围内的地震事件，返回原始响应
// 传输层错误原样向上返回，状态码由调用方判断
func (c *Client) QueryEarthquakes(ctx context.Context, start, end model.TimeBound, format string, params map[string]string) (*model.RawResponse, error) {
	if format == "" {
		format = DefaultFormat
	}
	query := map[string]string{
		"format":    format,
		"starttime": start.String(),
		"endtime":   end.String(),
	}
	for k, v := range params {
		query[k] = v
	}
	return c.get(ctx, queryEndpoint, query)
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) (*model.RawResponse, error) {
	fullURL := c.buildURL(endpoint, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.logger.WithField("url", fullURL).Info("发送USGS GET请求")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("关闭USGS响应体失败: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取USGS响应体失败: %w", err)
	}
	return &model.RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// buildURL 拼接地址与查询参数，空值参数直接丢弃
func (c *Client) buildURL(endpoint string, params map[string]string) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	if len(values) == 0 {
		return u
	}
	return u + "?" + values.Encode()
}

// Close 释放空闲连接
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
