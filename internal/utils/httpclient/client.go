package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"QuakeSync/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	maxIdleConns        = 16
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// NewHTTPClient 构建访问 USGS 的 http.Client：可选代理，整体超时取 cfg.Timeout 秒（<=0 不限），响应自动 gzip 解码
func NewHTTPClient(cfg *config.USGSConfig, logger *logrus.Logger) *http.Client {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	if proxy := proxyFunc(cfg.Proxy, logger); proxy != nil {
		base.Proxy = proxy
	}

	return &http.Client{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		Transport: &gzipTransport{base: base, logger: logger},
	}
}

// proxyFunc 解析配置的代理地址；为空或非法时返回 nil，沿用环境变量代理
func proxyFunc(raw string, logger *logrus.Logger) func(*http.Request) (*url.URL, error) {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		logger.WithField("proxy", raw).Warn("USGS代理地址非法，忽略")
		return nil
	}
	logger.WithField("proxy", u.Redacted()).Info("USGS请求走代理")
	return http.ProxyURL(u)
}

// gzipTransport 主动声明 gzip，并在响应返回前替换为解码后的 body
type gzipTransport struct {
	base   *http.Transport
	logger *logrus.Logger
}

func (t *gzipTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.Header.Get("Content-Encoding") != "gzip" {
		return resp, err
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.logger.WithError(err).WithField("url", req.URL.String()).Warn("响应声明gzip但无法解码，按原文返回")
		return resp, nil
	}
	resp.Body = &decodedBody{Reader: zr, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// CloseIdleConnections 由 http.Client.CloseIdleConnections 转发到底层连接池
func (t *gzipTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

type decodedBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	zerr := b.Reader.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}
