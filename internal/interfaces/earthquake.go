package interfaces

import (
	"context"

	"QuakeSync/internal/model"

	"github.com/google/uuid"
)

// EarthquakeFetcher 上游地震数据源；每次入库运行独占一个实例，用完必须 Close
type EarthquakeFetcher interface {
	// QueryEarthquakes 发起一次 GET 请求，不解释状态码、不重试
	QueryEarthquakes(ctx context.Context, start, end model.TimeBound, format string, params map[string]string) (*model.RawResponse, error)
	// Close 释放底层 HTTP 连接
	Close() error
}

// FetcherFactory 为一次入库运行创建新的数据源实例
type FetcherFactory func() EarthquakeFetcher

// EarthquakeIngester 执行一次入库运行，返回本次运行创建的 metadata id
type EarthquakeIngester interface {
	Run(ctx context.Context, start, end model.TimeBound, params map[string]string) (uuid.UUID, error)
}
