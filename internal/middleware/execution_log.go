package middleware

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"QuakeSync/internal/model"
	"QuakeSync/internal/observability"
	"QuakeSync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetadataIDKey 处理器触发入库后，把 metadata id 以此键写入 gin.Context
const MetadataIDKey = "metadata_id"

// ExecutionLog 每个请求处理完后写一条 execution_logs，并累计 http_requests_total
// 免记录路径只计数不落库；落库失败只记日志，不影响已写出的响应
func ExecutionLog(db *gorm.DB, bypassPaths []string, metrics *observability.Metrics, clock clockwork.Clock, logger *logrus.Logger) gin.HandlerFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	repo := repository.New[model.ExecutionLog](db, logger)
	bypass := pathSet(bypassPaths)

	return func(c *gin.Context) {
		began := clock.Now()
		c.Next()
		elapsed := clock.Since(began).Seconds()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		path := c.Request.URL.Path
		if _, ok := bypass[path]; ok {
			return
		}

		entry := &model.ExecutionLog{
			EndpointName:  path,
			ExecutionTime: math.Round(elapsed*100) / 100,
			StatusCode:    status,
			Parameters:    queryParams(c),
			MetadataID:    metadataIDFrom(c),
		}
		if _, err := repo.Create(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.WithError(err).WithField("path", path).Error("写入请求执行日志失败")
		}
	}
}

// queryParams 查询参数转 JSON 对象；同名参数取最后一个值
func queryParams(c *gin.Context) []byte {
	params := make(map[string]string)
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			params[k] = vs[len(vs)-1]
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func metadataIDFrom(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(MetadataIDKey)
	if !ok {
		return nil
	}
	switch id := v.(type) {
	case uuid.UUID:
		if id == uuid.Nil {
			return nil
		}
		return &id
	case *uuid.UUID:
		if id == nil || *id == uuid.Nil {
			return nil
		}
		return id
	default:
		return nil
	}
}
