package api

import (
	"errors"
	"net/http"
	"strconv"

	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/middleware"
	"QuakeSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EarthquakeHandler 地震数据查询与地图可视化接口
type EarthquakeHandler struct {
	earthquakeService *service.EarthquakeService
	logger            *logrus.Logger
}

// NewEarthquakeHandler 创建 EarthquakeHandler
func NewEarthquakeHandler(db *gorm.DB, ingester interfaces.EarthquakeIngester, logger *logrus.Logger) *EarthquakeHandler {
	return &EarthquakeHandler{
		earthquakeService: service.NewEarthquakeService(db, ingester, logger),
		logger:            logger,
	}
}

// ListFeatures 区间内的地震事件，按发震时间倒序
// GET /features?start_time=2024-01-01&end_time=2024-01-02&fetch_new_data=false
func (h *EarthquakeHandler) ListFeatures(c *gin.Context) {
	query, ok := h.bindQuery(c, "false")
	if !ok {
		return
	}

	items, metadataID, err := h.earthquakeService.GetFeatures(c.Request.Context(), query)
	tagMetadata(c, metadataID)
	if err != nil {
		h.fail(c, "ListFeatures", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetMapData 地图可视化数据
// GET /visualization/map?start_time=2024-01-01&end_time=2024-01-31&min_magnitude=0&max_magnitude=10&fetch_new_data=true
func (h *EarthquakeHandler) GetMapData(c *gin.Context) {
	query, ok := h.bindQuery(c, "true")
	if !ok {
		return
	}
	minMag, err := strconv.ParseFloat(c.DefaultQuery("min_magnitude", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_magnitude必须是数字"})
		return
	}
	maxMag, err := strconv.ParseFloat(c.DefaultQuery("max_magnitude", "10"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_magnitude必须是数字"})
		return
	}

	result, metadataID, err := h.earthquakeService.GetMapData(c.Request.Context(), query, minMag, maxMag)
	tagMetadata(c, metadataID)
	if err != nil {
		h.fail(c, "GetMapData", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MapView 地图页面
// GET /visualization/map-view
func (h *EarthquakeHandler) MapView(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", mapViewHTML)
}

// bindQuery 读取公共参数；日期在任何入库或查询之前校验
func (h *EarthquakeHandler) bindQuery(c *gin.Context, fetchDefault string) (service.EarthquakeQuery, bool) {
	q := service.EarthquakeQuery{
		StartTime: c.Query("start_time"),
		EndTime:   c.Query("end_time"),
	}
	if _, _, err := service.ParseDateRange(q.StartTime, q.EndTime); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return q, false
	}
	fetch, err := strconv.ParseBool(c.DefaultQuery("fetch_new_data", fetchDefault))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fetch_new_data必须是true或false"})
		return q, false
	}
	q.FetchNewData = fetch
	return q, true
}

func (h *EarthquakeHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	entry := h.logger.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Errorf("%s failed", op)
	} else {
		entry.Warnf("%s rejected", op)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor 错误到 HTTP 状态码：参数错误 400，上游失败 502，其余 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUpstreamStatus), errors.Is(err, service.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func tagMetadata(c *gin.Context, id *uuid.UUID) {
	if id != nil {
		c.Set(middleware.MetadataIDKey, *id)
	}
}
