package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/model"
	"QuakeSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DateLayout 读接口日期参数格式
const DateLayout = "2006-01-02"

// ErrInvalidDate 日期参数格式错误或起止颠倒
var ErrInvalidDate = errors.New("日期格式错误，应为yyyy-mm-dd")

// EarthquakeQuery 读接口的公共参数
type EarthquakeQuery struct {
	StartTime    string // YYYY-MM-DD
	EndTime      string // YYYY-MM-DD
	FetchNewData bool
}

// FeatureResponse /features 的单条返回
type FeatureResponse struct {
	ID         uuid.UUID  `json:"id"`
	Mag        *float64   `json:"mag"`
	Place      *string    `json:"place"`
	Time       *time.Time `json:"time"`
	Updated    *time.Time `json:"updated"`
	TZ         *int       `json:"tz"`
	URL        *string    `json:"url"`
	Detail     *string    `json:"detail"`
	Felt       *int       `json:"felt"`
	CDI        *float64   `json:"cdi"`
	MMI        *float64   `json:"mmi"`
	Alert      *string    `json:"alert"`
	Status     *string    `json:"status"`
	Tsunami    *int       `json:"tsunami"`
	Sig        *int       `json:"sig"`
	Net        *string    `json:"net"`
	Code       *string    `json:"code"`
	IDs        *string    `json:"ids"`
	Sources    *string    `json:"sources"`
	Types      *string    `json:"types"`
	Nst        *int       `json:"nst"`
	Dmin       *float64   `json:"dmin"`
	RMS        *float64   `json:"rms"`
	Gap        *float64   `json:"gap"`
	MagType    *string    `json:"mag_type"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Depth      float64    `json:"depth"`
	EventID    string     `json:"event_id"`
	MetadataID uuid.UUID  `json:"metadata_id"`
}

// MapPoint 地图可视化的单个点
type MapPoint struct {
	ID        uuid.UUID  `json:"id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Mag       *float64   `json:"mag"`
	Place     *string    `json:"place"`
	Time      *time.Time `json:"time"`
	Depth     float64    `json:"depth"`
	EventID   string     `json:"event_id"`
	Tsunami   *int       `json:"tsunami"`
	Alert     *string    `json:"alert"`
}

// MapResponse /visualization/map 返回
type MapResponse struct {
	Earthquakes []MapPoint        `json:"earthquakes"`
	TotalCount  int               `json:"total_count"`
	DateRange   map[string]string `json:"date_range"`
}

// EarthquakeService 读接口：校验日期，按需触发入库，再按发震时间区间查询
type EarthquakeService struct {
	featureRepo *repository.Repository[model.Feature]
	ingester    interfaces.EarthquakeIngester
	logger      *logrus.Logger
}

// NewEarthquakeService 创建读服务
func NewEarthquakeService(db *gorm.DB, ingester interfaces.EarthquakeIngester, logger *logrus.Logger) *EarthquakeService {
	return &EarthquakeService{
		featureRepo: repository.New[model.Feature](db, logger),
		ingester:    ingester,
		logger:      logger,
	}
}

// ParseDateRange 解析 YYYY-MM-DD 为 UTC 零点；起始晚于结束同样视为非法
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.ParseInLocation(DateLayout, start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_time=%q", ErrInvalidDate, start)
	}
	e, err := time.ParseInLocation(DateLayout, end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_time=%q", ErrInvalidDate, end)
	}
	if s.After(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_time晚于end_time", ErrInvalidDate)
	}
	return s, e, nil
}

// GetEarthquakeData 返回区间内的事件（发震时间倒序）
// 触发了入库时同时返回本次 metadata id，即使后续查询失败也会返回，供请求日志关联
func (s *EarthquakeService) GetEarthquakeData(ctx context.Context, q EarthquakeQuery) ([]*model.Feature, *uuid.UUID, error) {
	start, end, err := ParseDateRange(q.StartTime, q.EndTime)
	if err != nil {
		return nil, nil, err
	}

	var metadataID *uuid.UUID
	if q.FetchNewData {
		id, err := s.ingester.Run(ctx, model.DateOf(start), model.DateOf(end), nil)
		if id != uuid.Nil {
			metadataID = &id
		}
		if err != nil {
			return nil, metadataID, fmt.Errorf("拉取USGS数据失败: %w", err)
		}
	}

	features, err := s.featureRepo.GetByDateRange(ctx, repository.DateRangeFilter{
		Column:  "time",
		Start:   start,
		End:     end,
		OrderBy: "time",
		Order:   "desc",
	})
	if err != nil {
		return nil, metadataID, err
	}
	return features, metadataID, nil
}

// GetFeatures /features 数据
func (s *EarthquakeService) GetFeatures(ctx context.Context, q EarthquakeQuery) ([]FeatureResponse, *uuid.UUID, error) {
	features, metadataID, err := s.GetEarthquakeData(ctx, q)
	if err != nil {
		return nil, metadataID, err
	}
	items := make([]FeatureResponse, 0, len(features))
	for _, f := range features {
		items = append(items, toFeatureResponse(f))
	}
	return items, metadataID, nil
}

// GetMapData 地图数据：丢弃无震级的点，震级区间两端都包含
func (s *EarthquakeService) GetMapData(ctx context.Context, q EarthquakeQuery, minMag, maxMag float64) (*MapResponse, *uuid.UUID, error) {
	features, metadataID, err := s.GetEarthquakeData(ctx, q)
	if err != nil {
		return nil, metadataID, err
	}
	points := make([]MapPoint, 0, len(features))
	for _, f := range features {
		if f.Mag == nil || *f.Mag < minMag || *f.Mag > maxMag {
			continue
		}
		points = append(points, MapPoint{
			ID:        f.ID,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			Mag:       f.Mag,
			Place:     f.Place,
			Time:      f.Time,
			Depth:     f.Depth,
			EventID:   f.EventID,
			Tsunami:   f.Tsunami,
			Alert:     f.Alert,
		})
	}
	return &MapResponse{
		Earthquakes: points,
		TotalCount:  len(points),
		DateRange:   map[string]string{"start": q.StartTime, "end": q.EndTime},
	}, metadataID, nil
}

func toFeatureResponse(f *model.Feature) FeatureResponse {
	return FeatureResponse{
		ID:         f.ID,
		Mag:        f.Mag,
		Place:      f.Place,
		Time:       f.Time,
		Updated:    f.Updated,
		TZ:         f.TZ,
		URL:        f.URL,
		Detail:     f.Detail,
		Felt:       f.Felt,
		CDI:        f.CDI,
		MMI:        f.MMI,
		Alert:      f.Alert,
		Status:     f.Status,
		Tsunami:    f.Tsunami,
		Sig:        f.Sig,
		Net:        f.Net,
		Code:       f.Code,
		IDs:        f.IDs,
		Sources:    f.Sources,
		Types:      f.Types,
		Nst:        f.Nst,
		Dmin:       f.Dmin,
		RMS:        f.RMS,
		Gap:        f.Gap,
		MagType:    f.MagType,
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Depth:      f.Depth,
		EventID:    f.EventID,
		MetadataID: f.MetadataID,
	}
}
