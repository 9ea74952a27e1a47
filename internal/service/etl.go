package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"QuakeSync/internal/adapter/usgs"
	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/model"
	"QuakeSync/internal/observability"
	"QuakeSync/internal/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

const featureConflictKey = "event_id"

var (
	// ErrUpstreamStatus USGS 返回非 200 状态
	ErrUpstreamStatus = errors.New("USGS接口返回非200状态")
	// ErrFetchFailed 请求 USGS 失败（传输层错误或响应体无法解析）
	ErrFetchFailed = errors.New("请求USGS接口失败")
)

// UpstreamStatusError 携带上游状态码与响应体，errors.Is(err, ErrUpstreamStatus) 为真
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: %d - %s", ErrUpstreamStatus.Error(), e.StatusCode, e.Body)
}

func (e *UpstreamStatusError) Unwrap() error { return ErrUpstreamStatus }

// ETLService 一次入库运行：拉取 → 转换 → 先写 metadata 再 upsert features
type ETLService struct {
	newFetcher   interfaces.FetcherFactory
	metadataRepo *repository.Repository[model.Metadata]
	featureRepo  *repository.Repository[model.Feature]
	format       string
	metrics      *observability.Metrics
	clock        clockwork.Clock
	logger       *logrus.Logger
}

// NewETLService 创建入库服务；clock 为 nil 时使用真实时钟
func NewETLService(db *gorm.DB, newFetcher interfaces.FetcherFactory, format string, metrics *observability.Metrics, clock clockwork.Clock, logger *logrus.Logger) *ETLService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ETLService{
		newFetcher:   newFetcher,
		metadataRepo: repository.New[model.Metadata](db, logger),
		featureRepo:  repository.New[model.Feature](db, logger),
		format:       format,
		metrics:      metrics,
		clock:        clock,
		logger:       logger,
	}
}

// Run 执行一次入库，返回本次创建的 metadata id
// 非 200 响应不写入任何数据；feature 为空时只写 metadata 并告警；客户端在任何路径上都会被关闭
func (s *ETLService) Run(ctx context.Context, start, end model.TimeBound, params map[string]string) (uuid.UUID, error) {
	began := s.clock.Now()
	outcome := observability.OutcomeSuccess
	defer func() {
		s.metrics.ETLRuns.WithLabelValues(outcome).Inc()
		s.metrics.ETLRunDuration.Observe(s.clock.Since(began).Seconds())
	}()

	fetcher := s.newFetcher()
	defer func() {
		if err := fetcher.Close(); err != nil {
			s.logger.WithError(err).Warn("关闭USGS客户端失败")
		}
	}()

	resp, err := fetcher.QueryEarthquakes(ctx, start, end, s.format, params)
	if err != nil {
		outcome = observability.OutcomeFetchError
		s.logger.WithError(err).WithFields(logrus.Fields{
			"start": start.String(),
			"end":   end.String(),
		}).Error("请求USGS接口失败")
		return uuid.Nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		outcome = observability.OutcomeUpstreamError
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(resp.Body),
		}).Error("USGS接口返回错误")
		return uuid.Nil, &UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	metadataJSON, featuresJSON, err := usgs.ParsePayload(resp.Body)
	if err != nil {
		outcome = observability.OutcomeFetchError
		s.logger.WithError(err).Error("解析USGS响应失败")
		return uuid.Nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	s.logger.Infof("USGS共返回%d个地震事件", metadataJSON.Get("count").Int())

	metadata, err := s.metadataRepo.Create(ctx, usgs.ToMetadataRow(metadataJSON))
	if err != nil {
		outcome = observability.OutcomePersistError
		return uuid.Nil, fmt.Errorf("保存metadata失败: %w", err)
	}

	rows := s.toFeatureRows(featuresJSON, metadata.ID)
	if len(rows) == 0 {
		s.logger.WithField("metadata_id", metadata.ID).Warn("USGS未返回任何地震事件")
		return metadata.ID, nil
	}

	if _, err := s.featureRepo.BulkUpsert(ctx, rows, featureConflictKey); err != nil {
		outcome = observability.OutcomePersistError
		return metadata.ID, fmt.Errorf("保存features失败: %w", err)
	}
	s.metrics.FeaturesUpserted.Add(float64(len(rows)))

	s.logger.WithFields(logrus.Fields{
		"metadata_id": metadata.ID,
		"features":    len(rows),
	}).Info("USGS入库完成")
	return metadata.ID, nil
}

// toFeatureRows 转换并去重；缺少 id 的事件无法作为自然键，直接跳过
func (s *ETLService) toFeatureRows(features []gjson.Result, metadataID uuid.UUID) []*model.Feature {
	rows := make([]*model.Feature, 0, len(features))
	for i, f := range features {
		row := usgs.ToFeatureRow(f, metadataID)
		if row.EventID == "" {
			s.logger.WithField("index", i).Warn("地震事件缺少id，跳过")
			continue
		}
		rows = append(rows, row)
	}
	return dedupFeatures(rows)
}

// dedupFeatures 同一 event_id 只保留 updated 最新的一条，顺序按首次出现
func dedupFeatures(rows []*model.Feature) []*model.Feature {
	if len(rows) == 0 {
		return rows
	}
	index := make(map[string]int, len(rows))
	unique := make([]*model.Feature, 0, len(rows))
	for _, row := range rows {
		i, ok := index[row.EventID]
		if !ok {
			index[row.EventID] = len(unique)
			unique = append(unique, row)
			continue
		}
		if newerThan(row, unique[i]) {
			unique[i] = row
		}
	}
	return unique
}

func newerThan(a, b *model.Feature) bool {
	switch {
	case a.Updated == nil:
		return false
	case b.Updated == nil:
		return true
	default:
		return !a.Updated.Before(*b.Updated)
	}
}
