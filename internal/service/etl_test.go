package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/model"
	"QuakeSync/internal/observability"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- fakes ---

type fakeFetcher struct {
	resp   *model.RawResponse
	err    error
	closed int
	calls  int
	start  model.TimeBound
	end    model.TimeBound
}

func (f *fakeFetcher) QueryEarthquakes(_ context.Context, start, end model.TimeBound, _ string, _ map[string]string) (*model.RawResponse, error) {
	f.calls++
	f.start, f.end = start, end
	return f.resp, f.err
}

func (f *fakeFetcher) Close() error {
	f.closed++
	return nil
}

func factoryOf(f *fakeFetcher) interfaces.FetcherFactory {
	return func() interfaces.EarthquakeFetcher { return f }
}

func okResponse(body string) *model.RawResponse {
	return &model.RawResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "quakes.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Models()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestETL(db *gorm.DB, f *fakeFetcher, metrics *observability.Metrics) *ETLService {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	return NewETLService(db, factoryOf(f), "geojson", metrics, clock, quietLogger())
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

const twoFeatures = `{
  "metadata": {"generated": 1704153600000, "url": "https://example/query", "title": "USGS Earthquakes", "status": 200, "api": "1.14.1", "count": 2},
  "features": [
    {"id": "us1", "properties": {"mag": 4.5, "time": 1704067200000, "updated": 1704070800000, "place": "A"}, "geometry": {"coordinates": [1, 2, 3]}},
    {"id": "us2", "properties": {"mag": 2.1, "time": 1704070800000, "place": "B"}, "geometry": {"coordinates": [4, 5, 6]}}
  ]
}`

// --- tests ---

func TestETL_Run_HappyPath(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: okResponse(twoFeatures)}
	metrics := observability.NewMetricsForTesting()

	id, err := newTestETL(db, f, metrics).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, "2024-01-01", f.start.String())

	assert.EqualValues(t, 1, countRows(t, db, &model.Metadata{}))
	var features []model.Feature
	require.NoError(t, db.Order("event_id").Find(&features).Error)
	require.Len(t, features, 2)
	for _, ft := range features {
		assert.Equal(t, id, ft.MetadataID)
	}
	assert.Equal(t, 3.0, features[0].Depth)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomeSuccess)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FeaturesUpserted), 0)
}

func TestETL_Run_UpstreamErrorWritesNothing(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: &model.RawResponse{StatusCode: http.StatusInternalServerError, Body: []byte("boom")}}
	metrics := observability.NewMetricsForTesting()

	id, err := newTestETL(db, f, metrics).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamStatus)
	var statusErr *UpstreamStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
	assert.Equal(t, uuid.Nil, id)

	assert.Zero(t, countRows(t, db, &model.Metadata{}))
	assert.Zero(t, countRows(t, db, &model.Feature{}))
	assert.Equal(t, 1, f.closed)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomeUpstreamError)), 0)
}

func TestETL_Run_TransportError(t *testing.T) {
	db := newTestDB(t)
	transportErr := errors.New("dial tcp: connection refused")
	f := &fakeFetcher{err: transportErr}
	metrics := observability.NewMetricsForTesting()

	_, err := newTestETL(db, f, metrics).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, transportErr)
	assert.Equal(t, 1, f.closed)
	assert.Zero(t, countRows(t, db, &model.Metadata{}))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomeFetchError)), 0)
}

func TestETL_Run_InvalidJSON(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: okResponse("<html>maintenance</html>")}

	_, err := newTestETL(db, f, observability.NewMetricsForTesting()).Run(context.Background(), model.RawTime("a"), model.RawTime("b"), nil)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 1, f.closed)
	assert.Zero(t, countRows(t, db, &model.Metadata{}))
}

func TestETL_Run_EmptyFeatures(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: okResponse(`{"metadata": {"count": 0}, "features": []}`)}

	id, err := newTestETL(db, f, observability.NewMetricsForTesting()).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.EqualValues(t, 1, countRows(t, db, &model.Metadata{}))
	assert.Zero(t, countRows(t, db, &model.Feature{}))
	assert.Equal(t, 1, f.closed)
}

func TestETL_Run_MetadataPersistFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&model.Metadata{}))
	f := &fakeFetcher{resp: okResponse(twoFeatures)}
	metrics := observability.NewMetricsForTesting()

	id, err := newTestETL(db, f, metrics).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "保存metadata失败")
	assert.Equal(t, uuid.Nil, id)

	assert.Zero(t, countRows(t, db, &model.Feature{}), "features are not written without metadata")
	assert.Equal(t, 1, f.closed)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomePersistError)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomeSuccess)), 0)
}

func TestETL_Run_FeatureUpsertFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&model.Feature{}))
	f := &fakeFetcher{resp: okResponse(twoFeatures)}
	metrics := observability.NewMetricsForTesting()

	id, err := newTestETL(db, f, metrics).Run(context.Background(), model.RawTime("2024-01-01"), model.RawTime("2024-01-02"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "保存features失败")
	assert.NotEqual(t, uuid.Nil, id, "metadata id is still returned for request log correlation")

	assert.EqualValues(t, 1, countRows(t, db, &model.Metadata{}))
	assert.Equal(t, 1, f.closed)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ETLRuns.WithLabelValues(observability.OutcomePersistError)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.FeaturesUpserted), 0)
}

func TestETL_Run_PassesDateBoundsToFetcher(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: okResponse(twoFeatures)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := newTestETL(db, f, observability.NewMetricsForTesting()).Run(context.Background(), model.DateOf(start), model.DateOf(start.AddDate(0, 0, 1)), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", f.start.String())
	assert.Equal(t, "2024-01-02T00:00:00", f.end.String())
}

func TestETL_Run_SameEventAcrossRuns(t *testing.T) {
	db := newTestDB(t)
	first := &fakeFetcher{resp: okResponse(`{"metadata": {}, "features": [{"id": "us1", "properties": {"mag": 4.5}}]}`)}
	second := &fakeFetcher{resp: okResponse(`{"metadata": {}, "features": [{"id": "us1", "properties": {"mag": 4.9}}]}`)}
	metrics := observability.NewMetricsForTesting()

	_, err := newTestETL(db, first, metrics).Run(context.Background(), model.RawTime("a"), model.RawTime("b"), nil)
	require.NoError(t, err)
	secondID, err := newTestETL(db, second, metrics).Run(context.Background(), model.RawTime("a"), model.RawTime("b"), nil)
	require.NoError(t, err)

	var rows []model.Feature
	require.NoError(t, db.Where("event_id = ?", "us1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 4.9, *rows[0].Mag)
	assert.Equal(t, secondID, rows[0].MetadataID)
	assert.EqualValues(t, 2, countRows(t, db, &model.Metadata{}))
}

func TestETL_Run_DuplicateIDsInOnePage(t *testing.T) {
	db := newTestDB(t)
	f := &fakeFetcher{resp: okResponse(`{"metadata": {}, "features": [
		{"id": "us1", "properties": {"mag": 4.5, "updated": 2000}},
		{"id": "us1", "properties": {"mag": 4.8, "updated": 5000}},
		{"id": "us1", "properties": {"mag": 4.6, "updated": 3000}},
		{"properties": {"mag": 7.0}}
	]}`)}

	_, err := newTestETL(db, f, observability.NewMetricsForTesting()).Run(context.Background(), model.RawTime("a"), model.RawTime("b"), nil)
	require.NoError(t, err)

	var rows []model.Feature
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1, "duplicate ids collapse and id-less features are skipped")
	assert.Equal(t, 4.8, *rows[0].Mag)
}

func TestDedupFeatures(t *testing.T) {
	at := func(sec int64) *time.Time { v := time.Unix(sec, 0).UTC(); return &v }
	rows := []*model.Feature{
		{EventID: "a", Updated: at(1)},
		{EventID: "b"},
		{EventID: "a", Updated: at(3)},
		{EventID: "b", Updated: at(2)},
		{EventID: "a", Updated: nil},
	}
	got := dedupFeatures(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].EventID)
	assert.Equal(t, at(3), got[0].Updated)
	assert.Equal(t, "b", got[1].EventID)
	assert.Equal(t, at(2), got[1].Updated)
	assert.Empty(t, dedupFeatures(nil))
}
