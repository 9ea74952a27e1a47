package usgs

import (
	"errors"
	"time"

	"QuakeSync/internal/model"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ErrInvalidPayload 响应体不是合法 JSON
var ErrInvalidPayload = errors.New("USGS响应体不是合法JSON")

// ParsePayload 拆出 metadata 对象与 features 数组；字段缺失时返回空值而不报错
func ParsePayload(body []byte) (gjson.Result, []gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, nil, ErrInvalidPayload
	}
	doc := gjson.ParseBytes(body)
	metadata := doc.Get("metadata")

	var features []gjson.Result
	if fs := doc.Get("features"); fs.IsArray() {
		features = fs.Array()
	}
	return metadata, features, nil
}

// ToMetadataRow 纯函数：metadata JSON → Metadata 行，缺失字段取默认值（数值 0、字符串空）
func ToMetadataRow(metadata gjson.Result) *model.Metadata {
	return &model.Metadata{
		Generated: MillisToTime(metadata.Get("generated").Int()),
		URL:       metadata.Get("url").String(),
		Title:     metadata.Get("title").String(),
		Status:    int(metadata.Get("status").Int()),
		API:       metadata.Get("api").String(),
		Count:     int(metadata.Get("count").Int()),
	}
}

// ToFeatureRow 纯函数：feature JSON → Feature 行，并挂到 metadataID 名下
// 键缺失取默认值；值显式为 null 的可空字段保留为 NULL
func ToFeatureRow(feature gjson.Result, metadataID uuid.UUID) *model.Feature {
	p := feature.Get("properties")
	lon, lat, depth := coordinates(feature.Get("geometry.coordinates"))

	return &model.Feature{
		Mag:     optFloat(p.Get("mag")),
		Place:   optString(p.Get("place")),
		Time:    optTime(p.Get("time")),
		Updated: optTime(p.Get("updated")),
		TZ:      optInt(p.Get("tz")),
		URL:     optString(p.Get("url")),
		Detail:  optString(p.Get("detail")),
		Felt:    optInt(p.Get("felt")),
		CDI:     optFloat(p.Get("cdi")),
		MMI:     optFloat(p.Get("mmi")),
		Alert:   optString(p.Get("alert")),
		Status:  optString(p.Get("status")),
		Tsunami: optInt(p.Get("tsunami")),
		Sig:     optInt(p.Get("sig")),
		Net:     optString(p.Get("net")),
		Code:    optString(p.Get("code")),
		IDs:     optString(p.Get("ids")),
		Sources: optString(p.Get("sources")),
		Types:   optString(p.Get("types")),
		Nst:     optInt(p.Get("nst")),
		Dmin:    optFloat(p.Get("dmin")),
		RMS:     optFloat(p.Get("rms")),
		Gap:     optFloat(p.Get("gap")),
		MagType: optString(p.Get("magType")),

		Longitude: lon,
		Latitude:  lat,
		Depth:     depth,

		EventID:    feature.Get("id").String(),
		MetadataID: metadataID,
	}
}

// MillisToTime 毫秒时间戳 → UTC 时间，丢弃亚秒部分（向下取整到整秒）
func MillisToTime(ms int64) time.Time {
	sec := ms / 1000
	if ms%1000 < 0 {
		sec--
	}
	return time.Unix(sec, 0).UTC()
}

// coordinates [lon, lat, depth]，不足三位的部分补 0
func coordinates(r gjson.Result) (lon, lat, depth float64) {
	if !r.IsArray() {
		return 0, 0, 0
	}
	c := r.Array()
	if len(c) > 0 {
		lon = c[0].Float()
	}
	if len(c) > 1 {
		lat = c[1].Float()
	}
	if len(c) > 2 {
		depth = c[2].Float()
	}
	return lon, lat, depth
}

func optFloat(r gjson.Result) *float64 {
	if r.Type == gjson.Null && r.Exists() {
		return nil
	}
	v := r.Float()
	return &v
}

func optInt(r gjson.Result) *int {
	if r.Type == gjson.Null && r.Exists() {
		return nil
	}
	v := int(r.Int())
	return &v
}

func optString(r gjson.Result) *string {
	if r.Type == gjson.Null && r.Exists() {
		return nil
	}
	v := r.String()
	return &v
}

func optTime(r gjson.Result) *time.Time {
	if r.Type == gjson.Null && r.Exists() {
		return nil
	}
	v := MillisToTime(r.Int())
	return &v
}
