package model

import (
	"net/http"
	"time"
)

// RawResponse 上游接口的原始响应（状态码 + 响应体），由调用方判断状态码
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TimeBound 查询时间边界：预格式化字符串、日期或日期时间三选一
type TimeBound struct {
	raw      string
	t        time.Time
	dateOnly bool
}

// RawTime 预格式化的时间字符串，原样透传
func RawTime(s string) TimeBound { return TimeBound{raw: s} }

// DateOf 仅取日期部分，格式化为当日零点
func DateOf(t time.Time) TimeBound { return TimeBound{t: t, dateOnly: true} }

// DateTimeOf 精确到秒
func DateTimeOf(t time.Time) TimeBound { return TimeBound{t: t} }

// String 返回上游接口要求的 starttime/endtime 格式
func (b TimeBound) String() string {
	switch {
	case b.raw != "":
		return b.raw
	case b.t.IsZero():
		return ""
	case b.dateOnly:
		return b.t.Format("2006-01-02") + "T00:00:00"
	default:
		return b.t.Format("2006-01-02T15:04:05")
	}
}
