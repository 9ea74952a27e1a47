package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metadata 对应 metadatas 表：一次入库运行对应一条，创建后不再修改
type Metadata struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey;comment:主键ID"`
	Generated time.Time `gorm:"column:generated;type:timestamp;not null;comment:上游生成时间"`
	URL       string    `gorm:"column:url;type:varchar(1024);not null;comment:请求地址"`
	Title     string    `gorm:"column:title;type:varchar(256);not null;comment:标题"`
	Status    int       `gorm:"column:status;type:int;not null;comment:上游状态码"`
	API       string    `gorm:"column:api;type:varchar(32);not null;comment:上游API版本"`
	Count     int       `gorm:"column:count;type:int;not null;comment:上游报告的事件数"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
}

// Feature 对应 features 表：一条地震事件，event_id 为上游唯一标识
type Feature struct {
	ID       uuid.UUID  `gorm:"column:id;type:uuid;primaryKey;comment:主键ID"`
	Mag      *float64   `gorm:"column:mag;type:numeric;comment:震级"`
	Place    *string    `gorm:"column:place;type:varchar(512);comment:位置描述"`
	Time     *time.Time `gorm:"column:time;type:timestamp;index;comment:发震时间"`
	Updated  *time.Time `gorm:"column:updated;type:timestamp;comment:上游最后更新时间"`
	TZ       *int       `gorm:"column:tz;type:int;comment:时区偏移"`
	URL      *string    `gorm:"column:url;type:varchar(1024)"`
	Detail   *string    `gorm:"column:detail;type:varchar(1024)"`
	Felt     *int       `gorm:"column:felt;type:int;comment:有感上报数"`
	CDI      *float64   `gorm:"column:cdi;type:numeric;comment:社区烈度"`
	MMI      *float64   `gorm:"column:mmi;type:numeric;comment:仪器烈度"`
	Alert    *string    `gorm:"column:alert;type:varchar(16);comment:预警级别"`
	Status   *string    `gorm:"column:status;type:varchar(32)"`
	Tsunami  *int       `gorm:"column:tsunami;type:int"`
	Sig      *int       `gorm:"column:sig;type:int;comment:显著性评分"`
	Net      *string    `gorm:"column:net;type:varchar(16);comment:台网代码"`
	Code     *string    `gorm:"column:code;type:varchar(64);comment:事件代码"`
	IDs      *string    `gorm:"column:ids;type:varchar(512)"`
	Sources  *string    `gorm:"column:sources;type:varchar(256)"`
	Types    *string    `gorm:"column:types;type:varchar(1024)"`
	Nst      *int       `gorm:"column:nst;type:int;comment:台站数"`
	Dmin     *float64   `gorm:"column:dmin;type:numeric"`
	RMS      *float64   `gorm:"column:rms;type:numeric"`
	Gap      *float64   `gorm:"column:gap;type:numeric"`
	MagType  *string    `gorm:"column:mag_type;type:varchar(16)"`

	Latitude  float64 `gorm:"column:latitude;type:numeric"`
	Longitude float64 `gorm:"column:longitude;type:numeric"`
	Depth     float64 `gorm:"column:depth;type:numeric"`

	EventID    string    `gorm:"column:event_id;type:varchar(64);uniqueIndex;not null;comment:上游事件ID"`
	MetadataID uuid.UUID `gorm:"column:metadata_id;type:uuid;index;not null;comment:所属入库运行"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;comment:首次入库时间"`

	Metadata *Metadata `gorm:"foreignKey:MetadataID;references:ID;constraint:OnDelete:CASCADE"`
}

// ExecutionLog 对应 execution_logs 表：每个入站请求一条
type ExecutionLog struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	EndpointName  string         `gorm:"column:endpoint_name;type:varchar(256);not null;comment:请求路径"`
	ExecutionTime float64        `gorm:"column:execution_time;type:double precision;not null;comment:耗时（秒）"`
	StatusCode    int            `gorm:"column:status_code;type:int;not null;comment:响应状态码"`
	Parameters    datatypes.JSON `gorm:"column:parameters;comment:查询参数"`
	MetadataID    *uuid.UUID     `gorm:"column:metadata_id;type:uuid;index;comment:本次请求触发的入库运行"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`

	Metadata *Metadata `gorm:"foreignKey:MetadataID;references:ID;constraint:OnDelete:CASCADE"`
}

func (Metadata) TableName() string     { return "metadatas" }
func (Feature) TableName() string      { return "features" }
func (ExecutionLog) TableName() string { return "execution_logs" }

// UpdatableColumns upsert 冲突时允许覆盖的列；id、created_at 永不覆盖
func (Metadata) UpdatableColumns() []string { return nil }

func (Feature) UpdatableColumns() []string {
	return []string{
		"mag", "place", "time", "updated", "tz", "url", "detail", "felt", "cdi", "mmi",
		"alert", "status", "tsunami", "sig", "net", "code", "ids", "sources", "types",
		"nst", "dmin", "rms", "gap", "mag_type", "latitude", "longitude", "depth",
		"metadata_id",
	}
}

func (ExecutionLog) UpdatableColumns() []string { return nil }

func (m *Metadata) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (f *Feature) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Models 需要建表的全部模型（按依赖顺序）
func Models() []interface{} {
	return []interface{}{
		&Metadata{},
		&Feature{},
		&ExecutionLog{},
	}
}
