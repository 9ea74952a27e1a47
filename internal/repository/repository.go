package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidArgument 参数非法（空 id、空冲突列、排序方向错误等）
var ErrInvalidArgument = errors.New("invalid argument")

// immutableColumns 任何行结构在 upsert 时都不允许覆盖的列
var immutableColumns = map[string]struct{}{
	"id":         {},
	"created_at": {},
}

// Row 可入库的行结构：映射到具名表（主键列为 id），并显式声明 upsert 时可覆盖的列
type Row interface {
	TableName() string
	UpdatableColumns() []string
}

// DateRangeFilter 按时间列闭区间查询的条件
type DateRangeFilter struct {
	Column  string                 // 时间列，必填
	Start   time.Time              // 起（含）
	End     time.Time              // 止（含）
	OrderBy string                 // 排序列，可空
	Order   string                 // asc/desc，默认 desc
	Limit   int                    // <=0 不限制
	Filters map[string]interface{} // 额外的等值过滤
}

// Repository 泛型仓储：所有行结构共用的增、批量增、upsert、区间查询
type Repository[T Row] struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// New 创建仓储；db 即本次调用方持有的会话句柄
func New[T Row](db *gorm.DB, logger *logrus.Logger) *Repository[T] {
	return &Repository[T]{db: db, logger: logger}
}

func (r *Repository[T]) table() string {
	var zero T
	return zero.TableName()
}

// Create 单条插入，独立事务；失败回滚并返回错误
func (r *Repository[T]) Create(ctx context.Context, row *T) (*T, error) {
	err := r.withTx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(row).Error
	})
	if err != nil {
		r.logger.WithError(err).WithField("table", r.table()).Error("创建记录失败")
		return nil, fmt.Errorf("创建%s记录失败: %w", r.table(), err)
	}
	return row, nil
}

// BulkCreate 批量插入，同一事务内全部成功或全部回滚
func (r *Repository[T]) BulkCreate(ctx context.Context, rows []*T) ([]*T, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	err := r.withTx(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(rows).Error
	})
	if err != nil {
		r.logger.WithError(err).WithField("table", r.table()).Error("批量创建记录失败")
		return nil, fmt.Errorf("批量创建%s记录失败: %w", r.table(), err)
	}
	r.logger.WithField("table", r.table()).Infof("批量创建%d条记录成功", len(rows))
	return rows, nil
}

// BulkUpsert 批量插入；conflictKey 冲突时只覆盖行结构声明的可更新列（冲突列、id、created_at 除外）
// 空输入直接返回 0，不开启事务
func (r *Repository[T]) BulkUpsert(ctx context.Context, rows []*T, conflictKey string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if strings.TrimSpace(conflictKey) == "" {
		return 0, fmt.Errorf("%w: 冲突列不能为空", ErrInvalidArgument)
	}

	var zero T
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: conflictKey}}}
	if cols := updateSet(zero.UpdatableColumns(), conflictKey); len(cols) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(cols)
	} else {
		onConflict.DoNothing = true
	}

	var affected int64
	err := r.withTx(ctx, func(tx *gorm.DB) error {
		res := tx.Omit(clause.Associations).Clauses(onConflict).Create(rows)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"table":        r.table(),
			"conflict_key": conflictKey,
			"rows":         len(rows),
		}).Error("批量upsert失败")
		return 0, fmt.Errorf("批量upsert %s失败: %w", r.table(), err)
	}
	r.logger.WithField("table", r.table()).Infof("批量upsert完成，影响%d行", affected)
	return affected, nil
}

// GetByDateRange 时间列闭区间查询，可附加等值过滤、排序与条数限制
func (r *Repository[T]) GetByDateRange(ctx context.Context, f DateRangeFilter) ([]*T, error) {
	if strings.TrimSpace(f.Column) == "" {
		return nil, fmt.Errorf("%w: 时间列不能为空", ErrInvalidArgument)
	}
	desc, err := parseOrder(f.Order)
	if err != nil {
		return nil, err
	}

	col := clause.Column{Name: f.Column}
	db := r.db.WithContext(ctx).Model(new(T)).
		Where(clause.Gte{Column: col, Value: f.Start}).
		Where(clause.Lte{Column: col, Value: f.End})

	keys := make([]string, 0, len(f.Filters))
	for k := range f.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		db = db.Where(clause.Eq{Column: clause.Column{Name: k}, Value: f.Filters[k]})
	}

	if f.OrderBy != "" {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: f.OrderBy}, Desc: desc})
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}

	var rows []*T
	if err := db.Find(&rows).Error; err != nil {
		r.logger.WithError(err).WithField("table", r.table()).Error("按时间区间查询失败")
		return nil, fmt.Errorf("按时间区间查询%s失败: %w", r.table(), err)
	}
	r.logger.WithField("table", r.table()).Infof("%s 至 %s 之间查询到%d条记录", f.Start.Format(time.RFC3339), f.End.Format(time.RFC3339), len(rows))
	return rows, nil
}

// GetByID 按主键查询，不存在时返回 nil, nil
func (r *Repository[T]) GetByID(ctx context.Context, id interface{}) (*T, error) {
	if isZeroID(id) {
		return nil, fmt.Errorf("%w: id不能为空", ErrInvalidArgument)
	}
	return r.getByID(r.db.WithContext(ctx), id)
}

// Update 按主键更新指定字段，返回更新后的行；无匹配行时返回 nil, nil
func (r *Repository[T]) Update(ctx context.Context, id interface{}, changes map[string]interface{}) (*T, error) {
	if isZeroID(id) {
		return nil, fmt.Errorf("%w: id不能为空", ErrInvalidArgument)
	}
	for k := range changes {
		if _, ok := immutableColumns[k]; ok {
			return nil, fmt.Errorf("%w: 列%s不可修改", ErrInvalidArgument, k)
		}
	}

	var updated *T
	err := r.withTx(ctx, func(tx *gorm.DB) error {
		if len(changes) > 0 {
			res := tx.Model(new(T)).Where("id = ?", id).Updates(changes)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		row, err := r.getByID(tx, id)
		updated = row
		return err
	})
	if err != nil {
		r.logger.WithError(err).WithField("table", r.table()).Error("更新记录失败")
		return nil, fmt.Errorf("更新%s记录失败: %w", r.table(), err)
	}
	return updated, nil
}

func (r *Repository[T]) getByID(db *gorm.DB, id interface{}) (*T, error) {
	var row T
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询%s记录失败: %w", r.table(), err)
	}
	return &row, nil
}

// withTx 开启事务执行 fn：出错或 panic 时回滚，否则提交
func (r *Repository[T]) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// updateSet 可更新列去掉冲突列与不可变列
func updateSet(updatable []string, conflictKey string) []string {
	cols := make([]string, 0, len(updatable))
	for _, c := range updatable {
		if c == conflictKey {
			continue
		}
		if _, ok := immutableColumns[c]; ok {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func parseOrder(order string) (desc bool, err error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
		return true, nil
	case "asc":
		return false, nil
	default:
		return false, fmt.Errorf("%w: 排序方向只能是asc或desc，当前: %s", ErrInvalidArgument, order)
	}
}

func isZeroID(id interface{}) bool {
	switch v := id.(type) {
	case nil:
		return true
	case uuid.UUID:
		return v == uuid.Nil
	case *uuid.UUID:
		return v == nil || *v == uuid.Nil
	case string:
		return strings.TrimSpace(v) == ""
	case int:
		return v == 0
	case int64:
		return v == 0
	case uint64:
		return v == 0
	case uint:
		return v == 0
	default:
		return false
	}
}
