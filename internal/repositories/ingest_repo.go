package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngestRepository 导入流水线的写入端
type IngestRepository interface {
	// WithinTransaction 一次导入的所有写入都在同一个事务中
	WithinTransaction(ctx context.Context, fn func(tx IngestTx) error) error
	GetWatermark(ctx context.Context, collection string, baseID uuid.UUID) (time.Time, bool, error)
	SetWatermark(ctx context.Context, collection string, baseID uuid.UUID, savetime time.Time) error
}

// IngestTx 事务内可用的操作, Insert* 都是 "不存在才插入", 返回实际插入的行数
type IngestTx interface {
	// RootIDsOf 查找这些 diaobjectid 在任意基础版本下已有的 rootid
	RootIDsOf(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error)
	ExistingObjects(ctx context.Context, baseID uuid.UUID, ids []int64) (map[int64]bool, error)
	// NearestObject 在基础版本内查找半径 (度) 内最近的对象, 没有返回 nil
	NearestObject(ctx context.Context, baseID uuid.UUID, ra, dec, radius float64) (*models.DiaObject, error)
	CreateRoots(ctx context.Context, ids []uuid.UUID) error
	// PruneRoots 删除 ids 中没有任何 diaobject 引用的 root, 返回删除的行数
	PruneRoots(ctx context.Context, ids []uuid.UUID) (int64, error)
	InsertObjects(ctx context.Context, objs []models.DiaObject) (int64, error)
	InsertSources(ctx context.Context, rows []models.DiaSource) (int64, error)
	InsertForcedSources(ctx context.Context, rows []models.DiaForcedSource) (int64, error)
}

type ingestRepository struct {
	db        *gorm.DB
	tm        TransactionManager
	batchSize int
}

var _ IngestRepository = (*ingestRepository)(nil)

func NewIngestRepository(db *gorm.DB, batchSize int) IngestRepository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &ingestRepository{db: db, tm: NewTransactionManager(db), batchSize: batchSize}
}

func (r *ingestRepository) WithinTransaction(ctx context.Context, fn func(tx IngestTx) error) error {
	return r.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return fn(&ingestTx{db: tx, batchSize: r.batchSize})
	})
}

func (r *ingestRepository) GetWatermark(ctx context.Context, collection string, baseID uuid.UUID) (time.Time, bool, error) {
	wm, err := takeOne[models.IngestWatermark](r.db.WithContext(ctx).
		Where("collection = ? AND base_procver_id = ?", collection, baseID))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}
	if wm == nil {
		return time.Time{}, false, nil
	}
	return wm.SaveTime, true, nil
}

func (r *ingestRepository) SetWatermark(ctx context.Context, collection string, baseID uuid.UUID, savetime time.Time) error {
	wm := models.IngestWatermark{Collection: collection, BaseProcverID: baseID, SaveTime: savetime}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "base_procver_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"savetime", "updated_at"}),
	}).Create(&wm).Error
	if err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

type ingestTx struct {
	db        *gorm.DB
	batchSize int
}

func (t *ingestTx) RootIDsOf(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error) {
	out := make(map[int64]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for _, part := range chunks(ids) {
		var rows []models.DiaObject
		if err := t.db.WithContext(ctx).Select("diaobjectid", "rootid").
			Where("diaobjectid IN ?", part).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, o := range rows {
			out[o.DiaObjectID] = o.RootID
		}
	}
	return out, nil
}

func (t *ingestTx) ExistingObjects(ctx context.Context, baseID uuid.UUID, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for _, part := range chunks(ids) {
		var found []int64
		if err := t.db.WithContext(ctx).Model(&models.DiaObject{}).
			Where("base_procver_id = ? AND diaobjectid IN ?", baseID, part).
			Pluck("diaobjectid", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = true
		}
	}
	return out, nil
}

func (t *ingestTx) NearestObject(ctx context.Context, baseID uuid.UUID, ra, dec, radius float64) (*models.DiaObject, error) {
	var rows []models.DiaObject
	err := t.db.WithContext(ctx).
		Where("base_procver_id = ?", baseID).
		Where("q3c_radial_query(ra, dec, ?, ?, ?)", ra, dec, radius).
		Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "q3c_dist(ra, dec, ?, ?)", Vars: []any{ra, dec}}}).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (t *ingestTx) CreateRoots(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	roots := make([]models.RootDiaObject, len(ids))
	for i, id := range ids {
		roots[i] = models.RootDiaObject{ID: id}
	}
	return t.db.WithContext(ctx).CreateInBatches(&roots, t.batchSize).Error
}

// PruneRoots 并发导入时对象插入可能被跳过, 为它新建的 root 不能留下
func (t *ingestTx) PruneRoots(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	for _, part := range chunks(ids) {
		res := t.db.WithContext(ctx).
			Where("id IN ?", part).
			Where("NOT EXISTS (SELECT 1 FROM diaobject o WHERE o.rootid = root_diaobject.id)").
			Delete(&models.RootDiaObject{})
		if res.Error != nil {
			return n, res.Error
		}
		n += res.RowsAffected
	}
	return n, nil
}

// insertIgnore 并发导入同一基础版本时, 主键冲突视为对方已经写入
func insertIgnore[T any](ctx context.Context, db *gorm.DB, rows []T, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, batchSize)
	return res.RowsAffected, res.Error
}

func (t *ingestTx) InsertObjects(ctx context.Context, objs []models.DiaObject) (int64, error) {
	return insertIgnore(ctx, t.db, objs, t.batchSize)
}

func (t *ingestTx) InsertSources(ctx context.Context, rows []models.DiaSource) (int64, error) {
	return insertIgnore(ctx, t.db, rows, t.batchSize)
}

func (t *ingestTx) InsertForcedSources(ctx context.Context, rows []models.DiaForcedSource) (int64, error) {
	return insertIgnore(ctx, t.db, rows, t.batchSize)
}
