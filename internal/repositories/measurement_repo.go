package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhotometryKind 区分探测表和强制测光表
type PhotometryKind string

const (
	KindObject PhotometryKind = "object"
	KindSource PhotometryKind = "source"
	KindForced PhotometryKind = "forced"
)

// PhotometryQuery 描述一次测光读取
// ObjectIDs 为 nil 表示不限对象; 非 nil 的空切片表示没有候选, 直接返回空结果
type PhotometryQuery struct {
	ObjectIDs      []int64
	BaseProcverIDs []uuid.UUID
	Bands          []string
	MinMJD         *float64
	MaxMJD         *float64
}

// ObjectQuery 按 diaobjectid 或 rootid 查找 DiaObject, 两者都为 nil 时返回空
type ObjectQuery struct {
	DiaObjectIDs   []int64
	RootIDs        []uuid.UUID
	BaseProcverIDs []uuid.UUID
}

// HostRef 宿主星系的自然键
type HostRef struct {
	ID            int64
	BaseProcverID uuid.UUID
}

// RankedQuery 筛选条件同 PhotometryQuery, 但在库内按优先级去重:
// 每个 (diaobjectid, visit) 只保留 Ranking 中优先级最高的基础版本的那一行
type RankedQuery struct {
	ObjectIDs []int64
	Ranking   []models.RankedBaseVersion
	Bands     []string
	MinMJD    *float64
	MaxMJD    *float64
}

// PhotPoint 聚合结果中的一次测光
type PhotPoint struct {
	MJD     float64
	Band    string
	Flux    float64
	FluxErr float64
}

// DetectionSummary 一个对象去重后的探测统计.
// 首次和末次按 mjd 取, mjd 相同时取 (band, visit) 较小的; 最亮一次按流量取, 相同时取较早的
type DetectionSummary struct {
	DiaObjectID int64
	NumDet      int
	NumBands    int
	First       PhotPoint
	Last        PhotPoint
	Max         PhotPoint
}

// MeasurementRepository 只读访问测量数据
// Photometry 和 Objects 返回的行没有经过优先级去重, 由服务层完成;
// 面向整个处理版本的统计走 RankedQuery, 去重和聚合都在库内完成
type MeasurementRepository interface {
	// ReadSnapshot 在同一个只读快照中执行多阶段查询
	ReadSnapshot(ctx context.Context, fn func(r MeasurementRepository) error) error

	Photometry(ctx context.Context, kind PhotometryKind, q PhotometryQuery) ([]models.Photometry, error)
	Objects(ctx context.Context, q ObjectQuery) ([]models.DiaObject, error)
	// ObjectsInCone 半径单位为度
	ObjectsInCone(ctx context.Context, ra, dec, radius float64, baseIDs []uuid.UUID) ([]models.DiaObject, error)
	HostGalaxies(ctx context.Context, refs []HostRef) ([]models.HostGalaxy, error)
	// CountDistinct 统计处理版本下去重后的对象数 (按 rootid) 或测光点数 (按 diaobjectid, visit)
	CountDistinct(ctx context.Context, kind PhotometryKind, procverID uuid.UUID) (int64, error)

	// CountDetections 每个对象去重后的探测数, 没有探测的对象不出现在结果中
	CountDetections(ctx context.Context, q RankedQuery) (map[int64]int, error)
	// SummarizeDetections 按 diaobjectid 升序返回每个有探测的对象的统计
	SummarizeDetections(ctx context.Context, q RankedQuery) ([]DetectionSummary, error)
	// LastForced 每个对象去重后最后一次强制测光, 按 diaobjectid 升序
	LastForced(ctx context.Context, q RankedQuery) ([]models.Photometry, error)
}

type measurementRepository struct {
	db *gorm.DB
	qc config.QueryConfig
}

var _ MeasurementRepository = (*measurementRepository)(nil)

func NewMeasurementRepository(db *gorm.DB, qc config.QueryConfig) MeasurementRepository {
	return &measurementRepository{db: db, qc: qc}
}

func (r *measurementRepository) ReadSnapshot(ctx context.Context, fn func(r MeasurementRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&measurementRepository{db: tx, qc: r.qc})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func photometryTable(kind PhotometryKind) (string, error) {
	switch kind {
	case KindSource:
		return models.DiaSource{}.TableName(), nil
	case KindForced:
		return models.DiaForcedSource{}.TableName(), nil
	}
	return "", fmt.Errorf("no photometry table for %q", kind)
}

const photometryColumns = "diaobjectid, visit, base_procver_id, detector, midpointmjdtai, band, psfflux, psffluxerr, ra, dec"

func (r *measurementRepository) Photometry(ctx context.Context, kind PhotometryKind, q PhotometryQuery) ([]models.Photometry, error) {
	table, err := photometryTable(kind)
	if err != nil {
		return nil, err
	}
	if (q.ObjectIDs != nil && len(q.ObjectIDs) == 0) || len(q.BaseProcverIDs) == 0 {
		return nil, nil
	}

	build := func(tx *gorm.DB, ids []int64) *gorm.DB {
		tx = tx.Table(table).Select(photometryColumns).Where("base_procver_id IN ?", q.BaseProcverIDs)
		if ids != nil {
			tx = tx.Where("diaobjectid IN ?", ids)
		}
		if len(q.Bands) > 0 {
			tx = tx.Where("band IN ?", q.Bands)
		}
		if q.MinMJD != nil {
			tx = tx.Where("midpointmjdtai >= ?", *q.MinMJD)
		}
		if q.MaxMJD != nil {
			tx = tx.Where("midpointmjdtai <= ?", *q.MaxMJD)
		}
		return tx
	}

	groups := [][]int64{nil}
	if q.ObjectIDs != nil {
		groups = chunks(q.ObjectIDs)
	}
	var out []models.Photometry
	for _, ids := range groups {
		explain(ctx, r.db, r.qc, "photometry:"+string(kind), func(tx *gorm.DB) *gorm.DB {
			return build(tx, ids).Find(&[]models.Photometry{})
		})
		var rows []models.Photometry
		if err := build(session(ctx, r.db, r.qc), ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *measurementRepository) Objects(ctx context.Context, q ObjectQuery) ([]models.DiaObject, error) {
	if len(q.BaseProcverIDs) == 0 || (len(q.DiaObjectIDs) == 0 && len(q.RootIDs) == 0) {
		return nil, nil
	}
	var out []models.DiaObject
	if len(q.DiaObjectIDs) > 0 {
		for _, ids := range chunks(q.DiaObjectIDs) {
			var rows []models.DiaObject
			err := session(ctx, r.db, r.qc).
				Where("base_procver_id IN ? AND diaobjectid IN ?", q.BaseProcverIDs, ids).
				Find(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("query diaobject: %w", err)
			}
			out = append(out, rows...)
		}
	}
	if len(q.RootIDs) > 0 {
		for _, ids := range chunks(q.RootIDs) {
			var rows []models.DiaObject
			err := session(ctx, r.db, r.qc).
				Where("base_procver_id IN ? AND rootid IN ?", q.BaseProcverIDs, ids).
				Find(&rows).Error
			if err != nil {
				return nil, fmt.Errorf("query diaobject by rootid: %w", err)
			}
			out = append(out, rows...)
		}
	}
	return out, nil
}

func (r *measurementRepository) ObjectsInCone(ctx context.Context, ra, dec, radius float64, baseIDs []uuid.UUID) ([]models.DiaObject, error) {
	if len(baseIDs) == 0 {
		return nil, nil
	}
	build := func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.DiaObject{}).
			Where("q3c_radial_query(ra, dec, ?, ?, ?)", ra, dec, radius).
			Where("base_procver_id IN ?", baseIDs)
	}
	explain(ctx, r.db, r.qc, "cone", func(tx *gorm.DB) *gorm.DB {
		return build(tx).Find(&[]models.DiaObject{})
	})
	var out []models.DiaObject
	if err := build(session(ctx, r.db, r.qc)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("cone search: %w", err)
	}
	return out, nil
}

func (r *measurementRepository) HostGalaxies(ctx context.Context, refs []HostRef) ([]models.HostGalaxy, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	var out []models.HostGalaxy
	for _, part := range chunks(refs) {
		pairs := make([][]any, 0, len(part))
		for _, ref := range part {
			pairs = append(pairs, []any{ref.ID, ref.BaseProcverID})
		}
		var rows []models.HostGalaxy
		if err := session(ctx, r.db, r.qc).Where("(id, base_procver_id) IN ?", pairs).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("query host_galaxy: %w", err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *measurementRepository) CountDistinct(ctx context.Context, kind PhotometryKind, procverID uuid.UUID) (int64, error) {
	var table, key string
	switch kind {
	case KindObject:
		table, key = models.DiaObject{}.TableName(), "t.rootid"
	case KindSource, KindForced:
		table, _ = photometryTable(kind)
		key = "(t.diaobjectid, t.visit)"
	default:
		return 0, fmt.Errorf("unknown thing to count: %q", kind)
	}
	var n int64
	err := session(ctx, r.db, r.qc).
		Table(table+" t").
		Joins("JOIN base_procver_of_procver pv ON t.base_procver_id = pv.base_procver_id AND pv.procver_id = ?", procverID).
		Select("COUNT(DISTINCT " + key + ")").
		Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}


const rankedColumns = "t.diaobjectid, t.visit, t.base_procver_id, t.detector, t.midpointmjdtai, t.band, t.psfflux, t.psffluxerr, t.ra, t.dec"

// rankedSQL 生成优先级去重后的测光子查询.
// 优先级以 VALUES 列表传入, DISTINCT ON 在 (diaobjectid, visit) 上取优先级最高的一行.
func rankedSQL(table string, q RankedQuery, ids []int64) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, 2*len(q.Ranking)+4)

	sb.WriteString("SELECT DISTINCT ON (t.diaobjectid, t.visit) " + rankedColumns + " FROM " + table + " t JOIN (VALUES ")
	for i, b := range q.Ranking {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?::uuid, ?::int)")
		args = append(args, b.ID, b.Priority)
	}
	sb.WriteString(") AS pr(base_procver_id, priority) ON t.base_procver_id = pr.base_procver_id WHERE TRUE")
	if ids != nil {
		sb.WriteString(" AND t.diaobjectid IN ?")
		args = append(args, ids)
	}
	if len(q.Bands) > 0 {
		sb.WriteString(" AND t.band IN ?")
		args = append(args, q.Bands)
	}
	if q.MinMJD != nil {
		sb.WriteString(" AND t.midpointmjdtai >= ?")
		args = append(args, *q.MinMJD)
	}
	if q.MaxMJD != nil {
		sb.WriteString(" AND t.midpointmjdtai <= ?")
		args = append(args, *q.MaxMJD)
	}
	sb.WriteString(" ORDER BY t.diaobjectid, t.visit, pr.priority DESC")
	return sb.String(), args
}

// rankedGroups ObjectIDs 为 nil 时只有一组 nil, 表示不限对象; 空切片或空 Ranking 时没有组
func rankedGroups(q RankedQuery) [][]int64 {
	if len(q.Ranking) == 0 || (q.ObjectIDs != nil && len(q.ObjectIDs) == 0) {
		return nil
	}
	if q.ObjectIDs == nil {
		return [][]int64{nil}
	}
	return chunks(q.ObjectIDs)
}

// rankedScan 在每个对象分组上执行 wrap 包装后的查询并合并结果
func rankedScan[T any](ctx context.Context, r *measurementRepository, name string, kind PhotometryKind, q RankedQuery, wrap func(sub string) string) ([]T, error) {
	table, err := photometryTable(kind)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, ids := range rankedGroups(q) {
		sub, args := rankedSQL(table, q, ids)
		stmt := wrap(sub)
		explain(ctx, r.db, r.qc, name, func(tx *gorm.DB) *gorm.DB {
			return tx.Raw(stmt, args...).Scan(&[]T{})
		})
		var rows []T
		if err := session(ctx, r.db, r.qc).Raw(stmt, args...).Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

type detectionCountRow struct {
	DiaObjectID int64 `gorm:"column:diaobjectid"`
	N           int   `gorm:"column:n"`
}

func (r *measurementRepository) CountDetections(ctx context.Context, q RankedQuery) (map[int64]int, error) {
	rows, err := rankedScan[detectionCountRow](ctx, r, "count_detections", KindSource, q, func(sub string) string {
		return "SELECT r.diaobjectid, COUNT(*) AS n FROM (" + sub + ") r GROUP BY r.diaobjectid"
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(rows))
	for _, row := range rows {
		out[row.DiaObjectID] = row.N
	}
	return out, nil
}

type detectionSummaryRow struct {
	DiaObjectID  int64   `gorm:"column:diaobjectid"`
	NumDet       int     `gorm:"column:num_det"`
	NumBands     int     `gorm:"column:num_bands"`
	FirstMJD     float64 `gorm:"column:first_mjd"`
	FirstBand    string  `gorm:"column:first_band"`
	FirstFlux    float64 `gorm:"column:first_flux"`
	FirstFluxErr float64 `gorm:"column:first_fluxerr"`
	LastMJD      float64 `gorm:"column:last_mjd"`
	LastBand     string  `gorm:"column:last_band"`
	LastFlux     float64 `gorm:"column:last_flux"`
	LastFluxErr  float64 `gorm:"column:last_fluxerr"`
	MaxMJD       float64 `gorm:"column:max_mjd"`
	MaxBand      string  `gorm:"column:max_band"`
	MaxFlux      float64 `gorm:"column:max_flux"`
	MaxFluxErr   float64 `gorm:"column:max_fluxerr"`
}

const summarizeSQL = `WITH r AS (%s)
SELECT a.diaobjectid, a.num_det, a.num_bands,
  f.midpointmjdtai AS first_mjd, f.band AS first_band, f.psfflux AS first_flux, f.psffluxerr AS first_fluxerr,
  l.midpointmjdtai AS last_mjd, l.band AS last_band, l.psfflux AS last_flux, l.psffluxerr AS last_fluxerr,
  m.midpointmjdtai AS max_mjd, m.band AS max_band, m.psfflux AS max_flux, m.psffluxerr AS max_fluxerr
FROM (SELECT diaobjectid, COUNT(*) AS num_det, COUNT(DISTINCT band) AS num_bands FROM r GROUP BY diaobjectid) a
JOIN (SELECT DISTINCT ON (diaobjectid) * FROM r ORDER BY diaobjectid, midpointmjdtai, band, visit) f ON f.diaobjectid = a.diaobjectid
JOIN (SELECT DISTINCT ON (diaobjectid) * FROM r ORDER BY diaobjectid, midpointmjdtai DESC, band, visit) l ON l.diaobjectid = a.diaobjectid
JOIN (SELECT DISTINCT ON (diaobjectid) * FROM r ORDER BY diaobjectid, psfflux DESC, midpointmjdtai, band, visit) m ON m.diaobjectid = a.diaobjectid
ORDER BY a.diaobjectid`

func (r *measurementRepository) SummarizeDetections(ctx context.Context, q RankedQuery) ([]DetectionSummary, error) {
	rows, err := rankedScan[detectionSummaryRow](ctx, r, "summarize_detections", KindSource, q, func(sub string) string {
		return fmt.Sprintf(summarizeSQL, sub)
	})
	if err != nil {
		return nil, err
	}
	out := make([]DetectionSummary, len(rows))
	for i, row := range rows {
		out[i] = DetectionSummary{
			DiaObjectID: row.DiaObjectID,
			NumDet:      row.NumDet,
			NumBands:    row.NumBands,
			First:       PhotPoint{MJD: row.FirstMJD, Band: row.FirstBand, Flux: row.FirstFlux, FluxErr: row.FirstFluxErr},
			Last:        PhotPoint{MJD: row.LastMJD, Band: row.LastBand, Flux: row.LastFlux, FluxErr: row.LastFluxErr},
			Max:         PhotPoint{MJD: row.MaxMJD, Band: row.MaxBand, Flux: row.MaxFlux, FluxErr: row.MaxFluxErr},
		}
	}
	return out, nil
}

func (r *measurementRepository) LastForced(ctx context.Context, q RankedQuery) ([]models.Photometry, error) {
	return rankedScan[models.Photometry](ctx, r, "last_forced", KindForced, q, func(sub string) string {
		return "SELECT DISTINCT ON (r.diaobjectid) r.* FROM (" + sub + ") r ORDER BY r.diaobjectid, r.midpointmjdtai DESC, r.band, r.visit"
	})
}
