package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/metrics"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMatchRadiusArcsec 同一基础版本内两个对象视为同一天体的距离
const DefaultMatchRadiusArcsec = 1.0

// Request 一次导入, Cutoff 为零值时取当前时间
type Request struct {
	Collection  string
	BaseProcver string
	Cutoff      time.Time
}

// Report 一次导入的结果, 行数为实际新插入的行
type Report struct {
	Collection    string    `json:"collection"`
	BaseProcverID uuid.UUID `json:"base_procver_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Alerts        int       `json:"alerts"`
	Roots         int64     `json:"roots"`
	Objects       int64     `json:"objects"`
	Sources       int64     `json:"sources"`
	ForcedSources int64     `json:"forced_sources"`
}

type Service interface {
	Run(ctx context.Context, req Request) (*Report, error)
}

type service struct {
	versions versioning.Service
	repo     repositories.IngestRepository
	store    staging.Store
	cfg      config.IngestConfig
	now      func() time.Time
}

var _ Service = (*service)(nil)

func NewService(versions versioning.Service, repo repositories.IngestRepository, store staging.Store, cfg config.IngestConfig, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	if cfg.ObjectMatchRadiusArcsec <= 0 {
		cfg.ObjectMatchRadiusArcsec = DefaultMatchRadiusArcsec
	}
	return &service{versions: versions, repo: repo, store: store, cfg: cfg, now: now}
}

func (s *service) Run(ctx context.Context, req Request) (rep *Report, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.IngestRun(status)
	}()

	if req.Collection == "" {
		return nil, xerr.Wrapf(xerr.ErrInvalidParams, "collection is required")
	}
	baseID, err := s.versions.ResolveBaseProcessingVersion(ctx, req.BaseProcver)
	if err != nil {
		return nil, err
	}
	cutoff := req.Cutoff
	if cutoff.IsZero() {
		cutoff = s.now()
	}

	after, _, err := s.repo.GetWatermark(ctx, req.Collection, baseID)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	rep = &Report{Collection: req.Collection, BaseProcverID: baseID, From: after, To: after}
	if !cutoff.After(after) {
		return rep, nil
	}

	alerts, err := s.store.Alerts(ctx, req.Collection, after, cutoff)
	if err != nil {
		logger.Error("reading staging store failed", zap.String("collection", req.Collection), zap.Error(err))
		return nil, err
	}
	rep.Alerts = len(alerts)
	if len(alerts) == 0 {
		return rep, nil
	}
	b := unnest(alerts, baseID)

	err = s.repo.WithinTransaction(ctx, func(tx repositories.IngestTx) error {
		return s.write(ctx, tx, baseID, b, rep)
	})
	if err != nil {
		logger.Error("ingest transaction failed",
			zap.String("collection", req.Collection), zap.String("base_procver_id", baseID.String()), zap.Error(err))
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}

	// 只有事务提交之后才推进水位, 中途失败下次会重新读取同一批告警
	if err := s.repo.SetWatermark(ctx, req.Collection, baseID, b.lastSave); err != nil {
		logger.Error("advancing watermark failed", zap.String("collection", req.Collection), zap.Error(err))
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	rep.To = b.lastSave

	metrics.AddIngestRows("root_diaobject", rep.Roots)
	metrics.AddIngestRows("diaobject", rep.Objects)
	metrics.AddIngestRows("diasource", rep.Sources)
	metrics.AddIngestRows("diaforcedsource", rep.ForcedSources)
	logger.Info("ingest finished",
		zap.String("collection", req.Collection),
		zap.String("base_procver_id", baseID.String()),
		zap.Int("alerts", rep.Alerts),
		zap.Int64("objects", rep.Objects),
		zap.Int64("sources", rep.Sources),
		zap.Int64("forced", rep.ForcedSources),
		zap.Time("watermark", rep.To))
	return rep, nil
}

func (s *service) write(ctx context.Context, tx repositories.IngestTx, baseID uuid.UUID, b batch, rep *Report) error {
	ids := make([]int64, len(b.objects))
	for i, o := range b.objects {
		ids[i] = o.DiaObjectID
	}
	existing, err := tx.ExistingObjects(ctx, baseID, ids)
	if err != nil {
		return fmt.Errorf("existing objects: %w", err)
	}
	var fresh []models.DiaObject
	for _, o := range b.objects {
		if !existing[o.DiaObjectID] {
			fresh = append(fresh, o)
		}
	}

	roots, err := s.assignRoots(ctx, tx, baseID, fresh)
	if err != nil {
		return err
	}
	if err := tx.CreateRoots(ctx, roots); err != nil {
		return fmt.Errorf("create roots: %w", err)
	}
	if rep.Objects, err = tx.InsertObjects(ctx, fresh); err != nil {
		return fmt.Errorf("insert objects: %w", err)
	}
	// 另一个导入可能已先写入同一对象, 这里的插入被跳过, 新建的 root 随之作废
	pruned, err := tx.PruneRoots(ctx, roots)
	if err != nil {
		return fmt.Errorf("prune roots: %w", err)
	}
	rep.Roots = int64(len(roots)) - pruned
	if rep.Sources, err = tx.InsertSources(ctx, b.sources); err != nil {
		return fmt.Errorf("insert sources: %w", err)
	}
	if rep.ForcedSources, err = tx.InsertForcedSources(ctx, b.forced); err != nil {
		return fmt.Errorf("insert forced sources: %w", err)
	}
	return nil
}

// assignRoots 依次尝试: 同一 diaobjectid 在任意基础版本下的 rootid, 本基础版本内的空间匹配,
// 本批次内已分配对象的空间匹配, 最后新建. 直接修改 objs 的 RootID, 返回需要新建的 root.
func (s *service) assignRoots(ctx context.Context, tx repositories.IngestTx, baseID uuid.UUID, objs []models.DiaObject) ([]uuid.UUID, error) {
	if len(objs) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(objs))
	for i, o := range objs {
		ids[i] = o.DiaObjectID
	}
	known, err := tx.RootIDsOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("root ids: %w", err)
	}

	radius := s.cfg.ObjectMatchRadiusArcsec / 3600.
	var minted []uuid.UUID
	for i := range objs {
		o := &objs[i]
		if root, ok := known[o.DiaObjectID]; ok {
			o.RootID = root
			continue
		}
		near, err := tx.NearestObject(ctx, baseID, o.RA, o.Dec, radius)
		if err != nil {
			return nil, fmt.Errorf("nearest object: %w", err)
		}
		if near != nil {
			o.RootID = near.RootID
			continue
		}
		if root, ok := nearestInBatch(objs[:i], o.RA, o.Dec, radius); ok {
			o.RootID = root
			continue
		}
		o.RootID = uuid.New()
		minted = append(minted, o.RootID)
	}
	return minted, nil
}

func nearestInBatch(assigned []models.DiaObject, ra, dec, radius float64) (uuid.UUID, bool) {
	var (
		best    uuid.UUID
		bestSep = -1.0
	)
	for _, o := range assigned {
		sep := astro.AngularSeparation(ra, dec, o.RA, o.Dec)
		if sep <= radius && (bestSep < 0 || sep < bestSep) {
			best, bestSep = o.RootID, sep
		}
	}
	return best, bestSep >= 0
}
