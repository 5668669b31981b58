package ltcv

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/metrics"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHotDays get_hot_ltcvs 未指定时间范围时回看的天数
const DefaultHotDays = 30.0

// Query 单个或多个对象的光变曲线请求
type Query struct {
	Procver            string
	Which              Which
	Bands              []string
	Format             Format
	MJDNow             *float64 // 只返回 mjd <= MJDNow 的点
	IncludeBaseProcver bool
}

// HotRequest 最近有探测的对象
type HotRequest struct {
	Procver            string
	DetectedSinceMJD   *float64
	DetectedInLastDays *float64
	MJDNow             *float64
	SourcePatch        bool
	IncludeHostInfo    bool
	Format             Format
}

type ObjectInfo struct {
	DiaObjectID         int64     `json:"diaobjectid,string"`
	RootID              uuid.UUID `json:"rootid"`
	BaseProcverID       uuid.UUID `json:"base_procver_id"`
	BaseProcver         string    `json:"base_procver"`
	RA                  float64   `json:"ra"`
	Dec                 float64   `json:"dec"`
	RAErr               *float64  `json:"raerr"`
	DecErr              *float64  `json:"decerr"`
	RADecCov            *float64  `json:"ra_dec_cov"`
	ValidityStartMJDTAI *float64  `json:"validitystartmjdtai"`
	NearbyExtObj1ID     *int64    `json:"nearbyextobj1id"`
	NearbyExtObj1Sep    *float64  `json:"nearbyextobj1sep"`
}

// HostInfo 宿主星系信息, 没有匹配宿主时除 diaobjectid 外均为 null
type HostInfo struct {
	DiaObjectID      int64    `json:"diaobjectid,string"`
	HostID           *int64   `json:"host_id"`
	NearbyExtObj1Sep *float64 `json:"nearbyextobj1sep"`
	StdColorUG       *float64 `json:"stdcolor_u_g"`
	StdColorGR       *float64 `json:"stdcolor_g_r"`
	StdColorRI       *float64 `json:"stdcolor_r_i"`
	StdColorIZ       *float64 `json:"stdcolor_i_z"`
	StdColorZY       *float64 `json:"stdcolor_z_y"`
	PetroFluxR       *float64 `json:"petroflux_r"`
	PZMean           *float64 `json:"pzmean"`
	PZStd            *float64 `json:"pzstd"`
}

// ManyResult 以 diaobjectid 为键
type ManyResult struct {
	Lightcurves map[int64]Lightcurve  `json:"lightcurves"`
	Objects     map[int64]ObjectInfo `json:"objects"`
}

type HotResult struct {
	MJDNow           float64              `json:"mjd_now"`
	DetectedSinceMJD float64              `json:"detected_since_mjd"`
	Lightcurves      map[int64]Lightcurve `json:"lightcurves"`
	Objects          []ObjectInfo         `json:"objects"`
	Hosts            []HostInfo           `json:"hosts,omitempty"`
}

type Service interface {
	// ObjectLtcv objid 为整数时按 diaobjectid, 为 UUID 时按 rootid 合并该 root 下的所有对象
	ObjectLtcv(ctx context.Context, q Query, objid string) (*Lightcurve, error)
	ManyObjectLtcvs(ctx context.Context, q Query, objids []string) (*ManyResult, error)
	ObjectInfos(ctx context.Context, procver string, objids []string) ([]ObjectInfo, error)
	GetHotLtcvs(ctx context.Context, req HotRequest) (*HotResult, error)
	// Count which 为 object / source / forced
	Count(ctx context.Context, which, procver string) (int64, error)
}

type service struct {
	versions versioning.Service
	repo     repositories.MeasurementRepository
	qc       config.QueryConfig
	matcher  Matcher
	now      func() time.Time
}

var _ Service = (*service)(nil)

// NewService now 为 nil 时使用 time.Now
func NewService(versions versioning.Service, repo repositories.MeasurementRepository, qc config.QueryConfig, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{versions: versions, repo: repo, qc: qc, matcher: NewMatcher(qc), now: now}
}

func normalizeQuery(q *Query) error {
	if q.Which == "" {
		q.Which = WhichPatch
	}
	if _, err := ParseWhich(string(q.Which)); err != nil {
		return err
	}
	if q.Format == "" {
		q.Format = FormatJSON
	}
	if _, err := ParseFormat(string(q.Format)); err != nil {
		return err
	}
	q.Bands = normalizeBands(q.Bands)
	return nil
}

func normalizeBands(bands []string) []string {
	var out []string
	for _, b := range bands {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// curveSpec 一次批量取光变曲线的参数
type curveSpec struct {
	ranking   versioning.Ranking
	objectIDs []int64
	owner     OwnerFunc
	which     Which
	bands     []string
	maxMJD    *float64
	withBase  bool
}

// loadCurves 分别对探测和强制测光做优先级去重, 再按 owner 合并
func (s *service) loadCurves(ctx context.Context, r repositories.MeasurementRepository, spec curveSpec) (map[int64][]Point, error) {
	pq := repositories.PhotometryQuery{
		ObjectIDs:      spec.objectIDs,
		BaseProcverIDs: spec.ranking.IDs(),
		Bands:          spec.bands,
		MaxMJD:         spec.maxMJD,
	}
	rawDets, err := r.Photometry(ctx, repositories.KindSource, pq)
	if err != nil {
		return nil, err
	}
	dets := groupByOwner(ResolveByPriority(rawDets, spec.ranking, spec.owner), spec.owner)

	forced := map[int64][]models.Photometry{}
	if spec.which != WhichDetections {
		rawForced, err := r.Photometry(ctx, repositories.KindForced, pq)
		if err != nil {
			return nil, err
		}
		forced = groupByOwner(ResolveByPriority(rawForced, spec.ranking, spec.owner), spec.owner)
	}

	descriptions := make(map[uuid.UUID]string, len(spec.ranking))
	for _, b := range spec.ranking {
		descriptions[b.ID] = b.Description
	}
	owners := map[int64]struct{}{}
	for o := range dets {
		owners[o] = struct{}{}
	}
	for o := range forced {
		owners[o] = struct{}{}
	}
	out := make(map[int64][]Point, len(owners))
	for o := range owners {
		points := s.matcher.Merge(dets[o], forced[o], spec.which)
		if spec.withBase {
			for i := range points {
				points[i].BaseProcver = descriptions[points[i].baseProcverID]
			}
		}
		if len(points) > 0 {
			out[o] = points
		}
	}
	return out, nil
}

func concatCurves(curves map[int64][]Point) []Point {
	owners := make([]int64, 0, len(curves))
	for o := range curves {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	var out []Point
	for _, o := range owners {
		out = append(out, curves[o]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MJD != out[j].MJD {
			return out[i].MJD < out[j].MJD
		}
		if out[i].Band != out[j].Band {
			return out[i].Band < out[j].Band
		}
		return out[i].Visit < out[j].Visit
	})
	return out
}

func groupByOwner(rows []models.Photometry, owner OwnerFunc) map[int64][]models.Photometry {
	out := map[int64][]models.Photometry{}
	for _, r := range rows {
		o := owner(r)
		out[o] = append(out[o], r)
	}
	return out
}

// resolveObjects 每个 diaobjectid 取优先级最高的基础版本下的那一行, 按 diaobjectid 排序
func resolveObjects(objs []models.DiaObject, ranking versioning.Ranking) []ObjectInfo {
	best := map[int64]models.DiaObject{}
	for _, o := range objs {
		p, ok := ranking.Priority(o.BaseProcverID)
		if !ok {
			continue
		}
		cur, seen := best[o.DiaObjectID]
		if !seen {
			best[o.DiaObjectID] = o
			continue
		}
		if cp, _ := ranking.Priority(cur.BaseProcverID); p > cp {
			best[o.DiaObjectID] = o
		}
	}
	descriptions := make(map[uuid.UUID]string, len(ranking))
	for _, b := range ranking {
		descriptions[b.ID] = b.Description
	}
	out := make([]ObjectInfo, 0, len(best))
	for _, o := range best {
		out = append(out, ObjectInfo{
			DiaObjectID:         o.DiaObjectID,
			RootID:              o.RootID,
			BaseProcverID:       o.BaseProcverID,
			BaseProcver:         descriptions[o.BaseProcverID],
			RA:                  o.RA,
			Dec:                 o.Dec,
			RAErr:               o.RAErr,
			DecErr:              o.DecErr,
			RADecCov:            o.RADecCov,
			ValidityStartMJDTAI: o.ValidityStartMJDTAI,
			NearbyExtObj1ID:     o.NearbyExtObj1ID,
			NearbyExtObj1Sep:    o.NearbyExtObj1Sep,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiaObjectID < out[j].DiaObjectID })
	return out
}

func (s *service) lookupObjects(ctx context.Context, r repositories.MeasurementRepository, ids services.ObjectIDs, ranking versioning.Ranking) ([]ObjectInfo, error) {
	objs, err := r.Objects(ctx, repositories.ObjectQuery{
		DiaObjectIDs:   ids.DiaObjectIDs,
		RootIDs:        ids.RootIDs,
		BaseProcverIDs: ranking.IDs(),
	})
	if err != nil {
		return nil, err
	}
	return resolveObjects(objs, ranking), nil
}

func (s *service) ObjectLtcv(ctx context.Context, q Query, objid string) (lc *Lightcurve, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("object_ltcv", start, err) }()

	if err := normalizeQuery(&q); err != nil {
		return nil, err
	}
	ids, err := services.ParseObjectIDs([]string{objid})
	if err != nil {
		return nil, err
	}
	_, ranking, err := s.versions.Resolve(ctx, q.Procver)
	if err != nil {
		return nil, err
	}

	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	var points []Point
	err = s.repo.ReadSnapshot(ctx, func(r repositories.MeasurementRepository) error {
		objs, err := s.lookupObjects(ctx, r, ids, ranking)
		if err != nil {
			return err
		}
		if len(objs) == 0 {
			return xerr.Wrapf(xerr.ErrUnknownObject, "object %s has no rows in processing version %q", objid, q.Procver)
		}
		objectIDs := make([]int64, len(objs))
		for i, o := range objs {
			objectIDs[i] = o.DiaObjectID
		}
		curves, err := s.loadCurves(ctx, r, curveSpec{
			ranking:   ranking,
			objectIDs: objectIDs,
			owner:     ByDiaObjectID,
			which:     q.Which,
			bands:     q.Bands,
			maxMJD:    q.MJDNow,
			withBase:  q.IncludeBaseProcver,
		})
		if err != nil {
			return err
		}
		// 按 rootid 请求时, 各 diaobjectid 分别去重后再合并为一条曲线
		if ids.IsRoot() {
			points = concatCurves(curves)
		} else {
			points = curves[ids.DiaObjectIDs[0]]
		}
		return nil
	})
	if err != nil {
		err = services.QueryError(ctx, "object_ltcv", err)
		logger.Warn("ObjectLtcv failed", zap.String("procver", q.Procver), zap.String("objid", objid), zap.Error(err))
		return nil, err
	}
	if points == nil {
		points = []Point{}
	}
	return &Lightcurve{Points: points, Which: q.Which, Format: q.Format, IncludeBaseProcver: q.IncludeBaseProcver}, nil
}

func (s *service) ManyObjectLtcvs(ctx context.Context, q Query, objids []string) (res *ManyResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("many_object_ltcvs", start, err) }()

	if err := normalizeQuery(&q); err != nil {
		return nil, err
	}
	ids, err := services.ParseObjectIDs(objids)
	if err != nil {
		return nil, err
	}
	_, ranking, err := s.versions.Resolve(ctx, q.Procver)
	if err != nil {
		return nil, err
	}

	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	res = &ManyResult{Lightcurves: map[int64]Lightcurve{}, Objects: map[int64]ObjectInfo{}}
	err = s.repo.ReadSnapshot(ctx, func(r repositories.MeasurementRepository) error {
		objs, err := s.lookupObjects(ctx, r, ids, ranking)
		if err != nil {
			return err
		}
		objectIDs := ids.DiaObjectIDs
		if ids.IsRoot() {
			objectIDs = make([]int64, 0, len(objs))
			for _, o := range objs {
				objectIDs = append(objectIDs, o.DiaObjectID)
			}
		}
		for _, o := range objs {
			res.Objects[o.DiaObjectID] = o
		}
		curves, err := s.loadCurves(ctx, r, curveSpec{
			ranking:   ranking,
			objectIDs: objectIDs,
			owner:     ByDiaObjectID,
			which:     q.Which,
			bands:     q.Bands,
			maxMJD:    q.MJDNow,
			withBase:  q.IncludeBaseProcver,
		})
		if err != nil {
			return err
		}
		for id, points := range curves {
			res.Lightcurves[id] = Lightcurve{Points: points, Which: q.Which, Format: q.Format, IncludeBaseProcver: q.IncludeBaseProcver}
		}
		return nil
	})
	if err != nil {
		err = services.QueryError(ctx, "many_object_ltcvs", err)
		logger.Warn("ManyObjectLtcvs failed", zap.String("procver", q.Procver), zap.Int("objects", len(objids)), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *service) ObjectInfos(ctx context.Context, procver string, objids []string) (out []ObjectInfo, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("object_infos", start, err) }()

	ids, err := services.ParseObjectIDs(objids)
	if err != nil {
		return nil, err
	}
	_, ranking, err := s.versions.Resolve(ctx, procver)
	if err != nil {
		return nil, err
	}
	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	out, err = s.lookupObjects(ctx, s.repo, ids, ranking)
	if err != nil {
		return nil, services.QueryError(ctx, "object_infos", err)
	}
	return out, nil
}

// hotWindow 计算 [since, now], 两种起点参数互斥
func (s *service) hotWindow(req HotRequest) (since, now float64, err error) {
	if req.DetectedSinceMJD != nil && req.DetectedInLastDays != nil {
		return 0, 0, xerr.NewCodeError(xerr.MutuallyExclusiveCode, xerr.Wrapf(xerr.ErrInvalidParams,
			"only specify at most one of detected_since_mjd and detected_in_last_days"))
	}
	now = astro.MJDFromTime(s.now())
	if req.MJDNow != nil {
		now = *req.MJDNow
	}
	if req.DetectedSinceMJD != nil {
		return *req.DetectedSinceMJD, now, nil
	}
	days := DefaultHotDays
	if req.DetectedInLastDays != nil {
		days = *req.DetectedInLastDays
	}
	if days < 0 {
		return 0, 0, xerr.Wrapf(xerr.ErrInvalidParams, "detected_in_last_days must not be negative, got %g", days)
	}
	return now - days, now, nil
}

func (s *service) GetHotLtcvs(ctx context.Context, req HotRequest) (res *HotResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("get_hot_ltcvs", start, err) }()

	if req.Format == "" {
		req.Format = FormatJSON
	}
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	since, now, err := s.hotWindow(req)
	if err != nil {
		return nil, err
	}
	_, ranking, err := s.versions.Resolve(ctx, req.Procver)
	if err != nil {
		return nil, err
	}
	which := WhichForced
	if req.SourcePatch {
		which = WhichPatch
	}

	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	res = &HotResult{MJDNow: now, DetectedSinceMJD: since, Lightcurves: map[int64]Lightcurve{}, Objects: []ObjectInfo{}}
	err = s.repo.ReadSnapshot(ctx, func(r repositories.MeasurementRepository) error {
		recent, err := r.CountDetections(ctx, repositories.RankedQuery{
			Ranking: ranking,
			MinMJD:  &since,
			MaxMJD:  &now,
		})
		if err != nil {
			return err
		}
		candidates := make([]int64, 0, len(recent))
		for id := range recent {
			candidates = append(candidates, id)
		}
		if len(candidates) == 0 {
			return nil
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		objs, err := s.lookupObjects(ctx, r, services.ObjectIDs{DiaObjectIDs: candidates}, ranking)
		if err != nil {
			return err
		}
		res.Objects = objs

		if req.IncludeHostInfo {
			if res.Hosts, err = hostInfos(ctx, r, objs); err != nil {
				return err
			}
		}

		curves, err := s.loadCurves(ctx, r, curveSpec{
			ranking:   ranking,
			objectIDs: candidates,
			owner:     ByDiaObjectID,
			which:     which,
			maxMJD:    &now,
		})
		if err != nil {
			return err
		}
		for id, points := range curves {
			res.Lightcurves[id] = Lightcurve{Points: points, Which: which, Format: req.Format}
		}
		return nil
	})
	if err != nil {
		err = services.QueryError(ctx, "get_hot_ltcvs", err)
		logger.Warn("GetHotLtcvs failed", zap.String("procver", req.Procver), zap.Float64("since", since), zap.Float64("mjd_now", now), zap.Error(err))
		return nil, err
	}
	if req.IncludeHostInfo && res.Hosts == nil {
		res.Hosts = []HostInfo{}
	}
	logger.Debug("GetHotLtcvs finished", zap.String("procver", req.Procver), zap.Int("objects", len(res.Objects)))
	return res, nil
}

// hostInfos 通过 nearbyextobj1id 和对象所在的基础版本关联宿主星系
func hostInfos(ctx context.Context, r repositories.MeasurementRepository, objs []ObjectInfo) ([]HostInfo, error) {
	var refs []repositories.HostRef
	for _, o := range objs {
		if o.NearbyExtObj1ID != nil {
			refs = append(refs, repositories.HostRef{ID: *o.NearbyExtObj1ID, BaseProcverID: o.BaseProcverID})
		}
	}
	hosts, err := r.HostGalaxies(ctx, refs)
	if err != nil {
		return nil, err
	}
	byRef := make(map[repositories.HostRef]models.HostGalaxy, len(hosts))
	for _, h := range hosts {
		byRef[repositories.HostRef{ID: h.ID, BaseProcverID: h.BaseProcverID}] = h
	}

	out := make([]HostInfo, 0, len(objs))
	for _, o := range objs {
		info := HostInfo{DiaObjectID: o.DiaObjectID, NearbyExtObj1Sep: o.NearbyExtObj1Sep}
		if o.NearbyExtObj1ID != nil {
			if h, ok := byRef[repositories.HostRef{ID: *o.NearbyExtObj1ID, BaseProcverID: o.BaseProcverID}]; ok {
				id := h.ID
				info.HostID = &id
				info.StdColorUG, info.StdColorGR, info.StdColorRI = h.StdColorUG, h.StdColorGR, h.StdColorRI
				info.StdColorIZ, info.StdColorZY = h.StdColorIZ, h.StdColorZY
				info.PetroFluxR, info.PZMean, info.PZStd = h.PetroFluxR, h.PZMean, h.PZStd
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func parseCountKind(which string) (repositories.PhotometryKind, error) {
	switch strings.ToLower(strings.TrimSpace(which)) {
	case "object", "objects", "diaobject":
		return repositories.KindObject, nil
	case "source", "sources", "diasource":
		return repositories.KindSource, nil
	case "forced", "forcedsource", "forcedsources", "diaforcedsource":
		return repositories.KindForced, nil
	}
	return "", xerr.NewCodeError(xerr.UnknownWhichCode,
		xerr.Wrapf(xerr.ErrInvalidParams, "don't know how to count %q", which))
}

func (s *service) Count(ctx context.Context, which, procver string) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("count", start, err) }()

	kind, err := parseCountKind(which)
	if err != nil {
		return 0, err
	}
	id, err := s.versions.ResolveProcessingVersion(ctx, procver)
	if err != nil {
		return 0, err
	}
	if _, err := s.versions.BaseVersions(ctx, id); err != nil {
		return 0, err
	}
	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	n, err = s.repo.CountDistinct(ctx, kind, id)
	if err != nil {
		return 0, services.QueryError(ctx, "count", err)
	}
	return n, nil
}
