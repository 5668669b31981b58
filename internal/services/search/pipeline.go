package search

import (
	"context"
	"sort"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
)

// Measurement 一次测光的摘要
type Measurement struct {
	MJD     float64
	Band    string
	Flux    float64
	FluxErr float64
}

func measurementOf(p repositories.PhotPoint) *Measurement {
	return &Measurement{MJD: p.MJD, Band: p.Band, Flux: p.Flux, FluxErr: p.FluxErr}
}

// Candidate 候选对象在流水线中逐步累积的信息
type Candidate struct {
	DiaObjectID    int64
	RootID         uuid.UUID
	RA, Dec        float64
	NumDetInWindow *int
	NumDet         int
	NumBands       int
	First          *Measurement
	Last           *Measurement
	Max            *Measurement
	LastForced     *Measurement

	positioned bool
}

// CandidateSet 按 diaobjectid 排序的候选集合. 每个阶段返回新的集合, 不修改输入.
// All 为 true 表示尚未做任何筛选, 代表整个处理版本.
type CandidateSet struct {
	All  bool
	Rows []Candidate
}

// IDs All 时返回 nil, 表示不限对象
func (s CandidateSet) IDs() []int64 {
	if s.All {
		return nil
	}
	ids := make([]int64, len(s.Rows))
	for i, c := range s.Rows {
		ids[i] = c.DiaObjectID
	}
	return ids
}

func (s CandidateSet) Len() int { return len(s.Rows) }

// keep 保留 pred 为真的行
func (s CandidateSet) keep(pred func(c Candidate) bool) CandidateSet {
	out := CandidateSet{Rows: make([]Candidate, 0, len(s.Rows))}
	for _, c := range s.Rows {
		if pred(c) {
			out.Rows = append(out.Rows, c)
		}
	}
	return out
}

// narrow 用 ids 缩小集合, All 时由 ids 新建候选
func (s CandidateSet) narrow(ids map[int64]struct{}, update func(c *Candidate)) CandidateSet {
	out := CandidateSet{}
	if s.All {
		sorted := make([]int64, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		out.Rows = make([]Candidate, 0, len(sorted))
		for _, id := range sorted {
			c := Candidate{DiaObjectID: id}
			update(&c)
			out.Rows = append(out.Rows, c)
		}
		return out
	}
	out.Rows = make([]Candidate, 0, len(s.Rows))
	for _, c := range s.Rows {
		if _, ok := ids[c.DiaObjectID]; ok {
			update(&c)
			out.Rows = append(out.Rows, c)
		}
	}
	return out
}

// env 一次检索共享的只读参数
type env struct {
	repo       repositories.MeasurementRepository
	ranking    versioning.Ranking
	objRanking versioning.Ranking
	filters    Filters
	mjdNow     *float64
	zeropoint  float64
}

// rankedQuery 在统计波段和 [minMJD, maxMJD] 内读取候选对象, 由库按优先级去重
func (e *env) rankedQuery(in CandidateSet, minMJD, maxMJD *float64) (repositories.RankedQuery, bool) {
	ids := in.IDs()
	if !in.All && len(ids) == 0 {
		return repositories.RankedQuery{}, false
	}
	return repositories.RankedQuery{
		ObjectIDs: ids,
		Ranking:   e.ranking,
		Bands:     e.filters.StatBands,
		MinMJD:    minMJD,
		MaxMJD:    maxMJD,
	}, true
}

// countDetections 没有候选时返回空
func (e *env) countDetections(ctx context.Context, in CandidateSet, minMJD, maxMJD *float64) (map[int64]int, error) {
	q, ok := e.rankedQuery(in, minMJD, maxMJD)
	if !ok {
		return nil, nil
	}
	return e.repo.CountDetections(ctx, q)
}

// stage 流水线的一步
type stage struct {
	name string
	run  func(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error)
}

var pipeline = []stage{
	{"cone", coneStage},
	{"window", windowStage},
	{"detection_prefilter", prefilterStage},
	{"stats", statsStage},
	{"positions", positionStage},
	{"stat_filters", statFilterStage},
	{"last_forced", lastForcedStage},
	{"last_mag", lastMagStage},
}

// bestObjects 每个 diaobjectid 取优先级最高的那一行
func bestObjects(objs []models.DiaObject, ranking versioning.Ranking) map[int64]models.DiaObject {
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
	return best
}

func place(c *Candidate, o models.DiaObject) {
	c.RootID = o.RootID
	c.RA = o.RA
	c.Dec = o.Dec
	c.positioned = true
}

func coneStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	f := e.filters
	if f.RA == nil {
		return in, nil
	}
	objs, err := e.repo.ObjectsInCone(ctx, *f.RA, *f.Dec, *f.Radius/3600., e.objRanking.IDs())
	if err != nil {
		return CandidateSet{}, err
	}
	best := bestObjects(objs, e.objRanking)
	ids := make(map[int64]struct{}, len(best))
	for id := range best {
		ids[id] = struct{}{}
	}
	return in.narrow(ids, func(c *Candidate) { place(c, best[c.DiaObjectID]) }), nil
}

// windowStage 时间窗内的探测数, 窗内没有探测的对象被去掉
func windowStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	f := e.filters
	if f.WindowT0 == nil {
		return in, nil
	}
	counts, err := e.countDetections(ctx, in, f.WindowT0, f.WindowT1)
	if err != nil {
		return CandidateSet{}, err
	}
	ids := map[int64]struct{}{}
	for id, n := range counts {
		if f.MinWindowNumDetection != nil && n < *f.MinWindowNumDetection {
			continue
		}
		if f.MaxWindowNumDetection != nil && n > *f.MaxWindowNumDetection {
			continue
		}
		ids[id] = struct{}{}
	}
	return in.narrow(ids, func(c *Candidate) {
		n := counts[c.DiaObjectID]
		c.NumDetInWindow = &n
	}), nil
}

// prefilterStage 粗筛: 在首末次探测时间范围的并集内至少有一次探测
func prefilterStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	f := e.filters
	var lo, hi *float64
	for _, p := range []*float64{f.MinTFirstDetection, f.MinTLastDetection} {
		if p != nil && (lo == nil || *p < *lo) {
			lo = p
		}
	}
	for _, p := range []*float64{f.MaxTFirstDetection, f.MaxTLastDetection} {
		if p != nil && (hi == nil || *p > *hi) {
			hi = p
		}
	}
	if lo == nil && hi == nil {
		return in, nil
	}
	counts, err := e.countDetections(ctx, in, lo, hi)
	if err != nil {
		return CandidateSet{}, err
	}
	ids := make(map[int64]struct{}, len(counts))
	for id := range counts {
		ids[id] = struct{}{}
	}
	return in.narrow(ids, func(*Candidate) {}), nil
}

// statsStage 统计 mjdNow 之前的探测, 没有探测的对象被去掉
func statsStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	q, ok := e.rankedQuery(in, nil, e.mjdNow)
	if !ok {
		return CandidateSet{}, nil
	}
	summaries, err := e.repo.SummarizeDetections(ctx, q)
	if err != nil {
		return CandidateSet{}, err
	}
	stats := make(map[int64]repositories.DetectionSummary, len(summaries))
	ids := make(map[int64]struct{}, len(summaries))
	for _, s := range summaries {
		stats[s.DiaObjectID] = s
		ids[s.DiaObjectID] = struct{}{}
	}
	return in.narrow(ids, func(c *Candidate) {
		s := stats[c.DiaObjectID]
		c.NumDet = s.NumDet
		c.NumBands = s.NumBands
		c.First = measurementOf(s.First)
		c.Last = measurementOf(s.Last)
		c.Max = measurementOf(s.Max)
	}), nil
}

// positionStage 补上还没有位置的对象, 在对象版本下找不到的去掉
func positionStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	var missing []int64
	for _, c := range in.Rows {
		if !c.positioned {
			missing = append(missing, c.DiaObjectID)
		}
	}
	if len(missing) == 0 {
		return in, nil
	}
	objs, err := e.repo.Objects(ctx, repositories.ObjectQuery{DiaObjectIDs: missing, BaseProcverIDs: e.objRanking.IDs()})
	if err != nil {
		return CandidateSet{}, err
	}
	best := bestObjects(objs, e.objRanking)
	out := CandidateSet{Rows: make([]Candidate, 0, len(in.Rows))}
	for _, c := range in.Rows {
		if !c.positioned {
			o, ok := best[c.DiaObjectID]
			if !ok {
				continue
			}
			place(&c, o)
		}
		out.Rows = append(out.Rows, c)
	}
	return out, nil
}

func within(x float64, lo, hi *float64) bool {
	return (lo == nil || x >= *lo) && (hi == nil || x <= *hi)
}

// magCut minmag 去掉比它亮的 (流量更大), maxmag 去掉比它暗的
func (e *env) magCut(flux float64, minMag, maxMag *float64) bool {
	if minMag != nil && flux > astro.MagToFlux(*minMag, e.zeropoint) {
		return false
	}
	if maxMag != nil && flux < astro.MagToFlux(*maxMag, e.zeropoint) {
		return false
	}
	return true
}

func statFilterStage(_ context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	f := e.filters
	return in.keep(func(c Candidate) bool {
		if f.MinNumDetections != nil && c.NumDet < *f.MinNumDetections {
			return false
		}
		if f.MaxNumDetections != nil && c.NumDet > *f.MaxNumDetections {
			return false
		}
		if f.MinBandsDetected != nil && c.NumBands < *f.MinBandsDetected {
			return false
		}
		if !within(c.First.MJD, f.MinTFirstDetection, f.MaxTFirstDetection) ||
			!within(c.Last.MJD, f.MinTLastDetection, f.MaxTLastDetection) ||
			!within(c.Max.MJD, f.MinTMaxDetection, f.MaxTMaxDetection) {
			return false
		}
		if !within(c.Last.MJD-c.First.MJD, f.MinDtFirstLastDetection, f.MaxDtFirstLastDetection) {
			return false
		}
		return e.magCut(c.First.Flux, f.MinMagFirstDetection, f.MaxMagFirstDetection) &&
			e.magCut(c.Last.Flux, f.MinMagLastDetection, f.MaxMagLastDetection) &&
			e.magCut(c.Max.Flux, f.MinMagMaxDetection, f.MaxMagMaxDetection)
	}), nil
}

// lastForcedStage 附上最后一次强制测光, 没有强制测光的对象保留, 字段为空
func lastForcedStage(ctx context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	if in.Len() == 0 {
		return in, nil
	}
	q, _ := e.rankedQuery(in, nil, e.mjdNow)
	forced, err := e.repo.LastForced(ctx, q)
	if err != nil {
		return CandidateSet{}, err
	}
	last := make(map[int64]models.Photometry, len(forced))
	for _, p := range forced {
		last[p.DiaObjectID] = p
	}
	out := CandidateSet{Rows: make([]Candidate, 0, len(in.Rows))}
	for _, c := range in.Rows {
		if p, ok := last[c.DiaObjectID]; ok {
			c.LastForced = &Measurement{MJD: p.MidpointMJDTAI, Band: p.Band, Flux: p.PSFFlux, FluxErr: p.PSFFluxErr}
		}
		out.Rows = append(out.Rows, c)
	}
	return out, nil
}

func lastMagStage(_ context.Context, e *env, in CandidateSet) (CandidateSet, error) {
	f := e.filters
	if f.MinLastMag == nil && f.MaxLastMag == nil {
		return in, nil
	}
	return in.keep(func(c Candidate) bool {
		if c.LastForced == nil {
			return false
		}
		return e.magCut(c.LastForced.Flux, f.MinLastMag, f.MaxLastMag)
	}), nil
}
