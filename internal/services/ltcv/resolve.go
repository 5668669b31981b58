package ltcv

import (
	"math"
	"sort"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
)

// OwnerFunc 决定一行测光属于哪条光变曲线, 优先级去重在 (owner, visit) 上进行
type OwnerFunc func(p models.Photometry) int64

// ByDiaObjectID 每个 diaobjectid 一条曲线
func ByDiaObjectID(p models.Photometry) int64 { return p.DiaObjectID }

type visitKey struct {
	owner int64
	visit int64
}

// ResolveByPriority 对每个 (owner, visit) 只保留优先级最高的基础版本的那一行,
// 优先级相同时取 diaobjectid 较小的一行.
// 基础版本不在 ranking 中的行被丢弃. 结果按 (owner, mjd, band) 排序.
func ResolveByPriority(rows []models.Photometry, ranking versioning.Ranking, owner OwnerFunc) []models.Photometry {
	prio := make(map[uuid.UUID]int, len(ranking))
	for _, b := range ranking {
		prio[b.ID] = b.Priority
	}

	best := make(map[visitKey]int, len(rows))
	for i, r := range rows {
		p, ok := prio[r.BaseProcverID]
		if !ok {
			continue
		}
		k := visitKey{owner(r), r.Visit}
		j, seen := best[k]
		if !seen {
			best[k] = i
			continue
		}
		if bp := prio[rows[j].BaseProcverID]; p > bp || (p == bp && r.DiaObjectID < rows[j].DiaObjectID) {
			best[k] = i
		}
	}

	out := make([]models.Photometry, 0, len(best))
	for _, i := range best {
		out = append(out, rows[i])
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := owner(out[i]), owner(out[j])
		if oi != oj {
			return oi < oj
		}
		return lessPhotometry(out[i], out[j])
	})
	return out
}

func lessPhotometry(a, b models.Photometry) bool {
	if a.MidpointMJDTAI != b.MidpointMJDTAI {
		return a.MidpointMJDTAI < b.MidpointMJDTAI
	}
	if a.Band != b.Band {
		return a.Band < b.Band
	}
	return a.Visit < b.Visit
}

// Matcher 判断一个探测和一个强制测光是否是同一次观测
type Matcher struct {
	policy string
	steps  float64
}

type matchKey struct {
	tick int64
	band string
}

func NewMatcher(qc config.QueryConfig) Matcher {
	m := Matcher{policy: qc.MatchPolicy, steps: float64(qc.MJDMatchStepsPerDay)}
	if m.policy == "" {
		m.policy = config.MatchPolicyMJD
	}
	if m.steps <= 0 {
		m.steps = 10000
	}
	return m
}

// key 默认按 trunc(mjd*steps) 和 band 匹配, 同一波段相隔不足 1/steps 天的两次曝光会被视为同一次.
// 跨越量化边界的两份拷贝则匹配不上, 这是已知的容差.
func (m Matcher) key(p models.Photometry) matchKey {
	if m.policy == config.MatchPolicyVisit {
		return matchKey{tick: p.Visit}
	}
	return matchKey{tick: int64(math.Trunc(p.MidpointMJDTAI * m.steps)), band: p.Band}
}

// Merge 合并一条曲线已去重的探测和强制测光
func (m Matcher) Merge(dets, forced []models.Photometry, which Which) []Point {
	var out []Point
	switch which {
	case WhichDetections:
		out = make([]Point, 0, len(dets))
		for _, d := range dets {
			out = append(out, newPoint(d, true, false))
		}
	case WhichForced, WhichPatch:
		detected := make(map[matchKey]bool, len(dets))
		for _, d := range dets {
			detected[m.key(d)] = true
		}
		covered := make(map[matchKey]bool, len(forced))
		out = make([]Point, 0, len(forced)+len(dets))
		for _, f := range forced {
			k := m.key(f)
			covered[k] = true
			out = append(out, newPoint(f, detected[k], false))
		}
		if which == WhichPatch {
			for _, d := range dets {
				k := m.key(d)
				if covered[k] {
					continue
				}
				covered[k] = true
				out = append(out, newPoint(d, true, true))
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MJD != out[j].MJD {
			return out[i].MJD < out[j].MJD
		}
		return out[i].Band < out[j].Band
	})
	return out
}

func newPoint(p models.Photometry, isdet, ispatch bool) Point {
	return Point{
		Visit:         p.Visit,
		MJD:           p.MidpointMJDTAI,
		Band:          p.Band,
		Flux:          p.PSFFlux,
		FluxErr:       p.PSFFluxErr,
		IsDet:         isdet,
		IsPatch:       ispatch,
		baseProcverID: p.BaseProcverID,
	}
}
