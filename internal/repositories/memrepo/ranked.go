package memrepo

import (
	"context"
	"sort"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
)

func (s *Store) CountDetections(ctx context.Context, q repositories.RankedQuery) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.CountDetections(ctx, q)
}

func (s *Store) SummarizeDetections(ctx context.Context, q repositories.RankedQuery) ([]repositories.DetectionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.SummarizeDetections(ctx, q)
}

func (s *Store) LastForced(ctx context.Context, q repositories.RankedQuery) ([]models.Photometry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.LastForced(ctx, q)
}

// ranked 每个 (diaobjectid, visit) 取优先级最高的一行, 按 (diaobjectid, mjd, band, visit) 排序
func (v view) ranked(ctx context.Context, kind repositories.PhotometryKind, q repositories.RankedQuery) ([]models.Photometry, error) {
	if len(q.Ranking) == 0 {
		return nil, nil
	}
	prio := make(map[uuid.UUID]int, len(q.Ranking))
	ids := make([]uuid.UUID, len(q.Ranking))
	for i, b := range q.Ranking {
		prio[b.ID] = b.Priority
		ids[i] = b.ID
	}
	rows, err := v.Photometry(ctx, kind, repositories.PhotometryQuery{
		ObjectIDs:      q.ObjectIDs,
		BaseProcverIDs: ids,
		Bands:          q.Bands,
		MinMJD:         q.MinMJD,
		MaxMJD:         q.MaxMJD,
	})
	if err != nil {
		return nil, err
	}
	type key struct{ id, visit int64 }
	best := map[key]models.Photometry{}
	for _, r := range rows {
		k := key{r.DiaObjectID, r.Visit}
		if cur, ok := best[k]; !ok || prio[r.BaseProcverID] > prio[cur.BaseProcverID] {
			best[k] = r
		}
	}
	out := make([]models.Photometry, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DiaObjectID != b.DiaObjectID {
			return a.DiaObjectID < b.DiaObjectID
		}
		if a.MidpointMJDTAI != b.MidpointMJDTAI {
			return a.MidpointMJDTAI < b.MidpointMJDTAI
		}
		if a.Band != b.Band {
			return a.Band < b.Band
		}
		return a.Visit < b.Visit
	})
	return out, nil
}

func (v view) CountDetections(ctx context.Context, q repositories.RankedQuery) (map[int64]int, error) {
	rows, err := v.ranked(ctx, repositories.KindSource, q)
	if err != nil {
		return nil, err
	}
	out := map[int64]int{}
	for _, r := range rows {
		out[r.DiaObjectID]++
	}
	return out, nil
}

func point(p models.Photometry) repositories.PhotPoint {
	return repositories.PhotPoint{MJD: p.MidpointMJDTAI, Band: p.Band, Flux: p.PSFFlux, FluxErr: p.PSFFluxErr}
}

func (v view) SummarizeDetections(ctx context.Context, q repositories.RankedQuery) ([]repositories.DetectionSummary, error) {
	rows, err := v.ranked(ctx, repositories.KindSource, q)
	if err != nil {
		return nil, err
	}
	var out []repositories.DetectionSummary
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].DiaObjectID == rows[start].DiaObjectID {
			end++
		}
		group := rows[start:end]
		// group 已按 (mjd, band, visit) 升序
		first, last, brightest := group[0], group[0], group[0]
		bands := map[string]struct{}{}
		for _, r := range group {
			bands[r.Band] = struct{}{}
			if r.MidpointMJDTAI > last.MidpointMJDTAI {
				last = r
			}
			if r.PSFFlux > brightest.PSFFlux {
				brightest = r
			}
		}
		out = append(out, repositories.DetectionSummary{
			DiaObjectID: first.DiaObjectID,
			NumDet:      len(group),
			NumBands:    len(bands),
			First:       point(first),
			Last:        point(last),
			Max:         point(brightest),
		})
		start = end
	}
	return out, nil
}

func (v view) LastForced(ctx context.Context, q repositories.RankedQuery) ([]models.Photometry, error) {
	rows, err := v.ranked(ctx, repositories.KindForced, q)
	if err != nil {
		return nil, err
	}
	var out []models.Photometry
	for i, r := range rows {
		if len(out) > 0 && out[len(out)-1].DiaObjectID == r.DiaObjectID {
			if r.MidpointMJDTAI > out[len(out)-1].MidpointMJDTAI {
				out[len(out)-1] = rows[i]
			}
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
