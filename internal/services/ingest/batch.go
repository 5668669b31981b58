package ingest

import (
	"sort"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
	"github.com/google/uuid"
)

type photKey struct {
	diaObjectID int64
	visit       int64
}

// batch 一次导入从告警中展开并去重后的记录
type batch struct {
	objects  []models.DiaObject
	sources  []models.DiaSource
	forced   []models.DiaForcedSource
	lastSave time.Time
}

// unnest 每条告警展开为对象, 当前探测, 历史探测和历史强制测光.
// 同一自然键只保留最早出现的那条, 告警已按 savetime 升序.
func unnest(alerts []staging.Alert, baseID uuid.UUID) batch {
	var b batch
	seenObj := map[int64]bool{}
	seenSrc := map[photKey]bool{}
	seenForced := map[photKey]bool{}

	addSource := func(s staging.DiaSource) {
		k := photKey{s.DiaObjectID, s.Visit}
		if seenSrc[k] {
			return
		}
		seenSrc[k] = true
		id := s.DiaSourceID
		b.sources = append(b.sources, models.DiaSource{
			Photometry: models.Photometry{
				DiaObjectID:    s.DiaObjectID,
				Visit:          s.Visit,
				BaseProcverID:  baseID,
				Detector:       s.Detector,
				MidpointMJDTAI: s.MidpointMJDTAI,
				Band:           s.Band,
				PSFFlux:        s.PSFFlux,
				PSFFluxErr:     s.PSFFluxErr,
				RA:             s.RA,
				Dec:            s.Dec,
			},
			DiaSourceID: &id,
			SNR:         s.SNR,
		})
	}

	for _, a := range alerts {
		if a.SaveTime.After(b.lastSave) {
			b.lastSave = a.SaveTime
		}
		o := a.Msg.DiaObject
		if !seenObj[o.DiaObjectID] {
			seenObj[o.DiaObjectID] = true
			b.objects = append(b.objects, models.DiaObject{
				DiaObjectID:         o.DiaObjectID,
				BaseProcverID:       baseID,
				RA:                  o.RA,
				Dec:                 o.Dec,
				RAErr:               o.RAErr,
				DecErr:              o.DecErr,
				RADecCov:            o.RADecCov,
				ValidityStartMJDTAI: o.ValidityStartMJDTAI,
				NearbyExtObj1ID:     o.NearbyExtObj1,
				NearbyExtObj1Sep:    o.NearbyExtObj1Sep,
				NearbyExtObj2ID:     o.NearbyExtObj2,
				NearbyExtObj2Sep:    o.NearbyExtObj2Sep,
				NearbyExtObj3ID:     o.NearbyExtObj3,
				NearbyExtObj3Sep:    o.NearbyExtObj3Sep,
			})
		}
		addSource(a.Msg.DiaSource)
		for _, s := range a.Msg.PrvDiaSources {
			addSource(s)
		}
		for _, f := range a.Msg.PrvDiaForcedSources {
			k := photKey{f.DiaObjectID, f.Visit}
			if seenForced[k] {
				continue
			}
			seenForced[k] = true
			id := f.DiaForcedSourceID
			b.forced = append(b.forced, models.DiaForcedSource{
				Photometry: models.Photometry{
					DiaObjectID:    f.DiaObjectID,
					Visit:          f.Visit,
					BaseProcverID:  baseID,
					Detector:       f.Detector,
					MidpointMJDTAI: f.MidpointMJDTAI,
					Band:           f.Band,
					PSFFlux:        f.PSFFlux,
					PSFFluxErr:     f.PSFFluxErr,
					RA:             f.RA,
					Dec:            f.Dec,
				},
				DiaForcedSourceID: &id,
			})
		}
	}
	sort.Slice(b.objects, func(i, j int) bool { return b.objects[i].DiaObjectID < b.objects[j].DiaObjectID })
	return b
}
