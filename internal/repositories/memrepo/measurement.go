package memrepo

import (
	"context"
	"fmt"
	"slices"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
)

// view 在已持有锁的前提下读取 state
type view struct {
	st *state
}

var _ repositories.MeasurementRepository = view{}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(r repositories.MeasurementRepository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(view{st: s.st})
}

func (s *Store) Photometry(ctx context.Context, kind repositories.PhotometryKind, q repositories.PhotometryQuery) ([]models.Photometry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.Photometry(ctx, kind, q)
}

func (s *Store) Objects(ctx context.Context, q repositories.ObjectQuery) ([]models.DiaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.Objects(ctx, q)
}

func (s *Store) ObjectsInCone(ctx context.Context, ra, dec, radius float64, baseIDs []uuid.UUID) ([]models.DiaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.ObjectsInCone(ctx, ra, dec, radius, baseIDs)
}

func (s *Store) HostGalaxies(ctx context.Context, refs []repositories.HostRef) ([]models.HostGalaxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.HostGalaxies(ctx, refs)
}

func (s *Store) CountDistinct(ctx context.Context, kind repositories.PhotometryKind, procverID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}.CountDistinct(ctx, kind, procverID)
}

func (v view) ReadSnapshot(_ context.Context, fn func(r repositories.MeasurementRepository) error) error {
	return fn(v)
}

func matchPhotometry(p models.Photometry, q repositories.PhotometryQuery) bool {
	if !slices.Contains(q.BaseProcverIDs, p.BaseProcverID) {
		return false
	}
	if q.ObjectIDs != nil && !slices.Contains(q.ObjectIDs, p.DiaObjectID) {
		return false
	}
	if len(q.Bands) > 0 && !slices.Contains(q.Bands, p.Band) {
		return false
	}
	if q.MinMJD != nil && p.MidpointMJDTAI < *q.MinMJD {
		return false
	}
	if q.MaxMJD != nil && p.MidpointMJDTAI > *q.MaxMJD {
		return false
	}
	return true
}

func (v view) Photometry(_ context.Context, kind repositories.PhotometryKind, q repositories.PhotometryQuery) ([]models.Photometry, error) {
	var out []models.Photometry
	switch kind {
	case repositories.KindSource:
		for _, k := range sortedKeys(v.st.sources, lessPhot) {
			if p := v.st.sources[k].Photometry; matchPhotometry(p, q) {
				out = append(out, p)
			}
		}
	case repositories.KindForced:
		for _, k := range sortedKeys(v.st.forced, lessPhot) {
			if p := v.st.forced[k].Photometry; matchPhotometry(p, q) {
				out = append(out, p)
			}
		}
	default:
		return nil, fmt.Errorf("no photometry table for %q", kind)
	}
	return out, nil
}

func (v view) Objects(_ context.Context, q repositories.ObjectQuery) ([]models.DiaObject, error) {
	var out []models.DiaObject
	for _, k := range sortedKeys(v.st.objects, lessObj) {
		o := v.st.objects[k]
		if !slices.Contains(q.BaseProcverIDs, o.BaseProcverID) {
			continue
		}
		if slices.Contains(q.DiaObjectIDs, o.DiaObjectID) || slices.Contains(q.RootIDs, o.RootID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (v view) ObjectsInCone(_ context.Context, ra, dec, radius float64, baseIDs []uuid.UUID) ([]models.DiaObject, error) {
	var out []models.DiaObject
	for _, k := range sortedKeys(v.st.objects, lessObj) {
		o := v.st.objects[k]
		if slices.Contains(baseIDs, o.BaseProcverID) && astro.AngularSeparation(ra, dec, o.RA, o.Dec) <= radius {
			out = append(out, o)
		}
	}
	return out, nil
}

func (v view) HostGalaxies(_ context.Context, refs []repositories.HostRef) ([]models.HostGalaxy, error) {
	var out []models.HostGalaxy
	for _, ref := range refs {
		if h, ok := v.st.hosts[ref]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (v view) CountDistinct(_ context.Context, kind repositories.PhotometryKind, procverID uuid.UUID) (int64, error) {
	bases := map[uuid.UUID]bool{}
	for _, l := range v.st.links {
		if l.ProcverID == procverID {
			bases[l.BaseProcverID] = true
		}
	}
	type visitKey struct{ id, visit int64 }
	seen := map[any]struct{}{}
	switch kind {
	case repositories.KindObject:
		for _, o := range v.st.objects {
			if bases[o.BaseProcverID] {
				seen[o.RootID] = struct{}{}
			}
		}
	case repositories.KindSource:
		for _, s := range v.st.sources {
			if bases[s.BaseProcverID] {
				seen[visitKey{s.DiaObjectID, s.Visit}] = struct{}{}
			}
		}
	case repositories.KindForced:
		for _, s := range v.st.forced {
			if bases[s.BaseProcverID] {
				seen[visitKey{s.DiaObjectID, s.Visit}] = struct{}{}
			}
		}
	default:
		return 0, fmt.Errorf("unknown thing to count: %q", kind)
	}
	return int64(len(seen)), nil
}
