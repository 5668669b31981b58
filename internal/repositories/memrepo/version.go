package memrepo

import (
	"context"
	"sort"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/google/uuid"
)

func (s *Store) FindProcverByID(_ context.Context, id uuid.UUID) (*models.ProcessingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pv, ok := s.st.procvers[id]; ok {
		return &pv, nil
	}
	return nil, nil
}

func (st *state) procverByDescription(desc string) *models.ProcessingVersion {
	for _, pv := range st.procvers {
		if pv.Description == desc {
			return &pv
		}
	}
	return nil
}

func (st *state) baseByDescription(desc string) *models.BaseProcessingVersion {
	for _, b := range st.bases {
		if b.Description == desc {
			return &b
		}
	}
	return nil
}

func (s *Store) FindProcverByDescription(_ context.Context, desc string) (*models.ProcessingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.procverByDescription(desc), nil
}

func (s *Store) FindAlias(_ context.Context, alias string) (*models.ProcessingVersionAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.st.aliases[alias]; ok {
		return &models.ProcessingVersionAlias{Description: alias, ProcverID: id}, nil
	}
	return nil, nil
}

func (s *Store) FindBaseByID(_ context.Context, id uuid.UUID) (*models.BaseProcessingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.st.bases[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *Store) FindBaseByDescription(_ context.Context, desc string) (*models.BaseProcessingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.baseByDescription(desc), nil
}

func (s *Store) BaseVersionsOf(_ context.Context, procverID uuid.UUID) ([]models.RankedBaseVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RankedBaseVersion
	for _, l := range s.st.links {
		if l.ProcverID != procverID {
			continue
		}
		b, ok := s.st.bases[l.BaseProcverID]
		if !ok {
			return nil, xerr.Wrapf(xerr.ErrVersionIntegrity,
				"processing version %s references missing base processing version %s", procverID, l.BaseProcverID)
		}
		out = append(out, models.RankedBaseVersion{ID: b.ID, Description: b.Description, Priority: l.Priority})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *Store) ProcversOfBase(_ context.Context, baseID uuid.UUID) ([]models.ProcessingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProcessingVersion
	for _, l := range s.st.links {
		if l.BaseProcverID == baseID {
			out = append(out, s.st.procvers[l.ProcverID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out, nil
}

func (s *Store) AliasesOf(_ context.Context, procverID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for alias, id := range s.st.aliases {
		if id == procverID {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListDescriptions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, pv := range s.st.procvers {
		out = append(out, pv.Description)
	}
	for alias := range s.st.aliases {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out, nil
}

func (st *state) getOrCreateBase(desc string, notes *string) (*models.BaseProcessingVersion, bool) {
	if b := st.baseByDescription(desc); b != nil {
		return b, false
	}
	b := models.BaseProcessingVersion{ID: uuid.New(), Description: desc, Notes: notes}
	st.bases[b.ID] = b
	return &b, true
}

func (s *Store) GetOrCreateBase(_ context.Context, desc string, notes *string) (*models.BaseProcessingVersion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, created := s.st.getOrCreateBase(desc, notes)
	return b, created, nil
}

func (s *Store) GetOrCreateProcver(_ context.Context, desc string, notes *string) (*models.ProcessingVersion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pv := s.st.procverByDescription(desc); pv != nil {
		return pv, false, nil
	}
	pv := models.ProcessingVersion{ID: uuid.New(), Description: desc, Notes: notes}
	s.st.procvers[pv.ID] = pv
	b, _ := s.st.getOrCreateBase(desc, notes)
	s.st.links = append(s.st.links, models.BaseProcverOfProcver{ProcverID: pv.ID, BaseProcverID: b.ID, Priority: 0})
	return &pv, true, nil
}

func (s *Store) CreateAlias(_ context.Context, alias string, procverID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.procverByDescription(alias) != nil {
		return xerr.Wrapf(xerr.ErrAliasConflict, "alias %q is already a processing version", alias)
	}
	if existing, ok := s.st.aliases[alias]; ok {
		if existing == procverID {
			return nil
		}
		return xerr.Wrapf(xerr.ErrAliasConflict, "alias %q already points to %s", alias, existing)
	}
	s.st.aliases[alias] = procverID
	return nil
}

func (s *Store) AddBase(_ context.Context, procverID, baseID uuid.UUID, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.st.links {
		if l.ProcverID != procverID {
			continue
		}
		if l.BaseProcverID == baseID {
			return xerr.Wrapf(xerr.ErrDuplicatePriority,
				"base processing version %s is already in %s at priority %d", baseID, procverID, l.Priority)
		}
		if l.Priority == priority {
			return xerr.Wrapf(xerr.ErrDuplicatePriority,
				"priority %d of %s is already taken by %s", priority, procverID, l.BaseProcverID)
		}
	}
	s.st.links = append(s.st.links, models.BaseProcverOfProcver{ProcverID: procverID, BaseProcverID: baseID, Priority: priority})
	return nil
}

// LinkUnchecked 直接写入关联行, 不检查基础版本是否存在, 用于构造完整性错误的测试
func (s *Store) LinkUnchecked(procverID, baseID uuid.UUID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.links = append(s.st.links, models.BaseProcverOfProcver{ProcverID: procverID, BaseProcverID: baseID, Priority: priority})
}
