package memrepo

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
)

// WithinTransaction 持有写锁执行 fn, 出错时恢复到事务开始前的状态
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repositories.IngestTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.st.clone()
	err := fn(&memTx{st: s.st})
	if err == nil && s.BeforeCommit != nil {
		err = s.BeforeCommit()
	}
	if err != nil {
		s.st = backup
		return err
	}
	return nil
}

func (s *Store) GetWatermark(_ context.Context, collection string, baseID uuid.UUID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.watermarks[wmKey{collection, baseID}]
	return t, ok, nil
}

func (s *Store) SetWatermark(_ context.Context, collection string, baseID uuid.UUID, savetime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.watermarks[wmKey{collection, baseID}] = savetime
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) RootIDsOf(_ context.Context, ids []int64) (map[int64]uuid.UUID, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := map[int64]uuid.UUID{}
	for k, o := range t.st.objects {
		if want[k.id] {
			out[k.id] = o.RootID
		}
	}
	return out, nil
}

func (t *memTx) ExistingObjects(_ context.Context, baseID uuid.UUID, ids []int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, id := range ids {
		if _, ok := t.st.objects[objKey{id, baseID}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (t *memTx) NearestObject(_ context.Context, baseID uuid.UUID, ra, dec, radius float64) (*models.DiaObject, error) {
	var (
		best    *models.DiaObject
		bestSep float64
	)
	for _, k := range sortedKeys(t.st.objects, lessObj) {
		if k.base != baseID {
			continue
		}
		o := t.st.objects[k]
		sep := astro.AngularSeparation(ra, dec, o.RA, o.Dec)
		if sep <= radius && (best == nil || sep < bestSep) {
			best, bestSep = &o, sep
		}
	}
	return best, nil
}

func (t *memTx) CreateRoots(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		t.st.roots[id] = struct{}{}
	}
	return nil
}

func (t *memTx) PruneRoots(_ context.Context, ids []uuid.UUID) (int64, error) {
	used := map[uuid.UUID]bool{}
	for _, o := range t.st.objects {
		used[o.RootID] = true
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.st.roots[id]; ok && !used[id] {
			delete(t.st.roots, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertObjects(_ context.Context, objs []models.DiaObject) (int64, error) {
	var n int64
	for _, o := range objs {
		k := objKey{o.DiaObjectID, o.BaseProcverID}
		if _, ok := t.st.objects[k]; !ok {
			t.st.objects[k] = o
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertSources(_ context.Context, rows []models.DiaSource) (int64, error) {
	var n int64
	for _, r := range rows {
		k := photKey{r.DiaObjectID, r.Visit, r.BaseProcverID}
		if _, ok := t.st.sources[k]; !ok {
			t.st.sources[k] = r
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertForcedSources(_ context.Context, rows []models.DiaForcedSource) (int64, error) {
	var n int64
	for _, r := range rows {
		k := photKey{r.DiaObjectID, r.Visit, r.BaseProcverID}
		if _, ok := t.st.forced[k]; !ok {
			t.st.forced[k] = r
			n++
		}
	}
	return n, nil
}
