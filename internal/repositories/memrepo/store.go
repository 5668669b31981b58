// Package memrepo 是 repositories 中各接口的内存实现, 供测试和本地演示使用.
// 语义与 Postgres 实现一致: 自然键冲突时忽略, 结果未经优先级去重.
package memrepo

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
)

type objKey struct {
	id   int64
	base uuid.UUID
}

type photKey struct {
	id    int64
	visit int64
	base  uuid.UUID
}

type wmKey struct {
	collection string
	base       uuid.UUID
}

type state struct {
	bases      map[uuid.UUID]models.BaseProcessingVersion
	procvers   map[uuid.UUID]models.ProcessingVersion
	aliases    map[string]uuid.UUID
	links      []models.BaseProcverOfProcver
	roots      map[uuid.UUID]struct{}
	objects    map[objKey]models.DiaObject
	sources    map[photKey]models.DiaSource
	forced     map[photKey]models.DiaForcedSource
	hosts      map[repositories.HostRef]models.HostGalaxy
	watermarks map[wmKey]time.Time
}

func newState() *state {
	return &state{
		bases:      map[uuid.UUID]models.BaseProcessingVersion{},
		procvers:   map[uuid.UUID]models.ProcessingVersion{},
		aliases:    map[string]uuid.UUID{},
		roots:      map[uuid.UUID]struct{}{},
		objects:    map[objKey]models.DiaObject{},
		sources:    map[photKey]models.DiaSource{},
		forced:     map[photKey]models.DiaForcedSource{},
		hosts:      map[repositories.HostRef]models.HostGalaxy{},
		watermarks: map[wmKey]time.Time{},
	}
}

func (s *state) clone() *state {
	return &state{
		bases:      maps.Clone(s.bases),
		procvers:   maps.Clone(s.procvers),
		aliases:    maps.Clone(s.aliases),
		links:      append([]models.BaseProcverOfProcver(nil), s.links...),
		roots:      maps.Clone(s.roots),
		objects:    maps.Clone(s.objects),
		sources:    maps.Clone(s.sources),
		forced:     maps.Clone(s.forced),
		hosts:      maps.Clone(s.hosts),
		watermarks: maps.Clone(s.watermarks),
	}
}

// Store 同时实现 VersionRepository, MeasurementRepository 和 IngestRepository
type Store struct {
	mu sync.RWMutex
	st *state
	// BeforeCommit 测试钩子, 在事务提交前调用, 返回错误会回滚
	BeforeCommit func() error
}

var (
	_ repositories.VersionRepository     = (*Store)(nil)
	_ repositories.MeasurementRepository = (*Store)(nil)
	_ repositories.IngestRepository      = (*Store)(nil)
)

func New() *Store {
	return &Store{st: newState()}
}

// PutObjects 直接写入对象, 同时登记 rootid, 已存在的自然键被忽略
func (s *Store) PutObjects(objs ...models.DiaObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objs {
		s.st.roots[o.RootID] = struct{}{}
		k := objKey{o.DiaObjectID, o.BaseProcverID}
		if _, ok := s.st.objects[k]; !ok {
			s.st.objects[k] = o
		}
	}
}

func (s *Store) PutSources(rows ...models.DiaSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := photKey{r.DiaObjectID, r.Visit, r.BaseProcverID}
		if _, ok := s.st.sources[k]; !ok {
			s.st.sources[k] = r
		}
	}
}

func (s *Store) PutForcedSources(rows ...models.DiaForcedSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := photKey{r.DiaObjectID, r.Visit, r.BaseProcverID}
		if _, ok := s.st.forced[k]; !ok {
			s.st.forced[k] = r
		}
	}
}

func (s *Store) PutHostGalaxies(rows ...models.HostGalaxy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range rows {
		s.st.hosts[repositories.HostRef{ID: h.ID, BaseProcverID: h.BaseProcverID}] = h
	}
}

// Counts 返回各表行数, 用于断言导入幂等
func (s *Store) Counts() (roots, objects, sources, forced int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.roots), len(s.st.objects), len(s.st.sources), len(s.st.forced)
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

func lessPhot(a, b photKey) bool {
	if a.id != b.id {
		return a.id < b.id
	}
	if a.visit != b.visit {
		return a.visit < b.visit
	}
	return a.base.String() < b.base.String()
}

func lessObj(a, b objKey) bool {
	if a.id != b.id {
		return a.id < b.id
	}
	return a.base.String() < b.base.String()
}
