package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/cache"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ranking 处理版本解析后的基础版本列表, 按优先级降序
type Ranking []models.RankedBaseVersion

func (r Ranking) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r))
	for i, b := range r {
		ids[i] = b.ID
	}
	return ids
}

// Priority 返回基础版本在该处理版本中的优先级
func (r Ranking) Priority(id uuid.UUID) (int, bool) {
	for _, b := range r {
		if b.ID == id {
			return b.Priority, true
		}
	}
	return 0, false
}

type ProcverInfo struct {
	ID           uuid.UUID `json:"id"`
	Description  string    `json:"description"`
	Aliases      []string  `json:"aliases"`
	BaseProcvers []string  `json:"base_procvers"`
}

type BaseProcverInfo struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Procvers    []string  `json:"procvers"`
}

type Service interface {
	// ResolveProcessingVersion 名称可以是 UUID, 处理版本名或别名
	ResolveProcessingVersion(ctx context.Context, ref string) (uuid.UUID, error)
	ResolveBaseProcessingVersion(ctx context.Context, ref string) (uuid.UUID, error)
	// BaseVersions 空列表是完整性错误
	BaseVersions(ctx context.Context, procverID uuid.UUID) (Ranking, error)
	// Resolve 等价于 ResolveProcessingVersion + BaseVersions
	Resolve(ctx context.Context, ref string) (uuid.UUID, Ranking, error)

	GetOrCreateBaseVersion(ctx context.Context, desc string) (uuid.UUID, error)
	GetOrCreateProcessingVersion(ctx context.Context, desc string) (uuid.UUID, error)
	CreateAlias(ctx context.Context, alias, procver string) error
	AddBaseVersion(ctx context.Context, procver, base string, priority int) error

	ListVersions(ctx context.Context) ([]string, error)
	DescribeProcessingVersion(ctx context.Context, ref string) (*ProcverInfo, error)
	DescribeBaseProcessingVersion(ctx context.Context, ref string) (*BaseProcverInfo, error)
}

// lookup 一种按名称查找 id 的方式, 解析时按顺序尝试
type lookup func(ctx context.Context, name string) (uuid.UUID, bool, error)

type service struct {
	repo     repositories.VersionRepository
	cache    cache.Cache
	cacheTTL time.Duration

	procverLookups []lookup
	baseLookups    []lookup
}

var _ Service = (*service)(nil)

// NewService cache 可以为 nil
func NewService(repo repositories.VersionRepository, c cache.Cache, cacheTTL time.Duration) Service {
	s := &service{repo: repo, cache: c, cacheTTL: cacheTTL}
	s.procverLookups = []lookup{s.procverByDescription, s.procverByAlias}
	s.baseLookups = []lookup{s.baseByDescription}
	return s
}

func (s *service) procverByDescription(ctx context.Context, name string) (uuid.UUID, bool, error) {
	pv, err := s.repo.FindProcverByDescription(ctx, name)
	if err != nil || pv == nil {
		return uuid.Nil, false, err
	}
	return pv.ID, true, nil
}

func (s *service) procverByAlias(ctx context.Context, name string) (uuid.UUID, bool, error) {
	alias, err := s.repo.FindAlias(ctx, name)
	if err != nil || alias == nil {
		return uuid.Nil, false, err
	}
	return alias.ProcverID, true, nil
}

func (s *service) baseByDescription(ctx context.Context, name string) (uuid.UUID, bool, error) {
	b, err := s.repo.FindBaseByDescription(ctx, name)
	if err != nil || b == nil {
		return uuid.Nil, false, err
	}
	return b.ID, true, nil
}

func (s *service) cacheGet(ctx context.Context, key string, target any) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, target)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("version cache read failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		logger.Warn("version cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *service) cacheDel(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		logger.Warn("version cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *service) resolve(ctx context.Context, ref, kind, cacheKey string, chain []lookup) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, xerr.Wrapf(xerr.ErrUnknownVersion, "empty %s", kind)
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}

	var cached uuid.UUID
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}
	for _, find := range chain {
		id, ok, err := find(ctx, ref)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolve %s %q: %w", kind, ref, errors.Join(xerr.ErrDatabaseError, err))
		}
		if ok {
			s.cacheSet(ctx, cacheKey, id)
			return id, nil
		}
	}
	return uuid.Nil, xerr.Wrapf(xerr.ErrUnknownVersion, "unknown %s %q", kind, ref)
}

func (s *service) ResolveProcessingVersion(ctx context.Context, ref string) (uuid.UUID, error) {
	return s.resolve(ctx, ref, "processing version", cache.GenerateProcverNameKey(ref), s.procverLookups)
}

func (s *service) ResolveBaseProcessingVersion(ctx context.Context, ref string) (uuid.UUID, error) {
	return s.resolve(ctx, ref, "base processing version", cache.GenerateBaseProcverNameKey(ref), s.baseLookups)
}

func (s *service) BaseVersions(ctx context.Context, procverID uuid.UUID) (Ranking, error) {
	key := cache.GenerateProcverBasesKey(procverID.String())
	var cached Ranking
	if s.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	bases, err := s.repo.BaseVersionsOf(ctx, procverID)
	if err != nil {
		if errors.Is(err, xerr.ErrVersionIntegrity) {
			logger.Error("BaseVersions: integrity violation", zap.String("procver_id", procverID.String()), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("base versions of %s: %w", procverID, errors.Join(xerr.ErrDatabaseError, err))
	}
	if len(bases) == 0 {
		pv, err := s.repo.FindProcverByID(ctx, procverID)
		if err != nil {
			return nil, fmt.Errorf("base versions of %s: %w", procverID, errors.Join(xerr.ErrDatabaseError, err))
		}
		if pv == nil {
			return nil, xerr.Wrapf(xerr.ErrUnknownVersion, "unknown processing version %s", procverID)
		}
		logger.Error("BaseVersions: processing version has no base versions",
			zap.String("procver_id", procverID.String()), zap.String("description", pv.Description))
		return nil, xerr.Wrapf(xerr.ErrVersionIntegrity,
			"processing version %s (%s) has no base processing versions", pv.Description, procverID)
	}
	s.cacheSet(ctx, key, bases)
	return bases, nil
}

func (s *service) Resolve(ctx context.Context, ref string) (uuid.UUID, Ranking, error) {
	id, err := s.ResolveProcessingVersion(ctx, ref)
	if err != nil {
		return uuid.Nil, nil, err
	}
	ranking, err := s.BaseVersions(ctx, id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, ranking, nil
}

func validDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return xerr.Wrapf(xerr.ErrInvalidParams, "version description must not be empty")
	}
	if _, err := uuid.Parse(desc); err == nil {
		return xerr.Wrapf(xerr.ErrInvalidParams, "version description %q must not be a UUID", desc)
	}
	return nil
}

func (s *service) GetOrCreateBaseVersion(ctx context.Context, desc string) (uuid.UUID, error) {
	if err := validDescription(desc); err != nil {
		return uuid.Nil, err
	}
	b, created, err := s.repo.GetOrCreateBase(ctx, desc, nil)
	if err != nil {
		logger.Error("GetOrCreateBaseVersion failed", zap.String("description", desc), zap.Error(err))
		return uuid.Nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	if created {
		logger.Info("created base processing version", zap.String("description", desc), zap.String("id", b.ID.String()))
	}
	return b.ID, nil
}

func (s *service) GetOrCreateProcessingVersion(ctx context.Context, desc string) (uuid.UUID, error) {
	if err := validDescription(desc); err != nil {
		return uuid.Nil, err
	}
	pv, created, err := s.repo.GetOrCreateProcver(ctx, desc, nil)
	if err != nil {
		logger.Error("GetOrCreateProcessingVersion failed", zap.String("description", desc), zap.Error(err))
		return uuid.Nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	if created {
		logger.Info("created processing version", zap.String("description", desc), zap.String("id", pv.ID.String()))
	}
	return pv.ID, nil
}

func (s *service) CreateAlias(ctx context.Context, alias, procver string) error {
	if err := validDescription(alias); err != nil {
		return err
	}
	id, err := s.ResolveProcessingVersion(ctx, procver)
	if err != nil {
		return err
	}
	if pv, err := s.repo.FindProcverByID(ctx, id); err != nil {
		return errors.Join(xerr.ErrDatabaseError, err)
	} else if pv == nil {
		return xerr.Wrapf(xerr.ErrUnknownVersion, "unknown processing version %s", id)
	}
	if err := s.repo.CreateAlias(ctx, alias, id); err != nil {
		if errors.Is(err, xerr.ErrAliasConflict) {
			return err
		}
		return errors.Join(xerr.ErrDatabaseError, err)
	}
	s.cacheDel(ctx, cache.GenerateProcverNameKey(alias))
	return nil
}

func (s *service) AddBaseVersion(ctx context.Context, procver, base string, priority int) error {
	pvID, err := s.ResolveProcessingVersion(ctx, procver)
	if err != nil {
		return err
	}
	baseID, err := s.ResolveBaseProcessingVersion(ctx, base)
	if err != nil {
		return err
	}
	if err := s.repo.AddBase(ctx, pvID, baseID, priority); err != nil {
		if errors.Is(err, xerr.ErrDuplicatePriority) {
			return err
		}
		return errors.Join(xerr.ErrDatabaseError, err)
	}
	s.cacheDel(ctx, cache.GenerateProcverBasesKey(pvID.String()))
	return nil
}

func (s *service) ListVersions(ctx context.Context) ([]string, error) {
	names, err := s.repo.ListDescriptions(ctx)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	return names, nil
}

func (s *service) DescribeProcessingVersion(ctx context.Context, ref string) (*ProcverInfo, error) {
	id, err := s.ResolveProcessingVersion(ctx, ref)
	if err != nil {
		return nil, err
	}
	pv, err := s.repo.FindProcverByID(ctx, id)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	if pv == nil {
		return nil, xerr.Wrapf(xerr.ErrUnknownVersion, "unknown processing version %q", ref)
	}
	aliases, err := s.repo.AliasesOf(ctx, id)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	bases, err := s.repo.BaseVersionsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &ProcverInfo{ID: pv.ID, Description: pv.Description, Aliases: aliases, BaseProcvers: []string{}}
	if info.Aliases == nil {
		info.Aliases = []string{}
	}
	for _, b := range bases {
		info.BaseProcvers = append(info.BaseProcvers, b.Description)
	}
	return info, nil
}

func (s *service) DescribeBaseProcessingVersion(ctx context.Context, ref string) (*BaseProcverInfo, error) {
	id, err := s.ResolveBaseProcessingVersion(ctx, ref)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.FindBaseByID(ctx, id)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	if b == nil {
		return nil, xerr.Wrapf(xerr.ErrUnknownVersion, "unknown base processing version %q", ref)
	}
	pvs, err := s.repo.ProcversOfBase(ctx, id)
	if err != nil {
		return nil, errors.Join(xerr.ErrDatabaseError, err)
	}
	info := &BaseProcverInfo{ID: b.ID, Description: b.Description, Procvers: []string{}}
	for _, pv := range pvs {
		info.Procvers = append(info.Procvers, pv.Description)
	}
	return info, nil
}
