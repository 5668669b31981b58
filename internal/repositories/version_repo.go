package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VersionRepository 处理版本相关的数据访问
// Find* 方法在记录不存在时返回 nil, nil
type VersionRepository interface {
	FindProcverByID(ctx context.Context, id uuid.UUID) (*models.ProcessingVersion, error)
	FindProcverByDescription(ctx context.Context, desc string) (*models.ProcessingVersion, error)
	FindAlias(ctx context.Context, alias string) (*models.ProcessingVersionAlias, error)
	FindBaseByID(ctx context.Context, id uuid.UUID) (*models.BaseProcessingVersion, error)
	FindBaseByDescription(ctx context.Context, desc string) (*models.BaseProcessingVersion, error)

	// BaseVersionsOf 返回处理版本包含的基础版本, 按优先级降序
	BaseVersionsOf(ctx context.Context, procverID uuid.UUID) ([]models.RankedBaseVersion, error)
	ProcversOfBase(ctx context.Context, baseID uuid.UUID) ([]models.ProcessingVersion, error)
	AliasesOf(ctx context.Context, procverID uuid.UUID) ([]string, error)
	// ListDescriptions 返回所有处理版本名和别名
	ListDescriptions(ctx context.Context) ([]string, error)

	// 以下写操作在表锁下执行, 并发加载器不会创建重复版本
	GetOrCreateBase(ctx context.Context, desc string, notes *string) (*models.BaseProcessingVersion, bool, error)
	GetOrCreateProcver(ctx context.Context, desc string, notes *string) (*models.ProcessingVersion, bool, error)
	CreateAlias(ctx context.Context, alias string, procverID uuid.UUID) error
	AddBase(ctx context.Context, procverID, baseID uuid.UUID, priority int) error
}

type versionRepository struct {
	db *gorm.DB
	tm TransactionManager
}

var _ VersionRepository = (*versionRepository)(nil)

func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db, tm: NewTransactionManager(db)}
}

func takeOne[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.Take(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *versionRepository) FindProcverByID(ctx context.Context, id uuid.UUID) (*models.ProcessingVersion, error) {
	return takeOne[models.ProcessingVersion](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *versionRepository) FindProcverByDescription(ctx context.Context, desc string) (*models.ProcessingVersion, error) {
	return takeOne[models.ProcessingVersion](r.db.WithContext(ctx).Where("description = ?", desc))
}

func (r *versionRepository) FindAlias(ctx context.Context, alias string) (*models.ProcessingVersionAlias, error) {
	return takeOne[models.ProcessingVersionAlias](r.db.WithContext(ctx).Where("description = ?", alias))
}

func (r *versionRepository) FindBaseByID(ctx context.Context, id uuid.UUID) (*models.BaseProcessingVersion, error) {
	return takeOne[models.BaseProcessingVersion](r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *versionRepository) FindBaseByDescription(ctx context.Context, desc string) (*models.BaseProcessingVersion, error) {
	return takeOne[models.BaseProcessingVersion](r.db.WithContext(ctx).Where("description = ?", desc))
}

type rankedRow struct {
	ID          uuid.UUID
	Description *string
	Priority    int
}

func (r *versionRepository) BaseVersionsOf(ctx context.Context, procverID uuid.UUID) ([]models.RankedBaseVersion, error) {
	var rows []rankedRow
	err := r.db.WithContext(ctx).
		Table("base_procver_of_procver j").
		Select("j.base_procver_id AS id, b.description AS description, j.priority AS priority").
		Joins("LEFT JOIN base_processing_version b ON b.id = j.base_procver_id").
		Where("j.procver_id = ?", procverID).
		Order("j.priority DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query base versions of %s: %w", procverID, err)
	}
	out := make([]models.RankedBaseVersion, 0, len(rows))
	for _, row := range rows {
		if row.Description == nil {
			return nil, xerr.Wrapf(xerr.ErrVersionIntegrity,
				"processing version %s references missing base processing version %s", procverID, row.ID)
		}
		out = append(out, models.RankedBaseVersion{ID: row.ID, Description: *row.Description, Priority: row.Priority})
	}
	return out, nil
}

func (r *versionRepository) ProcversOfBase(ctx context.Context, baseID uuid.UUID) ([]models.ProcessingVersion, error) {
	var pvs []models.ProcessingVersion
	err := r.db.WithContext(ctx).
		Joins("JOIN base_procver_of_procver j ON j.procver_id = processing_version.id").
		Where("j.base_procver_id = ?", baseID).
		Order("processing_version.description").
		Find(&pvs).Error
	return pvs, err
}

func (r *versionRepository) AliasesOf(ctx context.Context, procverID uuid.UUID) ([]string, error) {
	var aliases []string
	err := r.db.WithContext(ctx).Model(&models.ProcessingVersionAlias{}).
		Where("procver_id = ?", procverID).
		Order("description").
		Pluck("description", &aliases).Error
	return aliases, err
}

func (r *versionRepository) ListDescriptions(ctx context.Context) ([]string, error) {
	var pvs, aliases []string
	if err := r.db.WithContext(ctx).Model(&models.ProcessingVersion{}).Pluck("description", &pvs).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.ProcessingVersionAlias{}).Pluck("description", &aliases).Error; err != nil {
		return nil, err
	}
	out := append(pvs, aliases...)
	sort.Strings(out)
	return out, nil
}

func getOrCreateBase(tx *gorm.DB, desc string, notes *string) (*models.BaseProcessingVersion, bool, error) {
	existing, err := takeOne[models.BaseProcessingVersion](tx.Where("description = ?", desc))
	if err != nil || existing != nil {
		return existing, false, err
	}
	bpv := &models.BaseProcessingVersion{ID: uuid.New(), Description: desc, Notes: notes}
	if err := tx.Create(bpv).Error; err != nil {
		return nil, false, err
	}
	return bpv, true, nil
}

func (r *versionRepository) GetOrCreateBase(ctx context.Context, desc string, notes *string) (*models.BaseProcessingVersion, bool, error) {
	var (
		out     *models.BaseProcessingVersion
		created bool
	)
	err := r.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := lockTables(tx, "SHARE ROW EXCLUSIVE", "base_processing_version"); err != nil {
			return err
		}
		var err error
		out, created, err = getOrCreateBase(tx, desc, notes)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("get or create base processing version %q: %w", desc, err)
	}
	return out, created, nil
}

func (r *versionRepository) GetOrCreateProcver(ctx context.Context, desc string, notes *string) (*models.ProcessingVersion, bool, error) {
	var (
		out     *models.ProcessingVersion
		created bool
	)
	err := r.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := lockTables(tx, "SHARE ROW EXCLUSIVE",
			"processing_version", "base_processing_version", "base_procver_of_procver"); err != nil {
			return err
		}
		existing, err := takeOne[models.ProcessingVersion](tx.Where("description = ?", desc))
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		pv := &models.ProcessingVersion{ID: uuid.New(), Description: desc, Notes: notes}
		if err := tx.Create(pv).Error; err != nil {
			return err
		}
		bpv, _, err := getOrCreateBase(tx, desc, notes)
		if err != nil {
			return err
		}
		link := &models.BaseProcverOfProcver{ProcverID: pv.ID, BaseProcverID: bpv.ID, Priority: 0}
		if err := tx.Create(link).Error; err != nil {
			return err
		}
		out, created = pv, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get or create processing version %q: %w", desc, err)
	}
	return out, created, nil
}

func (r *versionRepository) CreateAlias(ctx context.Context, alias string, procverID uuid.UUID) error {
	return r.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := lockTables(tx, "SHARE ROW EXCLUSIVE", "processing_version", "processing_version_alias"); err != nil {
			return err
		}
		shadow, err := takeOne[models.ProcessingVersion](tx.Where("description = ?", alias))
		if err != nil {
			return err
		}
		if shadow != nil {
			return xerr.Wrapf(xerr.ErrAliasConflict, "alias %q is already a processing version", alias)
		}
		existing, err := takeOne[models.ProcessingVersionAlias](tx.Where("description = ?", alias))
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.ProcverID == procverID {
				return nil
			}
			return xerr.Wrapf(xerr.ErrAliasConflict, "alias %q already points to %s", alias, existing.ProcverID)
		}
		return tx.Create(&models.ProcessingVersionAlias{Description: alias, ProcverID: procverID}).Error
	})
}

func (r *versionRepository) AddBase(ctx context.Context, procverID, baseID uuid.UUID, priority int) error {
	return r.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := lockTables(tx, "SHARE ROW EXCLUSIVE", "base_procver_of_procver"); err != nil {
			return err
		}
		var links []models.BaseProcverOfProcver
		if err := tx.Where("procver_id = ?", procverID).Find(&links).Error; err != nil {
			return err
		}
		for _, l := range links {
			if l.BaseProcverID == baseID {
				return xerr.Wrapf(xerr.ErrDuplicatePriority,
					"base processing version %s is already in %s at priority %d", baseID, procverID, l.Priority)
			}
			if l.Priority == priority {
				return xerr.Wrapf(xerr.ErrDuplicatePriority,
					"priority %d of %s is already taken by %s", priority, procverID, l.BaseProcverID)
			}
		}
		return tx.Create(&models.BaseProcverOfProcver{ProcverID: procverID, BaseProcverID: baseID, Priority: priority}).Error
	})
}
