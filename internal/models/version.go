package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseProcessingVersion 一次数据处理流水线运行产出的、自洽的一组测量
type BaseProcessingVersion struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Description string    `gorm:"type:text;uniqueIndex;not null" json:"description"`
	Notes       *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BaseProcessingVersion) TableName() string {
	return "base_processing_version"
}

// ProcessingVersion 由若干 BaseProcessingVersion 按优先级组成的查询视图
type ProcessingVersion struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Description string    `gorm:"type:text;uniqueIndex;not null" json:"description"`
	Notes       *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProcessingVersion) TableName() string {
	return "processing_version"
}

// ProcessingVersionAlias 处理版本的别名
type ProcessingVersionAlias struct {
	Description string    `gorm:"type:text;primaryKey" json:"description"`
	ProcverID   uuid.UUID `gorm:"type:uuid;not null;index" json:"procver_id"`

	ProcessingVersion *ProcessingVersion `gorm:"foreignKey:ProcverID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ProcessingVersionAlias) TableName() string {
	return "processing_version_alias"
}

// BaseProcverOfProcver 优先级关联表, 同一 procver 下 priority 唯一, 数值大者优先
type BaseProcverOfProcver struct {
	ProcverID     uuid.UUID `gorm:"type:uuid;primaryKey;uniqueIndex:idx_procver_priority,priority:1" json:"procver_id"`
	BaseProcverID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"base_procver_id"`
	Priority      int       `gorm:"not null;uniqueIndex:idx_procver_priority,priority:2" json:"priority"`

	ProcessingVersion     *ProcessingVersion     `gorm:"foreignKey:ProcverID;constraint:OnDelete:CASCADE" json:"-"`
	BaseProcessingVersion *BaseProcessingVersion `gorm:"foreignKey:BaseProcverID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (BaseProcverOfProcver) TableName() string {
	return "base_procver_of_procver"
}

// RankedBaseVersion 处理版本解析结果中的一项, 按 Priority 降序排列
type RankedBaseVersion struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
}
