package models

import (
	"time"

	"github.com/google/uuid"
)

// IngestWatermark 记录每个 (collection, base_procver) 已导入到的 savetime
type IngestWatermark struct {
	Collection    string    `gorm:"column:collection;type:text;primaryKey" json:"collection"`
	BaseProcverID uuid.UUID `gorm:"column:base_procver_id;type:uuid;primaryKey" json:"base_procver_id"`
	SaveTime      time.Time `gorm:"column:savetime;not null" json:"savetime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (IngestWatermark) TableName() string {
	return "ingest_watermark"
}

// IngestTask 通过消息队列投递的导入任务
type IngestTask struct {
	Collection            string    `json:"collection"`
	BaseProcessingVersion string    `json:"base_processing_version"`
	Cutoff                time.Time `json:"cutoff,omitempty"`
	RequestedAt           time.Time `json:"requested_at"`
}
