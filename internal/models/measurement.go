package models

import (
	"github.com/google/uuid"
)

// RootDiaObject 跨处理版本的天体持久身份
type RootDiaObject struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
}

func (RootDiaObject) TableName() string {
	return "root_diaobject"
}

// DiaObject 自然键为 (diaobjectid, base_procver_id), 只追加不修改
type DiaObject struct {
	DiaObjectID         int64     `gorm:"column:diaobjectid;primaryKey;autoIncrement:false" json:"diaobjectid"`
	BaseProcverID       uuid.UUID `gorm:"column:base_procver_id;type:uuid;primaryKey" json:"base_procver_id"`
	RootID              uuid.UUID `gorm:"column:rootid;type:uuid;not null;index" json:"rootid"`
	RA                  float64   `gorm:"column:ra;not null" json:"ra"`
	Dec                 float64   `gorm:"column:dec;not null" json:"dec"`
	RAErr               *float64  `gorm:"column:raerr" json:"raerr"`
	DecErr              *float64  `gorm:"column:decerr" json:"decerr"`
	RADecCov            *float64  `gorm:"column:ra_dec_cov" json:"ra_dec_cov"`
	ValidityStartMJDTAI *float64  `gorm:"column:validitystartmjdtai" json:"validitystartmjdtai"`
	NearbyExtObj1ID     *int64    `gorm:"column:nearbyextobj1id" json:"nearbyextobj1id"`
	NearbyExtObj1Sep    *float64  `gorm:"column:nearbyextobj1sep" json:"nearbyextobj1sep"`
	NearbyExtObj2ID     *int64    `gorm:"column:nearbyextobj2id" json:"nearbyextobj2id"`
	NearbyExtObj2Sep    *float64  `gorm:"column:nearbyextobj2sep" json:"nearbyextobj2sep"`
	NearbyExtObj3ID     *int64    `gorm:"column:nearbyextobj3id" json:"nearbyextobj3id"`
	NearbyExtObj3Sep    *float64  `gorm:"column:nearbyextobj3sep" json:"nearbyextobj3sep"`

	Root                  *RootDiaObject         `gorm:"foreignKey:RootID" json:"-"`
	BaseProcessingVersion *BaseProcessingVersion `gorm:"foreignKey:BaseProcverID" json:"-"`
}

func (DiaObject) TableName() string {
	return "diaobject"
}

// Photometry DiaSource 和 DiaForcedSource 共用的列
type Photometry struct {
	DiaObjectID    int64     `gorm:"column:diaobjectid;primaryKey;autoIncrement:false" json:"diaobjectid"`
	Visit          int64     `gorm:"column:visit;primaryKey;autoIncrement:false" json:"visit"`
	BaseProcverID  uuid.UUID `gorm:"column:base_procver_id;type:uuid;primaryKey" json:"base_procver_id"`
	Detector       int       `gorm:"column:detector;not null" json:"detector"`
	MidpointMJDTAI float64   `gorm:"column:midpointmjdtai;not null;index" json:"midpointmjdtai"`
	Band           string    `gorm:"column:band;type:char(1);not null" json:"band"`
	PSFFlux        float64   `gorm:"column:psfflux;not null" json:"psfflux"`
	PSFFluxErr     float64   `gorm:"column:psffluxerr;not null" json:"psffluxerr"`
	RA             float64   `gorm:"column:ra;not null" json:"ra"`
	Dec            float64   `gorm:"column:dec;not null" json:"dec"`
}

// DiaSource 探测
type DiaSource struct {
	Photometry
	DiaSourceID *int64   `gorm:"column:diasourceid" json:"diasourceid"`
	SNR         *float64 `gorm:"column:snr" json:"snr"`
}

func (DiaSource) TableName() string {
	return "diasource"
}

// DiaForcedSource 强制测光, 不管是否探测到都会测量
type DiaForcedSource struct {
	Photometry
	DiaForcedSourceID *int64 `gorm:"column:diaforcedsourceid" json:"diaforcedsourceid"`
}

func (DiaForcedSource) TableName() string {
	return "diaforcedsource"
}

// HostGalaxy 宿主星系, 通过 diaobject.nearbyextobj1id 关联
type HostGalaxy struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	BaseProcverID uuid.UUID `gorm:"column:base_procver_id;type:uuid;primaryKey" json:"base_procver_id"`
	StdColorUG    *float64  `gorm:"column:stdcolor_u_g" json:"stdcolor_u_g"`
	StdColorGR    *float64  `gorm:"column:stdcolor_g_r" json:"stdcolor_g_r"`
	StdColorRI    *float64  `gorm:"column:stdcolor_r_i" json:"stdcolor_r_i"`
	StdColorIZ    *float64  `gorm:"column:stdcolor_i_z" json:"stdcolor_i_z"`
	StdColorZY    *float64  `gorm:"column:stdcolor_z_y" json:"stdcolor_z_y"`
	PetroFluxR    *float64  `gorm:"column:petroflux_r" json:"petroflux_r"`
	PZMean        *float64  `gorm:"column:pzmean" json:"pzmean"`
	PZStd         *float64  `gorm:"column:pzstd" json:"pzstd"`
}

func (HostGalaxy) TableName() string {
	return "host_galaxy"
}
