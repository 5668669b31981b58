package staging

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/cenkalti/backoff/v4"
)

// Alert 暂存库中的一条告警, savetime 为写入暂存库的时间
type Alert struct {
	SaveTime time.Time `bson:"savetime"`
	Msg      Message   `bson:"msg"`
}

type Message struct {
	AlertID             int64             `bson:"alertId"`
	DiaObject           DiaObject         `bson:"diaObject"`
	DiaSource           DiaSource         `bson:"diaSource"`
	PrvDiaSources       []DiaSource       `bson:"prvDiaSources"`
	PrvDiaForcedSources []DiaForcedSource `bson:"prvDiaForcedSources"`
}

type DiaObject struct {
	DiaObjectID         int64    `bson:"diaObjectId"`
	RA                  float64  `bson:"ra"`
	Dec                 float64  `bson:"dec"`
	RAErr               *float64 `bson:"raErr"`
	DecErr              *float64 `bson:"decErr"`
	RADecCov            *float64 `bson:"ra_dec_Cov"`
	ValidityStartMJDTAI *float64 `bson:"validityStartMjdTai"`
	NearbyExtObj1       *int64   `bson:"nearbyExtObj1"`
	NearbyExtObj1Sep    *float64 `bson:"nearbyExtObj1Sep"`
	NearbyExtObj2       *int64   `bson:"nearbyExtObj2"`
	NearbyExtObj2Sep    *float64 `bson:"nearbyExtObj2Sep"`
	NearbyExtObj3       *int64   `bson:"nearbyExtObj3"`
	NearbyExtObj3Sep    *float64 `bson:"nearbyExtObj3Sep"`
}

type DiaSource struct {
	DiaSourceID    int64    `bson:"diaSourceId"`
	DiaObjectID    int64    `bson:"diaObjectId"`
	Visit          int64    `bson:"visit"`
	Detector       int      `bson:"detector"`
	Band           string   `bson:"band"`
	MidpointMJDTAI float64  `bson:"midpointMjdTai"`
	RA             float64  `bson:"ra"`
	Dec            float64  `bson:"dec"`
	PSFFlux        float64  `bson:"psfFlux"`
	PSFFluxErr     float64  `bson:"psfFluxErr"`
	SNR            *float64 `bson:"snr"`
}

type DiaForcedSource struct {
	DiaForcedSourceID int64   `bson:"diaForcedSourceId"`
	DiaObjectID       int64   `bson:"diaObjectId"`
	Visit             int64   `bson:"visit"`
	Detector          int     `bson:"detector"`
	Band              string  `bson:"band"`
	MidpointMJDTAI    float64 `bson:"midpointMjdTai"`
	RA                float64 `bson:"ra"`
	Dec               float64 `bson:"dec"`
	PSFFlux           float64 `bson:"psfFlux"`
	PSFFluxErr        float64 `bson:"psfFluxErr"`
}

// Store 告警暂存库的只读接口
type Store interface {
	// Alerts 返回 after < savetime <= cutoff 的告警, 按 savetime 升序
	Alerts(ctx context.Context, collection string, after, cutoff time.Time) ([]Alert, error)
	Close(ctx context.Context) error
}

// NewBackOff 暂存库连接和读取的重试策略
func NewBackOff(ctx context.Context, cfg config.IngestConfig) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if cfg.RetryMaxInterval > 0 {
		bo.MaxInterval = cfg.RetryMaxInterval
		if bo.InitialInterval > bo.MaxInterval {
			bo.InitialInterval = bo.MaxInterval
		}
	}
	if cfg.RetryMaxElapsed > 0 {
		bo.MaxElapsedTime = cfg.RetryMaxElapsed
	}
	var b backoff.BackOff = bo
	if cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, cfg.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}
