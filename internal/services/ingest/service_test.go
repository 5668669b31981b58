package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/repositories/memrepo"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaging struct {
	alerts map[string][]staging.Alert
	reads  int
	err    error
}

func (f *fakeStaging) Alerts(_ context.Context, collection string, after, cutoff time.Time) ([]staging.Alert, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	var out []staging.Alert
	for _, a := range f.alerts[collection] {
		if a.SaveTime.After(after) && !a.SaveTime.After(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStaging) Close(context.Context) error { return nil }

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func alert(save time.Duration, objID int64, ra, dec float64, visit int64, prvForced ...int64) staging.Alert {
	src := staging.DiaSource{
		DiaSourceID: objID*1000 + visit, DiaObjectID: objID, Visit: visit,
		Band: "r", MidpointMJDTAI: 60000 + float64(visit), RA: ra, Dec: dec, PSFFlux: 100, PSFFluxErr: 10,
	}
	var forced []staging.DiaForcedSource
	for _, v := range prvForced {
		forced = append(forced, staging.DiaForcedSource{
			DiaForcedSourceID: objID*1000 + v, DiaObjectID: objID, Visit: v,
			Band: "r", MidpointMJDTAI: 60000 + float64(v), RA: ra, Dec: dec, PSFFlux: 50, PSFFluxErr: 10,
		})
	}
	return staging.Alert{
		SaveTime: t0.Add(save),
		Msg: staging.Message{
			DiaObject:           staging.DiaObject{DiaObjectID: objID, RA: ra, Dec: dec},
			DiaSource:           src,
			PrvDiaForcedSources: forced,
		},
	}
}

type fixture struct {
	store    *memrepo.Store
	staging  *fakeStaging
	svc      Service
	versions versioning.Service
	base     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memrepo.New()
	versions := versioning.NewService(store, nil, 0)
	base, err := versions.GetOrCreateBaseVersion(context.Background(), "bpv1")
	require.NoError(t, err)
	st := &fakeStaging{alerts: map[string][]staging.Alert{}}
	now := t0.Add(24 * time.Hour)
	svc := NewService(versions, store, st, config.IngestConfig{ObjectMatchRadiusArcsec: 1}, func() time.Time { return now })
	return &fixture{store: store, staging: st, svc: svc, versions: versions, base: base}
}

func (f *fixture) run(t *testing.T, collection string) *Report {
	t.Helper()
	rep, err := f.svc.Run(context.Background(), Request{Collection: collection, BaseProcver: "bpv1"})
	require.NoError(t, err)
	return rep
}

func (f *fixture) objects(t *testing.T, ids ...int64) map[int64]models.DiaObject {
	t.Helper()
	objs, err := f.store.Objects(context.Background(), repositories.ObjectQuery{DiaObjectIDs: ids, BaseProcverIDs: []uuid.UUID{f.base}})
	require.NoError(t, err)
	out := map[int64]models.DiaObject{}
	for _, o := range objs {
		out[o.DiaObjectID] = o
	}
	return out
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.staging.alerts["alerts"] = []staging.Alert{
		alert(time.Minute, 1, 10, 10, 1),
		alert(2*time.Minute, 1, 10, 10, 2, 1),
		alert(3*time.Minute, 2, 20, 20, 3),
	}

	rep := f.run(t, "alerts")
	assert.Equal(t, 3, rep.Alerts)
	assert.Equal(t, int64(2), rep.Objects)
	assert.Equal(t, int64(3), rep.Sources)
	assert.Equal(t, int64(1), rep.ForcedSources)
	assert.Equal(t, t0.Add(3*time.Minute), rep.To)
	roots, objects, sources, forced := f.store.Counts()

	// 水位已推进, 第二次什么都读不到
	rep = f.run(t, "alerts")
	assert.Equal(t, 0, rep.Alerts)

	// 同一批告警换个 collection 再导入一次, 自然键冲突的行都被跳过
	f.staging.alerts["replay"] = f.staging.alerts["alerts"]
	rep = f.run(t, "replay")
	assert.Equal(t, 3, rep.Alerts)
	assert.Zero(t, rep.Objects)
	assert.Zero(t, rep.Sources)
	assert.Zero(t, rep.ForcedSources)

	r2, o2, s2, f2 := f.store.Counts()
	assert.Equal(t, []int{roots, objects, sources, forced}, []int{r2, o2, s2, f2})
	assert.Equal(t, []int{2, 2, 3, 1}, []int{r2, o2, s2, f2})
}

func TestRun_RootAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 其他基础版本下已有同一 diaobjectid
	other, err := f.versions.GetOrCreateBaseVersion(ctx, "bpv0")
	require.NoError(t, err)
	known := uuid.New()
	f.store.PutObjects(models.DiaObject{DiaObjectID: 7, BaseProcverID: other, RootID: known, RA: 50, Dec: 50})
	// 本基础版本下 0.5 角秒外已有对象
	spatial := uuid.New()
	f.store.PutObjects(models.DiaObject{DiaObjectID: 100, BaseProcverID: f.base, RootID: spatial, RA: 30, Dec: 0})

	f.staging.alerts["alerts"] = []staging.Alert{
		alert(time.Minute, 7, 50, 50, 1),
		alert(time.Minute, 8, 30+0.5/3600, 0, 1),
		alert(time.Minute, 9, 40, 0, 1),
		alert(time.Minute, 10, 40, 0.5/3600, 1),
		alert(time.Minute, 11, 60, 0, 1),
	}
	rep := f.run(t, "alerts")
	assert.Equal(t, int64(2), rep.Roots)

	objs := f.objects(t, 7, 8, 9, 10, 11)
	require.Len(t, objs, 5)
	assert.Equal(t, known, objs[7].RootID)
	assert.Equal(t, spatial, objs[8].RootID)
	assert.Equal(t, objs[9].RootID, objs[10].RootID)
	assert.NotEqual(t, objs[9].RootID, objs[11].RootID)
	assert.NotEqual(t, uuid.Nil, objs[11].RootID)
}

func TestRun_FailedTransactionKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	f.staging.alerts["alerts"] = []staging.Alert{alert(time.Minute, 1, 10, 10, 1)}

	f.store.BeforeCommit = func() error { return errors.New("connection reset") }
	_, err := f.svc.Run(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1"})
	require.Error(t, err)
	assert.True(t, xerr.Is(err, xerr.ErrDatabaseError))
	_, objects, _, _ := f.store.Counts()
	assert.Zero(t, objects)
	_, ok, err := f.store.GetWatermark(context.Background(), "alerts", f.base)
	require.NoError(t, err)
	assert.False(t, ok)

	f.store.BeforeCommit = nil
	rep := f.run(t, "alerts")
	assert.Equal(t, 1, rep.Alerts)
	assert.Equal(t, int64(1), rep.Objects)
}

func TestRun_Cutoff(t *testing.T) {
	f := newFixture(t)
	f.staging.alerts["alerts"] = []staging.Alert{
		alert(time.Minute, 1, 10, 10, 1),
		alert(time.Hour, 2, 20, 20, 1),
	}
	rep, err := f.svc.Run(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1", Cutoff: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Alerts)

	rep = f.run(t, "alerts")
	assert.Equal(t, 1, rep.Alerts)
	assert.Equal(t, t0.Add(time.Hour), rep.To)
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), Request{Collection: "alerts", BaseProcver: "nope"})
	assert.True(t, xerr.Is(err, xerr.ErrUnknownVersion))

	_, err = f.svc.Run(context.Background(), Request{BaseProcver: "bpv1"})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))

	f.staging.err = xerr.ErrStagingError
	_, err = f.svc.Run(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1"})
	assert.True(t, xerr.Is(err, xerr.ErrStagingError))
}

// racingRepo 在本次插入对象之前, 先以另一个 root 写入同一 diaobjectid, 模拟并发导入抢先提交
type racingRepo struct {
	repositories.IngestRepository
	winner models.DiaObject
}

func (r racingRepo) WithinTransaction(ctx context.Context, fn func(tx repositories.IngestTx) error) error {
	return r.IngestRepository.WithinTransaction(ctx, func(tx repositories.IngestTx) error {
		return fn(racingTx{IngestTx: tx, winner: r.winner})
	})
}

type racingTx struct {
	repositories.IngestTx
	winner models.DiaObject
}

func (t racingTx) InsertObjects(ctx context.Context, objs []models.DiaObject) (int64, error) {
	if err := t.IngestTx.CreateRoots(ctx, []uuid.UUID{t.winner.RootID}); err != nil {
		return 0, err
	}
	if _, err := t.IngestTx.InsertObjects(ctx, []models.DiaObject{t.winner}); err != nil {
		return 0, err
	}
	return t.IngestTx.InsertObjects(ctx, objs)
}

func TestRun_ConcurrentInsertLeavesNoOrphanRoots(t *testing.T) {
	f := newFixture(t)
	winner := models.DiaObject{DiaObjectID: 1, BaseProcverID: f.base, RootID: uuid.New(), RA: 10, Dec: 10}
	now := t0.Add(24 * time.Hour)
	svc := NewService(f.versions, racingRepo{IngestRepository: f.store, winner: winner}, f.staging,
		config.IngestConfig{ObjectMatchRadiusArcsec: 1}, func() time.Time { return now })

	f.staging.alerts["alerts"] = []staging.Alert{
		alert(time.Minute, 1, 10, 10, 1),
		alert(time.Minute, 2, 20, 20, 1),
	}
	rep, err := svc.Run(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Objects)
	assert.Equal(t, int64(1), rep.Roots)
	assert.Equal(t, int64(2), rep.Sources)

	// 对象 1 保留抢先写入的 root, 本次为它新建的 root 被清理
	objs := f.objects(t, 1, 2)
	require.Len(t, objs, 2)
	assert.Equal(t, winner.RootID, objs[1].RootID)
	roots, objects, _, _ := f.store.Counts()
	assert.Equal(t, 2, roots)
	assert.Equal(t, 2, objects)
}
