package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/handlers"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories/memrepo"
	"github.com/3Eeeecho/go-fastdb/internal/services/export"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/3Eeeecho/go-fastdb/internal/services/search"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	queue string
	body  []byte
}

func (p *fakePublisher) Publish(queueName string, body []byte) error {
	p.queue, p.body = queueName, body
	return nil
}

type fakeExport struct {
	req       ltcv.HotRequest
	snapshots map[string][]byte
}

func (e *fakeExport) ExportHotLtcvs(_ context.Context, req ltcv.HotRequest) (*export.Result, error) {
	e.req = req
	key := export.Key("hot", req.Procver, 60100)
	e.snapshots[key] = []byte("snapshot")
	return &export.Result{Bucket: "fastdb", Key: key, Objects: 2, MJDNow: 60100}, nil
}

func (e *fakeExport) OpenSnapshot(_ context.Context, procver string, mjdNow float64) (*export.Snapshot, error) {
	key := export.Key("hot", procver, mjdNow)
	data, ok := e.snapshots[key]
	if !ok {
		return nil, xerr.Wrapf(xerr.ErrNoSnapshot, "%s", key)
	}
	return &export.Snapshot{Key: key, Size: int64(len(data)), Reader: io.NopCloser(bytes.NewReader(data))}, nil
}

func (e *fakeExport) RemoveSnapshot(_ context.Context, procver string, mjdNow float64) error {
	delete(e.snapshots, export.Key("hot", procver, mjdNow))
	return nil
}

type fixture struct {
	engine *gin.Engine
	pub    *fakePublisher
	export *fakeExport
}

// newFixture 处理版本 pv1 下两个对象, 各有一次 r 波段探测
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := memrepo.New()
	versions := versioning.NewService(store, nil, 0)
	_, err := versions.GetOrCreateProcessingVersion(ctx, "pv1")
	require.NoError(t, err)
	base, err := versions.GetOrCreateBaseVersion(ctx, "pv1")
	require.NoError(t, err)

	for id := int64(1); id <= 2; id++ {
		store.PutObjects(models.DiaObject{DiaObjectID: id, BaseProcverID: base, RootID: uuid.New(), RA: 42, Dec: 13 + float64(id-1)})
		store.PutSources(models.DiaSource{Photometry: models.Photometry{
			DiaObjectID: id, Visit: 10 + id, BaseProcverID: base,
			MidpointMJDTAI: 60010, Band: "r", PSFFlux: 1000, PSFFluxErr: 10,
		}})
	}

	qc := config.QueryConfig{Timeout: time.Minute, Zeropoint: 31.4}
	now := astro.TimeFromMJD(60100)
	ltcvs := ltcv.NewService(versions, store, qc, func() time.Time { return now })
	pub := &fakePublisher{}
	exp := &fakeExport{snapshots: map[string][]byte{}}
	h := Handlers{
		Version: handlers.NewVersionHandler(versions),
		Ltcv:    handlers.NewLtcvHandler(ltcvs),
		Search:  handlers.NewSearchHandler(search.NewService(versions, store, qc)),
		Job:     handlers.NewJobHandler(ingest.NewQueue(versions, pub, ""), exp),
	}
	return &fixture{engine: InitRouter(h, &config.Config{}), pub: pub, export: exp}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestPingAndMetrics(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fastdb_http_requests_total")

	w, env := f.do(t, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.NotFoundCode, env.Code)
}

func TestVersions(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/procvers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xerr.SuccessCode, env.Code)
	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Contains(t, names, "pv1")

	w, env = f.do(t, http.MethodGet, "/api/v1/procver/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.UnknownVersionCode, env.Code)
	assert.Contains(t, env.Message, "nope")

	w, _ = f.do(t, http.MethodPost, "/api/v1/baseprocver", map[string]string{"description": "bpv2"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodPost, "/api/v1/procver/pv1/base", map[string]any{"base": "bpv2", "priority": 5})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = f.do(t, http.MethodPost, "/api/v1/procver/pv1/base", map[string]any{"base": "bpv2", "priority": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.DuplicatePriorityCode, env.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/procver/pv1/alias", map[string]string{"alias": "latest"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = f.do(t, http.MethodGet, "/api/v1/procver/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info versioning.ProcverInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "pv1", info.Description)
	assert.Equal(t, []string{"latest"}, info.Aliases)
	assert.Equal(t, []string{"bpv2", "pv1"}, info.BaseProcvers)

	w, _ = f.do(t, http.MethodPost, "/api/v1/procver", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLightcurves(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/ltcv/pv1/1?which=detections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cols struct {
		MJD  []float64 `json:"mjd"`
		Band []string  `json:"band"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cols))
	assert.Equal(t, []float64{60010}, cols.MJD)
	assert.Equal(t, []string{"r"}, cols.Band)

	w, env = f.do(t, http.MethodGet, "/api/v1/ltcv/pv1/1?which=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.UnknownWhichCode, env.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/ltcv/pv1/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.UnknownObjectCode, env.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/ltcv/pv1/1?mjd_now=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.InvalidParamsCode, env.Code)

	body := json.RawMessage(`{"objids": [1, "2"], "which": "detections"}`)
	w, env = f.do(t, http.MethodPost, "/api/v1/ltcv/pv1", body)
	require.Equal(t, http.StatusOK, w.Code)
	var many struct {
		Lightcurves map[string]json.RawMessage `json:"lightcurves"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &many))
	assert.Len(t, many.Lightcurves, 2)
	assert.Contains(t, many.Lightcurves, "1")

	w, env = f.do(t, http.MethodGet, "/api/v1/count/object/pv1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count": 2}`, string(env.Data))

	w, _ = f.do(t, http.MethodGet, "/api/v1/count/things/pv1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 不存在的对象直接略过
	w, env = f.do(t, http.MethodPost, "/api/v1/objectinfo/pv1", json.RawMessage(`{"objids": ["2", 999]}`))
	require.Equal(t, http.StatusOK, w.Code)
	var infos []struct {
		DiaObjectID string  `json:"diaobjectid"`
		Dec         float64 `json:"dec"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "2", infos[0].DiaObjectID)
	assert.Equal(t, 14.0, infos[0].Dec)

	w, env = f.do(t, http.MethodPost, "/api/v1/objectinfo/pv1", json.RawMessage(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.InvalidParamsCode, env.Code)
}

func TestObjectSearch(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/v1/objectsearch/pv1",
		map[string]any{"ra": 42, "dec": 13, "radius": 5, "just_objids": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"diaobjectid": ["1"]}`, string(env.Data))

	w, env = f.do(t, http.MethodPost, "/api/v1/objectsearch/pv1", map[string]any{"brightest": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.UnknownFilterCode, env.Code)
	assert.Contains(t, env.Message, "brightest")

	w, env = f.do(t, http.MethodPost, "/api/v1/objectsearch/pv1", map[string]any{"window_t0": 60020, "window_t1": 60010})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.InconsistentFilterCode, env.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/objectsearch/pv9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.UnknownVersionCode, env.Code)
}

func TestJobs(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/v1/ingest", map[string]string{"collection": "alerts", "base_procver": "pv1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, ingest.DefaultQueue, f.pub.queue)
	var task models.IngestTask
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, "alerts", task.Collection)

	w, env = f.do(t, http.MethodPost, "/api/v1/ingest", map[string]string{"collection": "alerts", "base_procver": "bpv9"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.UnknownVersionCode, env.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/ingest", map[string]string{"base_procver": "pv1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/export/hot",
		map[string]any{"processing_version": "pv1", "detected_in_last_days": 7, "return_format": "table"})
	require.Equal(t, http.StatusOK, w.Code)
	var res export.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "hot/pv1/60100.00000.json.gz", res.Key)
	assert.Equal(t, ltcv.FormatTable, f.export.req.Format)
	require.NotNil(t, f.export.req.DetectedInLastDays)
	assert.Equal(t, 7.0, *f.export.req.DetectedInLastDays)

	w, env = f.do(t, http.MethodPost, "/api/v1/export/hot", map[string]any{"processing_version": "pv1", "return_format": "csv"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.UnsupportedFormatCode, env.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/export/hot/pv1/60100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "60100.00000.json.gz")
	assert.Equal(t, "snapshot", w.Body.String())

	w, _ = f.do(t, http.MethodDelete, "/api/v1/export/hot/pv1/60100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = f.do(t, http.MethodGet, "/api/v1/export/hot/pv1/60100", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerr.NotFoundCode, env.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/export/hot/pv1/soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, xerr.InvalidParamsCode, env.Code)
}
