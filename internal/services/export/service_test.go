package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/storage"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLtcvs struct {
	ltcv.Service
	hot *ltcv.HotResult
	err error
	got ltcv.HotRequest
}

func (f *fakeLtcvs) GetHotLtcvs(_ context.Context, req ltcv.HotRequest) (*ltcv.HotResult, error) {
	f.got = req
	return f.hot, f.err
}

type memStorage struct {
	buckets map[string]map[string][]byte
	putErr  error
	getErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{buckets: map[string]map[string][]byte{}}
}

func (m *memStorage) Bucket() string { return "fastdb" }

func (m *memStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) (storage.PutObjectResult, error) {
	if m.putErr != nil {
		return storage.PutObjectResult{}, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.PutObjectResult{}, err
	}
	m.buckets[bucket][key] = data
	return storage.PutObjectResult{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) GetObject(_ context.Context, bucket, key string) (storage.GetObjectResult, error) {
	if m.getErr != nil {
		return storage.GetObjectResult{}, m.getErr
	}
	data, ok := m.buckets[bucket][key]
	if !ok {
		return storage.GetObjectResult{}, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrObjectNotFound)
	}
	return storage.GetObjectResult{Reader: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (m *memStorage) RemoveObject(_ context.Context, bucket, key string) error {
	delete(m.buckets[bucket], key)
	return nil
}

func (m *memStorage) IsBucketExist(_ context.Context, bucket string) (bool, error) {
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *memStorage) MakeBucket(_ context.Context, bucket string) error {
	m.buckets[bucket] = map[string][]byte{}
	return nil
}

func (m *memStorage) PreSignGetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "http://storage/" + bucket + "/" + key, nil
}

func hotResult() *ltcv.HotResult {
	return &ltcv.HotResult{
		MJDNow:           60056,
		DetectedSinceMJD: 60035,
		Objects:          []ltcv.ObjectInfo{{DiaObjectID: 1001, RA: 42, Dec: 13}},
		Lightcurves: map[int64]ltcv.Lightcurve{
			1001: {Points: []ltcv.Point{{Visit: 5, MJD: 60040, Band: "r", Flux: 10, FluxErr: 1}}, Which: ltcv.WhichForced, Format: ltcv.FormatJSON},
		},
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "hot/pv1/60056.50000.json.gz", Key("hot", "pv1", 60056.5))
	assert.Equal(t, "exports/hot/pv1/60056.00000.json.gz", Key("exports/hot/", "pv1", 60056))
}

func TestExportHotLtcvs(t *testing.T) {
	ltcvs := &fakeLtcvs{hot: hotResult()}
	store := newMemStorage()
	svc := NewService(ltcvs, store, "", time.Hour)

	res, err := svc.ExportHotLtcvs(context.Background(), ltcv.HotRequest{Procver: "pv1", SourcePatch: true})
	require.NoError(t, err)
	assert.True(t, ltcvs.got.SourcePatch)
	assert.Equal(t, "fastdb", res.Bucket)
	assert.Equal(t, "hot/pv1/60056.00000.json.gz", res.Key)
	assert.Equal(t, 1, res.Objects)
	assert.Contains(t, res.URL, res.Key)

	obj, err := store.GetObject(context.Background(), res.Bucket, res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.Size, obj.Size)
	zr, err := gzip.NewReader(obj.Reader)
	require.NoError(t, err)
	var snapshot struct {
		MJDNow      float64                      `json:"mjd_now"`
		Lightcurves map[string]map[string][]any `json:"lightcurves"`
	}
	require.NoError(t, json.NewDecoder(zr).Decode(&snapshot))
	assert.Equal(t, 60056.0, snapshot.MJDNow)
	assert.Equal(t, []any{60040.0}, snapshot.Lightcurves["1001"]["mjd"])
}

func TestExportHotLtcvs_Errors(t *testing.T) {
	svc := NewService(&fakeLtcvs{hot: hotResult()}, newMemStorage(), "hot", 0)
	_, err := svc.ExportHotLtcvs(context.Background(), ltcv.HotRequest{})
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))

	svc = NewService(&fakeLtcvs{err: xerr.ErrUnknownVersion}, newMemStorage(), "hot", 0)
	_, err = svc.ExportHotLtcvs(context.Background(), ltcv.HotRequest{Procver: "nope"})
	assert.True(t, xerr.Is(err, xerr.ErrUnknownVersion))

	store := newMemStorage()
	store.putErr = errors.New("bucket quota exceeded")
	svc = NewService(&fakeLtcvs{hot: hotResult()}, store, "hot", 0)
	_, err = svc.ExportHotLtcvs(context.Background(), ltcv.HotRequest{Procver: "pv1"})
	assert.Equal(t, xerr.StorageErrorCode, xerr.CodeOf(err))
}

func TestSnapshotOpenAndRemove(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()
	svc := NewService(&fakeLtcvs{hot: hotResult()}, store, "hot", 0)

	_, err := svc.OpenSnapshot(ctx, "pv1", 60056)
	assert.True(t, xerr.Is(err, xerr.ErrNoSnapshot))

	res, err := svc.ExportHotLtcvs(ctx, ltcv.HotRequest{Procver: "pv1"})
	require.NoError(t, err)

	snap, err := svc.OpenSnapshot(ctx, "pv1", res.MJDNow)
	require.NoError(t, err)
	assert.Equal(t, res.Key, snap.Key)
	assert.Equal(t, res.Size, snap.Size)
	zr, err := gzip.NewReader(snap.Reader)
	require.NoError(t, err)
	var decoded struct {
		MJDNow float64 `json:"mjd_now"`
	}
	require.NoError(t, json.NewDecoder(zr).Decode(&decoded))
	require.NoError(t, snap.Reader.Close())
	assert.Equal(t, 60056.0, decoded.MJDNow)

	require.NoError(t, svc.RemoveSnapshot(ctx, "pv1", res.MJDNow))
	_, err = svc.OpenSnapshot(ctx, "pv1", res.MJDNow)
	assert.Equal(t, xerr.NotFoundCode, xerr.CodeOf(err))
	// 重复删除不报错
	require.NoError(t, svc.RemoveSnapshot(ctx, "pv1", res.MJDNow))

	store.getErr = errors.New("connection refused")
	_, err = svc.OpenSnapshot(ctx, "pv1", res.MJDNow)
	assert.Equal(t, xerr.StorageErrorCode, xerr.CodeOf(err))

	_, err = svc.OpenSnapshot(ctx, "", res.MJDNow)
	assert.True(t, xerr.Is(err, xerr.ErrInvalidParams))
}
