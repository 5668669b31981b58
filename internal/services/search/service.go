package search

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/metrics"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/repositories"
	"github.com/3Eeeecho/go-fastdb/internal/services"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"go.uber.org/zap"
)

// DefaultZeropoint 星等与 nJy 流量换算的零点
const DefaultZeropoint = 31.4

// Request 一次对象检索
type Request struct {
	Procver string
	// ObjectProcver 决定对象位置取自哪个处理版本, 为空时与 Procver 相同
	ObjectProcver string
	Format        ltcv.Format
	JustObjIDs    bool
	MJDNow        *float64
	Filters       Filters
}

// ParseRequest 从请求体中拆出控制参数, 其余的都当作检索条件
func ParseRequest(procver string, body map[string]any) (Request, error) {
	req := Request{Procver: procver}
	raw := make(map[string]any, len(body))
	for k, v := range body {
		raw[k] = v
	}

	if v, ok := raw["object_processing_version"]; ok {
		delete(raw, "object_processing_version")
		if v != nil {
			s, ok := v.(string)
			if !ok {
				return Request{}, xerr.Wrapf(xerr.ErrInvalidParams, "object_processing_version must be a string")
			}
			req.ObjectProcver = s
		}
	}

	format := ""
	if v, ok := raw["return_format"]; ok {
		delete(raw, "return_format")
		if v != nil {
			s, ok := v.(string)
			if !ok {
				return Request{}, xerr.Wrapf(xerr.ErrInvalidParams, "return_format must be a string")
			}
			format = s
		}
	}
	f, err := ltcv.ParseFormat(format)
	if err != nil {
		return Request{}, err
	}
	req.Format = f

	if v, ok := raw["just_objids"]; ok {
		delete(raw, "just_objids")
		switch b := v.(type) {
		case nil:
		case bool:
			req.JustObjIDs = b
		default:
			return Request{}, xerr.Wrapf(xerr.ErrInvalidParams, "just_objids must be a boolean")
		}
	}

	if v, ok := raw["mjd_now"]; ok {
		delete(raw, "mjd_now")
		if v != nil {
			now, err := toFloat("mjd_now", v)
			if err != nil {
				return Request{}, err
			}
			req.MJDNow = &now
		}
	}

	if req.Filters, err = ParseFilters(raw); err != nil {
		return Request{}, err
	}
	return req, nil
}

type Service interface {
	Search(ctx context.Context, req Request) (*Result, error)
}

type service struct {
	versions versioning.Service
	repo     repositories.MeasurementRepository
	qc       config.QueryConfig
}

var _ Service = (*service)(nil)

func NewService(versions versioning.Service, repo repositories.MeasurementRepository, qc config.QueryConfig) Service {
	return &service{versions: versions, repo: repo, qc: qc}
}

func (s *service) Search(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("object_search", start, err) }()

	if req.Format == "" {
		req.Format = ltcv.FormatJSON
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	_, ranking, err := s.versions.Resolve(ctx, req.Procver)
	if err != nil {
		return nil, err
	}
	objRanking := ranking
	if req.ObjectProcver != "" {
		if _, objRanking, err = s.versions.Resolve(ctx, req.ObjectProcver); err != nil {
			return nil, err
		}
	}
	zeropoint := s.qc.Zeropoint
	if zeropoint == 0 {
		zeropoint = DefaultZeropoint
	}

	ctx, cancel := services.WithQueryTimeout(ctx, s.qc.Timeout)
	defer cancel()

	var out CandidateSet
	err = s.repo.ReadSnapshot(ctx, func(r repositories.MeasurementRepository) error {
		e := &env{
			repo:       r,
			ranking:    ranking,
			objRanking: objRanking,
			filters:    req.Filters.withMJDNow(req.MJDNow),
			mjdNow:     req.MJDNow,
			zeropoint:  zeropoint,
		}
		set := CandidateSet{All: true}
		for _, st := range pipeline {
			if err := ctx.Err(); err != nil {
				return err
			}
			next, err := st.run(ctx, e, set)
			if err != nil {
				return fmt.Errorf("%s: %w", st.name, err)
			}
			if !next.All && (set.All || next.Len() != set.Len()) {
				logger.Debug("search stage", zap.String("stage", st.name), zap.Int("candidates", next.Len()))
			}
			set = next
		}
		out = set
		return nil
	})
	if err != nil {
		err = services.QueryError(ctx, "object_search", err)
		logger.Warn("object search failed", zap.String("procver", req.Procver), zap.Stringer("filters", req.Filters), zap.Error(err))
		return nil, err
	}

	res = &Result{Rows: make([]Row, 0, out.Len()), Format: req.Format, JustObjIDs: req.JustObjIDs}
	for _, c := range out.Rows {
		res.Rows = append(res.Rows, rowOf(c))
	}
	logger.Info("object search", zap.String("procver", req.Procver), zap.Int("objects", res.Len()), zap.Duration("elapsed", time.Since(start)))
	return res, nil
}
