package ltcv

import (
	"encoding/json"
	"strings"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/google/uuid"
)

type Which string

const (
	WhichDetections Which = "detections"
	WhichForced     Which = "forced"
	WhichPatch      Which = "patch"
)

// ParseWhich 空字符串取默认值 patch
func ParseWhich(s string) (Which, error) {
	switch w := Which(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WhichPatch, nil
	case WhichDetections, WhichForced, WhichPatch:
		return w, nil
	}
	return "", xerr.NewCodeError(xerr.UnknownWhichCode,
		xerr.Wrapf(xerr.ErrInvalidParams, "which must be detections, forced or patch, not %q", s))
}

// Format 输出形式: json 为按列的映射, table 为按行的记录
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatTable:
		return f, nil
	case "pandas":
		return FormatTable, nil
	}
	return "", xerr.NewCodeError(xerr.UnsupportedFormatCode,
		xerr.Wrapf(xerr.ErrInvalidParams, "format must be json or table, not %q", s))
}

// Point 光变曲线上的一个测光点
type Point struct {
	Visit       int64   `json:"visit"`
	MJD         float64 `json:"mjd"`
	Band        string  `json:"band"`
	Flux        float64 `json:"flux"`
	FluxErr     float64 `json:"fluxerr"`
	IsDet       bool    `json:"isdet"`
	IsPatch     bool    `json:"ispatch"`
	BaseProcver string  `json:"base_procver,omitempty"`

	baseProcverID uuid.UUID
}

// Lightcurve 已按 (mjd, band) 排序的点序列, 序列化时按 Format 输出
type Lightcurve struct {
	Points             []Point `json:"-"`
	Which              Which   `json:"-"`
	Format             Format  `json:"-"`
	IncludeBaseProcver bool    `json:"-"`
}

type columns struct {
	Visit       []int64   `json:"visit"`
	MJD         []float64 `json:"mjd"`
	Band        []string  `json:"band"`
	Flux        []float64 `json:"flux"`
	FluxErr     []float64 `json:"fluxerr"`
	IsDet       []bool    `json:"isdet"`
	IsPatch     []bool    `json:"ispatch,omitempty"`
	BaseProcver []string  `json:"base_procver,omitempty"`
}

type row struct {
	Visit       int64   `json:"visit"`
	MJD         float64 `json:"mjd"`
	Band        string  `json:"band"`
	Flux        float64 `json:"flux"`
	FluxErr     float64 `json:"fluxerr"`
	IsDet       bool    `json:"isdet"`
	IsPatch     *bool   `json:"ispatch,omitempty"`
	BaseProcver string  `json:"base_procver,omitempty"`
}

// Len 点的数量
func (l Lightcurve) Len() int { return len(l.Points) }

// Columns 按列展开, ispatch 仅在 patch 模式下出现
func (l Lightcurve) Columns() any {
	n := len(l.Points)
	c := columns{
		Visit:   make([]int64, 0, n),
		MJD:     make([]float64, 0, n),
		Band:    make([]string, 0, n),
		Flux:    make([]float64, 0, n),
		FluxErr: make([]float64, 0, n),
		IsDet:   make([]bool, 0, n),
	}
	for _, p := range l.Points {
		c.Visit = append(c.Visit, p.Visit)
		c.MJD = append(c.MJD, p.MJD)
		c.Band = append(c.Band, p.Band)
		c.Flux = append(c.Flux, p.Flux)
		c.FluxErr = append(c.FluxErr, p.FluxErr)
		c.IsDet = append(c.IsDet, p.IsDet)
		if l.Which == WhichPatch {
			c.IsPatch = append(c.IsPatch, p.IsPatch)
		}
		if l.IncludeBaseProcver {
			c.BaseProcver = append(c.BaseProcver, p.BaseProcver)
		}
	}
	return c
}

func (l Lightcurve) Rows() any {
	rows := make([]row, 0, len(l.Points))
	for _, p := range l.Points {
		r := row{Visit: p.Visit, MJD: p.MJD, Band: p.Band, Flux: p.Flux, FluxErr: p.FluxErr, IsDet: p.IsDet}
		if l.Which == WhichPatch {
			ispatch := p.IsPatch
			r.IsPatch = &ispatch
		}
		if l.IncludeBaseProcver {
			r.BaseProcver = p.BaseProcver
		}
		rows = append(rows, r)
	}
	return rows
}

func (l Lightcurve) MarshalJSON() ([]byte, error) {
	if l.Format == FormatTable {
		return json.Marshal(l.Rows())
	}
	return json.Marshal(l.Columns())
}
