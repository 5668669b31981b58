package search

import (
	"encoding/json"
	"strconv"

	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/google/uuid"
)

// Row 检索结果中的一行, 最后一次强制测光可能为空
type Row struct {
	DiaObjectID       int64     `json:"diaobjectid,string"`
	RootID            uuid.UUID `json:"rootid"`
	RA                float64   `json:"ra"`
	Dec               float64   `json:"dec"`
	NumDetInWindow    *int      `json:"numdetinwindow"`
	NumDet            int       `json:"numdet"`
	FirstDetMJD       float64   `json:"firstdetmjd"`
	FirstDetBand      string    `json:"firstdetband"`
	FirstDetFlux      float64   `json:"firstdetflux"`
	FirstDetFluxErr   float64   `json:"firstdetfluxerr"`
	LastDetMJD        float64   `json:"lastdetmjd"`
	LastDetBand       string    `json:"lastdetband"`
	LastDetFlux       float64   `json:"lastdetflux"`
	LastDetFluxErr    float64   `json:"lastdetfluxerr"`
	MaxDetMJD         float64   `json:"maxdetmjd"`
	MaxDetBand        string    `json:"maxdetband"`
	MaxDetFlux        float64   `json:"maxdetflux"`
	MaxDetFluxErr     float64   `json:"maxdetfluxerr"`
	LastForcedMJD     *float64  `json:"lastforcedmjd"`
	LastForcedBand    *string   `json:"lastforcedband"`
	LastForcedFlux    *float64  `json:"lastforcedflux"`
	LastForcedFluxErr *float64  `json:"lastforcedfluxerr"`
}

func rowOf(c Candidate) Row {
	r := Row{
		DiaObjectID:     c.DiaObjectID,
		RootID:          c.RootID,
		RA:              c.RA,
		Dec:             c.Dec,
		NumDetInWindow:  c.NumDetInWindow,
		NumDet:          c.NumDet,
		FirstDetMJD:     c.First.MJD,
		FirstDetBand:    c.First.Band,
		FirstDetFlux:    c.First.Flux,
		FirstDetFluxErr: c.First.FluxErr,
		LastDetMJD:      c.Last.MJD,
		LastDetBand:     c.Last.Band,
		LastDetFlux:     c.Last.Flux,
		LastDetFluxErr:  c.Last.FluxErr,
		MaxDetMJD:       c.Max.MJD,
		MaxDetBand:      c.Max.Band,
		MaxDetFlux:      c.Max.Flux,
		MaxDetFluxErr:   c.Max.FluxErr,
	}
	if lf := c.LastForced; lf != nil {
		r.LastForcedMJD = &lf.MJD
		r.LastForcedBand = &lf.Band
		r.LastForcedFlux = &lf.Flux
		r.LastForcedFluxErr = &lf.FluxErr
	}
	return r
}

// Result 按 diaobjectid 排序
type Result struct {
	Rows       []Row       `json:"-"`
	Format     ltcv.Format `json:"-"`
	JustObjIDs bool        `json:"-"`
}

type columns struct {
	DiaObjectID       []string    `json:"diaobjectid"`
	RootID            []uuid.UUID `json:"rootid"`
	RA                []float64   `json:"ra"`
	Dec               []float64   `json:"dec"`
	NumDetInWindow    []*int      `json:"numdetinwindow"`
	NumDet            []int       `json:"numdet"`
	FirstDetMJD       []float64   `json:"firstdetmjd"`
	FirstDetBand      []string    `json:"firstdetband"`
	FirstDetFlux      []float64   `json:"firstdetflux"`
	FirstDetFluxErr   []float64   `json:"firstdetfluxerr"`
	LastDetMJD        []float64   `json:"lastdetmjd"`
	LastDetBand       []string    `json:"lastdetband"`
	LastDetFlux       []float64   `json:"lastdetflux"`
	LastDetFluxErr    []float64   `json:"lastdetfluxerr"`
	MaxDetMJD         []float64   `json:"maxdetmjd"`
	MaxDetBand        []string    `json:"maxdetband"`
	MaxDetFlux        []float64   `json:"maxdetflux"`
	MaxDetFluxErr     []float64   `json:"maxdetfluxerr"`
	LastForcedMJD     []*float64  `json:"lastforcedmjd"`
	LastForcedBand    []*string   `json:"lastforcedband"`
	LastForcedFlux    []*float64  `json:"lastforcedflux"`
	LastForcedFluxErr []*float64  `json:"lastforcedfluxerr"`
}

func (r Result) Len() int { return len(r.Rows) }

// ObjectIDs 结果中的 diaobjectid, 已转为字符串
func (r Result) ObjectIDs() []string {
	ids := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		ids[i] = strconv.FormatInt(row.DiaObjectID, 10)
	}
	return ids
}

func (r Result) columns() columns {
	n := len(r.Rows)
	c := columns{
		DiaObjectID: r.ObjectIDs(), RootID: make([]uuid.UUID, 0, n),
		RA: make([]float64, 0, n), Dec: make([]float64, 0, n),
		NumDetInWindow: make([]*int, 0, n), NumDet: make([]int, 0, n),
		FirstDetMJD: make([]float64, 0, n), FirstDetBand: make([]string, 0, n),
		FirstDetFlux: make([]float64, 0, n), FirstDetFluxErr: make([]float64, 0, n),
		LastDetMJD: make([]float64, 0, n), LastDetBand: make([]string, 0, n),
		LastDetFlux: make([]float64, 0, n), LastDetFluxErr: make([]float64, 0, n),
		MaxDetMJD: make([]float64, 0, n), MaxDetBand: make([]string, 0, n),
		MaxDetFlux: make([]float64, 0, n), MaxDetFluxErr: make([]float64, 0, n),
		LastForcedMJD: make([]*float64, 0, n), LastForcedBand: make([]*string, 0, n),
		LastForcedFlux: make([]*float64, 0, n), LastForcedFluxErr: make([]*float64, 0, n),
	}
	for _, row := range r.Rows {
		c.RootID = append(c.RootID, row.RootID)
		c.RA = append(c.RA, row.RA)
		c.Dec = append(c.Dec, row.Dec)
		c.NumDetInWindow = append(c.NumDetInWindow, row.NumDetInWindow)
		c.NumDet = append(c.NumDet, row.NumDet)
		c.FirstDetMJD = append(c.FirstDetMJD, row.FirstDetMJD)
		c.FirstDetBand = append(c.FirstDetBand, row.FirstDetBand)
		c.FirstDetFlux = append(c.FirstDetFlux, row.FirstDetFlux)
		c.FirstDetFluxErr = append(c.FirstDetFluxErr, row.FirstDetFluxErr)
		c.LastDetMJD = append(c.LastDetMJD, row.LastDetMJD)
		c.LastDetBand = append(c.LastDetBand, row.LastDetBand)
		c.LastDetFlux = append(c.LastDetFlux, row.LastDetFlux)
		c.LastDetFluxErr = append(c.LastDetFluxErr, row.LastDetFluxErr)
		c.MaxDetMJD = append(c.MaxDetMJD, row.MaxDetMJD)
		c.MaxDetBand = append(c.MaxDetBand, row.MaxDetBand)
		c.MaxDetFlux = append(c.MaxDetFlux, row.MaxDetFlux)
		c.MaxDetFluxErr = append(c.MaxDetFluxErr, row.MaxDetFluxErr)
		c.LastForcedMJD = append(c.LastForcedMJD, row.LastForcedMJD)
		c.LastForcedBand = append(c.LastForcedBand, row.LastForcedBand)
		c.LastForcedFlux = append(c.LastForcedFlux, row.LastForcedFlux)
		c.LastForcedFluxErr = append(c.LastForcedFluxErr, row.LastForcedFluxErr)
	}
	return c
}

type idRow struct {
	DiaObjectID string `json:"diaobjectid"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.JustObjIDs && r.Format == ltcv.FormatTable:
		rows := make([]idRow, 0, len(r.Rows))
		for _, id := range r.ObjectIDs() {
			rows = append(rows, idRow{DiaObjectID: id})
		}
		return json.Marshal(rows)
	case r.JustObjIDs:
		return json.Marshal(map[string][]string{"diaobjectid": r.ObjectIDs()})
	case r.Format == ltcv.FormatTable:
		rows := r.Rows
		if rows == nil {
			rows = []Row{}
		}
		return json.Marshal(rows)
	}
	return json.Marshal(r.columns())
}
