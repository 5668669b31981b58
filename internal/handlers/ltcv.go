package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/gin-gonic/gin"
)

type LtcvHandler struct {
	ltcvs ltcv.Service
}

func NewLtcvHandler(ltcvs ltcv.Service) *LtcvHandler {
	return &LtcvHandler{ltcvs: ltcvs}
}

type manyLtcvRequest struct {
	ObjIDs             []objectID `json:"objids" binding:"required"`
	Which              string     `json:"which"`
	Bands              []string   `json:"bands"`
	MJDNow             *float64   `json:"mjd_now"`
	IncludeBaseProcver bool       `json:"include_base_procver"`
	ReturnFormat       string     `json:"return_format"`
}

type hotLtcvRequest struct {
	Procver            string   `json:"processing_version" binding:"required"`
	DetectedSinceMJD   *float64 `json:"detected_since_mjd"`
	DetectedInLastDays *float64 `json:"detected_in_last_days"`
	MJDNow             *float64 `json:"mjd_now"`
	SourcePatch        bool     `json:"source_patch"`
	IncludeHostInfo    bool     `json:"include_hostinfo"`
	ReturnFormat       string   `json:"return_format"`
}

func (r hotLtcvRequest) toService() (ltcv.HotRequest, error) {
	format, err := ltcv.ParseFormat(r.ReturnFormat)
	if err != nil {
		return ltcv.HotRequest{}, err
	}
	return ltcv.HotRequest{
		Procver:            r.Procver,
		DetectedSinceMJD:   r.DetectedSinceMJD,
		DetectedInLastDays: r.DetectedInLastDays,
		MJDNow:             r.MJDNow,
		SourcePatch:        r.SourcePatch,
		IncludeHostInfo:    r.IncludeHostInfo,
		Format:             format,
	}, nil
}

// Count
// @Summary 统计处理版本下的对象或测光数
// @Tags Lightcurve
// @Produce json
// @Param which path string true "object / source / forced"
// @Param procver path string true "处理版本"
// @Success 200 {object} xerr.Response "计数"
// @Failure 400 {object} xerr.Response "which 无效"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/count/{which}/{procver} [get]
func (h *LtcvHandler) Count(c *gin.Context) {
	n, err := h.ltcvs.Count(c.Request.Context(), c.Param("which"), c.Param("procver"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"count": n})
}

// ObjectLtcv
// @Summary 单个对象的光变曲线
// @Description objid 为整数时按 diaobjectid 查询, 为 UUID 时按 rootid 查询
// @Tags Lightcurve
// @Produce json
// @Param procver path string true "处理版本"
// @Param objid path string true "diaobjectid 或 rootid"
// @Param which query string false "detections / forced / patch" default(patch)
// @Param bands query string false "逗号分隔的波段"
// @Param format query string false "json / table" default(json)
// @Param mjd_now query number false "只返回该时刻之前的点"
// @Param include_base_procver query bool false "每个点附上来源基础版本"
// @Success 200 {object} xerr.Response "光变曲线"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "处理版本或对象不存在"
// @Failure 504 {object} xerr.Response "查询超时"
// @Router /api/v1/ltcv/{procver}/{objid} [get]
func (h *LtcvHandler) ObjectLtcv(c *gin.Context) {
	q, err := h.queryOf(c)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	lc, err := h.ltcvs.ObjectLtcv(c.Request.Context(), q, c.Param("objid"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", lc)
}

func (h *LtcvHandler) queryOf(c *gin.Context) (ltcv.Query, error) {
	q := ltcv.Query{Procver: c.Param("procver"), Bands: queryBands(c)}
	var err error
	if q.Which, err = ltcv.ParseWhich(c.Query("which")); err != nil {
		return q, err
	}
	if q.Format, err = ltcv.ParseFormat(c.Query("format")); err != nil {
		return q, err
	}
	if q.MJDNow, err = queryFloat(c, "mjd_now"); err != nil {
		return q, err
	}
	q.IncludeBaseProcver, err = queryBool(c, "include_base_procver")
	return q, err
}

// ManyObjectLtcvs
// @Summary 多个对象的光变曲线
// @Tags Lightcurve
// @Accept json
// @Produce json
// @Param procver path string true "处理版本"
// @Param request body manyLtcvRequest true "对象列表和查询条件"
// @Success 200 {object} xerr.Response{data=ltcv.ManyResult} "以 diaobjectid 为键的光变曲线"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/ltcv/{procver} [post]
func (h *LtcvHandler) ManyObjectLtcvs(c *gin.Context) {
	var req manyLtcvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "objids is required")
		return
	}
	which, err := ltcv.ParseWhich(req.Which)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	format, err := ltcv.ParseFormat(req.ReturnFormat)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	q := ltcv.Query{
		Procver:            c.Param("procver"),
		Which:              which,
		Bands:              req.Bands,
		Format:             format,
		MJDNow:             req.MJDNow,
		IncludeBaseProcver: req.IncludeBaseProcver,
	}
	res, err := h.ltcvs.ManyObjectLtcvs(c.Request.Context(), q, objectIDs(req.ObjIDs))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", res)
}

// HotLtcvs
// @Summary 最近有探测的对象的光变曲线
// @Description detected_since_mjd 与 detected_in_last_days 互斥, 都不给时回看 30 天
// @Tags Lightcurve
// @Accept json
// @Produce json
// @Param request body hotLtcvRequest true "查询条件"
// @Success 200 {object} xerr.Response{data=ltcv.HotResult} "光变曲线和对象信息"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/ltcv/hot [post]
func (h *LtcvHandler) HotLtcvs(c *gin.Context) {
	var body hotLtcvRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "processing_version is required")
		return
	}
	req, err := body.toService()
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	res, err := h.ltcvs.GetHotLtcvs(c.Request.Context(), req)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", res)
}

type objectInfoRequest struct {
	ObjIDs []objectID `json:"objids" binding:"required"`
}

// ObjectInfos
// @Summary 按优先级解析后的对象信息
// @Tags Lightcurve
// @Accept json
// @Produce json
// @Param procver path string true "处理版本"
// @Param request body objectInfoRequest true "diaobjectid 或 rootid 列表"
// @Success 200 {object} xerr.Response{data=[]ltcv.ObjectInfo} "对象信息"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/objectinfo/{procver} [post]
func (h *LtcvHandler) ObjectInfos(c *gin.Context) {
	var req objectInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "objids is required")
		return
	}
	infos, err := h.ltcvs.ObjectInfos(c.Request.Context(), c.Param("procver"), objectIDs(req.ObjIDs))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", infos)
}
