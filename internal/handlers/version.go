package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type VersionHandler struct {
	versions versioning.Service
}

func NewVersionHandler(versions versioning.Service) *VersionHandler {
	return &VersionHandler{versions: versions}
}

type createVersionRequest struct {
	Description string `json:"description" binding:"required"`
}

type createAliasRequest struct {
	Alias string `json:"alias" binding:"required"`
}

type addBaseRequest struct {
	Base     string `json:"base" binding:"required"`
	Priority int    `json:"priority"`
}

// ListVersions
// @Summary 列出所有处理版本
// @Description 返回所有处理版本的描述和别名, 已排序
// @Tags Version
// @Produce json
// @Success 200 {object} xerr.Response "处理版本列表"
// @Failure 500 {object} xerr.Response "内部服务器错误"
// @Router /api/v1/procvers [get]
func (h *VersionHandler) ListVersions(c *gin.Context) {
	names, err := h.versions.ListVersions(c.Request.Context())
	if err != nil {
		logger.Error("ListVersions: 获取处理版本失败", zap.Error(err))
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", names)
}

// DescribeProcver
// @Summary 处理版本详情
// @Description 返回处理版本的 id, 描述, 别名以及按优先级降序排列的基础版本
// @Tags Version
// @Produce json
// @Param procver path string true "处理版本名, 别名或 UUID"
// @Success 200 {object} xerr.Response{data=versioning.ProcverInfo} "处理版本详情"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/procver/{procver} [get]
func (h *VersionHandler) DescribeProcver(c *gin.Context) {
	info, err := h.versions.DescribeProcessingVersion(c.Request.Context(), c.Param("procver"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", info)
}

// DescribeBaseProcver
// @Summary 基础处理版本详情
// @Description 返回基础版本的 id, 描述以及包含它的处理版本
// @Tags Version
// @Produce json
// @Param procver path string true "基础版本名或 UUID"
// @Success 200 {object} xerr.Response{data=versioning.BaseProcverInfo} "基础版本详情"
// @Failure 404 {object} xerr.Response "基础版本不存在"
// @Router /api/v1/baseprocver/{procver} [get]
func (h *VersionHandler) DescribeBaseProcver(c *gin.Context) {
	info, err := h.versions.DescribeBaseProcessingVersion(c.Request.Context(), c.Param("procver"))
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", info)
}

// CreateProcver
// @Summary 获取或创建处理版本
// @Description 同名处理版本已存在时直接返回其 id
// @Tags Version
// @Accept json
// @Produce json
// @Param request body createVersionRequest true "处理版本描述"
// @Success 200 {object} xerr.Response "处理版本 id"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Router /api/v1/procver [post]
func (h *VersionHandler) CreateProcver(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "description is required")
		return
	}
	id, err := h.versions.GetOrCreateProcessingVersion(c.Request.Context(), req.Description)
	if err != nil {
		logger.Error("CreateProcver: 创建处理版本失败", zap.String("description", req.Description), zap.Error(err))
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"id": id, "description": req.Description})
}

// CreateBaseProcver
// @Summary 获取或创建基础处理版本
// @Tags Version
// @Accept json
// @Produce json
// @Param request body createVersionRequest true "基础版本描述"
// @Success 200 {object} xerr.Response "基础版本 id"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Router /api/v1/baseprocver [post]
func (h *VersionHandler) CreateBaseProcver(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "description is required")
		return
	}
	id, err := h.versions.GetOrCreateBaseVersion(c.Request.Context(), req.Description)
	if err != nil {
		logger.Error("CreateBaseProcver: 创建基础版本失败", zap.String("description", req.Description), zap.Error(err))
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"id": id, "description": req.Description})
}

// CreateAlias
// @Summary 给处理版本添加别名
// @Tags Version
// @Accept json
// @Produce json
// @Param procver path string true "处理版本"
// @Param request body createAliasRequest true "别名"
// @Success 200 {object} xerr.Response "别名已创建"
// @Failure 400 {object} xerr.Response "别名与已有处理版本重名"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Router /api/v1/procver/{procver}/alias [post]
func (h *VersionHandler) CreateAlias(c *gin.Context) {
	var req createAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "alias is required")
		return
	}
	procver := c.Param("procver")
	if err := h.versions.CreateAlias(c.Request.Context(), req.Alias, procver); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"alias": req.Alias, "procver": procver})
}

// AddBase
// @Summary 把基础版本加入处理版本
// @Description 同一处理版本中优先级不能重复
// @Tags Version
// @Accept json
// @Produce json
// @Param procver path string true "处理版本"
// @Param request body addBaseRequest true "基础版本和优先级"
// @Success 200 {object} xerr.Response "已加入"
// @Failure 400 {object} xerr.Response "优先级重复"
// @Failure 404 {object} xerr.Response "版本不存在"
// @Router /api/v1/procver/{procver}/base [post]
func (h *VersionHandler) AddBase(c *gin.Context) {
	var req addBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "base is required")
		return
	}
	procver := c.Param("procver")
	if err := h.versions.AddBaseVersion(c.Request.Context(), procver, req.Base, req.Priority); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", gin.H{"procver": procver, "base": req.Base, "priority": req.Priority})
}
