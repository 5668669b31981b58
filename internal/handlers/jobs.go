package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/export"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobHandler 导入和导出这类耗时任务
type JobHandler struct {
	queue  ingest.Queue
	export export.Service
}

func NewJobHandler(queue ingest.Queue, exp export.Service) *JobHandler {
	return &JobHandler{queue: queue, export: exp}
}

type ingestRequest struct {
	Collection  string     `json:"collection" binding:"required"`
	BaseProcver string     `json:"base_procver" binding:"required"`
	Cutoff      *time.Time `json:"cutoff"`
}

// EnqueueIngest
// @Summary 提交导入任务
// @Description 任务进入消息队列, 由后台 worker 从暂存库读取告警并写入
// @Tags Ingest
// @Accept json
// @Produce json
// @Param request body ingestRequest true "collection 和目标基础版本"
// @Success 202 {object} xerr.Response{data=models.IngestTask} "任务已入队"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "基础版本不存在"
// @Failure 500 {object} xerr.Response "消息队列不可用"
// @Router /api/v1/ingest [post]
func (h *JobHandler) EnqueueIngest(c *gin.Context) {
	var body ingestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "collection and base_procver are required")
		return
	}
	req := ingest.Request{Collection: body.Collection, BaseProcver: body.BaseProcver}
	if body.Cutoff != nil {
		req.Cutoff = *body.Cutoff
	}
	task, err := h.queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		logger.Error("EnqueueIngest: 导入任务入队失败", zap.String("collection", body.Collection), zap.Error(err))
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusAccepted, "导入任务已入队", task)
}

// ExportHot
// @Summary 导出最近有探测的光变曲线快照
// @Description 以 gzip 压缩的 JSON 写入对象存储
// @Tags Export
// @Accept json
// @Produce json
// @Param request body hotLtcvRequest true "查询条件"
// @Success 200 {object} xerr.Response{data=export.Result} "快照位置"
// @Failure 400 {object} xerr.Response "无效的请求参数"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Failure 500 {object} xerr.Response "对象存储不可用"
// @Router /api/v1/export/hot [post]
func (h *JobHandler) ExportHot(c *gin.Context) {
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
	res, err := h.export.ExportHotLtcvs(c.Request.Context(), req)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", res)
}

func snapshotMJD(c *gin.Context) (float64, error) {
	mjd, err := strconv.ParseFloat(c.Param("mjd"), 64)
	if err != nil {
		return 0, xerr.Wrapf(xerr.ErrInvalidParams, "mjd must be a number, got %q", c.Param("mjd"))
	}
	return mjd, nil
}

// DownloadSnapshot
// @Summary 下载已导出的快照
// @Tags Export
// @Produce application/gzip
// @Param procver path string true "处理版本"
// @Param mjd path number true "导出时的 mjd_now"
// @Success 200 {file} file "gzip 压缩的 JSON"
// @Failure 400 {object} xerr.Response "mjd 无效"
// @Failure 404 {object} xerr.Response "快照不存在"
// @Router /api/v1/export/hot/{procver}/{mjd} [get]
func (h *JobHandler) DownloadSnapshot(c *gin.Context) {
	mjd, err := snapshotMJD(c)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	snap, err := h.export.OpenSnapshot(c.Request.Context(), c.Param("procver"), mjd)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	defer snap.Reader.Close()
	c.DataFromReader(http.StatusOK, snap.Size, "application/gzip", snap.Reader, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, path.Base(snap.Key)),
	})
}

// RemoveSnapshot
// @Summary 删除已导出的快照
// @Tags Export
// @Produce json
// @Param procver path string true "处理版本"
// @Param mjd path number true "导出时的 mjd_now"
// @Success 200 {object} xerr.Response "已删除"
// @Failure 400 {object} xerr.Response "mjd 无效"
// @Failure 500 {object} xerr.Response "对象存储不可用"
// @Router /api/v1/export/hot/{procver}/{mjd} [delete]
func (h *JobHandler) RemoveSnapshot(c *gin.Context) {
	mjd, err := snapshotMJD(c)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	if err := h.export.RemoveSnapshot(c.Request.Context(), c.Param("procver"), mjd); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "快照已删除", nil)
}
