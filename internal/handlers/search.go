package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/search"
	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	search search.Service
}

func NewSearchHandler(svc search.Service) *SearchHandler {
	return &SearchHandler{search: svc}
}

// ObjectSearch
// @Summary 按位置和测光条件检索对象
// @Description 请求体为检索条件, 另可给出 return_format, just_objids, object_processing_version 和 mjd_now. 不认识的条件返回 400
// @Tags Search
// @Accept json
// @Produce json
// @Param procver path string true "处理版本"
// @Param request body object false "检索条件"
// @Success 200 {object} xerr.Response "检索结果"
// @Failure 400 {object} xerr.Response "检索条件无效或互相矛盾"
// @Failure 404 {object} xerr.Response "处理版本不存在"
// @Failure 504 {object} xerr.Response "查询超时"
// @Router /api/v1/objectsearch/{procver} [post]
func (h *SearchHandler) ObjectSearch(c *gin.Context) {
	body := map[string]any{}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "request body must be a JSON object")
		return
	}
	req, err := search.ParseRequest(c.Param("procver"), body)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	res, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", res)
}
