package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doc-rag-go/internal/model"
	"doc-rag-go/internal/service"
	"doc-rag-go/pkg/log"
)

// SearchHandler 负责处理检索相关的 API 请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理检索请求，返回相关度降序的片段列表。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	results, err := h.searchService.Search(c.Request.Context(), query, limit)
	if err != nil {
		log.Error("[Search] 检索失败", err)
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "检索成功",
		"data":    gin.H{"results": results},
	})
}

// BuildContextRequest 定义了上下文组装 API 的请求体结构。
type BuildContextRequest struct {
	Query  string `json:"query" binding:"required"`
	Limit  int    `json:"limit"`
	Budget int    `json:"budget"`
}

// BuildContext 处理上下文组装请求：检索并组装为一个受预算约束的上下文块，
// 供下游推理组件消费。
func (h *SearchHandler) BuildContext(c *gin.Context) {
	var req BuildContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, model.NewError(model.ErrKindValidation, "无效的请求负载"))
		return
	}

	block, err := h.searchService.BuildContext(c.Request.Context(), req.Query, req.Limit, req.Budget)
	if err != nil {
		log.Error("[BuildContext] 上下文组装失败", err)
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "上下文组装成功",
		"data":    gin.H{"context": block},
	})
}
