// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"doc-rag-go/internal/model"
	"doc-rag-go/internal/service"
	"doc-rag-go/pkg/log"
)

// statusOf 将引擎错误类别映射为 HTTP 状态码。
func statusOf(err error) int {
	switch model.KindOf(err) {
	case model.ErrKindValidation:
		return http.StatusBadRequest
	case model.ErrKindNotFound:
		return http.StatusNotFound
	case model.ErrKindExtraction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail 以统一的结构化格式返回错误。
func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{
		"code":    statusOf(err),
		"kind":    string(model.KindOf(err)),
		"message": err.Error(),
	})
}

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理文档上传请求（multipart 表单）。
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, model.NewError(model.ErrKindValidation, "未选择文件"))
		return
	}
	defer file.Close()

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	embeddingsEnabled := c.DefaultPostForm("embeddings", "true") != "false"

	result, err := h.documentService.Upload(c.Request.Context(), header.Filename, file, tags, embeddingsEnabled)
	if err != nil {
		log.Error("[Upload] 文档入库失败", err)
		fail(c, err)
		return
	}

	message := "文档上传成功"
	if result.EmbeddingWarning != "" {
		message = "文档上传成功（降级）: " + result.EmbeddingWarning
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    result,
	})
}

// List 处理文档列表请求，附带聚合统计。
func (h *DocumentHandler) List(c *gin.Context) {
	summaries, stats := h.documentService.List()
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data": gin.H{
			"documents": summaries,
			"stats":     stats,
		},
	})
}

// Get 处理按 ID 获取文档完整元数据与提取文本的请求。
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, text, err := h.documentService.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档成功",
		"data": gin.H{
			"document": doc,
			"text":     text,
		},
	})
}

// Download 以原始文件名回传文档的原始字节流。
func (h *DocumentHandler) Download(c *gin.Context) {
	rc, fileName, size, err := h.documentService.Download(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	defer rc.Close()

	// 文件名可能含引号或非 ASCII 字符, 交给 mime 包做合法的参数编码
	c.DataFromReader(http.StatusOK, size, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": fileName}),
	})
}

// Delete 处理文档删除请求。物理文件已缺失时仍返回成功并附带警告。
func (h *DocumentHandler) Delete(c *gin.Context) {
	warning, err := h.documentService.Delete(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	message := "文档删除成功"
	if warning != "" {
		message = "文档删除成功: " + warning
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
	})
}

// UpdateTagsRequest 定义了标签更新 API 的请求体结构。
type UpdateTagsRequest struct {
	Tags []string `json:"tags"`
}

// UpdateTags 处理文档标签更新请求。
func (h *DocumentHandler) UpdateTags(c *gin.Context) {
	var req UpdateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, model.NewError(model.ErrKindValidation, "无效的请求负载"))
		return
	}

	if err := h.documentService.UpdateTags(c.Param("id"), req.Tags); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "标签更新成功",
	})
}

// Sweep 处理维护清理请求：移除物理文件已缺失的索引记录。
func (h *DocumentHandler) Sweep(c *gin.Context) {
	removed, err := h.documentService.Sweep()
	if err != nil {
		log.Error("[Sweep] 维护清理失败", err)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "维护清理完成",
		"data":    gin.H{"removed": removed},
	})
}
