// Package service 包含了引擎的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"doc-rag-go/internal/chunker"
	"doc-rag-go/internal/config"
	"doc-rag-go/internal/extract"
	"doc-rag-go/internal/index"
	"doc-rag-go/internal/model"
	"doc-rag-go/internal/storage"
	"doc-rag-go/pkg/embedding"
	"doc-rag-go/pkg/log"
)

// DocumentService 接口定义了文档生命周期相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileName string, r io.Reader, tags []string, embeddingsEnabled bool) (*model.UploadResult, error)
	List() ([]model.DocumentSummary, model.IndexStats)
	Get(id string) (*model.Document, string, error)
	Download(id string) (io.ReadCloser, string, int64, error)
	Delete(id string) (string, error)
	UpdateTags(id string, tags []string) error
	Sweep() (int, error)
}

type documentService struct {
	idx        *index.Index
	store      *storage.Store
	dispatcher *extract.Dispatcher
	chunker    *chunker.Chunker
	provider   *embedding.Provider
	embCfg     config.EmbeddingConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	idx *index.Index,
	store *storage.Store,
	dispatcher *extract.Dispatcher,
	ck *chunker.Chunker,
	provider *embedding.Provider,
	embCfg config.EmbeddingConfig,
) DocumentService {
	return &documentService{
		idx:        idx,
		store:      store,
		dispatcher: dispatcher,
		chunker:    ck,
		provider:   provider,
		embCfg:     embCfg,
	}
}

// Upload 执行完整的入库流程：
// 校验 → 存储 → 类型检测 → 文本提取 → 分块 → 向量化（尽力而为） → 写入索引。
// 提取失败会回滚已写入的存储目录；向量化失败只降级，不失败。
func (s *documentService) Upload(ctx context.Context, fileName string, r io.Reader, tags []string, embeddingsEnabled bool) (*model.UploadResult, error) {
	log.Infof("[Upload] 开始处理上传, fileName: %s", fileName)

	if r == nil {
		return nil, model.NewError(model.ErrKindValidation, "未选择文件")
	}

	// 1. 分配 ID 并落盘
	id := uuid.NewString()
	path, size, err := s.store.Save(id, fileName, r)
	if err != nil {
		return nil, err
	}
	log.Infof("[Upload] 步骤1: 文件已存储, id: %s, size: %d 字节", id, size)
	if size == 0 {
		_ = s.store.Delete(id)
		return nil, model.NewError(model.ErrKindValidation, "文件内容为空")
	}

	// 2. 类型检测（封闭策略集，独立可测）
	strategy, err := extract.Detect(fileName, path)
	if err != nil {
		_ = s.store.Delete(id)
		return nil, err
	}
	log.Infof("[Upload] 步骤2: 类型检测完成, strategy: %s", strategy)

	// 3. 文本提取，失败则回滚本文档的存储目录
	text, err := s.dispatcher.Extract(ctx, strategy, path, fileName)
	if err != nil {
		_ = s.store.Delete(id)
		return nil, err
	}
	textLength := len([]rune(text))

	// 4. 分块
	chunks := s.chunker.Split(id, text)
	log.Infof("[Upload] 步骤3: 文本分块完成, 共 %d 个片段", len(chunks))

	// 5. 向量化（尽力而为，有界超时，绝不持有索引写锁）
	hasEmbeddings := false
	warning := ""
	if embeddingsEnabled {
		hasEmbeddings, warning = s.embedChunks(ctx, chunks)
	}

	// 6. 写入派生缓存
	if err := s.store.SaveDerived(id, text, chunks); err != nil {
		_ = s.store.Delete(id)
		return nil, model.WrapError(model.ErrKindInternal, "写入派生缓存失败", err)
	}

	// 7. 写入元数据索引
	doc := &model.Document{
		ID:            id,
		FileName:      fileName,
		StoragePath:   path,
		FileType:      fileTypeOf(fileName),
		Size:          size,
		UploadedAt:    time.Now(),
		TextLength:    textLength,
		HasEmbeddings: hasEmbeddings,
		Tags:          tags,
	}
	if err := s.idx.Add(doc); err != nil {
		_ = s.store.Delete(id)
		return nil, model.WrapError(model.ErrKindInternal, "写入索引失败", err)
	}

	log.Infof("[Upload] 入库完成, id: %s, 文本长度: %d, 向量: %v", id, textLength, hasEmbeddings)
	return &model.UploadResult{
		ID:               id,
		FileName:         fileName,
		Size:             size,
		TextLength:       textLength,
		ExtractionMethod: string(strategy),
		EmbeddingWarning: warning,
	}, nil
}

// embedChunks 对片段做批量向量化。整体失败只产生警告；
// 个别片段失败只让那些片段回退词法打分，不中止整个文档。
func (s *documentService) embedChunks(ctx context.Context, chunks []model.Chunk) (bool, string) {
	if s.provider.Degraded() {
		return false, "向量化后端不可用, 文档已降级入库"
	}

	timeout := s.embCfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	embedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors, err := s.provider.EmbedBatch(embedCtx, texts)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			log.Warnf("[Upload] 向量化后端已降级, 文档将以词法模式检索")
		} else {
			log.Warnf("[Upload] 批量向量化失败, 文档将以词法模式检索: %v", err)
		}
		return false, "向量化后端不可用, 文档已降级入库"
	}

	embedded := 0
	for i := range chunks {
		if vectors[i] != nil {
			chunks[i].Embedding = vectors[i]
			embedded++
		}
	}
	if embedded == 0 {
		return false, "向量化未返回任何向量, 文档已降级入库"
	}
	if embedded < len(chunks) {
		return true, fmt.Sprintf("%d/%d 个片段向量化失败, 这些片段将使用词法打分", len(chunks)-embedded, len(chunks))
	}
	return true, ""
}

// List 返回全部文档摘要与聚合统计。
func (s *documentService) List() ([]model.DocumentSummary, model.IndexStats) {
	docs := s.idx.List()
	summaries := make([]model.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, model.DocumentSummary{
			ID:            doc.ID,
			FileName:      doc.FileName,
			FileType:      doc.FileType,
			Size:          doc.Size,
			UploadedAt:    doc.UploadedAt,
			HasEmbeddings: doc.HasEmbeddings,
			Tags:          doc.Tags,
		})
	}
	return summaries, s.idx.Stats()
}

// Get 返回完整元数据与提取文本。
// 记录存在但物理文件或派生缓存缺失时按降级状态处理：返回元数据与空文本。
func (s *documentService) Get(id string) (*model.Document, string, error) {
	doc, ok := s.idx.Find(id)
	if !ok {
		return nil, "", model.NewError(model.ErrKindNotFound, fmt.Sprintf("文档 %s 不存在", id))
	}

	text, err := s.store.LoadText(id)
	if err != nil {
		if model.IsKind(err, model.ErrKindMissingBackingFile) {
			log.Warnf("[Get] 文档 %s 的提取文本缓存缺失, 返回空文本, 请执行维护清理", id)
			return doc, "", nil
		}
		return nil, "", err
	}
	return doc, text, nil
}

// Download 以原始文件名回传已存储的字节流。物理文件缺失按 NotFound 处理。
func (s *documentService) Download(id string) (io.ReadCloser, string, int64, error) {
	doc, ok := s.idx.Find(id)
	if !ok {
		return nil, "", 0, model.NewError(model.ErrKindNotFound, fmt.Sprintf("文档 %s 不存在", id))
	}

	rc, size, err := s.store.Open(doc.StoragePath)
	if err != nil {
		if model.IsKind(err, model.ErrKindMissingBackingFile) {
			return nil, "", 0, model.NewError(model.ErrKindNotFound,
				fmt.Sprintf("文档 %s 的物理文件已缺失", id))
		}
		return nil, "", 0, err
	}
	return rc, doc.FileName, size, nil
}

// Delete 删除一个文档。先从索引移除记录，索引不再引用后才删除文件，
// 保证并发读者不会观察到悬空引用。物理文件已缺失时视为成功并附带警告。
func (s *documentService) Delete(id string) (string, error) {
	doc, ok := s.idx.Find(id)
	if !ok {
		return "", model.NewError(model.ErrKindNotFound, fmt.Sprintf("文档 %s 不存在", id))
	}

	fileMissing := !storage.Exists(doc.StoragePath)

	if err := s.idx.Remove(id); err != nil {
		// 与并发删除竞争输了: 对方已移除, 透传 NotFound
		return "", err
	}
	if err := s.store.Delete(id); err != nil {
		log.Error("[Delete] 删除文档目录失败, 索引记录已移除", err)
	}

	if fileMissing {
		log.Warnf("[Delete] 文档 %s 的物理文件在删除前已缺失", id)
		return "文档的物理文件已缺失, 仅移除了索引记录", nil
	}
	log.Infof("[Delete] 文档 %s 删除成功", id)
	return "", nil
}

// UpdateTags 更新文档的标签集合，这是记录唯一允许的变更。
func (s *documentService) UpdateTags(id string, tags []string) error {
	return s.idx.UpdateTags(id, tags)
}

// Sweep 显式维护清理：移除索引中物理文件已不存在的记录，返回移除数量。
// 连续执行是幂等的。
func (s *documentService) Sweep() (int, error) {
	removed := 0
	for _, doc := range s.idx.List() {
		if storage.Exists(doc.StoragePath) {
			continue
		}
		if err := s.idx.Remove(doc.ID); err != nil {
			if model.IsKind(err, model.ErrKindNotFound) {
				continue // 与并发删除竞争, 对方已处理
			}
			return removed, err
		}
		_ = s.store.Delete(doc.ID)
		log.Warnf("[Sweep] 已移除物理文件缺失的记录: %s (%s)", doc.ID, doc.FileName)
		removed++
	}
	log.Infof("[Sweep] 维护清理完成, 共移除 %d 条记录", removed)
	return removed, nil
}

// fileTypeOf 根据文件名返回声明类型（小写扩展名，无扩展名时为 unknown）。
func fileTypeOf(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		return "unknown"
	}
	return ext
}
