// Package service 提供了检索相关的业务逻辑。
package service

import (
	"context"

	"doc-rag-go/internal/assembler"
	"doc-rag-go/internal/index"
	"doc-rag-go/internal/model"
	"doc-rag-go/internal/ranker"
	"doc-rag-go/internal/storage"
	"doc-rag-go/pkg/embedding"
	"doc-rag-go/pkg/log"
)

// SearchService 接口定义了检索与上下文组装操作。
type SearchService interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	BuildContext(ctx context.Context, query string, limit, budget int) (string, error)
}

type searchService struct {
	idx      *index.Index
	store    *storage.Store
	provider *embedding.Provider
	ranker   *ranker.Ranker
	asm      *assembler.Assembler
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(idx *index.Index, store *storage.Store, provider *embedding.Provider, rk *ranker.Ranker, asm *assembler.Assembler) SearchService {
	return &searchService{
		idx:      idx,
		store:    store,
		provider: provider,
		ranker:   rk,
		asm:      asm,
	}
}

// Search 对当前索引快照执行一次排序扫描，返回截断到 limit 的相关片段。
// 查询向量化失败或后端已降级时，整条查询显式走词法路径。
func (s *searchService) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if query == "" {
		return nil, model.NewError(model.ErrKindValidation, "查询不能为空")
	}
	log.Infof("[Search] 开始检索, query: '%s', limit: %d", query, limit)

	// 1. 查询向量化（后端降级时直接跳过, 不做无意义的调用）
	var queryVec []float32
	if !s.provider.Degraded() {
		vec, err := s.provider.Embed(ctx, query)
		if err != nil {
			log.Warnf("[Search] 查询向量化失败, 本次查询走词法路径: %v", err)
		} else {
			queryVec = vec
		}
	}

	// 2. 收集候选片段（逐文档读取派生缓存, 缓存缺失的文档按降级状态跳过）
	docs := s.idx.List()
	var cands []ranker.Candidate
	for _, doc := range docs {
		chunks, err := s.store.LoadChunks(doc.ID)
		if err != nil {
			if model.IsKind(err, model.ErrKindMissingBackingFile) {
				log.Warnf("[Search] 文档 %s 的分块缓存缺失, 已跳过, 请执行维护清理", doc.ID)
				continue
			}
			return nil, err
		}
		for _, ch := range chunks {
			cands = append(cands, ranker.Candidate{Doc: doc, Chunk: ch})
		}
	}

	// 3. 打分与排序
	results := s.ranker.Rank(ctx, query, queryVec, cands, limit)
	log.Infof("[Search] 检索完成, 候选 %d 个片段, 返回 %d 条结果", len(cands), len(results))
	return results, nil
}

// BuildContext 执行检索并将结果组装为一个受预算约束、带来源标注的上下文块。
func (s *searchService) BuildContext(ctx context.Context, query string, limit, budget int) (string, error) {
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return "", err
	}
	return s.asm.Assemble(results, budget), nil
}
