package ranker

import (
	"context"
	"sort"

	"doc-rag-go/internal/config"
	"doc-rag-go/internal/model"
	"doc-rag-go/pkg/log"
)

// Candidate 是参与排序的一个片段及其所属文档的元数据。
type Candidate struct {
	Doc   *model.Document
	Chunk model.Chunk
}

// Ranker 对候选片段做相关度排序。
// 每个片段按是否带向量选择打分策略：有向量且查询向量可用时走余弦相似度，
// 否则走词法打分，保证旧文档与降级模式下结果依旧可用。
type Ranker struct {
	cfg config.RetrievalConfig
}

// New 创建一个新的 Ranker 实例。
func New(cfg config.RetrievalConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

type scoredChunk struct {
	cand  Candidate
	score float64
}

// Rank 对候选片段打分、过滤并排序，返回截断到 limit 的结果。
// 低于阈值的片段被丢弃；但若某文档有任何片段得分大于零而全部低于阈值，
// 保留该文档得分最高的一个片段，避免在尚有信号时返回空上下文。
// 排序对整个快照单遍扫描；ctx 取消在文档粒度上协作式生效。
func (r *Ranker) Rank(ctx context.Context, query string, queryVec []float32, cands []Candidate, limit int) []model.SearchResult {
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	queryTokens := Tokenize(query)

	kept := make([]scoredChunk, 0, len(cands))
	type docBest struct {
		best     scoredChunk
		anyKept  bool
		anyMatch bool
	}
	perDoc := make(map[string]*docBest)

	lastDoc := ""
	cancelled := false
	for i := range cands {
		c := cands[i]
		if c.Doc.ID != lastDoc {
			// 协作式取消检查：已开始的扫描照常完成，结果由调用方决定是否丢弃
			if !cancelled && ctx.Err() != nil {
				cancelled = true
				log.Warnf("[Ranker] 查询已被取消, 本次扫描仍会完成, query: '%s'", query)
			}
			lastDoc = c.Doc.ID
		}

		// 维度不一致的旧向量（如后端换过模型）不参与余弦比较, 退回词法打分
		var score float64
		if len(queryVec) > 0 && len(c.Chunk.Embedding) == len(queryVec) {
			score = vectorScore(queryVec, c.Chunk.Embedding)
		} else {
			score = lexicalScore(queryTokens, &c.Chunk, r.cfg)
		}
		if score <= 0 {
			continue
		}

		db, ok := perDoc[c.Doc.ID]
		if !ok {
			db = &docBest{}
			perDoc[c.Doc.ID] = db
		}
		db.anyMatch = true
		if score > db.best.score {
			db.best = scoredChunk{cand: c, score: score}
		}

		if score >= r.cfg.MinScore {
			db.anyKept = true
			kept = append(kept, scoredChunk{cand: c, score: score})
		}
	}

	// 兜底：文档有信号但全部片段低于阈值时，保留其最佳片段
	for _, db := range perDoc {
		if db.anyMatch && !db.anyKept {
			kept = append(kept, db.best)
		}
	}

	sortScored(kept)

	if len(kept) > limit {
		kept = kept[:limit]
	}
	results := make([]model.SearchResult, 0, len(kept))
	for _, sc := range kept {
		results = append(results, model.SearchResult{
			DocumentID: sc.cand.Doc.ID,
			FileName:   sc.cand.Doc.FileName,
			ChunkIndex: sc.cand.Chunk.Index,
			Text:       sc.cand.Chunk.Text,
			Relevance:  sc.score,
		})
	}
	return results
}

// sortScored 按相关度降序排序；同分时先比片段位置（靠前优先），
// 再比上传时间（新文档优先），最后按文档 ID 保证确定性。
func sortScored(list []scoredChunk) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.cand.Chunk.Index != b.cand.Chunk.Index {
			return a.cand.Chunk.Index < b.cand.Chunk.Index
		}
		at, bt := a.cand.Doc.UploadedAt, b.cand.Doc.UploadedAt
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.cand.Doc.ID < b.cand.Doc.ID
	})
}
