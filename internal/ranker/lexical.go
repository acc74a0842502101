// Package ranker 实现检索排序：对查询与片段做向量或词法打分，
// 两种策略的得分都归一化到 [0,1]。
package ranker

import (
	"math"
	"regexp"
	"strings"

	"doc-rag-go/internal/config"
	"doc-rag-go/internal/model"
)

// tokenPattern 匹配连续的字母或数字；中文逐字成词。
var tokenPattern = regexp.MustCompile(`[a-z0-9]+|\p{Han}`)

// Tokenize 将文本切分为小写词元。
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// lexicalScore 对没有向量的片段做词法打分：
// 查询词频、靠前段落加成与长度偏离目标的惩罚的归一化加权和。
// 权重来自配置，是可调默认值而非硬性契约。完全不含查询词的片段得 0 分。
func lexicalScore(queryTokens []string, chunk *model.Chunk, cfg config.RetrievalConfig) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	chunkTokens := Tokenize(chunk.Text)
	if len(chunkTokens) == 0 {
		return 0
	}

	counts := make(map[string]int, len(chunkTokens))
	for _, t := range chunkTokens {
		counts[t]++
	}

	occurrences := 0
	matchedTerms := 0
	seen := make(map[string]struct{}, len(queryTokens))
	for _, q := range queryTokens {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		if n := counts[q]; n > 0 {
			occurrences += n
			matchedTerms++
		}
	}
	if occurrences == 0 {
		return 0
	}

	// 词频：匹配词次数相对片段长度，叠加查询词覆盖率
	freq := float64(occurrences) / float64(len(chunkTokens))
	coverage := float64(matchedTerms) / float64(len(seen))
	termScore := coverage * math.Min(1, freq*5)

	// 位置：越靠前的段落加成越大
	positionScore := 1.0 / (1.0 + float64(chunk.Paragraph))

	// 长度：偏离目标长度越远惩罚越重
	target := float64(cfg.TargetLength)
	if target <= 0 {
		target = 300
	}
	diff := math.Abs(float64(len([]rune(chunk.Text)))-target) / target
	lengthScore := 1.0 / (1.0 + diff)

	score := cfg.TermWeight*termScore + cfg.PositionWeight*positionScore + cfg.LengthWeight*lengthScore
	return clamp01(score)
}

// vectorScore 计算查询向量与片段向量的余弦相似度，并映射到 [0,1]。
func vectorScore(query, chunk []float32) float64 {
	if len(query) == 0 || len(query) != len(chunk) {
		return 0
	}
	var dot, qn, cn float64
	for i := range query {
		dot += float64(query[i]) * float64(chunk[i])
		qn += float64(query[i]) * float64(query[i])
		cn += float64(chunk[i]) * float64(chunk[i])
	}
	if qn == 0 || cn == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(qn) * math.Sqrt(cn))
	return clamp01((cos + 1) / 2)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
