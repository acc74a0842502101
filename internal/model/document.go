// Package model 定义了引擎核心的数据结构。
package model

import "time"

// Document 是元数据索引中一个已入库文档的记录。
// 只要记录存在于索引中，StoragePath 就应当指向一个存在的文件；
// 文件缺失是一种可识别的降级状态，由维护清理来处理，而不是崩溃条件。
type Document struct {
	ID            string    `json:"id"`
	FileName      string    `json:"fileName"`
	StoragePath   string    `json:"storagePath"`
	FileType      string    `json:"fileType"`
	Size          int64     `json:"size"`
	UploadedAt    time.Time `json:"uploadedAt"`
	TextLength    int       `json:"textLength"`
	HasEmbeddings bool      `json:"hasEmbeddings"`
	Tags          []string  `json:"tags,omitempty"`
}

// Chunk 是文档提取文本中一个有界、带位置信息的片段，检索的基本单位。
// 分块是派生数据：仅随所属文档的派生缓存持久化，不作为索引行存在。
type Chunk struct {
	DocumentID string    `json:"documentId"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Paragraph  int       `json:"paragraph"`
	Offset     int       `json:"offset"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Snapshot 是元数据索引持久化的完整快照。
type Snapshot struct {
	Documents []*Document `json:"documents"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// DocumentSummary 是返回给前端的文档摘要。
type DocumentSummary struct {
	ID            string    `json:"id"`
	FileName      string    `json:"fileName"`
	FileType      string    `json:"fileType"`
	Size          int64     `json:"size"`
	UploadedAt    time.Time `json:"uploadedAt"`
	HasEmbeddings bool      `json:"hasEmbeddings"`
	Tags          []string  `json:"tags,omitempty"`
}

// IndexStats 是文档列表接口附带的聚合统计。
type IndexStats struct {
	Count          int            `json:"count"`
	TotalBytes     int64          `json:"totalBytes"`
	CountByType    map[string]int `json:"countByType"`
	WithEmbeddings int            `json:"withEmbeddings"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// UploadResult 是上传接口的响应结构。
type UploadResult struct {
	ID               string `json:"id"`
	FileName         string `json:"fileName"`
	Size             int64  `json:"size"`
	TextLength       int    `json:"textLength"`
	ExtractionMethod string `json:"extractionMethod"`
	EmbeddingWarning string `json:"embeddingWarning,omitempty"`
}

// SearchResult 是单条检索结果。
type SearchResult struct {
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Relevance  float64 `json:"relevance"`
}
