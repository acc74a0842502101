// Package chunker 将规范化文本按段落边界切分为有界、带位置信息的片段。
package chunker

import (
	"strings"

	"doc-rag-go/internal/model"
)

// Chunker 按段落边界切分文本，单个片段不超过配置的最大长度（按 rune 计）。
type Chunker struct {
	maxChunkSize int
}

// New 创建一个新的 Chunker 实例。
func New(maxChunkSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 1000
	}
	return &Chunker{maxChunkSize: maxChunkSize}
}

// Split 将文本切分为片段。规则：
//   - 以空行为段落边界，相邻段落在不超限的前提下合并进同一片段；
//   - 超过最大长度的段落在边界处硬切分；
//   - 不足一个片段的文档整体作为单个片段返回。
//
// 每个片段记录序号、所属段落序号与 rune 偏移，供后续打分使用。
func (c *Chunker) Split(docID, text string) []model.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// 短文档：整体即单个片段
	if len([]rune(text)) <= c.maxChunkSize {
		return []model.Chunk{{
			DocumentID: docID,
			Index:      0,
			Text:       text,
			Paragraph:  0,
			Offset:     0,
		}}
	}

	var chunks []model.Chunk
	var current strings.Builder
	currentLen := 0
	currentPara := 0
	offset := 0

	flush := func(para int) {
		if currentLen == 0 {
			return
		}
		chunks = append(chunks, model.Chunk{
			DocumentID: docID,
			Index:      len(chunks),
			Text:       current.String(),
			Paragraph:  para,
			Offset:     offset,
		})
		offset += currentLen
		current.Reset()
		currentLen = 0
	}

	paragraphs := strings.Split(text, "\n\n")
	for pi, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)

		// 段落本身超限：先落盘当前片段，再对段落做硬切分
		if len(runes) > c.maxChunkSize {
			flush(currentPara)
			for start := 0; start < len(runes); start += c.maxChunkSize {
				end := start + c.maxChunkSize
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, model.Chunk{
					DocumentID: docID,
					Index:      len(chunks),
					Text:       string(runes[start:end]),
					Paragraph:  pi,
					Offset:     offset,
				})
				offset += end - start
			}
			currentPara = pi + 1
			continue
		}

		// 合并会超限：先落盘当前片段
		sep := 0
		if currentLen > 0 {
			sep = 2 // "\n\n"
		}
		if currentLen+sep+len(runes) > c.maxChunkSize {
			flush(currentPara)
			currentPara = pi
			sep = 0
		}
		if currentLen == 0 {
			currentPara = pi
		}
		if sep > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += len(runes)
	}
	flush(currentPara)

	return chunks
}
