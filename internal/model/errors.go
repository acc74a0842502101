package model

import (
	"errors"
	"fmt"
)

// ErrKind 标识引擎边界上的结构化错误类别。
type ErrKind string

const (
	// ErrKindValidation 表示请求本身不合法（未选择文件、类型不支持等），不会重试。
	ErrKindValidation ErrKind = "validation"
	// ErrKindExtraction 表示文本提取失败，该文档的入库被中止并回滚。
	ErrKindExtraction ErrKind = "extraction_failure"
	// ErrKindEmbeddingUnavailable 表示向量化后端不可用，入库降级完成而非失败。
	ErrKindEmbeddingUnavailable ErrKind = "embedding_unavailable"
	// ErrKindIndexCorruption 表示索引快照无法加载。
	ErrKindIndexCorruption ErrKind = "index_corruption"
	// ErrKindMissingBackingFile 表示索引记录对应的物理文件已不存在。
	ErrKindMissingBackingFile ErrKind = "missing_backing_file"
	// ErrKindNotFound 表示请求的文档不存在。
	ErrKindNotFound ErrKind = "not_found"
	// ErrKindInternal 表示其余未分类的内部错误。
	ErrKindInternal ErrKind = "internal"
)

// EngineError 是引擎边界统一返回的 (kind, message) 结构化错误。
type EngineError struct {
	Kind    ErrKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewError 创建一个不包装底层错误的 EngineError。
func NewError(kind ErrKind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// WrapError 创建一个包装底层错误的 EngineError。
func WrapError(kind ErrKind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误对应的类别；非 EngineError 一律归为 internal。
func KindOf(err error) ErrKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrKindInternal
}

// IsKind 判断错误链中是否存在指定类别的 EngineError。
func IsKind(err error, kind ErrKind) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}
