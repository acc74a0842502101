// Package storage 实现本地文档存储：每次上传分配一个以文档 ID 命名的独立目录，
// 目录内保存原始文件以及派生的提取文本与分块缓存。
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"doc-rag-go/internal/model"
)

const (
	derivedTextFile   = "extracted.txt"
	derivedChunksFile = "chunks.json"
)

// Store 是文档存储句柄。不同文档的操作天然互不冲突，
// 因为每次上传都拿到一个全新的唯一目录。
type Store struct {
	root string
}

// NewStore 创建文档存储，确保根目录存在。
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储根目录失败: %w", err)
	}
	return &Store{root: root}, nil
}

// Root 返回存储根目录。
func (s *Store) Root() string { return s.root }

// DocumentDir 返回指定文档的存储目录路径。
func (s *Store) DocumentDir(id string) string {
	return filepath.Join(s.root, id)
}

// SanitizeFileName 校验并清理用作路径组成部分的原始文件名。
// 拒绝空文件名、路径穿越序列与路径分隔符。
func SanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.NewError(model.ErrKindValidation, "文件名不能为空")
	}
	if strings.Contains(name, "..") {
		return "", model.NewError(model.ErrKindValidation, "文件名包含非法的路径穿越序列")
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) {
		return "", model.NewError(model.ErrKindValidation, "文件名不能包含路径分隔符")
	}
	if strings.Trim(name, ".") == "" {
		return "", model.NewError(model.ErrKindValidation, "非法文件名")
	}
	return name, nil
}

// Save 为文档分配独立目录并将字节流写入磁盘，返回存储路径与实际写入大小。
func (s *Store) Save(id, fileName string, r io.Reader) (string, int64, error) {
	safeName, err := SanitizeFileName(fileName)
	if err != nil {
		return "", 0, err
	}

	dir := s.DocumentDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("创建文档目录失败: %w", err)
	}

	path := filepath.Join(dir, safeName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("创建文档文件失败: %w", err)
	}

	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.RemoveAll(dir)
		return "", 0, fmt.Errorf("写入文档字节流失败: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.RemoveAll(dir)
		return "", 0, fmt.Errorf("关闭文档文件失败: %w", closeErr)
	}
	return path, size, nil
}

// Open 重新打开已存储的原始文件用于下载回传。
// 文件缺失返回 MissingBackingFile。
func (s *Store) Open(path string) (io.ReadCloser, int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, model.NewError(model.ErrKindMissingBackingFile, path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("读取文档文件信息失败: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("打开文档文件失败: %w", err)
	}
	return f, info.Size(), nil
}

// Delete 一步移除整个文档目录。目录不存在也视为成功。
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(s.DocumentDir(id)); err != nil {
		return fmt.Errorf("删除文档目录失败: %w", err)
	}
	return nil
}

// Exists 判断一条索引记录的物理文件是否仍然存在。
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SaveDerived 将提取文本与分块缓存写入文档目录。
// 派生数据与文档同生命周期，随文档目录一并删除。
func (s *Store) SaveDerived(id, text string, chunks []model.Chunk) error {
	dir := s.DocumentDir(id)
	if err := os.WriteFile(filepath.Join(dir, derivedTextFile), []byte(text), 0o644); err != nil {
		return fmt.Errorf("写入提取文本缓存失败: %w", err)
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("序列化分块缓存失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, derivedChunksFile), data, 0o644); err != nil {
		return fmt.Errorf("写入分块缓存失败: %w", err)
	}
	return nil
}

// LoadText 读取文档的提取文本缓存。
func (s *Store) LoadText(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.DocumentDir(id), derivedTextFile))
	if os.IsNotExist(err) {
		return "", model.NewError(model.ErrKindMissingBackingFile, "提取文本缓存不存在")
	}
	if err != nil {
		return "", fmt.Errorf("读取提取文本缓存失败: %w", err)
	}
	return string(data), nil
}

// LoadChunks 读取文档的分块缓存（含可选向量）。
func (s *Store) LoadChunks(id string) ([]model.Chunk, error) {
	data, err := os.ReadFile(filepath.Join(s.DocumentDir(id), derivedChunksFile))
	if os.IsNotExist(err) {
		return nil, model.NewError(model.ErrKindMissingBackingFile, "分块缓存不存在")
	}
	if err != nil {
		return nil, fmt.Errorf("读取分块缓存失败: %w", err)
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("解析分块缓存失败: %w", err)
	}
	return chunks, nil
}
