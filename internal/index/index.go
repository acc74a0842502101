// Package index 实现元数据索引：全部文档记录的唯一权威来源，
// 以单个原子替换的 JSON 快照持久化。
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"doc-rag-go/internal/model"
	"doc-rag-go/pkg/log"
)

// SnapshotFileName 是存储根目录下索引快照的文件名。
const SnapshotFileName = "index.json"

// Index 是元数据索引句柄。写操作（Add/Remove/UpdateTags）彼此互斥；
// 读操作只在内存变更的瞬间短暂等待，从不等待正在进行的快照落盘。
type Index struct {
	path string

	mu      sync.RWMutex // 保护 records、updatedAt 与 gen
	records map[string]*model.Document
	updated time.Time
	gen     uint64 // 单调递增的变更代号, 每次写操作加一

	saveMu   sync.Mutex // 序列化快照文件写入
	savedGen uint64     // 已落盘快照的代号, 由 saveMu 保护
}

// Open 从 root 目录加载索引快照。快照缺失或损坏时返回空索引并记录日志，
// 而不是拒绝启动；损坏索引的重建交给显式的维护清理。
func Open(root string) (*Index, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储根目录失败: %w", err)
	}

	idx := &Index{
		path:    filepath.Join(root, SnapshotFileName),
		records: make(map[string]*model.Document),
	}

	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		log.Infof("[Index] 索引快照不存在, 以空索引启动: %s", idx.path)
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取索引快照失败: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 索引损坏：以空索引启动并显著记录，不做静默自动修复
		log.Error("[Index] 索引快照损坏, 以空索引启动, 请执行维护清理重建",
			model.WrapError(model.ErrKindIndexCorruption, idx.path, err))
		return idx, nil
	}

	for _, doc := range snap.Documents {
		idx.records[doc.ID] = doc
	}
	idx.updated = snap.UpdatedAt
	log.Infof("[Index] 索引加载成功, 共 %d 条文档记录", len(idx.records))
	return idx, nil
}

// Add 向索引写入一条文档记录并持久化快照。
func (idx *Index) Add(doc *model.Document) error {
	idx.mu.Lock()
	cp := *doc
	idx.records[doc.ID] = &cp
	idx.updated = time.Now()
	idx.gen++
	gen := idx.gen
	snap := idx.snapshotLocked()
	idx.mu.Unlock()

	return idx.save(snap, gen)
}

// Remove 从索引移除一条文档记录并持久化快照。记录不存在时返回 NotFound。
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	if _, ok := idx.records[id]; !ok {
		idx.mu.Unlock()
		return model.NewError(model.ErrKindNotFound, fmt.Sprintf("文档 %s 不存在", id))
	}
	delete(idx.records, id)
	idx.updated = time.Now()
	idx.gen++
	gen := idx.gen
	snap := idx.snapshotLocked()
	idx.mu.Unlock()

	return idx.save(snap, gen)
}

// UpdateTags 更新一条记录的标签集合并持久化快照。
// 标签是文档记录唯一允许的变更。
func (idx *Index) UpdateTags(id string, tags []string) error {
	idx.mu.Lock()
	doc, ok := idx.records[id]
	if !ok {
		idx.mu.Unlock()
		return model.NewError(model.ErrKindNotFound, fmt.Sprintf("文档 %s 不存在", id))
	}
	doc.Tags = append([]string(nil), tags...)
	idx.updated = time.Now()
	idx.gen++
	gen := idx.gen
	snap := idx.snapshotLocked()
	idx.mu.Unlock()

	return idx.save(snap, gen)
}

// Find 按 ID 查找文档记录，返回副本。
func (idx *Index) Find(id string) (*model.Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.records[id]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

// List 返回全部文档记录的副本，按上传时间降序（新在前）。
func (idx *Index) List() []*model.Document {
	idx.mu.RLock()
	docs := make([]*model.Document, 0, len(idx.records))
	for _, doc := range idx.records {
		cp := *doc
		docs = append(docs, &cp)
	}
	idx.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Stats 返回索引的聚合统计。
func (idx *Index) Stats() model.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := model.IndexStats{
		Count:       len(idx.records),
		CountByType: make(map[string]int),
		UpdatedAt:   idx.updated,
	}
	for _, doc := range idx.records {
		stats.TotalBytes += doc.Size
		stats.CountByType[doc.FileType]++
		if doc.HasEmbeddings {
			stats.WithEmbeddings++
		}
	}
	return stats
}

// snapshotLocked 在持有写锁的前提下构建当前状态的快照副本。
// 副本在锁外序列化与落盘，保证读者不会阻塞在文件 IO 上。
func (idx *Index) snapshotLocked() *model.Snapshot {
	docs := make([]*model.Document, 0, len(idx.records))
	for _, doc := range idx.records {
		cp := *doc
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return &model.Snapshot{Documents: docs, UpdatedAt: idx.updated}
}

// save 将快照写入临时文件后原子替换正式文件，
// 写入中途崩溃不会让读者观察到半写状态。
// 快照按代号序列化落盘：若更新的快照已经在盘上，旧快照直接跳过，
// 避免并发写者乱序持久化时旧状态覆盖新状态。代号 G 的快照
// 包含全部代号不大于 G 的变更，因此跳过是安全的。
func (idx *Index) save(snap *model.Snapshot, gen uint64) error {
	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()

	if gen <= idx.savedGen {
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化索引快照失败: %w", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入临时快照失败: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("替换索引快照失败: %w", err)
	}
	idx.savedGen = gen
	return nil
}
