package vectordb

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	*BaseRepository                        // 嵌入基础仓库实现
	mu              sync.RWMutex           // 读写锁，确保并发安全
	records         map[string]ChunkRecord // 切片存储，ID到记录的映射
	fileToChunkIDs  map[string][]string    // 文件ID到切片ID的映射
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	// 确保维度大于0
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	// 确保距离类型有效
	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		BaseRepository: NewBaseRepository(config.Dimension, distType),
		records:        make(map[string]ChunkRecord),
		fileToChunkIDs: make(map[string][]string),
	}, nil
}

// Add 添加单条切片记录到内存仓库
func (r *MemoryRepository) Add(rec ChunkRecord) error {
	if err := ValidateRecord(rec, r.dimension); err != nil {
		return err
	}

	// 如果没有设置创建时间，设置为当前时间
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	// 如果没有初始化元数据，则创建一个空映射
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]interface{})
	}

	// 对于余弦距离，先对向量进行归一化处理
	if r.distType == Cosine {
		rec.Vector = normalizeVector(rec.Vector)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ID] = rec
	r.fileToChunkIDs[rec.FileID] = append(r.fileToChunkIDs[rec.FileID], rec.ID)

	return nil
}

// AddBatch 批量添加切片记录到内存仓库
func (r *MemoryRepository) AddBatch(recs []ChunkRecord) error {
	if len(recs) == 0 {
		return nil
	}

	// 使用单个锁进行批处理，避免多次加解锁开销
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range recs {
		rec := &recs[i] // 使用指针避免复制

		if err := ValidateRecord(*rec, r.dimension); err != nil {
			return fmt.Errorf("invalid record %s: %v", rec.ID, err)
		}

		// 设置创建时间（如果未设置）
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}

		// 初始化元数据（如果未设置）
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]interface{})
		}

		// 对于余弦距离，对向量进行归一化处理
		if r.distType == Cosine {
			rec.Vector = normalizeVector(rec.Vector)
		}

		r.records[rec.ID] = *rec
		r.fileToChunkIDs[rec.FileID] = append(r.fileToChunkIDs[rec.FileID], rec.ID)
	}

	return nil
}

// Get 获取单条切片记录
func (r *MemoryRepository) Get(id string) (ChunkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return ChunkRecord{}, ErrChunkNotFound
	}

	return rec, nil
}

// Delete 删除单条切片记录
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[id]
	if !exists {
		return ErrChunkNotFound
	}

	delete(r.records, id)

	// 更新文件到切片的映射
	if chunkIDs, ok := r.fileToChunkIDs[rec.FileID]; ok {
		updatedIDs := make([]string, 0, len(chunkIDs)-1)
		for _, chunkID := range chunkIDs {
			if chunkID != id {
				updatedIDs = append(updatedIDs, chunkID)
			}
		}

		if len(updatedIDs) == 0 {
			delete(r.fileToChunkIDs, rec.FileID)
		} else {
			r.fileToChunkIDs[rec.FileID] = updatedIDs
		}
	}

	return nil
}

// DeleteByFileID 删除指定文件的所有切片
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunkIDs, exists := r.fileToChunkIDs[fileID]
	if !exists {
		// 文件没有切片入库，无需任何操作
		return nil
	}

	for _, id := range chunkIDs {
		delete(r.records, id)
	}
	delete(r.fileToChunkIDs, fileID)

	return nil
}

// HasFile 检查指定文件是否已有切片入库
func (r *MemoryRepository) HasFile(fileID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.fileToChunkIDs[fileID]) > 0, nil
}

// Search 相似度搜索
// 指定 FileIDs 时只在对应文件的切片中检索，不会触及其他文件的数据
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	// 对于余弦距离，对查询向量进行归一化处理
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 过滤候选切片
	var candidates []ChunkRecord

	if len(filter.FileIDs) > 0 {
		// 通过文件索引直接定位切片，避免全量遍历
		for _, fileID := range filter.FileIDs {
			chunkIDs, exists := r.fileToChunkIDs[fileID]
			if !exists {
				continue
			}

			for _, chunkID := range chunkIDs {
				rec, exists := r.records[chunkID]
				if exists && matchMetadata(rec.Metadata, filter.Metadata) {
					candidates = append(candidates, rec)
				}
			}
		}
	} else {
		candidates = make([]ChunkRecord, 0, len(r.records))
		for _, rec := range r.records {
			if matchMetadata(rec.Metadata, filter.Metadata) {
				candidates = append(candidates, rec)
			}
		}
	}

	// 没有符合条件的切片，返回空结果
	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	// 根据CPU核心数量决定线程数，但不超过可用核心数的80%
	threads := runtime.NumCPU() * 4 / 5
	if threads < 1 {
		threads = 1
	}
	// 对于小量切片不使用并发
	if len(candidates) < 100 || threads == 1 {
		return r.serialSearch(vector, candidates, filter)
	}
	return r.parallelSearch(vector, candidates, filter, threads)
}

// serialSearch 串行搜索实现
func (r *MemoryRepository) serialSearch(vector []float32, recs []ChunkRecord, filter SearchFilter) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(recs))

	for _, rec := range recs {
		dist, err := ComputeDistance(vector, rec.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)

		// 只保留高于最小分数的结果
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Record:   rec,
				Score:    score,
				Distance: dist,
			})
		}
	}

	// 按得分排序（从高到低）
	SortSearchResults(results)

	// 只返回前N个结果
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	return results, nil
}

// parallelSearch 并行搜索实现
func (r *MemoryRepository) parallelSearch(vector []float32, recs []ChunkRecord, filter SearchFilter, threads int) ([]SearchResult, error) {
	// 计算每个线程处理的切片数量
	recsPerThread := (len(recs) + threads - 1) / threads

	resultsChan := make(chan []SearchResult, threads)
	errorsChan := make(chan error, threads)

	// 启动多个goroutine进行并行计算
	launched := 0
	for i := 0; i < threads; i++ {
		start := i * recsPerThread
		end := start + recsPerThread
		if end > len(recs) {
			end = len(recs)
		}

		if start >= end {
			continue
		}
		launched++

		go func(start, end int) {
			threadResults := make([]SearchResult, 0, end-start)

			for j := start; j < end; j++ {
				rec := recs[j]

				dist, err := ComputeDistance(vector, rec.Vector, r.distType)
				if err != nil {
					errorsChan <- fmt.Errorf("error computing distance: %v", err)
					return
				}

				score := DistanceToScore(dist, r.distType)

				if score >= filter.MinScore {
					threadResults = append(threadResults, SearchResult{
						Record:   rec,
						Score:    score,
						Distance: dist,
					})
				}
			}

			resultsChan <- threadResults
			errorsChan <- nil
		}(start, end)
	}

	// 收集结果和错误
	var allResults []SearchResult
	for i := 0; i < launched; i++ {
		if err := <-errorsChan; err != nil {
			return nil, err
		}
		allResults = append(allResults, <-resultsChan...)
	}

	// 排序并截取前N个结果
	SortSearchResults(allResults)

	if filter.MaxResults > 0 && len(allResults) > filter.MaxResults {
		allResults = allResults[:filter.MaxResults]
	}

	return allResults, nil
}

// Count 获取切片记录总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records), nil
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
