package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 实现基于Faiss的向量仓库
// 使用平坦索引，删除记录时仅移除映射，向量本身保留在索引中，
// 搜索时跳过没有映射的位置
type FaissRepository struct {
	*BaseRepository
	mu             sync.RWMutex
	index          faiss.Index
	records        map[string]ChunkRecord
	fileToChunkIDs map[string][]string
	idToPosition   map[string]int
	posToID        map[int]string
	indexPath      string
	metaPath       string
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		BaseRepository: NewBaseRepository(config.Dimension, distType),
		records:        make(map[string]ChunkRecord),
		fileToChunkIDs: make(map[string][]string),
		idToPosition:   make(map[string]int),
		posToID:        make(map[int]string),
		indexPath:      indexPath,
		metaPath:       metaPath,
		saveOnClose:    true,
		autoSave:       true,
		autoSaveCount:  100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载索引
	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load chunk metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单条切片记录到仓库
func (r *FaissRepository) Add(rec ChunkRecord) error {
	if err := ValidateRecord(rec, r.dimension); err != nil {
		return err
	}
	if r.distType == Cosine {
		rec.Vector = normalizeVector(rec.Vector)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextPos := int(r.index.Ntotal())
	if err := r.index.Add(rec.Vector); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}

	r.records[rec.ID] = rec
	r.idToPosition[rec.ID] = nextPos
	r.posToID[nextPos] = rec.ID
	r.fileToChunkIDs[rec.FileID] = append(r.fileToChunkIDs[rec.FileID], rec.ID)
	r.operationCount++

	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// AddBatch 批量添加切片记录到仓库
func (r *FaissRepository) AddBatch(recs []ChunkRecord) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if err := ValidateRecord(recs[i], r.dimension); err != nil {
			return fmt.Errorf("invalid record %s: %v", recs[i].ID, err)
		}
		if r.distType == Cosine {
			recs[i].Vector = normalizeVector(recs[i].Vector)
		}
		if recs[i].CreatedAt.IsZero() {
			recs[i].CreatedAt = time.Now()
		}
		if recs[i].Metadata == nil {
			recs[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, rec := range recs {
		if err := r.index.Add(rec.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i, rec := range recs {
		position := startPos + i
		r.records[rec.ID] = rec
		r.idToPosition[rec.ID] = position
		r.posToID[position] = rec.ID
		r.fileToChunkIDs[rec.FileID] = append(r.fileToChunkIDs[rec.FileID], rec.ID)
	}
	r.operationCount += len(recs)
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 获取单条切片记录
func (r *FaissRepository) Get(id string) (ChunkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, exists := r.records[id]
	if !exists {
		return ChunkRecord{}, ErrChunkNotFound
	}
	return rec, nil
}

// Delete 删除单条切片记录
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, exists := r.records[id]
	if !exists {
		return ErrChunkNotFound
	}
	delete(r.records, id)
	if pos, ok := r.idToPosition[id]; ok {
		delete(r.posToID, pos)
	}
	delete(r.idToPosition, id)
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
	r.operationCount++
	return nil
}

// DeleteByFileID 删除指定文件的所有切片
func (r *FaissRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunkIDs, exists := r.fileToChunkIDs[fileID]
	if !exists {
		return nil
	}
	for _, id := range chunkIDs {
		delete(r.records, id)
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.posToID, pos)
		}
		delete(r.idToPosition, id)
	}
	delete(r.fileToChunkIDs, fileID)
	r.operationCount += len(chunkIDs)
	return nil
}

// HasFile 检查指定文件是否已有切片入库
func (r *FaissRepository) HasFile(fileID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fileToChunkIDs[fileID]) > 0, nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return []SearchResult{}, nil
	}
	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}
	// 过采样以补偿被过滤掉和已删除的位置
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}
	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}
	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}
		chunkID, found := r.posToID[int(idx)]
		if !found {
			continue
		}
		rec, exists := r.records[chunkID]
		if !exists {
			continue
		}
		if len(filter.FileIDs) > 0 {
			matched := false
			for _, id := range filter.FileIDs {
				if rec.FileID == id {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if !matchMetadata(rec.Metadata, filter.Metadata) {
			continue
		}
		dist := distances[i]
		score := DistanceToScore(dist, r.distType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Record:   rec,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}
	SortSearchResults(results)
	return results, nil
}

// Count 获取切片记录总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// saveIndex 保存索引和切片数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// faissMetadata Faiss索引的伴随元数据文件结构
type faissMetadata struct {
	Records        map[string]ChunkRecord `json:"records"`
	FileToChunkIDs map[string][]string    `json:"file_to_chunk_ids"`
	IDToPosition   map[string]int         `json:"id_to_position"`
	OperationCount int                    `json:"operation_count"`
}

// saveMetadata 保存切片元数据到文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}
	metadata := faissMetadata{
		Records:        r.records,
		FileToChunkIDs: r.fileToChunkIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载切片元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" {
		return nil
	}
	if !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}
	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	if metadata.Records != nil {
		r.records = metadata.Records
	}
	if metadata.FileToChunkIDs != nil {
		r.fileToChunkIDs = metadata.FileToChunkIDs
	}
	if metadata.IDToPosition != nil {
		r.idToPosition = metadata.IDToPosition
	}
	r.posToID = make(map[int]string, len(r.idToPosition))
	for id, pos := range r.idToPosition {
		r.posToID[pos] = id
	}
	r.operationCount = metadata.OperationCount
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
