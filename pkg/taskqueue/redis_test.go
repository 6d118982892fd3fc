package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

func testQueueConfig(redisAddr string) *Config {
	return &Config{
		RedisAddr:   redisAddr,
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}
}

// TestQueueForTask 测试任务类型到队列的路由
func TestQueueForTask(t *testing.T) {
	assert.Equal(t, "critical", queueForTask(TaskDocumentProcess))
	assert.Equal(t, "default", queueForTask(TaskDocumentExtract))
	assert.Equal(t, "default", queueForTask(TaskDocumentSegment))
	assert.Equal(t, "default", queueForTask(TaskDocumentVectorize))
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	assert.NoError(t, err)
	assert.NotNil(t, queue)

	err = queue.Close()
	assert.NoError(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	// 测试基本入队
	taskID, err := queue.Enqueue(ctx, TaskDocumentExtract, "doc-123", payload)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	// 验证任务已入队
	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskDocumentExtract, task.Type)
	assert.Equal(t, "doc-123", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotNil(t, task.Payload)
}

// TestRedisQueue_EnqueueAt 测试定时入队功能
func TestRedisQueue_EnqueueAt(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	processAt := time.Now().Add(time.Second)
	taskID, err := queue.EnqueueAt(ctx, TaskDocumentExtract, "doc-123", payload, processAt)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskDocumentExtract, task.Type)
	assert.Equal(t, StatusPending, task.Status)
}

// TestRedisQueue_EnqueueIn 测试延时入队功能
func TestRedisQueue_EnqueueIn(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	taskID, err := queue.EnqueueIn(ctx, TaskDocumentExtract, "doc-123", payload, time.Second)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskDocumentExtract, task.Type)
	assert.Equal(t, StatusPending, task.Status)
}

// TestRedisQueue_GetTasksByDocument 测试获取文档相关任务
func TestRedisQueue_GetTasksByDocument(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	documentID := "doc-456"

	// 同一文档的提取、分块、向量化三个阶段任务
	payloads := []interface{}{
		&DocumentExtractPayload{
			FilePath: "/path/to/document1.pdf",
			FileName: "document1.pdf",
			FileType: "pdf",
		},
		&DocumentSegmentPayload{
			DocumentID:    documentID,
			MaxChunkChars: 500,
			OverlapChars:  50,
		},
		&DocumentVectorizePayload{
			DocumentID: documentID,
			Model:      "default",
		},
	}

	taskTypes := []TaskType{
		TaskDocumentExtract,
		TaskDocumentSegment,
		TaskDocumentVectorize,
	}

	for i, payload := range payloads {
		_, err := queue.Enqueue(ctx, taskTypes[i], documentID, payload)
		require.NoError(t, err)
	}

	tasks, err := queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	assert.Equal(t, len(payloads), len(tasks))

	for _, task := range tasks {
		assert.Equal(t, documentID, task.DocumentID)
	}

	// 测试获取不存在文档的任务
	emptyTasks, err := queue.GetTasksByDocument(ctx, "non-existent")
	assert.NoError(t, err)
	assert.Empty(t, emptyTasks)
}

// TestRedisQueue_UpdateTaskStatus 测试更新任务状态
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	taskID, err := queue.Enqueue(ctx, TaskDocumentExtract, "doc-789", payload)
	require.NoError(t, err)

	// 更新任务状态到处理中
	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)

	// 更新任务状态到已完成，带结果
	result := &DocumentExtractResult{
		DocumentID: "doc-789",
		PageCount:  5,
		UnitCount:  42,
		UnitsJSON:  `[{"text":"hello","page":1}]`,
	}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err = queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
	assert.NotEmpty(t, task.Result)

	// 结果可以还原
	var got DocumentExtractResult
	err = UnmarshalPayload(task.Result, &got)
	assert.NoError(t, err)
	assert.Equal(t, 42, got.UnitCount)

	// 测试更新到失败状态
	failTaskID, err := queue.Enqueue(ctx, TaskDocumentExtract, "doc-789", payload)
	require.NoError(t, err)

	errorMsg := "failed to extract text: encrypted document"
	err = queue.UpdateTaskStatus(ctx, failTaskID, StatusFailed, nil, errorMsg)
	assert.NoError(t, err)

	failTask, err := queue.GetTask(ctx, failTaskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, failTask.Status)
	assert.Equal(t, errorMsg, failTask.Error)
	assert.NotNil(t, failTask.CompletedAt)
}

// TestRedisQueue_DeleteTask 测试删除任务
func TestRedisQueue_DeleteTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	documentID := "doc-delete-test"
	taskID, err := queue.Enqueue(ctx, TaskDocumentExtract, documentID, payload)
	require.NoError(t, err)

	// 确认任务和文档关联存在
	tasks, err := queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	assert.Len(t, tasks, 1)

	// 删除任务
	err = queue.DeleteTask(ctx, taskID)
	assert.NoError(t, err)

	// 验证任务已被删除
	_, err = queue.GetTask(ctx, taskID)
	assert.Error(t, err)
	assert.Equal(t, ErrTaskNotFound, err)

	// 验证文档关联也被删除
	tasks, err = queue.GetTasksByDocument(ctx, documentID)
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_NotifyTaskUpdate 测试任务更新通知
func TestRedisQueue_NotifyTaskUpdate(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentExtract, "doc-notify", &DocumentExtractPayload{})
	require.NoError(t, err)

	err = queue.NotifyTaskUpdate(ctx, taskID)
	assert.NoError(t, err)
}

// mockHandler 实现Handler接口，用于测试
type mockHandler struct {
	processFunc func(context.Context, *Task) error
	taskTypes   []TaskType
}

func (h *mockHandler) ProcessTask(ctx context.Context, task *Task) error {
	if h.processFunc != nil {
		return h.processFunc(ctx, task)
	}
	return nil
}

func (h *mockHandler) GetTaskTypes() []TaskType {
	return h.taskTypes
}

// TestRedisWorker 测试Redis工作者
func TestRedisWorker(t *testing.T) {
	// asynq的服务端需要真实Redis，不可用时跳过
	redisAddr := "localhost:6379"

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		t.Skip("Skipping Redis worker test: Redis not available at localhost:6379")
		return
	}
	client.Close()

	cfg := testQueueConfig(redisAddr)

	redisQueue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	defer redisQueue.Close()

	rq, ok := redisQueue.(*RedisQueue)
	require.True(t, ok, "Failed to cast to RedisQueue")

	worker := NewRedisWorker(rq, cfg)
	require.NotNil(t, worker)

	// 注册一个简单的处理器
	processedTasks := make(map[string]bool)
	handler := &mockHandler{
		processFunc: func(ctx context.Context, task *Task) error {
			processedTasks[task.ID] = true
			time.Sleep(100 * time.Millisecond)
			return nil
		},
		taskTypes: []TaskType{TaskDocumentExtract},
	}

	worker.RegisterHandler(TaskDocumentExtract, handler)

	errChan := make(chan error)
	go func() {
		errChan <- worker.Start()
	}()

	// 等待工作者启动
	time.Sleep(100 * time.Millisecond)

	ctx = context.Background()
	payload := &DocumentExtractPayload{
		FilePath: "/path/to/document.pdf",
		FileName: "document.pdf",
		FileType: "pdf",
	}

	taskID, err := redisQueue.Enqueue(ctx, TaskDocumentExtract, "doc-worker-test", payload)
	require.NoError(t, err)

	// 给工作者一些时间来处理任务
	time.Sleep(500 * time.Millisecond)

	worker.Stop()

	task, err := redisQueue.GetTask(ctx, taskID)
	if err == nil {
		t.Logf("Task status: %s", task.Status)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Worker returned error: %v", err)
		}
	default:
	}
}

// TestRedisQueue_ProcessLifecycle 测试完整处理任务的状态流转
func TestRedisQueue_ProcessLifecycle(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(testQueueConfig(redisAddr))
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	documentID := "doc-lifecycle-test"

	payload := &DocumentProcessPayload{
		DocumentID:    documentID,
		FilePath:      "/path/to/document.pdf",
		FileName:      "lifecycle-test.pdf",
		FileType:      "pdf",
		MaxChunkChars: 500,
		OverlapChars:  50,
		Model:         "default",
		Metadata: map[string]string{
			"source": "lifecycle-test",
		},
	}

	taskID, err := queue.Enqueue(ctx, TaskDocumentProcess, documentID, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	result := &DocumentProcessResult{
		DocumentID: documentID,
		PageCount:  3,
		UnitCount:  27,
		ChunkCount: 5,
		Dimension:  512,
	}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.Result)
	assert.NotNil(t, task.CompletedAt)

	err = queue.NotifyTaskUpdate(ctx, taskID)
	assert.NoError(t, err)

	// 已完成任务的等待应立即返回
	completedTask, err := queue.WaitForTask(ctx, taskID, 100*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, completedTask.Status)

	err = queue.DeleteTask(ctx, taskID)
	assert.NoError(t, err)
}

// TestTaskInfo 测试TaskInfo生成
func TestTaskInfo(t *testing.T) {
	now := time.Now()
	startedAt := now.Add(-5 * time.Minute)
	completedAt := now.Add(-1 * time.Minute)

	task := &Task{
		ID:          "task-123",
		Type:        TaskDocumentProcess,
		DocumentID:  "doc-123",
		Status:      StatusCompleted,
		Error:       "",
		CreatedAt:   now.Add(-10 * time.Minute),
		UpdatedAt:   now,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
		Attempts:    1,
		MaxRetries:  3,
	}

	info := NewTaskInfo(task)

	assert.Equal(t, task.ID, info.ID)
	assert.Equal(t, task.Type, info.Type)
	assert.Equal(t, task.DocumentID, info.DocumentID)
	assert.Equal(t, task.Status, info.Status)
	assert.Equal(t, task.Error, info.Error)
	assert.Equal(t, task.CreatedAt, info.CreatedAt)
	assert.Equal(t, task.StartedAt, info.StartedAt)
	assert.Equal(t, task.CompletedAt, info.CompletedAt)
	assert.Equal(t, 100.0, info.Progress) // 已完成状态进度为100%
}
