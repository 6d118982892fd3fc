package taskqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// HandlerFunc 任务处理函数类型
// 处理特定类型的任务，返回错误表示处理失败
type HandlerFunc func(ctx context.Context, task *Task) error

// Dispatcher 任务分发器
// 按任务类型将队列中的任务分发给注册的处理函数
// 实现Handler接口，可直接注册到Worker
type Dispatcher struct {
	queue    Queue                    // 任务队列
	handlers map[TaskType]HandlerFunc // 任务类型对应的处理函数
	fallback HandlerFunc              // 默认处理函数
	logger   *logrus.Logger           // 日志记录器
	mu       sync.RWMutex
}

// NewDispatcher 创建新的任务分发器
func NewDispatcher(queue Queue, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}

	return &Dispatcher{
		queue:    queue,
		handlers: make(map[TaskType]HandlerFunc),
		logger:   logger,
	}
}

// Register 注册特定类型的任务处理函数
func (d *Dispatcher) Register(taskType TaskType, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[taskType] = handler
	d.logger.Infof("Registered handler for task type: %s", taskType)
}

// SetFallback 设置默认处理函数
// 未注册的任务类型交由默认处理函数处理
func (d *Dispatcher) SetFallback(handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fallback = handler
}

// ProcessTask 处理任务，实现Handler接口
// 处理前后更新队列中的任务状态，处理失败时记录错误信息
func (d *Dispatcher) ProcessTask(ctx context.Context, task *Task) error {
	d.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
		"type":        task.Type,
	}).Info("Dispatching task")

	d.mu.RLock()
	handler, exists := d.handlers[task.Type]
	if !exists {
		handler = d.fallback
	}
	d.mu.RUnlock()

	if handler == nil {
		d.logger.WithField("type", task.Type).Warn("No handler registered for task type")
		return fmt.Errorf("no handler registered for task type: %s", task.Type)
	}

	// 标记任务开始处理
	if err := d.queue.UpdateTaskStatus(ctx, task.ID, StatusProcessing, nil, ""); err != nil {
		d.logger.WithError(err).Warnf("Failed to mark task as processing: %s", task.ID)
	}

	if err := handler(ctx, task); err != nil {
		d.logger.WithFields(logrus.Fields{
			"task_id": task.ID,
			"type":    task.Type,
			"error":   err.Error(),
		}).Error("Task processing failed")

		if updateErr := d.queue.UpdateTaskStatus(ctx, task.ID, StatusFailed, nil, err.Error()); updateErr != nil {
			d.logger.WithError(updateErr).Warnf("Failed to mark task as failed: %s", task.ID)
		}
		// 通知等待方状态已变化，失败也要唤醒
		if notifyErr := d.queue.NotifyTaskUpdate(ctx, task.ID); notifyErr != nil {
			d.logger.WithError(notifyErr).Debug("Failed to notify task update")
		}
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"type":    task.Type,
	}).Info("Task processed successfully")

	return nil
}

// Complete 标记任务完成并写入结果
// 处理函数在产出结果后调用，完成状态和结果一起落库
func (d *Dispatcher) Complete(ctx context.Context, taskID string, result interface{}) error {
	if err := d.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	if err := d.queue.NotifyTaskUpdate(ctx, taskID); err != nil {
		d.logger.WithError(err).Debug("Failed to notify task update")
	}

	return nil
}

// GetTaskTypes 返回所有已注册的任务类型，实现Handler接口
func (d *Dispatcher) GetTaskTypes() []TaskType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]TaskType, 0, len(d.handlers))
	for taskType := range d.handlers {
		types = append(types, taskType)
	}
	return types
}

// HasHandler 检查任务类型是否有注册的处理函数
func (d *Dispatcher) HasHandler(taskType TaskType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.handlers[taskType]
	return exists
}

// Attach 将分发器的所有处理函数注册到Worker
func (d *Dispatcher) Attach(worker Worker) {
	for _, taskType := range d.GetTaskTypes() {
		worker.RegisterHandler(taskType, d)
	}
}
