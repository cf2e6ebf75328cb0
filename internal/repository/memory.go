// Package repository 提供任务登记库的数据访问层
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fpapale/schedulai/pkg/model"
)

// MemoryJobRepository 进程内任务仓储，用于 driver=memory 部署与测试
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobRepository 创建进程内任务仓储
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*Job)}
}

// Create 创建任务记录
func (r *MemoryJobRepository) Create(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("任务已存在: %s", job.ID)
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

// UpdateStatus 更新任务状态
func (r *MemoryJobRepository) UpdateStatus(_ context.Context, id string, status model.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("任务不存在: %s", id)
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	return nil
}

// Complete 写入终态
func (r *MemoryJobRepository) Complete(_ context.Context, id string, status model.JobStatus, result []byte, bound *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("任务不存在: %s", id)
	}
	j.Status = status
	j.Result = append([]byte(nil), result...)
	if bound != nil {
		b := *bound
		j.Bound = &b
	}
	j.UpdatedAt = time.Now()
	return nil
}

// GetByID 根据ID获取任务；不存在时返回 (nil, nil)
func (r *MemoryJobRepository) GetByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

// cloneJob 深拷贝任务记录，避免调用方与仓储共享底层切片
func cloneJob(j *Job) *Job {
	out := *j
	out.Spec = append([]byte(nil), j.Spec...)
	if j.Result != nil {
		out.Result = append([]byte(nil), j.Result...)
	}
	if j.Bound != nil {
		b := *j.Bound
		out.Bound = &b
	}
	return &out
}
