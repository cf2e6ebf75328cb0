// Package repository 提供任务登记库的数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fpapale/schedulai/pkg/model"
)

// Job 求解任务记录。Spec 保存提交的规格原文，Result 保存终态载荷：
// done 为完整结果，failed 为失败说明
type Job struct {
	ID        string          `json:"id"`
	Status    model.JobStatus `json:"status"`
	Spec      json.RawMessage `json:"spec,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Bound     *int64          `json:"bound,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobRepositoryInterface 任务仓储接口
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, id string, status model.JobStatus) error
	Complete(ctx context.Context, id string, status model.JobStatus, result []byte, bound *int64) error
	GetByID(ctx context.Context, id string) (*Job, error)
}

// JobRepository 基于 database/sql 的任务仓储，
// $n 占位符在 lib/pq 与 modernc sqlite 上行为一致
type JobRepository struct {
	db DB
}

// NewJobRepository 创建任务仓储
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// Bootstrap 初始化任务表，服务启动时调用一次
func (r *JobRepository) Bootstrap(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			spec       TEXT NOT NULL,
			result     TEXT,
			bound      BIGINT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("初始化任务表失败: %w", err)
	}
	return nil
}

// Create 创建任务记录
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO jobs (id, status, spec, result, bound, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Status), []byte(job.Spec), []byte(job.Result), job.Bound,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建任务记录失败: %w", err)
	}

	return nil
}

// UpdateStatus 更新任务状态
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status model.JobStatus) error {
	query := `UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("更新任务状态失败: %w", err)
	}
	return nil
}

// Complete 写入终态：状态、结果载荷与已证明的目标下界
func (r *JobRepository) Complete(ctx context.Context, id string, status model.JobStatus, result []byte, bound *int64) error {
	query := `
		UPDATE jobs SET status = $2, result = $3, bound = $4, updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, string(status), result, bound, time.Now())
	if err != nil {
		return fmt.Errorf("写入任务终态失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取任务；不存在时返回 (nil, nil)
func (r *JobRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	query := `
		SELECT id, status, spec, result, bound, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	return r.scanJob(r.db.QueryRowContext(ctx, query, id))
}

// scanJob 扫描单行任务
func (r *JobRepository) scanJob(row Scanner) (*Job, error) {
	j := &Job{}
	var status string
	var spec, result []byte
	var bound sql.NullInt64

	err := row.Scan(&j.ID, &status, &spec, &result, &bound, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描任务记录失败: %w", err)
	}

	j.Status = model.JobStatus(status)
	j.Spec = json.RawMessage(spec)
	if len(result) > 0 {
		j.Result = json.RawMessage(result)
	}
	if bound.Valid {
		j.Bound = &bound.Int64
	}

	return j, nil
}
