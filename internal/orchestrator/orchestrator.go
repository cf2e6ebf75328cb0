// Package orchestrator 任务编排：同步完成校验与规范化，
// 异步驱动 编译 -> 求解 -> 投影 流水线并落库终态
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fpapale/schedulai/internal/config"
	"github.com/fpapale/schedulai/internal/metrics"
	"github.com/fpapale/schedulai/internal/repository"
	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/logger"
	"github.com/fpapale/schedulai/pkg/model"
	"github.com/fpapale/schedulai/pkg/scheduler/compiler"
	"github.com/fpapale/schedulai/pkg/scheduler/projector"
	"github.com/fpapale/schedulai/pkg/scheduler/solver"
	"github.com/fpapale/schedulai/pkg/stats"
	"github.com/fpapale/schedulai/pkg/validator"
)

// ===================== 类型定义 =====================

// SubmitRequest 任务提交载荷。MaxTimeSeconds 与 Workers 为零时采用配置缺省
type SubmitRequest struct {
	Spec           json.RawMessage `json:"spec"`
	MaxTimeSeconds int             `json:"max_time_seconds,omitempty"`
	Workers        int             `json:"workers,omitempty"`
}

// task 通过同步校验、等待求解的任务
type task struct {
	jobID   string
	ns      *model.NormalizedSpec
	maxTime time.Duration
	workers int
}

// Orchestrator 有界队列 + 固定工作池的任务编排器。
// 队列占满时直接拒绝提交，而不是让调用方无限等待
type Orchestrator struct {
	cfg    *config.Config
	repo   repository.JobRepositoryInterface
	queue  chan *task
	slots  chan struct{}
	group  *errgroup.Group
	cancel context.CancelFunc
}

// New 创建编排器，工作池需另行 Start
func New(cfg *config.Config, repo repository.JobRepositoryInterface) *Orchestrator {
	capacity := cfg.Jobs.QueueCapacity
	if capacity <= 0 {
		capacity = 1
	}
	return &Orchestrator{
		cfg:   cfg,
		repo:  repo,
		queue: make(chan *task, capacity),
		slots: make(chan struct{}, capacity),
	}
}

// ===================== 生命周期 =====================

// Start 启动固定数量的工作协程
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	group, ctx := errgroup.WithContext(ctx)
	o.group = group

	workers := o.cfg.Jobs.PoolSize
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			o.workLoop(ctx)
			return nil
		})
	}

	logger.Info().
		Int("pool_size", workers).
		Int("queue_capacity", cap(o.queue)).
		Msg("任务工作池已启动")
}

// Stop 取消在跑的求解并等待全部工作协程退出，
// ctx 到期仍未退出时放弃等待
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		_ = o.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("任务工作池已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ===================== 对外操作 =====================

// Validate 只跑结构与引用校验，不登记任务。
// 返回 nil 表示规格合法
func (o *Orchestrator) Validate(doc []byte) []string {
	_, verrs := validator.ValidateAndNormalize(doc)
	if verrs.HasErrors() {
		return verrs.Strings()
	}
	return nil
}

// Submit 同步完成校验、规范化与容量检查，通过后登记任务并入队。
// 校验违规通过第二个返回值报告（与规范化器同一约定）且不产生任务记录；
// 容量超限与队列占满作为错误返回，后者为 ErrOverloaded
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, *apperrors.ValidationErrors, error) {
	ns, verrs := validator.ValidateAndNormalize(req.Spec)
	if verrs.HasErrors() {
		return "", verrs, nil
	}
	if cells := ns.LatticeCells(); cells > o.cfg.Solver.MaxLatticeCells {
		return "", nil, apperrors.CapacityExceeded(cells, o.cfg.Solver.MaxLatticeCells)
	}

	maxTime, workers := o.solveOptions(req.MaxTimeSeconds, req.Workers)

	// 令牌数与队列容量相同，拿到令牌即保证入队不阻塞
	select {
	case o.slots <- struct{}{}:
	default:
		return "", nil, apperrors.ErrOverloaded
	}

	job := &repository.Job{
		ID:     uuid.New().String(),
		Status: model.JobQueued,
		Spec:   append(json.RawMessage(nil), req.Spec...),
	}
	if err := o.repo.Create(ctx, job); err != nil {
		<-o.slots
		return "", nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "登记任务失败")
	}

	o.queue <- &task{jobID: job.ID, ns: ns, maxTime: maxTime, workers: workers}
	metrics.RecordJobSubmitted()
	metrics.SetJobsQueued(len(o.queue))

	logger.Info().
		Str("job_id", job.ID).
		Int("lattice_cells", ns.LatticeCells()).
		Dur("max_time", maxTime).
		Int("workers", workers).
		Msg("任务已入队")
	return job.ID, nil, nil
}

// solveOptions 补全缺省求解参数并收紧并发度，
// 时限上限由接入层校验
func (o *Orchestrator) solveOptions(maxTimeSeconds, workers int) (time.Duration, int) {
	maxTime := o.cfg.Solver.DefaultTimeLimit
	if maxTimeSeconds > 0 {
		maxTime = time.Duration(maxTimeSeconds) * time.Second
	}
	w := workers
	if w <= 0 {
		w = o.cfg.Solver.DefaultWorkers
	}
	if o.cfg.Solver.MaxWorkers > 0 && w > o.cfg.Solver.MaxWorkers {
		w = o.cfg.Solver.MaxWorkers
	}
	return maxTime, w
}

// ===================== 工作池内部 =====================

func (o *Orchestrator) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.queue:
			// 出队即释放令牌：队列约束的是等待中的任务，不含在跑的
			<-o.slots
			metrics.SetJobsQueued(len(o.queue))
			o.run(ctx, t)
		}
	}
}

// run 驱动单个任务：running -> 编译 -> 求解 -> 投影与汇总 -> 终态落库
func (o *Orchestrator) run(ctx context.Context, t *task) {
	started := time.Now()
	terminal := model.StatusError
	metrics.AddJobsRunning(1)
	defer func() {
		metrics.AddJobsRunning(-1)
		metrics.RecordJobOutcome(string(terminal), time.Since(started))
	}()

	log := logger.WithFields(map[string]interface{}{
		"component": "orchestrator",
		"job_id":    t.jobID,
	})

	if err := o.repo.UpdateStatus(ctx, t.jobID, model.JobRunning); err != nil {
		log.Error().Err(err).Msg("更新任务状态失败")
	}

	cm, err := compiler.CompileWithCeiling(t.ns, o.cfg.Solver.MaxLatticeCells)
	if err != nil {
		log.Error().Err(err).Msg("编译排班模型失败")
		o.fail(ctx, t.jobID, &model.Failure{
			Status:  model.StatusError,
			Message: err.Error(),
		})
		return
	}

	outcome, err := solver.Run(ctx, cm, solver.Options{
		JobID:   t.jobID,
		MaxTime: t.maxTime,
		Workers: t.workers,
	})
	if err != nil {
		log.Error().Err(err).Msg("求解引擎异常")
		o.fail(ctx, t.jobID, &model.Failure{
			Status:  model.StatusError,
			Message: err.Error(),
		})
		return
	}

	if !outcome.Status.HasSolution() {
		terminal = outcome.Status
		bound := outcome.Bound
		o.fail(ctx, t.jobID, &model.Failure{
			Status:  outcome.Status,
			Message: failureMessage(outcome.Status),
			Bound:   &bound,
		})
		return
	}

	proj := projector.Project(t.ns, outcome.Assignments)
	result := &model.Result{
		Status:         outcome.Status,
		ObjectiveValue: outcome.Objective,
		Schedule:       proj.Schedule,
		Flat:           proj.Flat,
		Penalties:      outcome.Penalties,
		Stats:          stats.Summarize(t.ns, proj.Flat),
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.fail(ctx, t.jobID, &model.Failure{
			Status:  model.StatusError,
			Message: "结果序列化失败: " + err.Error(),
		})
		return
	}

	terminal = outcome.Status
	bound := outcome.Bound
	if err := o.repo.Complete(ctx, t.jobID, model.JobDone, payload, &bound); err != nil {
		log.Error().Err(err).Msg("写入任务终态失败")
		return
	}
	log.Info().
		Str("status", string(outcome.Status)).
		Int64("objective", outcome.Objective).
		Dur("duration", outcome.Duration).
		Msg("任务完成")
}

// fail 将任务落为 failed 终态
func (o *Orchestrator) fail(ctx context.Context, jobID string, f *model.Failure) {
	payload, err := json.Marshal(f)
	if err != nil {
		payload = []byte(`{"status":"ERROR","message":"结果序列化失败"}`)
	}
	if err := o.repo.Complete(ctx, jobID, model.JobFailed, payload, f.Bound); err != nil {
		logger.Error().Str("job_id", jobID).Err(err).Msg("写入任务终态失败")
	}
}

// failureMessage 失败终态的对外说明
func failureMessage(status model.SolveStatus) string {
	switch status {
	case model.StatusInfeasible:
		return "约束集合无可行解"
	case model.StatusTimeout:
		return "时限内未找到可行解"
	default:
		return "求解引擎异常"
	}
}
