// Package solver 驱动约束引擎求解编译产物，并把引擎终态映射为对外状态
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/fpapale/schedulai/pkg/cpsat"
	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/logger"
	"github.com/fpapale/schedulai/pkg/model"
	"github.com/fpapale/schedulai/pkg/scheduler/compiler"
)

// Options 单次求解的运行参数
type Options struct {
	JobID   string
	MaxTime time.Duration
	Workers int
	Seed    int64
}

// Outcome 驱动产物：状态已映射，赋值与各规则惩罚已抽取
type Outcome struct {
	Status      model.SolveStatus
	Objective   int64
	Bound       int64
	Assignments []model.Assignment
	Penalties   map[string]int64
	Duration    time.Duration
	Nodes       int64
}

// Run 求解已编译的模型。
// 引擎本身的异常（模型非法、内部错误）返回 error，由调用方映射为 ERROR 终态；
// 不可行与超时是正常终态，不作为 error 返回
func Run(ctx context.Context, cm *compiler.CompiledModel, opts Options) (*Outcome, error) {
	log := logger.NewSolverLogger(opts.JobID)
	spec := cm.Spec.Spec
	log.StartSolve(len(spec.Sets.Employees), len(spec.Sets.Days), len(spec.Sets.Shifts))
	log.ModelBuilt(cm.Model.VarCount(), cm.Model.ConstraintCount())

	started := time.Now()
	res, err := cpsat.Solve(ctx, cm.Model, cpsat.Params{
		MaxTime: opts.MaxTime,
		Workers: opts.Workers,
		Seed:    opts.Seed,
	})
	elapsed := time.Since(started)
	if err != nil {
		log.SolveFailed("solve", err)
		return nil, apperrors.EngineError(err)
	}

	out := &Outcome{
		Objective: res.Objective,
		Bound:     res.Bound,
		Duration:  elapsed,
		Nodes:     res.Nodes,
	}
	switch res.Status {
	case cpsat.StatusOptimal:
		out.Status = model.StatusOptimal
	case cpsat.StatusFeasible:
		out.Status = model.StatusFeasible
	case cpsat.StatusInfeasible:
		out.Status = model.StatusInfeasible
	case cpsat.StatusTimeout:
		out.Status = model.StatusTimeout
	default:
		statusErr := fmt.Errorf("引擎返回未知终态 %v", res.Status)
		log.SolveFailed("status", statusErr)
		return nil, apperrors.EngineError(statusErr)
	}

	if out.Status.HasSolution() {
		out.Assignments = extractAssignments(cm, res)
		out.Penalties = extractPenalties(cm, res)
	}
	log.SolveComplete(string(out.Status), out.Objective, elapsed)
	return out, nil
}

// extractAssignments 按规格顺序抽取工作班次赋值；休息班次由投影阶段补全
func extractAssignments(cm *compiler.CompiledModel, res *cpsat.Result) []model.Assignment {
	spec := cm.Spec.Spec
	var out []model.Assignment
	for ei, id := range spec.Sets.Employees {
		for di, day := range spec.Sets.Days {
			for si, s := range spec.Sets.Shifts {
				if !spec.Shifts[s].IsWork {
					continue
				}
				if res.BoolValue(cm.X[ei][di][si]) {
					out = append(out, model.Assignment{Employee: id, Day: day, Shift: s})
				}
			}
		}
	}
	return out
}

// extractPenalties 计算各规则按生效权重计的违反量，全部取值之和等于目标值。
// 同名规则（无 id 且同种类）合并累计；未违反的规则也保留键，值为 0
func extractPenalties(cm *compiler.CompiledModel, res *cpsat.Result) map[string]int64 {
	out := make(map[string]int64, len(cm.Penalties))
	for _, pt := range cm.Penalties {
		out[pt.RuleName] += pt.Weight * res.Eval(pt.Expr)
	}
	return out
}
