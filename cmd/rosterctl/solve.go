package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpapale/schedulai/pkg/model"
	"github.com/fpapale/schedulai/pkg/scheduler/compiler"
	"github.com/fpapale/schedulai/pkg/scheduler/projector"
	"github.com/fpapale/schedulai/pkg/scheduler/solver"
	"github.com/fpapale/schedulai/pkg/stats"
	"github.com/fpapale/schedulai/pkg/validator"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "本地求解排班规格",
	Long:  "读取规格 JSON 文档，完成校验、编译与求解，将结果 JSON 输出到标准输出；无可行解或超时时以非零状态码退出。",
	RunE:  runSolve,
}

var (
	solveFile    string
	solveMaxTime int
	solveWorkers int
	solveSeed    int64
)

func init() {
	solveCmd.Flags().StringVarP(&solveFile, "file", "f", "", "规格文档路径（必填）")
	solveCmd.Flags().IntVar(&solveMaxTime, "max-time", 10, "求解时限（秒）")
	solveCmd.Flags().IntVar(&solveWorkers, "workers", 4, "求解并发度")
	solveCmd.Flags().Int64Var(&solveSeed, "seed", 0, "随机种子（0表示按当前时间取）")

	if err := solveCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("标记file为必填参数失败: %v", err))
	}

	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, _ []string) error {
	doc, err := os.ReadFile(solveFile)
	if err != nil {
		return fmt.Errorf("读取规格文档失败: %w", err)
	}

	ns, verrs := validator.ValidateAndNormalize(doc)
	if verrs.HasErrors() {
		for _, msg := range verrs.Strings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "校验违规: %s\n", msg)
		}
		return fmt.Errorf("规格文档未通过校验（%d 处违规）", len(verrs.Strings()))
	}

	cm, err := compiler.Compile(ns)
	if err != nil {
		return fmt.Errorf("编译排班模型失败: %w", err)
	}

	outcome, err := solver.Run(context.Background(), cm, solver.Options{
		JobID:   "cli",
		MaxTime: time.Duration(solveMaxTime) * time.Second,
		Workers: solveWorkers,
		Seed:    solveSeed,
	})
	if err != nil {
		return fmt.Errorf("求解失败: %w", err)
	}

	if !outcome.Status.HasSolution() {
		failure := model.Failure{
			Status:  outcome.Status,
			Message: failureMessage(outcome.Status),
			Bound:   &outcome.Bound,
		}
		if err := printJSON(cmd, failure); err != nil {
			return err
		}
		return fmt.Errorf("未获得排班结果: %s", outcome.Status)
	}

	proj := projector.Project(ns, outcome.Assignments)
	result := model.Result{
		Status:         outcome.Status,
		ObjectiveValue: outcome.Objective,
		Schedule:       proj.Schedule,
		Flat:           proj.Flat,
		Penalties:      outcome.Penalties,
		Stats:          stats.Summarize(ns, proj.Flat),
	}
	return printJSON(cmd, result)
}

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

// printJSON 将载荷以缩进 JSON 打到标准输出
func printJSON(cmd *cobra.Command, payload interface{}) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
