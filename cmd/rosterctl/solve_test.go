package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/fpapale/schedulai/pkg/model"
)

func TestRunSolveProducesSchedule(t *testing.T) {
	solveFile = writeSpecFile(t, rosterDoc(t, 1, 1))
	solveMaxTime = 5
	solveWorkers = 1
	solveSeed = 7

	cmd, out, _ := newTestCmd()
	if err := runSolve(cmd, nil); err != nil {
		t.Fatalf("求解应成功: %v", err)
	}

	var result model.Result
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if result.Status != model.StatusOptimal {
		t.Errorf("状态 = %s, 期望 OPTIMAL", result.Status)
	}
	if len(result.Flat) != 1 {
		t.Fatalf("扁平视图行数 = %d, 期望 1", len(result.Flat))
	}
	if result.Flat[0].Employee != "P1" || result.Flat[0].Shift != "M" {
		t.Errorf("指派 = %+v, 期望 P1 上 M 班", result.Flat[0])
	}
	if result.Stats == nil || result.Stats.MinutesWorked["P1"] != 480 {
		t.Errorf("工作量统计不符: %+v", result.Stats)
	}
}

func TestRunSolveInfeasibleSpec(t *testing.T) {
	// 一名员工配两人需求，约束集合必然无解
	solveFile = writeSpecFile(t, rosterDoc(t, 1, 2))
	solveMaxTime = 5
	solveWorkers = 1
	solveSeed = 7

	cmd, out, _ := newTestCmd()
	err := runSolve(cmd, nil)
	if err == nil {
		t.Fatal("无可行解应返回错误以产生非零退出码")
	}

	var failure model.Failure
	if uerr := json.Unmarshal(out.Bytes(), &failure); uerr != nil {
		t.Fatalf("解析失败载荷失败: %v", uerr)
	}
	if failure.Status != model.StatusInfeasible {
		t.Errorf("状态 = %s, 期望 INFEASIBLE", failure.Status)
	}
	if failure.Message != "约束集合无可行解" {
		t.Errorf("消息 = %q", failure.Message)
	}
	if failure.Bound == nil {
		t.Error("失败载荷应携带界")
	}
}

func TestRunSolveRejectsInvalidSpec(t *testing.T) {
	solveFile = writeSpecFile(t, []byte(`{"sets":{}}`))

	cmd, _, errOut := newTestCmd()
	err := runSolve(cmd, nil)
	if err == nil {
		t.Fatal("非法规格应返回错误")
	}
	if !strings.Contains(err.Error(), "未通过校验") {
		t.Errorf("错误信息 = %q", err.Error())
	}
	if !strings.Contains(errOut.String(), "校验违规") {
		t.Errorf("标准错误应逐条打印违规, 实际 = %q", errOut.String())
	}
}

func TestRunSolveMissingFile(t *testing.T) {
	solveFile = filepath.Join(t.TempDir(), "absent.json")

	cmd, _, _ := newTestCmd()
	err := runSolve(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "读取规格文档失败") {
		t.Errorf("错误 = %v", err)
	}
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name   string
		status model.SolveStatus
		want   string
	}{
		{"无解", model.StatusInfeasible, "约束集合无可行解"},
		{"超时", model.StatusTimeout, "时限内未找到可行解"},
		{"引擎异常", model.StatusError, "求解引擎异常"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureMessage(tt.status); got != tt.want {
				t.Errorf("failureMessage(%s) = %q, 期望 %q", tt.status, got, tt.want)
			}
		})
	}
}

// ===================== 测试辅助 =====================

func newTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

func writeSpecFile(t *testing.T, doc []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("写入规格文档失败: %v", err)
	}
	return path
}

// rosterDoc 构造最小可解文档：单日单站点，M/OFF 两班，每人每日恰一班
func rosterDoc(t *testing.T, employees, demandCount int) []byte {
	t.Helper()
	empList := make([]interface{}, 0, employees)
	empDefs := make(map[string]interface{}, employees)
	for i := 1; i <= employees; i++ {
		name := fmt.Sprintf("P%d", i)
		empList = append(empList, name)
		empDefs[name] = map[string]interface{}{
			"skills":    []interface{}{"general"},
			"roles":     []interface{}{"worker"},
			"site_home": "A",
			"contract":  map[string]interface{}{"type": "full_time"},
		}
	}
	doc := map[string]interface{}{
		"sets": map[string]interface{}{
			"employees": empList,
			"days":      []interface{}{"2026-03-02"},
			"shifts":    []interface{}{"M", "OFF"},
			"sites":     []interface{}{"A"},
		},
		"shifts": map[string]interface{}{
			"M":   map[string]interface{}{"start": "07:00", "end": "15:00", "minutes": 480, "is_work": true},
			"OFF": map[string]interface{}{"start": "00:00", "end": "00:00", "minutes": 0, "is_work": false},
		},
		"employees": empDefs,
		"demand": []interface{}{
			map[string]interface{}{"day": "2026-03-02", "site": "A", "shift": "M", "eq": demandCount},
		},
		"constraints": []interface{}{
			map[string]interface{}{
				"id":    "one-per-day",
				"type":  "hard",
				"kind":  "exactly_one_assignment_per_day",
				"scope": map[string]interface{}{"employees": "ALL"},
				"data":  map[string]interface{}{"shifts": []interface{}{"M", "OFF"}},
			},
		},
		"objective": map[string]interface{}{
			"mode":  "minimize",
			"terms": []interface{}{map[string]interface{}{"kind": "soft_penalties_total", "weight": 1}},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("构造文档失败: %v", err)
	}
	return raw
}
