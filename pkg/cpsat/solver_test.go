package cpsat

import (
	"context"
	"testing"
	"time"
)

func TestSolveOptimal(t *testing.T) {
	// 覆盖约束下求最小成本：x+y ≥ 1，成本 x+2y，最优解 x=1, y=0
	m := NewModel()
	x := m.NewBoolVar("x")
	y := m.NewBoolVar("y")
	m.AddAtLeast(Sum(x, y), 1)
	m.Minimize(Sum(x).AddTerm(y, 2))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Objective != 1 {
		t.Errorf("Objective = %d, want 1", res.Objective)
	}
	if !res.BoolValue(x) || res.BoolValue(y) {
		t.Errorf("解应为 x=1, y=0，实际 x=%d, y=%d", res.Value(x), res.Value(y))
	}
	if res.Bound != res.Objective {
		t.Errorf("最优解的下界应等于目标值，got bound=%d, objective=%d", res.Bound, res.Objective)
	}
}

func TestSolveInfeasible(t *testing.T) {
	// 矛盾约束：x+y ≤ 1 且 x+y ≥ 2
	m := NewModel()
	x := m.NewBoolVar("x")
	y := m.NewBoolVar("y")
	m.AddAtMost(Sum(x, y), 1)
	m.AddAtLeast(Sum(x, y), 2)

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusInfeasible {
		t.Errorf("Status = %v, want %v", res.Status, StatusInfeasible)
	}
	if res.HasSolution() {
		t.Error("不可行模型不应携带解")
	}
}

func TestSolveExactlyOne(t *testing.T) {
	// 三选一，选最便宜的：成本 3、1、2，最优目标 1
	m := NewModel()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	c := m.NewBoolVar("c")
	m.AddEquality(Sum(a, b, c), 1)
	m.Minimize(LinearExpr{}.AddTerm(a, 3).AddTerm(b, 1).AddTerm(c, 2))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Objective != 1 {
		t.Errorf("Objective = %d, want 1", res.Objective)
	}
	if !res.BoolValue(b) {
		t.Errorf("应选中成本最低的变量 b，实际 a=%d, b=%d, c=%d",
			res.Value(a), res.Value(b), res.Value(c))
	}
}

func TestSolveBoundsPropagation(t *testing.T) {
	// 2x ≤ 7 在整数域上应收紧为 x ≤ 3
	m := NewModel()
	x := m.NewIntVar(0, 10, "x")
	m.AddAtMost(LinearExpr{}.AddTerm(x, 2), 7)
	m.Minimize(LinearExpr{}.AddTerm(x, -1))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Value(x) != 3 {
		t.Errorf("x = %d, want 3", res.Value(x))
	}
	if res.Objective != -3 {
		t.Errorf("Objective = %d, want -3", res.Objective)
	}
}

func TestSolveNegativeCoefficients(t *testing.T) {
	// x - y == 0 且 x + y == 2，解应为 x=y=1
	m := NewModel()
	x := m.NewIntVar(0, 5, "x")
	y := m.NewIntVar(0, 5, "y")
	m.AddEquality(Sum(x).AddTerm(y, -1), 0)
	m.AddEquality(Sum(x, y), 2)

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Value(x) != 1 || res.Value(y) != 1 {
		t.Errorf("解应为 x=1, y=1，实际 x=%d, y=%d", res.Value(x), res.Value(y))
	}
}

func TestSolveObjectiveOffset(t *testing.T) {
	// 目标中的常量偏移应计入目标值
	m := NewModel()
	x := m.NewBoolVar("x")
	m.AddEquality(Sum(x), 1)
	m.Minimize(Sum(x).AddConst(10))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Objective != 11 {
		t.Errorf("Objective = %d, want 11", res.Objective)
	}
}

func TestSolveNoObjective(t *testing.T) {
	// 无目标的可行性问题：找到任一可行解即为最优
	m := NewModel()
	x := m.NewBoolVar("x")
	y := m.NewBoolVar("y")
	z := m.NewBoolVar("z")
	m.AddEquality(Sum(x, y, z), 2)

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if !res.HasSolution() {
		t.Fatal("可行模型应携带解")
	}
	if res.Value(x)+res.Value(y)+res.Value(z) != 2 {
		t.Errorf("解应满足 x+y+z=2，实际 %d+%d+%d",
			res.Value(x), res.Value(y), res.Value(z))
	}
}

func TestSolveTimeout(t *testing.T) {
	// 时限到期且无现任解时应返回 TIMEOUT
	m := NewModel()
	vars := make([]IntVar, 20)
	for i := range vars {
		vars[i] = m.NewBoolVar("x")
	}
	m.AddEquality(Sum(vars...), 10)
	m.Minimize(Sum(vars...))

	res, err := Solve(context.Background(), m, Params{Workers: 1, MaxTime: time.Nanosecond})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusTimeout {
		t.Errorf("Status = %v, want %v", res.Status, StatusTimeout)
	}
	if res.HasSolution() {
		t.Error("超时且无解时不应携带赋值")
	}
}

func TestSolveParallelWorkers(t *testing.T) {
	// 多协程组合搜索应得到与单协程一致的最优目标值
	m := NewModel()
	var vars []IntVar
	for i := 0; i < 4; i++ {
		day := make([]IntVar, 3)
		for j := range day {
			day[j] = m.NewBoolVar("x")
		}
		m.AddEquality(Sum(day...), 1)
		vars = append(vars, day...)
	}
	obj := LinearExpr{}
	for i, v := range vars {
		obj = obj.AddTerm(v, int64(i%3+1))
	}
	m.Minimize(obj)

	res, err := Solve(context.Background(), m, Params{Workers: 4, Seed: 7})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Objective != 4 {
		t.Errorf("Objective = %d, want 4", res.Objective)
	}
}

func TestSolveRootFixed(t *testing.T) {
	// 根传播即可固定全部变量时直接返回最优
	m := NewModel()
	x := m.NewIntVar(3, 3, "x")
	m.Minimize(Sum(x))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Objective != 3 {
		t.Errorf("Objective = %d, want 3", res.Objective)
	}
}

func TestSolveFreeVariables(t *testing.T) {
	// 不参与任何约束的变量不经分支，按目标系数方向直接取边界值
	m := NewModel()
	x := m.NewBoolVar("x")
	free := m.NewIntVar(0, 9, "free")
	neg := m.NewIntVar(0, 5, "neg")
	m.AddEquality(Sum(x), 1)
	m.Minimize(Sum(x).AddTerm(free, 2).AddTerm(neg, -1))

	res, err := Solve(context.Background(), m, Params{Workers: 1})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOptimal)
	}
	if res.Value(free) != 0 {
		t.Errorf("正系数自由变量应取下界，got %d", res.Value(free))
	}
	if res.Value(neg) != 5 {
		t.Errorf("负系数自由变量应取上界，got %d", res.Value(neg))
	}
	if res.Objective != -4 {
		t.Errorf("Objective = %d, want -4", res.Objective)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{name: "最优", status: StatusOptimal, want: "OPTIMAL"},
		{name: "可行", status: StatusFeasible, want: "FEASIBLE"},
		{name: "不可行", status: StatusInfeasible, want: "INFEASIBLE"},
		{name: "超时", status: StatusTimeout, want: "TIMEOUT"},
		{name: "未知", status: StatusUnknown, want: "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}
