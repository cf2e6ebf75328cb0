// Package cpsat 实现排班编译器使用的整数线性约束求解引擎
//
// 模型由带边界的整数变量、线性约束 lo ≤ Σ aᵢ·xᵢ ≤ hi 和可选的最小化目标组成。
// 求解采用边界传播结合深度优先分支定界，支持多协程组合搜索：各协程以不同的
// 分支顺序探索同一棵搜索树，并共享现任最优解用于剪枝。
package cpsat

import (
	"fmt"
	"math"
	"sort"
)

// 线性约束单侧无界时使用的哨兵值。
const (
	NoLowerBound int64 = -(1 << 62)
	NoUpperBound int64 = 1 << 62
)

// maxVarBound 变量边界的容许绝对值，保证活动量计算不会溢出
const maxVarBound int64 = 1 << 40

// IntVar 模型中整数变量的句柄
type IntVar struct {
	idx int
}

// Term 线性表达式中的一项
type Term struct {
	Var  IntVar
	Coef int64
}

// LinearExpr 线性表达式 Σ coef·var + offset
type LinearExpr struct {
	Terms  []Term
	Offset int64
}

// Sum 构造若干变量之和的表达式
func Sum(vars ...IntVar) LinearExpr {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: 1}
	}
	return LinearExpr{Terms: terms}
}

// AddTerm 返回追加一项后的新表达式，原表达式保持不变
func (e LinearExpr) AddTerm(v IntVar, coef int64) LinearExpr {
	terms := make([]Term, len(e.Terms), len(e.Terms)+1)
	copy(terms, e.Terms)
	e.Terms = append(terms, Term{Var: v, Coef: coef})
	return e
}

// AddConst 返回常量偏移增加 c 后的新表达式
func (e LinearExpr) AddConst(c int64) LinearExpr {
	e.Offset += c
	return e
}

// AddScaled 返回叠加 k 倍 other 后的新表达式
func (e LinearExpr) AddScaled(other LinearExpr, k int64) LinearExpr {
	terms := make([]Term, len(e.Terms), len(e.Terms)+len(other.Terms))
	copy(terms, e.Terms)
	for _, t := range other.Terms {
		terms = append(terms, Term{Var: t.Var, Coef: t.Coef * k})
	}
	return LinearExpr{Terms: terms, Offset: e.Offset + other.Offset*k}
}

// cTerm 约束内部使用的规范化线性项
type cTerm struct {
	v    int32
	coef int64
}

// linearConstraint 规范化后的线性约束 lo ≤ Σ terms ≤ hi
type linearConstraint struct {
	terms []cTerm
	lo    int64
	hi    int64
}

// Model 待求解的约束模型
//
// 模型构建过程中的非法操作（无效边界、跨模型变量等）会被记录，
// 并在 Solve 时作为错误统一返回。
type Model struct {
	names     []string
	lb        []int64
	ub        []int64
	cons      []linearConstraint
	obj       []cTerm
	objOffset int64
	hasObj    bool
	err       error
}

// NewModel 创建空模型
func NewModel() *Model {
	return &Model{}
}

// NewIntVar 创建取值范围为 [lb, ub] 的整数变量
func (m *Model) NewIntVar(lb, ub int64, name string) IntVar {
	if m.err == nil {
		switch {
		case lb > ub:
			m.err = fmt.Errorf("变量 %s 的下界 %d 大于上界 %d", name, lb, ub)
		case lb < -maxVarBound || ub > maxVarBound:
			m.err = fmt.Errorf("变量 %s 的边界超出可求解范围", name)
		}
	}
	m.names = append(m.names, name)
	m.lb = append(m.lb, lb)
	m.ub = append(m.ub, ub)
	return IntVar{idx: len(m.lb) - 1}
}

// NewBoolVar 创建取值为 0 或 1 的布尔变量
func (m *Model) NewBoolVar(name string) IntVar {
	return m.NewIntVar(0, 1, name)
}

// AddLinear 添加线性约束 lo ≤ e ≤ hi
func (m *Model) AddLinear(e LinearExpr, lo, hi int64) {
	terms := m.normalize(e)
	if m.err != nil {
		return
	}
	if lo < NoLowerBound {
		lo = NoLowerBound
	}
	if hi > NoUpperBound {
		hi = NoUpperBound
	}
	m.cons = append(m.cons, linearConstraint{terms: terms, lo: lo - e.Offset, hi: hi - e.Offset})
}

// AddEquality 添加等式约束 e == v
func (m *Model) AddEquality(e LinearExpr, v int64) {
	m.AddLinear(e, v, v)
}

// AddAtMost 添加上界约束 e ≤ hi
func (m *Model) AddAtMost(e LinearExpr, hi int64) {
	m.AddLinear(e, NoLowerBound, hi)
}

// AddAtLeast 添加下界约束 e ≥ lo
func (m *Model) AddAtLeast(e LinearExpr, lo int64) {
	m.AddLinear(e, lo, NoUpperBound)
}

// Minimize 设置最小化目标
func (m *Model) Minimize(e LinearExpr) {
	terms := m.normalize(e)
	if m.err != nil {
		return
	}
	m.obj = terms
	m.objOffset = e.Offset
	m.hasObj = true
}

// VarCount 返回模型中的变量数
func (m *Model) VarCount() int {
	return len(m.lb)
}

// ConstraintCount 返回模型中的约束数
func (m *Model) ConstraintCount() int {
	return len(m.cons)
}

// normalize 合并重复变量、剔除零系数并检查数值范围
func (m *Model) normalize(e LinearExpr) []cTerm {
	if m.err != nil {
		return nil
	}
	merged := make(map[int]int64, len(e.Terms))
	for _, t := range e.Terms {
		if t.Var.idx < 0 || t.Var.idx >= len(m.lb) {
			m.err = fmt.Errorf("表达式引用了不属于该模型的变量")
			return nil
		}
		merged[t.Var.idx] += t.Coef
	}
	terms := make([]cTerm, 0, len(merged))
	for idx, coef := range merged {
		if coef == 0 {
			continue
		}
		terms = append(terms, cTerm{v: int32(idx), coef: coef})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].v < terms[j].v })

	// 活动量范围估算，过大时拒绝模型而不是冒溢出风险
	var span float64
	for _, t := range terms {
		mag := m.lb[t.v]
		if mag < 0 {
			mag = -mag
		}
		if u := m.ub[t.v]; u > mag {
			mag = u
		}
		span += math.Abs(float64(t.coef)) * float64(mag)
	}
	if span > float64(int64(1)<<61) {
		m.err = fmt.Errorf("线性表达式的数值范围过大")
		return nil
	}
	return terms
}
