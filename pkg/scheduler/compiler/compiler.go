// Package compiler 将规范化的排班规格降低为整数线性约束模型
//
// 变量格是完整的三维布尔格 X[e][d][s]：员工 e 在日期 d 是否承担班次 s。
// 覆盖需求与硬规则降低为线性约束，软规则降低为带权的违反量表达式并汇入
// 最小化目标。降低过程只依赖规范化产物，绝不重新校验引用。
package compiler

import (
	"fmt"

	"github.com/fpapale/schedulai/pkg/cpsat"
	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/model"
)

// MaxLatticeCells 变量格规模上限，超过即拒绝编译
const MaxLatticeCells = 200000

// PenaltyTerm 单条软规则的违反量表达式及其生效权重（全局权重 × 规则权重）
type PenaltyTerm struct {
	RuleName string
	Weight   int64
	Expr     cpsat.LinearExpr
}

// CompiledModel 编译产物：约束模型与结果投影所需的变量索引
type CompiledModel struct {
	Model     *cpsat.Model
	X         [][][]cpsat.IntVar // [员工][日期][班次]，次序与 sets 一致
	Penalties []PenaltyTerm
	Objective cpsat.LinearExpr
	Spec      *model.NormalizedSpec
}

// Compile 按缺省变量格上限把规范化规格编译为约束模型
func Compile(ns *model.NormalizedSpec) (*CompiledModel, error) {
	return CompileWithCeiling(ns, MaxLatticeCells)
}

// CompileWithCeiling 以显式变量格上限编译，配置层据此调整缺省值
func CompileWithCeiling(ns *model.NormalizedSpec, maxCells int) (*CompiledModel, error) {
	if maxCells <= 0 {
		maxCells = MaxLatticeCells
	}
	if cells := ns.LatticeCells(); cells > maxCells {
		return nil, apperrors.CapacityExceeded(cells, maxCells)
	}

	b := newBuilder(ns)
	b.lowerDemand()
	for _, r := range ns.Rules {
		var err error
		if r.Type == model.RuleHard {
			err = b.lowerHard(r)
		} else {
			err = b.lowerSoft(r)
		}
		if err != nil {
			return nil, err
		}
	}
	b.assembleObjective()

	return &CompiledModel{
		Model:     b.m,
		X:         b.x,
		Penalties: b.penalties,
		Objective: b.objective,
		Spec:      ns,
	}, nil
}

// builder 携带降低过程的全部状态，在各降低函数之间显式传递
type builder struct {
	m         *cpsat.Model
	ns        *model.NormalizedSpec
	x         [][][]cpsat.IntVar
	eIdx      map[string]int
	sIdx      map[string]int
	work      [][]cpsat.LinearExpr // [员工][日期] 工作班次之和
	minutes   [][]cpsat.LinearExpr // [员工][日期] 工作分钟数
	penalties []PenaltyTerm
	objective cpsat.LinearExpr
}

func newBuilder(ns *model.NormalizedSpec) *builder {
	spec := ns.Spec
	b := &builder{
		m:    cpsat.NewModel(),
		ns:   ns,
		eIdx: make(map[string]int, len(spec.Sets.Employees)),
		sIdx: make(map[string]int, len(spec.Sets.Shifts)),
	}
	for i, id := range spec.Sets.Employees {
		b.eIdx[id] = i
	}
	for i, label := range spec.Sets.Shifts {
		b.sIdx[label] = i
	}

	// 变量格
	b.x = make([][][]cpsat.IntVar, len(spec.Sets.Employees))
	for ei, e := range spec.Sets.Employees {
		b.x[ei] = make([][]cpsat.IntVar, len(spec.Sets.Days))
		for di, d := range spec.Sets.Days {
			b.x[ei][di] = make([]cpsat.IntVar, len(spec.Sets.Shifts))
			for si, s := range spec.Sets.Shifts {
				b.x[ei][di][si] = b.m.NewBoolVar(fmt.Sprintf("x[%s,%s,%s]", e, d, s))
			}
		}
	}

	// 派生表达式：work[e][d] 与 minutes[e][d]
	b.work = make([][]cpsat.LinearExpr, len(spec.Sets.Employees))
	b.minutes = make([][]cpsat.LinearExpr, len(spec.Sets.Employees))
	for ei := range spec.Sets.Employees {
		b.work[ei] = make([]cpsat.LinearExpr, len(spec.Sets.Days))
		b.minutes[ei] = make([]cpsat.LinearExpr, len(spec.Sets.Days))
		for di := range spec.Sets.Days {
			workTerms := make([]cpsat.Term, 0, len(ns.WorkShifts))
			minTerms := make([]cpsat.Term, 0, len(ns.WorkShifts))
			for _, s := range ns.WorkShifts {
				v := b.x[ei][di][b.sIdx[s]]
				workTerms = append(workTerms, cpsat.Term{Var: v, Coef: 1})
				minTerms = append(minTerms, cpsat.Term{Var: v, Coef: int64(spec.Shifts[s].Minutes)})
			}
			b.work[ei][di] = cpsat.LinearExpr{Terms: workTerms}
			b.minutes[ei][di] = cpsat.LinearExpr{Terms: minTerms}
		}
	}
	return b
}

// lowerDemand 降低覆盖需求。
// 员工对某站点需求可计入的条件：site_home 等于该站点，或未设置 site_home
func (b *builder) lowerDemand() {
	spec := b.ns.Spec
	for _, dem := range spec.Demand {
		di := b.ns.DayIdx[dem.Day]
		si := b.sIdx[dem.Shift]

		cover := make([]cpsat.Term, 0, len(spec.Sets.Employees))
		for ei, id := range spec.Sets.Employees {
			if !b.eligible(id, dem.Site) {
				continue
			}
			cover = append(cover, cpsat.Term{Var: b.x[ei][di][si], Coef: 1})
		}
		expr := cpsat.LinearExpr{Terms: cover}
		switch {
		case dem.Eq != nil:
			b.m.AddEquality(expr, int64(*dem.Eq))
		default:
			if dem.Min != nil {
				b.m.AddAtLeast(expr, int64(*dem.Min))
			}
			if dem.Max != nil {
				b.m.AddAtMost(expr, int64(*dem.Max))
			}
		}

		if dem.Requirements == nil {
			continue
		}
		for _, sm := range dem.Requirements.SkillsMin {
			b.m.AddAtLeast(b.attributeCover(dem, di, si, func(def model.EmployeeDef) bool {
				return hasString(def.Skills, sm.Skill)
			}), int64(sm.Min))
		}
		for _, rm := range dem.Requirements.RolesMin {
			b.m.AddAtLeast(b.attributeCover(dem, di, si, func(def model.EmployeeDef) bool {
				return hasString(def.Roles, rm.Role)
			}), int64(rm.Min))
		}
	}
}

// attributeCover 构造需求上满足给定属性的可计入员工之和
func (b *builder) attributeCover(dem model.DemandEntry, di, si int, match func(model.EmployeeDef) bool) cpsat.LinearExpr {
	var terms []cpsat.Term
	for ei, id := range b.ns.Spec.Sets.Employees {
		if !b.eligible(id, dem.Site) {
			continue
		}
		if !match(b.ns.Spec.Employees[id]) {
			continue
		}
		terms = append(terms, cpsat.Term{Var: b.x[ei][di][si], Coef: 1})
	}
	return cpsat.LinearExpr{Terms: terms}
}

func (b *builder) eligible(employee, site string) bool {
	def := b.ns.Spec.Employees[employee]
	return def.SiteHome == "" || def.SiteHome == site
}

// assembleObjective 汇总软规则违反量：Σ 生效权重 × 违反量。
// 全局权重已在降低阶段并入各惩罚项，这里不再重复乘
func (b *builder) assembleObjective() {
	obj := cpsat.LinearExpr{}
	for _, pt := range b.penalties {
		obj = obj.AddScaled(pt.Expr, pt.Weight)
	}
	b.objective = obj
	b.m.Minimize(obj)
}

// windows 返回宽度为 w 的滚动窗口，尾部截断的窗口同样计入
func windows(days, w int) [][2]int {
	out := make([][2]int, 0, days)
	for start := 0; start < days; start++ {
		end := start + w
		if end > days {
			end = days
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func hasString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
