package compiler

import (
	"fmt"

	"github.com/fpapale/schedulai/pkg/cpsat"
	"github.com/fpapale/schedulai/pkg/model"
)

// lowerSoft 按种类降低软规则，违反量表达式连同生效权重记入 penalties。
// 全局权重在此并入，目标汇总与惩罚明细此后共用同一权重
func (b *builder) lowerSoft(r model.Rule) error {
	var expr cpsat.LinearExpr
	switch p := r.Params.(type) {
	case model.PenalizeWorkOnDaysParams:
		expr = b.lowerPenalizeWorkOnDays(r, p)
	case model.PenalizeWorkOnShiftsParams:
		expr = b.lowerPenalizeWorkOnShifts(r, p)
	case model.PenalizeUnmetDayOffRequestsParams:
		expr = b.lowerPenalizeUnmetDayOffRequests(p)
	case model.FairDistributionParams:
		expr = b.lowerFairDistribution(r, p)
	default:
		return fmt.Errorf("规则 %s: 未知的软规则参数类型 %T", r.Name, r.Params)
	}
	b.penalties = append(b.penalties, PenaltyTerm{
		RuleName: r.Name,
		Weight:   int64(b.ns.Spec.Objective.GlobalWeight()) * int64(r.Weight),
		Expr:     expr,
	})
	return nil
}

// lowerPenalizeWorkOnDays 对指定日期上的每次工作计一次违反
func (b *builder) lowerPenalizeWorkOnDays(r model.Rule, p model.PenalizeWorkOnDaysParams) cpsat.LinearExpr {
	var terms []cpsat.Term
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for _, di := range p.Days {
			terms = append(terms, b.work[ei][di].Terms...)
		}
	}
	return cpsat.LinearExpr{Terms: terms}
}

// lowerPenalizeWorkOnShifts 对指定班次的每次承担计一次违反
func (b *builder) lowerPenalizeWorkOnShifts(r model.Rule, p model.PenalizeWorkOnShiftsParams) cpsat.LinearExpr {
	var terms []cpsat.Term
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for di := range b.ns.Spec.Sets.Days {
			for _, s := range p.Shifts {
				terms = append(terms, cpsat.Term{Var: b.x[ei][di][b.sIdx[s]], Coef: 1})
			}
		}
	}
	return cpsat.LinearExpr{Terms: terms}
}

// lowerPenalizeUnmetDayOffRequests 申请休假的日期上工作即计一次违反。
// 作用域隐含在申请列表中，不使用规则的员工列表
func (b *builder) lowerPenalizeUnmetDayOffRequests(p model.PenalizeUnmetDayOffRequestsParams) cpsat.LinearExpr {
	var terms []cpsat.Term
	for _, req := range p.Requests {
		ei := b.eIdx[req.Employee]
		terms = append(terms, b.work[ei][req.Day].Terms...)
	}
	return cpsat.LinearExpr{Terms: terms}
}

// lowerFairDistribution 惩罚窗口内班次数对均值的偏离。
// 均值 μ 不是预估常量而是模型内变量，由向下取整除法约束
// n·μ ≤ Σ c_e ≤ n·μ + (n-1) 唯一确定；每名员工引入非负偏差变量
// up/dn，满足 c_e - μ = up - dn，违反量为全部 up 与 dn 之和
func (b *builder) lowerFairDistribution(r model.Rule, p model.FairDistributionParams) cpsat.LinearExpr {
	days := len(b.ns.Spec.Sets.Days)
	n := len(r.Employees)
	if n == 0 {
		return cpsat.LinearExpr{}
	}

	// 窗口宽度不小于排期长度时退化为整个排期的单一窗口
	var wins [][2]int
	if p.WindowDays >= days {
		wins = [][2]int{{0, days}}
	} else {
		wins = windows(days, p.WindowDays)
	}

	var penTerms []cpsat.Term
	for wi, win := range wins {
		maxCount := int64((win[1] - win[0]) * len(p.Shifts))

		counts := make([]cpsat.LinearExpr, n)
		var total []cpsat.Term
		for i, id := range r.Employees {
			ei := b.eIdx[id]
			var terms []cpsat.Term
			for di := win[0]; di < win[1]; di++ {
				for _, s := range p.Shifts {
					terms = append(terms, cpsat.Term{Var: b.x[ei][di][b.sIdx[s]], Coef: 1})
				}
			}
			counts[i] = cpsat.LinearExpr{Terms: terms}
			total = append(total, terms...)
		}

		mu := b.m.NewIntVar(0, maxCount, fmt.Sprintf("%s.mu[w%d]", r.Name, wi))
		b.m.AddLinear(cpsat.LinearExpr{Terms: total}.AddTerm(mu, int64(-n)), 0, int64(n-1))

		winPen := make([]cpsat.Term, 0, 2*n)
		for i, id := range r.Employees {
			up := b.m.NewIntVar(0, maxCount, fmt.Sprintf("%s.up[%s,w%d]", r.Name, id, wi))
			dn := b.m.NewIntVar(0, maxCount, fmt.Sprintf("%s.dn[%s,w%d]", r.Name, id, wi))
			dev := counts[i].AddTerm(mu, -1).AddTerm(up, -1).AddTerm(dn, 1)
			b.m.AddEquality(dev, 0)
			winPen = append(winPen,
				cpsat.Term{Var: up, Coef: 1},
				cpsat.Term{Var: dn, Coef: 1},
			)
		}
		// 冗余约束：Σ(up+dn) ≥ Σc - n·μ 对任意可行解成立
		cut := cpsat.LinearExpr{Terms: winPen}.
			AddScaled(cpsat.LinearExpr{Terms: total}, -1).
			AddTerm(mu, int64(n))
		b.m.AddAtLeast(cut, 0)
		penTerms = append(penTerms, winPen...)
	}
	return cpsat.LinearExpr{Terms: penTerms}
}
