package compiler

import (
	"fmt"

	"github.com/fpapale/schedulai/pkg/cpsat"
	"github.com/fpapale/schedulai/pkg/model"
)

// lowerHard 按种类降低硬规则。参数集合是封闭的，分派必须穷尽
func (b *builder) lowerHard(r model.Rule) error {
	switch p := r.Params.(type) {
	case model.ExactlyOneParams:
		b.lowerExactlyOne(r)
	case model.ForbidSequencesParams:
		b.lowerForbidSequences(r, p)
	case model.MaxShiftsInWindowParams:
		b.lowerMaxShiftsInWindow(r, p)
	case model.MinRestParams:
		return b.lowerMinRest(r, p)
	case model.MaxWorkMinutesParams:
		b.lowerMaxWorkMinutes(r, p)
	case model.MaxConsecutiveWorkDaysParams:
		b.lowerMaxConsecutiveWorkDays(r, p)
	case model.MinConsecutiveDaysOffParams:
		b.lowerMinConsecutiveDaysOff(r, p)
	default:
		return fmt.Errorf("规则 %s: 未知的硬规则参数类型 %T", r.Name, r.Params)
	}
	return nil
}

// lowerExactlyOne 每人每天恰好承担一个班次（含 OFF）
func (b *builder) lowerExactlyOne(r model.Rule) {
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for di := range b.ns.Spec.Sets.Days {
			b.m.AddEquality(cpsat.Sum(b.x[ei][di]...), 1)
		}
	}
}

// lowerForbidSequences 禁止相邻两天出现给定的班次接续
func (b *builder) lowerForbidSequences(r model.Rule, p model.ForbidSequencesParams) {
	days := len(b.ns.Spec.Sets.Days)
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for _, pair := range p.Pairs {
			prev := b.sIdx[pair.Prev]
			next := b.sIdx[pair.Next]
			for di := 0; di+1 < days; di++ {
				b.m.AddAtMost(cpsat.Sum(b.x[ei][di][prev], b.x[ei][di+1][next]), 1)
			}
		}
	}
}

// lowerMaxShiftsInWindow 滚动窗口内指定班次的次数上限
func (b *builder) lowerMaxShiftsInWindow(r model.Rule, p model.MaxShiftsInWindowParams) {
	days := len(b.ns.Spec.Sets.Days)
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for _, win := range windows(days, p.WindowDays) {
			var terms []cpsat.Term
			for di := win[0]; di < win[1]; di++ {
				for _, s := range p.Shifts {
					terms = append(terms, cpsat.Term{Var: b.x[ei][di][b.sIdx[s]], Coef: 1})
				}
			}
			b.m.AddAtMost(cpsat.LinearExpr{Terms: terms}, int64(p.Max))
		}
	}
}

// lowerMinRest 相邻两天的工作班次之间休息间隔不得小于给定分钟数。
// 间隔按跨天口径计算：前一班的结束可能落在次日，间隔可为负（重叠）
func (b *builder) lowerMinRest(r model.Rule, p model.MinRestParams) error {
	spec := b.ns.Spec
	days := len(spec.Sets.Days)

	// 预计算违反最小间隔的班次接续对
	type seq struct{ prev, next int }
	var banned []seq
	for _, prev := range b.ns.WorkShifts {
		for _, next := range b.ns.WorkShifts {
			gap, err := model.RestGapMinutes(spec.Shifts[prev], spec.Shifts[next])
			if err != nil {
				return fmt.Errorf("规则 %s: %w", r.Name, err)
			}
			if gap < p.Minutes {
				banned = append(banned, seq{prev: b.sIdx[prev], next: b.sIdx[next]})
			}
		}
	}

	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for _, sq := range banned {
			for di := 0; di+1 < days; di++ {
				b.m.AddAtMost(cpsat.Sum(b.x[ei][di][sq.prev], b.x[ei][di+1][sq.next]), 1)
			}
		}
	}
	return nil
}

// lowerMaxWorkMinutes 滚动窗口内工作分钟数上限
func (b *builder) lowerMaxWorkMinutes(r model.Rule, p model.MaxWorkMinutesParams) {
	days := len(b.ns.Spec.Sets.Days)
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for _, win := range windows(days, p.WindowDays) {
			total := cpsat.LinearExpr{}
			for di := win[0]; di < win[1]; di++ {
				total = total.AddScaled(b.minutes[ei][di], 1)
			}
			b.m.AddAtMost(total, int64(p.Max))
		}
	}
}

// lowerMaxConsecutiveWorkDays 任意 max+1 个连续日内工作日数不超过 max
func (b *builder) lowerMaxConsecutiveWorkDays(r model.Rule, p model.MaxConsecutiveWorkDaysParams) {
	days := len(b.ns.Spec.Sets.Days)
	span := p.Max + 1
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for start := 0; start+span <= days; start++ {
			total := cpsat.LinearExpr{}
			for di := start; di < start+span; di++ {
				total = total.AddScaled(b.work[ei][di], 1)
			}
			b.m.AddAtMost(total, int64(p.Max))
		}
	}
}

// lowerMinConsecutiveDaysOff 休息块不得短于 min 天。
// 对每个完全落在排期内的候选块 [d, d+len)：若前后两天均工作而块内全部休息，
// 则该块是长度为 len 的极大休息块；len < min 时禁止该形态：
// work[d-1] + work[d+len] - Σ work[k] ≤ 1  (k ∈ [d, d+len))
func (b *builder) lowerMinConsecutiveDaysOff(r model.Rule, p model.MinConsecutiveDaysOffParams) {
	days := len(b.ns.Spec.Sets.Days)
	for _, id := range r.Employees {
		ei := b.eIdx[id]
		for length := 1; length < p.Min; length++ {
			for d := 1; d+length < days; d++ {
				expr := b.work[ei][d-1].AddScaled(b.work[ei][d+length], 1)
				for k := d; k < d+length; k++ {
					expr = expr.AddScaled(b.work[ei][k], -1)
				}
				b.m.AddAtMost(expr, 1)
			}
		}
	}
}
