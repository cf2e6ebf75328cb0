package cpsat

// presolve 对约束集做等式消元：若等式 E 的全部变量以统一整数倍率 k
// 出现在约束 C 中，则用 C - k·E 替换 C，E 本身保留。
// 替换后的约束项数更少，聚合变量的边界在根节点即可收紧。
// 返回 false 表示消元过程中发现恒假约束，模型不可行
func presolve(cons []linearConstraint, nVars int) ([]linearConstraint, bool) {
	const (
		rounds     = 3
		maxEqTerms = 32
		guard      = int64(1) << 61
	)

	out := make([]linearConstraint, len(cons))
	for i, c := range cons {
		out[i] = linearConstraint{
			terms: append([]cTerm(nil), c.terms...),
			lo:    c.lo,
			hi:    c.hi,
		}
	}

	var eqs []int
	for i := range out {
		if out[i].lo == out[i].hi && len(out[i].terms) > 0 && len(out[i].terms) <= maxEqTerms {
			eqs = append(eqs, i)
		}
	}
	if len(eqs) == 0 {
		return out, true
	}

	for round := 0; round < rounds; round++ {
		occ := make([][]int32, nVars)
		for ci := range out {
			for _, t := range out[ci].terms {
				occ[t.v] = append(occ[t.v], int32(ci))
			}
		}

		changed := false
		for _, ei := range eqs {
			e := &out[ei]
			if len(e.terms) == 0 {
				continue
			}
			for _, ci := range occ[e.terms[0].v] {
				if int(ci) == ei {
					continue
				}
				c := &out[ci]
				k, ok := eliminationScale(c, e)
				if !ok {
					continue
				}
				if b := abs64(e.lo); b != 0 && abs64(k) > guard/b {
					continue
				}
				subtractEq(c, e, k, guard)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	final := make([]linearConstraint, 0, len(out))
	for _, c := range out {
		if len(c.terms) == 0 {
			// 消元后退化为常量的约束：区间不含 0 即恒假
			if c.lo > 0 || c.hi < 0 {
				return nil, false
			}
			continue
		}
		final = append(final, c)
	}
	return final, true
}

// eliminationScale 检查等式 e 的全部变量是否以统一整数倍率出现在 c 中
func eliminationScale(c, e *linearConstraint) (int64, bool) {
	var k int64
	for i, et := range e.terms {
		cc, found := coefOf(c, et.v)
		if !found || cc%et.coef != 0 {
			return 0, false
		}
		q := cc / et.coef
		if q == 0 {
			return 0, false
		}
		if i == 0 {
			k = q
		} else if q != k {
			return 0, false
		}
	}
	return k, true
}

func coefOf(c *linearConstraint, v int32) (int64, bool) {
	for _, t := range c.terms {
		if t.v == v {
			return t.coef, true
		}
	}
	return 0, false
}

// subtractEq 从 c 中减去 k 倍的等式 e，被消去的变量系数恰好归零。
// 绝对值超过 guard 的边界视为无界，不随常量项平移
func subtractEq(c, e *linearConstraint, k, guard int64) {
	drop := make(map[int32]bool, len(e.terms))
	for _, et := range e.terms {
		drop[et.v] = true
	}
	kept := c.terms[:0]
	for _, ct := range c.terms {
		if !drop[ct.v] {
			kept = append(kept, ct)
		}
	}
	c.terms = kept

	shift := k * e.lo
	if c.lo > -guard {
		c.lo -= shift
	}
	if c.hi < guard {
		c.hi -= shift
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
