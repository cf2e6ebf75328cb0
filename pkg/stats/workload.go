// Package stats 从投影后的排班视图重算每员工工作量汇总
package stats

import (
	"github.com/fpapale/schedulai/pkg/model"
)

// Summarize 汇总扁平视图：每员工累计工作分钟数与各工作班次承担次数。
// 两个映射都是稠密的，未在岗的员工与未承担的班次计为零
func Summarize(ns *model.NormalizedSpec, flat []model.FlatAssignment) *model.WorkloadStats {
	spec := ns.Spec
	out := &model.WorkloadStats{
		MinutesWorked: make(map[string]int, len(spec.Sets.Employees)),
		ShiftCounts:   make(map[string]map[string]int, len(spec.Sets.Employees)),
	}
	for _, e := range spec.Sets.Employees {
		out.MinutesWorked[e] = 0
		counts := make(map[string]int, len(ns.WorkShifts))
		for _, s := range ns.WorkShifts {
			counts[s] = 0
		}
		out.ShiftCounts[e] = counts
	}

	for _, row := range flat {
		counts, ok := out.ShiftCounts[row.Employee]
		if !ok {
			continue
		}
		def, ok := spec.Shifts[row.Shift]
		if !ok || !def.IsWork {
			continue
		}
		out.MinutesWorked[row.Employee] += def.Minutes
		counts[row.Shift]++
	}
	return out
}
