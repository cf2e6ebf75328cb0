// Package projector 把求解器抽取的格点赋值折叠为对外报表视图
package projector

import (
	"github.com/fpapale/schedulai/pkg/model"
)

// Projection 投影产物：嵌套视图与扁平视图并排输出，
// 二者是同一赋值多重集的不同折叠
type Projection struct {
	Schedule *model.Schedule
	Flat     []model.FlatAssignment
}

// dayShift 需求站点索引键
type dayShift struct {
	day   string
	shift string
}

// Project 投影赋值。赋值只含工作班次；某日没有任何工作班次的员工
// 进入该日的 rest 列表。所有列表遵循规格声明顺序，扁平行按
// (日期, 站点, 班次, 员工) 的规格顺序排列。
//
// 站点归属：site_home 非空的员工归属其主站点；否则归属规格顺序中
// 第一个对该 (日, 班次) 声明过需求的站点；再否则归属第一个站点
func Project(ns *model.NormalizedSpec, assignments []model.Assignment) *Projection {
	spec := ns.Spec

	// 赋值索引：日 -> 员工 -> 班次集合
	assigned := make(map[string]map[string]map[string]bool, len(spec.Sets.Days))
	for _, a := range assignments {
		byEmp := assigned[a.Day]
		if byEmp == nil {
			byEmp = make(map[string]map[string]bool)
			assigned[a.Day] = byEmp
		}
		shifts := byEmp[a.Employee]
		if shifts == nil {
			shifts = make(map[string]bool)
			byEmp[a.Employee] = shifts
		}
		shifts[a.Shift] = true
	}

	// 需求索引：(日, 班次) -> 声明过需求的站点集合
	demandSites := make(map[dayShift]map[string]bool, len(spec.Demand))
	for _, d := range spec.Demand {
		key := dayShift{day: d.Day, shift: d.Shift}
		if demandSites[key] == nil {
			demandSites[key] = make(map[string]bool)
		}
		demandSites[key][d.Site] = true
	}

	siteFor := func(emp, day, shift string) string {
		if def, ok := spec.Employees[emp]; ok && def.SiteHome != "" {
			return def.SiteHome
		}
		if sites := demandSites[dayShift{day: day, shift: shift}]; len(sites) > 0 {
			for _, site := range spec.Sets.Sites {
				if sites[site] {
					return site
				}
			}
		}
		return spec.Sets.Sites[0]
	}

	sched := &model.Schedule{
		Data: make(map[string]map[string]map[string][]string, len(spec.Sets.Days)),
		Rest: make(map[string][]string, len(spec.Sets.Days)),
	}
	flat := make([]model.FlatAssignment, 0, len(assignments))

	for _, day := range spec.Sets.Days {
		byEmp := assigned[day]

		// 先按 (站点, 班次) 归属分桶；外层遍历员工保证桶内员工有序
		buckets := make(map[string]map[string][]string, len(spec.Sets.Sites))
		for _, emp := range spec.Sets.Employees {
			for shift := range byEmp[emp] {
				site := siteFor(emp, day, shift)
				if buckets[site] == nil {
					buckets[site] = make(map[string][]string)
				}
				buckets[site][shift] = append(buckets[site][shift], emp)
			}
		}

		// 视图是稠密的：每个 (站点, 工作班次) 键都存在，空桶输出空列表
		daily := make(map[string]map[string][]string, len(spec.Sets.Sites))
		for _, site := range spec.Sets.Sites {
			bySite := make(map[string][]string, len(ns.WorkShifts))
			for _, shift := range ns.WorkShifts {
				emps := buckets[site][shift]
				if emps == nil {
					emps = []string{}
				}
				bySite[shift] = emps
				for _, emp := range emps {
					flat = append(flat, model.FlatAssignment{
						Date:     day,
						Site:     site,
						Shift:    shift,
						Employee: emp,
					})
				}
			}
			daily[site] = bySite
		}
		sched.Data[day] = daily

		rest := make([]string, 0, len(spec.Sets.Employees))
		for _, emp := range spec.Sets.Employees {
			if len(byEmp[emp]) == 0 {
				rest = append(rest, emp)
			}
		}
		sched.Rest[day] = rest
	}

	return &Projection{Schedule: sched, Flat: flat}
}
