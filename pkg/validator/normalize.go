package validator

import (
	"encoding/json"
	"fmt"
	"math"

	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/model"
)

// ValidateAndNormalize 依次执行结构校验与语义规范化。
// 结构不合格时不进入语义阶段
func ValidateAndNormalize(doc []byte) (*model.NormalizedSpec, *apperrors.ValidationErrors) {
	if verrs := ValidateSchema(doc); verrs.HasErrors() {
		return nil, verrs
	}

	var spec model.Spec
	if err := json.Unmarshal(doc, &spec); err != nil {
		verrs := &apperrors.ValidationErrors{}
		verrs.Add("", "文档解析失败: "+err.Error())
		return nil, verrs
	}
	return Normalize(&spec)
}

// Normalize 对已通过结构校验的规格做语义检查并规范化：
// 交叉引用解析、OFF 形状检查、日期序校验、规则类型化与作用域展开。
// 全部违规累积后一次性返回
func Normalize(spec *model.Spec) (*model.NormalizedSpec, *apperrors.ValidationErrors) {
	n := &normalizer{
		spec:    spec,
		verrs:   &apperrors.ValidationErrors{},
		dayIdx:  make(map[string]int, len(spec.Sets.Days)),
		siteSet: make(map[string]bool, len(spec.Sets.Sites)),
		empSet:  make(map[string]bool, len(spec.Sets.Employees)),
		workSet: make(map[string]bool),
	}

	n.checkSets()
	n.checkShiftDefs()
	n.checkEmployees()
	n.checkDemand()
	rules := n.normalizeRules()

	if n.verrs.HasErrors() {
		return nil, n.verrs
	}

	return &model.NormalizedSpec{
		Spec:       spec,
		DayIdx:     n.dayIdx,
		WorkShifts: n.workShifts,
		Rules:      rules,
		Warnings:   n.warnings,
	}, n.verrs
}

type normalizer struct {
	spec       *model.Spec
	verrs      *apperrors.ValidationErrors
	dayIdx     map[string]int
	siteSet    map[string]bool
	empSet     map[string]bool
	workSet    map[string]bool
	workShifts []string
	warnings   []string
}

// checkSets 校验标识符集合：日期严格递增、OFF 在班次集合中。
// 未声明站点时注入缺省站点，投影阶段据此归组
func (n *normalizer) checkSets() {
	if len(n.spec.Sets.Sites) == 0 {
		n.spec.Sets.Sites = []string{model.DefaultSite}
	}
	sets := n.spec.Sets

	for i, d := range sets.Days {
		n.dayIdx[d] = i
		cur, err := model.ParseDay(d)
		if err != nil {
			n.verrs.Addf(fmt.Sprintf("sets.days[%d]", i), "%v", err)
			continue
		}
		if i > 0 {
			prev, err := model.ParseDay(sets.Days[i-1])
			if err == nil && !prev.Before(cur) {
				n.verrs.Add(fmt.Sprintf("sets.days[%d]", i), "日期必须严格递增")
			}
		}
	}

	for _, s := range sets.Sites {
		n.siteSet[s] = true
	}
	for _, e := range sets.Employees {
		n.empSet[e] = true
	}

	hasRest := false
	for _, s := range sets.Shifts {
		if s == model.RestShiftLabel {
			hasRest = true
		}
	}
	if !hasRest {
		n.verrs.Add("sets.shifts", "缺少休息班次 OFF")
	}
}

// checkShiftDefs 校验班次定义：集合与映射互相对应、OFF 形状精确、时间可解析
func (n *normalizer) checkShiftDefs() {
	inSets := make(map[string]bool, len(n.spec.Sets.Shifts))
	for _, s := range n.spec.Sets.Shifts {
		inSets[s] = true
		def, ok := n.spec.Shifts[s]
		if !ok {
			n.verrs.Addf("shifts", "班次 '%s' 缺少定义", s)
			continue
		}
		if _, err := model.ParseHHMM(def.Start); err != nil {
			n.verrs.Addf("shifts."+s+".start", "%v", err)
		}
		if _, err := model.ParseHHMM(def.End); err != nil {
			n.verrs.Addf("shifts."+s+".end", "%v", err)
		}
		if s == model.RestShiftLabel {
			if def != model.RestShiftDef() {
				n.verrs.Add("shifts.OFF", `休息班次必须为 {"start":"00:00","end":"00:00","minutes":0,"is_work":false}`)
			}
			continue
		}
		if def.IsWork {
			n.workSet[s] = true
			n.workShifts = append(n.workShifts, s)
		}
	}

	for label := range n.spec.Shifts {
		if !inSets[label] {
			n.verrs.Addf("shifts."+label, "班次 '%s' 未声明于 sets.shifts", label)
		}
	}
}

// checkEmployees 校验员工映射与 sets.employees 的对应及 site_home 引用
func (n *normalizer) checkEmployees() {
	for _, id := range n.spec.Sets.Employees {
		def, ok := n.spec.Employees[id]
		if !ok {
			n.verrs.Addf("employees", "员工 '%s' 缺少定义", id)
			continue
		}
		if def.SiteHome != "" && !n.siteSet[def.SiteHome] {
			n.verrs.Addf("employees."+id+".site_home", "站点 '%s' 未声明于 sets.sites", def.SiteHome)
		}
	}
	for id := range n.spec.Employees {
		if !n.empSet[id] {
			n.verrs.Addf("employees."+id, "员工 '%s' 未声明于 sets.employees", id)
		}
	}
}

// checkDemand 校验覆盖需求条目
func (n *normalizer) checkDemand() {
	for i, d := range n.spec.Demand {
		field := fmt.Sprintf("demand[%d]", i)
		if _, ok := n.dayIdx[d.Day]; !ok {
			n.verrs.Addf(field+".day", "日期 '%s' 未声明于 sets.days", d.Day)
		}
		if !n.siteSet[d.Site] {
			n.verrs.Addf(field+".site", "站点 '%s' 未声明于 sets.sites", d.Site)
		}
		if !n.workSet[d.Shift] {
			n.verrs.Addf(field+".shift", "'%s' 不是工作班次", d.Shift)
		}
		if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
			n.verrs.Add(field, "min 不能大于 max")
		}
	}
}

// normalizeRules 将规则条目转为类型化变体并展开作用域
func (n *normalizer) normalizeRules() []model.Rule {
	rules := make([]model.Rule, 0, len(n.spec.Constraints))
	sawExactlyOne := false

	for i, entry := range n.spec.Constraints {
		field := fmt.Sprintf("constraints[%d]", i)

		ks, ok := model.KindOf(entry.Kind)
		if !ok {
			n.verrs.Addf(field+".kind", "未识别的规则种类: '%s'", entry.Kind)
			continue
		}
		if string(ks.Type) != entry.Type {
			n.verrs.Addf(field+".type", "种类 '%s' 应为 %s 规则", entry.Kind, ks.Type)
			continue
		}

		// 配置键白名单：目录未列出的键按结构违规处理，绝不静默忽略
		allowed := make(map[string]bool, len(ks.Fields))
		for _, f := range ks.Fields {
			allowed[f.Name] = true
		}
		for key := range entry.Data {
			if !allowed[key] {
				n.verrs.Addf(field+".data."+key, "种类 '%s' 不识别该配置键", entry.Kind)
			}
		}
		missing := false
		for _, f := range ks.Fields {
			if !f.Required {
				continue
			}
			if _, ok := entry.Data[f.Name]; !ok {
				n.verrs.Addf(field+".data."+f.Name, "缺少必填配置键")
				missing = true
			}
		}
		if missing {
			continue
		}

		weight := 0
		switch ks.Type {
		case model.RuleSoft:
			if entry.Penalty == nil {
				n.verrs.Add(field+".penalty", "软规则缺少 penalty")
				continue
			}
			weight = entry.Penalty.Weight
		case model.RuleHard:
			if entry.Penalty != nil {
				n.verrs.Add(field+".penalty", "硬规则不应携带 penalty")
			}
		}

		params, ok := n.parseParams(field, ks.Kind, entry.Data)
		if !ok {
			continue
		}
		if ks.Kind == model.KindExactlyOneAssignmentPerDay {
			sawExactlyOne = true
		}

		rules = append(rules, model.Rule{
			Name:      entry.Name(),
			Kind:      ks.Kind,
			Type:      ks.Type,
			Employees: n.expandScope(field+".scope", entry.Scope),
			Weight:    weight,
			Params:    params,
		})
	}

	if !sawExactlyOne {
		n.warnings = append(n.warnings, "规格未声明 exactly_one_assignment_per_day，每日唯一指派不会被强制")
	}
	return rules
}

// parseParams 按种类解析并校验规则参数，产出封闭变体
func (n *normalizer) parseParams(field string, kind model.RuleKind, data map[string]interface{}) (model.RuleParams, bool) {
	switch kind {
	case model.KindExactlyOneAssignmentPerDay:
		shifts, ok := n.dataStringList(field, data, "shifts")
		if !ok {
			return nil, false
		}
		if !sameStringSet(shifts, n.spec.Sets.Shifts) {
			n.verrs.Add(field+".data.shifts", "必须与 sets.shifts 完全一致（全部工作班次加 OFF）")
			return nil, false
		}
		return model.ExactlyOneParams{Shifts: shifts}, true

	case model.KindForbidShiftSequences:
		pairs, ok := n.dataPairList(field, data, "forbidden_pairs")
		if !ok {
			return nil, false
		}
		valid := true
		for j, p := range pairs {
			pf := fmt.Sprintf("%s.data.forbidden_pairs[%d]", field, j)
			if !n.workSet[p.Prev] {
				n.verrs.Addf(pf+".prev_shift", "'%s' 不是工作班次", p.Prev)
				valid = false
			}
			if !n.workSet[p.Next] {
				n.verrs.Addf(pf+".next_shift", "'%s' 不是工作班次", p.Next)
				valid = false
			}
		}
		return model.ForbidSequencesParams{Pairs: pairs}, valid

	case model.KindMaxShiftsInWindow:
		w, okW := n.dataInt(field, data, "window_days", 1)
		m, okM := n.dataInt(field, data, "max", 0)
		shifts, okS := n.optionalWorkShiftList(field, data, "shifts")
		if mode, present, ok := n.dataString(field, data, "mode"); ok && present && mode != "rolling" {
			n.verrs.Add(field+".data.mode", "仅支持 rolling 模式")
			return nil, false
		}
		if !okW || !okM || !okS {
			return nil, false
		}
		return model.MaxShiftsInWindowParams{WindowDays: w, Shifts: shifts, Max: m}, true

	case model.KindMinRestMinutesBetweenShifts:
		r, ok := n.dataInt(field, data, "minutes", 0)
		if !ok {
			return nil, false
		}
		return model.MinRestParams{Minutes: r}, true

	case model.KindMaxWorkMinutesInWindow:
		w, okW := n.dataInt(field, data, "window_days", 1)
		m, okM := n.dataInt(field, data, "max", 0)
		if !okW || !okM {
			return nil, false
		}
		return model.MaxWorkMinutesParams{WindowDays: w, Max: m}, true

	case model.KindMaxConsecutiveWorkDays:
		k, ok := n.dataInt(field, data, "max", 0)
		if !ok {
			return nil, false
		}
		return model.MaxConsecutiveWorkDaysParams{Max: k}, true

	case model.KindMinConsecutiveDaysOff:
		k, ok := n.dataInt(field, data, "min", 1)
		if !ok {
			return nil, false
		}
		return model.MinConsecutiveDaysOffParams{Min: k}, true

	case model.KindPenalizeWorkOnDays:
		names, ok := n.dataStringList(field, data, "days")
		if !ok {
			return nil, false
		}
		days := make([]int, 0, len(names))
		valid := true
		for j, name := range names {
			idx, found := n.dayIdx[name]
			if !found {
				n.verrs.Addf(fmt.Sprintf("%s.data.days[%d]", field, j), "日期 '%s' 未声明于 sets.days", name)
				valid = false
				continue
			}
			days = append(days, idx)
		}
		return model.PenalizeWorkOnDaysParams{Days: days}, valid

	case model.KindPenalizeWorkOnShifts:
		shifts, ok := n.workShiftList(field, data, "shifts")
		if !ok {
			return nil, false
		}
		return model.PenalizeWorkOnShiftsParams{Shifts: shifts}, true

	case model.KindPenalizeUnmetDayOffRequests:
		reqs, ok := n.dataRequestList(field, data, "requests")
		if !ok {
			return nil, false
		}
		resolved := make([]model.ResolvedDayOffRequest, 0, len(reqs))
		valid := true
		for j, r := range reqs {
			rf := fmt.Sprintf("%s.data.requests[%d]", field, j)
			if !n.empSet[r.Employee] {
				n.verrs.Addf(rf+".employee", "员工 '%s' 未声明于 sets.employees", r.Employee)
				valid = false
			}
			idx, found := n.dayIdx[r.Day]
			if !found {
				n.verrs.Addf(rf+".day", "日期 '%s' 未声明于 sets.days", r.Day)
				valid = false
				continue
			}
			resolved = append(resolved, model.ResolvedDayOffRequest{Employee: r.Employee, Day: idx})
		}
		if !valid {
			return nil, false
		}
		return model.PenalizeUnmetDayOffRequestsParams{Requests: resolved}, true

	case model.KindFairDistribution:
		if measure, present, ok := n.dataString(field, data, "measure"); ok && present && measure != "count" {
			n.verrs.Add(field+".data.measure", "仅支持 measure=count")
			return nil, false
		}
		if target, present, ok := n.dataString(field, data, "target"); ok && present && target != "auto_mean" {
			n.verrs.Add(field+".data.target", "仅支持 target=auto_mean")
			return nil, false
		}
		if penalize, present, ok := n.dataString(field, data, "penalize"); ok && present && penalize != "absolute_deviation" {
			n.verrs.Add(field+".data.penalize", "仅支持 penalize=absolute_deviation")
			return nil, false
		}
		shifts, ok := n.workShiftList(field, data, "shifts")
		if !ok {
			return nil, false
		}
		if len(shifts) == 0 {
			n.verrs.Add(field+".data.shifts", "fair_distribution 需要非空班次列表")
			return nil, false
		}
		w := len(n.spec.Sets.Days)
		if _, present := data["window_days"]; present {
			var okW bool
			w, okW = n.dataInt(field, data, "window_days", 1)
			if !okW {
				return nil, false
			}
		}
		return model.FairDistributionParams{Shifts: shifts, WindowDays: w}, true
	}

	// 种类目录与本分派必须同步；走到这里属实现缺陷
	n.verrs.Addf(field+".kind", "种类 '%s' 缺少参数解析", kind)
	return nil, false
}

// expandScope 将作用域展开为显式员工列表（保持 sets.employees 顺序）。
// 过滤器按 AND 语义收窄
func (n *normalizer) expandScope(field string, scope *model.Scope) []string {
	selected := make(map[string]bool, len(n.spec.Sets.Employees))

	if scope == nil || scope.Employees == nil {
		for _, e := range n.spec.Sets.Employees {
			selected[e] = true
		}
	} else {
		switch v := scope.Employees.(type) {
		case string:
			if v == "ALL" {
				for _, e := range n.spec.Sets.Employees {
					selected[e] = true
				}
			} else {
				n.verrs.Addf(field+".employees", "应为 \"ALL\" 或员工 id 列表, got '%s'", v)
			}
		case []interface{}:
			for j, item := range v {
				id, ok := item.(string)
				if !ok {
					n.verrs.Addf(fmt.Sprintf("%s.employees[%d]", field, j), "员工 id 应为字符串")
					continue
				}
				if !n.empSet[id] {
					n.verrs.Addf(fmt.Sprintf("%s.employees[%d]", field, j), "员工 '%s' 未声明于 sets.employees", id)
					continue
				}
				selected[id] = true
			}
		case []string:
			for j, id := range v {
				if !n.empSet[id] {
					n.verrs.Addf(fmt.Sprintf("%s.employees[%d]", field, j), "员工 '%s' 未声明于 sets.employees", id)
					continue
				}
				selected[id] = true
			}
		default:
			n.verrs.Add(field+".employees", "应为 \"ALL\" 或员工 id 列表")
		}
	}

	if scope != nil {
		for _, site := range scope.SitesAny {
			if !n.siteSet[site] {
				n.verrs.Addf(field+".sites_any", "站点 '%s' 未声明于 sets.sites", site)
			}
		}

		for id := range selected {
			def, ok := n.spec.Employees[id]
			if !ok {
				continue
			}
			if len(scope.SkillsAny) > 0 && !intersects(def.Skills, scope.SkillsAny) {
				delete(selected, id)
				continue
			}
			if len(scope.SkillsAll) > 0 && !containsAll(def.Skills, scope.SkillsAll) {
				delete(selected, id)
				continue
			}
			if len(scope.RolesAny) > 0 && !intersects(def.Roles, scope.RolesAny) {
				delete(selected, id)
				continue
			}
			if len(scope.RolesAll) > 0 && !containsAll(def.Roles, scope.RolesAll) {
				delete(selected, id)
				continue
			}
			if len(scope.SitesAny) > 0 && !containsString(scope.SitesAny, def.SiteHome) {
				delete(selected, id)
				continue
			}
			if len(scope.ContractsAny) > 0 {
				ctype := ""
				if def.Contract != nil {
					ctype = def.Contract.Type
				}
				if !containsString(scope.ContractsAny, ctype) {
					delete(selected, id)
				}
			}
		}
	}

	out := make([]string, 0, len(selected))
	for _, e := range n.spec.Sets.Employees {
		if selected[e] {
			out = append(out, e)
		}
	}
	return out
}

// ===================== 数据键提取辅助 =====================

// dataInt 提取整数配置键并检查下界
func (n *normalizer) dataInt(field string, data map[string]interface{}, key string, min int) (int, bool) {
	raw, ok := data[key]
	if !ok {
		n.verrs.Add(field+".data."+key, "缺少必填配置键")
		return 0, false
	}
	var v int
	switch x := raw.(type) {
	case float64:
		if x != math.Trunc(x) {
			n.verrs.Add(field+".data."+key, "应为整数")
			return 0, false
		}
		v = int(x)
	case int:
		v = x
	case int64:
		v = int(x)
	case json.Number:
		iv, err := x.Int64()
		if err != nil {
			n.verrs.Add(field+".data."+key, "应为整数")
			return 0, false
		}
		v = int(iv)
	default:
		n.verrs.Add(field+".data."+key, "应为整数")
		return 0, false
	}
	if v < min {
		n.verrs.Addf(field+".data."+key, "不能小于 %d", min)
		return 0, false
	}
	return v, true
}

// dataString 提取可选字符串配置键；present 表示键是否存在
func (n *normalizer) dataString(field string, data map[string]interface{}, key string) (value string, present, ok bool) {
	raw, exists := data[key]
	if !exists {
		return "", false, true
	}
	s, isStr := raw.(string)
	if !isStr {
		n.verrs.Add(field+".data."+key, "应为字符串")
		return "", true, false
	}
	return s, true, true
}

// dataStringList 提取字符串列表配置键
func (n *normalizer) dataStringList(field string, data map[string]interface{}, key string) ([]string, bool) {
	raw, exists := data[key]
	if !exists {
		n.verrs.Add(field+".data."+key, "缺少必填配置键")
		return nil, false
	}
	return n.toStringList(field+".data."+key, raw)
}

func (n *normalizer) toStringList(field string, raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for j, item := range v {
			s, ok := item.(string)
			if !ok {
				n.verrs.Addf(fmt.Sprintf("%s[%d]", field, j), "应为字符串")
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		n.verrs.Add(field, "应为字符串列表")
		return nil, false
	}
}

// workShiftList 提取班次列表并校验均为工作班次
func (n *normalizer) workShiftList(field string, data map[string]interface{}, key string) ([]string, bool) {
	shifts, ok := n.dataStringList(field, data, key)
	if !ok {
		return nil, false
	}
	valid := true
	for j, s := range shifts {
		if !n.workSet[s] {
			n.verrs.Addf(fmt.Sprintf("%s.data.%s[%d]", field, key, j), "'%s' 不是工作班次", s)
			valid = false
		}
	}
	return shifts, valid
}

// optionalWorkShiftList 同 workShiftList，但键缺省时回退到全部工作班次
func (n *normalizer) optionalWorkShiftList(field string, data map[string]interface{}, key string) ([]string, bool) {
	if _, exists := data[key]; !exists {
		return append([]string(nil), n.workShifts...), true
	}
	return n.workShiftList(field, data, key)
}

// dataPairList 提取班次接续对列表
func (n *normalizer) dataPairList(field string, data map[string]interface{}, key string) ([]model.ShiftPair, bool) {
	raw, exists := data[key]
	if !exists {
		n.verrs.Add(field+".data."+key, "缺少必填配置键")
		return nil, false
	}
	items, ok := raw.([]interface{})
	if !ok {
		n.verrs.Add(field+".data."+key, "应为 {prev_shift,next_shift} 列表")
		return nil, false
	}
	pairs := make([]model.ShiftPair, 0, len(items))
	for j, item := range items {
		pf := fmt.Sprintf("%s.data.%s[%d]", field, key, j)
		obj, ok := item.(map[string]interface{})
		if !ok {
			n.verrs.Add(pf, "应为 {prev_shift,next_shift} 对象")
			return nil, false
		}
		prev, ok1 := obj["prev_shift"].(string)
		next, ok2 := obj["next_shift"].(string)
		if !ok1 || !ok2 {
			n.verrs.Add(pf, "prev_shift 与 next_shift 均为必填字符串")
			return nil, false
		}
		for k := range obj {
			if k != "prev_shift" && k != "next_shift" {
				n.verrs.Addf(pf+"."+k, "未识别的配置键")
				return nil, false
			}
		}
		pairs = append(pairs, model.ShiftPair{Prev: prev, Next: next})
	}
	return pairs, true
}

// dataRequestList 提取休假申请列表
func (n *normalizer) dataRequestList(field string, data map[string]interface{}, key string) ([]model.DayOffRequest, bool) {
	raw, exists := data[key]
	if !exists {
		n.verrs.Add(field+".data."+key, "缺少必填配置键")
		return nil, false
	}
	items, ok := raw.([]interface{})
	if !ok {
		n.verrs.Add(field+".data."+key, "应为 {employee,day} 列表")
		return nil, false
	}
	reqs := make([]model.DayOffRequest, 0, len(items))
	for j, item := range items {
		rf := fmt.Sprintf("%s.data.%s[%d]", field, key, j)
		obj, ok := item.(map[string]interface{})
		if !ok {
			n.verrs.Add(rf, "应为 {employee,day} 对象")
			return nil, false
		}
		emp, ok1 := obj["employee"].(string)
		day, ok2 := obj["day"].(string)
		if !ok1 || !ok2 {
			n.verrs.Add(rf, "employee 与 day 均为必填字符串")
			return nil, false
		}
		for k := range obj {
			if k != "employee" && k != "day" {
				n.verrs.Addf(rf+"."+k, "未识别的配置键")
				return nil, false
			}
		}
		reqs = append(reqs, model.DayOffRequest{Employee: emp, Day: day})
	}
	return reqs, true
}

// ===================== 集合辅助 =====================

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func intersects(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, s := range want {
		if set[s] {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, s := range want {
		if !set[s] {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
