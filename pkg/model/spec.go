// Package model 定义排班规格文档与求解结果的核心数据模型
package model

// RestShiftLabel 休息班次的固定标签
const RestShiftLabel = "OFF"

// DefaultSite 规格未声明站点时注入的缺省站点标签
const DefaultSite = "SITE_DEFAULT"

// Spec 排班规格文档（对外 JSON 形状固定，供编辑器与外部编排互操作）
type Spec struct {
	Sets        Sets                   `json:"sets"`
	Shifts      map[string]ShiftDef    `json:"shifts"`
	Employees   map[string]EmployeeDef `json:"employees"`
	Demand      []DemandEntry          `json:"demand"`
	Constraints []RuleEntry            `json:"constraints"`
	Objective   Objective              `json:"objective"`
}

// Sets 标识符集合
type Sets struct {
	Employees []string `json:"employees"` // 有序、唯一
	Days      []string `json:"days"`      // YYYY-MM-DD，严格递增
	Shifts    []string `json:"shifts"`    // 必须包含 OFF
	Sites     []string `json:"sites"`
}

// ShiftDef 班次模板
type ShiftDef struct {
	Start   string `json:"start"` // HH:MM
	End     string `json:"end"`   // HH:MM；end <= start 表示跨天结束
	Minutes int    `json:"minutes"`
	IsWork  bool   `json:"is_work"`
}

// RestShiftDef OFF 的唯一合法形状
func RestShiftDef() ShiftDef {
	return ShiftDef{Start: "00:00", End: "00:00", Minutes: 0, IsWork: false}
}

// EmployeeDef 员工属性
type EmployeeDef struct {
	Skills   []string  `json:"skills"`
	Roles    []string  `json:"roles"`
	SiteHome string    `json:"site_home,omitempty"` // 缺省表示不受站点限制
	Contract *Contract `json:"contract,omitempty"`
}

// Contract 合同信息
type Contract struct {
	Type string `json:"type"`
}

// DemandEntry 覆盖需求：某 (日, 站点, 班次) 的人数要求
// eq 与 min/max 互斥；边界均为闭区间
type DemandEntry struct {
	Day          string        `json:"day"`
	Site         string        `json:"site"`
	Shift        string        `json:"shift"` // 必须为工作班次
	Eq           *int          `json:"eq,omitempty"`
	Min          *int          `json:"min,omitempty"`
	Max          *int          `json:"max,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty"`
}

// Requirements 需求附加条件
type Requirements struct {
	SkillsMin []SkillMin `json:"skills_min,omitempty"`
	RolesMin  []RoleMin  `json:"roles_min,omitempty"`
}

// SkillMin 技能最低人数
type SkillMin struct {
	Skill string `json:"skill"`
	Min   int    `json:"min"`
}

// RoleMin 角色最低人数
type RoleMin struct {
	Role string `json:"role"`
	Min  int    `json:"min"`
}

// RuleEntry 规则条目（原始 JSON 形式，规范化阶段转为类型化变体）
type RuleEntry struct {
	ID      string                 `json:"id,omitempty"`
	Type    string                 `json:"type"` // hard | soft
	Kind    string                 `json:"kind"`
	Scope   *Scope                 `json:"scope,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Penalty *Penalty               `json:"penalty,omitempty"` // 仅软规则
}

// Name 返回规则的对外标识：有 id 用 id，否则用 kind
func (r RuleEntry) Name() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Kind
}

// Scope 规则作用域。employees 为 "ALL" 或 id 列表；
// 其余过滤器按 AND 语义依次收窄
type Scope struct {
	Employees    interface{} `json:"employees,omitempty"` // "ALL" | []string
	SkillsAny    []string    `json:"skills_any,omitempty"`
	SkillsAll    []string    `json:"skills_all,omitempty"`
	RolesAny     []string    `json:"roles_any,omitempty"`
	RolesAll     []string    `json:"roles_all,omitempty"`
	SitesAny     []string    `json:"sites_any,omitempty"`
	ContractsAny []string    `json:"contracts_any,omitempty"`
}

// Penalty 软规则惩罚配置
type Penalty struct {
	Weight int `json:"weight"`
}

// Objective 目标函数声明，形状固定
type Objective struct {
	Mode  string          `json:"mode"` // 恒为 minimize
	Terms []ObjectiveTerm `json:"terms"`
}

// ObjectiveTerm 目标项
type ObjectiveTerm struct {
	Kind   string `json:"kind"` // 恒为 soft_penalties_total
	Weight int    `json:"weight"`
}

// GlobalWeight 返回全局权重乘数（规格缺省时为 1）
func (o Objective) GlobalWeight() int {
	for _, t := range o.Terms {
		if t.Kind == "soft_penalties_total" {
			return t.Weight
		}
	}
	return 1
}

// Employee 按 id 取员工属性；不存在时返回零值与 false
func (s *Spec) Employee(id string) (EmployeeDef, bool) {
	e, ok := s.Employees[id]
	return e, ok
}

// WorkShifts 返回工作班次（保持 sets.shifts 顺序）
func (s *Spec) WorkShifts() []string {
	out := make([]string, 0, len(s.Sets.Shifts))
	for _, label := range s.Sets.Shifts {
		if def, ok := s.Shifts[label]; ok && def.IsWork {
			out = append(out, label)
		}
	}
	return out
}

// DayIndex 返回日期到下标的映射
func (s *Spec) DayIndex() map[string]int {
	idx := make(map[string]int, len(s.Sets.Days))
	for i, d := range s.Sets.Days {
		idx[d] = i
	}
	return idx
}
