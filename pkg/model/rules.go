package model

// RuleType 规则类别
type RuleType string

const (
	RuleHard RuleType = "hard" // 硬规则（必须满足）
	RuleSoft RuleType = "soft" // 软规则（违反计入目标函数）
)

// RuleKind 规则种类。识别的种类是封闭集合：
// 不在目录内的种类在规范化阶段即判为引用违规，绝不静默接受
type RuleKind string

const (
	// 硬规则
	KindExactlyOneAssignmentPerDay  RuleKind = "exactly_one_assignment_per_day"
	KindForbidShiftSequences        RuleKind = "forbid_shift_sequences"
	KindMaxShiftsInWindow           RuleKind = "max_shifts_in_window"
	KindMinRestMinutesBetweenShifts RuleKind = "min_rest_minutes_between_shifts"
	KindMaxWorkMinutesInWindow      RuleKind = "max_work_minutes_in_window"
	KindMaxConsecutiveWorkDays      RuleKind = "max_consecutive_work_days"
	KindMinConsecutiveDaysOff       RuleKind = "min_consecutive_days_off"

	// 软规则
	KindPenalizeWorkOnDays          RuleKind = "penalize_work_on_days"
	KindPenalizeWorkOnShifts        RuleKind = "penalize_work_on_shifts"
	KindPenalizeUnmetDayOffRequests RuleKind = "penalize_unmet_day_off_requests"
	KindFairDistribution            RuleKind = "fair_distribution"
)

// Rule 规范化后的规则：作用域已展开为显式员工列表，参数已类型化
type Rule struct {
	Name      string
	Kind      RuleKind
	Type      RuleType
	Employees []string
	Weight    int // 软规则权重；硬规则恒为 0
	Params    RuleParams
}

// RuleParams 规则参数的封闭变体集合。
// 降低器对该集合做穷尽类型分派；新增种类是单点的类型化改动
type RuleParams interface {
	ruleParams()
}

// ExactlyOneParams exactly_one_assignment_per_day 参数
// Shifts 必须与 sets.shifts 完全一致
type ExactlyOneParams struct {
	Shifts []string
}

// ShiftPair 禁止的班次接续对
type ShiftPair struct {
	Prev string `json:"prev_shift"`
	Next string `json:"next_shift"`
}

// ForbidSequencesParams forbid_shift_sequences 参数
type ForbidSequencesParams struct {
	Pairs []ShiftPair
}

// MaxShiftsInWindowParams max_shifts_in_window 参数（滚动窗口，尾部截断计入）
type MaxShiftsInWindowParams struct {
	WindowDays int
	Shifts     []string
	Max        int
}

// MinRestParams min_rest_minutes_between_shifts 参数
type MinRestParams struct {
	Minutes int
}

// MaxWorkMinutesParams max_work_minutes_in_window 参数
type MaxWorkMinutesParams struct {
	WindowDays int
	Max        int
}

// MaxConsecutiveWorkDaysParams max_consecutive_work_days 参数
type MaxConsecutiveWorkDaysParams struct {
	Max int
}

// MinConsecutiveDaysOffParams min_consecutive_days_off 参数
type MinConsecutiveDaysOffParams struct {
	Min int
}

// PenalizeWorkOnDaysParams penalize_work_on_days 参数（已解析为日期下标）
type PenalizeWorkOnDaysParams struct {
	Days []int
}

// PenalizeWorkOnShiftsParams penalize_work_on_shifts 参数
type PenalizeWorkOnShiftsParams struct {
	Shifts []string
}

// DayOffRequest 休假申请（原始形式）
type DayOffRequest struct {
	Employee string `json:"employee"`
	Day      string `json:"day"`
}

// ResolvedDayOffRequest 休假申请（日期已解析为下标）
type ResolvedDayOffRequest struct {
	Employee string
	Day      int
}

// PenalizeUnmetDayOffRequestsParams penalize_unmet_day_off_requests 参数。
// 作用域隐含在申请列表中
type PenalizeUnmetDayOffRequestsParams struct {
	Requests []ResolvedDayOffRequest
}

// FairDistributionParams fair_distribution 参数。
// 目标均值 μ 在模型内按窗口计算（向下取整除法），不是常量
type FairDistributionParams struct {
	Shifts     []string
	WindowDays int
}

func (ExactlyOneParams) ruleParams()                  {}
func (ForbidSequencesParams) ruleParams()             {}
func (MaxShiftsInWindowParams) ruleParams()           {}
func (MinRestParams) ruleParams()                     {}
func (MaxWorkMinutesParams) ruleParams()              {}
func (MaxConsecutiveWorkDaysParams) ruleParams()      {}
func (MinConsecutiveDaysOffParams) ruleParams()       {}
func (PenalizeWorkOnDaysParams) ruleParams()          {}
func (PenalizeWorkOnShiftsParams) ruleParams()        {}
func (PenalizeUnmetDayOffRequestsParams) ruleParams() {}
func (FairDistributionParams) ruleParams()            {}

// FieldSpec 规则参数字段描述，目录接口与数据键白名单共用同一份定义
type FieldSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// KindSpec 规则种类描述
type KindSpec struct {
	Kind   RuleKind    `json:"kind"`
	Type   RuleType    `json:"type"`
	Fields []FieldSpec `json:"fields"`
}

// Kinds 返回识别的规则种类目录。
// 规范化阶段据此校验数据键，目录接口据此生成表单描述
func Kinds() []KindSpec {
	return []KindSpec{
		{Kind: KindExactlyOneAssignmentPerDay, Type: RuleHard, Fields: []FieldSpec{
			{Name: "shifts", Type: "string_list", Required: true},
		}},
		{Kind: KindForbidShiftSequences, Type: RuleHard, Fields: []FieldSpec{
			{Name: "forbidden_pairs", Type: "pair_list", Required: true},
		}},
		{Kind: KindMaxShiftsInWindow, Type: RuleHard, Fields: []FieldSpec{
			{Name: "window_days", Type: "int", Required: true},
			{Name: "shifts", Type: "string_list", Required: false},
			{Name: "max", Type: "int", Required: true},
			{Name: "mode", Type: "string", Required: false},
		}},
		{Kind: KindMinRestMinutesBetweenShifts, Type: RuleHard, Fields: []FieldSpec{
			{Name: "minutes", Type: "int", Required: true},
		}},
		{Kind: KindMaxWorkMinutesInWindow, Type: RuleHard, Fields: []FieldSpec{
			{Name: "window_days", Type: "int", Required: true},
			{Name: "max", Type: "int", Required: true},
		}},
		{Kind: KindMaxConsecutiveWorkDays, Type: RuleHard, Fields: []FieldSpec{
			{Name: "max", Type: "int", Required: true},
		}},
		{Kind: KindMinConsecutiveDaysOff, Type: RuleHard, Fields: []FieldSpec{
			{Name: "min", Type: "int", Required: true},
		}},
		{Kind: KindPenalizeWorkOnDays, Type: RuleSoft, Fields: []FieldSpec{
			{Name: "days", Type: "day_list", Required: true},
		}},
		{Kind: KindPenalizeWorkOnShifts, Type: RuleSoft, Fields: []FieldSpec{
			{Name: "shifts", Type: "string_list", Required: true},
		}},
		{Kind: KindPenalizeUnmetDayOffRequests, Type: RuleSoft, Fields: []FieldSpec{
			{Name: "requests", Type: "request_list", Required: true},
		}},
		{Kind: KindFairDistribution, Type: RuleSoft, Fields: []FieldSpec{
			{Name: "measure", Type: "string", Required: false},
			{Name: "shifts", Type: "string_list", Required: true},
			{Name: "window_days", Type: "int", Required: false},
			{Name: "target", Type: "string", Required: false},
			{Name: "penalize", Type: "string", Required: false},
		}},
	}
}

// KindOf 查找种类描述；未识别返回 false
func KindOf(kind string) (KindSpec, bool) {
	for _, ks := range Kinds() {
		if string(ks.Kind) == kind {
			return ks, true
		}
	}
	return KindSpec{}, false
}

// NormalizedSpec 规范化产物：交叉引用已验证，规则已展开并类型化。
// 一次求解独占一份，随模型一同丢弃
type NormalizedSpec struct {
	Spec       *Spec
	DayIdx     map[string]int
	WorkShifts []string
	Rules      []Rule
	Warnings   []string
}

// LatticeCells 返回变量格规模 |employees| x |days| x |shifts|
func (n *NormalizedSpec) LatticeCells() int {
	return len(n.Spec.Sets.Employees) * len(n.Spec.Sets.Days) * len(n.Spec.Sets.Shifts)
}
