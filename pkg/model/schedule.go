package model

// SolveStatus 求解终态
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "OPTIMAL"    // 证明最优
	StatusFeasible   SolveStatus = "FEASIBLE"   // 超时前找到可行解
	StatusInfeasible SolveStatus = "INFEASIBLE" // 约束集合无解
	StatusTimeout    SolveStatus = "TIMEOUT"    // 超时且无可行解
	StatusError      SolveStatus = "ERROR"      // 引擎异常
)

// HasSolution 判断该终态是否携带排班结果
func (s SolveStatus) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Assignment 单个格点赋值：员工 e 在日 d 被指派班次 s
type Assignment struct {
	Employee string
	Day      string
	Shift    string
}

// Schedule 嵌套视图：日 -> 站点 -> 班次 -> 员工列表（按规格顺序），
// 休息班次不进站点分组，单独保留在 rest 映射中
type Schedule struct {
	Data map[string]map[string]map[string][]string `json:"data"`
	Rest map[string][]string                       `json:"rest"`
}

// FlatAssignment 扁平视图中的一行
type FlatAssignment struct {
	Date     string `json:"date"`
	Site     string `json:"site"`
	Shift    string `json:"shift"`
	Employee string `json:"employee"`
}

// WorkloadStats 每员工工作量汇总
type WorkloadStats struct {
	MinutesWorked map[string]int            `json:"minutes_worked"`
	ShiftCounts   map[string]map[string]int `json:"shift_counts"`
}

// Result 求解成功（OPTIMAL/FEASIBLE）时的完整结果载荷
type Result struct {
	Status         SolveStatus      `json:"status"`
	ObjectiveValue int64            `json:"objective_value"`
	Schedule       *Schedule        `json:"schedule"`
	Flat           []FlatAssignment `json:"flat"`
	Penalties      map[string]int64 `json:"penalties"`
	Stats          *WorkloadStats   `json:"stats,omitempty"`
}

// Failure 求解失败（INFEASIBLE/TIMEOUT/ERROR）时的结果载荷
type Failure struct {
	Status  SolveStatus `json:"status"`
	Message string      `json:"message"`
	Bound   *int64      `json:"bound,omitempty"`
}

// JobStatus 任务生命周期状态
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)
