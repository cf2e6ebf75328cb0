package cpsat

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status 求解终止状态
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
	StatusTimeout
)

// String 返回状态的文本表示
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Params 求解参数
type Params struct {
	MaxTime time.Duration // 墙钟时限，零值表示不限时
	Workers int           // 并行搜索协程数，小于 1 时按 1 处理
	Seed    int64         // 组合搜索打乱分支顺序用的随机种子
}

// Result 求解结果
type Result struct {
	Status    Status
	Objective int64 // 最优解或现任解的目标值
	Bound     int64 // 已证明的目标下界
	Nodes     int64 // 所有搜索协程展开的节点总数
	values    []int64
}

// HasSolution 报告结果中是否携带完整赋值
func (r *Result) HasSolution() bool {
	return r.values != nil
}

// Value 返回变量在解中的取值，无解时返回 0
func (r *Result) Value(v IntVar) int64 {
	if r.values == nil || v.idx < 0 || v.idx >= len(r.values) {
		return 0
	}
	return r.values[v.idx]
}

// BoolValue 返回布尔变量在解中的取值
func (r *Result) BoolValue(v IntVar) bool {
	return r.Value(v) == 1
}

// Eval 在解的赋值下计算线性表达式的值
func (r *Result) Eval(e LinearExpr) int64 {
	total := e.Offset
	for _, t := range e.Terms {
		total += t.Coef * r.Value(t.Var)
	}
	return total
}

var errSearchDone = errors.New("搜索树已穷尽")

// Solve 求解模型
//
// 证明最优返回 StatusOptimal；时限内找到可行解但未证明最优返回 StatusFeasible；
// 证明无可行解返回 StatusInfeasible；时限内未找到任何可行解返回 StatusTimeout。
// 模型构建非法时返回错误。
func Solve(ctx context.Context, m *Model, p Params) (*Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if p.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.MaxTime)
		defer cancel()
	}
	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	n := len(m.lb)
	cons, ok := presolve(m.cons, n)
	if !ok {
		return &Result{Status: StatusInfeasible, Nodes: 1}, nil
	}
	watch := make([][]int32, n)
	for ci := range cons {
		for _, t := range cons[ci].terms {
			watch[t.v] = append(watch[t.v], int32(ci))
		}
	}

	// 不在任何约束中的变量无需分支：正系数目标项取下界即最优，
	// 负系数取上界，其余变量取值任意
	skip := make([]bool, n)
	var freeNeg []int32
	for v := 0; v < n; v++ {
		skip[v] = len(watch[v]) == 0
	}
	for _, t := range m.obj {
		if skip[t.v] && t.coef < 0 {
			freeNeg = append(freeNeg, t.v)
		}
	}

	// 根节点传播：统一收紧变量边界，冲突则直接判定不可行
	root := newSearcher(m, cons, watch, skip, freeNeg, degreeOrder(watch), false, newIncumbent(), deadline)
	for ci := range cons {
		root.inQueue[ci] = true
		root.queue = append(root.queue, int32(ci))
	}
	if !root.propagate() {
		return &Result{Status: StatusInfeasible, Nodes: 1}, nil
	}
	bound := root.objLowerBound()
	if root.pickVar() < 0 {
		values := root.solution()
		obj := root.evalObjective(values)
		return &Result{
			Status:    StatusOptimal,
			Objective: obj,
			Bound:     obj,
			Nodes:     1,
			values:    values,
		}, nil
	}

	inc := newIncumbent()
	var totalNodes atomic.Int64
	var complete atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		s := newSearcher(m, cons, watch, skip, freeNeg, workerOrder(root.order, w, p.Seed), w%2 == 1, inc, deadline)
		copy(s.lb, root.lb)
		copy(s.ub, root.ub)
		g.Go(func() error {
			done := s.search(gctx)
			totalNodes.Add(s.nodes)
			if done {
				complete.Store(true)
				// 任一协程穷尽搜索树即可终止其余协程
				return errSearchDone
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && err != errSearchDone {
		return nil, err
	}

	res := &Result{Nodes: totalNodes.Load() + 1, Bound: bound}
	obj, values, has := inc.snapshot()
	switch {
	case complete.Load() && has:
		res.Status = StatusOptimal
		res.Objective = obj
		res.Bound = obj
		res.values = values
	case complete.Load():
		res.Status = StatusInfeasible
	case has:
		res.Status = StatusFeasible
		res.Objective = obj
		res.values = values
	default:
		res.Status = StatusTimeout
	}
	return res, nil
}

// incumbent 各搜索协程共享的现任最优解
type incumbent struct {
	best   atomic.Int64
	mu     sync.Mutex
	values []int64
}

func newIncumbent() *incumbent {
	inc := &incumbent{}
	inc.best.Store(math.MaxInt64)
	return inc
}

// bestKnown 返回当前最优目标值，第二个返回值表示是否已有可行解
func (inc *incumbent) bestKnown() (int64, bool) {
	v := inc.best.Load()
	return v, v != math.MaxInt64
}

// offer 尝试以更优的目标值替换现任解
func (inc *incumbent) offer(obj int64, values []int64) {
	if obj >= inc.best.Load() {
		return
	}
	inc.mu.Lock()
	defer inc.mu.Unlock()
	if obj >= inc.best.Load() {
		return
	}
	inc.values = append(inc.values[:0], values...)
	inc.best.Store(obj)
}

// snapshot 返回现任解的副本
func (inc *incumbent) snapshot() (int64, []int64, bool) {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	v := inc.best.Load()
	if v == math.MaxInt64 {
		return 0, nil, false
	}
	return v, append([]int64(nil), inc.values...), true
}

// trailEntry 边界修改的回溯记录
type trailEntry struct {
	v     int32
	oldLb int64
	oldUb int64
}

// decision 分支决策：stage 0 先令变量取边界值，stage 1 排除该值继续搜索
type decision struct {
	v         int32
	val       int64
	upFirst   bool
	stage     int
	trailMark int
}

// searcher 单个搜索协程的分支定界状态
type searcher struct {
	cs        []linearConstraint
	watch     [][]int32
	obj       []cTerm
	objOffset int64
	lb        []int64
	ub        []int64
	skip      []bool
	freeNeg   []int32
	trail     []trailEntry
	stack     []decision
	queue     []int32
	inQueue   []bool
	order     []int32
	upFirst   bool
	shared    *incumbent
	deadline  time.Time
	nodes     int64
}

func newSearcher(m *Model, cons []linearConstraint, watch [][]int32, skip []bool, freeNeg []int32, order []int32, upFirst bool, shared *incumbent, deadline time.Time) *searcher {
	return &searcher{
		cs:        cons,
		watch:     watch,
		obj:       m.obj,
		objOffset: m.objOffset,
		lb:        append([]int64(nil), m.lb...),
		ub:        append([]int64(nil), m.ub...),
		skip:      skip,
		freeNeg:   freeNeg,
		inQueue:   make([]bool, len(cons)),
		order:     order,
		upFirst:   upFirst,
		shared:    shared,
		deadline:  deadline,
	}
}

// search 深度优先分支定界，返回搜索树是否被完整穷尽
func (s *searcher) search(ctx context.Context) bool {
	for {
		s.nodes++
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if !s.deadline.IsZero() && time.Now().After(s.deadline) {
			return false
		}

		feasible := s.propagate()
		if feasible {
			if best, has := s.shared.bestKnown(); has && s.objLowerBound() >= best {
				// 当前子树不可能产生优于现任解的赋值
				feasible = false
			}
		}
		if feasible {
			v := s.pickVar()
			if v >= 0 {
				s.pushDecision(v)
				continue
			}
			// 受约束变量已全部固定，记录解后回溯以继续寻找更优解
			vals := s.solution()
			s.shared.offer(s.evalObjective(vals), vals)
		}
		if !s.backtrack() {
			return true
		}
	}
}

// propagate 以工作队列方式收紧变量边界直至不动点，返回 false 表示冲突
func (s *searcher) propagate() bool {
	for head := 0; head < len(s.queue); head++ {
		ci := s.queue[head]
		s.inQueue[ci] = false
		c := &s.cs[ci]

		minAct, maxAct := s.activity(c)
		if minAct > c.hi || maxAct < c.lo {
			s.resetQueue(head + 1)
			return false
		}
		if minAct >= c.lo && maxAct <= c.hi {
			continue
		}
		for _, t := range c.terms {
			var tMin, tMax int64
			if t.coef > 0 {
				tMin, tMax = t.coef*s.lb[t.v], t.coef*s.ub[t.v]
			} else {
				tMin, tMax = t.coef*s.ub[t.v], t.coef*s.lb[t.v]
			}
			minOther := minAct - tMin
			maxOther := maxAct - tMax

			var newLb, newUb int64
			if t.coef > 0 {
				newUb = floorDiv(c.hi-minOther, t.coef)
				newLb = ceilDiv(c.lo-maxOther, t.coef)
			} else {
				newLb = ceilDiv(c.hi-minOther, t.coef)
				newUb = floorDiv(c.lo-maxOther, t.coef)
			}
			if newLb > s.lb[t.v] {
				s.setLb(t.v, newLb)
			}
			if newUb < s.ub[t.v] {
				s.setUb(t.v, newUb)
			}
			if s.lb[t.v] > s.ub[t.v] {
				s.resetQueue(head + 1)
				return false
			}
		}
	}
	s.queue = s.queue[:0]
	return true
}

// activity 计算约束左端在当前边界下的最小与最大活动量
func (s *searcher) activity(c *linearConstraint) (int64, int64) {
	var minAct, maxAct int64
	for _, t := range c.terms {
		if t.coef > 0 {
			minAct += t.coef * s.lb[t.v]
			maxAct += t.coef * s.ub[t.v]
		} else {
			minAct += t.coef * s.ub[t.v]
			maxAct += t.coef * s.lb[t.v]
		}
	}
	return minAct, maxAct
}

// objLowerBound 计算目标在当前边界下的下界
func (s *searcher) objLowerBound() int64 {
	total := s.objOffset
	for _, t := range s.obj {
		if t.coef > 0 {
			total += t.coef * s.lb[t.v]
		} else {
			total += t.coef * s.ub[t.v]
		}
	}
	return total
}

// solution 以当前边界生成完整赋值
//
// 未参与任何约束的变量不经分支，正系数目标项取下界即最优，负系数取上界。
func (s *searcher) solution() []int64 {
	vals := make([]int64, len(s.lb))
	copy(vals, s.lb)
	for _, v := range s.freeNeg {
		vals[v] = s.ub[v]
	}
	return vals
}

// evalObjective 在赋值 vals 下计算目标值
func (s *searcher) evalObjective(vals []int64) int64 {
	total := s.objOffset
	for _, t := range s.obj {
		total += t.coef * vals[t.v]
	}
	return total
}

// pickVar 按分支顺序返回第一个未固定的受约束变量，没有则返回 -1
func (s *searcher) pickVar() int32 {
	for _, v := range s.order {
		if !s.skip[v] && s.lb[v] < s.ub[v] {
			return v
		}
	}
	return -1
}

func (s *searcher) pushDecision(v int32) {
	d := decision{v: v, upFirst: s.upFirst, trailMark: len(s.trail)}
	if d.upFirst {
		d.val = s.ub[v]
		s.setLb(v, d.val)
	} else {
		d.val = s.lb[v]
		s.setUb(v, d.val)
	}
	s.stack = append(s.stack, d)
}

// backtrack 回退到最近一个还有未尝试分支的决策，栈空时返回 false
func (s *searcher) backtrack() bool {
	for len(s.stack) > 0 {
		d := &s.stack[len(s.stack)-1]
		s.undoTo(d.trailMark)
		if d.stage == 0 {
			d.stage = 1
			if d.upFirst {
				s.setUb(d.v, d.val-1)
			} else {
				s.setLb(d.v, d.val+1)
			}
			return true
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
	return false
}

func (s *searcher) undoTo(mark int) {
	for len(s.trail) > mark {
		e := s.trail[len(s.trail)-1]
		s.trail = s.trail[:len(s.trail)-1]
		s.lb[e.v] = e.oldLb
		s.ub[e.v] = e.oldUb
	}
}

func (s *searcher) setLb(v int32, val int64) {
	s.trail = append(s.trail, trailEntry{v: v, oldLb: s.lb[v], oldUb: s.ub[v]})
	s.lb[v] = val
	s.wake(v)
}

func (s *searcher) setUb(v int32, val int64) {
	s.trail = append(s.trail, trailEntry{v: v, oldLb: s.lb[v], oldUb: s.ub[v]})
	s.ub[v] = val
	s.wake(v)
}

// wake 将监视变量 v 的约束重新加入传播队列
func (s *searcher) wake(v int32) {
	for _, ci := range s.watch[v] {
		if !s.inQueue[ci] {
			s.inQueue[ci] = true
			s.queue = append(s.queue, ci)
		}
	}
}

func (s *searcher) resetQueue(from int) {
	for _, ci := range s.queue[from:] {
		s.inQueue[ci] = false
	}
	s.queue = s.queue[:0]
}

func naturalOrder(n int) []int32 {
	order := make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}
	return order
}

// degreeOrder 按参与约束数量降序排列变量，约束最密的变量最先分支
func degreeOrder(watch [][]int32) []int32 {
	order := naturalOrder(len(watch))
	sort.SliceStable(order, func(i, j int) bool {
		return len(watch[order[i]]) > len(watch[order[j]])
	})
	return order
}

// workerOrder 为每个搜索协程生成不同的分支顺序
//
// 前两个协程按约束度降序，第三个按模型顺序，第四个按逆序，
// 其余按种子打乱，配合奇偶交替的取值方向构成组合搜索。
func workerOrder(deg []int32, w int, seed int64) []int32 {
	n := len(deg)
	switch {
	case w < 2:
		return append([]int32(nil), deg...)
	case w == 2:
		return naturalOrder(n)
	case w == 3:
		order := naturalOrder(n)
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
		return order
	default:
		order := naturalOrder(n)
		rng := rand.New(rand.NewSource(seed + int64(w)))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		return order
	}
}

// floorDiv 向负无穷取整的整数除法
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ceilDiv 向正无穷取整的整数除法
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}
