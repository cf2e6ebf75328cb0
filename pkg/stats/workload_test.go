package stats

import (
	"reflect"
	"testing"
	"time"

	"github.com/fpapale/schedulai/pkg/model"
	"github.com/fpapale/schedulai/pkg/validator"
)

func TestSummarizeMinutesAndCounts(t *testing.T) {
	spec := testSpec([]string{"P1", "P2"}, testDays(3))
	ns := normalizeSpec(t, spec)
	days := spec.Sets.Days

	flat := []model.FlatAssignment{
		{Date: days[0], Site: "A", Shift: "M", Employee: "P1"},
		{Date: days[1], Site: "A", Shift: "M", Employee: "P1"},
		{Date: days[2], Site: "A", Shift: "N", Employee: "P1"},
		{Date: days[0], Site: "A", Shift: "N", Employee: "P2"},
	}

	got := Summarize(ns, flat)

	if got.MinutesWorked["P1"] != 3*480 {
		t.Errorf("P1 分钟数 = %d, want %d", got.MinutesWorked["P1"], 3*480)
	}
	if got.MinutesWorked["P2"] != 480 {
		t.Errorf("P2 分钟数 = %d, want %d", got.MinutesWorked["P2"], 480)
	}
	wantP1 := map[string]int{"M": 2, "N": 1}
	if !reflect.DeepEqual(got.ShiftCounts["P1"], wantP1) {
		t.Errorf("P1 班次计数 = %v, want %v", got.ShiftCounts["P1"], wantP1)
	}
	wantP2 := map[string]int{"M": 0, "N": 1}
	if !reflect.DeepEqual(got.ShiftCounts["P2"], wantP2) {
		t.Errorf("P2 班次计数 = %v, want %v", got.ShiftCounts["P2"], wantP2)
	}
}

func TestSummarizeDenseZeroEntries(t *testing.T) {
	spec := testSpec([]string{"P1", "P2"}, testDays(1))
	ns := normalizeSpec(t, spec)

	got := Summarize(ns, nil)

	for _, e := range spec.Sets.Employees {
		if got.MinutesWorked[e] != 0 {
			t.Errorf("空排班下 %s 分钟数 = %d, want 0", e, got.MinutesWorked[e])
		}
		counts, ok := got.ShiftCounts[e]
		if !ok {
			t.Fatalf("缺少 %s 的班次计数", e)
		}
		for _, s := range ns.WorkShifts {
			if counts[s] != 0 {
				t.Errorf("空排班下 %s/%s 计数 = %d, want 0", e, s, counts[s])
			}
		}
	}
}

func TestSummarizeIgnoresUnknownRows(t *testing.T) {
	spec := testSpec([]string{"P1"}, testDays(1))
	ns := normalizeSpec(t, spec)
	day := spec.Sets.Days[0]

	flat := []model.FlatAssignment{
		{Date: day, Site: "A", Shift: "M", Employee: "P1"},
		{Date: day, Site: "A", Shift: "M", Employee: "GHOST"},
		{Date: day, Site: "A", Shift: "OFF", Employee: "P1"},
	}

	got := Summarize(ns, flat)

	if got.MinutesWorked["P1"] != 480 {
		t.Errorf("P1 分钟数 = %d, want 480", got.MinutesWorked["P1"])
	}
	if _, ok := got.MinutesWorked["GHOST"]; ok {
		t.Error("未声明的员工不应出现在汇总中")
	}
	if got.ShiftCounts["P1"]["M"] != 1 {
		t.Errorf("P1 M 班计数 = %d, want 1", got.ShiftCounts["P1"]["M"])
	}
}

// 辅助函数

func testDays(n int) []string {
	start, _ := time.Parse("2006-01-02", "2026-03-02")
	days := make([]string, n)
	for i := range days {
		days[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	return days
}

func testSpec(employees, days []string) *model.Spec {
	emps := make(map[string]model.EmployeeDef, len(employees))
	for _, e := range employees {
		emps[e] = model.EmployeeDef{Skills: []string{"general"}, Roles: []string{"worker"}}
	}
	return &model.Spec{
		Sets: model.Sets{
			Employees: employees,
			Days:      days,
			Shifts:    []string{"M", "N", "OFF"},
			Sites:     []string{"A"},
		},
		Shifts: map[string]model.ShiftDef{
			"M":   {Start: "07:00", End: "15:00", Minutes: 480, IsWork: true},
			"N":   {Start: "22:00", End: "06:00", Minutes: 480, IsWork: true},
			"OFF": model.RestShiftDef(),
		},
		Employees: emps,
		Objective: model.Objective{
			Mode:  "minimize",
			Terms: []model.ObjectiveTerm{{Kind: "soft_penalties_total", Weight: 1}},
		},
	}
}

func normalizeSpec(t *testing.T, spec *model.Spec) *model.NormalizedSpec {
	t.Helper()
	ns, verrs := validator.Normalize(spec)
	if verrs.HasErrors() {
		t.Fatalf("规格未通过规范化: %v", verrs.Strings())
	}
	return ns
}
