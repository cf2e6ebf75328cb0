package model

import (
	"fmt"
	"strconv"
	"time"
)

const minutesPerDay = 24 * 60

// ParseHHMM 解析 HH:MM 为自 00:00 起的分钟数
func ParseHHMM(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	hh, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	mm, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, fmt.Errorf("时间格式无效: %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("时间超出范围: %q", s)
	}
	return hh*60 + mm, nil
}

// ParseDay 解析 YYYY-MM-DD 日期
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效: %q", s)
	}
	return t, nil
}

// EndAbs 返回班次结束时刻相对所在日 00:00 的绝对分钟数。
// end 的钟面时间早于或等于 start 时，班次在次日结束
func (d ShiftDef) EndAbs() (int, error) {
	start, err := ParseHHMM(d.Start)
	if err != nil {
		return 0, err
	}
	end, err := ParseHHMM(d.End)
	if err != nil {
		return 0, err
	}
	if end > start {
		return end, nil
	}
	return minutesPerDay + end, nil
}

// StartMinutes 返回班次开始时刻的分钟数
func (d ShiftDef) StartMinutes() (int, error) {
	return ParseHHMM(d.Start)
}

// RestGapMinutes 计算 prev（日 d）结束到 next（日 d+1）开始之间的休息分钟数。
// prev 跨天结束会自然压缩休息时间；结果可为负（次日班次开始早于前班结束）
func RestGapMinutes(prev, next ShiftDef) (int, error) {
	prevEnd, err := prev.EndAbs()
	if err != nil {
		return 0, err
	}
	nextStart, err := next.StartMinutes()
	if err != nil {
		return 0, err
	}
	return minutesPerDay + nextStart - prevEnd, nil
}
