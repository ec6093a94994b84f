package service

import (
	"strconv"
	"strings"
	"time"
)

// RelDate 以日历方式计算 date 到 ref 的间隔，返回如 "3 days, 2 hours" 的描述；
// 年份折算为月，date 晚于 ref 时视为零间隔
func RelDate(date, ref time.Time) string {
	months, days, hours, minutes := relDelta(date, ref)
	switch {
	case months >= 1:
		return joinUnits(unit(months, "month"), unit(days, "day"))
	case days >= 7:
		return unit(days, "day")
	case days >= 1:
		return joinUnits(unit(days, "day"), unit(hours, "hour"))
	case hours >= 1:
		return joinUnits(unit(hours, "hour"), unit(minutes, "minute"))
	default:
		return unit(minutes, "minute")
	}
}

func unit(n int, name string) string {
	s := strconv.Itoa(n) + " " + name
	if n != 1 {
		s += "s"
	}
	return s
}

func joinUnits(parts ...string) string {
	return strings.Join(parts, ", ")
}

// relDelta 月份按日历推进（月末对齐到目标月最后一天），剩余部分拆成天/时/分
func relDelta(date, ref time.Time) (months, days, hours, minutes int) {
	date = date.UTC()
	ref = ref.UTC()
	if !ref.After(date) {
		return 0, 0, 0, 0
	}

	months = (ref.Year()-date.Year())*12 + int(ref.Month()-date.Month())
	for months > 0 && addMonths(date, months).After(ref) {
		months--
	}

	rest := ref.Sub(addMonths(date, months))
	days = int(rest / (24 * time.Hour))
	rest -= time.Duration(days) * 24 * time.Hour
	hours = int(rest / time.Hour)
	rest -= time.Duration(hours) * time.Hour
	minutes = int(rest / time.Minute)
	return months, days, hours, minutes
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	y += total / 12
	m = time.Month(total%12 + 1)
	if last := daysIn(y, m); d > last {
		d = last
	}
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
