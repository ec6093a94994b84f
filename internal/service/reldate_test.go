package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelDate(t *testing.T) {
	ref := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		date time.Time
		want string
	}{
		{"just now", ref, "0 minutes"},
		{"one minute", ref.Add(-time.Minute - 10*time.Second), "1 minute"},
		{"minutes", ref.Add(-59 * time.Minute), "59 minutes"},
		{"one hour", ref.Add(-time.Hour), "1 hour, 0 minutes"},
		{"hours and minutes", ref.Add(-2*time.Hour - 5*time.Minute), "2 hours, 5 minutes"},
		{"one day", ref.Add(-25 * time.Hour), "1 day, 1 hour"},
		{"six days", ref.Add(-6*24*time.Hour - 3*time.Hour), "6 days, 3 hours"},
		{"week drops hours", ref.Add(-8*24*time.Hour - 3*time.Hour), "8 days"},
		{"one month", time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC), "1 month, 0 days"},
		{"months and days", time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), "2 months, 5 days"},
		{"years fold into months", time.Date(2023, 1, 14, 12, 0, 0, 0, time.UTC), "14 months, 1 day"},
		{"future clamps", ref.Add(time.Hour), "0 minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RelDate(tc.date, ref))
		})
	}
}

func TestRelDateMonthEndClamp(t *testing.T) {
	// 1 月 31 日 + 1 个月 对齐到 2 月 29 日（闰年）
	date := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	ref := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "1 month, 1 day", RelDate(date, ref))
}
