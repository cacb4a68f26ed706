package cadence

import (
	"strconv"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		label string
		want  Interval
	}{
		{"1 month", Interval{Unit: UnitMonth, N: 1}},
		{"3 months", Interval{Unit: UnitMonth, N: 3}},
		{"Monthly", Interval{Unit: UnitMonth, N: 1}},
		{"  12 MONTHS  ", Interval{Unit: UnitMonth, N: 12}},
		{"Weekly", Interval{Unit: UnitWeek, N: 1}},
		{"2 weeks", Interval{Unit: UnitWeek, N: 2}},
		{"10 days", Interval{Unit: UnitDay, N: 10}},
		{"1 year", Interval{Unit: UnitYear, N: 1}},
		{"Yearly", Interval{Unit: UnitYear, N: 1}},
		{"blood test in 3-6 months", Interval{Unit: UnitMonth, N: 3}},
		{"3 months 2 weeks", Interval{Unit: UnitMonth, N: 3}},
		{"2 weeks then 5 days", Interval{Unit: UnitWeek, N: 2}},
		{"take 2 tablets for 6 weeks", Interval{Unit: UnitWeek, N: 2}},
		{"0 days", Interval{Unit: UnitDay, N: 0}},
		{"-4 days", Interval{Unit: UnitDay, N: 4}},
		{"1.5 months", Interval{Unit: UnitMonth, N: 1}},
		{"", Interval{}},
		{"ASAP", Interval{}},
		{"garbage text", Interval{}},
		{"99999999999999999999999 days", Interval{}},
		{"10000 days", Interval{Unit: UnitDay, N: 10000}},
		{"10001 days", Interval{}},
		{"9223372036854775807 days", Interval{}},
		{"9223372036854775807 months", Interval{}},
		{"768614336404564651 years", Interval{}},
		{"00000000000000000000003 weeks", Interval{Unit: UnitWeek, N: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := ParseInterval(tt.label); got != tt.want {
				t.Errorf("ParseInterval(%q) = %+v, want %+v", tt.label, got, tt.want)
			}
		})
	}
}

func TestComputeDueDate(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		label string
		want  time.Time
	}{
		{"month end into leap february", date(2024, 1, 31), "1 month", date(2024, 2, 29)},
		{"month end into common february", date(2023, 1, 31), "Monthly", date(2023, 2, 28)},
		{"three months from leap day", date(2024, 2, 29), "3 months", date(2024, 5, 29)},
		{"month rolls over year", date(2024, 11, 30), "3 months", date(2025, 2, 28)},
		{"same day next month", date(2024, 3, 15), "1 month", date(2024, 4, 15)},
		{"31st into 30 day month", date(2024, 3, 31), "1 month", date(2024, 4, 30)},
		{"two weeks", date(2024, 6, 15), "2 weeks", date(2024, 6, 29)},
		{"weekly", date(2024, 12, 28), "Weekly", date(2025, 1, 4)},
		{"days", date(2024, 2, 27), "3 days", date(2024, 3, 1)},
		{"leap day plus a year", date(2024, 2, 29), "1 year", date(2025, 2, 28)},
		{"twelve months", date(2024, 1, 31), "12 months", date(2025, 1, 31)},
		{"zero magnitude", date(2024, 6, 15), "0 months", date(2024, 6, 15)},
		{"garbage", date(2024, 6, 15), "garbage text", date(2024, 6, 15)},
		{"empty", date(2024, 6, 15), "", date(2024, 6, 15)},
		{"asap", date(2024, 6, 15), "ASAP", date(2024, 6, 15)},
		{"max int days", date(2024, 6, 15), "9223372036854775807 days", date(2024, 6, 15)},
		{"max int months", date(2024, 6, 15), "9223372036854775807 months", date(2024, 6, 15)},
		{"huge years", date(2024, 6, 15), "768614336404564651 years", date(2024, 6, 15)},
		{"largest magnitude", date(2024, 6, 15), "10000 years", date(12024, 6, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDueDate(tt.start, tt.label)
			if !got.Equal(tt.want) {
				t.Errorf("ComputeDueDate(%s, %q) = %s, want %s",
					tt.start.Format("2006-01-02"), tt.label, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestComputeDueDate_MonthClampsForEveryMonth(t *testing.T) {
	for _, year := range []int{2023, 2024} {
		for m := time.January; m <= time.December; m++ {
			start := date(year, m, 31)
			if start.Month() != m {
				continue
			}
			for n := 1; n <= 24; n++ {
				got := ComputeDueDate(start, "every "+strconv.Itoa(n)+" months")
				target := date(year, m+time.Month(n), 1)
				if got.Year() != target.Year() || got.Month() != target.Month() {
					t.Fatalf("%s + %d months landed in %s", start.Format("2006-01-02"), n, got.Format("2006-01"))
				}
				if got.Day() != daysIn(target) {
					t.Fatalf("%s + %d months = %s, want last day of month", start.Format("2006-01-02"), n, got.Format("2006-01-02"))
				}
			}
		}
	}
}

func TestComputeDueDate_StripsTimeOfDay(t *testing.T) {
	start := time.Date(2024, 6, 15, 17, 45, 12, 999, time.UTC)
	got := ComputeDueDate(start, "1 day")
	if !got.Equal(date(2024, 6, 16)) {
		t.Errorf("expected 2024-06-16 00:00, got %s", got)
	}

	got = ComputeDueDate(start, "not an interval")
	if !got.Equal(date(2024, 6, 15)) {
		t.Errorf("expected fallback to start date, got %s", got)
	}
}

func TestResolve_ReportsFallback(t *testing.T) {
	out := Resolve(date(2024, 6, 15), "whenever")
	if out.Parsed {
		t.Error("expected unparsed outcome")
	}
	if !out.Due.Equal(date(2024, 6, 15)) {
		t.Errorf("expected due date to fall back to start, got %s", out.Due)
	}

	out = Resolve(date(2024, 6, 15), "6 weeks")
	if !out.Parsed {
		t.Error("expected parsed outcome")
	}
	if out.Interval.String() != "6 weeks" {
		t.Errorf("expected interval '6 weeks', got %q", out.Interval.String())
	}
}

func TestInterval_String(t *testing.T) {
	if s := (Interval{Unit: UnitMonth, N: 1}).String(); s != "1 month" {
		t.Errorf("got %q", s)
	}
	if s := (Interval{Unit: UnitDay, N: 3}).String(); s != "3 days" {
		t.Errorf("got %q", s)
	}
	if s := (Interval{}).String(); s != "unparsed" {
		t.Errorf("got %q", s)
	}
}

func FuzzComputeDueDate(f *testing.F) {
	for _, seed := range []string{"", "1 month", "Monthly", "٣ weeks", "\x00\xff", "9999999999999999999 years", "3-6 months", "  ",
		"9223372036854775807 days", "9223372036854775807 months", "768614336404564651 years", "10000 weeks"} {
		f.Add(seed)
	}
	start := date(2024, 1, 31)
	f.Fuzz(func(t *testing.T, label string) {
		got := ComputeDueDate(start, label)
		if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 || got.Nanosecond() != 0 {
			t.Fatalf("ComputeDueDate(%q) kept a time of day: %s", label, got)
		}
		if !ParseInterval(label).Valid() && !got.Equal(start) {
			t.Fatalf("unparsed label %q moved the date to %s", label, got)
		}
		if got.Before(start) {
			t.Fatalf("ComputeDueDate(%q) = %s, before the start date", label, got)
		}
	})
}
