package billing

import (
	"testing"
	"time"
)

func TestIsLeapYear(t *testing.T) {
	cases := []struct {
		year int
		want bool
	}{
		{1970, false},
		{1972, true},
		{1900, false},
		{2000, true},
		{2023, false},
		{2024, true},
		{2100, false},
	}

	for _, c := range cases {
		if got := isLeapYear(c.year); got != c.want {
			t.Errorf("isLeapYear(%d) = %v, want %v", c.year, got, c.want)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month int
		want        int
	}{
		{2023, 1, 31},
		{2023, 2, 28},
		{2024, 2, 29},
		{2023, 4, 30},
		{2023, 12, 31},
		{2023, 13, 0},
	}

	for _, c := range cases {
		if got := daysInMonth(c.year, c.month); got != c.want {
			t.Errorf("daysInMonth(%d, %d) = %d, want %d", c.year, c.month, got, c.want)
		}
	}
}

func ts(year int, month time.Month, day, hour, min, sec int) int64 {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC).Unix()
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		name   string
		start  int64
		months int
		want   int64
	}{
		{"mid month", ts(2023, time.March, 15, 9, 30, 0), 1, ts(2023, time.April, 15, 9, 30, 0)},
		{"jan 31 clamps to feb 28", ts(2023, time.January, 31, 0, 0, 0), 1, ts(2023, time.February, 28, 0, 0, 0)},
		{"jan 31 clamps to feb 29 in leap year", ts(2024, time.January, 31, 0, 0, 0), 1, ts(2024, time.February, 29, 0, 0, 0)},
		{"may 31 clamps to jun 30", ts(2023, time.May, 31, 12, 0, 0), 1, ts(2023, time.June, 30, 12, 0, 0)},
		{"year carry", ts(2023, time.November, 10, 0, 0, 0), 3, ts(2024, time.February, 10, 0, 0, 0)},
		{"twelve months", ts(2023, time.June, 1, 6, 0, 0), 12, ts(2024, time.June, 1, 6, 0, 0)},
		{"negative months", ts(2023, time.March, 31, 0, 0, 0), -1, ts(2023, time.February, 28, 0, 0, 0)},
		{"seconds in day preserved", ts(1970, time.January, 12, 13, 46, 40), 1, ts(1970, time.February, 12, 13, 46, 40)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := addMonths(c.start, c.months)
			if err != nil {
				t.Fatalf("addMonths returned error: %v", err)
			}
			if got != c.want {
				t.Fatalf("addMonths(%d, %d) = %d (%s), want %d (%s)",
					c.start, c.months, got, time.Unix(got, 0).UTC(), c.want, time.Unix(c.want, 0).UTC())
			}
		})
	}
}

func TestAddMonths_LastDayStaysLastDay(t *testing.T) {
	// Walking forward from Jan 31, each target month with fewer days must
	// land on its own last day.
	for year := 2023; year <= 2024; year++ {
		start := ts(year, time.January, 31, 0, 0, 0)
		for n := 1; n <= 12; n++ {
			got, err := addMonths(start, n)
			if err != nil {
				t.Fatalf("addMonths(%d, %d) returned error: %v", start, n, err)
			}
			d, err := decompose(got)
			if err != nil {
				t.Fatalf("decompose returned error: %v", err)
			}
			max := daysInMonth(d.year, d.month)
			wantDay := 31
			if wantDay > max {
				wantDay = max
			}
			if d.day != wantDay {
				t.Fatalf("year %d +%d months: day = %d, want %d", year, n, d.day, wantDay)
			}
		}
	}
}

func TestAddMonths_Overflow(t *testing.T) {
	if _, err := addMonths(-1, 1); err == nil {
		t.Fatal("expected error for pre-epoch timestamp")
	}

	farFuture := ts(9999, time.December, 31, 0, 0, 0)
	if _, err := addMonths(farFuture, 12); err == nil {
		t.Fatal("expected overflow error past the supported year range")
	}
}

func TestDecomposeRecomposeRoundTrip(t *testing.T) {
	stamps := []int64{
		0,
		ts(1970, time.December, 31, 23, 59, 59),
		ts(2000, time.February, 29, 12, 0, 0),
		ts(2023, time.July, 4, 1, 2, 3),
		ts(2099, time.January, 1, 0, 0, 0),
	}

	for _, stamp := range stamps {
		d, err := decompose(stamp)
		if err != nil {
			t.Fatalf("decompose(%d) returned error: %v", stamp, err)
		}
		if got := recompose(d); got != stamp {
			t.Fatalf("round trip of %d gave %d", stamp, got)
		}
	}
}
