/**
 * @description
 * Calendar arithmetic on UTC-naive Unix timestamps: leap-year test,
 * days-in-month, and month addition with end-of-month clamping
 * (Jan 31 + 1 month = Feb 28/29). No timezone or leap-second handling.
 */
package billing

const secondsPerDay = 86_400

// maxYear bounds the epoch walk; timestamps beyond it fail with
// ErrArithmeticOverflow rather than looping toward int64 overflow.
const maxYear = 9999

// isLeapYear reports whether a Gregorian year is a leap year.
func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// daysInMonth returns the number of days in a month (1-12) of a year.
func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

// daysInYear returns 366 for leap years, 365 otherwise.
func daysInYear(year int) int {
	if isLeapYear(year) {
		return 366
	}
	return 365
}

// civilDate is a timestamp decomposed into calendar components plus the
// seconds elapsed within the day.
type civilDate struct {
	year         int
	month        int // 1-12
	day          int // 1-based
	secondsInDay int64
}

// decompose walks years then months from the epoch (1970-01-01) to break a
// timestamp into calendar components. Timestamps before the epoch or past
// maxYear are rejected.
func decompose(timestamp int64) (civilDate, error) {
	if timestamp < 0 {
		return civilDate{}, ErrArithmeticOverflow
	}

	daysSinceEpoch := timestamp / secondsPerDay
	secondsInDay := timestamp % secondsPerDay

	year := 1970
	remainingDays := int(daysSinceEpoch)
	for {
		days := daysInYear(year)
		if remainingDays < days {
			break
		}
		remainingDays -= days
		year++
		if year > maxYear {
			return civilDate{}, ErrArithmeticOverflow
		}
	}

	month := 1
	for {
		days := daysInMonth(year, month)
		if remainingDays < days {
			break
		}
		remainingDays -= days
		month++
	}

	return civilDate{
		year:         year,
		month:        month,
		day:          remainingDays + 1,
		secondsInDay: secondsInDay,
	}, nil
}

// recompose converts calendar components back into a Unix timestamp by
// summing day counts from the epoch.
func recompose(d civilDate) int64 {
	var days int64
	for y := 1970; y < d.year; y++ {
		days += int64(daysInYear(y))
	}
	for m := 1; m < d.month; m++ {
		days += int64(daysInMonth(d.year, m))
	}
	days += int64(d.day - 1)
	return days*secondsPerDay + d.secondsInDay
}

// addMonths adds n months (n may be negative) to a timestamp, keeping the
// same day of month where possible and clamping to the last day of the
// target month otherwise.
func addMonths(timestamp int64, n int) (int64, error) {
	d, err := decompose(timestamp)
	if err != nil {
		return 0, err
	}

	month := d.month + n
	year := d.year
	for month > 12 {
		month -= 12
		year++
	}
	for month < 1 {
		month += 12
		year--
	}
	if year < 1970 || year > maxYear {
		return 0, ErrArithmeticOverflow
	}

	day := d.day
	if max := daysInMonth(year, month); day > max {
		day = max
	}

	return recompose(civilDate{year: year, month: month, day: day, secondsInDay: d.secondsInDay}), nil
}
