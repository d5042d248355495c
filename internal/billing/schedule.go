/**
 * @description
 * Due-date scheduling: advances a policy's due timestamp through any number
 * of missed cycles until it lands strictly in the future.
 */
package billing

import (
	"math"

	"github.com/tributary-so/tributary/internal/domain"
)

// NextDue advances currentDue by whole cadence units of frequency until the
// result exceeds now. The result is always strictly greater than now, and at
// least one cadence unit past currentDue, so missed cycles are caught up in
// one call.
//
// Custom frequencies with a zero interval are rejected at policy creation;
// NextDue still guards against them to avoid an infinite loop.
func NextDue(currentDue int64, frequency domain.PaymentFrequency, now int64) (int64, error) {
	switch frequency.Kind {
	case domain.FrequencyDaily:
		return advanceBySeconds(currentDue, secondsPerDay, now)
	case domain.FrequencyWeekly:
		return advanceBySeconds(currentDue, 7*secondsPerDay, now)
	case domain.FrequencyMonthly:
		return advanceByMonths(currentDue, 1, now)
	case domain.FrequencyQuarterly:
		return advanceByMonths(currentDue, 3, now)
	case domain.FrequencySemiAnnually:
		return advanceByMonths(currentDue, 6, now)
	case domain.FrequencyAnnually:
		return advanceByMonths(currentDue, 12, now)
	case domain.FrequencyCustom:
		if frequency.CustomSeconds == 0 {
			return 0, ErrInvalidInterval
		}
		if frequency.CustomSeconds > math.MaxInt64 {
			return 0, ErrArithmeticOverflow
		}
		return advanceBySeconds(currentDue, int64(frequency.CustomSeconds), now)
	default:
		return 0, ErrInvalidFrequency
	}
}

// advanceBySeconds adds a fixed interval until the due time passes now,
// advancing at least once.
func advanceBySeconds(due, interval, now int64) (int64, error) {
	for {
		if due > math.MaxInt64-interval {
			return 0, ErrArithmeticOverflow
		}
		due += interval
		if due > now {
			return due, nil
		}
	}
}

// advanceByMonths adds calendar months until the due time passes now,
// advancing at least once. End-of-month clamping makes this exact where a
// closed-form jump would drift, at the cost of one iteration per missed
// cycle.
func advanceByMonths(due int64, months int, now int64) (int64, error) {
	for {
		next, err := addMonths(due, months)
		if err != nil {
			return 0, err
		}
		due = next
		if due > now {
			return due, nil
		}
	}
}
