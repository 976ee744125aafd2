package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConvertMilliunits multiplies a milliunit amount by a conversion rate and
// rounds to cent precision (the nearest 10 milliunits, half away from zero).
func ConvertMilliunits(amount int64, rate decimal.Decimal) int64 {
	if rate.Equal(decimal.NewFromInt(1)) {
		return amount
	}
	cents := decimal.NewFromInt(amount).Mul(rate).DivRound(decimal.NewFromInt(10), 0)
	return cents.Mul(decimal.NewFromInt(10)).IntPart()
}

// MonthKey returns the YYYY-MM month of a YYYY-MM-DD date.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// addDays shifts a YYYY-MM-DD date by a number of days. A malformed date is
// returned unchanged.
func addDays(date string, days int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format("2006-01-02")
}

// daysBetween returns the absolute number of days between two YYYY-MM-DD
// dates. Malformed dates are treated as infinitely far apart.
func daysBetween(a, b string) int {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return int(^uint(0) >> 1)
	}

	diff := ta.Sub(tb)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// amountWithinSlack reports whether got is within slackPct (e.g. 0.02) of
// want. Both amounts must have the same sign.
func amountWithinSlack(got, want int64, slackPct float64) bool {
	if (got < 0) != (want < 0) {
		return false
	}

	diff := got - want
	if diff < 0 {
		diff = -diff
	}

	slack := decimal.NewFromInt(want).Abs().Mul(decimal.NewFromFloat(slackPct))
	return decimal.NewFromInt(diff).LessThanOrEqual(slack)
}
