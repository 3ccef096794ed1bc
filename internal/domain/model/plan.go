package model

import (
	"math"
	"time"
)

type Plan string

const (
	PlanNone    Plan = ""
	PlanMonthly Plan = "monthly"
	PlanAnnual  Plan = "annual"
)

func (p Plan) Valid() bool { return p == PlanMonthly || p == PlanAnnual }

// Advance returns t moved forward by one plan period. Calendar months and
// years are used; a day that does not exist in the target month is clamped
// to that month's last day (Jan 31 + 1 month = Feb 28/29).
func (p Plan) Advance(t time.Time) time.Time {
	switch p {
	case PlanMonthly:
		return addMonthsClamped(t, 1)
	case PlanAnnual:
		return addMonthsClamped(t, 12)
	default:
		return t
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// DefaultPlanTolerance is the symmetric relative tolerance used when matching
// an amount against a configured price.
const DefaultPlanTolerance = 0.05

// PriceTable holds the configured plan prices. Read-only.
type PriceTable struct {
	Monthly   int64
	Yearly    int64
	Tolerance float64
}

// DeterminePlan maps an amount to a plan. Monthly wins when both prices match.
// PlanNone means the amount is not a subscription payment.
func (pt PriceTable) DeterminePlan(amount int64) Plan {
	tol := pt.Tolerance
	if tol <= 0 {
		tol = DefaultPlanTolerance
	}
	if matchesPrice(amount, pt.Monthly, tol) {
		return PlanMonthly
	}
	if matchesPrice(amount, pt.Yearly, tol) {
		return PlanAnnual
	}
	return PlanNone
}

func matchesPrice(amount, price int64, tol float64) bool {
	if price <= 0 || amount <= 0 {
		return false
	}
	return math.Abs(float64(amount-price)) <= float64(price)*tol
}
