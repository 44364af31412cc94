package tracker

import "math"

// Drop describes a price decrease relative to a baseline.
type Drop struct {
	Old             int64
	New             int64
	Savings         int64
	DiscountPercent int
}

// Evaluate applies the drop rule: only a price strictly below the baseline
// counts. A zero baseline (free item) can never drop further.
func Evaluate(baseline, price int64) (Drop, bool) {
	if baseline <= 0 || price < 0 || price >= baseline {
		return Drop{}, false
	}
	pct := math.Round((1 - float64(price)/float64(baseline)) * 100)
	return Drop{
		Old:             baseline,
		New:             price,
		Savings:         baseline - price,
		DiscountPercent: int(pct),
	}, true
}
