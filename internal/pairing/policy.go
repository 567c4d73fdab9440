package pairing

import "time"

// TolerancePolicy decides how far apart two skill buckets may be for a pair
// to form, as a function of how long the requester has been waiting.
type TolerancePolicy interface {
	Tolerance(waited time.Duration) int
}

// WideningPolicy starts narrow and widens by Step every Interval of waiting,
// so long-waiting players eventually match anyone (starvation avoidance).
type WideningPolicy struct {
	Base     int
	Step     int
	Interval time.Duration
}

func (p WideningPolicy) Tolerance(waited time.Duration) int {
	if p.Interval <= 0 || waited < 0 {
		return p.Base
	}
	return p.Base + p.Step*int(waited/p.Interval)
}
