package repair

import (
	"math"
	"math/rand/v2"
	"time"
)

const year = 365 * 24 * time.Hour

// computeNextCheck implements the formula next = now +
// clamp(2*(now-releaseDate), 0, 365d), additionally capped at now+365d.
// This is deliberately NOT javi11-altmount's tiered CalculateNextCheck
// (aggressive/daily/normal buckets with jitter); the interval is capped
// explicitly here instead.
func computeNextCheck(now, releaseDate time.Time) time.Time {
	age := now.Sub(releaseDate)
	if age < 0 {
		age = 0
	}
	if age > year {
		age = year
	}
	interval := 2 * age
	if interval < 0 {
		interval = 0
	}
	if interval > year {
		interval = year
	}
	next := now.Add(interval)
	if ceiling := now.Add(year); next.After(ceiling) {
		next = ceiling
	}
	return next
}

// samplingRate implements the age-adaptive sampling tiers. base is
// repair.sampling-rate; the result is always clamped to [0.05, 1.0].
func samplingRate(base float64, age time.Duration, adaptive bool) float64 {
	if !adaptive {
		return clampRate(base)
	}

	const day = 24 * time.Hour
	var rate float64
	switch {
	case age < 30*day:
		rate = 2 * base
		if rate > 1.0 {
			rate = 1.0
		}
	case age < 180*day:
		rate = base
	case age < 365*day:
		rate = 0.67 * base
		if rate < 0.05 {
			rate = 0.05
		}
	default:
		rate = 0.33 * base
		if rate < 0.05 {
			rate = 0.05
		}
	}
	return clampRate(rate)
}

func clampRate(r float64) float64 {
	if r < 0.05 {
		return 0.05
	}
	if r > 1.0 {
		return 1.0
	}
	return r
}

// sampleSegments picks sample-rate-adaptive, min-segments-floored indices
// out of total segment count n: at least minSegments articles, more for
// newer/smaller releases.
func sampleSegments(n int, rate float64, minSegments int) []int {
	if n <= 0 {
		return nil
	}
	want := int(math.Ceil(float64(n) * rate))
	if want < minSegments {
		want = minSegments
	}
	if want > n {
		want = n
	}

	idx := rand.Perm(n)[:want]
	return idx
}
