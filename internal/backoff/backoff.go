package backoff

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

type Policy string

const (
	Fixed          Policy = "fixed"
	Linear         Policy = "linear"
	Exponential    Policy = "exponential"
	ExpEqualJitter Policy = "exp_equal_jitter"
	ExpFullJitter  Policy = "exp_full_jitter"
)

func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return Fixed, nil
	case Fixed, Linear, Exponential, ExpEqualJitter, ExpFullJitter:
		return p, nil
	}
	return "", fmt.Errorf("unknown poll policy %q (fixed|linear|exponential|exp_equal_jitter|exp_full_jitter)", s)
}

// Schedule computes the wait before the next poll attempt.
type Schedule struct {
	Policy Policy
	Base   time.Duration
	Max    time.Duration
	rng    *rand.Rand
}

func NewSchedule(policy Policy, base, max time.Duration, rng *rand.Rand) Schedule {
	return Schedule{Policy: policy, Base: base, Max: max, rng: rng}
}

// Delay returns the wait after the given number of completed attempts.
// attempts is expected to be >= 0.
func (s Schedule) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	base := s.Base
	if base <= 0 {
		base = time.Second
	}
	max := s.Max
	if max <= 0 {
		max = base
	}
	rng := s.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch s.Policy {
	case Linear:
		return minDur(base*time.Duration(maxInt(1, attempts)), max)
	case Exponential:
		return exp(base, max, attempts)
	case ExpEqualJitter:
		d := exp(base, max, attempts)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	case ExpFullJitter:
		d := exp(base, max, attempts)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	default: // fixed
		return minDur(base, max)
	}
}

func exp(base, max time.Duration, attempts int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= float64(max) {
		return max
	}
	return time.Duration(f)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
