package harvest

import (
	"strings"
	"sync/atomic"

	"github.com/teranos/lpharvest/errors"
)

// SplitPolicy decides how the global limit is shared between repositories
type SplitPolicy string

const (
	// SplitRecency lets every repository fetch up to the full limit; the merge
	// keeps the most recent records overall.
	SplitRecency SplitPolicy = "recency"

	// SplitEven gives each repository ceil(limit/n)
	SplitEven SplitPolicy = "even"

	// SplitFirstCome shares one budget of limit records; fetchers claim records
	// as pages arrive.
	SplitFirstCome SplitPolicy = "first-come"
)

// SplitPolicies lists the accepted policy names
var SplitPolicies = []SplitPolicy{SplitRecency, SplitEven, SplitFirstCome}

// ParseSplitPolicy accepts a policy name; empty selects SplitRecency
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch p := SplitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SplitRecency, nil
	case SplitRecency, SplitEven, SplitFirstCome:
		return p, nil
	case "first_come", "firstcome":
		return SplitFirstCome, nil
	default:
		return "", errors.WithHintf(errors.NewInvalidRequestError("unknown split policy %q", s),
			"use one of %v", SplitPolicies)
	}
}

// Caps returns the per-repository record cap for n repositories
func (p SplitPolicy) Caps(limit, n int) []int {
	caps := make([]int, n)
	share := limit
	if p == SplitEven && n > 0 {
		share = (limit + n - 1) / n
	}
	for i := range caps {
		caps[i] = share
	}
	return caps
}

// Budget is a shared record allowance, safe for concurrent use
type Budget struct {
	remaining atomic.Int64
}

// NewBudget creates a budget of n records
func NewBudget(n int) *Budget {
	b := &Budget{}
	b.remaining.Store(int64(n))
	return b
}

// Claim takes up to n records from the budget and returns how many were granted
func (b *Budget) Claim(n int) int {
	if n <= 0 {
		return 0
	}
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return 0
		}
		grant := int64(n)
		if grant > cur {
			grant = cur
		}
		if b.remaining.CompareAndSwap(cur, cur-grant) {
			return int(grant)
		}
	}
}

// Remaining returns the unclaimed allowance
func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}
