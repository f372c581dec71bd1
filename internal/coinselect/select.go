// Package coinselect chooses which outputs fund a payment.
package coinselect

import (
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/satchel/internal/chain"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Coin is a spendable output offered to Select.
type Coin struct {
	OutPoint wire.OutPoint
	Value    int64
}

// Selection is the outcome of Select. Total == Target + Fee + Change.
type Selection struct {
	Inputs []Coin
	Total  int64
	Target int64
	Fee    int64
	// Change is zero when the residual was at or below dust and went to
	// the fee.
	Change int64
}

// HasChange reports whether the transaction needs a change output.
func (s *Selection) HasChange() bool {
	return s.Change > 0
}

// OutPoints lists the selected outpoints.
func (s *Selection) OutPoints() []wire.OutPoint {
	ops := make([]wire.OutPoint, len(s.Inputs))
	for i, c := range s.Inputs {
		ops[i] = c.OutPoint
	}
	return ops
}

func (s *Selection) waste() int64 {
	return s.Fee + s.Change
}

// exactMatchTries bounds the changeless search.
const exactMatchTries = 100_000

// Select funds target from coins. Three candidates are built: the
// smallest single coin that covers the payment, the cheapest changeless
// combination found by a bounded depth-first search, and a largest-first
// accumulation. The one wasting least (fee plus change) wins; ties go to
// fewer inputs, then to outpoint order. The result does not depend on the
// order of coins.
func Select(coins []Coin, target int64, fees FeePolicy, dust int64) (*Selection, error) {
	if target <= 0 {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidAmount, map[string]string{
			"amount": strconv.FormatInt(target, 10),
			"reason": "must be positive",
		})
	}
	if target < dust {
		return nil, walleterr.WithDetails(walleterr.ErrDustOutput, map[string]string{
			"amount": strconv.FormatInt(target, 10),
			"dust":   strconv.FormatInt(dust, 10),
		})
	}

	sorted := make([]Coin, 0, len(coins))
	var available int64
	for _, c := range coins {
		if c.Value <= 0 {
			continue
		}
		sorted = append(sorted, c)
		available += c.Value
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		return chain.LessOutPoint(sorted[i].OutPoint, sorted[j].OutPoint)
	})

	var best *Selection
	for _, candidate := range []*Selection{
		smallestSingle(sorted, target, fees, dust),
		exactMatch(sorted, target, fees, dust),
		largestFirst(sorted, target, fees, dust),
	} {
		if candidate != nil && (best == nil || better(candidate, best)) {
			best = candidate
		}
	}
	if best != nil {
		return best, nil
	}

	needed := target + fees.Fee(len(sorted), false)
	return nil, walleterr.WithDetails(walleterr.ErrInsufficientFunds, map[string]string{
		"needed":    strconv.FormatInt(needed, 10),
		"available": strconv.FormatInt(available, 10),
		"shortfall": strconv.FormatInt(needed-available, 10),
	})
}

func smallestSingle(sorted []Coin, target int64, fees FeePolicy, dust int64) *Selection {
	for _, c := range sorted {
		if sel := settle([]Coin{c}, target, fees, dust); sel != nil {
			return sel
		}
	}
	return nil
}

// exactMatch searches, largest coins first, for a set whose excess over
// target plus fee is at most dust, so no change output is needed. Coins
// worth less than the fee they add are skipped. The search stops after
// exactMatchTries steps and returns the best set seen.
func exactMatch(sorted []Coin, target int64, fees FeePolicy, dust int64) *Selection {
	marginal := fees.Fee(1, false) - fees.Fee(0, false)
	pool := make([]Coin, 0, len(sorted))
	var remaining int64
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Value > marginal {
			pool = append(pool, sorted[i])
			remaining += sorted[i].Value
		}
	}

	var (
		best   *Selection
		picked []Coin
		tries  int
	)
	var walk func(i int, total, rest int64)
	walk = func(i int, total, rest int64) {
		if tries >= exactMatchTries {
			return
		}
		tries++
		if len(picked) > 0 {
			excess := total - target - fees.Fee(len(picked), false)
			if excess > dust {
				return
			}
			if excess >= 0 {
				if sel := settle(picked, target, fees, dust); sel != nil && (best == nil || better(sel, best)) {
					best = sel
				}
				return
			}
		}
		if i == len(pool) || total+rest < target+fees.Fee(len(picked)+1, false) {
			return
		}
		picked = append(picked, pool[i])
		walk(i+1, total+pool[i].Value, rest-pool[i].Value)
		picked = picked[:len(picked)-1]
		walk(i+1, total, rest-pool[i].Value)
	}
	walk(0, 0, remaining)
	return best
}

func largestFirst(sorted []Coin, target int64, fees FeePolicy, dust int64) *Selection {
	var inputs []Coin
	for i := len(sorted) - 1; i >= 0; i-- {
		inputs = append(inputs, sorted[i])
		if sel := settle(inputs, target, fees, dust); sel != nil {
			return sel
		}
	}
	return nil
}

// settle prices inputs and decides on change, or returns nil when they
// do not cover target plus fee.
func settle(inputs []Coin, target int64, fees FeePolicy, dust int64) *Selection {
	var total int64
	for _, c := range inputs {
		total += c.Value
	}

	feeWithChange := fees.Fee(len(inputs), true)
	if change := total - target - feeWithChange; change > dust {
		return newSelection(inputs, total, target, feeWithChange, change)
	}
	if feeNoChange := fees.Fee(len(inputs), false); total >= target+feeNoChange {
		return newSelection(inputs, total, target, total-target, 0)
	}
	return nil
}

func newSelection(inputs []Coin, total, target, fee, change int64) *Selection {
	sel := &Selection{
		Inputs: append([]Coin(nil), inputs...),
		Total:  total,
		Target: target,
		Fee:    fee,
		Change: change,
	}
	sort.Slice(sel.Inputs, func(i, j int) bool {
		return chain.LessOutPoint(sel.Inputs[i].OutPoint, sel.Inputs[j].OutPoint)
	})
	return sel
}

func better(a, b *Selection) bool {
	if a.waste() != b.waste() {
		return a.waste() < b.waste()
	}
	if len(a.Inputs) != len(b.Inputs) {
		return len(a.Inputs) < len(b.Inputs)
	}
	for i := range a.Inputs {
		if a.Inputs[i].OutPoint != b.Inputs[i].OutPoint {
			return chain.LessOutPoint(a.Inputs[i].OutPoint, b.Inputs[i].OutPoint)
		}
	}
	return false
}
