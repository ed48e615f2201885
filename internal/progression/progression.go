// Package progression applies experience grants to a level/experience state
// and computes per-level stat growth.
package progression

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ironbanner/battlecore/pkg/core"
)

const (
	// DefaultMaxLevel is the level cap used when none is configured.
	DefaultMaxLevel = 80
	// LimitMaxLevel bounds configurable caps so thresholds fit in an int64.
	LimitMaxLevel = 200

	baseThreshold = 100
)

// Growth is the per-level base-stat increase before the quality multiplier.
var Growth = core.Stats{Attack: 3, Defense: 3, Valor: 2, Command: 2, Dodge: 0, Mobility: 1}

// Ledger holds the precomputed threshold table for a level cap.
type Ledger struct {
	maxLevel   int
	thresholds []int // thresholds[L] is the experience needed to leave level L
}

// NewLedger builds a ledger for levels 1..maxLevel. A zero cap selects DefaultMaxLevel.
func NewLedger(maxLevel int) (*Ledger, error) {
	if maxLevel == 0 {
		maxLevel = DefaultMaxLevel
	}
	if maxLevel < 1 || maxLevel > LimitMaxLevel {
		return nil, &core.ValidationError{Field: "maxLevel", Reason: fmt.Sprintf("%d outside [1,%d]", maxLevel, LimitMaxLevel)}
	}

	l := &Ledger{maxLevel: maxLevel, thresholds: make([]int, maxLevel+1)}

	// threshold(L) = floor(100 * 1.2^(L-1)) = floor(100 * 6^(L-1) / 5^(L-1))
	num := big.NewInt(baseThreshold)
	den := big.NewInt(1)
	six, five := big.NewInt(6), big.NewInt(5)
	q := new(big.Int)
	for lvl := 1; lvl < maxLevel; lvl++ {
		q.Quo(num, den)
		l.thresholds[lvl] = int(q.Int64())
		num.Mul(num, six)
		den.Mul(den, five)
	}
	return l, nil
}

// MaxLevel is the configured level cap.
func (l *Ledger) MaxLevel() int {
	return l.maxLevel
}

// Threshold is the experience required to advance from level to level+1.
// It is zero at or beyond the cap and for levels below 1.
func (l *Ledger) Threshold(level int) int {
	if level < 1 || level >= l.maxLevel {
		return 0
	}
	return l.thresholds[level]
}

// NewState returns a level-1 state with the given bonus percent.
func (l *Ledger) NewState(bonusPercent int) core.ProgressionState {
	return core.ProgressionState{
		Level:         1,
		NextThreshold: l.Threshold(1),
		BonusPercent:  bonusPercent,
	}
}

// Bonus returns floor(rawExp * bonusPercent / 100) for non-negative
// arguments, saturating at math.MaxInt.
func Bonus(rawExp, bonusPercent int) int {
	b, ok := bonus(rawExp, bonusPercent)
	if !ok {
		return math.MaxInt
	}
	return b
}

// bonus splits rawExp into hundreds and a remainder so the product never
// exceeds the result. ok is false when the result does not fit in an int.
func bonus(rawExp, bonusPercent int) (int, bool) {
	q, r := rawExp/100, rawExp%100
	if bonusPercent > 0 && q > math.MaxInt/bonusPercent {
		return 0, false
	}
	hi := q * bonusPercent
	lo := r * bonusPercent / 100
	if hi > math.MaxInt-lo {
		return 0, false
	}
	return hi + lo, true
}

// total is rawExp plus its bonus, or false on overflow.
func total(rawExp, bonusPercent int) (int, bool) {
	b, ok := bonus(rawExp, bonusPercent)
	if !ok || b > math.MaxInt-rawExp {
		return 0, false
	}
	return rawExp + b, true
}

// AddExperience applies rawExp plus the state's bonus percent and consumes
// whole levels while the accumulated experience covers the next threshold.
// Experience earned at the level cap is discarded.
func (l *Ledger) AddExperience(state core.ProgressionState, rawExp int) (core.ProgressionState, int, int, error) {
	if rawExp < 0 {
		return state, 0, 0, &core.ValidationError{Field: "rawExp", Reason: fmt.Sprintf("negative experience %d", rawExp)}
	}
	if state.BonusPercent < 0 {
		return state, 0, 0, &core.ValidationError{Field: "bonusPercent", Reason: fmt.Sprintf("negative bonus %d", state.BonusPercent)}
	}
	if state.Level < 1 || state.Level > l.maxLevel {
		return state, 0, 0, &core.ValidationError{Field: "level", Reason: fmt.Sprintf("%d outside [1,%d]", state.Level, l.maxLevel)}
	}
	if state.Exp < 0 {
		return state, 0, 0, &core.ValidationError{Field: "exp", Reason: fmt.Sprintf("negative experience %d", state.Exp)}
	}

	granted, ok := total(rawExp, state.BonusPercent)
	if !ok || granted > math.MaxInt-state.Exp {
		return state, 0, 0, &core.ValidationError{Field: "rawExp", Reason: fmt.Sprintf("grant of %d at %d%% bonus overflows", rawExp, state.BonusPercent)}
	}

	next := state
	next.Exp += granted
	gained := 0
	for next.Level < l.maxLevel && next.Exp >= l.Threshold(next.Level) {
		next.Exp -= l.Threshold(next.Level)
		next.Level++
		gained++
	}
	if next.Level >= l.maxLevel {
		next.Level = l.maxLevel
		next.Exp = 0
	}
	next.NextThreshold = l.Threshold(next.Level)

	return next, gained, granted, nil
}

// GrowStats returns base after levels of growth at the given quality.
func (l *Ledger) GrowStats(base core.Stats, quality core.Quality, levels int) core.Stats {
	if levels <= 0 {
		return base
	}
	mult := quality.Multiplier()
	for _, s := range core.PowerStats {
		if per := core.Scale(Growth.Get(s), mult); per > 0 {
			base.Add(s, per*levels)
		}
	}
	return base
}
