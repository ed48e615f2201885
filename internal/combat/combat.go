// Package combat resolves a single matchup between two power values.
package combat

import (
	"fmt"

	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/pkg/core"
)

const (
	// MinPower substitutes for zero or negative power.
	MinPower = 1

	MinWinRate = 0.10
	MaxWinRate = 0.95

	winRateFactor = 1.2
)

// Input is one matchup. Troop counts are the soldiers committed by each side.
type Input struct {
	AttackerPower  int `json:"attackerPower"`
	DefenderPower  int `json:"defenderPower"`
	AttackerTroops int `json:"attackerTroops"`
	DefenderTroops int `json:"defenderTroops"`
}

// WinRate returns the attacker's share of total power and the clamped
// probability of an attacker victory.
func WinRate(attackerPower, defenderPower int) (ratio, winRate float64) {
	a, d := floorPower(attackerPower), floorPower(defenderPower)
	ratio = float64(a) / float64(a+d)
	winRate = min(max(ratio*winRateFactor, MinWinRate), MaxWinRate)
	return ratio, winRate
}

// Resolve draws one uniform value from rng and decides the matchup.
//
// On victory the defender loses every committed soldier and the attacker
// loses troops*(1-ratio)*0.3. On defeat the attacker loses half its troops
// and the defender loses troops*ratio*0.5. Losses are floored and never
// exceed the committed troops.
func Resolve(in Input, rng random.Source) core.BattleOutcome {
	a, d := floorPower(in.AttackerPower), floorPower(in.DefenderPower)
	atkTroops, defTroops := max(in.AttackerTroops, 0), max(in.DefenderTroops, 0)

	ratio, winRate := WinRate(a, d)
	roll := rng.Float64()

	out := core.BattleOutcome{
		Victory: roll < winRate,
		Ratio:   ratio,
		WinRate: winRate,
		Roll:    roll,
	}

	// Losses use integer arithmetic: ratio = a/(a+d), 1-ratio = d/(a+d).
	total := int64(a) + int64(d)
	if out.Victory {
		out.DefenderLosses = defTroops
		out.AttackerLosses = int(int64(atkTroops) * int64(d) * 3 / (10 * total))
	} else {
		out.AttackerLosses = atkTroops / 2
		out.DefenderLosses = int(int64(defTroops) * int64(a) * 5 / (10 * total))
	}
	out.AttackerLosses = min(max(out.AttackerLosses, 0), atkTroops)
	out.DefenderLosses = min(max(out.DefenderLosses, 0), defTroops)

	result := "defeat"
	if out.Victory {
		result = "victory"
	}
	out.Log = []string{
		fmt.Sprintf("attacker power %d vs defender power %d (ratio %.3f, win rate %.2f)", a, d, ratio, winRate),
		fmt.Sprintf("roll %.4f: %s", roll, result),
		fmt.Sprintf("losses: attacker %d/%d, defender %d/%d", out.AttackerLosses, atkTroops, out.DefenderLosses, defTroops),
	}
	return out
}

func floorPower(p int) int {
	return max(p, MinPower)
}
