// Package battle stages a multi-unit engagement between two formations.
//
// Both sides are put in turn order. The front attacker fights the front
// defender; the loser of each matchup is routed and the next unit on that
// side steps up with its own soldiers, while the winner carries on with what
// it has left. The attacker wins once every defender is routed.
package battle

import (
	"errors"
	"fmt"

	"github.com/ironbanner/battlecore/internal/attribute"
	"github.com/ironbanner/battlecore/internal/combat"
	"github.com/ironbanner/battlecore/internal/formation"
	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/pkg/core"
)

// ErrNoCombatants is returned when a side has no unit with soldiers.
var ErrNoCombatants = errors.New("no combatants with soldiers")

// Result is an engagement outcome plus per-unit losses. Combatants are not
// mutated; the caller applies Losses.
type Result struct {
	Outcome core.BattleOutcome
	// Fought lists attacker IDs that took part in at least one matchup, in turn order.
	Fought []string
	// Losses maps combatant ID to soldiers lost, for both sides.
	Losses map[string]int
}

type unit struct {
	c      *core.Combatant
	power  int
	troops int
}

// Engage resolves attackers against defenders.
func Engage(attackers, defenders formation.Lineup, sets core.SetCatalog, rng random.Source) (*Result, error) {
	atk := line(attackers, sets)
	def := line(defenders, sets)
	if len(atk) == 0 {
		return nil, fmt.Errorf("attackers: %w", ErrNoCombatants)
	}
	if len(def) == 0 {
		return nil, fmt.Errorf("defenders: %w", ErrNoCombatants)
	}

	res := &Result{Losses: make(map[string]int)}
	out := &res.Outcome
	fought := make(map[string]bool)

	i, j, wave := 0, 0, 0
	for i < len(atk) && j < len(def) {
		wave++
		a, d := &atk[i], &def[j]
		if !fought[a.c.ID] {
			fought[a.c.ID] = true
			res.Fought = append(res.Fought, a.c.ID)
		}

		m := combat.Resolve(combat.Input{
			AttackerPower:  a.power,
			DefenderPower:  d.power,
			AttackerTroops: a.troops,
			DefenderTroops: d.troops,
		}, rng)

		out.Matchups = append(out.Matchups, core.Matchup{
			Wave:           wave,
			AttackerID:     a.c.ID,
			DefenderID:     d.c.ID,
			AttackerPower:  a.power,
			DefenderPower:  d.power,
			AttackerTroops: a.troops,
			DefenderTroops: d.troops,
			WinRate:        m.WinRate,
			Roll:           m.Roll,
			Victory:        m.Victory,
			AttackerLosses: m.AttackerLosses,
			DefenderLosses: m.DefenderLosses,
		})
		out.Log = append(out.Log, fmt.Sprintf("[wave %d] %s (%d) vs %s (%d)", wave, a.c.Name, a.troops, d.c.Name, d.troops))
		for _, entry := range m.Log {
			out.Log = append(out.Log, fmt.Sprintf("[wave %d] %s", wave, entry))
		}

		a.troops -= m.AttackerLosses
		d.troops -= m.DefenderLosses
		res.Losses[a.c.ID] += m.AttackerLosses
		res.Losses[d.c.ID] += m.DefenderLosses
		out.AttackerLosses += m.AttackerLosses
		out.DefenderLosses += m.DefenderLosses
		out.Ratio, out.WinRate, out.Roll = m.Ratio, m.WinRate, m.Roll

		if m.Victory {
			j++
			if a.troops <= 0 {
				i++
			}
		} else {
			i++
			if d.troops <= 0 {
				j++
			}
		}
	}

	out.Victory = j >= len(def)
	result := "defeat"
	if out.Victory {
		result = "victory"
	}
	out.Log = append(out.Log, fmt.Sprintf("%s after %d waves: attacker lost %d, defender lost %d", result, wave, out.AttackerLosses, out.DefenderLosses))
	return res, nil
}

// line orders a formation and drops units without soldiers.
func line(l formation.Lineup, sets core.SetCatalog) []unit {
	var out []unit
	for _, p := range formation.Order(l, sets) {
		if p.Combatant.Soldiers <= 0 {
			continue
		}
		out = append(out, unit{
			c:      p.Combatant,
			power:  attribute.WithTroop(p.Stats, p.Combatant.Troop).Power,
			troops: p.Combatant.Soldiers,
		})
	}
	return out
}

// Preview returns the attacker's win rate for a single matchup between the
// front units of each side, without drawing.
func Preview(attackers, defenders formation.Lineup, sets core.SetCatalog) (ratio, winRate float64, err error) {
	atk := line(attackers, sets)
	def := line(defenders, sets)
	if len(atk) == 0 || len(def) == 0 {
		return 0, 0, ErrNoCombatants
	}
	ratio, winRate = combat.WinRate(atk[0].power, def[0].power)
	return ratio, winRate, nil
}
