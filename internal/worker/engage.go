package worker

import (
	"errors"
	"fmt"

	"github.com/ironbanner/battlecore/internal/battle"
	"github.com/ironbanner/battlecore/internal/dispatcher"
	"github.com/ironbanner/battlecore/internal/formation"
	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// EngageRequest starts an engagement. A repeated BattleID is rejected.
type EngageRequest struct {
	BattleID  string         `json:"battleId,omitempty"`
	AccountID string         `json:"accountId"`
	Formation map[int]string `json:"formation"`

	// Exactly one of NPCID or OpponentID selects the defenders.
	NPCID             string         `json:"npcId,omitempty"`
	OpponentID        string         `json:"opponentId,omitempty"`
	OpponentFormation map[int]string `json:"opponentFormation,omitempty"`
}

// EngageResult is the applied outcome of an engagement.
type EngageResult struct {
	BattleID string `json:"battleId"`
	core.BattleOutcome
}

func (m *Manager) handleEngage(e dispatcher.Event) (any, error) {
	p, err := decode[EngageRequest](e)
	if err != nil {
		return nil, err
	}
	return m.Engage(p)
}

// Engage resolves an engagement and applies its losses and rewards. The
// battle ID is claimed and the accounts involved stay locked from the replay
// check until the battle is recorded. Changes and record are written as one
// unit, so a failed or conflicting engagement leaves no state behind.
func (m *Manager) Engage(p EngageRequest) (*EngageResult, error) {
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	if (p.NPCID == "") == (p.OpponentID == "") {
		return nil, &core.ValidationError{Field: "defender", Reason: "exactly one of npcId or opponentId is required"}
	}
	if p.OpponentID == p.AccountID {
		return nil, &core.ValidationError{Field: "opponentId", Reason: "an account cannot engage itself"}
	}
	if p.BattleID == "" {
		p.BattleID = m.deps.NewID()
	}

	// the claim spans accounts; the locks below only cover this pair
	if !m.battles.Claim(p.BattleID) {
		return nil, fmt.Errorf("battle %s in progress: %w", p.BattleID, core.ErrConflict)
	}
	defer m.battles.Release(p.BattleID)

	unlock := m.deps.Locks.Lock(p.AccountID, p.OpponentID)
	defer unlock()

	seen, err := m.backend.HasBattle(p.BattleID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, fmt.Errorf("battle %s: %w", p.BattleID, core.ErrConflict)
	}

	attackers, err := m.loadLineup(p.AccountID, p.Formation)
	if err != nil {
		return nil, fmt.Errorf("attackers: %w", err)
	}

	var (
		npc       core.NPCTemplate
		defenders formation.Lineup
		kind      = core.BattlePvE
		opponent  = p.NPCID
	)
	if p.NPCID != "" {
		var ok bool
		if npc, ok = m.npcs[p.NPCID]; !ok {
			return nil, &core.NotFoundError{Kind: "npc", ID: p.NPCID}
		}
		if defenders, err = npc.Lineup(); err != nil {
			return nil, err
		}
	} else {
		kind, opponent = core.BattlePvP, p.OpponentID
		if defenders, err = m.loadLineup(p.OpponentID, p.OpponentFormation); err != nil {
			return nil, fmt.Errorf("defenders: %w", err)
		}
	}

	var (
		res  *battle.Result
		loot *core.Equipment
	)
	err = m.draw(func(rng random.Source) error {
		var err error
		if res, err = battle.Engage(attackers, defenders, m.deps.Sets, rng); err != nil {
			return err
		}
		if kind == core.BattlePvE && res.Outcome.Victory {
			loot, err = m.rollLoot(npc, rng)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, battle.ErrNoCombatants) {
			return nil, &core.ValidationError{Field: "formation", Reason: err.Error()}
		}
		return nil, err
	}

	out := res.Outcome
	applyLosses(attackers, res.Losses)
	if kind == core.BattlePvP {
		applyLosses(defenders, res.Losses)
	}

	exp := 0
	if out.Victory {
		if kind == core.BattlePvE {
			exp = npc.Experience
		} else {
			exp = out.DefenderLosses / PvPExpDivisor
		}
	}

	acct, err := m.accountProgress(p.AccountID)
	if err != nil {
		return nil, err
	}
	fought := make(map[string]bool, len(res.Fought))
	for _, id := range res.Fought {
		fought[id] = true
	}
	for _, c := range attackers {
		if c == nil || !fought[c.ID] || exp == 0 {
			continue
		}
		delta, err := m.grantCombatant(c, acct.State.BonusPercent, exp)
		if err != nil {
			return nil, err
		}
		out.Experience = append(out.Experience, delta)
	}
	if exp > 0 {
		delta, err := m.grantAccount(&acct, exp)
		if err != nil {
			return nil, err
		}
		out.Experience = append(out.Experience, delta)
	}

	changed := lineupMembers(attackers)
	if kind == core.BattlePvP {
		changed = append(changed, lineupMembers(defenders)...)
	}
	record := &core.BattleRecord{
		ID:             p.BattleID,
		AccountID:      p.AccountID,
		Kind:           kind,
		Opponent:       opponent,
		Victory:        out.Victory,
		Matchups:       out.Matchups,
		AttackerLosses: out.AttackerLosses,
		DefenderLosses: out.DefenderLosses,
		ExpGranted:     exp,
		Experience:     out.Experience,
		Log:            out.Log,
		FoughtAt:       m.deps.Now().UTC(),
	}
	apply := &storage.Engagement{Combatants: changed, Progress: acct, Record: record}
	if loot != nil {
		loot.AccountID = p.AccountID
		apply.Loot = []*core.Equipment{loot}
		out.Loot = apply.Loot
		record.LootIDs = []string{loot.ID}
	}

	if err := m.backend.ApplyEngagement(apply); err != nil {
		return nil, fmt.Errorf("apply battle %s: %w", p.BattleID, err)
	}
	for _, r := range m.deps.Recorders {
		if err := r.RecordBattle(record); err != nil {
			m.deps.Logger.Error("Failed to publish battle", "battleId", record.ID, "error", err)
		}
	}
	m.engagements.Inc()

	m.deps.Logger.Info("Engagement applied",
		"battleId", record.ID,
		"account", p.AccountID,
		"kind", string(kind),
		"opponent", opponent,
		"victory", out.Victory,
		"waves", len(out.Matchups),
	)
	return &EngageResult{BattleID: p.BattleID, BattleOutcome: out}, nil
}

// rollLoot draws against the template's drop chance and generates the drop
// at the template's level.
func (m *Manager) rollLoot(npc core.NPCTemplate, rng random.Source) (*core.Equipment, error) {
	if npc.DropSource == "" || npc.DropChance <= 0 {
		return nil, nil
	}
	if rng.Float64() >= npc.DropChance {
		return nil, nil
	}
	level := min(max(npc.Level, 1), m.deps.Generator.MaxLevel())
	return m.deps.Generator.Generate(core.SlotAny, level, npc.DropSource, rng)
}

func applyLosses(l formation.Lineup, losses map[string]int) {
	for _, c := range l {
		if c != nil && losses[c.ID] > 0 {
			c.AddSoldiers(-losses[c.ID])
		}
	}
}

func lineupMembers(l formation.Lineup) []*core.Combatant {
	out := make([]*core.Combatant, 0, len(l))
	for _, c := range l {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
