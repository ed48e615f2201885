// pkg/core/battle.go
package core

import "time"

// BattleOutcome is the result of one matchup or a whole engagement.
// For an engagement Ratio, WinRate and Roll describe the deciding matchup.
type BattleOutcome struct {
	Victory        bool              `json:"victory"`
	Ratio          float64           `json:"ratio"`
	WinRate        float64           `json:"winRate"`
	Roll           float64           `json:"roll"`
	AttackerLosses int               `json:"attackerLosses"`
	DefenderLosses int               `json:"defenderLosses"`
	Log            []string          `json:"log"`
	Matchups       []Matchup         `json:"matchups,omitempty"`
	Loot           []*Equipment      `json:"loot,omitempty"`
	Experience     []ExperienceDelta `json:"experience,omitempty"`
}

// Matchup is one attacker unit fighting one defender unit.
type Matchup struct {
	Wave           int     `json:"wave"`
	AttackerID     string  `json:"attackerId"`
	DefenderID     string  `json:"defenderId"`
	AttackerPower  int     `json:"attackerPower"`
	DefenderPower  int     `json:"defenderPower"`
	AttackerTroops int     `json:"attackerTroops"`
	DefenderTroops int     `json:"defenderTroops"`
	WinRate        float64 `json:"winRate"`
	Roll           float64 `json:"roll"`
	Victory        bool    `json:"victory"`
	AttackerLosses int     `json:"attackerLosses"`
	DefenderLosses int     `json:"defenderLosses"`
}

// ExperienceDelta reports experience applied to a combatant, or to the
// account when CombatantID is empty.
type ExperienceDelta struct {
	CombatantID  string `json:"combatantId,omitempty"`
	Granted      int    `json:"granted"`
	LevelsGained int    `json:"levelsGained"`
	Level        int    `json:"level"`
}

// BattleKind distinguishes NPC encounters from player duels.
type BattleKind string

const (
	BattlePvE BattleKind = "pve"
	BattlePvP BattleKind = "pvp"
)

// BattleRecord is the persisted summary of an engagement.
type BattleRecord struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"accountId"`
	Kind           BattleKind        `json:"kind"`
	Opponent       string            `json:"opponent"`
	Victory        bool              `json:"victory"`
	Matchups       []Matchup         `json:"matchups"`
	AttackerLosses int               `json:"attackerLosses"`
	DefenderLosses int               `json:"defenderLosses"`
	ExpGranted     int               `json:"expGranted"`
	Experience     []ExperienceDelta `json:"experience,omitempty"`
	LootIDs        []string          `json:"lootIds,omitempty"`
	Log            []string          `json:"log"`
	FoughtAt       time.Time         `json:"foughtAt"`
}

// Clone returns a copy that shares no slices with r.
func (r *BattleRecord) Clone() *BattleRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Matchups = append([]Matchup(nil), r.Matchups...)
	out.LootIDs = append([]string(nil), r.LootIDs...)
	out.Log = append([]string(nil), r.Log...)
	out.Experience = append([]ExperienceDelta(nil), r.Experience...)
	return &out
}
