package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Combatant{},
	&Equipment{},
	&AccountProgress{},
	&BattleRecord{},
	&EnginePerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// EnginePerformance is a periodic snapshot of engine throughput.
type EnginePerformance struct {
	Time                time.Time `json:"time" gorm:"index:idx_performance_time"`
	Engagements         uint64    `json:"engagements"`
	PendingBattles      int       `json:"pendingBattles"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
	StreamDropped       int64     `json:"streamDropped"`
	CommandsOK          int64     `json:"commandsOk"`
	CommandsRejected    int64     `json:"commandsRejected"`
	CommandsFailed      int64     `json:"commandsFailed"`
}

func (*EnginePerformance) TableName() string {
	return "engine_performances"
}

////////////////////////
// ENGINE MODELS
////////////////////////

// Combatant is a stored hero. Equipped items live in the equipment table.
type Combatant struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	AccountID  string    `json:"accountId" gorm:"size:64;index:idx_combatant_account"`
	Name       string    `json:"name" gorm:"size:127"`
	Attack     int       `json:"attack"`
	Defense    int       `json:"defense"`
	Valor      int       `json:"valor"`
	Command    int       `json:"command"`
	Dodge      int       `json:"dodge"`
	Mobility   int       `json:"mobility"`
	Troop      uint8     `json:"troop"`
	Soldiers   int       `json:"soldiers"`
	SoldierCap int       `json:"soldierCap"`
	Quality    uint8     `json:"quality"`
	Level      int       `json:"level"`
	Exp        int       `json:"exp"`
	Threshold  int       `json:"threshold"`
	BonusPct   int       `json:"bonusPct"`
	Power      int       `json:"power"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (*Combatant) TableName() string {
	return "combatants"
}

// Equipment is a stored item. Attribute bundles are JSON objects keyed by stat name.
type Equipment struct {
	ID          string         `json:"id" gorm:"primaryKey;size:64"`
	AccountID   string         `json:"accountId" gorm:"size:64;index:idx_equipment_account"`
	Slot        uint8          `json:"slot"`
	Level       int            `json:"level"`
	Quality     uint8          `json:"quality"`
	SetID       string         `json:"setId" gorm:"size:64"`
	Name        string         `json:"name" gorm:"size:255"`
	Source      string         `json:"source" gorm:"size:32"`
	Base        datatypes.JSON `json:"base"`
	Bonus       datatypes.JSON `json:"bonus"`
	Enhancement int            `json:"enhancement"`
	Equipped    bool           `json:"equipped"`
	OwnerID     string         `json:"ownerId" gorm:"size:64;index:idx_equipment_owner"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (*Equipment) TableName() string {
	return "equipment"
}

// AccountProgress is the account-wide level and experience.
type AccountProgress struct {
	AccountID string `json:"accountId" gorm:"primaryKey;size:64"`
	Level     int    `json:"level"`
	Exp       int    `json:"exp"`
	Threshold int    `json:"threshold"`
	BonusPct  int    `json:"bonusPct"`
}

func (*AccountProgress) TableName() string {
	return "account_progress"
}

// BattleRecord is a stored engagement summary. Matchups, experience, loot
// and log lines are kept as JSON documents.
type BattleRecord struct {
	ID             string         `json:"id" gorm:"primaryKey;size:64"`
	AccountID      string         `json:"accountId" gorm:"size:64;index:idx_battle_account"`
	Kind           string         `json:"kind" gorm:"size:8"`
	Opponent       string         `json:"opponent" gorm:"size:127"`
	Victory        bool           `json:"victory"`
	AttackerLosses int            `json:"attackerLosses"`
	DefenderLosses int            `json:"defenderLosses"`
	ExpGranted     int            `json:"expGranted"`
	Matchups       datatypes.JSON `json:"matchups"`
	Experience     datatypes.JSON `json:"experience"`
	LootIDs        datatypes.JSON `json:"lootIds"`
	Log            datatypes.JSON `json:"log"`
	FoughtAt       time.Time      `json:"foughtAt" gorm:"index:idx_battle_time"`
}

func (*BattleRecord) TableName() string {
	return "battle_records"
}
