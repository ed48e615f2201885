// pkg/core/progression.go
package core

// ProgressionState tracks level and experience for a combatant or an account.
// NextThreshold is zero once the level cap is reached.
type ProgressionState struct {
	Level         int `json:"level"`
	Exp           int `json:"exp"`
	NextThreshold int `json:"nextThreshold"`
	BonusPercent  int `json:"bonusPercent"`
}

// AccountProgress is the account-wide progression record.
type AccountProgress struct {
	AccountID string           `json:"accountId"`
	State     ProgressionState `json:"state"`
}
