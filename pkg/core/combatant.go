// pkg/core/combatant.go
package core

// Combatant is a hero or NPC unit that leads soldiers into an engagement.
type Combatant struct {
	ID         string              `json:"id"`
	AccountID  string              `json:"accountId,omitempty"`
	Name       string              `json:"name"`
	Base       Stats               `json:"base"`
	Troop      TroopCategory       `json:"troop"`
	Soldiers   int                 `json:"soldiers"`
	SoldierCap int                 `json:"soldierCap"`
	Quality    Quality             `json:"quality"`
	Progress   ProgressionState    `json:"progress"`
	Equipped   map[Slot]*Equipment `json:"equipped,omitempty"`
	Power      int                 `json:"power"`
}

// Level is the combatant's current level.
func (c *Combatant) Level() int {
	return c.Progress.Level
}

// Items returns the equipped items in slot order.
func (c *Combatant) Items() []*Equipment {
	if c == nil || len(c.Equipped) == 0 {
		return nil
	}
	items := make([]*Equipment, 0, len(c.Equipped))
	for _, s := range Slots {
		if it := c.Equipped[s]; it != nil {
			items = append(items, it)
		}
	}
	return items
}

// AddSoldiers changes the soldier count by delta, clamped to [0, SoldierCap].
// A zero cap means uncapped.
func (c *Combatant) AddSoldiers(delta int) {
	n := c.Soldiers + delta
	if n < 0 {
		n = 0
	}
	if c.SoldierCap > 0 && n > c.SoldierCap {
		n = c.SoldierCap
	}
	c.Soldiers = n
}

// Clone returns a deep copy including equipped items.
func (c *Combatant) Clone() *Combatant {
	if c == nil {
		return nil
	}
	out := *c
	if c.Equipped != nil {
		out.Equipped = make(map[Slot]*Equipment, len(c.Equipped))
		for s, it := range c.Equipped {
			out.Equipped[s] = it.Clone()
		}
	}
	return &out
}
