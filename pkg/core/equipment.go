// pkg/core/equipment.go
package core

import (
	"sort"
	"time"
)

// MaxEnhancement is the highest enhancement level an item can reach.
const MaxEnhancement = 10

// Equipment is a single generated item.
// OwnerID is set only while the item is equipped.
type Equipment struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	Slot        Slot       `json:"slot"`
	Level       int        `json:"level"`
	Quality     Quality    `json:"quality"`
	SetID       string     `json:"setId,omitempty"`
	Name        string     `json:"name"`
	Source      Source     `json:"source"`
	Base        Attributes `json:"base"`
	Bonus       Attributes `json:"bonus"`
	Enhancement int        `json:"enhancement"`
	Equipped    bool       `json:"equipped"`
	OwnerID     string     `json:"ownerId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// SetInfo is a named group of equipment granting Bonus3 at three equipped
// members and Bonus6 at six.
type SetInfo struct {
	ID     string     `json:"id" mapstructure:"id"`
	Name   string     `json:"name" mapstructure:"name"`
	Bonus3 Attributes `json:"bonus3" mapstructure:"bonus3"`
	Bonus6 Attributes `json:"bonus6" mapstructure:"bonus6"`
}

// SetCatalog indexes sets by ID.
type SetCatalog map[string]SetInfo

// NewSetCatalog builds a catalog from a list of sets. Later duplicates win.
func NewSetCatalog(sets ...SetInfo) SetCatalog {
	c := make(SetCatalog, len(sets))
	for _, s := range sets {
		c[s.ID] = s
	}
	return c
}

// Lookup returns the set with the given ID.
func (c SetCatalog) Lookup(id string) (SetInfo, bool) {
	if c == nil || id == "" {
		return SetInfo{}, false
	}
	s, ok := c[id]
	return s, ok
}

// Sorted returns the sets ordered by ID.
func (c SetCatalog) Sorted() []SetInfo {
	out := make([]SetInfo, 0, len(c))
	for _, s := range c {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clone returns a deep copy of the item.
func (e *Equipment) Clone() *Equipment {
	if e == nil {
		return nil
	}
	out := *e
	out.Base = e.Base.Clone()
	out.Bonus = e.Bonus.Clone()
	return &out
}
