// pkg/core/stats.go
package core

import "fmt"

// Stat identifies an attribute category.
type Stat uint8

const (
	StatAttack Stat = iota + 1
	StatDefense
	StatValor
	StatCommand
	StatDodge
	StatMobility
	// Equipment-only extras. They never contribute to Power.
	StatHP
	StatCritRate
)

// PowerStats are the six stats that make up a combatant's power, in canonical order.
var PowerStats = [6]Stat{StatAttack, StatDefense, StatValor, StatCommand, StatDodge, StatMobility}

var statNames = map[Stat]string{
	StatAttack:   "attack",
	StatDefense:  "defense",
	StatValor:    "valor",
	StatCommand:  "command",
	StatDodge:    "dodge",
	StatMobility: "mobility",
	StatHP:       "hp",
	StatCritRate: "critRate",
}

func (s Stat) String() string {
	if n, ok := statNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stat(%d)", uint8(s))
}

// Valid reports whether s is a known stat.
func (s Stat) Valid() bool {
	_, ok := statNames[s]
	return ok
}

// ParseStat resolves a stat by its name.
func ParseStat(name string) (Stat, error) {
	for s, n := range statNames {
		if n == name {
			return s, nil
		}
	}
	return 0, &ValidationError{Field: "stat", Reason: fmt.Sprintf("unknown stat %q", name)}
}

// MarshalText lets Stat be used as a JSON object key.
func (s Stat) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a stat name.
func (s *Stat) UnmarshalText(b []byte) error {
	v, err := ParseStat(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Attributes is a sparse stat bundle. A missing key reads as zero.
type Attributes map[Stat]int

// Get returns the value for s, zero when absent or when a is nil.
func (a Attributes) Get(s Stat) int {
	if a == nil {
		return 0
	}
	return a[s]
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Stats holds the six power stats.
type Stats struct {
	Attack   int `json:"attack"`
	Defense  int `json:"defense"`
	Valor    int `json:"valor"`
	Command  int `json:"command"`
	Dodge    int `json:"dodge"`
	Mobility int `json:"mobility"`
}

// Get returns the value of one of the six power stats.
func (s Stats) Get(stat Stat) int {
	switch stat {
	case StatAttack:
		return s.Attack
	case StatDefense:
		return s.Defense
	case StatValor:
		return s.Valor
	case StatCommand:
		return s.Command
	case StatDodge:
		return s.Dodge
	case StatMobility:
		return s.Mobility
	}
	return 0
}

// Add adds v to one of the six power stats. Other stats are ignored.
func (s *Stats) Add(stat Stat, v int) {
	switch stat {
	case StatAttack:
		s.Attack += v
	case StatDefense:
		s.Defense += v
	case StatValor:
		s.Valor += v
	case StatCommand:
		s.Command += v
	case StatDodge:
		s.Dodge += v
	case StatMobility:
		s.Mobility += v
	}
}

// EffectiveStats is the aggregated result for one combatant.
type EffectiveStats struct {
	Stats
	HP       int `json:"hp"`
	CritRate int `json:"critRate"`
	Power    int `json:"power"`
}
