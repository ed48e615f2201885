package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ironbanner/battlecore/pkg/core"
)

// SourceConfig overrides the quality table of one equipment source.
type SourceConfig struct {
	MinTier     int     `json:"minTier" mapstructure:"minTier"`
	MaxTier     int     `json:"maxTier" mapstructure:"maxTier"`
	Weights     []int   `json:"weights" mapstructure:"weights"`
	SetChance   float64 `json:"setChance" mapstructure:"setChance"`
	RequireSlot bool    `json:"requireSlot" mapstructure:"requireSlot"`
}

// SetConfig is a set definition keyed by stat name.
type SetConfig struct {
	ID     string         `json:"id" mapstructure:"id"`
	Name   string         `json:"name" mapstructure:"name"`
	Bonus3 map[string]int `json:"bonus3" mapstructure:"bonus3"`
	Bonus6 map[string]int `json:"bonus6" mapstructure:"bonus6"`
}

// EngineConfig holds the balance settings of the engine.
type EngineConfig struct {
	MaxLevel      int
	MaxEquipLevel int
	// Seed fixes every request's random source when non-zero.
	Seed    int64
	Sources map[core.Source]SourceConfig
	Sets    []core.SetInfo
	NPCs    []core.NPCTemplate
}

// GetEngineConfig decodes the engine section. Unknown sources or stat names
// are reported as errors.
func GetEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		MaxLevel:      viper.GetInt("engine.maxLevel"),
		MaxEquipLevel: viper.GetInt("engine.maxEquipLevel"),
		Seed:          viper.GetInt64("engine.seed"),
		Sources:       make(map[core.Source]SourceConfig),
	}

	var sources map[string]SourceConfig
	if err := viper.UnmarshalKey("engine.sources", &sources); err != nil {
		return cfg, fmt.Errorf("decode engine.sources: %w", err)
	}
	for name, sc := range sources {
		src, ok := matchSource(name)
		if !ok {
			return cfg, &core.ValidationError{Field: "engine.sources", Reason: fmt.Sprintf("unknown source %q", name)}
		}
		cfg.Sources[src] = sc
	}

	var sets []SetConfig
	if err := viper.UnmarshalKey("engine.sets", &sets); err != nil {
		return cfg, fmt.Errorf("decode engine.sets: %w", err)
	}
	for _, sc := range sets {
		set, err := sc.toCore()
		if err != nil {
			return cfg, err
		}
		cfg.Sets = append(cfg.Sets, set)
	}

	// NPC templates go through encoding/json so troop names decode with
	// UnmarshalText and field names match regardless of case.
	if raw := viper.Get("engine.npcs"); raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return cfg, fmt.Errorf("encode engine.npcs: %w", err)
		}
		if err := json.Unmarshal(b, &cfg.NPCs); err != nil {
			return cfg, fmt.Errorf("decode engine.npcs: %w", err)
		}
	}
	return cfg, nil
}

// matchSource resolves a source name; viper lower-cases map keys.
func matchSource(name string) (core.Source, bool) {
	for _, s := range core.Sources {
		if strings.EqualFold(string(s), name) {
			return s, true
		}
	}
	return "", false
}

func (sc SetConfig) toCore() (core.SetInfo, error) {
	b3, err := parseAttributes(sc.Bonus3)
	if err != nil {
		return core.SetInfo{}, fmt.Errorf("set %s bonus3: %w", sc.ID, err)
	}
	b6, err := parseAttributes(sc.Bonus6)
	if err != nil {
		return core.SetInfo{}, fmt.Errorf("set %s bonus6: %w", sc.ID, err)
	}
	return core.SetInfo{ID: sc.ID, Name: sc.Name, Bonus3: b3, Bonus6: b6}, nil
}

func parseAttributes(m map[string]int) (core.Attributes, error) {
	out := make(core.Attributes, len(m))
	for name, v := range m {
		s, err := parseStatFold(name)
		if err != nil {
			return nil, err
		}
		out[s] = v
	}
	return out, nil
}

// parseStatFold is ParseStat tolerant of viper's lower-cased keys.
func parseStatFold(name string) (core.Stat, error) {
	if s, err := core.ParseStat(name); err == nil {
		return s, nil
	}
	for _, s := range append(core.PowerStats[:], core.StatHP, core.StatCritRate) {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return core.ParseStat(name)
}
