package equipment

import (
	"fmt"

	"github.com/ironbanner/battlecore/internal/attribute"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Equip puts item into its slot on c and refreshes c's power. An item
// already in that slot is displaced back to the inventory and returned.
// The item must be unowned or already owned by c.
func Equip(c *core.Combatant, item *core.Equipment, sets core.SetCatalog) (*core.Equipment, error) {
	if c == nil {
		return nil, &core.NotFoundError{Kind: "combatant", ID: ""}
	}
	if item == nil {
		return nil, &core.NotFoundError{Kind: "equipment", ID: ""}
	}
	if !item.Slot.Valid() {
		return nil, &core.ValidationError{Field: "slot", Reason: fmt.Sprintf("item %s has no concrete slot", item.ID)}
	}
	if item.AccountID != "" && c.AccountID != "" && item.AccountID != c.AccountID {
		return nil, &core.ValidationError{Field: "equipment", Reason: fmt.Sprintf("item %s belongs to another account", item.ID)}
	}
	if item.Equipped && item.OwnerID != c.ID {
		return nil, &core.ValidationError{Field: "equipment", Reason: fmt.Sprintf("item %s is equipped by %s", item.ID, item.OwnerID)}
	}

	if c.Equipped == nil {
		c.Equipped = make(map[core.Slot]*core.Equipment)
	}

	var displaced *core.Equipment
	if prior := c.Equipped[item.Slot]; prior != nil && prior.ID != item.ID {
		release(prior)
		displaced = prior
	}

	item.Equipped = true
	item.OwnerID = c.ID
	c.Equipped[item.Slot] = item

	attribute.Refresh(c, sets)
	return displaced, nil
}

// Unequip clears slot on c and returns the released item.
func Unequip(c *core.Combatant, slot core.Slot, sets core.SetCatalog) (*core.Equipment, error) {
	if c == nil {
		return nil, &core.NotFoundError{Kind: "combatant", ID: ""}
	}
	if !slot.Valid() {
		return nil, &core.ValidationError{Field: "slot", Reason: fmt.Sprintf("unknown slot %d", slot)}
	}
	item := c.Equipped[slot]
	if item == nil {
		return nil, &core.NotFoundError{Kind: "equipment", ID: fmt.Sprintf("%s/%s", c.ID, slot)}
	}
	delete(c.Equipped, slot)
	release(item)

	attribute.Refresh(c, sets)
	return item, nil
}

// Enhance raises item's enhancement level by one. When owner is the
// combatant wearing it, owner's power is refreshed.
func Enhance(item *core.Equipment, owner *core.Combatant, sets core.SetCatalog) error {
	if item == nil {
		return &core.NotFoundError{Kind: "equipment", ID: ""}
	}
	if item.Enhancement >= core.MaxEnhancement {
		return &core.ValidationError{Field: "enhancement", Reason: fmt.Sprintf("item %s is already at +%d", item.ID, core.MaxEnhancement)}
	}
	item.Enhancement = max(item.Enhancement, 0) + 1

	if owner != nil && item.Equipped && item.OwnerID == owner.ID {
		attribute.Refresh(owner, sets)
	}
	return nil
}

func release(item *core.Equipment) {
	item.Equipped = false
	item.OwnerID = ""
}
