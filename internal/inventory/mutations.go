package inventory

import (
	"slices"
)

// AddItem adds a new item. The given UID is ignored; the item receives
// NextUID.
func (inv *Inventory) AddItem(it Item) (*Inventory, error) {
	const rule = "add_item"
	if inv.Len() >= inv.rules.MaxItems {
		return nil, capacity(rule, "inventory is full (%d items)", inv.rules.MaxItems)
	}
	it = it.Clone()
	it.UID = inv.nextUID
	if len(it.Storage) > 0 {
		return nil, precondition(rule, "new items cannot carry stored contents")
	}
	if err := inv.checkItem(it, false); err != nil {
		return nil, &RuleError{Rule: rule, Message: err.Error(), Err: ErrPrecondition}
	}
	next := inv.with()
	next.create(it)
	return next, nil
}

// RemoveItem deletes a top-level item. Storage units must be empty.
func (inv *Inventory) RemoveItem(uid int64) (*Inventory, error) {
	const rule = "remove_item"
	it, err := inv.lookup(rule, uid)
	if err != nil {
		return nil, err
	}
	if len(it.Storage) > 0 {
		return nil, precondition(rule, "storage unit %d is not empty", uid)
	}
	next := inv.with()
	delete(next.items, uid)
	return next, nil
}

// ApplyItemPatch consumes a patch and applies it to an empty slot of an
// agent.
func (inv *Inventory) ApplyItemPatch(targetUID, patchUID int64, slot int) (*Inventory, error) {
	const rule = "apply_item_patch"
	target, err := inv.lookup(rule, targetUID, KindAgent)
	if err != nil {
		return nil, err
	}
	patch, err := inv.lookup(rule, patchUID, KindPatch)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= inv.rules.PatchSlots {
		return nil, precondition(rule, "patch slot %d out of range", slot)
	}
	if _, taken := target.Patches[slot]; taken {
		return nil, precondition(rule, "patch slot %d is occupied", slot)
	}
	if target.Patches == nil {
		target.Patches = map[int]int64{}
	}
	target.Patches[slot] = patch.DefID

	next := inv.with()
	next.items[targetUID] = target
	delete(next.items, patchUID)
	return next, nil
}

// ApplyItemSticker consumes a sticker and applies it, unworn, to an empty
// slot of a weapon.
func (inv *Inventory) ApplyItemSticker(targetUID, stickerUID int64, slot int) (*Inventory, error) {
	const rule = "apply_item_sticker"
	target, err := inv.lookup(rule, targetUID, KindWeapon)
	if err != nil {
		return nil, err
	}
	sticker, err := inv.lookup(rule, stickerUID, KindSticker)
	if err != nil {
		return nil, err
	}
	if err := inv.checkStickerSlot(rule, target, slot); err != nil {
		return nil, err
	}
	if target.Stickers == nil {
		target.Stickers = map[int]Sticker{}
	}
	target.Stickers[slot] = Sticker{DefID: sticker.DefID}

	next := inv.with()
	next.items[targetUID] = target
	delete(next.items, stickerUID)
	return next, nil
}

func (inv *Inventory) checkStickerSlot(rule string, target Item, slot int) error {
	if slot < 0 || slot >= inv.rules.StickerSlots {
		return precondition(rule, "sticker slot %d out of range", slot)
	}
	if _, taken := target.Stickers[slot]; taken {
		return precondition(rule, "sticker slot %d is occupied", slot)
	}
	return nil
}

// AddWithSticker consumes a sticker and creates a new weapon of itemDef with
// the sticker in slot.
func (inv *Inventory) AddWithSticker(stickerUID, itemDef int64, slot int) (*Inventory, error) {
	const rule = "add_with_sticker"
	sticker, err := inv.lookup(rule, stickerUID, KindSticker)
	if err != nil {
		return nil, err
	}
	if itemDef <= 0 {
		return nil, precondition(rule, "item def %d is invalid", itemDef)
	}
	weapon := Item{DefID: itemDef, Kind: KindWeapon}
	if err := inv.checkStickerSlot(rule, weapon, slot); err != nil {
		return nil, err
	}
	weapon.Stickers = map[int]Sticker{slot: {DefID: sticker.DefID}}

	next := inv.with()
	delete(next.items, stickerUID)
	next.create(weapon)
	return next, nil
}

// AddWithNametag consumes a name tag tool and creates a new weapon of
// itemDef carrying nameTag.
func (inv *Inventory) AddWithNametag(toolUID, itemDef int64, nameTag string) (*Inventory, error) {
	const rule = "add_with_nametag"
	if _, err := inv.lookup(rule, toolUID, KindNametag); err != nil {
		return nil, err
	}
	if itemDef <= 0 {
		return nil, precondition(rule, "item def %d is invalid", itemDef)
	}
	name, err := normalizeName(inv.rules, rule, nameTag)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, precondition(rule, "name tag is empty")
	}

	next := inv.with()
	delete(next.items, toolUID)
	next.create(Item{DefID: itemDef, Kind: KindWeapon, NameTag: name})
	return next, nil
}

// RemoveItemPatch removes the patch in slot of an agent. The patch is
// destroyed.
func (inv *Inventory) RemoveItemPatch(targetUID int64, slot int) (*Inventory, error) {
	const rule = "remove_item_patch"
	target, err := inv.lookup(rule, targetUID, KindAgent)
	if err != nil {
		return nil, err
	}
	if _, ok := target.Patches[slot]; !ok {
		return nil, precondition(rule, "patch slot %d is empty", slot)
	}
	delete(target.Patches, slot)
	if len(target.Patches) == 0 {
		target.Patches = nil
	}

	next := inv.with()
	next.items[targetUID] = target
	return next, nil
}

// RenameItem consumes a name tag tool and sets the name of a weapon.
// An empty name removes the existing name tag.
func (inv *Inventory) RenameItem(toolUID, targetUID int64, nameTag string) (*Inventory, error) {
	const rule = "rename_item"
	if toolUID == targetUID {
		return nil, precondition(rule, "tool and target are the same item")
	}
	if _, err := inv.lookup(rule, toolUID, KindNametag); err != nil {
		return nil, err
	}
	target, err := inv.lookup(rule, targetUID, KindWeapon)
	if err != nil {
		return nil, err
	}
	name, err := normalizeName(inv.rules, rule, nameTag)
	if err != nil {
		return nil, err
	}
	target.NameTag = name

	next := inv.with()
	next.items[targetUID] = target
	delete(next.items, toolUID)
	return next, nil
}

// RenameStorageUnit names a storage unit. No tool is consumed.
func (inv *Inventory) RenameStorageUnit(uid int64, nameTag string) (*Inventory, error) {
	const rule = "rename_storage_unit"
	unit, err := inv.lookup(rule, uid, KindStorageUnit)
	if err != nil {
		return nil, err
	}
	name, err := normalizeName(inv.rules, rule, nameTag)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, precondition(rule, "storage unit name is empty")
	}
	unit.NameTag = name

	next := inv.with()
	next.items[uid] = unit
	return next, nil
}

// ScrapeItemSticker wears the sticker in slot by StickerWearStep. A sticker
// scraped past MaxStickerWear is removed.
func (inv *Inventory) ScrapeItemSticker(targetUID int64, slot int) (*Inventory, error) {
	const rule = "scrape_item_sticker"
	target, err := inv.lookup(rule, targetUID, KindWeapon)
	if err != nil {
		return nil, err
	}
	st, ok := target.Stickers[slot]
	if !ok {
		return nil, precondition(rule, "sticker slot %d is empty", slot)
	}
	st.Wear += inv.rules.StickerWearStep
	if st.Wear > inv.rules.MaxStickerWear {
		delete(target.Stickers, slot)
		if len(target.Stickers) == 0 {
			target.Stickers = nil
		}
	} else {
		target.Stickers[slot] = st
	}

	next := inv.with()
	next.items[targetUID] = target
	return next, nil
}

// SwapItemsStatTrak consumes a swap tool and exchanges the StatTrak counters
// of two distinct items.
func (inv *Inventory) SwapItemsStatTrak(toolUID, fromUID, toUID int64) (*Inventory, error) {
	const rule = "swap_items_stattrak"
	if fromUID == toUID {
		return nil, precondition(rule, "cannot swap an item with itself")
	}
	if _, err := inv.lookup(rule, toolUID, KindStatTrakSwap); err != nil {
		return nil, err
	}
	from, err := inv.lookup(rule, fromUID)
	if err != nil {
		return nil, err
	}
	to, err := inv.lookup(rule, toUID)
	if err != nil {
		return nil, err
	}
	if !from.HasStatTrak() || !to.HasStatTrak() {
		return nil, precondition(rule, "both items need a stattrak counter")
	}
	from.StatTrak, to.StatTrak = to.StatTrak, from.StatTrak

	next := inv.with()
	next.items[fromUID] = from
	next.items[toUID] = to
	delete(next.items, toolUID)
	return next, nil
}

// DepositToStorageUnit moves top-level items into a named storage unit, in
// the given order.
func (inv *Inventory) DepositToStorageUnit(storageUID int64, uids []int64) (*Inventory, error) {
	const rule = "deposit_to_storage_unit"
	unit, err := inv.lookup(rule, storageUID, KindStorageUnit)
	if err != nil {
		return nil, err
	}
	if unit.NameTag == "" {
		return nil, precondition(rule, "storage unit %d must be named first", storageUID)
	}
	if len(uids) == 0 {
		return nil, precondition(rule, "nothing to deposit")
	}
	if len(unit.Storage)+len(uids) > inv.rules.StorageUnitMaxItems {
		return nil, capacity(rule, "storage unit %d holds at most %d items", storageUID, inv.rules.StorageUnitMaxItems)
	}

	next := inv.with()
	for i, uid := range uids {
		if slices.Contains(uids[:i], uid) {
			return nil, precondition(rule, "item %d listed twice", uid)
		}
		it, err := inv.lookup(rule, uid)
		if err != nil {
			return nil, err
		}
		if it.Kind == KindStorageUnit {
			return nil, precondition(rule, "storage units cannot be deposited")
		}
		unit.Storage = append(unit.Storage, it)
		delete(next.items, uid)
	}
	next.items[storageUID] = unit
	return next, nil
}

// RetrieveFromStorageUnit moves stored items back to the top level.
func (inv *Inventory) RetrieveFromStorageUnit(storageUID int64, uids []int64) (*Inventory, error) {
	const rule = "retrieve_from_storage_unit"
	unit, err := inv.lookup(rule, storageUID, KindStorageUnit)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, precondition(rule, "nothing to retrieve")
	}
	if inv.Len()+len(uids) > inv.rules.MaxItems {
		return nil, capacity(rule, "inventory holds at most %d items", inv.rules.MaxItems)
	}

	next := inv.with()
	for i, uid := range uids {
		if slices.Contains(uids[:i], uid) {
			return nil, precondition(rule, "item %d listed twice", uid)
		}
		idx := slices.IndexFunc(unit.Storage, func(it Item) bool { return it.UID == uid })
		if idx < 0 {
			return nil, notFound(rule, uid)
		}
		next.items[uid] = unit.Storage[idx]
		unit.Storage = slices.Delete(unit.Storage, idx, idx+1)
	}
	if len(unit.Storage) == 0 {
		unit.Storage = nil
	}
	next.items[storageUID] = unit
	return next, nil
}

// Unlocked describes the item drawn from a case. The draw itself is made by
// the caller so that the mutation stays deterministic.
type Unlocked struct {
	DefID    int64  `json:"def_id"`
	Kind     Kind   `json:"kind"`
	StatTrak *int64 `json:"stattrak,omitempty"`
}

// UnlockCase consumes a case and, when keyUID is non-zero, a key, and adds
// the unlocked item.
func (inv *Inventory) UnlockCase(caseUID, keyUID int64, unlocked Unlocked) (*Inventory, error) {
	const rule = "unlock_case"
	if _, err := inv.lookup(rule, caseUID, KindCase); err != nil {
		return nil, err
	}
	if keyUID != 0 {
		if _, err := inv.lookup(rule, keyUID, KindKey); err != nil {
			return nil, err
		}
	}
	it := Item{DefID: unlocked.DefID, Kind: unlocked.Kind}
	if unlocked.StatTrak != nil {
		it.StatTrak = StatTrak(*unlocked.StatTrak)
	}
	switch it.Kind {
	case KindStorageUnit, "":
		return nil, precondition(rule, "cases cannot contain %q", it.Kind)
	}
	if err := inv.checkItem(it, false); err != nil {
		return nil, &RuleError{Rule: rule, Message: err.Error(), Err: ErrPrecondition}
	}

	next := inv.with()
	delete(next.items, caseUID)
	if keyUID != 0 {
		delete(next.items, keyUID)
	}
	next.create(it)
	return next, nil
}
