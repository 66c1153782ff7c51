package command

import (
	"slices"

	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

// AddItem grants a new item.
type AddItem struct {
	DefID    int64
	Kind     inventory.Kind
	StatTrak *int64
}

func (c AddItem) Action() Action { return ActionAddItem }

func (c AddItem) Args() ir.IRObject {
	args := ir.IRObject{"def_id": ir.IRInt(c.DefID), "kind": ir.IRString(c.Kind)}
	if c.StatTrak != nil {
		args["stattrak"] = ir.IRInt(*c.StatTrak)
	}
	return args
}

func (c AddItem) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	it := inventory.Item{DefID: c.DefID, Kind: c.Kind}
	if c.StatTrak != nil {
		it.StatTrak = inventory.StatTrak(*c.StatTrak)
	}
	return inv.AddItem(it)
}

// RemoveItem deletes an item.
type RemoveItem struct {
	UID int64
}

func (c RemoveItem) Action() Action { return ActionRemoveItem }

func (c RemoveItem) Args() ir.IRObject {
	return ir.IRObject{"uid": ir.IRInt(c.UID)}
}

func (c RemoveItem) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.RemoveItem(c.UID)
}

// ApplyItemPatch applies a patch to an agent.
type ApplyItemPatch struct {
	TargetUID int64
	PatchUID  int64
	Slot      int
}

func (c ApplyItemPatch) Action() Action { return ActionApplyItemPatch }

func (c ApplyItemPatch) Args() ir.IRObject {
	return ir.IRObject{
		"target_uid": ir.IRInt(c.TargetUID),
		"patch_uid":  ir.IRInt(c.PatchUID),
		"slot":       ir.IRInt(c.Slot),
	}
}

func (c ApplyItemPatch) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.ApplyItemPatch(c.TargetUID, c.PatchUID, c.Slot)
}

// ApplyItemSticker applies a sticker to a weapon.
type ApplyItemSticker struct {
	TargetUID  int64
	StickerUID int64
	Slot       int
}

func (c ApplyItemSticker) Action() Action { return ActionApplyItemSticker }

func (c ApplyItemSticker) Args() ir.IRObject {
	return ir.IRObject{
		"target_uid":  ir.IRInt(c.TargetUID),
		"sticker_uid": ir.IRInt(c.StickerUID),
		"slot":        ir.IRInt(c.Slot),
	}
}

func (c ApplyItemSticker) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.ApplyItemSticker(c.TargetUID, c.StickerUID, c.Slot)
}

// AddWithSticker creates a weapon of ItemID with a sticker already applied.
type AddWithSticker struct {
	StickerUID int64
	ItemID     int64
	Slot       int
}

func (c AddWithSticker) Action() Action { return ActionAddWithSticker }

func (c AddWithSticker) Args() ir.IRObject {
	return ir.IRObject{
		"sticker_uid": ir.IRInt(c.StickerUID),
		"item_id":     ir.IRInt(c.ItemID),
		"slot":        ir.IRInt(c.Slot),
	}
}

func (c AddWithSticker) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.AddWithSticker(c.StickerUID, c.ItemID, c.Slot)
}

// AddWithNametag creates a named weapon of ItemID.
type AddWithNametag struct {
	ToolUID int64
	ItemID  int64
	NameTag string
}

func (c AddWithNametag) Action() Action { return ActionAddWithNametag }

func (c AddWithNametag) Args() ir.IRObject {
	return ir.IRObject{
		"tool_uid": ir.IRInt(c.ToolUID),
		"item_id":  ir.IRInt(c.ItemID),
		"name_tag": ir.IRString(c.NameTag),
	}
}

func (c AddWithNametag) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.AddWithNametag(c.ToolUID, c.ItemID, c.NameTag)
}

// RemoveItemPatch removes a patch from an agent.
type RemoveItemPatch struct {
	TargetUID int64
	Slot      int
}

func (c RemoveItemPatch) Action() Action { return ActionRemoveItemPatch }

func (c RemoveItemPatch) Args() ir.IRObject {
	return ir.IRObject{"target_uid": ir.IRInt(c.TargetUID), "slot": ir.IRInt(c.Slot)}
}

func (c RemoveItemPatch) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.RemoveItemPatch(c.TargetUID, c.Slot)
}

// RenameItem names a weapon with a name tag tool.
type RenameItem struct {
	ToolUID   int64
	TargetUID int64
	NameTag   string
}

func (c RenameItem) Action() Action { return ActionRenameItem }

func (c RenameItem) Args() ir.IRObject {
	return ir.IRObject{
		"tool_uid":   ir.IRInt(c.ToolUID),
		"target_uid": ir.IRInt(c.TargetUID),
		"name_tag":   ir.IRString(c.NameTag),
	}
}

func (c RenameItem) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.RenameItem(c.ToolUID, c.TargetUID, c.NameTag)
}

// RenameStorageUnit names a storage unit.
type RenameStorageUnit struct {
	UID     int64
	NameTag string
}

func (c RenameStorageUnit) Action() Action { return ActionRenameStorageUnit }

func (c RenameStorageUnit) Args() ir.IRObject {
	return ir.IRObject{"uid": ir.IRInt(c.UID), "name_tag": ir.IRString(c.NameTag)}
}

func (c RenameStorageUnit) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.RenameStorageUnit(c.UID, c.NameTag)
}

// ScrapeItemSticker wears a sticker by one step.
type ScrapeItemSticker struct {
	TargetUID int64
	Slot      int
}

func (c ScrapeItemSticker) Action() Action { return ActionScrapeItemSticker }

func (c ScrapeItemSticker) Args() ir.IRObject {
	return ir.IRObject{"target_uid": ir.IRInt(c.TargetUID), "slot": ir.IRInt(c.Slot)}
}

func (c ScrapeItemSticker) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.ScrapeItemSticker(c.TargetUID, c.Slot)
}

// SwapItemsStatTrak exchanges two StatTrak counters.
type SwapItemsStatTrak struct {
	ToolUID int64
	FromUID int64
	ToUID   int64
}

func (c SwapItemsStatTrak) Action() Action { return ActionSwapItemsStatTrak }

func (c SwapItemsStatTrak) Args() ir.IRObject {
	return ir.IRObject{
		"tool_uid": ir.IRInt(c.ToolUID),
		"from_uid": ir.IRInt(c.FromUID),
		"to_uid":   ir.IRInt(c.ToUID),
	}
}

func (c SwapItemsStatTrak) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.SwapItemsStatTrak(c.ToolUID, c.FromUID, c.ToUID)
}

// DepositToStorageUnit moves items into a storage unit.
type DepositToStorageUnit struct {
	StorageUID int64
	UIDs       []int64
}

func (c DepositToStorageUnit) Action() Action { return ActionDepositToStorageUnit }

func (c DepositToStorageUnit) Args() ir.IRObject {
	return ir.IRObject{"storage_uid": ir.IRInt(c.StorageUID), "uids": ir.Ints(c.UIDs...)}
}

func (c DepositToStorageUnit) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.DepositToStorageUnit(c.StorageUID, slices.Clone(c.UIDs))
}

// RetrieveFromStorageUnit moves items out of a storage unit.
type RetrieveFromStorageUnit struct {
	StorageUID int64
	UIDs       []int64
}

func (c RetrieveFromStorageUnit) Action() Action { return ActionRetrieveFromStorageUnit }

func (c RetrieveFromStorageUnit) Args() ir.IRObject {
	return ir.IRObject{"storage_uid": ir.IRInt(c.StorageUID), "uids": ir.Ints(c.UIDs...)}
}

func (c RetrieveFromStorageUnit) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.RetrieveFromStorageUnit(c.StorageUID, slices.Clone(c.UIDs))
}

// UnlockCase opens a case. KeyUID 0 means the case needs no key. The drawn
// item is part of the command so that replica and authority agree on it.
type UnlockCase struct {
	CaseUID  int64
	KeyUID   int64
	ItemID   int64
	Kind     inventory.Kind
	StatTrak *int64
}

func (c UnlockCase) Action() Action { return ActionUnlockCase }

func (c UnlockCase) Args() ir.IRObject {
	args := ir.IRObject{
		"case_uid": ir.IRInt(c.CaseUID),
		"item_id":  ir.IRInt(c.ItemID),
		"kind":     ir.IRString(c.Kind),
	}
	if c.KeyUID != 0 {
		args["key_uid"] = ir.IRInt(c.KeyUID)
	}
	if c.StatTrak != nil {
		args["stattrak"] = ir.IRInt(*c.StatTrak)
	}
	return args
}

func (c UnlockCase) Apply(inv *inventory.Inventory) (*inventory.Inventory, error) {
	return inv.UnlockCase(c.CaseUID, c.KeyUID, inventory.Unlocked{
		DefID:    c.ItemID,
		Kind:     c.Kind,
		StatTrak: c.StatTrak,
	})
}
