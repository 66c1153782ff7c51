// Package command defines the SyncCommand variants.
//
// Each command is a small immutable struct. The same struct yields both the
// local mutation (Apply) and the transmitted payload (Args), and Decode is
// the exact inverse of Args. A command can therefore never apply one thing
// locally and send another.
package command

import (
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

// Action is the wire tag of a command.
type Action string

const (
	ActionAddItem                 Action = "AddItem"
	ActionRemoveItem              Action = "RemoveItem"
	ActionApplyItemPatch          Action = "ApplyItemPatch"
	ActionApplyItemSticker        Action = "ApplyItemSticker"
	ActionAddWithSticker          Action = "AddWithSticker"
	ActionAddWithNametag          Action = "AddWithNametag"
	ActionRemoveItemPatch         Action = "RemoveItemPatch"
	ActionRenameItem              Action = "RenameItem"
	ActionRenameStorageUnit       Action = "RenameStorageUnit"
	ActionScrapeItemSticker       Action = "ScrapeItemSticker"
	ActionSwapItemsStatTrak       Action = "SwapItemsStatTrak"
	ActionDepositToStorageUnit    Action = "DepositToStorageUnit"
	ActionRetrieveFromStorageUnit Action = "RetrieveFromStorageUnit"
	ActionUnlockCase              Action = "UnlockCase"
)

// Actions lists every known action in declaration order.
func Actions() []Action {
	return []Action{
		ActionAddItem,
		ActionRemoveItem,
		ActionApplyItemPatch,
		ActionApplyItemSticker,
		ActionAddWithSticker,
		ActionAddWithNametag,
		ActionRemoveItemPatch,
		ActionRenameItem,
		ActionRenameStorageUnit,
		ActionScrapeItemSticker,
		ActionSwapItemsStatTrak,
		ActionDepositToStorageUnit,
		ActionRetrieveFromStorageUnit,
		ActionUnlockCase,
	}
}

// Command is one user-intent mutation.
type Command interface {
	Action() Action
	// Args returns the wire payload. Keys are snake_case.
	Args() ir.IRObject
	// Apply runs the mutation against a replica. It never modifies inv.
	Apply(inv *inventory.Inventory) (*inventory.Inventory, error)
}

// Digest returns the content digest of a command, covering action and args.
func Digest(c Command) (string, error) {
	return ir.DigestValue(ir.DomainCommand, ir.IRObject{
		"action": ir.IRString(c.Action()),
		"args":   c.Args(),
	})
}
