package inventory

import (
	"maps"
	"slices"
)

// Kind classifies an item for precondition checks.
type Kind string

const (
	KindWeapon       Kind = "weapon"
	KindAgent        Kind = "agent"
	KindSticker      Kind = "sticker"
	KindPatch        Kind = "patch"
	KindNametag      Kind = "nametag"
	KindStatTrakSwap Kind = "stattrak_swap"
	KindStorageUnit  Kind = "storage_unit"
	KindCase         Kind = "case"
	KindKey          Kind = "key"
	KindOther        Kind = "other"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWeapon, KindAgent, KindSticker, KindPatch, KindNametag,
		KindStatTrakSwap, KindStorageUnit, KindCase, KindKey, KindOther:
		return true
	}
	return false
}

// Sticker is an applied sticker. Wear is per-mille.
type Sticker struct {
	DefID int64 `json:"def_id"`
	Wear  int64 `json:"wear"`
}

// Item is one owned item. DefID refers to the economy catalog and is opaque
// here. Stickers and Patches are keyed by slot index.
type Item struct {
	UID      int64           `json:"uid"`
	DefID    int64           `json:"def_id"`
	Kind     Kind            `json:"kind"`
	NameTag  string          `json:"name_tag,omitempty"`
	StatTrak *int64          `json:"stattrak,omitempty"`
	Stickers map[int]Sticker `json:"stickers,omitempty"`
	Patches  map[int]int64   `json:"patches,omitempty"`
	Storage  []Item          `json:"storage,omitempty"`
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.StatTrak != nil {
		st := *it.StatTrak
		out.StatTrak = &st
	}
	if it.Stickers != nil {
		out.Stickers = maps.Clone(it.Stickers)
	}
	if it.Patches != nil {
		out.Patches = maps.Clone(it.Patches)
	}
	if it.Storage != nil {
		out.Storage = make([]Item, len(it.Storage))
		for i, inner := range it.Storage {
			out.Storage[i] = inner.Clone()
		}
	}
	return out
}

// HasStatTrak reports whether the item carries a StatTrak counter.
func (it Item) HasStatTrak() bool {
	return it.StatTrak != nil
}

// StickerSlotsUsed returns occupied sticker slots in ascending order.
func (it Item) StickerSlotsUsed() []int {
	return slices.Sorted(maps.Keys(it.Stickers))
}

// StatTrak returns a pointer to a copy of n, for building items.
func StatTrak(n int64) *int64 {
	return &n
}
