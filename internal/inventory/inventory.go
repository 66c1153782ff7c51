package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/invsync/internal/ir"
)

// Inventory is an immutable replica of a user's items.
// The zero value is not usable; construct with New, Empty or Decode.
type Inventory struct {
	rules   Rules
	items   map[int64]Item
	nextUID int64
}

// Empty returns an inventory with no items.
func Empty(rules Rules) *Inventory {
	return &Inventory{rules: rules, items: map[int64]Item{}, nextUID: 1}
}

// New builds an inventory from items. Top-level items with UID <= 0 are
// assigned fresh uids in argument order. Explicit uids, including those of
// stored items, are kept and must be unique.
func New(rules Rules, items ...Item) (*Inventory, error) {
	inv := Empty(rules)
	seen := map[int64]bool{}
	for _, it := range items {
		if it.UID > 0 {
			if err := collectUIDs(it, seen); err != nil {
				return nil, err
			}
		}
	}
	for uid := range seen {
		if uid >= inv.nextUID {
			inv.nextUID = uid + 1
		}
	}
	for _, it := range items {
		it = it.Clone()
		if it.UID <= 0 {
			if len(it.Storage) > 0 {
				return nil, invalid("item with stored contents needs an explicit uid")
			}
			it.UID = inv.nextUID
			inv.nextUID++
		}
		if err := inv.checkItem(it, false); err != nil {
			return nil, err
		}
		inv.items[it.UID] = it
	}
	if len(inv.items) > rules.MaxItems {
		return nil, invalid("%d items exceed max_items %d", len(inv.items), rules.MaxItems)
	}
	return inv, nil
}

func collectUIDs(it Item, seen map[int64]bool) error {
	if it.UID <= 0 {
		return invalid("stored item has no uid")
	}
	if seen[it.UID] {
		return invalid("duplicate uid %d", it.UID)
	}
	seen[it.UID] = true
	for _, inner := range it.Storage {
		if err := collectUIDs(inner, seen); err != nil {
			return err
		}
	}
	return nil
}

// checkItem validates the static shape of an item against the rules.
func (inv *Inventory) checkItem(it Item, stored bool) error {
	r := inv.rules
	if !it.Kind.Valid() {
		return invalid("item %d: unknown kind %q", it.UID, it.Kind)
	}
	if it.DefID <= 0 {
		return invalid("item %d: def_id must be positive", it.UID)
	}
	if it.StatTrak != nil && *it.StatTrak < 0 {
		return invalid("item %d: negative stattrak", it.UID)
	}
	if it.NameTag != "" && utf8.RuneCountInString(it.NameTag) > r.NametagMaxLength {
		return invalid("item %d: name tag too long", it.UID)
	}
	if len(it.Stickers) > 0 && it.Kind != KindWeapon {
		return invalid("item %d: stickers on %s", it.UID, it.Kind)
	}
	for slot, st := range it.Stickers {
		if slot < 0 || slot >= r.StickerSlots {
			return invalid("item %d: sticker slot %d out of range", it.UID, slot)
		}
		if st.DefID <= 0 || st.Wear < 0 || st.Wear > r.MaxStickerWear {
			return invalid("item %d: bad sticker in slot %d", it.UID, slot)
		}
	}
	if len(it.Patches) > 0 && it.Kind != KindAgent {
		return invalid("item %d: patches on %s", it.UID, it.Kind)
	}
	for slot, def := range it.Patches {
		if slot < 0 || slot >= r.PatchSlots || def <= 0 {
			return invalid("item %d: bad patch in slot %d", it.UID, slot)
		}
	}
	if len(it.Storage) > 0 {
		if it.Kind != KindStorageUnit {
			return invalid("item %d: storage on %s", it.UID, it.Kind)
		}
		if stored {
			return invalid("item %d: nested storage", it.UID)
		}
		if len(it.Storage) > r.StorageUnitMaxItems {
			return invalid("item %d: storage over capacity", it.UID)
		}
		for _, inner := range it.Storage {
			if inner.Kind == KindStorageUnit {
				return invalid("item %d: storage unit inside storage unit", it.UID)
			}
			if err := inv.checkItem(inner, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rules returns the rules the inventory was built with.
func (inv *Inventory) Rules() Rules { return inv.rules }

// Len returns the number of top-level items.
func (inv *Inventory) Len() int { return len(inv.items) }

// NextUID returns the uid the next created item will receive.
func (inv *Inventory) NextUID() int64 { return inv.nextUID }

// Get returns a copy of the top-level item with uid.
func (inv *Inventory) Get(uid int64) (Item, bool) {
	it, ok := inv.items[uid]
	if !ok {
		return Item{}, false
	}
	return it.Clone(), true
}

// Items returns copies of all top-level items ordered by uid.
func (inv *Inventory) Items() []Item {
	out := make([]Item, 0, len(inv.items))
	for _, uid := range slices.Sorted(maps.Keys(inv.items)) {
		out = append(out, inv.items[uid].Clone())
	}
	return out
}

type encoded struct {
	Items   []Item `json:"items"`
	NextUID int64  `json:"next_uid"`
}

// Encode returns the deterministic JSON form of the inventory.
// Rules are not part of the encoding.
func (inv *Inventory) Encode() ([]byte, error) {
	return json.Marshal(encoded{Items: inv.Items(), NextUID: inv.nextUID})
}

// Decode parses an encoded inventory and validates it against rules.
func Decode(data []byte, rules Rules) (*Inventory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var e encoded
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	for _, it := range e.Items {
		if it.UID <= 0 {
			return nil, invalid("encoded item without uid")
		}
	}
	inv, err := New(rules, e.Items...)
	if err != nil {
		return nil, err
	}
	if e.NextUID < inv.nextUID {
		return nil, invalid("next_uid %d not above existing uids", e.NextUID)
	}
	inv.nextUID = e.NextUID
	return inv, nil
}

// Digest returns the content digest of the encoded inventory.
func (inv *Inventory) Digest() (string, error) {
	data, err := inv.Encode()
	if err != nil {
		return "", err
	}
	return ir.Digest(ir.DomainInventory, data), nil
}

// Equal reports whether both inventories encode identically.
func (inv *Inventory) Equal(other *Inventory) bool {
	if inv == nil || other == nil {
		return inv == other
	}
	a, errA := inv.Encode()
	b, errB := other.Encode()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// with returns a shallow copy whose item map can be written.
func (inv *Inventory) with() *Inventory {
	return &Inventory{rules: inv.rules, items: maps.Clone(inv.items), nextUID: inv.nextUID}
}

// create inserts a new item under the next uid.
func (inv *Inventory) create(it Item) int64 {
	it.UID = inv.nextUID
	inv.nextUID++
	inv.items[it.UID] = it
	return it.UID
}

func (inv *Inventory) lookup(rule string, uid int64, kinds ...Kind) (Item, error) {
	it, ok := inv.items[uid]
	if !ok {
		return Item{}, notFound(rule, uid)
	}
	if len(kinds) > 0 && !slices.Contains(kinds, it.Kind) {
		return Item{}, precondition(rule, "item %d is %s, want %v", uid, it.Kind, kinds)
	}
	return it.Clone(), nil
}

// normalizeName NFC-normalizes and trims a name tag.
func normalizeName(rules Rules, rule, name string) (string, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if !utf8.ValidString(name) {
		return "", precondition(rule, "name tag is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(name); n > rules.NametagMaxLength {
		return "", precondition(rule, "name tag has %d characters, max %d", n, rules.NametagMaxLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", precondition(rule, "name tag contains control character %U", r)
		}
	}
	return name, nil
}
