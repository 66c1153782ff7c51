package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

func allVariants() []Command {
	return []Command{
		AddItem{DefID: 7, Kind: inventory.KindWeapon, StatTrak: inventory.StatTrak(3)},
		AddItem{DefID: 8, Kind: inventory.KindCase},
		RemoveItem{UID: 4},
		ApplyItemPatch{TargetUID: 1, PatchUID: 2, Slot: 3},
		ApplyItemSticker{TargetUID: 1, StickerUID: 2, Slot: 0},
		AddWithSticker{StickerUID: 2, ItemID: 7, Slot: 4},
		AddWithNametag{ToolUID: 5, ItemID: 7, NameTag: "Dragon"},
		RemoveItemPatch{TargetUID: 1, Slot: 2},
		RenameItem{ToolUID: 5, TargetUID: 1, NameTag: ""},
		RenameStorageUnit{UID: 9, NameTag: "Box"},
		ScrapeItemSticker{TargetUID: 1, Slot: 0},
		SwapItemsStatTrak{ToolUID: 3, FromUID: 1, ToUID: 2},
		DepositToStorageUnit{StorageUID: 9, UIDs: []int64{3, 1}},
		RetrieveFromStorageUnit{StorageUID: 9, UIDs: []int64{1}},
		UnlockCase{CaseUID: 10, KeyUID: 11, ItemID: 7, Kind: inventory.KindWeapon, StatTrak: inventory.StatTrak(0)},
		UnlockCase{CaseUID: 10, ItemID: 12, Kind: inventory.KindSticker},
	}
}

func TestDecodeInvertsArgs(t *testing.T) {
	for _, c := range allVariants() {
		t.Run(string(c.Action()), func(t *testing.T) {
			decoded, err := Decode(c.Action(), c.Args())
			require.NoError(t, err)
			assert.Equal(t, c, decoded)
		})
	}
}

func TestDecodeInvertsArgsThroughJSON(t *testing.T) {
	for _, c := range allVariants() {
		data, err := ir.MarshalCanonical(c.Args())
		require.NoError(t, err)

		v, err := ir.UnmarshalValue(data)
		require.NoError(t, err)
		args, ok := v.(ir.IRObject)
		require.True(t, ok)

		decoded, err := Decode(c.Action(), args)
		require.NoError(t, err)
		assert.Equal(t, c, decoded)
	}
}

func TestEveryActionHasVariant(t *testing.T) {
	covered := map[Action]bool{}
	for _, c := range allVariants() {
		covered[c.Action()] = true
	}
	for _, a := range Actions() {
		assert.True(t, covered[a], "no variant for %s", a)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		args   ir.IRObject
		want   error
	}{
		{"unknown action", "PaintItem", ir.IRObject{}, ErrUnknownAction},
		{"missing field", ActionScrapeItemSticker, ir.IRObject{"target_uid": ir.IRInt(1)}, ErrInvalidArgs},
		{"wrong type", ActionRemoveItem, ir.IRObject{"uid": ir.IRString("1")}, ErrInvalidArgs},
		{"extra field", ActionRemoveItem, ir.IRObject{"uid": ir.IRInt(1), "force": ir.IRBool(true)}, ErrInvalidArgs},
		{"bad kind", ActionAddItem, ir.IRObject{"def_id": ir.IRInt(1), "kind": ir.IRString("hat")}, ErrInvalidArgs},
		{"zero key", ActionUnlockCase, ir.IRObject{
			"case_uid": ir.IRInt(1), "key_uid": ir.IRInt(0), "item_id": ir.IRInt(2), "kind": ir.IRString("weapon"),
		}, ErrInvalidArgs},
		{"bad uid list", ActionDepositToStorageUnit, ir.IRObject{
			"storage_uid": ir.IRInt(1), "uids": ir.IRArray{ir.IRString("x")},
		}, ErrInvalidArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.action, tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApplyMatchesInventoryMutation(t *testing.T) {
	inv, err := inventory.New(inventory.DefaultRules(),
		inventory.Item{DefID: 7, Kind: inventory.KindWeapon},
		inventory.Item{DefID: 4001, Kind: inventory.KindSticker},
	)
	require.NoError(t, err)

	viaCommand, err := ApplyItemSticker{TargetUID: 1, StickerUID: 2, Slot: 1}.Apply(inv)
	require.NoError(t, err)
	direct, err := inv.ApplyItemSticker(1, 2, 1)
	require.NoError(t, err)

	assert.True(t, viaCommand.Equal(direct))
}

func TestDigest(t *testing.T) {
	a, err := Digest(RenameItem{ToolUID: 1, TargetUID: 2, NameTag: "x"})
	require.NoError(t, err)
	b, err := Digest(RenameItem{ToolUID: 1, TargetUID: 2, NameTag: "x"})
	require.NoError(t, err)
	c, err := Digest(RenameItem{ToolUID: 1, TargetUID: 2, NameTag: "y"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Same args under a different action must not collide.
	d, err := Digest(RemoveItemPatch{TargetUID: 1, Slot: 2})
	require.NoError(t, err)
	e, err := Digest(ScrapeItemSticker{TargetUID: 1, Slot: 2})
	require.NoError(t, err)
	assert.NotEqual(t, d, e)
}
