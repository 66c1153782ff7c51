package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInventory(t *testing.T) *Inventory {
	t.Helper()
	inv, err := New(DefaultRules(),
		Item{DefID: 7, Kind: KindWeapon, StatTrak: StatTrak(10)},
		Item{DefID: 4001, Kind: KindSticker},
		Item{DefID: 5001, Kind: KindAgent},
		Item{DefID: 6001, Kind: KindPatch},
	)
	require.NoError(t, err)
	return inv
}

func TestNewAssignsSequentialUIDs(t *testing.T) {
	inv := sampleInventory(t)

	assert.Equal(t, 4, inv.Len())
	assert.Equal(t, int64(5), inv.NextUID())

	items := inv.Items()
	for i, it := range items {
		assert.Equal(t, int64(i+1), it.UID)
	}
}

func TestNewKeepsExplicitUIDs(t *testing.T) {
	inv, err := New(DefaultRules(),
		Item{UID: 10, DefID: 7, Kind: KindWeapon},
		Item{DefID: 8, Kind: KindWeapon},
	)
	require.NoError(t, err)

	_, ok := inv.Get(10)
	assert.True(t, ok)
	_, ok = inv.Get(11)
	assert.True(t, ok, "implicit uids start after the highest explicit one")
	assert.Equal(t, int64(12), inv.NextUID())
}

func TestNewRejectsInvalidItems(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"unknown kind", Item{DefID: 1, Kind: "hat"}},
		{"missing def", Item{Kind: KindWeapon}},
		{"sticker on agent", Item{DefID: 1, Kind: KindAgent, Stickers: map[int]Sticker{0: {DefID: 2}}}},
		{"patch slot out of range", Item{DefID: 1, Kind: KindAgent, Patches: map[int]int64{9: 2}}},
		{"wear over max", Item{DefID: 1, Kind: KindWeapon, Stickers: map[int]Sticker{0: {DefID: 2, Wear: 5000}}}},
		{"negative stattrak", Item{DefID: 1, Kind: KindWeapon, StatTrak: StatTrak(-1)}},
		{"storage on weapon", Item{UID: 1, DefID: 1, Kind: KindWeapon, Storage: []Item{{UID: 2, DefID: 3, Kind: KindCase}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultRules(), tt.item)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNewRejectsDuplicateUIDs(t *testing.T) {
	_, err := New(DefaultRules(),
		Item{UID: 3, DefID: 1, Kind: KindCase},
		Item{UID: 4, DefID: 2, Kind: KindStorageUnit, NameTag: "box", Storage: []Item{{UID: 3, DefID: 1, Kind: KindCase}}},
	)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestGetReturnsCopy(t *testing.T) {
	inv := sampleInventory(t)

	it, ok := inv.Get(1)
	require.True(t, ok)
	*it.StatTrak = 999

	again, _ := inv.Get(1)
	assert.Equal(t, int64(10), *again.StatTrak)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	inv := sampleInventory(t)
	inv, err := inv.ApplyItemSticker(1, 2, 0)
	require.NoError(t, err)

	data, err := inv.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data, DefaultRules())
	require.NoError(t, err)
	assert.True(t, inv.Equal(decoded))
	assert.Equal(t, inv.NextUID(), decoded.NextUID())

	d1, err := inv.Digest()
	require.NoError(t, err)
	d2, err := decoded.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestEncodeIsDeterministic(t *testing.T) {
	data, err := sampleInventory(t).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[
		{"uid":1,"def_id":7,"kind":"weapon","stattrak":10},
		{"uid":2,"def_id":4001,"kind":"sticker"},
		{"uid":3,"def_id":5001,"kind":"agent"},
		{"uid":4,"def_id":6001,"kind":"patch"}
	],"next_uid":5}`, string(data))

	again, err := sampleInventory(t).Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown field", `{"items":[],"next_uid":1,"owner":"x"}`},
		{"missing uid", `{"items":[{"def_id":1,"kind":"case"}],"next_uid":2}`},
		{"next uid too low", `{"items":[{"uid":5,"def_id":1,"kind":"case"}],"next_uid":3}`},
		{"not json", `items`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), DefaultRules())
			assert.Error(t, err)
		})
	}
}

func TestEqual(t *testing.T) {
	a := sampleInventory(t)
	b := sampleInventory(t)
	assert.True(t, a.Equal(b))

	c, err := b.RemoveItem(4)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))

	var nilInv *Inventory
	assert.False(t, a.Equal(nilInv))
	assert.True(t, nilInv.Equal(nil))
}
