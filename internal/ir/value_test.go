package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestIRObjectAccessors(t *testing.T) {
	obj := IRObject{
		"target_uid": IRInt(7),
		"name_tag":   IRString("Lucky"),
		"uids":       Ints(1, 2, 3),
		"bad_list":   IRArray{IRInt(1), IRString("x")},
	}

	n, err := obj.Int("target_uid")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = obj.Int("missing")
	assert.ErrorContains(t, err, "missing")

	_, err = obj.Int("name_tag")
	assert.Error(t, err)

	s, err := obj.Str("name_tag")
	require.NoError(t, err)
	assert.Equal(t, "Lucky", s)

	_, ok, err := obj.OptInt("slot")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := obj.IntList("uids")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, list)

	_, err = obj.IntList("bad_list")
	assert.Error(t, err)

	assert.True(t, obj.Has("uids"))
	assert.False(t, obj.Has("slot"))
}

func TestUnmarshalValueRejectsFloats(t *testing.T) {
	for _, input := range []string{`1.5`, `{"wear":0.1}`, `[1,2.0]`, `1e3`} {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, "input %s", input)
	}
}

func TestUnmarshalValueRejectsNull(t *testing.T) {
	for _, input := range []string{`null`, `{"a":null}`, `[null]`} {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, "input %s", input)
	}
}

func TestUnmarshalValueRejectsTrailingData(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"a":1} {"b":2}`))
	assert.ErrorContains(t, err, "trailing")
}

func TestUnmarshalValueNested(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"uids":[1,2],"meta":{"ok":true,"tag":"x"}}`))
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"uids": Ints(1, 2),
		"meta": IRObject{"ok": IRBool(true), "tag": IRString("x")},
	}, v)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	original := IRObject{"sticker_uid": IRInt(3), "slot": IRInt(1)}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `{"slot":1,"sticker_uid":3}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)

	err = json.Unmarshal([]byte(`[1]`), &decoded)
	assert.Error(t, err)
}

func TestFromGoYAMLShapes(t *testing.T) {
	v, err := FromGo(map[string]any{"uids": []any{1, 2}, "name_tag": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, IRObject{"uids": Ints(1, 2), "name_tag": IRString("Bob")}, v)

	_, err = FromGo(struct{}{})
	assert.ErrorContains(t, err, "unsupported")

	_, err = FromGo(uint64(1 << 63))
	assert.ErrorContains(t, err, "range")
}
