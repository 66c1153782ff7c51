package command

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

var (
	// ErrUnknownAction is returned by Decode for an unrecognized tag.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidArgs is returned by Decode for missing, mistyped or extra args.
	ErrInvalidArgs = errors.New("invalid args")
)

// Decode rebuilds a command from its wire form. It is the inverse of Args:
// Decode(c.Action(), c.Args()) equals c for every command.
func Decode(action Action, args ir.IRObject) (Command, error) {
	r := &argReader{args: args, used: map[string]bool{}}

	var cmd Command
	switch action {
	case ActionAddItem:
		cmd = AddItem{DefID: r.int("def_id"), Kind: r.kind("kind"), StatTrak: r.optInt("stattrak")}
	case ActionRemoveItem:
		cmd = RemoveItem{UID: r.int("uid")}
	case ActionApplyItemPatch:
		cmd = ApplyItemPatch{TargetUID: r.int("target_uid"), PatchUID: r.int("patch_uid"), Slot: r.slot("slot")}
	case ActionApplyItemSticker:
		cmd = ApplyItemSticker{TargetUID: r.int("target_uid"), StickerUID: r.int("sticker_uid"), Slot: r.slot("slot")}
	case ActionAddWithSticker:
		cmd = AddWithSticker{StickerUID: r.int("sticker_uid"), ItemID: r.int("item_id"), Slot: r.slot("slot")}
	case ActionAddWithNametag:
		cmd = AddWithNametag{ToolUID: r.int("tool_uid"), ItemID: r.int("item_id"), NameTag: r.str("name_tag")}
	case ActionRemoveItemPatch:
		cmd = RemoveItemPatch{TargetUID: r.int("target_uid"), Slot: r.slot("slot")}
	case ActionRenameItem:
		cmd = RenameItem{ToolUID: r.int("tool_uid"), TargetUID: r.int("target_uid"), NameTag: r.str("name_tag")}
	case ActionRenameStorageUnit:
		cmd = RenameStorageUnit{UID: r.int("uid"), NameTag: r.str("name_tag")}
	case ActionScrapeItemSticker:
		cmd = ScrapeItemSticker{TargetUID: r.int("target_uid"), Slot: r.slot("slot")}
	case ActionSwapItemsStatTrak:
		cmd = SwapItemsStatTrak{ToolUID: r.int("tool_uid"), FromUID: r.int("from_uid"), ToUID: r.int("to_uid")}
	case ActionDepositToStorageUnit:
		cmd = DepositToStorageUnit{StorageUID: r.int("storage_uid"), UIDs: r.ints("uids")}
	case ActionRetrieveFromStorageUnit:
		cmd = RetrieveFromStorageUnit{StorageUID: r.int("storage_uid"), UIDs: r.ints("uids")}
	case ActionUnlockCase:
		c := UnlockCase{
			CaseUID:  r.int("case_uid"),
			ItemID:   r.int("item_id"),
			Kind:     r.kind("kind"),
			StatTrak: r.optInt("stattrak"),
		}
		if key := r.optInt("key_uid"); key != nil {
			if *key == 0 {
				r.fail("key_uid: omit the field for keyless cases")
			}
			c.KeyUID = *key
		}
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if err := r.finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return cmd, nil
}

// argReader accumulates the first decoding error so Decode can read every
// field inline.
type argReader struct {
	args ir.IRObject
	used map[string]bool
	err  error
}

func (r *argReader) fail(format string, a ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrInvalidArgs, fmt.Sprintf(format, a...))
	}
}

func (r *argReader) int(key string) int64 {
	r.used[key] = true
	n, err := r.args.Int(key)
	if err != nil {
		r.fail("%v", err)
	}
	return n
}

func (r *argReader) optInt(key string) *int64 {
	r.used[key] = true
	n, ok, err := r.args.OptInt(key)
	if err != nil {
		r.fail("%v", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &n
}

func (r *argReader) slot(key string) int {
	n := r.int(key)
	if n < math.MinInt32 || n > math.MaxInt32 {
		r.fail("field %q out of range", key)
		return 0
	}
	return int(n)
}

func (r *argReader) str(key string) string {
	r.used[key] = true
	s, err := r.args.Str(key)
	if err != nil {
		r.fail("%v", err)
	}
	return s
}

func (r *argReader) kind(key string) inventory.Kind {
	k := inventory.Kind(r.str(key))
	if r.err == nil && !k.Valid() {
		r.fail("field %q: unknown kind %q", key, k)
	}
	return k
}

func (r *argReader) ints(key string) []int64 {
	r.used[key] = true
	list, err := r.args.IntList(key)
	if err != nil {
		r.fail("%v", err)
	}
	return list
}

func (r *argReader) finish() error {
	if r.err != nil {
		return r.err
	}
	var extra []string
	for _, key := range r.args.SortedKeys() {
		if !r.used[key] {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		return fmt.Errorf("%w: unexpected fields %s", ErrInvalidArgs, strings.Join(extra, ", "))
	}
	return nil
}
