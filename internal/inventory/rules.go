package inventory

// Rules parameterize the mutation preconditions.
type Rules struct {
	MaxItems            int   `json:"max_items"`
	StorageUnitMaxItems int   `json:"storage_unit_max_items"`
	StickerSlots        int   `json:"sticker_slots"`
	PatchSlots          int   `json:"patch_slots"`
	StickerWearStep     int64 `json:"sticker_wear_step"`
	MaxStickerWear      int64 `json:"max_sticker_wear"`
	NametagMaxLength    int   `json:"nametag_max_length"`
}

// DefaultRules returns the stock economy limits.
func DefaultRules() Rules {
	return Rules{
		MaxItems:            1000,
		StorageUnitMaxItems: 1000,
		StickerSlots:        5,
		PatchSlots:          5,
		StickerWearStep:     100,
		MaxStickerWear:      1000,
		NametagMaxLength:    20,
	}
}
