// Package inventory is the economy collaborator of the sync engine.
//
// An Inventory is an immutable replica of the items a user owns. Every
// mutation returns a new *Inventory and leaves the receiver untouched, so a
// replica can be shared by reference with any number of readers.
//
// UID ASSIGNMENT:
// New items take NextUID and increment it. Two replicas that start equal and
// apply the same mutations in the same order allocate the same uids, which is
// what lets a client replica and the authority agree without exchanging ids.
//
// WEAR:
// Sticker wear is integral per-mille (0..MaxStickerWear). Floats never enter
// the model, keeping encoded inventories canonical.
package inventory
