// Package ir provides the canonical value layer shared by commands, the wire
// protocol, and golden traces.
//
// A command is represented once, as an IRObject of constrained values. The
// local mutation and the transmitted payload are both derived from that
// object, so they cannot silently disagree.
//
// Key design constraints:
//   - NO float types anywhere - sticker wear and counters are int64
//   - NO null - optional fields are omitted instead
//   - All JSON keys use snake_case
//   - Canonical bytes follow RFC 8785 (sorted keys, NFC strings)
package ir
