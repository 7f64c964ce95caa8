/*
Package indexedmap combines a kv.Map with a KeyIndex free/tombstone
list, giving every stored record a stable recyclable integer ID.

# Architecture

	┌──────────────────── INDEXED MAP (one bucket) ─────────────────────┐
	│                                                                     │
	│  kv.IndexKey → KeyIndex { entries[], available, inactive }        │
	│    entries[id] ∈ { Key(bytes), Free(next), Inactive(next) }       │
	│                                                                     │
	│  indexed_key(id) → row bytes  (decoded via Decoder[T])            │
	│                                                                     │
	│  Insert   → allocate (reuse free slot or append) + write row      │
	│  Remove   → delete row, push id onto free list                    │
	│  Deactivate → delete row, push id onto inactive list (tombstone)  │
	│  ClearInactive → drain inactive list into free list               │
	│  Update   → verify stored, apply delta, re-key if needed          │
	└─────────────────────────────────────────────────────────────────┘

Deactivate exists so cascade cleanups elsewhere (tag sets, model deletes)
can observe "this ID used to name X" between the deactivation and the
eventual ClearInactive sweep, without racing a recycled ID into the old
slot.
*/
package indexedmap
