/*
Package indexedset is the keyindex machinery used standalone, with no
per-ID row -- just a set of recyclable member values stored at one key
inside a bucket.

	┌──────────────────── INDEXED SET (one key) ────────────────────┐
	│                                                                 │
	│  bucket[storageKey] → KeyIndex { entries[], available, ... }  │
	│    entries[id].Key holds the encoded member value directly    │
	│                                                                 │
	│  Unlike indexedmap there is no separate data row per ID: the   │
	│  member value lives inside the KeyIndex slot itself.           │
	└─────────────────────────────────────────────────────────────┘

Tag sets (workflow tags, network tags) each keep one Set per tag kind so
cascade-removal policy can differ by kind while sharing this machinery.
*/
package indexedset
