/*
Package kv wraps one bbolt bucket as an ordered, transactional column
family, the lowest layer every higher table builds on.

# Architecture

	┌────────────────── COLUMN FAMILY (bbolt bucket) ──────────────────┐
	│                                                                    │
	│  IndexKey   →  KeyIndex (indexedmap/indexedset only)              │
	│  key₁..keyₙ →  values, in ascending byte order                    │
	│                                                                    │
	│  Map.Get/Put/Insert/Delete          point operations              │
	│  Map.IterForward/IterBackward       full-bucket ordered scans     │
	│  Map.IterFrom/PrefixIter            bounded scans                 │
	│  Map.Update                         transactional key/value CAS   │
	│  Map.ReplaceAll                     delete-all-then-write         │
	└────────────────────────────────────────────────────────────────┘

Iterators always skip IndexKey so data scans never see an index row
mixed in with the entity rows it governs.
*/
package kv
