// Package table is the thin typed layer between raw kv.Map /
// indexedmap.Map access and the entity-aware helpers in storage/tables.
// Table wraps a composite-keyed bucket; IndexedTable wraps an
// indexedmap.Map for entities that need a recyclable integer ID.
package table
