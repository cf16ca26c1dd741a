// Package domain models the data exchanged between the warehouse, the
// analytics functions, the cache, and the HTTP layer.
//
// # Values
//
// Query results travel as [Value], a JSON-shaped tagged union
// (null, bool, number, string, list, ordered map). Two encodings exist:
//
//	MarshalJSON  map fields in insertion order (what clients see)
//	Canonical    map fields sorted by key (what the cache hashes)
//
// Numbers keep their JSON text, so a value decoded from the cache re-encodes
// to exactly the bytes it was stored with. Dates and timestamps have no JSON
// type and are rendered as strings: warehouse DATE columns become
// "2006-01-02", other timestamps RFC 3339. Reading a cached value back never
// reconstructs a time.Time.
//
// # Tables
//
// The warehouse client materializes each result set into a [Table]. Column
// lookups are case-insensitive because Snowflake upper-cases unquoted
// identifiers while Postgres lower-cases them. [Table.Records] is the
// list-of-objects rendering returned by the passthrough endpoints.
//
// # Comments
//
// [Comment] is the only persistent entity. Its fields are pointers so an
// absent field is stored and rendered as null rather than "".
package domain
