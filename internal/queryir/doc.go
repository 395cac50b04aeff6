// Package queryir is the query-composition core of relq: an immutable
// relational algebra that lets callers build, combine and re-use queries
// without producing statements whose meaning silently changes.
//
// ARCHITECTURE:
//
//	[Relation] --From--> [Query] --Join/Filter/Project/OrderBy--> [Query]
//	                        |                                     |
//	                        +--AsSubquery--> [Relation] <---------+
//	                        |
//	                        +--ToCountQuery--> [Query (counting)]
//
// Rendering to SQL lives in package querysql; execution lives in package
// store. This package performs no I/O.
//
// VALUE SEMANTICS:
//
// Relation, Query, Projection and the predicates are values. Every
// composition method has a value receiver and returns a new Query; slices
// are copied on every derivation, so a base query can be shared between
// goroutines and branched freely without synchronization.
//
// STATE MACHINE:
//
//	Raw ──Project──> Projected ──AsSubquery + From──> Wrapped (a new Raw-like outer query)
//
// A Projected query whose Projection deduplicates (DISTINCT ON semantics)
// has collapsed row identity to its key columns. Counting it, filtering it
// on an arbitrary column, or paginating it would operate on rows that no
// longer exist as such, so those transitions are rejected with an
// UNSUPPORTED_ON_DEDUPLICATED CompositionError. The sanctioned path is a
// materialization boundary:
//
//	latest, _ := q.Project(DistinctOn(key, order...))
//	rel, _ := latest.AsSubquery("latest_posts")
//	outer, _ := From(rel)
//	count, _ := outer.ToCountQuery()
//
// FilterByIDs is the one narrowing that stays valid on a deduplicated
// query: the identifier column always survives the projection, and the
// restriction is applied to the deduplicated row set.
//
// SEALED INTERFACES:
//
// Predicate is sealed with the marker method pattern so renderers can use
// exhaustive type switches.
package queryir
