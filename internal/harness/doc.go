// Package harness runs query scenarios end to end.
//
// A scenario names a CUE catalog, seeds fixture rows, composes named
// queries and runs steps against them. Each step renders its query for
// every dialect and, depending on the op, executes it against a fresh
// SQLite database (or a caller-supplied executor).
//
// # Scenario Format
//
//	format: "1.0"
//	name: latest_activation
//	description: "Latest activation per user survives further composition"
//	catalog: blog.cue
//	fixtures:
//	  users:
//	    - { id: 1, name: ada }
//	queries:
//	  latest:
//	    from: activations
//	    distinct_on: activations.user_id
//	    order: activations.user_id ASC, activations.created_at DESC
//	  wrapped:
//	    subquery_of: latest
//	    alias: la
//	    where: { la.plan: pro }
//	steps:
//	  - name: count wrapped
//	    query: wrapped
//	    op: count
//	    expect_count: 1
//	  - name: count unwrapped
//	    query: latest
//	    op: count
//	    expect_error: UNSUPPORTED_ON_DEDUPLICATED
//
// # Query Fields
//
// Fields are applied in a fixed order: from or subquery_of, joins, where,
// input_ids, distinct_on with order (or order alone), ids, paginate.
// input_ids narrows the rows distinct_on chooses from; ids narrows the
// rows it keeps. A join without
// "on" is inferred from catalog references. A where value that is a list
// becomes an IN predicate.
//
// # Step Ops
//
//   - render: compose and render only
//   - rows: execute and compare expect_rows / expect_ids
//   - count: convert with ToCountQuery, execute and compare expect_count
//
// expect_error matches a composition error code or EXECUTION_FAILED.
package harness
