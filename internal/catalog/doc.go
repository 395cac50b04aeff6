// Package catalog loads relation definitions written in CUE.
//
// A catalog declares base tables under the top-level "table" field:
//
//	table: users: {
//		columns: {
//			id:   int
//			name: string
//		}
//	}
//
//	table: activations: {
//		columns: {
//			id:         int
//			user_id:    int
//			plan:       string
//			created_at: "timestamp"
//		}
//		references: user_id: "users.id"
//	}
//
// Column types are either CUE kinds (int, string, bool) or one of the
// portable type names "integer", "text", "boolean", "timestamp". Floats
// are rejected. primary_key defaults to "id". Column order is the
// declaration order and becomes the projection order of the relation.
//
// References are foreign keys. InferJoin uses them to build equi-join
// conditions and their cardinality, so scenario files rarely spell out
// ON clauses.
package catalog
