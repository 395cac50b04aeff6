package querysql

import (
	"github.com/roach88/relq/internal/ir"
)

// QueryText is a rendered statement ready for execution: SQL with
// placeholders plus the parameter values in placeholder order.
type QueryText struct {
	Dialect Dialect      `json:"dialect"`
	SQL     string       `json:"sql"`
	Params  []ir.IRValue `json:"params"`
}

// Args converts Params to driver arguments.
func (t QueryText) Args() []any {
	args := make([]any, len(t.Params))
	for i, p := range t.Params {
		// Params only ever holds scalars, which always convert.
		args[i], _ = ir.ToParam(p)
	}
	return args
}

// Fingerprint identifies the statement. Two renders of the same logical
// query for the same dialect share a fingerprint.
func (t QueryText) Fingerprint() (string, error) {
	return ir.Fingerprint(ir.DomainQueryText, map[string]any{
		"dialect": string(t.Dialect),
		"sql":     t.SQL,
		"params":  ir.IRArray(t.Params),
	})
}

// String returns the SQL followed by an args line, the form used in
// golden snapshots and verbose CLI output.
func (t QueryText) String() string {
	return t.SQL + "\n-- args: " + ir.Format(ir.IRArray(t.Params))
}
