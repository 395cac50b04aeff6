package queryir

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// ValidationResult contains advisory analysis of a query.
//
// Every query that composes successfully renders and executes. Warnings
// flag shapes that are legal but usually not what the author meant, such
// as a one-to-many join that multiplies base rows.
type ValidationResult struct {
	// Clean is true when no warnings were raised.
	Clean bool

	// Warnings lists the flagged shapes, outermost query first.
	Warnings []string
}

// Validate inspects q and the queries it wraps.
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateQuery(q, "")

	return ValidationResult{
		Clean:    len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

// addWarning appends a warning message, prefixed with the subquery path.
func (v *validator) addWarning(path, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if path != "" {
		msg = path + ": " + msg
	}
	v.warnings = append(v.warnings, msg)
}

func (v *validator) validateQuery(q Query, path string) {
	for _, j := range q.joins {
		if j.On.Cardinality == OneToMany && !q.projection.dedupe && !q.counting {
			v.addWarning(path, "join %s is one-to-many; each %s row may appear more than once",
				j.Relation.alias, q.from.alias)
		}
	}

	for _, p := range q.filters {
		v.validatePredicate(p, path)
	}

	if q.hasIDs && len(q.ids) == 0 {
		v.addWarning(path, "identifier filter is empty; the query matches no rows")
	}

	if q.page != nil && len(q.ordering) == 0 {
		v.addWarning(path, "pagination without an explicit ordering pages by %s.%s",
			q.from.alias, q.from.primaryKey)
	}

	if inner, ok := q.from.Source(); ok {
		v.validateQuery(inner, joinPath(path, q.from.alias))
	}
	for _, j := range q.joins {
		if inner, ok := j.Relation.Source(); ok {
			v.validateQuery(inner, joinPath(path, j.Relation.alias))
		}
	}
}

func (v *validator) validatePredicate(p Predicate, path string) {
	switch pred := p.(type) {
	case Equals:
		if _, isNull := pred.Value.(ir.IRNull); isNull {
			v.addWarning(path, "%s = NULL renders as IS NULL", pred.Column)
		}
	case In:
		if len(pred.Values) == 0 {
			v.addWarning(path, "%s IN () matches no rows", pred.Column)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, path)
		}
	}
}

func joinPath(path, alias string) string {
	if path == "" {
		return alias
	}
	return path + "." + alias
}
