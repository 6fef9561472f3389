// Package schema implements the schema evolution engine (spec.md §4.1): the
// fold rule that collapses versioned column definitions into an effective
// Schema, validation of proposed column changes against it, and the schema
// wire format.
package schema

import (
	"log"

	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Fold applies the spec.md §4.1 fold rule to an ordered list of Columns
// (ascending by Version) and returns the resulting effective Schema.
// Folding is a pure function of the input list: the same list folded twice,
// or in smaller batches re-concatenated in order, yields the same result
// (testable property 1, "schema fold determinism").
func Fold(columns []types.Column) types.Schema {
	s := make(types.Schema)
	for _, c := range columns {
		foldOne(s, c)
	}
	return s
}

// FoldInto folds a single column into an existing effective schema,
// mutating it in place. The metadata store's GetSchema calls it once per
// stored column as it scans, re-folding the full history on every call.
func FoldInto(s types.Schema, c types.Column) {
	foldOne(s, c)
}

func foldOne(s types.Schema, c types.Column) {
	existing, ok := s[c.Name]

	switch {
	case c.IsDeleted:
		delete(s, c.Name)

	case ok && c.PropertyEqual(existing):
		// Redundant re-declaration: log and leave the schema untouched.
		log.Printf("schema: ignoring redundant redeclaration of column %q at version %d", c.Name, c.Version)

	case ok:
		s[c.Name] = c

	default:
		s[c.Name] = c
	}
}

// Validate checks a proposed new or changed column against the current
// effective schema s, returning every violated rule from spec.md §4.1.
// An empty result means the column is valid.
func Validate(s types.Schema, c types.Column) []string {
	var violations []string

	// Rule 1: system flag matches name prefix.
	if c.IsSystem != types.IsSystemName(c.Name) {
		violations = append(violations, "system flag does not match name prefix")
	}

	existing, exists := s[c.Name]

	if exists {
		// Rule 2: version must strictly advance.
		if !(c.Version > existing.Version) {
			violations = append(violations, "version must be greater than the current column's version")
		}
		// Rule 3: must differ in at least one property.
		if c.PropertyEqual(existing) {
			violations = append(violations, "column is property-equal to the existing definition (redundant)")
		}
	} else {
		// Rule 4: cannot tombstone a column that doesn't exist.
		if c.IsDeleted {
			violations = append(violations, "cannot delete a column that does not exist in the effective schema")
		}
	}

	return violations
}

// ValidateAndFold validates c against s and, if valid, returns the folded
// schema. On validation failure it returns a *segerr.Error listing every
// violation and leaves s unchanged.
func ValidateAndFold(s types.Schema, c types.Column) (types.Schema, error) {
	if violations := Validate(s, c); len(violations) > 0 {
		return s, segerr.ValidationError(joinViolations(violations)).WithDetails(map[string]interface{}{
			"column":     c.Name,
			"violations": violations,
		})
	}
	next := s.Clone()
	FoldInto(next, c)
	return next, nil
}

func joinViolations(violations []string) string {
	msg := "schema validation failed: "
	for i, v := range violations {
		if i > 0 {
			msg += "; "
		}
		msg += v
	}
	return msg
}
