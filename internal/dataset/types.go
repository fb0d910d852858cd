package dataset

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
)

var (
	ErrMissingColumn = errors.New("dataset: missing column")
	ErrBadValue      = errors.New("dataset: bad value")
)

// #region types
// Columns names the CSV columns that feed an audit. Labels may be empty for
// metrics that only look at predictions.
type Columns struct {
	Predictions string
	Labels      string
	Sensitive   []string
}

// Attribute is one sensitive column, kept as raw category values.
type Attribute struct {
	Name   string
	Values []string
}

// Data is a loaded audit table.
type Data struct {
	Predictions backend.Tensor
	Labels      backend.Tensor // nil when no label column was requested
	Attributes  []Attribute
}

// Grouping selects how several sensitive attributes become groups.
type Grouping string

const (
	// GroupCategories keeps each attribute's own categories.
	GroupCategories Grouping = "categories"
	// GroupIntersectional keeps only the non-empty intersections of all attributes.
	GroupIntersectional Grouping = "intersectional"
	// GroupSubgroups keeps every category plus every non-empty intersection.
	GroupSubgroups Grouping = "subgroups"
)

// ParseGrouping maps "" to GroupCategories.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case "", GroupCategories:
		return GroupCategories, nil
	case GroupIntersectional, GroupSubgroups:
		return Grouping(s), nil
	}
	return "", fmt.Errorf("unknown grouping %q", s)
}

// AttributeSep separates an attribute name from its category when several
// attributes share one report.
const AttributeSep = "."
// #endregion types
