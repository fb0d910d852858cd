package tree

import (
	"errors"

	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
)

// #region errors
var (
	ErrUnknownKey     = errors.New("tree: unknown key")
	ErrAmbiguous      = errors.New("tree: value has no single entry")
	ErrNotFlattenable = errors.New("tree: value cannot be flattened")
	ErrNotNumeric     = errors.New("tree: entry carries no number")
)
// #endregion errors

// #region number
// Number is a scalar with an optional ideal target.
type Number struct {
	Value     float64
	Target    float64
	HasTarget bool
}
// #endregion number

// #region value
// Value is a node of an explainable result tree. A node may carry a number,
// an ordered set of dependencies keyed by alias, or both: metric results keep
// the counts they were computed from as children.
//
// Values are immutable once built. Every derived tree (Get, Rebase, Reshape)
// shares unchanged subtrees with its source.
type Value struct {
	reg   *descriptor.Registry
	id    descriptor.ID
	num   *Number
	deps  []*Value
	index map[string]int
}
// #endregion value

// #region node
// Node is the serialized form of a Value.
type Node struct {
	Descriptor string   `json:"descriptor"`
	Value      *float64 `json:"value"`
	Depends    []Node   `json:"depends"`
	Details    string   `json:"details,omitempty"`
}
// #endregion node

// #region text-options
// TextOptions controls the indented text form.
type TextOptions struct {
	// Depth is how many numeric levels below the first number are expanded.
	Depth   int
	Details bool
}
// #endregion text-options
