package dataset

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
)

// #region groups
// Groups turns sensitive attributes into group membership masks. A single
// attribute yields its bare categories; several attributes are labeled
// "attribute.category" and combined according to g.
func Groups(attrs []Attribute, g Grouping) (*fork.Fork[backend.Tensor], error) {
	if len(attrs) == 0 {
		return nil, errors.New("dataset: no sensitive attributes")
	}
	if len(attrs) == 1 {
		return fork.Categories(attrs[0].Values), nil
	}

	branches := make([]fork.Branch[*fork.Fork[backend.Tensor]], len(attrs))
	for i, a := range attrs {
		branches[i] = fork.Branch[*fork.Fork[backend.Tensor]]{
			Label: a.Name + AttributeSep,
			Value: fork.Categories(a.Values),
		}
	}
	nested, err := fork.New(branches...)
	if err != nil {
		return nil, fmt.Errorf("groups: %w", err)
	}

	switch g {
	case GroupCategories, "":
		return fork.Flatten(nested)
	case GroupIntersectional:
		spaced := make([]*fork.Fork[backend.Tensor], 0, nested.Len())
		for _, b := range nested.Branches() {
			spaced = append(spaced, fork.Namespaced(b.Label, b.Value))
		}
		return fork.Intersectional(spaced...)
	case GroupSubgroups:
		return fork.Subgroups(nested)
	}
	return nil, fmt.Errorf("groups: unknown grouping %q", g)
}
// #endregion groups
