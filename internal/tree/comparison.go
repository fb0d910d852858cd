package tree

import "github.com/danielpatrickdp/fairaudit/internal/descriptor"

// #region comparison
// Comparison collects named result trees side by side, for example one report
// per model, under a single "comparison" root.
type Comparison struct {
	reg       *descriptor.Registry
	id        descriptor.ID
	instances []*Value
}

// NewComparison starts an empty comparison.
func NewComparison(reg *descriptor.Registry, name string) *Comparison {
	return &Comparison{
		reg: reg,
		id:  reg.Intern(descriptor.New(name, descriptor.RoleComparison)),
	}
}

// Instance adds v under a descriptor named name with role "instance".
func (c *Comparison) Instance(name string, v *Value) *Comparison {
	id := c.reg.Intern(descriptor.New(name, descriptor.RoleInstance))
	c.instances = append(c.instances, v.Rebase(id))
	return c
}

// Build returns the comparison tree and resets the builder.
func (c *Comparison) Build() *Value {
	out := Branch(c.reg, c.id, c.instances...)
	c.Clear()
	return out
}

// Clear drops all added instances.
func (c *Comparison) Clear() {
	c.instances = nil
}
// #endregion comparison
