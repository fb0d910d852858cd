package descriptor

import "fmt"

// #region descriptor
// Descriptor names a quantity in a report tree. Two descriptors are the same
// quantity when their names match; role, details and alias are presentation.
type Descriptor struct {
	Name      string
	Role      string
	Details   string
	Alias     string
	Prototype ID // None means the descriptor is its own prototype
}

// New builds a descriptor with default details ("<name> <role>") and alias (name).
func New(name, role string, opts ...Option) Descriptor {
	d := Descriptor{Name: name, Role: role}
	for _, opt := range opts {
		opt(&d)
	}
	if d.Details == "" {
		d.Details = name + " " + role
	}
	if d.Alias == "" {
		d.Alias = name
	}
	return d
}

// Option customizes a descriptor built with New.
type Option func(*Descriptor)

// WithDetails overrides the generated details text.
func WithDetails(details string) Option {
	return func(d *Descriptor) { d.Details = details }
}

// WithAlias overrides the lookup key, which defaults to the name.
func WithAlias(alias string) Option {
	return func(d *Descriptor) { d.Alias = alias }
}

// WithPrototype marks the descriptor as a specialization of another one.
func WithPrototype(id ID) Option {
	return func(d *Descriptor) { d.Prototype = id }
}

// Equal compares by name only.
func (d Descriptor) Equal(o Descriptor) bool { return d.Name == o.Name }

// String is the canonical "[role] name" form used by text and serialized output.
func (d Descriptor) String() string { return fmt.Sprintf("[%s] %s", d.Role, d.Name) }

// Label is the short "alias [role]" form.
func (d Descriptor) Label() string { return fmt.Sprintf("%s [%s]", d.Alias, d.Role) }
// #endregion descriptor

// #region id
// ID is a handle into a Registry.
type ID uint32

// None is the zero handle. It never refers to a registered descriptor.
const None ID = 0

// Missing is pre-registered in every Registry and roots the empty value.
const Missing ID = 1

// Well-known roles.
const (
	RoleAny        = "any role"
	RoleReport     = "report"
	RoleReduction  = "reduction"
	RoleMetric     = "metric"
	RoleBranch     = "branch"
	RoleCount      = "count"
	RoleComparison = "comparison"
	RoleInstance   = "instance"
)
// #endregion id
