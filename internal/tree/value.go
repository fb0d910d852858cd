package tree

import (
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
)

// #region construct
// New builds a node. Dependencies that do not exist are dropped; a later
// dependency with an alias already present replaces the earlier one in place.
func New(reg *descriptor.Registry, id descriptor.ID, num *Number, deps ...*Value) *Value {
	v := &Value{reg: reg, id: id, index: make(map[string]int, len(deps))}
	if num != nil {
		n := *num
		v.num = &n
	}
	for _, dep := range deps {
		if dep == nil || !dep.Exists() {
			continue
		}
		alias := reg.Get(dep.id).Alias
		if i, ok := v.index[alias]; ok {
			v.deps[i] = dep
			continue
		}
		v.index[alias] = len(v.deps)
		v.deps = append(v.deps, dep)
	}
	return v
}

// Leaf is a numeric node, optionally explained by deps.
func Leaf(reg *descriptor.Registry, id descriptor.ID, x float64, deps ...*Value) *Value {
	return New(reg, id, &Number{Value: x}, deps...)
}

// Targeted is a numeric node with an ideal value.
func Targeted(reg *descriptor.Registry, id descriptor.ID, x, target float64, deps ...*Value) *Value {
	return New(reg, id, &Number{Value: x, Target: target, HasTarget: true}, deps...)
}

// Branch is a node without a number.
func Branch(reg *descriptor.Registry, id descriptor.ID, deps ...*Value) *Value {
	return New(reg, id, nil, deps...)
}

// Missing is the empty sentinel.
func Missing(reg *descriptor.Registry) *Value {
	return New(reg, descriptor.Missing, nil)
}
// #endregion construct

// #region accessors
func (v *Value) Registry() *descriptor.Registry { return v.reg }
func (v *Value) ID() descriptor.ID { return v.id }
func (v *Value) Descriptor() descriptor.Descriptor {
	return v.reg.Get(v.id)
}

// Number returns the node's scalar, if any.
func (v *Value) Number() (Number, bool) {
	if v.num == nil {
		return Number{}, false
	}
	return *v.num, true
}

// Float returns the node's value, failing for non-numeric nodes.
func (v *Value) Float() (float64, error) {
	if v.num == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotNumeric, v.Descriptor())
	}
	return v.num.Value, nil
}

// Deps returns the dependencies in insertion order.
func (v *Value) Deps() []*Value {
	out := make([]*Value, len(v.deps))
	copy(out, v.deps)
	return out
}

// Exists reports whether the node or any descendant carries a number.
func (v *Value) Exists() bool {
	if v.num != nil {
		return true
	}
	for _, dep := range v.deps {
		if dep.Exists() {
			return true
		}
	}
	return false
}

// Rebase keeps number and dependencies under a new descriptor.
func (v *Value) Rebase(id descriptor.ID) *Value {
	return New(v.reg, id, v.num, v.deps...)
}
// #endregion accessors

// #region keys
// Keys lists descriptors reachable below v in pre-order, one per alias.
// A non-empty role keeps only descriptors with exactly that role.
func (v *Value) Keys(role string) []descriptor.Descriptor {
	order, ids := v.keyMap(role)
	out := make([]descriptor.Descriptor, len(order))
	for i, alias := range order {
		out[i] = v.reg.Get(ids[alias])
	}
	return out
}

// Values looks up every key returned by Keys(role).
func (v *Value) Values(role string) []*Value {
	order, ids := v.keyMap(role)
	out := make([]*Value, len(order))
	for i, alias := range order {
		out[i] = v.getID(ids[alias])
	}
	return out
}

func (v *Value) keyMap(role string) ([]string, map[string]descriptor.ID) {
	var order []string
	ids := make(map[string]descriptor.ID)
	v.collectKeys(role, &order, ids)
	return order, ids
}

func (v *Value) collectKeys(role string, order *[]string, ids map[string]descriptor.ID) {
	for _, dep := range v.deps {
		d := v.reg.Get(dep.id)
		if role == "" || d.Role == role {
			if _, seen := ids[d.Alias]; !seen {
				*order = append(*order, d.Alias)
			}
			ids[d.Alias] = dep.id
		}
		dep.collectKeys(role, order, ids)
	}
}
// #endregion keys

// #region lookup
// Get resolves key against the immediate dependencies, then the node's own
// alias, then every descendant. A descendant match synthesizes a node rooted
// at the key's prototype whose children are each dependency's view of the key,
// rebased under that dependency's descriptor. Views with nothing in them are
// dropped.
func (v *Value) Get(key string) (*Value, error) {
	if i, ok := v.index[key]; ok {
		return v.deps[i], nil
	}
	if key == v.Descriptor().Alias {
		return v, nil
	}
	order, ids := v.keyMap("")
	id, ok := ids[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q not found under %s; available: %s",
			ErrUnknownKey, key, v.Descriptor(), strings.Join(order, ", "))
	}
	return v.getID(v.reg.Prototype(id)), nil
}

// Path applies Get for each key in turn.
func (v *Value) Path(keys ...string) (*Value, error) {
	cur := v
	for _, key := range keys {
		next, err := cur.Get(key)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (v *Value) getID(id descriptor.ID) *Value {
	alias := v.reg.Get(id).Alias
	if i, ok := v.index[alias]; ok {
		return v.deps[i]
	}
	if alias == v.Descriptor().Alias {
		return v
	}
	views := make([]*Value, 0, len(v.deps))
	for _, dep := range v.deps {
		views = append(views, dep.getID(id).Rebase(dep.id))
	}
	return New(v.reg, id, nil, views...)
}

// Reshape is Get followed by renaming the result after the path that reached
// it: names and roles are joined with a space, details read
// "<matched> in <original>".
func (v *Value) Reshape(key string) (*Value, error) {
	order, ids := v.keyMap("")
	id, ok := ids[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q not found under %s; available: %s",
			ErrUnknownKey, key, v.Descriptor(), strings.Join(order, ", "))
	}
	matched := v.getID(id)
	if !matched.Exists() {
		return nil, fmt.Errorf("%w: %q has no values under %s", ErrUnknownKey, key, v.Descriptor())
	}
	self := v.Descriptor()
	item := v.reg.Get(id)
	renamed := v.reg.Intern(descriptor.New(
		self.Name+" "+item.Name,
		self.Role+" "+item.Role,
		descriptor.WithDetails(item.Details+" in "+self.Details),
		descriptor.WithAlias(self.Alias+" "+item.Alias),
	))
	return matched.Rebase(renamed), nil
}
// #endregion lookup

// #region flatten
// SingleEntry descends through single-child chains to the first number.
func (v *Value) SingleEntry() (*Value, error) {
	if v.num != nil {
		return v, nil
	}
	if len(v.deps) == 1 {
		return v.deps[0].SingleEntry()
	}
	return nil, fmt.Errorf("%w: %s has %d dependencies", ErrAmbiguous, v.Descriptor(), len(v.deps))
}

// Flatten maps every dependency of a non-numeric node to its single entry.
func (v *Value) Flatten() ([]*Value, error) {
	if v.num != nil {
		return nil, fmt.Errorf("%w: %s carries a number", ErrNotFlattenable, v.Descriptor())
	}
	if len(v.deps) == 0 {
		return nil, fmt.Errorf("%w: %s has no dependencies", ErrNotFlattenable, v.Descriptor())
	}
	out := make([]*Value, len(v.deps))
	for i, dep := range v.deps {
		entry, err := dep.SingleEntry()
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", v.Descriptor(), err)
		}
		out[i] = entry
	}
	return out, nil
}

// FlattenFloats is Flatten reduced to the numbers.
func (v *Value) FlattenFloats() ([]float64, error) {
	entries, err := v.Flatten()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.num.Value
	}
	return out, nil
}
// #endregion flatten

// #region serialize
// Serialize converts the tree to its nested form. Depth counts numeric levels:
// each node carrying a number consumes one, and children are emitted while the
// remaining depth is non-negative.
func (v *Value) Serialize(depth int, details bool) Node {
	d := v.Descriptor()
	n := Node{Descriptor: d.String(), Depends: []Node{}}
	if details {
		n.Details = d.Details
	}
	if v.num != nil {
		// non-finite numbers serialize as null
		if x := v.num.Value; !math.IsNaN(x) && !math.IsInf(x, 0) {
			r := math.Round(x*1000) / 1000
			n.Value = &r
		}
		depth--
	}
	if depth >= 0 {
		for _, dep := range v.deps {
			n.Depends = append(n.Depends, dep.Serialize(depth, details))
		}
	}
	return n
}

// FromNode rebuilds a tree from its serialized form, interning descriptors
// into reg. Aliases come back as names and unsaved details are regenerated.
func FromNode(reg *descriptor.Registry, n Node) (*Value, error) {
	role, name, err := parseDescriptor(n.Descriptor)
	if err != nil {
		return nil, err
	}
	var opts []descriptor.Option
	if n.Details != "" {
		opts = append(opts, descriptor.WithDetails(n.Details))
	}
	id := reg.Intern(descriptor.New(name, role, opts...))
	deps := make([]*Value, 0, len(n.Depends))
	for _, child := range n.Depends {
		dep, err := FromNode(reg, child)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	var num *Number
	if n.Value != nil {
		num = &Number{Value: *n.Value}
	}
	return New(reg, id, num, deps...), nil
}

func parseDescriptor(s string) (role, name string, err error) {
	if !strings.HasPrefix(s, "[") {
		return "", "", fmt.Errorf("parse descriptor %q: missing role", s)
	}
	end := strings.Index(s, "] ")
	if end < 0 {
		return "", "", fmt.Errorf("parse descriptor %q: unterminated role", s)
	}
	return s[1:end], s[end+2:], nil
}
// #endregion serialize

// #region text
// Text renders one line per node, the canonical descriptor padded to 40
// columns followed by the value to three decimals. Numbers below the depth cap
// are replaced by a pointer to their alias.
func (v *Value) Text(opts TextOptions) string {
	var lines []string
	v.writeText(&lines, "", opts.Depth, opts.Details)
	return strings.Join(lines, "\n")
}

// String is Text at depth 0 without details.
func (v *Value) String() string { return v.Text(TextOptions{}) }

func (v *Value) writeText(lines *[]string, tab string, depth int, details bool) {
	d := v.Descriptor()
	line := fmt.Sprintf("%-40s", tab+d.String())
	if len(v.deps) == 0 && v.num == nil {
		line += " ---"
		if details {
			line += " (" + d.Details + ")"
		}
		*lines = append(*lines, line)
		return
	}
	if v.num != nil {
		line += fmt.Sprintf(" %.3f", v.num.Value)
		if v.num.HasTarget && len(v.deps) == 0 {
			line += fmt.Sprintf(" (ideal %.3f)", v.num.Target)
		}
		depth--
	}
	if details {
		line += " (" + d.Details + ")"
	}
	*lines = append(*lines, line)
	if depth < 0 {
		if len(v.deps) > 0 {
			*lines = append(*lines, tab+"  ... [use the alias "+d.Alias+" for more info]")
		}
		return
	}
	for _, dep := range v.deps {
		dep.writeText(lines, tab+"  ", depth, details)
	}
}
// #endregion text
