package accumulate

import (
	"context"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
)

// #region todict
// ToDict builds a dict from named entries, one per branch when any entry is
// forked. Keys are sorted.
func ToDict(ctx context.Context, entries fork.Args) (fork.Payload, error) {
	return fork.Broadcast(func(_ context.Context, args fork.Args) (fork.Payload, error) {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := fork.NewDict()
		for _, k := range keys {
			d.Set(k, args[k])
		}
		return fork.DictOf(d), nil
	})(ctx, entries)
}
// #endregion todict

// #region extract
// Extract gathers entries into a dict. Callable sources are invoked first;
// a source that is a dict holding its own key, or a fork of such dicts,
// contributes that member instead of itself.
func Extract(ctx context.Context, sources fork.Args) (fork.Payload, error) {
	resolved := make(fork.Args, len(sources))
	for key, src := range sources {
		if fn, ok := src.AsFunc(); ok {
			out, err := fn(ctx)
			if err != nil {
				return fork.Payload{}, fmt.Errorf("extract %s: %w", key, err)
			}
			src = out
		}
		if holds(src, key) {
			out, err := fork.Apply(ctx, src, fork.Field(key))
			if err != nil {
				return fork.Payload{}, fmt.Errorf("extract %s: %w", key, err)
			}
			src = out
		}
		resolved[key] = src
	}
	return ToDict(ctx, resolved)
}

func holds(p fork.Payload, key string) bool {
	if d, ok := p.AsDict(); ok {
		_, has := d.Get(key)
		return has
	}
	f, ok := p.AsFork()
	if !ok || f.Len() == 0 {
		return false
	}
	for _, v := range f.Values() {
		if !holds(v, key) {
			return false
		}
	}
	return true
}
// #endregion extract

// #region concatenate
// Concatenate joins partial results, typically successive batches of the same
// audit. Forked parts are joined branch by branch and must share labels.
// Empty parts are skipped; tensors are joined end to end and dicts key by key.
func Concatenate(ctx context.Context, parts ...fork.Payload) (fork.Payload, error) {
	args := make(fork.Args, len(parts))
	for i, p := range parts {
		args[fmt.Sprintf("%08d", i)] = p
	}
	return fork.Broadcast(func(_ context.Context, args fork.Args) (fork.Payload, error) {
		ordered := make([]fork.Payload, len(parts))
		for i := range parts {
			ordered[i] = args[fmt.Sprintf("%08d", i)]
		}
		return concat(ordered)
	})(ctx, args)
}

func concat(parts []fork.Payload) (fork.Payload, error) {
	present := parts[:0:0]
	for _, p := range parts {
		if p.Kind() != fork.KindNone {
			present = append(present, p)
		}
	}
	switch len(present) {
	case 0:
		return fork.Payload{}, nil
	case 1:
		return present[0], nil
	}

	switch present[0].Kind() {
	case fork.KindTensor:
		tensors := make([]backend.Tensor, len(present))
		for i, p := range present {
			t, ok := p.AsTensor()
			if !ok {
				return fork.Payload{}, fmt.Errorf("concatenate tensor with %s: %w", p.Kind(), fork.ErrKind)
			}
			tensors[i] = t
		}
		return fork.Tensor(backend.Concatenate(tensors...)), nil
	case fork.KindDict:
		first, _ := present[0].AsDict()
		out := fork.NewDict()
		for _, k := range first.Keys() {
			column := make([]fork.Payload, len(present))
			for i, p := range present {
				d, ok := p.AsDict()
				if !ok {
					return fork.Payload{}, fmt.Errorf("concatenate dict with %s: %w", p.Kind(), fork.ErrKind)
				}
				column[i], _ = d.Get(k)
			}
			joined, err := concat(column)
			if err != nil {
				return fork.Payload{}, fmt.Errorf("key %s: %w", k, err)
			}
			out.Set(k, joined)
		}
		return fork.DictOf(out), nil
	}
	return fork.Payload{}, fmt.Errorf("concatenate %s: %w", present[0].Kind(), fork.ErrKind)
}
// #endregion concatenate
