package host

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/gnoswap-labs/metapy/internal/code"
)

// ToStarlark converts a Go value held in a scope into a Starlark value.
func ToStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case *code.Builder:
		return &builderValue{b: x}, nil
	case *code.Block:
		return NewCode(x), nil
	case code.Node:
		return NewCode(x), nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case []string:
		elems := make([]starlark.Value, len(x))
		for i, s := range x {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := ToStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(x))
		for _, k := range keys {
			sv, err := ToStarlark(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot convert %T to a starlark value", v)
}

// FromStarlark unwraps Starlark values that have a Go counterpart: code
// values, the builder, strings and None. Other values are returned as is.
func FromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case *Code:
		return x.v
	case *builderValue:
		return x.b
	case starlark.String:
		return string(x)
	case starlark.NoneType:
		return nil
	}
	return v
}

func globals(scope *code.Scope) (starlark.StringDict, error) {
	names, values := scope.Flatten()
	env := make(starlark.StringDict, len(names))
	for _, name := range names {
		v, err := ToStarlark(values[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		env[name] = v
	}
	return env, nil
}

// envMap converts an env dict passed to a builder method.
func envMap(fn string, d *starlark.Dict) (map[string]any, error) {
	if d == nil {
		return nil, nil
	}
	env := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		k, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("%s: env keys must be strings, got %s", fn, item[0].Type())
		}
		env[k] = item[1]
	}
	return env, nil
}
