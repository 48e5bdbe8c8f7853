package config

import "fmt"

// Args is an order-preserving argument mapping. Values are scalars
// (string, bool, int, float64, nil), []any sequences, or nested *Args.
type Args struct {
	Pairs []Pair
}

// Pair is one key/value entry.
type Pair struct {
	Key   string
	Value any
}

// NewArgs builds Args from alternating key, value arguments.
func NewArgs(kv ...any) *Args {
	a := &Args{}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i].(string), kv[i+1])
	}
	return a
}

// Len returns the number of entries; safe on nil.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Pairs)
}

// Get returns the value for key; safe on nil.
func (a *Args) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	for _, p := range a.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for key, appending if absent.
func (a *Args) Set(key string, value any) {
	for i := range a.Pairs {
		if a.Pairs[i].Key == key {
			a.Pairs[i].Value = value
			return
		}
	}
	a.Pairs = append(a.Pairs, Pair{Key: key, Value: value})
}

// Delete removes key, reporting whether it was present.
func (a *Args) Delete(key string) bool {
	if a == nil {
		return false
	}
	for i := range a.Pairs {
		if a.Pairs[i].Key == key {
			a.Pairs = append(a.Pairs[:i], a.Pairs[i+1:]...)
			return true
		}
	}
	return false
}

// String returns the string value for key, or def if absent or not a string.
func (a *Args) String(key, def string) string {
	if v, ok := a.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key, or def.
func (a *Args) Bool(key string, def bool) bool {
	if v, ok := a.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the integer value for key, or def. YAML integers decode as
// int; whole floats are accepted too.
func (a *Args) Int(key string, def int) int {
	if v, ok := a.Get(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			if n == float64(int(n)) {
				return int(n)
			}
		}
	}
	return def
}

// Float returns the numeric value for key, or def.
func (a *Args) Float(key string, def float64) float64 {
	if v, ok := a.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return def
}

// Clone deep-copies the args; nil stays nil.
func (a *Args) Clone() *Args {
	if a == nil {
		return nil
	}
	out := &Args{Pairs: make([]Pair, len(a.Pairs))}
	for i, p := range a.Pairs {
		out.Pairs[i] = Pair{Key: p.Key, Value: cloneValue(p.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case *Args:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return x
	}
}

// Equal compares two args structurally, order-sensitive.
func (a *Args) Equal(b *Args) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a == nil || b == nil {
		return a.Len() == b.Len()
	}
	for i := range a.Pairs {
		if a.Pairs[i].Key != b.Pairs[i].Key {
			return false
		}
		if !valueEqual(a.Pairs[i].Value, b.Pairs[i].Value) {
			return false
		}
	}
	return true
}

func valueEqual(x, y any) bool {
	switch xv := x.(type) {
	case *Args:
		yv, ok := y.(*Args)
		return ok && xv.Equal(yv)
	case []any:
		yv, ok := y.([]any)
		if !ok || len(xv) != len(yv) {
			return false
		}
		for i := range xv {
			if !valueEqual(xv[i], yv[i]) {
				return false
			}
		}
		return true
	default:
		return x == y
	}
}

// GoString aids test failure output.
func (a *Args) GoString() string {
	if a == nil {
		return "config.Args(nil)"
	}
	return fmt.Sprintf("config.Args%v", a.Pairs)
}
