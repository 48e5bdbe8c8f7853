package annotation

// Counter assigns default annotation ids within one execution pass. Each
// type counts independently; the counter advances for every occurrence of
// an annotation-producing method of that type, so default ids follow
// method-execution order: a, b, c, ...
type Counter struct {
	counts map[Type]int
}

// NewCounter returns a counter with every type at -1 (no occurrence yet).
func NewCounter() *Counter {
	counts := make(map[Type]int, len(Types()))
	for _, t := range Types() {
		counts[t] = -1
	}
	return &Counter{counts: counts}
}

// Advance records one occurrence of type t and returns its ordinal.
func (c *Counter) Advance(t Type) int {
	c.counts[t]++
	return c.counts[t]
}

// Current returns the last ordinal issued for t, -1 if none.
func (c *Counter) Current(t Type) int {
	return c.counts[t]
}

// Letter maps an ordinal to its id token: 0 -> "a", 25 -> "z", 26 -> "aa".
func Letter(n int) string {
	if n < 0 {
		return ""
	}
	var out []byte
	for {
		out = append([]byte{byte('a' + n%26)}, out...)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(out)
}
